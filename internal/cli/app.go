// Package cli implements the goextract command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mamaar/goextract/internal/config"
	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/refactor"
)

// StatusError reports that a command finished with a blocking status. The
// status itself was already printed.
type StatusError struct {
	Reason string
}

func (e *StatusError) Error() string { return e.Reason }

// IsStatusError reports whether err is a StatusError.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// App represents the goextract application
type App struct {
	flags  Flags
	stdout io.Writer
	stderr io.Writer
}

// NewApp creates a new application writing results to stdout and logs to
// stderr.
func NewApp(stdout, stderr io.Writer) *App {
	return &App{stdout: stdout, stderr: stderr}
}

// Command builds the root command with every subcommand registered.
func (app *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:           "goextract",
		Short:         "Safe structural refactorings for Go code",
		Long:          rootLong,
		Example:       rootExample,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(app.stdout)
	root.SetErr(app.stderr)
	app.flags.bind(root)

	root.AddCommand(
		app.newExtractStructCmd(),
		app.newExtractInterfaceCmd(),
		app.newReplayCmd(),
		app.newReferencesCmd(),
		app.newHierarchyCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line in args.
func (app *App) Execute(ctx context.Context, args []string) error {
	root := app.Command()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// session is the loaded state every command works on.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	engine refactor.RefactorEngine
	dir    *analysis.Directory
}

// open loads settings, builds the engine and parses the workspace.
func (app *App) open(ctx context.Context) (*session, error) {
	path := app.flags.Config
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadWorkspace(app.flags.Workspace)
	}
	if err != nil {
		return nil, err
	}

	logger := cfg.NewLogger(app.stderr, app.flags.Verbose)
	engine := refactor.CreateEngineWithConfig(logger, cfg.EngineOptions())
	dir, err := engine.LoadWorkspace(ctx, app.flags.Workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace %s: %w", app.flags.Workspace, err)
	}
	return &session{cfg: cfg, logger: logger, engine: engine, dir: dir}, nil
}
