package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mamaar/goextract/internal/cli"
	"github.com/mamaar/goextract/internal/config"
	internalmcp "github.com/mamaar/goextract/internal/mcp"
)

type options struct {
	workspace   string
	addr        string
	metricsAddr string
	debug       bool
	noWatch     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "goextract-mcp",
		Short:         "Model Context Protocol server for goextract refactorings",
		Version:       cli.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.workspace, "workspace", "", "Workspace to load at startup")
	f.StringVar(&opts.addr, "addr", "", "Serve streamable HTTP on this address instead of stdio")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	f.BoolVar(&opts.noWatch, "no-watch", false, "Do not watch the workspace for changes")
	return cmd
}

func serve(ctx context.Context, opts options) error {
	// stdout carries the protocol, so logs always go to stderr.
	logger := config.Default().NewLogger(os.Stderr, opts.debug)

	state := internalmcp.NewMCPServer(logger, internalmcp.WithWatch(!opts.noWatch))
	defer state.Close()
	if opts.workspace != "" {
		if _, err := state.LoadWorkspace(ctx, opts.workspace); err != nil {
			return err
		}
	}

	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "goextract", Version: cli.Version}, nil)
	internalmcp.RegisterAllTools(server, state)

	if opts.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go listen(ctx, logger, "metrics", opts.metricsAddr, mux)
	}

	if opts.addr != "" {
		handler := mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return server }, nil)
		return listen(ctx, logger, "mcp", opts.addr, handler)
	}

	logger.Info("serving MCP on stdio")
	if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// listen serves handler on addr until ctx ends.
func listen(ctx context.Context, logger *slog.Logger, name, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "server", name, "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "server", name, "err", err)
		return err
	}
	return nil
}
