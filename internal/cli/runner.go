package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/mamaar/goextract/pkg/change"
	"github.com/mamaar/goextract/pkg/types"
)

// Result is the JSON document printed for a refactoring.
type Result struct {
	Refactoring string                       `json:"refactoring"`
	Severity    types.Severity               `json:"severity"`
	Cancelled   bool                         `json:"cancelled,omitempty"`
	Entries     []types.StatusEntry          `json:"entries,omitempty"`
	Files       []string                     `json:"files,omitempty"`
	Applied     bool                         `json:"applied"`
	Preview     string                       `json:"preview,omitempty"`
	Descriptor  *types.PersistableDescriptor `json:"descriptor,omitempty"`
}

// process reports a computed change and applies it unless the flags or the
// status forbid it.
func (app *App) process(c *change.Composite, status *types.RefactoringStatus, description string) error {
	res := &Result{
		Refactoring: description,
		Severity:    status.Severity(),
		Cancelled:   status.Cancelled(),
		Entries:     status.Entries,
	}
	if c != nil {
		res.Files = app.relative(c.AffectedFiles())
		res.Descriptor = c.CreateDescriptor()
	}

	var blocked error
	switch {
	case status.Cancelled():
		blocked = &StatusError{Reason: "refactoring cancelled"}
	case status.HasFatal():
		blocked = &StatusError{Reason: "refactoring stopped by fatal precondition"}
	case status.HasError() && !app.flags.Force:
		blocked = &StatusError{Reason: "errors found, use --force to apply anyway"}
	}

	if blocked == nil && c != nil && !c.IsEmpty() {
		if app.flags.DryRun {
			res.Preview = c.Preview()
		} else {
			if err := c.Apply(); err != nil {
				return fmt.Errorf("failed to apply %s: %w", description, err)
			}
			res.Applied = true
		}
	}
	if blocked == nil && res.Descriptor != nil && app.flags.SaveDescriptor != "" {
		if err := res.Descriptor.Save(app.flags.SaveDescriptor); err != nil {
			return err
		}
	}

	if app.flags.JSON {
		if err := writeJSON(app.stdout, res); err != nil {
			return err
		}
	} else {
		app.printResult(res, blocked)
	}
	return blocked
}

func (app *App) printResult(res *Result, blocked error) {
	w := app.stdout
	fmt.Fprintf(w, "Refactoring: %s\n", res.Refactoring)

	if len(res.Entries) > 0 {
		fmt.Fprintf(w, "\nIssues Found:\n")
		for _, e := range res.Entries {
			fmt.Fprintf(w, "  %-6s %s\n", e.Severity.String()+":", e.Message)
			if e.File != "" {
				fmt.Fprintf(w, "            at %s:%d\n", app.relative([]string{e.File})[0], e.Line)
			}
		}
	}

	if len(res.Files) > 0 && blocked == nil {
		fmt.Fprintf(w, "\nAffected Files (%d):\n", len(res.Files))
		for _, f := range res.Files {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}

	switch {
	case blocked != nil:
		fmt.Fprintf(w, "\nNot applied: %s\n", blocked)
	case len(res.Files) == 0:
		fmt.Fprintf(w, "\nNothing to change\n")
	case res.Preview != "":
		fmt.Fprintf(w, "\nDry run mode - no changes will be applied\n\n%s", res.Preview)
	case res.Applied:
		fmt.Fprintf(w, "\nApplied %d files\n", len(res.Files))
	}
}

// relative shortens paths below the workspace root.
func (app *App) relative(paths []string) []string {
	root, err := filepath.Abs(app.flags.Workspace)
	if err != nil {
		return paths
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		rel, err := filepath.Rel(root, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			out[i] = p
			continue
		}
		out[i] = filepath.ToSlash(rel)
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}
