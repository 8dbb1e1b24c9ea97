package cli

import "github.com/spf13/cobra"

// Flags holds the persistent flags shared by every command.
type Flags struct {
	Workspace      string
	Config         string
	DryRun         bool
	JSON           bool
	Verbose        bool
	Force          bool
	SaveDescriptor string
}

// bind registers the flags on the root command.
func (f *Flags) bind(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.Workspace, "workspace", "w", ".", "Path to workspace root")
	pf.StringVar(&f.Config, "config", "", "Settings file (defaults to <workspace>/.goextract.yaml)")
	pf.BoolVar(&f.DryRun, "dry-run", false, "Preview changes without applying them")
	pf.BoolVar(&f.JSON, "json", false, "Output results in JSON format")
	pf.BoolVarP(&f.Verbose, "verbose", "v", false, "Enable verbose output")
	pf.BoolVar(&f.Force, "force", false, "Apply the change even when errors were reported")
	pf.StringVar(&f.SaveDescriptor, "save-descriptor", "", "Write the replayable descriptor of the change to this file")
}
