package cli

import (
	"github.com/spf13/cobra"

	"github.com/mamaar/goextract/pkg/types"
)

func (app *App) newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <descriptor.yaml>",
		Short: "Run a refactoring recorded with --save-descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := types.LoadDescriptor(args[0])
			if err != nil {
				return err
			}
			s, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			c, status, err := s.engine.Replay(cmd.Context(), s.dir, desc)
			if err != nil {
				return err
			}
			return app.process(c, status, desc.Description)
		},
	}
}
