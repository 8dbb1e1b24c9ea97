package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mamaar/goextract/pkg/types"
)

func (app *App) newReferencesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "references <package> <type> [member]",
		Short: "List the references to a type or one of its fields and methods",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			member := ""
			if len(args) == 3 {
				member = args[2]
			}
			groups, err := s.engine.FindReferences(cmd.Context(), s.dir, args[0], args[1], member)
			if err != nil {
				return err
			}

			var occurrences []types.Occurrence
			for _, g := range groups {
				occurrences = append(occurrences, g.Occurrences...)
			}
			if app.flags.JSON {
				return writeJSON(app.stdout, occurrences)
			}
			for _, o := range occurrences {
				fmt.Fprintf(app.stdout, "%s:%d:%d %s\n", app.relative([]string{o.File})[0], o.Line, o.Column, o.Kind)
			}
			fmt.Fprintf(app.stdout, "%d references in %d files\n", len(occurrences), len(groups))
			return nil
		},
	}
}

func (app *App) newHierarchyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hierarchy <package> <type>",
		Short: "Show the embedding and interface relations of a type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			h, err := s.engine.TypeHierarchy(cmd.Context(), s.dir, args[0], args[1])
			if err != nil {
				return err
			}
			if app.flags.JSON {
				return writeJSON(app.stdout, h)
			}
			fmt.Fprintf(app.stdout, "%s\n", h.Type.Key())
			fmt.Fprintf(app.stdout, "Supertypes (%d):\n", len(h.Supertypes))
			for _, b := range h.Supertypes {
				fmt.Fprintf(app.stdout, "  - %s\n", b.Key())
			}
			fmt.Fprintf(app.stdout, "Subtypes (%d):\n", len(h.Subtypes))
			for _, b := range h.Subtypes {
				fmt.Fprintf(app.stdout, "  - %s\n", b.Key())
			}
			return nil
		},
	}
}
