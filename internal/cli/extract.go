package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mamaar/goextract/pkg/refactor"
	"github.com/mamaar/goextract/pkg/types"
)

func (app *App) newExtractStructCmd() *cobra.Command {
	var (
		fields    []string
		desc      types.ExtractStructDescriptor
		accessors bool
		topLevel  bool
	)
	cmd := &cobra.Command{
		Use:   "extract-struct <package> <type>",
		Short: "Move fields of a struct into a new struct held by a field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			selections, err := ParseFieldSelections(fields)
			if err != nil {
				return err
			}
			s, err := app.open(cmd.Context())
			if err != nil {
				return err
			}

			desc.Package, desc.Type = args[0], args[1]
			desc.Fields = selections
			desc.CreateAccessors = s.cfg.Extract.Accessors
			if cmd.Flags().Changed("accessors") {
				desc.CreateAccessors = accessors
			}
			desc.CreateTopLevel = s.cfg.Extract.TopLevel
			if cmd.Flags().Changed("top-level") {
				desc.CreateTopLevel = topLevel
			}

			c, status, err := s.engine.ExtractStruct(cmd.Context(), s.dir, &desc, refactor.DefaultNames{})
			if err != nil {
				return err
			}
			return app.process(c, status, fmt.Sprintf("extract struct from %s", desc.Type))
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&fields, "fields", nil, "Fields to move, as Name or Name:NewName")
	f.StringVar(&desc.ClassName, "class", "", "Name of the new struct (default <Type>Parameter)")
	f.StringVar(&desc.FieldName, "field", "", "Name of the holder field (default derived from the new struct)")
	f.BoolVar(&accessors, "accessors", false, "Generate getters and setters and route accesses through them")
	f.BoolVar(&topLevel, "top-level", false, "Declare the new struct in its own file")
	f.StringVar(&desc.FileName, "file", "", "File name of the new struct with --top-level")
	_ = cmd.MarkFlagRequired("fields")
	return cmd
}

func (app *App) newExtractInterfaceCmd() *cobra.Command {
	var desc types.ExtractInterfaceDescriptor
	cmd := &cobra.Command{
		Use:   "extract-interface <package> <type>",
		Short: "Create an interface from methods of a type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			desc.Package, desc.Type = args[0], args[1]
			c, status, err := s.engine.ExtractInterface(cmd.Context(), s.dir, &desc)
			if err != nil {
				return err
			}
			return app.process(c, status, fmt.Sprintf("extract interface %s from %s", desc.InterfaceName, desc.Type))
		},
	}
	f := cmd.Flags()
	f.StringVar(&desc.InterfaceName, "name", "", "Name of the new interface")
	f.StringSliceVar(&desc.Methods, "methods", nil, "Methods to include")
	f.StringVar(&desc.FileName, "file", "", "Declare the interface in this new file of the package")
	f.BoolVar(&desc.AddAssertion, "assert", false, "Add a compile-time assertion for the type")
	f.StringSliceVar(&desc.Candidates, "candidates", nil, "Other types of the package to assert")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("methods")
	return cmd
}

// ParseFieldSelections parses Name and Name:NewName items into included
// field selections.
func ParseFieldSelections(items []string) ([]types.FieldSelection, error) {
	out := make([]types.FieldSelection, 0, len(items))
	for _, item := range items {
		name, newName, _ := strings.Cut(strings.TrimSpace(item), ":")
		if name == "" {
			return nil, fmt.Errorf("invalid field selection %q", item)
		}
		out = append(out, types.FieldSelection{Name: name, NewName: newName, Include: true})
	}
	return out, nil
}
