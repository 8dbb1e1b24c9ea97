package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mamaar/goextract/pkg/refactor"
	"github.com/mamaar/goextract/pkg/types"
)

// --- extract_struct ---

type FieldInput struct {
	Name    string `json:"name" jsonschema:"name of the field in the original struct"`
	NewName string `json:"new_name,omitempty" jsonschema:"name of the field in the new struct (defaults to name)"`
}

type ExtractStructInput struct {
	Package         string       `json:"package" jsonschema:"import path, directory relative to the root, or unique name of the package"`
	Type            string       `json:"type" jsonschema:"name of the struct to extract fields from"`
	Fields          []FieldInput `json:"fields" jsonschema:"fields to move into the new struct"`
	ClassName       string       `json:"class_name,omitempty" jsonschema:"name of the new struct (defaults to <Type>Parameter)"`
	FieldName       string       `json:"field_name,omitempty" jsonschema:"name of the holder field (defaults to a name derived from the new struct)"`
	CreateAccessors *bool        `json:"create_accessors,omitempty" jsonschema:"generate getters and setters and route accesses through them"`
	CreateTopLevel  *bool        `json:"create_top_level,omitempty" jsonschema:"declare the new struct in its own file"`
	FileName        string       `json:"file_name,omitempty" jsonschema:"file name of the new struct when create_top_level is set"`
	DryRun          bool         `json:"dry_run,omitempty" jsonschema:"compute and preview the change without writing files"`
	Force           bool         `json:"force,omitempty" jsonschema:"apply even when the status contains errors"`
}

// --- extract_interface ---

type ExtractInterfaceInput struct {
	Package       string   `json:"package" jsonschema:"package declaring the type"`
	Type          string   `json:"type" jsonschema:"name of the type to extract methods from"`
	InterfaceName string   `json:"interface_name" jsonschema:"name for the new interface"`
	Methods       []string `json:"methods" jsonschema:"list of method names to include in the interface"`
	FileName      string   `json:"file_name,omitempty" jsonschema:"declare the interface in this new file of the package"`
	AddAssertion  bool     `json:"add_assertion,omitempty" jsonschema:"add a compile-time assertion that the type implements the interface"`
	Candidates    []string `json:"candidates,omitempty" jsonschema:"other types of the package to assert"`
	DryRun        bool     `json:"dry_run,omitempty" jsonschema:"compute and preview the change without writing files"`
	Force         bool     `json:"force,omitempty" jsonschema:"apply even when the status contains errors"`
}

// --- replay_descriptor ---

type ReplayInput struct {
	Descriptor *types.PersistableDescriptor `json:"descriptor,omitempty" jsonschema:"descriptor returned by an earlier refactoring"`
	Path       string                       `json:"path,omitempty" jsonschema:"path of a descriptor file saved as YAML"`
	DryRun     bool                         `json:"dry_run,omitempty" jsonschema:"compute and preview the change without writing files"`
	Force      bool                         `json:"force,omitempty" jsonschema:"apply even when the status contains errors"`
}

func (in ExtractStructInput) descriptor(sess *session) *types.ExtractStructDescriptor {
	d := &types.ExtractStructDescriptor{
		Package:         in.Package,
		Type:            in.Type,
		ClassName:       in.ClassName,
		FieldName:       in.FieldName,
		CreateAccessors: sess.cfg.Extract.Accessors,
		CreateTopLevel:  sess.cfg.Extract.TopLevel,
		FileName:        in.FileName,
	}
	if in.CreateAccessors != nil {
		d.CreateAccessors = *in.CreateAccessors
	}
	if in.CreateTopLevel != nil {
		d.CreateTopLevel = *in.CreateTopLevel
	}
	for _, f := range in.Fields {
		d.Fields = append(d.Fields, types.FieldSelection{Name: f.Name, NewName: f.NewName, Include: true})
	}
	return d
}

func registerExtractTools(s *mcpsdk.Server, state *MCPServer) {
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "extract_struct",
		Description: "Move selected fields of a struct into a new struct held by a field of the original. Every reference in the workspace is rewritten.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in ExtractStructInput) (*mcpsdk.CallToolResult, any, error) {
		sess, release, err := state.acquire(ctx)
		if err != nil {
			return errResult(err), nil, nil
		}
		defer release()

		c, status, err := sess.engine.ExtractStruct(ctx, sess.dir, in.descriptor(sess), refactor.DefaultNames{})
		if err != nil {
			return errResult(err), nil, nil
		}
		res, err := applyChange(sess, c, status, ApplyOptions{DryRun: in.DryRun, Force: in.Force})
		if err != nil {
			return errResult(err), nil, nil
		}
		return textResult(res), nil, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "extract_interface",
		Description: "Create an interface from methods of a type and optionally assert that the type and other candidates implement it.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in ExtractInterfaceInput) (*mcpsdk.CallToolResult, any, error) {
		sess, release, err := state.acquire(ctx)
		if err != nil {
			return errResult(err), nil, nil
		}
		defer release()

		c, status, err := sess.engine.ExtractInterface(ctx, sess.dir, &types.ExtractInterfaceDescriptor{
			Package:       in.Package,
			Type:          in.Type,
			InterfaceName: in.InterfaceName,
			Methods:       in.Methods,
			FileName:      in.FileName,
			AddAssertion:  in.AddAssertion,
			Candidates:    in.Candidates,
		})
		if err != nil {
			return errResult(err), nil, nil
		}
		res, err := applyChange(sess, c, status, ApplyOptions{DryRun: in.DryRun, Force: in.Force})
		if err != nil {
			return errResult(err), nil, nil
		}
		return textResult(res), nil, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "replay_descriptor",
		Description: "Run a refactoring again from its descriptor, given inline or as a file path.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in ReplayInput) (*mcpsdk.CallToolResult, any, error) {
		desc := in.Descriptor
		if desc == nil {
			if in.Path == "" {
				return errResult(&types.RefactorError{Type: types.InvalidOperation, Message: "either descriptor or path is required"}), nil, nil
			}
			loaded, err := types.LoadDescriptor(in.Path)
			if err != nil {
				return errResult(err), nil, nil
			}
			desc = loaded
		}

		sess, release, err := state.acquire(ctx)
		if err != nil {
			return errResult(err), nil, nil
		}
		defer release()

		c, status, err := sess.engine.Replay(ctx, sess.dir, desc)
		if err != nil {
			return errResult(err), nil, nil
		}
		res, err := applyChange(sess, c, status, ApplyOptions{DryRun: in.DryRun, Force: in.Force})
		if err != nil {
			return errResult(err), nil, nil
		}
		return textResult(res), nil, nil
	})
}
