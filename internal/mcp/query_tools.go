package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mamaar/goextract/pkg/types"
)

// --- find_references ---

type FindReferencesInput struct {
	Package string `json:"package" jsonschema:"package declaring the type"`
	Type    string `json:"type" jsonschema:"name of the type"`
	Member  string `json:"member,omitempty" jsonschema:"field or method of the type; empty for the type itself"`
}

type ReferenceOutput struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Kind     string `json:"kind"`
	Compound bool   `json:"compound,omitempty"`
}

type FindReferencesOutput struct {
	Binding    string            `json:"binding"`
	Count      int               `json:"count"`
	Files      int               `json:"files"`
	References []ReferenceOutput `json:"references"`
}

// --- type_hierarchy ---

type TypeHierarchyInput struct {
	Package string `json:"package" jsonschema:"package declaring the type"`
	Type    string `json:"type" jsonschema:"name of the type"`
}

type TypeHierarchyOutput struct {
	Type       string   `json:"type"`
	Supertypes []string `json:"supertypes"`
	Subtypes   []string `json:"subtypes"`
}

func keys(bindings []types.Binding) []string {
	out := make([]string, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, b.Key())
	}
	return out
}

func registerQueryTools(s *mcpsdk.Server, state *MCPServer) {
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "find_references",
		Description: "List every reference to a type or one of its fields and methods, classified as declaration, read, write or initializer.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in FindReferencesInput) (*mcpsdk.CallToolResult, any, error) {
		sess, release, err := state.acquire(ctx)
		if err != nil {
			return errResult(err), nil, nil
		}
		defer release()

		groups, err := sess.engine.FindReferences(ctx, sess.dir, in.Package, in.Type, in.Member)
		if err != nil {
			return errResult(err), nil, nil
		}
		out := FindReferencesOutput{Files: len(groups), References: []ReferenceOutput{}}
		for _, g := range groups {
			for _, o := range g.Occurrences {
				if out.Binding == "" {
					out.Binding = o.Binding.Key()
				}
				out.References = append(out.References, ReferenceOutput{
					File:     o.File,
					Line:     o.Line,
					Column:   o.Column,
					Kind:     o.Kind.String(),
					Compound: o.Compound,
				})
			}
		}
		out.Count = len(out.References)
		return textResult(out), nil, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "type_hierarchy",
		Description: "Show the direct supertypes (embedded types and satisfied interfaces) and subtypes of a type.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in TypeHierarchyInput) (*mcpsdk.CallToolResult, any, error) {
		sess, release, err := state.acquire(ctx)
		if err != nil {
			return errResult(err), nil, nil
		}
		defer release()

		h, err := sess.engine.TypeHierarchy(ctx, sess.dir, in.Package, in.Type)
		if err != nil {
			return errResult(err), nil, nil
		}
		return textResult(TypeHierarchyOutput{
			Type:       h.Type.Key(),
			Supertypes: keys(h.Supertypes),
			Subtypes:   keys(h.Subtypes),
		}), nil, nil
	})
}
