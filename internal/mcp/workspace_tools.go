package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// --- load_workspace ---

type LoadWorkspaceInput struct {
	Path string `json:"path" jsonschema:"absolute path to workspace root (go.mod directory)"`
}

type LoadWorkspaceOutput struct {
	Module       string `json:"module"`
	PackageCount int    `json:"package_count"`
	RootPath     string `json:"root_path"`
}

// --- workspace_status ---

type WorkspaceStatusInput struct{}

type WorkspaceStatusOutput struct {
	Loaded       bool     `json:"loaded"`
	Module       string   `json:"module,omitempty"`
	RootPath     string   `json:"root_path,omitempty"`
	PackageCount int      `json:"package_count"`
	Packages     []string `json:"packages,omitempty"`
	Generation   int      `json:"generation"`
}

func registerWorkspaceTools(s *mcpsdk.Server, state *MCPServer) {
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "load_workspace",
		Description: "Load a Go workspace into memory for refactoring. Must be called before any other tool.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in LoadWorkspaceInput) (*mcpsdk.CallToolResult, any, error) {
		dir, err := state.LoadWorkspace(ctx, in.Path)
		if err != nil {
			return errResult(err), nil, nil
		}
		ws := dir.Workspace()
		out := LoadWorkspaceOutput{
			PackageCount: len(ws.Packages),
			RootPath:     ws.RootPath,
		}
		if ws.Module != nil {
			out.Module = ws.Module.Path
		}
		return textResult(out), nil, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "workspace_status",
		Description: "Return the current workspace status: loaded state, module name, package count, and package list.",
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest, in WorkspaceStatusInput) (*mcpsdk.CallToolResult, any, error) {
		sess, release, err := state.acquire(ctx)
		if err != nil {
			return textResult(WorkspaceStatusOutput{Loaded: false}), nil, nil
		}
		defer release()

		ws := sess.dir.Workspace()
		out := WorkspaceStatusOutput{
			Loaded:       true,
			RootPath:     ws.RootPath,
			PackageCount: len(ws.Packages),
			Generation:   sess.cache.Generation(),
		}
		if ws.Module != nil {
			out.Module = ws.Module.Path
		}
		for _, pkg := range ws.SortedPackages() {
			out.Packages = append(out.Packages, pkg.ImportPath)
		}
		return textResult(out), nil, nil
	})
}
