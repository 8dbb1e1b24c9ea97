package mcp

import (
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mamaar/goextract/pkg/change"
	"github.com/mamaar/goextract/pkg/types"
)

// ChangeResult is the structured output returned by refactoring tools.
type ChangeResult struct {
	Description   string                       `json:"description"`
	Severity      types.Severity               `json:"severity"`
	Cancelled     bool                         `json:"cancelled,omitempty"`
	Entries       []types.StatusEntry          `json:"entries,omitempty"`
	AffectedFiles []string                     `json:"affected_files"`
	ChangeCount   int                          `json:"change_count"`
	Applied       bool                         `json:"applied"`
	Preview       string                       `json:"preview,omitempty"`
	Descriptor    *types.PersistableDescriptor `json:"descriptor,omitempty"`
}

// ApplyOptions are the common flags of refactoring tools.
type ApplyOptions struct {
	DryRun bool `json:"dry_run,omitempty" jsonschema:"compute and preview the change without writing files"`
	Force  bool `json:"force,omitempty" jsonschema:"apply even when the status contains errors"`
}

// applyChange reports a computed change and writes it unless the options
// or the status forbid it. Written files invalidate the cached directory.
func applyChange(sess *session, c *change.Composite, status *types.RefactoringStatus, opts ApplyOptions) (*ChangeResult, error) {
	res := &ChangeResult{
		Description:   c.Name,
		Severity:      status.Severity(),
		Cancelled:     status.Cancelled(),
		Entries:       status.Entries,
		AffectedFiles: c.AffectedFiles(),
		Descriptor:    c.CreateDescriptor(),
	}
	for _, s := range c.Scripts() {
		res.ChangeCount += s.Len()
	}
	res.ChangeCount += len(c.Creates())

	blocked := status.Cancelled() || status.HasFatal() || (status.HasError() && !opts.Force)
	switch {
	case blocked || c.IsEmpty():
	case opts.DryRun:
		res.Preview = c.Preview()
	default:
		if err := c.Apply(); err != nil {
			return nil, fmt.Errorf("apply change: %w", err)
		}
		sess.cache.Invalidate(res.AffectedFiles...)
		res.Applied = true
	}
	return res, nil
}

// textResult is a convenience that marshals v to JSON and wraps it in a
// CallToolResult with a single TextContent block.
func textResult(v any) *mcpsdk.CallToolResult {
	b, _ := json.MarshalIndent(v, "", "  ")
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(b)},
		},
	}
}

// errResult returns a CallToolResult that signals an error.
func errResult(err error) *mcpsdk.CallToolResult {
	r := &mcpsdk.CallToolResult{}
	r.SetError(err)
	return r
}
