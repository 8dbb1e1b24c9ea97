package change

import (
	"errors"
	"fmt"
	"go/format"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mamaar/goextract/pkg/types"
)

// ErrAlreadyApplied is returned by every Apply call after the first.
var ErrAlreadyApplied = errors.New("change already applied")

// ApplyError reports a failed Apply. No file is left modified: files written
// before the failure are restored and created files are removed.
type ApplyError struct {
	File       string
	Err        error
	RolledBack bool
}

func (e *ApplyError) Error() string {
	state := "no files were written"
	if e.RolledBack {
		state = "written files were restored"
	}
	return fmt.Sprintf("apply change to %s: %v (%s)", e.File, e.Err, state)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Composite is the top-level change of one refactoring: one merged edit
// script per existing file plus the files to create. Nothing touches the
// filesystem before Apply, and Apply runs at most once.
type Composite struct {
	Name string

	scripts    []*EditScript
	creates    []FileCreation
	descriptor *types.PersistableDescriptor
	logger     *slog.Logger

	mu      sync.Mutex
	applied bool
}

// Empty returns a change that does nothing.
func Empty(name string, logger *slog.Logger) *Composite {
	return &Composite{Name: name, logger: logger}
}

// IsEmpty reports whether applying the change would modify nothing.
func (c *Composite) IsEmpty() bool {
	return len(c.scripts) == 0 && len(c.creates) == 0
}

// Scripts returns the per-file edit scripts sorted by file.
func (c *Composite) Scripts() []*EditScript { return c.scripts }

// Creates returns the new files sorted by path.
func (c *Composite) Creates() []FileCreation { return c.creates }

// AffectedFiles returns every edited or created file, sorted.
func (c *Composite) AffectedFiles() []string {
	var files []string
	for _, s := range c.scripts {
		files = append(files, s.File)
	}
	for _, cr := range c.creates {
		files = append(files, cr.Path)
	}
	sort.Strings(files)
	return files
}

// CreateDescriptor returns the replayable descriptor of the change, or nil
// for changes that carry none.
func (c *Composite) CreateDescriptor() *types.PersistableDescriptor {
	if c.descriptor == nil {
		return nil
	}
	d := *c.descriptor
	d.Attributes = make(map[string]string, len(c.descriptor.Attributes))
	for k, v := range c.descriptor.Attributes {
		d.Attributes[k] = v
	}
	return &d
}

// Applied reports whether Apply already ran.
func (c *Composite) Applied() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

// Contents computes the formatted new content of every affected file
// without writing anything. read supplies the current content of edited
// files.
func (c *Composite) Contents(read func(path string) ([]byte, error)) (map[string][]byte, error) {
	out := make(map[string][]byte, len(c.scripts)+len(c.creates))
	for _, s := range c.scripts {
		content, err := read(s.File)
		if err != nil {
			return nil, &ApplyError{File: s.File, Err: err}
		}
		updated, err := s.Apply(content)
		if err != nil {
			return nil, &ApplyError{File: s.File, Err: err}
		}
		out[s.File] = c.format(s.File, updated)
	}
	for _, cr := range c.creates {
		out[cr.Path] = c.format(cr.Path, cr.Content)
	}
	return out, nil
}

func (c *Composite) format(path string, content []byte) []byte {
	if !strings.HasSuffix(path, ".go") {
		return content
	}
	formatted, err := format.Source(content)
	if err != nil {
		// Keep the unformatted text; the verification pass reports syntax problems.
		if c.logger != nil {
			c.logger.Warn("failed to format", "file", path, "err", err)
		}
		return content
	}
	return formatted
}

// Apply writes the change to disk. All new contents are computed first;
// if any edit does not apply, nothing is written. If a write fails, the
// files written so far are restored and created files are removed.
func (c *Composite) Apply() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applied {
		return ErrAlreadyApplied
	}
	c.applied = true

	contents, err := c.Contents(os.ReadFile)
	if err != nil {
		return err
	}
	for _, cr := range c.creates {
		if _, err := os.Stat(cr.Path); err == nil {
			return &ApplyError{File: cr.Path, Err: errors.New("file already exists")}
		}
	}

	type backup struct {
		path    string
		content []byte
		mode    os.FileMode
		created bool
	}
	var written []backup
	rollback := func() {
		for i := len(written) - 1; i >= 0; i-- {
			b := written[i]
			var rerr error
			if b.created {
				rerr = os.Remove(b.path)
			} else {
				rerr = os.WriteFile(b.path, b.content, b.mode)
			}
			if rerr != nil && c.logger != nil {
				c.logger.Error("rollback failed", "file", b.path, "err", rerr)
			}
		}
	}

	for _, s := range c.scripts {
		info, err := os.Stat(s.File)
		if err != nil {
			rollback()
			return &ApplyError{File: s.File, Err: err, RolledBack: len(written) > 0}
		}
		original, err := os.ReadFile(s.File)
		if err != nil {
			rollback()
			return &ApplyError{File: s.File, Err: err, RolledBack: len(written) > 0}
		}
		if err := os.WriteFile(s.File, contents[s.File], info.Mode().Perm()); err != nil {
			rollback()
			return &ApplyError{File: s.File, Err: err, RolledBack: len(written) > 0}
		}
		written = append(written, backup{path: s.File, content: original, mode: info.Mode().Perm()})
	}
	for _, cr := range c.creates {
		if err := os.WriteFile(cr.Path, contents[cr.Path], 0o644); err != nil {
			rollback()
			return &ApplyError{File: cr.Path, Err: err, RolledBack: len(written) > 0}
		}
		written = append(written, backup{path: cr.Path, created: true})
	}

	if c.logger != nil {
		c.logger.Info("change applied", "change", c.Name, "files", len(written))
	}
	return nil
}

// Preview renders a textual summary of the change: per file, every edit
// with its category, old and new text.
func (c *Composite) Preview() string {
	if c.IsEmpty() {
		return "No changes to preview\n"
	}

	var preview strings.Builder
	edits := 0
	for _, s := range c.scripts {
		edits += s.Len()
	}
	fmt.Fprintf(&preview, "%s: %d edits across %d files, %d new files\n\n", c.Name, edits, len(c.scripts), len(c.creates))

	for _, s := range c.scripts {
		fmt.Fprintf(&preview, "File: %s\n", s.File)
		preview.WriteString(strings.Repeat("-", len(s.File)+6) + "\n")
		for i, e := range s.Edits() {
			fmt.Fprintf(&preview, "%d. %s\n", i+1, e.Category)
			fmt.Fprintf(&preview, "   Position: %d-%d\n", e.Start, e.End)
			if e.OldText != "" {
				fmt.Fprintf(&preview, "   - %s\n", truncateText(e.OldText))
			}
			if e.NewText != "" {
				fmt.Fprintf(&preview, "   + %s\n", truncateText(e.NewText))
			}
		}
		preview.WriteString("\n")
	}
	for _, cr := range c.creates {
		fmt.Fprintf(&preview, "New file: %s\n", cr.Path)
		preview.WriteString(strings.Repeat("-", len(cr.Path)+10) + "\n")
		preview.Write(cr.Content)
		if len(cr.Content) > 0 && cr.Content[len(cr.Content)-1] != '\n' {
			preview.WriteString("\n")
		}
		preview.WriteString("\n")
	}
	return preview.String()
}

// truncateText collapses whitespace and truncates text for single-line display.
func truncateText(text string) string {
	const maxLength = 80
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxLength {
		return text[:maxLength-3] + "..."
	}
	return text
}
