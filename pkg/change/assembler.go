package change

import (
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/mamaar/goextract/pkg/types"
)

// FileCreation is a new file of a composite change.
type FileCreation struct {
	Path    string
	Content []byte
}

// Assembler merges the edit scripts produced for the declaring file and the
// referencing files into one script per file. Two scripts for the same file
// are merged; overlapping regions abort the assembly.
type Assembler struct {
	scripts map[string]*EditScript
	creates map[string]*FileCreation
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{
		scripts: make(map[string]*EditScript),
		creates: make(map[string]*FileCreation),
	}
}

// Add merges script into the script of its file.
func (a *Assembler) Add(script *EditScript) error {
	if script == nil || script.IsEmpty() {
		return nil
	}
	file := filepath.Clean(script.File)
	if _, ok := a.creates[file]; ok {
		return types.NewInvariantError(file, "edits for a file that is being created")
	}
	existing, ok := a.scripts[file]
	if !ok {
		existing = NewEditScript(file)
		a.scripts[file] = existing
	}
	clone := script.Clone()
	clone.File = file
	return existing.Merge(clone)
}

// AddCreate registers a new file.
func (a *Assembler) AddCreate(path string, content []byte) error {
	path = filepath.Clean(path)
	if _, ok := a.creates[path]; ok {
		return types.NewInvariantError(path, "file created twice")
	}
	if _, ok := a.scripts[path]; ok {
		return types.NewInvariantError(path, "file created and edited")
	}
	a.creates[path] = &FileCreation{Path: path, Content: append([]byte(nil), content...)}
	return nil
}

// Script returns the merged script of file, if any.
func (a *Assembler) Script(file string) (*EditScript, bool) {
	s, ok := a.scripts[filepath.Clean(file)]
	return s, ok
}

// Files returns every edited or created file, sorted.
func (a *Assembler) Files() []string {
	var files []string
	for f := range a.scripts {
		files = append(files, f)
	}
	for f := range a.creates {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Build returns the composite change. The assembler must not be used
// afterwards.
func (a *Assembler) Build(name string, descriptor *types.PersistableDescriptor, logger *slog.Logger) *Composite {
	c := &Composite{Name: name, descriptor: descriptor, logger: logger}
	for _, s := range a.scripts {
		if !s.IsEmpty() {
			c.scripts = append(c.scripts, s)
		}
	}
	for _, cr := range a.creates {
		c.creates = append(c.creates, *cr)
	}
	sort.Slice(c.scripts, func(i, j int) bool { return c.scripts[i].File < c.scripts[j].File })
	sort.Slice(c.creates, func(i, j int) bool { return c.creates[i].Path < c.creates[j].Path })
	return c
}
