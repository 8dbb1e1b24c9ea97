// Package change models source transformations as per-file edit scripts and
// assembles them into one composite change that is applied atomically.
package change

import (
	"fmt"
	"sort"

	"github.com/mamaar/goextract/pkg/types"
)

// Category tags an edit with its purpose. Categories drive change
// descriptions and make conflicting edits easy to diagnose.
type Category string

const (
	RemoveField        Category = "remove field"
	AddHolderField     Category = "add holder field"
	AddType            Category = "add type"
	AddSupertype       Category = "add supertype"
	ReplaceRead        Category = "replace reference-read"
	ReplaceWrite       Category = "replace reference-write"
	ReplaceInitializer Category = "replace initializer"
	AddImport          Category = "add import"
	RemoveImport       Category = "remove import"
	CreateFile         Category = "create file"
)

// Edit replaces the byte range [Start, End) of a file with NewText. An edit
// with Start == End is an insertion. OldText, when set, must match the
// replaced range at apply time.
type Edit struct {
	Start    int
	End      int
	OldText  string
	NewText  string
	Category Category
}

// IsInsert reports whether the edit only inserts text.
func (e Edit) IsInsert() bool { return e.Start == e.End }

func (e Edit) overlaps(o Edit) bool {
	return e.Start < o.End && o.Start < e.End
}

func (e Edit) String() string {
	return fmt.Sprintf("%s [%d,%d)", e.Category, e.Start, e.End)
}

// OverlapError reports two edits of one script that touch the same bytes.
// It is an internal invariant violation, never a user error.
type OverlapError struct {
	File     string
	Existing Edit
	Added    Edit
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%s: overlapping edits %s and %s", e.File, e.Existing, e.Added)
}

// Unwrap exposes the error as an invariant violation.
func (e *OverlapError) Unwrap() error {
	return types.NewInvariantError(e.File, "overlapping edits %s and %s", e.Existing, e.Added)
}

// EditScript is the ordered set of non-overlapping edits of one file.
// Offsets refer to the file content the script was computed against.
type EditScript struct {
	File  string
	edits []Edit
}

// NewEditScript creates an empty script for file.
func NewEditScript(file string) *EditScript {
	return &EditScript{File: file}
}

// Add inserts an edit keeping the script sorted by position. Insertions at
// the boundary of another edit are allowed; insertions at the same offset
// keep the order in which they were added.
func (s *EditScript) Add(e Edit) error {
	if e.Start < 0 || e.End < e.Start {
		return types.NewInvariantError(s.File, "invalid edit bounds %s", e)
	}
	for _, existing := range s.edits {
		if existing.overlaps(e) {
			return &OverlapError{File: s.File, Existing: existing, Added: e}
		}
	}
	i := sort.Search(len(s.edits), func(i int) bool {
		x := s.edits[i]
		return x.Start > e.Start || (x.Start == e.Start && x.End > e.End)
	})
	s.edits = append(s.edits, Edit{})
	copy(s.edits[i+1:], s.edits[i:])
	s.edits[i] = e
	return nil
}

// Merge adds every edit of other. The first overlap aborts the merge.
func (s *EditScript) Merge(other *EditScript) error {
	if other == nil {
		return nil
	}
	if other.File != s.File {
		return types.NewInvariantError(s.File, "cannot merge edit script of %s", other.File)
	}
	for _, e := range other.edits {
		if err := s.Add(e); err != nil {
			return err
		}
	}
	return nil
}

// Edits returns the edits in position order.
func (s *EditScript) Edits() []Edit {
	return append([]Edit(nil), s.edits...)
}

// Len returns the number of edits.
func (s *EditScript) Len() int { return len(s.edits) }

// IsEmpty reports whether the script has no edits.
func (s *EditScript) IsEmpty() bool { return len(s.edits) == 0 }

// Clone returns an independent copy of the script.
func (s *EditScript) Clone() *EditScript {
	return &EditScript{File: s.File, edits: s.Edits()}
}

// Categories counts the edits per category.
func (s *EditScript) Categories() map[Category]int {
	out := make(map[Category]int)
	for _, e := range s.edits {
		out[e.Category]++
	}
	return out
}

// Apply returns content with every edit applied. It fails when an edit is
// out of bounds or its OldText does not match.
func (s *EditScript) Apply(content []byte) ([]byte, error) {
	out := make([]byte, 0, len(content))
	last := 0
	for _, e := range s.edits {
		if e.End > len(content) {
			return nil, &types.RefactorError{
				Type:    types.InvalidOperation,
				Message: fmt.Sprintf("edit %s out of bounds (content length %d)", e, len(content)),
				File:    s.File,
			}
		}
		if e.OldText != "" && string(content[e.Start:e.End]) != e.OldText {
			return nil, &types.RefactorError{
				Type:    types.InvalidOperation,
				Message: fmt.Sprintf("old text mismatch at %s: expected %q, found %q", e, e.OldText, content[e.Start:e.End]),
				File:    s.File,
			}
		}
		out = append(out, content[last:e.Start]...)
		out = append(out, e.NewText...)
		last = e.End
	}
	return append(out, content[last:]...), nil
}
