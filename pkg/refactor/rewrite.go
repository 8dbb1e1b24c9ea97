package refactor

import (
	"go/ast"
	"strings"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/change"
)

// declarationScript builds the edits of the declaring file: removal of the
// moved fields, insertion of the holder field and, unless the type goes to a
// new file, insertion of the extracted type after the container.
//
// A field line loses only the moved names when some names stay; it is
// removed as a whole, doc comment included, when every name moves. The
// holder field follows the last line that lost a name.
func declarationScript(dir *analysis.Directory, m *Model) (*change.EditScript, error) {
	file := m.Container.File
	src := file.Content
	offset := func(n ast.Node) (int, int) {
		return dir.Position(n.Pos()).Offset, dir.Position(n.End()).Offset
	}
	script := change.NewEditScript(file.Path)

	var lines []*ast.Field
	moved := make(map[*ast.Field][]string)
	for _, fi := range m.Moved() {
		if _, ok := moved[fi.line]; !ok {
			lines = append(lines, fi.line)
		}
		moved[fi.line] = append(moved[fi.line], fi.Name)
	}

	holderAt := -1
	holderText := ""
	for i, line := range lines {
		start, end := offset(line)
		if line.Doc != nil {
			start, _ = offset(line.Doc)
		}
		if line.Comment != nil {
			_, end = offset(line.Comment)
		}
		lineStart, lineEnd, clean := lineSpan(src, start, end)
		indent := string(src[lineStart:start])
		if line.Doc != nil {
			indent = leadingSpace(src, lineStart)
		}

		if len(moved[line]) == len(line.Names) {
			if err := script.Add(change.Edit{
				Start:    lineStart,
				End:      lineEnd,
				OldText:  string(src[lineStart:lineEnd]),
				Category: change.RemoveField,
			}); err != nil {
				return nil, err
			}
			if i == len(lines)-1 {
				holderAt = lineEnd
				if clean {
					holderText = indent + holderSource(m) + "\n"
				} else {
					holderText = holderSource(m) + inlineSeparator(src, lineStart, lineEnd)
				}
			}
			continue
		}

		// Keep the names that stay, in their order.
		var kept []string
		gone := make(map[string]bool)
		for _, n := range moved[line] {
			gone[n] = true
		}
		for _, ident := range line.Names {
			if !gone[ident.Name] {
				kept = append(kept, ident.Name)
			}
		}
		first, _ := offset(line.Names[0])
		_, last := offset(line.Names[len(line.Names)-1])
		if err := script.Add(change.Edit{
			Start:    first,
			End:      last,
			OldText:  string(src[first:last]),
			NewText:  strings.Join(kept, ", "),
			Category: change.RemoveField,
		}); err != nil {
			return nil, err
		}
		if i == len(lines)-1 {
			if clean {
				holderAt = lineEnd
				holderText = indent + holderSource(m) + "\n"
			} else {
				_, holderAt = offset(line)
				holderText = "; " + holderSource(m)
			}
		}
	}

	if holderAt < 0 {
		// Nothing removed: the holder opens the field list.
		open := dir.Position(m.Container.Struct.Fields.Opening).Offset + 1
		holderAt = open
		holderText = "\n\t" + holderSource(m)
	}
	if err := script.Add(change.Edit{Start: holderAt, End: holderAt, NewText: holderText, Category: change.AddHolderField}); err != nil {
		return nil, err
	}

	if !m.TopLevel {
		_, end := offset(m.Container.GenDecl)
		if err := script.Add(change.Edit{Start: end, End: end, NewText: "\n\n" + strings.TrimRight(typeSource(m), "\n"), Category: change.AddType}); err != nil {
			return nil, err
		}
	}
	return script, nil
}

// lineSpan widens [start, end) to whole lines when the range is alone on its
// lines. The widened range includes the trailing newline. Otherwise the
// range is returned unchanged, extended over a following semicolon.
func lineSpan(src []byte, start, end int) (int, int, bool) {
	ls := start
	for ls > 0 && (src[ls-1] == ' ' || src[ls-1] == '\t') {
		ls--
	}
	le := end
	for le < len(src) && (src[le] == ' ' || src[le] == '\t') {
		le++
	}
	if (ls == 0 || src[ls-1] == '\n') && le < len(src) && src[le] == '\n' {
		return ls, le + 1, true
	}
	if le < len(src) && src[le] == ';' {
		le++
		for le < len(src) && src[le] == ' ' {
			le++
		}
		return start, le, false
	}
	return start, end, false
}

// inlineSeparator returns the separator that followed a removed inline field.
func inlineSeparator(src []byte, start, end int) string {
	if strings.Contains(string(src[start:end]), ";") {
		return "; "
	}
	return ""
}

func leadingSpace(src []byte, lineStart int) string {
	i := lineStart
	for i < len(src) && (src[i] == ' ' || src[i] == '\t') {
		i++
	}
	return string(src[lineStart:i])
}
