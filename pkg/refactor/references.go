package refactor

import (
	"fmt"
	"go/ast"
	"go/token"
	gotypes "go/types"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/change"
	"github.com/mamaar/goextract/pkg/types"
)

// replacement is one rewritten region of a referencing file. Replacements
// nest: an assignment rewritten into a setter call contains the reads of its
// right-hand side. A parent renders the regions of its children through
// renderer.text, so nested reads are substituted before the outer text is
// built.
type replacement struct {
	start, end int
	category   change.Category
	build      func(r *renderer, n *replacement) (string, error)

	children []*replacement
	text     string
	rendered bool
}

// renderer turns a forest of replacements into edits of one file.
type renderer struct {
	file string
	src  []byte
}

// render builds the text of n once; later calls return the same text.
func (r *renderer) render(n *replacement) (string, error) {
	if n.rendered {
		return n.text, nil
	}
	text, err := n.build(r, n)
	if err != nil {
		return "", err
	}
	n.text, n.rendered = text, true
	return text, nil
}

// text returns the source of [a, b) with the children of n inside the range
// substituted.
func (r *renderer) text(n *replacement, a, b int) (string, error) {
	var sb strings.Builder
	last := a
	for _, c := range n.children {
		if c.end <= a || c.start >= b {
			continue
		}
		if c.start < a || c.end > b {
			return "", types.NewInvariantError(r.file, "replacement [%d,%d) straddles [%d,%d)", c.start, c.end, a, b)
		}
		sb.Write(r.src[last:c.start])
		t, err := r.render(c)
		if err != nil {
			return "", err
		}
		sb.WriteString(t)
		last = c.end
	}
	sb.Write(r.src[last:b])
	return sb.String(), nil
}

// forest arranges replacements by containment. Partially overlapping
// regions and two replacements of the same region are invariant violations.
func (r *renderer) forest(nodes []*replacement) ([]*replacement, error) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].start != nodes[j].start {
			return nodes[i].start < nodes[j].start
		}
		return nodes[i].end > nodes[j].end
	})
	var roots, stack []*replacement
	for _, n := range nodes {
		for len(stack) > 0 && stack[len(stack)-1].end <= n.start {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, n)
			stack = append(stack, n)
			continue
		}
		top := stack[len(stack)-1]
		switch {
		case top.start == n.start && top.end == n.end:
			return nil, types.NewInvariantError(r.file, "occurrence at offset %d rewritten twice", n.start)
		case n.end > top.end:
			return nil, &change.OverlapError{
				File:     r.file,
				Existing: change.Edit{Start: top.start, End: top.end, Category: top.category},
				Added:    change.Edit{Start: n.start, End: n.end, Category: n.category},
			}
		}
		top.children = append(top.children, n)
		stack = append(stack, n)
	}
	return roots, nil
}

// script renders every root and checks that no replacement was dropped.
func (r *renderer) script(nodes []*replacement) (*change.EditScript, error) {
	roots, err := r.forest(nodes)
	if err != nil {
		return nil, err
	}
	script := change.NewEditScript(r.file)
	for _, n := range roots {
		text, err := r.render(n)
		if err != nil {
			return nil, err
		}
		if err := script.Add(change.Edit{
			Start:    n.start,
			End:      n.end,
			OldText:  string(r.src[n.start:n.end]),
			NewText:  text,
			Category: n.category,
		}); err != nil {
			return nil, err
		}
	}
	for _, n := range nodes {
		if !n.rendered {
			return nil, types.NewInvariantError(r.file, "occurrence at offset %d dropped", n.start)
		}
	}
	return script, nil
}

// referenceRewriter rewrites the references to the moved fields. Every
// position it works with comes from the committed workspace.
type referenceRewriter struct {
	dir    *analysis.Directory
	m      *Model
	logger *slog.Logger
}

func newReferenceRewriter(dir *analysis.Directory, m *Model, logger *slog.Logger) *referenceRewriter {
	return &referenceRewriter{dir: dir, m: m, logger: logger}
}

// fileRewrite is the state of one referencing file.
type fileRewrite struct {
	rw       *referenceRewriter
	file     *types.File
	info     *gotypes.Info
	src      []byte
	external bool
	status   *types.RefactoringStatus
	ledger   *ImportLedger
	nodes    []*replacement

	literals []*ast.CompositeLit
	keyed    map[*ast.CompositeLit][]*ast.KeyValueExpr
}

// rewrite consumes the occurrence group and the positional literal group of
// one file (either may be nil) and returns the edit script of the file. The
// returned error is an invariant violation or a failure of this file only;
// callers tell them apart with types.IsInvariantViolation.
func (rw *referenceRewriter) rewrite(refs, lits *types.SearchResultGroup, ledger *ImportLedger) (*change.EditScript, *types.RefactoringStatus, error) {
	var path string
	for _, g := range []*types.SearchResultGroup{refs, lits} {
		if g == nil {
			continue
		}
		if err := g.Consume(); err != nil {
			return nil, nil, err
		}
		path = g.File
	}
	file := rw.dir.File(path)
	if file == nil {
		return nil, nil, &types.RefactorError{Type: types.FileSystemError, Message: "file is not part of the workspace", File: path}
	}
	info := rw.dir.InfoOf(file)
	if info == nil {
		return nil, nil, &types.RefactorError{Type: types.CompilationError, Message: "file has no type information", File: path}
	}

	fr := &fileRewrite{
		rw:     rw,
		file:   file,
		info:   info,
		src:    file.Content,
		status: types.NewStatus(),
		ledger: ledger,
		keyed:  make(map[*ast.CompositeLit][]*ast.KeyValueExpr),
	}
	fr.external = file.AST.Name.Name != rw.m.Package().Name || file.Package.ImportPath != rw.m.Package().ImportPath

	if refs != nil {
		for _, occ := range refs.Occurrences {
			if err := fr.occurrence(occ); err != nil {
				return nil, nil, err
			}
		}
	}
	for _, lit := range fr.literals {
		fr.keyedLiteral(lit)
	}
	if lits != nil {
		for _, occ := range lits.Occurrences {
			if err := fr.positionalLiteral(occ); err != nil {
				return nil, nil, err
			}
		}
	}

	r := &renderer{file: file.Path, src: fr.src}
	script, err := r.script(fr.nodes)
	if err != nil {
		return nil, nil, err
	}
	rw.logger.Debug("rewrote references", "file", file.Path, "edits", script.Len())
	return script, fr.status, nil
}

func (fr *fileRewrite) offset(p token.Pos) int {
	return fr.rw.dir.Position(p).Offset
}

func (fr *fileRewrite) pos(offset int) token.Pos {
	tf := fr.rw.dir.Workspace().FileSet.File(fr.file.AST.Pos())
	return tf.Pos(offset)
}

func (fr *fileRewrite) location(occ types.Occurrence) types.Location {
	return types.Location{File: occ.File, Line: occ.Line, Column: occ.Column}
}

func (fr *fileRewrite) locationAt(p token.Pos) types.Location {
	pos := fr.rw.dir.Position(p)
	return types.Location{File: fr.file.Path, Line: pos.Line, Column: pos.Column}
}

// path returns the enclosing nodes of the occurrence, innermost first.
func (fr *fileRewrite) path(occ types.Occurrence) ([]ast.Node, error) {
	start := fr.pos(occ.Offset)
	nodes, _ := astutil.PathEnclosingInterval(fr.file.AST, start, fr.pos(occ.End()))
	if len(nodes) == 0 {
		return nil, types.NewInvariantError(fr.file.Path, "no syntax at offset %d", occ.Offset)
	}
	return nodes, nil
}

func (fr *fileRewrite) occurrence(occ types.Occurrence) error {
	fi, ok := fr.rw.m.Field(occ.Binding.Name)
	if !ok || !fi.Include || !fi.Binding.Equal(occ.Binding) {
		return types.NewInvariantError(fr.file.Path, "occurrence of %s is not a moved field", occ.Binding)
	}
	switch occ.Kind {
	case types.DeclarationSite:
		return nil
	case types.InitializerAccess:
		return fr.collectKeyed(occ)
	}

	path, err := fr.path(occ)
	if err != nil {
		return err
	}
	ident, ok := path[0].(*ast.Ident)
	if !ok || len(path) < 2 {
		return types.NewInvariantError(fr.file.Path, "occurrence at offset %d is not an identifier", occ.Offset)
	}
	sel, ok := path[1].(*ast.SelectorExpr)
	if !ok || sel.Sel != ident {
		fr.status.AddError(fmt.Sprintf("reference to %s in an unsupported position", fi.Name), fr.location(occ))
		return nil
	}
	if caseLabel(path) {
		fr.status.AddError(fmt.Sprintf("reference to %s in a switch case label; the rewritten label is no longer a constant", fi.Name), fr.location(occ))
	}

	if occ.Kind == types.WriteAccess && fr.rw.m.Accessors {
		fr.write(occ, fi, path, sel)
		return nil
	}
	if fr.rw.m.Accessors {
		if msg := fr.unsafeAccessorUse(path, fi); msg != "" {
			fr.status.AddError(msg, fr.location(occ))
			return nil
		}
	}

	prefix := fr.embeddedPrefix(sel)
	access := fi.Stored
	category := change.ReplaceWrite
	if occ.Kind != types.WriteAccess {
		category = change.ReplaceRead
		if fr.rw.m.Accessors {
			access = fi.Getter + "()"
		}
	}
	text := prefix + fr.rw.m.HolderName + "." + access
	fr.nodes = append(fr.nodes, &replacement{
		start:    occ.Offset,
		end:      occ.End(),
		category: category,
		build: func(*renderer, *replacement) (string, error) {
			return text, nil
		},
	})
	return nil
}

// write rewrites the statement assigning the field into a setter call.
func (fr *fileRewrite) write(occ types.Occurrence, fi *FieldInfo, path []ast.Node, sel *ast.SelectorExpr) {
	var stmt ast.Node
	for _, n := range path[2:] {
		if _, ok := n.(*ast.ParenExpr); ok {
			continue
		}
		stmt = n
		break
	}

	recvStart, recvEnd := fr.offset(sel.X.Pos()), fr.offset(sel.X.End())
	holder := fr.embeddedPrefix(sel) + fr.rw.m.HolderName
	if containsCall(sel.X) && occ.Compound {
		fr.status.AddWarning(fmt.Sprintf("receiver of %s is evaluated twice after the rewrite", fi.Name), fr.location(occ))
	}
	receiver := func(r *renderer, n *replacement) (string, error) {
		x, err := r.text(n, recvStart, recvEnd)
		if err != nil {
			return "", err
		}
		return x + "." + holder, nil
	}

	switch s := stmt.(type) {
	case *ast.AssignStmt:
		if len(s.Lhs) != 1 || len(s.Rhs) != 1 {
			fr.status.AddError(fmt.Sprintf("%s is assigned in a multi-value assignment; rewrite it through %s by hand", fi.Name, fi.Setter), fr.location(occ))
			return
		}
		rhs := s.Rhs[0]
		rhsStart, rhsEnd := fr.offset(rhs.Pos()), fr.offset(rhs.End())
		_, paren := rhs.(*ast.BinaryExpr)
		op := strings.TrimSuffix(s.Tok.String(), "=")
		fr.nodes = append(fr.nodes, &replacement{
			start:    fr.offset(s.Pos()),
			end:      fr.offset(s.End()),
			category: change.ReplaceWrite,
			build: func(r *renderer, n *replacement) (string, error) {
				recv, err := receiver(r, n)
				if err != nil {
					return "", err
				}
				value, err := r.text(n, rhsStart, rhsEnd)
				if err != nil {
					return "", err
				}
				if s.Tok == token.ASSIGN {
					return fmt.Sprintf("%s.%s(%s)", recv, fi.Setter, value), nil
				}
				if paren {
					value = "(" + value + ")"
				}
				return fmt.Sprintf("%s.%s(%s.%s() %s %s)", recv, fi.Setter, recv, fi.Getter, op, value), nil
			},
		})
	case *ast.IncDecStmt:
		op := "+"
		if s.Tok == token.DEC {
			op = "-"
		}
		fr.nodes = append(fr.nodes, &replacement{
			start:    fr.offset(s.Pos()),
			end:      fr.offset(s.End()),
			category: change.ReplaceWrite,
			build: func(r *renderer, n *replacement) (string, error) {
				recv, err := receiver(r, n)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%s.%s(%s.%s() %s 1)", recv, fi.Setter, recv, fi.Getter, op), nil
			},
		})
	default:
		fr.status.AddError(fmt.Sprintf("%s is assigned by a range clause; rewrite it through %s by hand", fi.Name, fi.Setter), fr.location(occ))
	}
}

// embeddedPrefix returns the explicit embedded path needed when the holder
// name would be shadowed at the receiver of sel, e.g. "Rectangle." for
// square.width where Square embeds Rectangle and declares its own holder
// name. It returns "" when the promoted access resolves to the holder.
func (fr *fileRewrite) embeddedPrefix(sel *ast.SelectorExpr) string {
	selection := fr.info.Selections[sel]
	if selection == nil {
		return ""
	}
	index := selection.Index()
	depth := len(index)
	if depth <= 1 {
		return ""
	}
	// A member named like the holder at the same or a shallower depth hides
	// it; a nil object with an index means an ambiguous selector.
	_, found, _ := gotypes.LookupFieldOrMethod(selection.Recv(), true, fr.rw.m.Container.Object.Pkg(), fr.rw.m.HolderName)
	if found == nil || len(found) > depth {
		return ""
	}

	var names []string
	t := selection.Recv()
	for _, i := range index[:depth-1] {
		if ptr, ok := t.Underlying().(*gotypes.Pointer); ok {
			t = ptr.Elem()
		}
		st, ok := t.Underlying().(*gotypes.Struct)
		if !ok || i >= st.NumFields() {
			return ""
		}
		f := st.Field(i)
		names = append(names, f.Name())
		t = f.Type()
	}
	return strings.Join(names, ".") + "."
}

// unsafeAccessorUse reports reads that a getter cannot replace: the getter
// returns a copy, so the result is not addressable.
func (fr *fileRewrite) unsafeAccessorUse(path []ast.Node, fi *FieldInfo) string {
	var cur ast.Node = path[1]
	i := 2
	parent := func() ast.Node {
		for i < len(path) {
			if _, ok := path[i].(*ast.ParenExpr); ok {
				cur = path[i]
				i++
				continue
			}
			return path[i]
		}
		return nil
	}
	var t gotypes.Type
	if fi.obj != nil {
		t = fi.obj.Type()
	}

	switch p := parent().(type) {
	case *ast.UnaryExpr:
		if p.Op == token.AND {
			return fmt.Sprintf("address of %s is taken; a getter result is not addressable", fi.Name)
		}
	case *ast.SelectorExpr:
		sel := fr.info.Selections[p]
		if sel == nil || p.X != cur {
			return ""
		}
		if sel.Kind() == gotypes.MethodVal {
			sig, _ := sel.Obj().Type().(*gotypes.Signature)
			if sig != nil && sig.Recv() != nil && isPointer(sig.Recv().Type()) && t != nil && !isPointer(t) && !gotypes.IsInterface(t) {
				return fmt.Sprintf("pointer method %s is called on %s; a getter result is not addressable", p.Sel.Name, fi.Name)
			}
			return ""
		}
		if t != nil && !isPointer(t) && fr.writtenThrough(path, i) {
			return fmt.Sprintf("%s is modified through its value; the getter returns a copy", fi.Name)
		}
	case *ast.IndexExpr:
		if t != nil && isArray(t) && p.X == cur && fr.writtenThrough(path, i) {
			return fmt.Sprintf("element of array %s is modified; the getter returns a copy", fi.Name)
		}
	case *ast.SliceExpr:
		if t != nil && isArray(t) && p.X == cur {
			return fmt.Sprintf("array %s is sliced; a getter result is not addressable", fi.Name)
		}
	}
	return ""
}

// writtenThrough reports whether the value-typed selector or index chain
// starting at path[i] ends as an assignment target or an address-of operand.
func (fr *fileRewrite) writtenThrough(path []ast.Node, i int) bool {
	cur := path[i]
	for j := i + 1; j < len(path); j++ {
		switch p := path[j].(type) {
		case *ast.ParenExpr:
		case *ast.SelectorExpr:
			if p.X != cur {
				return false
			}
			if sel := fr.info.Selections[p]; sel == nil || sel.Kind() != gotypes.FieldVal {
				return false
			}
			if tv, ok := fr.info.Types[cur.(ast.Expr)]; ok && isPointer(tv.Type) {
				return false
			}
		case *ast.IndexExpr:
			if p.X != cur {
				return false
			}
			if tv, ok := fr.info.Types[cur.(ast.Expr)]; !ok || !isArray(tv.Type) {
				return false
			}
		case *ast.AssignStmt:
			for _, lhs := range p.Lhs {
				if lhs == cur {
					return true
				}
			}
			return false
		case *ast.IncDecStmt:
			return true
		case *ast.UnaryExpr:
			return p.Op == token.AND
		case *ast.RangeStmt:
			return p.Key == cur || p.Value == cur
		default:
			return false
		}
		cur = path[j]
	}
	return false
}

func (fr *fileRewrite) collectKeyed(occ types.Occurrence) error {
	path, err := fr.path(occ)
	if err != nil {
		return err
	}
	if len(path) < 3 {
		return types.NewInvariantError(fr.file.Path, "initializer at offset %d outside a composite literal", occ.Offset)
	}
	kv, ok1 := path[1].(*ast.KeyValueExpr)
	lit, ok2 := path[2].(*ast.CompositeLit)
	if !ok1 || !ok2 {
		return types.NewInvariantError(fr.file.Path, "initializer at offset %d outside a composite literal", occ.Offset)
	}
	if _, seen := fr.keyed[lit]; !seen {
		fr.literals = append(fr.literals, lit)
	}
	fr.keyed[lit] = append(fr.keyed[lit], kv)
	return nil
}

// keyedLiteral folds the moved elements of a keyed literal into one holder
// element placed where the last moved element was.
func (fr *fileRewrite) keyedLiteral(lit *ast.CompositeLit) {
	m := fr.rw.m
	moved := make(map[*ast.KeyValueExpr]*FieldInfo)
	var order []*FieldInfo
	for _, kv := range fr.keyed[lit] {
		fi, _ := m.Field(kv.Key.(*ast.Ident).Name)
		moved[kv] = fi
		order = append(order, fi)
	}
	if fr.external && !m.TypeExported() {
		// Reported by the cross-package check.
		return
	}

	ctor := m.ConstructorName() != ""
	supplied := make(map[string]bool)
	for _, fi := range order {
		supplied[fi.Name] = true
		if fi.HasSiblingReference() {
			ctor = false
		}
	}
	for _, p := range m.Parameters() {
		if p.Constructor && !supplied[p.Name] {
			ctor = false
		}
	}
	if !ctor && fr.external {
		for _, fi := range order {
			if !token.IsExported(fi.Stored) {
				fr.status.AddError(fmt.Sprintf("%s is initialized in another package but %s.%s is not exported", m.ContainerName(), m.TypeName, fi.Stored), fr.locationAt(lit.Lbrace))
				return
			}
		}
	}

	first, last := -1, -1
	for i, elt := range lit.Elts {
		if kv, ok := elt.(*ast.KeyValueExpr); ok && moved[kv] != nil {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	sep := fr.separator(lit.Elts)
	qual := fr.qualifier()
	elts := lit.Elts[first : last+1]
	fr.nodes = append(fr.nodes, &replacement{
		start:    fr.offset(elts[0].Pos()),
		end:      fr.offset(elts[len(elts)-1].End()),
		category: change.ReplaceInitializer,
		build: func(r *renderer, n *replacement) (string, error) {
			values := make(map[string]string)
			var parts []string
			for i, elt := range elts {
				kv, _ := elt.(*ast.KeyValueExpr)
				if fi := moved[kv]; kv != nil && fi != nil {
					v, err := r.text(n, fr.offset(kv.Value.Pos()), fr.offset(kv.Value.End()))
					if err != nil {
						return "", err
					}
					values[fi.Name] = v
				} else {
					t, err := r.text(n, fr.offset(elt.Pos()), fr.offset(elt.End()))
					if err != nil {
						return "", err
					}
					parts = append(parts, t)
				}
				if i == len(elts)-1 {
					parts = append(parts, m.HolderName+": "+fr.holderValue(qual, ctor, order, values))
				}
			}
			return strings.Join(parts, sep), nil
		},
	})
}

// positionalLiteral rebuilds the element list of an unkeyed literal in the
// new field order.
func (fr *fileRewrite) positionalLiteral(occ types.Occurrence) error {
	m := fr.rw.m
	var lit *ast.CompositeLit
	nodes, _ := astutil.PathEnclosingInterval(fr.file.AST, fr.pos(occ.Offset), fr.pos(occ.Offset+1))
	for _, n := range nodes {
		if cl, ok := n.(*ast.CompositeLit); ok && fr.offset(cl.Lbrace) == occ.Offset {
			lit = cl
			break
		}
	}
	if lit == nil {
		return types.NewInvariantError(fr.file.Path, "no composite literal at offset %d", occ.Offset)
	}
	if len(lit.Elts) != len(m.slots) {
		fr.status.AddError(fmt.Sprintf("literal of %s lists %d values for %d fields", m.ContainerName(), len(lit.Elts), len(m.slots)), fr.location(occ))
		return nil
	}
	if fr.external && !m.TypeExported() {
		return nil
	}

	var order []*FieldInfo
	ctor := m.ConstructorName() != ""
	for _, s := range m.slots {
		if s.field != nil && s.field.Include {
			order = append(order, s.field)
			if s.field.HasSiblingReference() {
				ctor = false
			}
		}
	}
	holderAt := m.holderSlot()
	sep := fr.separator(lit.Elts)
	qual := fr.qualifier()
	fr.nodes = append(fr.nodes, &replacement{
		start:    fr.offset(lit.Elts[0].Pos()),
		end:      fr.offset(lit.Elts[len(lit.Elts)-1].End()),
		category: change.ReplaceInitializer,
		build: func(r *renderer, n *replacement) (string, error) {
			values := make(map[string]string)
			var kept []string
			holderIndex := 0
			for i, elt := range lit.Elts {
				t, err := r.text(n, fr.offset(elt.Pos()), fr.offset(elt.End()))
				if err != nil {
					return "", err
				}
				if s := m.slots[i]; s.field != nil && s.field.Include {
					values[s.field.Name] = t
				} else {
					kept = append(kept, t)
				}
				if i == holderAt {
					holderIndex = len(kept)
				}
			}
			parts := append([]string(nil), kept[:holderIndex]...)
			parts = append(parts, fr.holderValue(qual, ctor, order, values))
			parts = append(parts, kept[holderIndex:]...)
			return strings.Join(parts, sep), nil
		},
	})
	return nil
}

// holderValue renders the value of the holder field: a constructor call, or
// a keyed literal of the extracted type.
func (fr *fileRewrite) holderValue(qual string, ctor bool, order []*FieldInfo, values map[string]string) string {
	m := fr.rw.m
	if ctor {
		var args []string
		for _, p := range m.Parameters() {
			if p.Constructor {
				args = append(args, values[p.Name])
			}
		}
		return qual + m.ConstructorName() + "(" + strings.Join(args, ", ") + ")"
	}
	var elts []string
	for _, fi := range order {
		elts = append(elts, fi.Stored+": "+values[fi.Name])
	}
	return qual + m.TypeName + "{" + strings.Join(elts, ", ") + "}"
}

// qualifier returns the package qualifier of the extracted type in this
// file, registering an import when the file does not import the package.
func (fr *fileRewrite) qualifier() string {
	if !fr.external {
		return ""
	}
	pkg := fr.rw.m.Package()
	for _, spec := range fr.file.AST.Imports {
		p, err := strconv.Unquote(spec.Path.Value)
		if err != nil || p != pkg.ImportPath {
			continue
		}
		if spec.Name == nil {
			return pkg.Name + "."
		}
		switch spec.Name.Name {
		case ".":
			return ""
		case "_":
			continue
		}
		return spec.Name.Name + "."
	}
	fr.ledger.Add(pkg.ImportPath, pkg.Name)
	return pkg.Name + "."
}

// separator returns the text between the first two elements of a literal,
// so rebuilt element lists keep their layout.
func (fr *fileRewrite) separator(elts []ast.Expr) string {
	if len(elts) < 2 {
		return ", "
	}
	sep := string(fr.src[fr.offset(elts[0].End()):fr.offset(elts[1].Pos())])
	if strings.TrimSpace(sep) != "," {
		return ", "
	}
	return sep
}

// initializerIndex reports, per moved field, whether a literal initializes
// it from an expression reading another moved field.
func initializerIndex(dir *analysis.Directory, m *Model, refs, lits []*types.SearchResultGroup) (map[string]bool, error) {
	index := make(map[string]bool)
	moved := make(map[string]bool)
	for _, fi := range m.Moved() {
		moved[fi.Name] = true
	}
	offset := func(p token.Pos) int { return dir.Position(p).Offset }

	reads := make(map[string][]types.Occurrence)
	for _, g := range refs {
		for _, occ := range g.Occurrences {
			if occ.Kind == types.ReadAccess {
				reads[g.File] = append(reads[g.File], occ)
			}
		}
	}
	siblingRead := func(file, name string, start, end int) bool {
		for _, occ := range reads[file] {
			if occ.Binding.Name != name && moved[occ.Binding.Name] && occ.Offset >= start && occ.End() <= end {
				return true
			}
		}
		return false
	}
	fileOf := func(path string) (*types.File, *token.File, error) {
		f := dir.File(path)
		if f == nil {
			return nil, nil, types.NewInvariantError(path, "search result outside the workspace")
		}
		return f, dir.Workspace().FileSet.File(f.AST.Pos()), nil
	}

	for _, g := range refs {
		var f *types.File
		var tf *token.File
		for _, occ := range g.Occurrences {
			if occ.Kind != types.InitializerAccess {
				continue
			}
			if f == nil {
				var err error
				if f, tf, err = fileOf(g.File); err != nil {
					return nil, err
				}
			}
			nodes, _ := astutil.PathEnclosingInterval(f.AST, tf.Pos(occ.Offset), tf.Pos(occ.End()))
			if len(nodes) < 2 {
				continue
			}
			kv, ok := nodes[1].(*ast.KeyValueExpr)
			if !ok {
				continue
			}
			if siblingRead(g.File, occ.Binding.Name, offset(kv.Value.Pos()), offset(kv.Value.End())) {
				index[occ.Binding.Name] = true
			}
		}
	}

	for _, g := range lits {
		f, tf, err := fileOf(g.File)
		if err != nil {
			return nil, err
		}
		for _, occ := range g.Occurrences {
			p := tf.Pos(occ.Offset)
			nodes, _ := astutil.PathEnclosingInterval(f.AST, p, p)
			for _, n := range nodes {
				lit, ok := n.(*ast.CompositeLit)
				if !ok || lit.Lbrace != p || len(lit.Elts) != len(m.slots) {
					continue
				}
				for i, elt := range lit.Elts {
					s := m.slots[i]
					if s.field == nil || !s.field.Include {
						continue
					}
					if siblingRead(g.File, s.field.Name, offset(elt.Pos()), offset(elt.End())) {
						index[s.field.Name] = true
					}
				}
				break
			}
		}
	}
	return index, nil
}

// caseLabel reports whether the innermost expression of path is part of a
// switch case label.
func caseLabel(path []ast.Node) bool {
	for i := 1; i < len(path); i++ {
		switch n := path[i].(type) {
		case *ast.CaseClause:
			for _, e := range n.List {
				if e == path[i-1] {
					return true
				}
			}
			return false
		case ast.Stmt, *ast.FuncLit:
			return false
		}
	}
	return false
}

func containsCall(expr ast.Expr) bool {
	found := false
	ast.Inspect(expr, func(n ast.Node) bool {
		if _, ok := n.(*ast.CallExpr); ok {
			found = true
		}
		return !found
	})
	return found
}

func isPointer(t gotypes.Type) bool {
	_, ok := t.Underlying().(*gotypes.Pointer)
	return ok
}

func isArray(t gotypes.Type) bool {
	_, ok := t.Underlying().(*gotypes.Array)
	return ok
}
