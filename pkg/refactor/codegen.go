package refactor

import (
	"fmt"
	"go/ast"
	"go/token"
	"strings"
)

// typeSource renders the declaration of the extracted type: the struct with
// the moved fields in declaration order, the constructor and, when enabled,
// the accessors.
func typeSource(m *Model) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// %s holds fields extracted from %s.\n", m.TypeName, m.ContainerName())
	fmt.Fprintf(&b, "type %s struct {\n", m.TypeName)
	var lastLine *ast.Field
	for _, fi := range m.Moved() {
		// A doc comment is carried once per original field line.
		if fi.Doc != "" && fi.line != lastLine && wholeLineMoved(m, fi) {
			for _, l := range strings.Split(fi.Doc, "\n") {
				b.WriteString("\t" + strings.TrimSpace(l) + "\n")
			}
		}
		lastLine = fi.line
		b.WriteString("\t" + fi.Stored + " " + fi.Type)
		if fi.Tag != "" {
			b.WriteString(" " + fi.Tag)
		}
		if fi.Comment != "" {
			b.WriteString(" " + fi.Comment)
		}
		b.WriteString("\n")
	}
	b.WriteString("}\n")

	params := m.Parameters()
	if ctor := m.ConstructorName(); ctor != "" {
		var args, inits []string
		used := make(map[string]bool)
		for _, p := range params {
			if !p.Constructor {
				continue
			}
			name := paramName(p.Stored, m)
			for base, i := name, 2; used[name]; i++ {
				name = fmt.Sprintf("%s%d", base, i)
			}
			used[name] = true
			args = append(args, name+" "+p.Type)
			inits = append(inits, p.Stored+": "+name)
		}
		fmt.Fprintf(&b, "\nfunc %s(%s) %s {\n", ctor, strings.Join(args, ", "), m.TypeName)
		fmt.Fprintf(&b, "\treturn %s{%s}\n}\n", m.TypeName, strings.Join(inits, ", "))
	}

	if m.Accessors {
		recv := receiverName(m.TypeName)
		for _, p := range params {
			fmt.Fprintf(&b, "\nfunc (%s %s) %s() %s {\n\treturn %s.%s\n}\n", recv, m.TypeName, p.Getter, p.Type, recv, p.Stored)
			arg := setterParam(p.Stored, recv, m)
			fmt.Fprintf(&b, "\nfunc (%s *%s) %s(%s %s) {\n\t%s.%s = %s\n}\n", recv, m.TypeName, p.Setter, arg, p.Type, recv, p.Stored, arg)
		}
	}
	return b.String()
}

// fileSource renders the new file of a top-level extraction.
func fileSource(m *Model) string {
	var refs [][]importRef
	for _, fi := range m.Moved() {
		refs = append(refs, fi.imports)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "package %s\n\n", m.Package().Name)
	b.WriteString(importBlock(mergeImports(refs...)))
	b.WriteString(typeSource(m))
	return b.String()
}

// holderSource renders the holder field declaration.
func holderSource(m *Model) string {
	return m.HolderName + " " + m.TypeName
}

func wholeLineMoved(m *Model, fi *FieldInfo) bool {
	for _, ident := range fi.line.Names {
		other, ok := m.Field(ident.Name)
		if ident.Name != "_" && (!ok || !other.Include) {
			return false
		}
	}
	return true
}

// paramName returns a parameter name for a stored field that does not
// shadow the extracted type.
func paramName(stored string, m *Model) string {
	name := lowerFirst(stored)
	if name == m.TypeName || token.IsKeyword(name) || isPredeclared(name) {
		name += "_"
	}
	return name
}

// setterParam names the setter argument; it must differ from the receiver.
func setterParam(stored, recv string, m *Model) string {
	arg := paramName(stored, m)
	if arg == recv {
		return "value"
	}
	return arg
}

func receiverName(typeName string) string {
	r := []rune(lowerFirst(typeName))
	if len(r) == 0 {
		return "x"
	}
	return string(r[0])
}

func isPredeclared(name string) bool {
	switch name {
	case "bool", "byte", "complex64", "complex128", "error", "float32", "float64",
		"int", "int8", "int16", "int32", "int64", "rune", "string",
		"uint", "uint8", "uint16", "uint32", "uint64", "uintptr", "any",
		"true", "false", "iota", "nil", "len", "cap", "new", "make", "append",
		"copy", "delete", "panic", "recover", "print", "println", "close",
		"complex", "real", "imag", "min", "max", "clear":
		return true
	}
	return false
}
