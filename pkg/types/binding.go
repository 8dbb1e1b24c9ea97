package types

import "fmt"

// BindingKind classifies what a Binding resolves to.
type BindingKind int

const (
	TypeBinding BindingKind = iota
	FieldBinding
	MethodBinding
	FuncBinding
	VarBinding
	ConstBinding
)

// String returns the string representation of a BindingKind
func (k BindingKind) String() string {
	switch k {
	case TypeBinding:
		return "Type"
	case FieldBinding:
		return "Field"
	case MethodBinding:
		return "Method"
	case FuncBinding:
		return "Func"
	case VarBinding:
		return "Var"
	case ConstBinding:
		return "Const"
	default:
		return "Unknown"
	}
}

// Binding is the resolved identity of a declaration. It is a plain value so
// it can be copied freely between files and between type-checking passes:
// two bindings are the same declaration when their keys are equal.
type Binding struct {
	Kind    BindingKind
	Package string // import path of the declaring package
	Owner   string // declaring type for fields and methods
	Name    string
	File    string
	Offset  int
}

// Key returns the identity of the binding: qualified name plus declaring scope.
func (b Binding) Key() string {
	if b.Owner != "" {
		return b.Package + "." + b.Owner + "." + b.Name
	}
	return b.Package + "." + b.Name
}

// Equal reports whether both bindings denote the same declaration.
func (b Binding) Equal(other Binding) bool {
	return b.Kind == other.Kind && b.Key() == other.Key()
}

// IsZero reports whether the binding is unset.
func (b Binding) IsZero() bool {
	return b.Name == ""
}

func (b Binding) String() string {
	return fmt.Sprintf("%s %s", b.Kind, b.Key())
}

// OccurrenceKind is the syntactic role of one reference to a binding.
type OccurrenceKind int

const (
	DeclarationSite OccurrenceKind = iota
	ReadAccess
	WriteAccess
	InitializerAccess // key of a keyed composite literal element
)

// String returns the string representation of an OccurrenceKind
func (k OccurrenceKind) String() string {
	switch k {
	case DeclarationSite:
		return "declaration"
	case ReadAccess:
		return "read"
	case WriteAccess:
		return "write"
	case InitializerAccess:
		return "initializer"
	default:
		return "unknown"
	}
}

// Occurrence is one textual reference to a binding.
type Occurrence struct {
	Binding Binding
	File    string
	Offset  int
	Length  int
	Line    int
	Column  int
	Kind    OccurrenceKind

	// Compound is set on writes that also read the old value (op= and ++/--).
	Compound bool
}

// End returns the byte offset just past the occurrence.
func (o Occurrence) End() int {
	return o.Offset + o.Length
}

// SearchResultGroup holds every occurrence of the queried bindings inside
// one file. A group is consumed exactly once by the reference rewriter.
type SearchResultGroup struct {
	File        string
	Package     string
	Occurrences []Occurrence
	consumed    bool
}

// Consume marks the group as processed. Consuming twice is an invariant
// violation: it would rewrite the same occurrences twice.
func (g *SearchResultGroup) Consume() error {
	if g.consumed {
		return NewInvariantError(g.File, "search result group consumed twice")
	}
	g.consumed = true
	return nil
}

// Consumed reports whether the group was already processed.
func (g *SearchResultGroup) Consumed() bool {
	return g.consumed
}
