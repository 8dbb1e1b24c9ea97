package types

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Refactoring identifiers stored in persisted descriptors.
const (
	ExtractStructID    = "goextract.extract-struct"
	ExtractInterfaceID = "goextract.extract-interface"
)

// Attribute keys of a PersistableDescriptor. These strings are part of the
// replay format and never change.
const (
	AttrElement    = "element"
	AttrName       = "name"
	AttrField      = "field"
	AttrFields     = "fields"
	AttrAccessors  = "accessors"
	AttrTopLevel   = "toplevel"
	AttrFile       = "file"
	AttrMethods    = "methods"
	AttrAssert     = "assert"
	AttrCandidates = "candidates"
)

// FieldSelection is the per-field choice of an extraction.
type FieldSelection struct {
	Name    string `json:"name" yaml:"name"`
	NewName string `json:"new_name,omitempty" yaml:"new_name,omitempty"`
	Include bool   `json:"include" yaml:"include"`
}

// ExtractStructDescriptor is the intent record of an extract-struct
// refactoring: move selected fields of Type into a new struct ClassName held
// by a field FieldName of the original type.
type ExtractStructDescriptor struct {
	Package         string           `json:"package" yaml:"package"` // import path, directory, or package name
	Type            string           `json:"type" yaml:"type"`
	ClassName       string           `json:"class_name,omitempty" yaml:"class_name,omitempty"`
	FieldName       string           `json:"field_name,omitempty" yaml:"field_name,omitempty"`
	Fields          []FieldSelection `json:"fields" yaml:"fields"`
	CreateAccessors bool             `json:"create_accessors" yaml:"create_accessors"`
	CreateTopLevel  bool             `json:"create_top_level" yaml:"create_top_level"`
	FileName        string           `json:"file_name,omitempty" yaml:"file_name,omitempty"`
}

// Included returns the selected fields in the order they were given.
func (d *ExtractStructDescriptor) Included() []FieldSelection {
	var out []FieldSelection
	for _, f := range d.Fields {
		if f.Include {
			out = append(out, f)
		}
	}
	return out
}

// Selection returns the selection for the named field.
func (d *ExtractStructDescriptor) Selection(name string) (FieldSelection, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSelection{}, false
}

// Attributes encodes the descriptor into the stable attribute map.
func (d *ExtractStructDescriptor) Attributes(importPath string) map[string]string {
	pairs := make([]string, 0, len(d.Fields))
	for _, f := range d.Included() {
		newName := f.NewName
		if newName == "" {
			newName = f.Name
		}
		pairs = append(pairs, f.Name+":"+newName)
	}
	attrs := map[string]string{
		AttrElement:   importPath + "." + d.Type,
		AttrName:      d.ClassName,
		AttrField:     d.FieldName,
		AttrFields:    strings.Join(pairs, ","),
		AttrAccessors: strconv.FormatBool(d.CreateAccessors),
		AttrTopLevel:  strconv.FormatBool(d.CreateTopLevel),
	}
	if d.FileName != "" {
		attrs[AttrFile] = d.FileName
	}
	return attrs
}

// ExtractInterfaceDescriptor is the intent record of an extract-interface
// refactoring over the method set of Type.
type ExtractInterfaceDescriptor struct {
	Package       string   `json:"package" yaml:"package"`
	Type          string   `json:"type" yaml:"type"`
	InterfaceName string   `json:"interface_name" yaml:"interface_name"`
	Methods       []string `json:"methods" yaml:"methods"`
	FileName      string   `json:"file_name,omitempty" yaml:"file_name,omitempty"`
	AddAssertion  bool     `json:"add_assertion" yaml:"add_assertion"`
	Candidates    []string `json:"candidates,omitempty" yaml:"candidates,omitempty"`
}

// Attributes encodes the descriptor into the stable attribute map.
func (d *ExtractInterfaceDescriptor) Attributes(importPath string) map[string]string {
	attrs := map[string]string{
		AttrElement: importPath + "." + d.Type,
		AttrName:    d.InterfaceName,
		AttrMethods: strings.Join(d.Methods, ","),
		AttrAssert:  strconv.FormatBool(d.AddAssertion),
	}
	if d.FileName != "" {
		attrs[AttrFile] = d.FileName
	}
	if len(d.Candidates) > 0 {
		attrs[AttrCandidates] = strings.Join(d.Candidates, ",")
	}
	return attrs
}

// PersistableDescriptor is the replayable record of a refactoring.
type PersistableDescriptor struct {
	ID          string            `json:"id" yaml:"id"`
	Project     string            `json:"project" yaml:"project"`
	Description string            `json:"description" yaml:"description"`
	Comment     string            `json:"comment,omitempty" yaml:"comment,omitempty"`
	Attributes  map[string]string `json:"attributes" yaml:"attributes"`
}

// ExtractStruct decodes an extract-struct descriptor from the attribute map.
func (p *PersistableDescriptor) ExtractStruct() (*ExtractStructDescriptor, error) {
	if p.ID != ExtractStructID {
		return nil, p.mismatch(ExtractStructID)
	}
	pkg, typ, err := p.element()
	if err != nil {
		return nil, err
	}
	d := &ExtractStructDescriptor{
		Package:   pkg,
		Type:      typ,
		ClassName: p.Attributes[AttrName],
		FieldName: p.Attributes[AttrField],
		FileName:  p.Attributes[AttrFile],
	}
	if d.CreateAccessors, err = p.boolAttr(AttrAccessors); err != nil {
		return nil, err
	}
	if d.CreateTopLevel, err = p.boolAttr(AttrTopLevel); err != nil {
		return nil, err
	}
	for _, pair := range splitList(p.Attributes[AttrFields]) {
		oldName, newName, _ := strings.Cut(pair, ":")
		d.Fields = append(d.Fields, FieldSelection{Name: oldName, NewName: newName, Include: true})
	}
	return d, nil
}

// ExtractInterface decodes an extract-interface descriptor from the attribute map.
func (p *PersistableDescriptor) ExtractInterface() (*ExtractInterfaceDescriptor, error) {
	if p.ID != ExtractInterfaceID {
		return nil, p.mismatch(ExtractInterfaceID)
	}
	pkg, typ, err := p.element()
	if err != nil {
		return nil, err
	}
	d := &ExtractInterfaceDescriptor{
		Package:       pkg,
		Type:          typ,
		InterfaceName: p.Attributes[AttrName],
		Methods:       splitList(p.Attributes[AttrMethods]),
		FileName:      p.Attributes[AttrFile],
		Candidates:    splitList(p.Attributes[AttrCandidates]),
	}
	if d.AddAssertion, err = p.boolAttr(AttrAssert); err != nil {
		return nil, err
	}
	return d, nil
}

func (p *PersistableDescriptor) element() (string, string, error) {
	elem := p.Attributes[AttrElement]
	i := strings.LastIndex(elem, ".")
	if i <= 0 || i == len(elem)-1 {
		return "", "", &RefactorError{
			Type:    InvalidOperation,
			Message: fmt.Sprintf("descriptor attribute %q is not a qualified type name: %q", AttrElement, elem),
		}
	}
	return elem[:i], elem[i+1:], nil
}

func (p *PersistableDescriptor) boolAttr(key string) (bool, error) {
	v, ok := p.Attributes[key]
	if !ok || v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &RefactorError{
			Type:    InvalidOperation,
			Message: fmt.Sprintf("descriptor attribute %q: %v", key, err),
			Cause:   err,
		}
	}
	return b, nil
}

func (p *PersistableDescriptor) mismatch(want string) error {
	return &RefactorError{
		Type:    InvalidOperation,
		Message: fmt.Sprintf("descriptor id %q, expected %q", p.ID, want),
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadDescriptor reads a persisted descriptor from a YAML file.
func LoadDescriptor(path string) (*PersistableDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &RefactorError{
			Type:    FileSystemError,
			Message: fmt.Sprintf("failed to read descriptor: %v", err),
			File:    path,
			Cause:   err,
		}
	}
	var d PersistableDescriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, &RefactorError{
			Type:    ParseError,
			Message: fmt.Sprintf("failed to parse descriptor: %v", err),
			File:    path,
			Cause:   err,
		}
	}
	if d.Attributes == nil {
		d.Attributes = map[string]string{}
	}
	return &d, nil
}

// Save writes the descriptor as YAML.
func (p *PersistableDescriptor) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &RefactorError{
			Type:    FileSystemError,
			Message: fmt.Sprintf("failed to write descriptor: %v", err),
			File:    path,
			Cause:   err,
		}
	}
	return nil
}
