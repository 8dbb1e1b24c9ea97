package types

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractStructDescriptor_Replay(t *testing.T) {
	d := &ExtractStructDescriptor{
		Package:   "example.com/shapes",
		Type:      "Rectangle",
		ClassName: "Dimensions",
		FieldName: "dimensions",
		Fields: []FieldSelection{
			{Name: "width", NewName: "w", Include: true},
			{Name: "color", Include: false},
			{Name: "height", Include: true},
		},
		CreateAccessors: true,
	}

	attrs := d.Attributes("example.com/shapes")
	assert.Equal(t, "example.com/shapes.Rectangle", attrs[AttrElement])
	assert.Equal(t, "width:w,height:height", attrs[AttrFields])
	assert.Equal(t, "true", attrs[AttrAccessors])
	assert.Equal(t, "false", attrs[AttrTopLevel])
	assert.NotContains(t, attrs, AttrFile)

	p := &PersistableDescriptor{ID: ExtractStructID, Project: "example.com/shapes", Attributes: attrs}
	back, err := p.ExtractStruct()
	require.NoError(t, err)
	assert.Equal(t, "example.com/shapes", back.Package)
	assert.Equal(t, "Rectangle", back.Type)
	assert.Equal(t, "Dimensions", back.ClassName)
	assert.True(t, back.CreateAccessors)
	assert.Equal(t, []FieldSelection{
		{Name: "width", NewName: "w", Include: true},
		{Name: "height", NewName: "height", Include: true},
	}, back.Fields)
}

func TestExtractInterfaceDescriptor_Replay(t *testing.T) {
	d := &ExtractInterfaceDescriptor{
		Package:       "example.com/shapes",
		Type:          "Circle",
		InterfaceName: "Shape",
		Methods:       []string{"Area", "Perimeter"},
		AddAssertion:  true,
		Candidates:    []string{"Square"},
	}
	p := &PersistableDescriptor{ID: ExtractInterfaceID, Attributes: d.Attributes("example.com/shapes")}

	back, err := p.ExtractInterface()
	require.NoError(t, err)
	assert.Equal(t, d, back)
}

func TestPersistableDescriptor_Errors(t *testing.T) {
	testCases := []struct {
		name  string
		desc  PersistableDescriptor
		build func(p *PersistableDescriptor) error
	}{
		{
			name:  "wrong id",
			desc:  PersistableDescriptor{ID: ExtractInterfaceID, Attributes: map[string]string{AttrElement: "a.B"}},
			build: func(p *PersistableDescriptor) error { _, err := p.ExtractStruct(); return err },
		},
		{
			name:  "unqualified element",
			desc:  PersistableDescriptor{ID: ExtractStructID, Attributes: map[string]string{AttrElement: "Rectangle"}},
			build: func(p *PersistableDescriptor) error { _, err := p.ExtractStruct(); return err },
		},
		{
			name: "bad bool",
			desc: PersistableDescriptor{ID: ExtractInterfaceID, Attributes: map[string]string{
				AttrElement: "a.B", AttrAssert: "maybe",
			}},
			build: func(p *PersistableDescriptor) error { _, err := p.ExtractInterface(); return err },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.build(&tc.desc)
			require.Error(t, err)
			var re *RefactorError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, InvalidOperation, re.Type)
		})
	}
}

func TestPersistableDescriptor_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extract.yaml")
	p := &PersistableDescriptor{
		ID:          ExtractStructID,
		Project:     "example.com/shapes",
		Description: "Extract struct 'Dimensions'",
		Comment:     "Fields: width, height",
		Attributes:  map[string]string{AttrElement: "example.com/shapes.Rectangle", AttrName: "Dimensions"},
	}
	require.NoError(t, p.Save(path))

	loaded, err := LoadDescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, p, loaded)

	_, err = LoadDescriptor(filepath.Join(t.TempDir(), "missing.yaml"))
	var re *RefactorError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, FileSystemError, re.Type)
}
