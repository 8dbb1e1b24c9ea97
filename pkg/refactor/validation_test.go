package refactor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/types"
)

const accountSrc = `package bank

import "sync"

type Base struct{ ID int }

type Account struct {
	Base
	Owner   string ` + "`json:\"owner\"`" + `
	Balance int
	balance int
	mu      sync.Mutex
	SetOwner int
}

func (a *Account) Total() int { return a.Balance }
`

func buildModel(t *testing.T, src string, desc *types.ExtractStructDescriptor) (*analysis.Directory, *Model) {
	t.Helper()
	e := testEngine()
	dir, _ := loadModule(t, e, map[string]string{"bank/bank.go": src})
	pkg, err := dir.Package(desc.Package)
	require.NoError(t, err)
	td, err := dir.LookupType(pkg, desc.Type)
	require.NoError(t, err)
	m, status := BuildModel(dir, td, desc, nil)
	require.False(t, status.HasFatal(), status.String())
	return dir, m
}

func account(accessors bool, fields ...types.FieldSelection) *types.ExtractStructDescriptor {
	return &types.ExtractStructDescriptor{
		Package:         "example.com/m/bank",
		Type:            "Account",
		ClassName:       "Details",
		CreateAccessors: accessors,
		Fields:          fields,
	}
}

func include(name string) types.FieldSelection {
	return types.FieldSelection{Name: name, Include: true}
}

func TestValidator_ValidateName(t *testing.T) {
	v := NewValidator(testLogger())
	testCases := []struct {
		name  string
		fatal bool
	}{
		{"Details", false},
		{"_private", false},
		{"ünicode", false},
		{"", true},
		{"_", true},
		{"type", true},
		{"range", true},
		{"9lives", true},
		{"has-dash", true},
		{"has space", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.fatal, v.ValidateName(tc.name, "type name").HasFatal())
		})
	}
}

func TestValidator_ValidateFields(t *testing.T) {
	v := NewValidator(testLogger())

	t.Run("empty selection", func(t *testing.T) {
		_, m := buildModel(t, accountSrc, account(false))
		assert.True(t, v.ValidateFields(m).HasFatal())
	})

	t.Run("unknown field", func(t *testing.T) {
		_, m := buildModel(t, accountSrc, account(false, include("Missing")))
		status := v.ValidateFields(m)
		require.True(t, status.HasFatal())
		assert.Equal(t, "Account has no field Missing", status.EntriesWith(types.SeverityFatal)[0].Message)
	})

	t.Run("duplicate stored names", func(t *testing.T) {
		// With accessors Balance and balance both store as balance.
		_, m := buildModel(t, accountSrc, account(true, include("Balance"), include("balance")))
		status := v.ValidateFields(m)
		assert.Equal(t, types.SeverityOK, status.Severity(), "stored names are made unique")

		_, m = buildModel(t, accountSrc, account(false, include("Owner"), types.FieldSelection{Name: "Balance", NewName: "Owner", Include: true}))
		status = v.ValidateFields(m)
		assert.Equal(t, types.SeverityError, status.Severity())
	})

	t.Run("invalid new name", func(t *testing.T) {
		_, m := buildModel(t, accountSrc, account(false, types.FieldSelection{Name: "Owner", NewName: "func", Include: true}))
		assert.True(t, v.ValidateFields(m).HasFatal())
	})
}

func TestValidator_ValidateModifiers(t *testing.T) {
	v := NewValidator(testLogger())
	_, m := buildModel(t, accountSrc, account(false, include("Base"), include("Owner"), include("mu"), include("Balance")))

	base, _ := m.Field("Base")
	assert.True(t, v.ValidateModifiers(base).HasFatal())

	owner, _ := m.Field("Owner")
	status := v.ValidateModifiers(owner)
	assert.Equal(t, types.SeverityWarning, status.Severity())
	require.Len(t, status.Entries, 1)
	assert.True(t, strings.HasSuffix(status.Entries[0].File, "bank.go"), status.Entries[0].File)
	assert.Equal(t, 9, status.Entries[0].Line)
	assert.Equal(t, 2, status.Entries[0].Column)

	mu, _ := m.Field("mu")
	assert.Equal(t, types.SeverityWarning, v.ValidateModifiers(mu).Severity())

	balance, _ := m.Field("Balance")
	assert.Equal(t, types.SeverityOK, v.ValidateModifiers(balance).Severity())
}

func TestValidator_ValidateAll(t *testing.T) {
	v := NewValidator(testLogger())

	t.Run("ok", func(t *testing.T) {
		dir, m := buildModel(t, accountSrc, account(false, include("Balance")))
		assert.False(t, v.ValidateAll(dir, m).HasError())
	})

	t.Run("type name taken", func(t *testing.T) {
		desc := account(false, include("Balance"))
		desc.ClassName = "Base"
		dir, m := buildModel(t, accountSrc, desc)
		assert.True(t, v.ValidateAll(dir, m).HasFatal())
	})

	t.Run("holder collides with method", func(t *testing.T) {
		desc := account(false, include("Balance"))
		desc.FieldName = "Total"
		dir, m := buildModel(t, accountSrc, desc)
		assert.True(t, v.ValidateAll(dir, m).HasFatal())
	})

	t.Run("holder shadows promoted field", func(t *testing.T) {
		desc := account(false, include("Balance"))
		desc.FieldName = "ID"
		dir, m := buildModel(t, accountSrc, desc)
		status := v.ValidateAll(dir, m)
		require.True(t, status.HasFatal())
		assert.Contains(t, status.String(), "Account already has a promoted field named ID")
	})

	t.Run("holder may reuse a moved field name", func(t *testing.T) {
		desc := account(false, include("Balance"))
		desc.FieldName = "Balance"
		dir, m := buildModel(t, accountSrc, desc)
		assert.False(t, v.ValidateAll(dir, m).HasFatal())
	})

	t.Run("accessor collides", func(t *testing.T) {
		// The setter of Owner and the getter of SetOwner share a name.
		dir, m := buildModel(t, accountSrc, account(true, include("Owner"), include("SetOwner")))
		assert.True(t, v.ValidateAll(dir, m).HasFatal())
	})

	t.Run("nothing moved", func(t *testing.T) {
		dir, m := buildModel(t, accountSrc, account(false, types.FieldSelection{Name: "Balance"}))
		assert.Equal(t, types.SeverityOK, v.ValidateAll(dir, m).Severity())
	})

	t.Run("new file must be a go file", func(t *testing.T) {
		desc := account(false, include("Balance"))
		desc.CreateTopLevel = true
		desc.FileName = "details.txt"
		dir, m := buildModel(t, accountSrc, desc)
		assert.True(t, v.ValidateAll(dir, m).HasFatal())
	})

	t.Run("new file must not exist", func(t *testing.T) {
		desc := account(false, include("Balance"))
		desc.CreateTopLevel = true
		desc.FileName = "bank.go"
		dir, m := buildModel(t, accountSrc, desc)
		assert.True(t, v.ValidateAll(dir, m).HasFatal())
	})
}

func TestValidator_ValidateCrossPackage(t *testing.T) {
	v := NewValidator(testLogger())
	desc := account(false, include("balance"))
	desc.ClassName = "details"
	dir, m := buildModel(t, accountSrc, desc)

	fi, _ := m.Field("balance")
	groups := []*types.SearchResultGroup{
		{File: "/other/use.go", Occurrences: []types.Occurrence{
			{Binding: fi.Binding, File: "/other/use.go", Kind: types.ReadAccess, Line: 3},
			{Binding: fi.Binding, File: "/other/use.go", Kind: types.InitializerAccess, Line: 4},
		}},
		{File: m.Container.File.Path, Occurrences: []types.Occurrence{
			{Binding: fi.Binding, File: m.Container.File.Path, Kind: types.ReadAccess},
		}},
	}
	external := func(path string) bool { return path != m.Container.File.Path }

	status := v.ValidateCrossPackage(m, groups, external)
	assert.Len(t, status.EntriesWith(types.SeverityError), 2)
	assert.Len(t, status.EntriesFor("/other/use.go"), 2)

	assert.False(t, v.ValidateConstructor(dir, m).HasFatal())
}
