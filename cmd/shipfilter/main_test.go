package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipfilter/internal/filterspec"
)

func TestReadIntent(t *testing.T) {
	intent, err := readIntent(strings.NewReader(`{"root":{"logic":"and","conditions":[{"semantic_key":"northeast"}]}}`), "-")
	require.NoError(t, err)
	require.Len(t, intent.Root.Conditions, 1)
	assert.Equal(t, filterspec.LogicAnd, intent.Root.Logic)

	_, err = readIntent(strings.NewReader(`{"root":`), "-")
	assert.Error(t, err)
}

func TestReadSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"state":"VARCHAR","weight":"DOUBLE"}`), 0o600))
	schema, err := readSchema(path)
	require.NoError(t, err)
	assert.True(t, schema.Has("state"))
	assert.Equal(t, filterspec.SchemaSignature(schema.Columns), schema.Signature)

	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
	_, err = readSchema(path)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = newLogger("loud")
	assert.Error(t, err)
}

func TestSessionOrNew(t *testing.T) {
	assert.Equal(t, "ops", sessionOrNew("ops"))
	a, b := sessionOrNew(""), sessionOrNew("")
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b, "each run gets its own session")
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestPrintJSONReportsWriteErrors(t *testing.T) {
	err := printJSON(brokenWriter{}, filterspec.ResolvedFilterSpec{Status: filterspec.StatusUnresolved})
	assert.Error(t, err)
}
