package designdoc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/melodium/internal/builder"
	"github.com/alexisbeaulieu97/melodium/internal/convfn"
	"github.com/alexisbeaulieu97/melodium/internal/primitives"
)

const identityDoc = `entry: demo/Identity
inputs:
  - name: in
    type: i64
outputs:
  - name: out
    type: i64
treatments:
  - label: c
    id: std/demo/copy
connections:
  - from:
      port: in
    to:
      label: c
      port: in
  - from:
      label: c
      port: out
    to:
      port: out
`

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "design.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndCompileIdentityDoc(t *testing.T) {
	t.Parallel()

	doc, err := Load(writeDoc(t, identityDoc))
	require.NoError(t, err)
	assert.Equal(t, "demo/Identity", doc.Entry)

	reg := builder.NewRegistry(nil, convfn.NewTable())
	require.NoError(t, primitives.RegisterAll(reg))

	desc, err := doc.Compile(reg)
	require.NoError(t, err)
	require.Len(t, desc.Inputs, 1)
	require.Len(t, desc.Outputs, 1)
	require.True(t, desc.IsComposite())

	id, err := doc.ID()
	require.NoError(t, err)
	assert.Equal(t, desc.ID(), id)
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	t.Parallel()

	_, err := Load(writeDoc(t, "entry: demo/Broken\n"))
	require.Error(t, err)
}

func TestCompileRejectsUnknownParameter(t *testing.T) {
	t.Parallel()

	docText := `entry: demo/BadParam
treatments:
  - label: a
    id: std/demo/static_add
    params:
      - name: not_a_param
        value: 3
connections:
  - from:
      port: in
    to:
      label: a
      port: in
`
	doc, err := Load(writeDoc(t, docText))
	require.NoError(t, err)

	reg := builder.NewRegistry(nil, convfn.NewTable())
	require.NoError(t, primitives.RegisterAll(reg))

	_, err = doc.Compile(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_a_param")
}
