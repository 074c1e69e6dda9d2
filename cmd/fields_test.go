package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/farmndvi/internal/store"
)

const fieldsYAML = `
fields:
  - id: north
    name: North 40
    crop: corn
    polygon:
      - {lat: 40.0, lng: -95.0}
      - {lat: 40.0, lng: -94.99}
      - {lat: 40.01, lng: -94.99}
  - id: south
    name: South Pivot
    polygon:
      - {lat: 39.99, lng: -95.0}
      - {lat: 39.99, lng: -94.99}
      - {lat: 39.98, lng: -94.99}
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	cfg = testConfig(t)
	st, err := openFieldStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestImportFields_YAML(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	path := writeFile(t, "fields.yaml", fieldsYAML)

	n, err := importFields(ctx, st, "farm-9", path, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fields, err := st.ListFields(ctx, "farm-9")
	require.NoError(t, err)
	require.Len(t, fields, 2)
	for _, f := range fields {
		require.NotNil(t, f.AreaHectares, "import should fill in area for %s", f.ID)
		assert.Greater(t, *f.AreaHectares, 0.0)
	}
}

func TestImportFields_Replace(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := importFields(ctx, st, "farm-9", writeFile(t, "all.yaml", fieldsYAML), false)
	require.NoError(t, err)

	one := `
fields:
  - id: east
    name: East
    polygon:
      - {lat: 41.0, lng: -95.0}
      - {lat: 41.0, lng: -94.99}
      - {lat: 41.01, lng: -94.99}
`
	n, err := importFields(ctx, st, "farm-9", writeFile(t, "one.yaml", one), true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fields, err := st.ListFields(ctx, "farm-9")
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "east", fields[0].ID)
}

func TestImportFields_Errors(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := importFields(ctx, st, "farm-9", writeFile(t, "fields.txt", "nope"), false)
	assert.ErrorContains(t, err, "unsupported")

	_, err = importFields(ctx, st, "farm-9", writeFile(t, "empty.yaml", "fields: []\n"), false)
	assert.ErrorContains(t, err, "no polygon fields")
}

func TestListFields_Table(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	_, err := importFields(ctx, st, "farm-9", writeFile(t, "fields.yaml", fieldsYAML), false)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, listFields(ctx, st, "farm-9", &buf))

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "North 40")
	assert.Contains(t, out, "South Pivot")
	assert.Contains(t, out, "Corn")
}

func TestImportFields_FromURL(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(fieldsYAML))
	}))
	defer srv.Close()

	n, err := importFields(ctx, st, "farm-9", srv.URL+"/boundaries/fields.yaml", false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
