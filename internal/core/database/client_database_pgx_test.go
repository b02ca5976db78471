package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	dsn, err := buildDSN("postgres://u:p@db:5432/docsift", "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/docsift", dsn)

	_, err = buildDSN("postgres://u:p@db:5432/docsift", filepath.Join(t.TempDir(), "missing.crt"))
	assert.ErrorContains(t, err, "ssl cert not accessible")

	cert := filepath.Join(t.TempDir(), "root.crt")
	require.NoError(t, os.WriteFile(cert, []byte("cert"), 0o600))
	dsn, err = buildDSN("postgres://u:p@db:5432/docsift?application_name=docsift", cert)
	require.NoError(t, err)
	assert.Contains(t, dsn, "sslmode=verify-ca")
	assert.Contains(t, dsn, "application_name=docsift")
	assert.Contains(t, dsn, "sslrootcert=")
}

func TestDuplicateLockKey(t *testing.T) {
	inv := "2b1c7a3e-0d7e-4c55-9d53-3f3f6f1d2a10"
	empty := ""

	assert.Equal(t, "docsift:abc", duplicateLockKey("abc", nil))
	assert.Equal(t, "docsift:abc", duplicateLockKey("abc", &empty))
	assert.Equal(t, "docsift:abc:"+inv, duplicateLockKey("abc", &inv))
	assert.NotEqual(t, duplicateLockKey("abc", nil), duplicateLockKey("abd", nil))
}

func TestSearchFilter(t *testing.T) {
	arg, ok := searchFilter("")
	assert.True(t, ok)
	assert.Nil(t, arg)

	arg, ok = searchFilter("2b1c7a3e-0d7e-4c55-9d53-3f3f6f1d2a10")
	assert.True(t, ok)
	assert.Equal(t, "2b1c7a3e-0d7e-4c55-9d53-3f3f6f1d2a10", arg)

	_, ok = searchFilter("case-42")
	assert.False(t, ok)
}

func TestBootstrapSQLRendersDimension(t *testing.T) {
	script, err := bootstrapSQL(384)
	require.NoError(t, err)

	assert.NotContains(t, script, "{{EMBED_DIM}}")
	assert.Contains(t, script, "embedding   vector(384)")
	assert.Equal(t, 3, strings.Count(script, "vector(384)"))
	for _, fn := range []string{"search_document_chunks", "search_documents_hybrid", "get_document_context"} {
		assert.Contains(t, script, "CREATE OR REPLACE FUNCTION "+fn)
	}
	assert.Contains(t, script, "ON DELETE CASCADE")
	assert.Contains(t, script, "docsift_meta")

	_, err = bootstrapSQL(0)
	assert.Error(t, err)
}

func TestNullHelpers(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	assert.Equal(t, "x", nullIfEmpty("x"))

	empty := ""
	id := "2b1c7a3e-0d7e-4c55-9d53-3f3f6f1d2a10"
	assert.Nil(t, nullableUUID(nil))
	assert.Nil(t, nullableUUID(&empty))
	assert.Equal(t, id, nullableUUID(&id))

	assert.Equal(t, []string{}, nonNilStrings(nil))
}
