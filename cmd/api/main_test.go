package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(rel string) {
		p := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	write("a.txt")
	write("nested/b.csv")
	write("nested/skip.exe")
	write(".git/c.txt")
	write(".hidden.txt")

	supported := func(name string) bool {
		return strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".csv")
	}
	paths, err := collectFiles(dir, supported)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "nested", "b.csv"),
	}, paths)

	_, err = collectFiles(t.TempDir(), supported)
	assert.EqualError(t, err, "no supported files found")
}
