package repo_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jpl-au/quill/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, repo.Init(dir, false))
	assert.DirExists(t, repo.Staging(dir))

	ignore, err := os.ReadFile(filepath.Join(dir, repo.Dir, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(ignore), "tmp/\n")
	assert.Contains(t, string(ignore), "config.yaml\n")

	err = repo.Init(dir, false)
	assert.ErrorContains(t, err, "already initialised")

	stale := filepath.Join(repo.Staging(dir), "old.part")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0644))
	require.NoError(t, repo.Init(dir, true))
	assert.NoFileExists(t, stale)

	again, err := os.ReadFile(filepath.Join(dir, repo.Dir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, string(ignore), string(again))
}

func TestDiscoverFrom(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, repo.Init(dir, false))

	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	root, err := repo.DiscoverFrom(nested)
	require.NoError(t, err)
	want, _ := filepath.Abs(dir)
	assert.Equal(t, want, root)

	_, err = repo.DiscoverFrom(t.TempDir())
	assert.ErrorIs(t, err, repo.ErrNotInitialised)
}
