package snapshot_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jpl-au/quill/internal/diff"
	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/jpl-au/quill/internal/section"
	"github.com/jpl-au/quill/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupManager(t *testing.T) (*snapshot.Manager, *section.Store) {
	t.Helper()
	root := t.TempDir()
	store := section.New(root, lock.New(root), section.DefaultLimits())
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "reports/q3", marker.Metadata{
		"title": "Q3", "author": "A", "date": "2024-11-20",
	}))
	require.NoError(t, store.Append(ctx, "reports/q3", "Intro", "Hello", section.AppendOptions{}))
	return snapshot.New(store), store
}

func TestSnapshot_NumbersAndContent(t *testing.T) {
	ctx := context.Background()
	m, store := setupManager(t)

	e1, err := m.Snapshot(ctx, "reports/q3")
	require.NoError(t, err)
	assert.Equal(t, 1, e1.Version)
	assert.Equal(t, "q3_v1.md", e1.File)
	assert.Len(t, e1.Checksum, 64)

	require.NoError(t, store.Edit(ctx, "reports/q3", "Intro", "Hi"))
	e2, err := m.Snapshot(ctx, "reports/q3")
	require.NoError(t, err)
	assert.Equal(t, 2, e2.Version)

	b, err := m.Read(ctx, "reports/q3", 1)
	require.NoError(t, err)
	assert.Contains(t, string(b), "Hello")

	list, err := m.List(ctx, "reports/q3")
	require.NoError(t, err)
	require.Len(t, list, 2)

	_, err = m.Read(ctx, "reports/q3", 9)
	assert.ErrorIs(t, err, snapshot.ErrNotFound)

	// Snapshot files are not addressable as documents.
	_, err = store.Read(ctx, "reports/q3_v1")
	assert.ErrorIs(t, err, failure.ErrValidation)
}

func TestSnapshot_NeverOverwrites(t *testing.T) {
	ctx := context.Background()
	m, store := setupManager(t)

	stray := filepath.Join(filepath.Dir(store.File("reports/q3")), "q3_v3.md")
	require.NoError(t, os.WriteFile(stray, []byte("someone else's"), 0644))

	e, err := m.Snapshot(ctx, "reports/q3")
	require.NoError(t, err)
	assert.Equal(t, 4, e.Version)

	b, err := os.ReadFile(stray)
	require.NoError(t, err)
	assert.Equal(t, "someone else's", string(b))
}

func TestSnapshot_FollowsVersionMetadata(t *testing.T) {
	ctx := context.Background()
	m, store := setupManager(t)
	require.NoError(t, store.SetMetadata(ctx, "reports/q3", "version", 7))

	e, err := m.Snapshot(ctx, "reports/q3")
	require.NoError(t, err)
	assert.Equal(t, 8, e.Version)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	m, store := setupManager(t)

	e, err := m.Snapshot(ctx, "reports/q3")
	require.NoError(t, err)
	require.NoError(t, m.Verify(ctx, "reports/q3", e.Version))

	path := filepath.Join(filepath.Dir(store.File("reports/q3")), e.File)
	require.NoError(t, os.Chmod(path, 0644))
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0644))

	err = m.Verify(ctx, "reports/q3", e.Version)
	assert.ErrorIs(t, err, snapshot.ErrChecksum)
	assert.Equal(t, failure.CodeVerifyFailed, failure.CodeOf(err))

	assert.ErrorIs(t, m.Verify(ctx, "reports/q3", 42), snapshot.ErrNotFound)
}

func TestDiff(t *testing.T) {
	ctx := context.Background()
	m, store := setupManager(t)

	_, err := m.Snapshot(ctx, "reports/q3")
	require.NoError(t, err)
	require.NoError(t, store.Edit(ctx, "reports/q3", "Intro", "Goodbye"))

	r, err := m.Diff(ctx, "reports/q3", diff.Options{Version1: 1})
	require.NoError(t, err)
	assert.True(t, r.Changed)
	assert.Equal(t, "reports/q3 v1", r.Old)
	assert.Equal(t, "reports/q3 (current)", r.New)
	assert.Contains(t, r.Diff, "Goodbye")
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	m, store := setupManager(t)

	for i := range 4 {
		require.NoError(t, store.Edit(ctx, "reports/q3", "Intro", string(rune('a'+i))))
		_, err := m.Snapshot(ctx, "reports/q3")
		require.NoError(t, err)
	}

	_, err := m.Prune(ctx, "reports/q3", 0)
	assert.ErrorIs(t, err, failure.ErrValidation)

	removed, err := m.Prune(ctx, "reports/q3", 2)
	require.NoError(t, err)
	require.Len(t, removed, 2)
	assert.Equal(t, 1, removed[0].Version)
	assert.Equal(t, 2, removed[1].Version)

	_, err = m.Read(ctx, "reports/q3", 1)
	assert.ErrorIs(t, err, snapshot.ErrNotFound)

	e, err := m.Snapshot(ctx, "reports/q3")
	require.NoError(t, err)
	assert.Equal(t, 5, e.Version)

	removed, err = m.Prune(ctx, "reports/q3", 10)
	require.NoError(t, err)
	assert.Empty(t, removed)
}
