package flock_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpl-au/quill/internal/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWith_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".locks", "doc", ".commit")

	var inside, maxInside int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := flock.With(context.Background(), path, func() error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard")

	g, err := flock.Acquire(context.Background(), path)
	require.NoError(t, err)
	defer g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = flock.Acquire(ctx, path)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRelease_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard")

	g, err := flock.Acquire(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, g.Path())
	require.NoError(t, g.Release())
	require.NoError(t, g.Release())

	// Reacquirable after release.
	g2, err := flock.Acquire(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, g2.Release())
}
