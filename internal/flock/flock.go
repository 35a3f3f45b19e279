// Package flock provides short-lived exclusive guards over lock files.
//
// A Guard serialises a critical section across goroutines (an in-process
// semaphore keyed by path) and across processes (flock(2) on the file). The
// lock registry uses it to make each transition atomic, and the section store
// uses it around read-modify-write of a document so that writers holding
// different section locks never lose each other's updates.
//
// Guard files are created on demand and never removed: flock applies to an
// inode, so unlinking a lock file while another process waits on it would
// let two holders in at once.
package flock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	slotsMu sync.Mutex
	slots   = make(map[string]chan struct{})
)

func slot(path string) chan struct{} {
	slotsMu.Lock()
	defer slotsMu.Unlock()
	ch, ok := slots[path]
	if !ok {
		ch = make(chan struct{}, 1)
		slots[path] = ch
	}
	return ch
}

// Guard is a held exclusive lock. Release it exactly once.
type Guard struct {
	mu   sync.Mutex
	path string
	file *os.File
	slot chan struct{}
}

// Acquire blocks until the guard for path is held or ctx is done.
func Acquire(ctx context.Context, path string) (*Guard, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	s := slot(path)
	select {
	case s <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f, err := lockFile(ctx, path)
	if err != nil {
		<-s
		return nil, err
	}
	return &Guard{path: path, file: f, slot: s}, nil
}

// Release unlocks the file and frees the in-process slot. Calling it again is
// a no-op.
func (g *Guard) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.file == nil {
		return nil
	}
	err := unlockFile(g.file)
	g.file = nil
	<-g.slot
	return err
}

// Path returns the guarded file path.
func (g *Guard) Path() string { return g.path }

// With runs fn while holding the guard for path.
func With(ctx context.Context, path string, fn func() error) error {
	g, err := Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer g.Release()
	return fn()
}
