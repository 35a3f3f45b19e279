//go:build !unix

package flock

import (
	"context"
	"fmt"
	"os"
)

// lockFile only opens the file on platforms without flock; the in-process
// slot still serialises callers within one process.
func lockFile(_ context.Context, path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return f, nil
}

func unlockFile(f *os.File) error {
	return f.Close()
}
