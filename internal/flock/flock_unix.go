//go:build unix

package flock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const (
	minBackoff = time.Millisecond
	maxBackoff = 25 * time.Millisecond
)

// lockFile takes an exclusive flock on path, polling with backoff so ctx can
// interrupt the wait. The inode is re-checked after locking because the file
// may have been replaced between open and flock.
func lockFile(ctx context.Context, path string) (*os.File, error) {
	backoff := minBackoff
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
		if err != nil {
			return nil, fmt.Errorf("open lock file: %w", err)
		}

		var opened unix.Stat_t
		if err := unix.Fstat(int(f.Fd()), &opened); err != nil {
			f.Close()
			return nil, fmt.Errorf("fstat lock file: %w", err)
		}

		err = flockEINTR(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			var current unix.Stat_t
			if serr := unix.Stat(path, &current); serr == nil && current.Ino == opened.Ino && current.Dev == opened.Dev {
				return f, nil
			}
			_ = flockEINTR(int(f.Fd()), unix.LOCK_UN)
			f.Close()
			continue
		}
		f.Close()
		if !errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("flock: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func unlockFile(f *os.File) error {
	uerr := flockEINTR(int(f.Fd()), unix.LOCK_UN)
	cerr := f.Close()
	return errors.Join(uerr, cerr)
}

func flockEINTR(fd, how int) error {
	for {
		err := unix.Flock(fd, how)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}
