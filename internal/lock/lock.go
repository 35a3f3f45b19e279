package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/flock"
	"github.com/jpl-au/quill/internal/log"
)

// Lock is a held scope. It is owned by one goroutine-tree: the holder calls
// Heartbeat or KeepAlive while working and Release when done.
type Lock struct {
	reg *Registry

	mu       sync.Mutex
	rec      Record
	released bool
	lost     error

	stop chan struct{}
	done chan struct{}
}

// Record returns a copy of the current record.
func (l *Lock) Record() Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rec
}

// Doc returns the locked document id.
func (l *Lock) Doc() string { return l.Record().Doc }

// Scope returns the locked scope.
func (l *Lock) Scope() string { return l.Record().Scope }

// Err returns the error that ended a KeepAlive loop, or nil.
func (l *Lock) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lost
}

// Heartbeat refreshes the record. It fails with LOCK_LOST when the record no
// longer carries this holder's lease.
func (l *Lock) Heartbeat(ctx context.Context) error {
	l.mu.Lock()
	rec := l.rec
	released := l.released
	l.mu.Unlock()
	if released {
		return lostError(rec, "lock already released")
	}

	r := l.reg
	path := r.recordPath(rec.Doc, rec.Scope)
	err := flock.With(ctx, r.guardPath(rec.Doc), func() error {
		cur, err := read(path)
		if err != nil {
			return err
		}
		if cur == nil || cur.Lease != rec.Lease {
			return lostError(rec, "lock was reclaimed")
		}
		cur.Heartbeat = r.now()
		if err := write(path, cur); err != nil {
			return err
		}
		rec = *cur
		return nil
	})
	if err != nil {
		return guardError(rec.Doc, err)
	}

	l.mu.Lock()
	l.rec = rec
	l.mu.Unlock()
	return nil
}

// KeepAlive starts a goroutine that heartbeats every interval until Release.
// The interval must be shorter than the TTL. If a heartbeat reports the lock
// lost the loop stops and Err returns the cause.
func (l *Lock) KeepAlive(interval time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if interval <= 0 || interval >= l.rec.Lifetime() {
		return failure.Validation(failure.CodeInvalidContent, "heartbeat interval must be shorter than the TTL").
			With("interval", interval.String()).
			With("ttl", l.rec.Lifetime().String())
	}
	if l.released {
		return lostError(l.rec, "lock already released")
	}
	if l.stop != nil {
		return nil
	}

	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.beat(interval, l.stop, l.done)
	return nil
}

func (l *Lock) beat(interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := l.Heartbeat(ctx)
			cancel()
			if err == nil {
				continue
			}
			select {
			case <-stop:
				return
			default:
			}
			if failure.CodeOf(err) == failure.CodeLockLost {
				l.mu.Lock()
				l.lost = err
				l.mu.Unlock()
				rec := l.Record()
				slog.Warn("lock lost", "doc", rec.Doc, "scope", rec.Scope, "owner", rec.Owner)
				return
			}
			// Transient: the next tick retries.
			slog.Debug("heartbeat failed", "error", err)
		}
	}
}

// Release stops any KeepAlive loop and deletes the record if it still
// carries this lease. Calling Release again, or after the record was
// reclaimed by another holder, does nothing.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return nil
	}
	l.released = true
	stop, done := l.stop, l.done
	rec := l.rec
	l.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	// Release must complete even when the caller's context has ended.
	ctx = context.WithoutCancel(ctx)
	r := l.reg
	path := r.recordPath(rec.Doc, rec.Scope)
	var foreign bool
	err := flock.With(ctx, r.guardPath(rec.Doc), func() error {
		cur, err := read(path)
		if err != nil {
			return err
		}
		if cur == nil || cur.Lease != rec.Lease {
			foreign = true
			return nil
		}
		return remove(path)
	})

	log.Event("lock:release", "release").
		Author(rec.Owner).Doc(rec.Doc).Scope(rec.Scope).
		Detail("held_ms", r.now().Sub(rec.Acquired).Milliseconds()).
		Detail("foreign", foreign).
		Write(err)
	if err != nil {
		return guardError(rec.Doc, err)
	}
	return nil
}

func lostError(rec Record, msg string) *failure.Error {
	return failure.Lock(failure.CodeLockLost, msg).
		With("doc", rec.Doc).
		With("scope", rec.Scope).
		With("owner", rec.Owner).
		Suggest(fmt.Sprintf("reacquire the %s and retry", describe(rec.Scope))).
		Wrap(ErrLost)
}
