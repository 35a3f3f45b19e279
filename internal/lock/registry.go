// Package lock grants exclusive holds on documents and their sections.
//
// A lock is keyed by (document id, scope). The scope is a section title or
// Document for the document-wide hold; the document scope excludes every
// section scope and vice versa. Holds are persisted as JSON records beside
// the document:
//
//	<root>/<dir>/.locks/<base>/document.json
//	<root>/<dir>/.locks/<base>/section-<hash>.json
//
// Every transition (acquire, heartbeat, release, reclaim) runs while holding
// a flock on .locks/<base>/.registry, so two processes never both observe a
// scope as free. A record whose heartbeat is older than its TTL is stale: any
// acquirer may reclaim it and ForceRelease may remove it.
//
// Registry is an explicit value. Components receive a *Registry rather than
// reaching for a global.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/flock"
	"github.com/jpl-au/quill/internal/log"
)

// Document is the document-wide scope.
const Document = ""

const (
	DefaultTTL        = 300 * time.Second
	DefaultRetries    = 3
	DefaultRetryDelay = 5 * time.Second
)

var (
	// ErrTimeout indicates the retry budget was exhausted.
	ErrTimeout = errors.New("lock acquisition timed out")
	// ErrActive indicates a forced release was refused for a live lock.
	ErrActive = errors.New("lock is active")
	// ErrLost indicates the holder's record was reclaimed by another party.
	ErrLost = errors.New("lock lost")
	// ErrNotHeld indicates no record exists for the scope.
	ErrNotHeld = errors.New("lock not held")
)

// Options configures an acquisition.
type Options struct {
	TTL       time.Duration // zero uses Registry.DefaultTTL
	Operation string        // edit, append, convert...
}

// Registry manages lock records under a workspace root.
type Registry struct {
	Root       string
	DefaultTTL time.Duration
	Retries    int
	RetryDelay time.Duration

	// Now is the clock. Tests replace it to age records.
	Now func() time.Time

	// OnForceRelease is called after a stale record is removed by
	// ForceRelease, with the removed record and the acting party.
	OnForceRelease func(rec Record, actor string)
}

// New returns a registry with default TTL and retry settings.
func New(root string) *Registry {
	return &Registry{
		Root:       root,
		DefaultTTL: DefaultTTL,
		Retries:    DefaultRetries,
		RetryDelay: DefaultRetryDelay,
		Now:        time.Now,
	}
}

func (r *Registry) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// Acquire takes an exclusive hold on (doc, scope) for owner.
//
// Conflicting stale records are reclaimed in place. A live conflict is
// retried Retries times with RetryDelay between attempts; when the budget is
// spent, or ctx ends first, Acquire fails with LOCK_TIMEOUT naming the holder.
func (r *Registry) Acquire(ctx context.Context, doc, scope, owner string, opts Options) (*Lock, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = r.DefaultTTL
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	for attempt := 0; ; attempt++ {
		l, holder, err := r.try(ctx, doc, scope, owner, opts.Operation, ttl)
		if err != nil {
			return nil, err
		}
		if l != nil {
			log.Event("lock:acquire", "acquire").
				Author(owner).Doc(doc).Scope(scope).
				Detail("operation", opts.Operation).
				Detail("attempts", attempt+1).
				Write(nil)
			return l, nil
		}

		if attempt >= r.Retries {
			return nil, timeoutError(doc, scope, holder, ErrTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, timeoutError(doc, scope, holder, errors.Join(ErrTimeout, ctx.Err()))
		case <-time.After(r.RetryDelay):
		}
	}
}

// try makes one acquisition attempt. It returns the lock on success, or the
// live conflicting record when the scope is held.
func (r *Registry) try(ctx context.Context, doc, scope, owner, op string, ttl time.Duration) (*Lock, *Record, error) {
	var (
		got    *Lock
		holder *Record
	)
	err := flock.With(ctx, r.guardPath(doc), func() error {
		recs, err := r.records(doc)
		if err != nil {
			return err
		}

		now := r.now()
		for _, rec := range recs {
			if !Conflicts(rec.Scope, scope) {
				continue
			}
			if !rec.Stale(now) {
				holder = &rec
				return nil
			}
			if err := remove(r.recordPath(doc, rec.Scope)); err != nil {
				return err
			}
			log.Event("lock:reclaim", "reclaim").
				Author(owner).Doc(doc).Scope(rec.Scope).
				Detail("previous_owner", rec.Owner).
				Detail("heartbeat", rec.Heartbeat.Format(time.RFC3339)).
				Write(nil)
		}

		rec := Record{
			Doc:       doc,
			Scope:     scope,
			Owner:     owner,
			Lease:     uuid.NewString(),
			Operation: op,
			Acquired:  now,
			Heartbeat: now,
			TTL:       ttl.Seconds(),
		}
		if err := write(r.recordPath(doc, scope), &rec); err != nil {
			return err
		}
		got = &Lock{reg: r, rec: rec}
		return nil
	})
	if err != nil {
		return nil, nil, guardError(doc, err)
	}
	return got, holder, nil
}

// ForceRelease removes a stale record on behalf of actor. Live records are
// refused with LOCK_ACTIVE.
func (r *Registry) ForceRelease(ctx context.Context, doc, scope, actor string) error {
	var removed *Record
	err := flock.With(ctx, r.guardPath(doc), func() error {
		rec, err := read(r.recordPath(doc, scope))
		if err != nil {
			return err
		}
		if rec == nil {
			return failure.Lock(failure.CodeNotFound, "no lock held").
				With("doc", doc).With("scope", scope).
				Wrap(ErrNotHeld)
		}
		if !rec.Stale(r.now()) {
			return failure.Lock(failure.CodeLockActive, "cannot force release active lock").
				With("doc", doc).With("scope", scope).
				With("holder", rec.Owner).
				With("expires", rec.Expires().Format(time.RFC3339)).
				Suggest("wait for the holder to release it or for the TTL to pass").
				Wrap(ErrActive)
		}
		if err := remove(r.recordPath(doc, scope)); err != nil {
			return err
		}
		removed = rec
		return nil
	})

	b := log.Event("lock:force-release", "force-release").Author(actor).Doc(doc).Scope(scope)
	if removed != nil {
		b = b.Detail("previous_owner", removed.Owner).Detail("operation", removed.Operation)
	}
	b.Write(err)

	if err != nil {
		return guardError(doc, err)
	}
	if r.OnForceRelease != nil {
		r.OnForceRelease(*removed, actor)
	}
	return nil
}

// List returns the records held on a document, document scope first.
// Stale records are included; check Record.Stale.
func (r *Registry) List(ctx context.Context, doc string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.records(doc)
}

// Sweep removes every stale record on a document and returns them.
func (r *Registry) Sweep(ctx context.Context, doc string) ([]Record, error) {
	var swept []Record
	err := flock.With(ctx, r.guardPath(doc), func() error {
		recs, err := r.records(doc)
		if err != nil {
			return err
		}
		now := r.now()
		for _, rec := range recs {
			if !rec.Stale(now) {
				continue
			}
			if err := remove(r.recordPath(doc, rec.Scope)); err != nil {
				return err
			}
			swept = append(swept, rec)
		}
		return nil
	})
	if len(swept) > 0 || err != nil {
		log.Event("lock:sweep", "sweep").Doc(doc).Detail("removed", len(swept)).Write(err)
	}
	if err != nil {
		return nil, guardError(doc, err)
	}
	return swept, nil
}

func timeoutError(doc, scope string, holder *Record, cause error) error {
	e := failure.Lock(failure.CodeLockTimeout, fmt.Sprintf("%s is locked", describe(scope))).
		With("doc", doc)
	if scope != Document {
		e = e.With("scope", scope)
	}
	if holder != nil {
		e = e.With("holder", holder.Owner).
			With("holder_scope", describe(holder.Scope)).
			With("expires", holder.Expires().Format(time.RFC3339))
		if holder.Operation != "" {
			e = e.With("operation", holder.Operation)
		}
		e = e.Suggest(fmt.Sprintf("lock held by %s, retry after %s", holder.Owner, holder.Expires().Format(time.RFC3339)))
	}
	return e.Wrap(cause)
}

// guardError maps a failure to take the registry guard into the taxonomy.
func guardError(doc string, err error) error {
	if _, ok := failure.As(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return failure.Lock(failure.CodeLockTimeout, "lock registry busy").
			With("doc", doc).Wrap(errors.Join(ErrTimeout, err))
	}
	return failure.IO(failure.CodeWrite, "lock registry").With("doc", doc).Wrap(err)
}

func describe(scope string) string {
	if scope == Document {
		return "document"
	}
	return fmt.Sprintf("section %q", scope)
}
