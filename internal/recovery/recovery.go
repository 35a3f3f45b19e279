// Package recovery runs operations through a fixed failure-handling chain.
//
// When an operation fails, Manager.Run classifies the error and tries, in
// order:
//
//  1. automatic: retry once after confirming the trigger cleared (stale
//     locks swept, or a short pause after a transient IO error);
//  2. fallback: the operation's own Fallback, or for a lock timeout a forced
//     release of stale conflicting locks followed by one retry;
//  3. manual: return the typed error with its context and suggestion.
//
// Whatever the path, the operation's Cleanup runs exactly once and exactly
// one Record is emitted to the sink for a failed first attempt. Failures
// recovered locally are recorded but not returned.
package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/log"
)

// DefaultRetryDelay is the pause before retrying a transient IO failure.
const DefaultRetryDelay = 100 * time.Millisecond

// Outcome is how an operation finished.
type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Automatic Outcome = "recovered-automatic"
	Fallback  Outcome = "recovered-fallback"
	Manual    Outcome = "manual"
)

// Operation is a unit of work run under recovery.
type Operation struct {
	Name  string // e.g. "section:edit", "convert:pdf"
	Doc   string
	Scope string // lock scope the operation takes
	Actor string // attributed in records and forced releases

	Run func(ctx context.Context) error

	// Fallback substitutes an alternative action for the failed one. It
	// receives the classified error. Nil, or a return of ErrNoFallback,
	// means the kind's default.
	Fallback func(ctx context.Context, cause *failure.Error) error

	// Cleanup always runs once after the chain finishes.
	Cleanup func(ctx context.Context)
}

// Record is the error record emitted once per failed operation.
type Record struct {
	Kind       failure.Kind   `json:"kind"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Context    map[string]any `json:"context,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
	Operation  string         `json:"operation"`
	Doc        string         `json:"doc,omitempty"`
	Outcome    Outcome        `json:"outcome"`
	Time       time.Time      `json:"time"`
}

// Sink receives error records.
type Sink func(Record)

// LogSink writes records to the audit log.
func LogSink(r Record) {
	b := log.Event("recovery:"+r.Operation, "recover").Doc(r.Doc).Detail("outcome", string(r.Outcome))
	fe := failure.New(r.Kind, r.Code, r.Message).Suggest(r.Suggestion)
	for k, v := range r.Context {
		fe = fe.With(k, v)
	}
	b.Write(fe)
}

// Manager routes failures through the recovery chain.
type Manager struct {
	Locks      *lock.Registry
	Sink       Sink
	RetryDelay time.Duration
	Now        func() time.Time
}

// New returns a manager that emits records to the audit log.
func New(locks *lock.Registry) *Manager {
	return &Manager{
		Locks:      locks,
		Sink:       LogSink,
		RetryDelay: DefaultRetryDelay,
		Now:        time.Now,
	}
}

// Run executes op through the chain and reports how it finished. A
// returned error is always a *failure.Error.
func (m *Manager) Run(ctx context.Context, op Operation) (Outcome, error) {
	if op.Cleanup != nil {
		defer op.Cleanup(context.WithoutCancel(ctx))
	}

	err := op.Run(ctx)
	if err == nil {
		return Succeeded, nil
	}
	cause := failure.From(err)

	outcome, final := m.recover(ctx, op, cause)
	m.emit(op, cause, final, outcome)
	if outcome == Manual {
		return Manual, final
	}
	return outcome, nil
}

// recover walks the automatic and fallback stages. It returns Manual with the
// terminal error when neither succeeds.
func (m *Manager) recover(ctx context.Context, op Operation, cause *failure.Error) (Outcome, *failure.Error) {
	last := cause

	if m.cleared(ctx, op, cause) {
		err := op.Run(ctx)
		if err == nil {
			return Automatic, nil
		}
		last = failure.From(err)
	}
	if ctx.Err() != nil {
		return Manual, failure.From(ctx.Err())
	}

	if err := m.fallback(ctx, op, last); err == nil {
		return Fallback, nil
	} else if !errors.Is(err, ErrNoFallback) {
		last = failure.From(err)
	}
	return Manual, last
}

// cleared reports whether the condition behind cause has gone away, so a
// plain retry is worth one attempt.
func (m *Manager) cleared(ctx context.Context, op Operation, cause *failure.Error) bool {
	switch cause.Kind {
	case failure.KindLock:
		if cause.Code == failure.CodeLockLost {
			return true
		}
		if cause.Code != failure.CodeLockTimeout || m.Locks == nil || op.Doc == "" {
			return false
		}
		swept, err := m.Locks.Sweep(ctx, op.Doc)
		return err == nil && len(swept) > 0
	case failure.KindIO:
		switch cause.Code {
		case failure.CodeNotFound, failure.CodePermission:
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(m.RetryDelay):
			return true
		}
	}
	return false
}

// ErrNoFallback is returned by an Operation.Fallback that declines the
// failure, handing it to the default for its kind.
var ErrNoFallback = errors.New("no fallback")

func (m *Manager) fallback(ctx context.Context, op Operation, cause *failure.Error) error {
	if op.Fallback != nil {
		if err := op.Fallback(ctx, cause); !errors.Is(err, ErrNoFallback) {
			return err
		}
	}
	if cause.Kind != failure.KindLock || cause.Code != failure.CodeLockTimeout || m.Locks == nil || op.Doc == "" {
		return ErrNoFallback
	}

	recs, err := m.Locks.List(ctx, op.Doc)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if !lock.Conflicts(rec.Scope, op.Scope) {
			continue
		}
		if err := m.Locks.ForceRelease(ctx, op.Doc, rec.Scope, op.Actor); err != nil {
			if errors.Is(err, lock.ErrNotHeld) {
				continue
			}
			// A live holder cannot be displaced; surface the original timeout.
			if errors.Is(err, lock.ErrActive) {
				return cause
			}
			return err
		}
	}
	return op.Run(ctx)
}

func (m *Manager) emit(op Operation, cause, final *failure.Error, outcome Outcome) {
	if m.Sink == nil {
		return
	}
	src := cause
	if final != nil {
		src = final
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	m.Sink(Record{
		Kind:       src.Kind,
		Code:       src.Code,
		Message:    src.Message,
		Context:    src.Context,
		Suggestion: src.Suggestion,
		Operation:  op.Name,
		Doc:        op.Doc,
		Outcome:    outcome,
		Time:       now().UTC(),
	})
}
