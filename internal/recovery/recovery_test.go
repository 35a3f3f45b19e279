package recovery_test

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/recovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sink struct {
	mu      sync.Mutex
	records []recovery.Record
}

func (s *sink) emit(r recovery.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

func setupManager(t *testing.T) (*recovery.Manager, *sink) {
	t.Helper()
	locks := lock.New(t.TempDir())
	locks.Retries = 0
	m := recovery.New(locks)
	m.RetryDelay = time.Millisecond
	s := &sink{}
	m.Sink = s.emit
	return m, s
}

func TestRun_Success(t *testing.T) {
	m, s := setupManager(t)
	cleaned := 0

	out, err := m.Run(context.Background(), recovery.Operation{
		Name:    "section:get",
		Run:     func(context.Context) error { return nil },
		Cleanup: func(context.Context) { cleaned++ },
	})
	require.NoError(t, err)
	assert.Equal(t, recovery.Succeeded, out)
	assert.Equal(t, 1, cleaned)
	assert.Empty(t, s.records)
}

func TestRun_TransientIORetried(t *testing.T) {
	m, s := setupManager(t)
	calls, cleaned := 0, 0

	out, err := m.Run(context.Background(), recovery.Operation{
		Name: "section:edit",
		Doc:  "d",
		Run: func(context.Context) error {
			calls++
			if calls == 1 {
				return failure.IO(failure.CodeWrite, "disk hiccup")
			}
			return nil
		},
		Cleanup: func(context.Context) { cleaned++ },
	})
	require.NoError(t, err)
	assert.Equal(t, recovery.Automatic, out)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, cleaned)
	require.Len(t, s.records, 1)
	assert.Equal(t, failure.KindIO, s.records[0].Kind)
	assert.Equal(t, recovery.Automatic, s.records[0].Outcome)
}

func TestRun_NotFoundIsNotRetried(t *testing.T) {
	m, s := setupManager(t)
	calls := 0

	out, err := m.Run(context.Background(), recovery.Operation{
		Name: "section:get",
		Run: func(context.Context) error {
			calls++
			return &fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}
		},
	})
	require.Error(t, err)
	assert.Equal(t, recovery.Manual, out)
	assert.Equal(t, 1, calls)
	assert.Equal(t, failure.CodeNotFound, failure.CodeOf(err))
	require.Len(t, s.records, 1)
	assert.Equal(t, recovery.Manual, s.records[0].Outcome)
}

func TestRun_ValidationIsTerminal(t *testing.T) {
	m, s := setupManager(t)
	calls := 0

	_, err := m.Run(context.Background(), recovery.Operation{
		Name: "section:append",
		Run: func(context.Context) error {
			calls++
			return failure.Validation(failure.CodeInvalidContent, "bad").Suggest("fix it")
		},
	})
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, "fix it", fe.Suggestion)
	assert.Equal(t, 1, calls)
	assert.Len(t, s.records, 1)
}

func TestRun_FallbackUsed(t *testing.T) {
	m, s := setupManager(t)
	var got *failure.Error

	out, err := m.Run(context.Background(), recovery.Operation{
		Name: "convert:pdf",
		Run: func(context.Context) error {
			return failure.Engine(failure.CodeEngineFailed, "chrome crashed")
		},
		Fallback: func(_ context.Context, cause *failure.Error) error {
			got = cause
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, recovery.Fallback, out)
	require.NotNil(t, got)
	assert.Equal(t, failure.CodeEngineFailed, got.Code)
	require.Len(t, s.records, 1)
	assert.Equal(t, recovery.Fallback, s.records[0].Outcome)
	assert.Equal(t, failure.KindEngine, s.records[0].Kind)
}

func TestRun_FallbackFailureIsReturned(t *testing.T) {
	m, s := setupManager(t)

	out, err := m.Run(context.Background(), recovery.Operation{
		Name: "convert:pdf",
		Run: func(context.Context) error {
			return failure.Engine(failure.CodeEngineFailed, "chrome crashed")
		},
		Fallback: func(context.Context, *failure.Error) error {
			return failure.Engine(failure.CodeEngineUnavailable, "no engines left")
		},
	})
	assert.Equal(t, recovery.Manual, out)
	assert.Equal(t, failure.CodeEngineUnavailable, failure.CodeOf(err))
	require.Len(t, s.records, 1)
	assert.Equal(t, failure.CodeEngineUnavailable, s.records[0].Code)
}

func TestRun_StaleLockSweptThenRetried(t *testing.T) {
	m, s := setupManager(t)
	ctx := context.Background()

	now := time.Now()
	m.Locks.Now = func() time.Time { return now }
	_, err := m.Locks.Acquire(ctx, "d", "Intro", "dead", lock.Options{TTL: time.Second})
	require.NoError(t, err)

	calls := 0
	out, err := m.Run(ctx, recovery.Operation{
		Name:  "section:edit",
		Doc:   "d",
		Scope: "Intro",
		Run: func(ctx context.Context) error {
			calls++
			if calls == 1 {
				// The lock ages out between the failed attempt and recovery.
				now = now.Add(2 * time.Second)
				return failure.Lock(failure.CodeLockTimeout, "section is locked").Wrap(lock.ErrTimeout)
			}
			l, err := m.Locks.Acquire(ctx, "d", "Intro", "me", lock.Options{})
			if err != nil {
				return err
			}
			return l.Release(ctx)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, recovery.Automatic, out)
	assert.Equal(t, 2, calls)
	require.Len(t, s.records, 1)
	assert.Equal(t, failure.KindLock, s.records[0].Kind)
}

func TestRun_ActiveLockSurfacesTimeout(t *testing.T) {
	m, s := setupManager(t)
	ctx := context.Background()

	held, err := m.Locks.Acquire(ctx, "d", lock.Document, "busy", lock.Options{})
	require.NoError(t, err)
	defer held.Release(ctx)

	cleaned := false
	out, err := m.Run(ctx, recovery.Operation{
		Name:  "section:edit",
		Doc:   "d",
		Scope: "Intro",
		Actor: "me",
		Run: func(ctx context.Context) error {
			l, err := m.Locks.Acquire(ctx, "d", "Intro", "me", lock.Options{})
			if err != nil {
				return err
			}
			return l.Release(ctx)
		},
		Cleanup: func(context.Context) { cleaned = true },
	})
	assert.Equal(t, recovery.Manual, out)
	assert.ErrorIs(t, err, lock.ErrTimeout)
	assert.True(t, cleaned)
	require.Len(t, s.records, 1)
	assert.Equal(t, "busy", s.records[0].Context["holder"])

	recs, err := m.Locks.List(ctx, "d")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "busy", recs[0].Owner)
}

func TestRun_CleanupSeesLiveContext(t *testing.T) {
	m, _ := setupManager(t)
	ctx, cancel := context.WithCancel(context.Background())

	var cleanupErr error
	_, err := m.Run(ctx, recovery.Operation{
		Name: "convert:pdf",
		Run: func(context.Context) error {
			cancel()
			return context.Canceled
		},
		Cleanup: func(ctx context.Context) { cleanupErr = ctx.Err() },
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.NoError(t, cleanupErr)
}

func TestRun_DeclinedFallbackUsesDefault(t *testing.T) {
	m, s := setupManager(t)
	declined := false

	out, err := m.Run(context.Background(), recovery.Operation{
		Name: "convert:pdf",
		Run: func(context.Context) error {
			return failure.Validation(failure.CodeLintFailed, "document failed validation")
		},
		Fallback: func(context.Context, *failure.Error) error {
			declined = true
			return recovery.ErrNoFallback
		},
	})
	assert.True(t, declined)
	assert.Equal(t, recovery.Manual, out)
	assert.Equal(t, failure.CodeLintFailed, failure.CodeOf(err))
	require.Len(t, s.records, 1)
}
