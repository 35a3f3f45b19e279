// Package convert turns documents into output formats.
//
// A Pipeline queues conversion tasks by priority and runs at most
// MaxConcurrent at once. Each task holds the document-wide lock for its whole
// run, lints the document, then tries the target format followed by its
// fallback chain. Every attempt is staged into the workspace staging
// directory, verified, and only then moved into place, so a failed or
// cancelled task never leaves a partial artifact behind.
package convert

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/lint"
	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/recovery"
	"github.com/jpl-au/quill/internal/repo"
	"github.com/jpl-au/quill/internal/section"
	"github.com/natefinch/atomic"
)

const (
	DefaultMaxConcurrent  = 2
	DefaultAttemptTimeout = 5 * time.Minute
	DefaultOutputDir      = "output"
	DefaultKeepTasks      = 100
)

// State is a task's lifecycle state.
type State string

const (
	Queued            State = "QUEUED"
	Running           State = "RUNNING"
	Succeeded         State = "SUCCEEDED"
	FallbackSucceeded State = "FALLBACK_SUCCEEDED"
	Failed            State = "FAILED"
	Cancelled         State = "CANCELLED"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	switch s {
	case Succeeded, FallbackSucceeded, Failed, Cancelled:
		return true
	}
	return false
}

var (
	// ErrUnknownTask indicates no task has the given id.
	ErrUnknownTask = errors.New("unknown task")
	// ErrClosed indicates the pipeline no longer accepts tasks.
	ErrClosed = errors.New("pipeline closed")
)

// Request describes a conversion.
type Request struct {
	Doc      string   `json:"doc"`
	Target   Format   `json:"target"`
	Priority int      `json:"priority,omitempty"`
	Fallback []Format `json:"fallback,omitempty"` // nil uses the configured chain
	// NoFallback attempts the target only.
	NoFallback bool `json:"no_fallback,omitempty"`
	Overwrite  bool `json:"overwrite,omitempty"`
}

// Attempt is one engine invocation.
type Attempt struct {
	Format   Format        `json:"format"`
	Engine   string        `json:"engine"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Task is a snapshot of a conversion task.
type Task struct {
	ID       string         `json:"id"`
	Request  Request        `json:"request"`
	Owner    string         `json:"owner"`
	State    State          `json:"state"`
	Format   Format         `json:"format,omitempty"` // format actually produced
	Output   string         `json:"output,omitempty"`
	Attempts []Attempt      `json:"attempts,omitempty"`
	Warnings []lint.Issue   `json:"warnings,omitempty"`
	Err      *failure.Error `json:"error,omitempty"`
	Created  time.Time      `json:"created"`
	Started  time.Time      `json:"started,omitzero"`
	Finished time.Time      `json:"finished,omitzero"`
}

// Config tunes a pipeline. Zero values take the defaults.
type Config struct {
	MaxConcurrent  int
	AttemptTimeout time.Duration
	OutputDir      string // relative to the workspace root
	Chains         map[Format][]Format
	// KeepAlive is the lock heartbeat interval. Zero uses a third of the
	// lock TTL.
	KeepAlive time.Duration
	// KeepTasks is how many finished tasks stay queryable. Older ones are
	// forgotten and their ids report ErrUnknownTask.
	KeepTasks int
}

type job struct {
	task   Task
	seq    uint64
	index  int
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Pipeline schedules and runs conversion tasks.
type Pipeline struct {
	store    *section.Store
	recovery *recovery.Manager
	engines  map[Format]Engine
	cfg      Config
	staging  string

	base context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	queue   taskQueue
	tasks   map[string]*job
	retired []string // finished task ids, oldest first
	running int
	seq     uint64
	closed  bool
	wg      sync.WaitGroup
}

// New returns a pipeline over store. Later engines replace earlier ones for
// the same format. A nil rec uses a recovery manager that records to the
// audit log.
func New(store *section.Store, rec *recovery.Manager, engines []Engine, cfg Config) *Pipeline {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if cfg.Chains == nil {
		cfg.Chains = DefaultChains()
	}
	if cfg.KeepTasks <= 0 {
		cfg.KeepTasks = DefaultKeepTasks
	}
	if rec == nil {
		rec = recovery.New(store.Locks())
	}
	p := &Pipeline{
		store:    store,
		recovery: rec,
		engines:  make(map[Format]Engine, len(engines)),
		cfg:      cfg,
		staging:  repo.Staging(store.Root()),
		tasks:    make(map[string]*job),
	}
	for _, e := range engines {
		p.engines[e.Format()] = e
	}
	p.base, p.stop = context.WithCancel(context.Background())
	return p
}

// OutputPath returns where a document's artifact in format f is written.
func (p *Pipeline) OutputPath(doc string, f Format) string {
	return filepath.Join(p.store.Root(), p.cfg.OutputDir, filepath.FromSlash(doc)+"."+f.Ext())
}

// Formats returns the formats a request attempts, in order.
func (p *Pipeline) Formats(req Request) []Format {
	if req.NoFallback {
		return []Format{req.Target}
	}
	fb := req.Fallback
	if fb == nil {
		fb = p.cfg.Chains[req.Target]
	}
	return chain(req.Target, fb)
}

// Schedule queues a conversion. The lock owner is taken from ctx; the task
// itself is not bound to ctx and runs until it finishes or is cancelled.
func (p *Pipeline) Schedule(ctx context.Context, req Request) (Task, error) {
	_, t, err := p.schedule(ctx, req)
	return t, err
}

func (p *Pipeline) schedule(ctx context.Context, req Request) (*job, Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, Task{}, failure.From(err)
	}
	id, err := section.Normalise(req.Doc)
	if err != nil {
		return nil, Task{}, err
	}
	req.Doc = id
	if req.Target, err = ParseFormat(string(req.Target)); err != nil {
		return nil, Task{}, err
	}
	for i, f := range req.Fallback {
		if req.Fallback[i], err = ParseFormat(string(f)); err != nil {
			return nil, Task{}, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, Task{}, failure.Engine(failure.CodeCancelled, "conversion pipeline is closed").Wrap(ErrClosed)
	}

	p.seq++
	j := &job{
		task: Task{
			ID:      uuid.NewString(),
			Request: req,
			Owner:   section.Owner(ctx),
			State:   Queued,
			Created: time.Now().UTC(),
		},
		seq:  p.seq,
		done: make(chan struct{}),
	}
	j.ctx, j.cancel = context.WithCancel(p.base)
	p.tasks[j.task.ID] = j
	heap.Push(&p.queue, j)
	p.dispatch()
	return j, j.snapshot(), nil
}

// dispatch starts queued jobs while capacity allows. p.mu must be held.
func (p *Pipeline) dispatch() {
	for p.running < p.cfg.MaxConcurrent && p.queue.Len() > 0 {
		j := heap.Pop(&p.queue).(*job)
		j.task.State = Running
		j.task.Started = time.Now().UTC()
		p.running++
		p.wg.Add(1)
		go p.execute(j)
	}
}

func (p *Pipeline) execute(j *job) {
	defer p.wg.Done()
	p.run(j)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.running--
	j.cancel()
	close(j.done)
	p.retire(j)
	p.dispatch()
}

// retire records a finished job and forgets the oldest finished jobs beyond
// KeepTasks. p.mu must be held.
func (p *Pipeline) retire(j *job) {
	p.retired = append(p.retired, j.task.ID)
	for len(p.retired) > p.cfg.KeepTasks {
		delete(p.tasks, p.retired[0])
		p.retired = p.retired[1:]
	}
}

// Cancel cancels a task. A queued task becomes CANCELLED at once; a running
// task stops at its next engine boundary. Cancelling a finished task is a
// no-op.
func (p *Pipeline) Cancel(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.tasks[id]
	if !ok {
		return unknown(id)
	}
	switch j.task.State {
	case Queued:
		heap.Remove(&p.queue, j.index)
		p.finishCancelled(j)
	case Running:
		j.cancel()
	}
	return nil
}

// finishCancelled moves a queued job straight to CANCELLED. p.mu must be held.
func (p *Pipeline) finishCancelled(j *job) {
	j.task.State = Cancelled
	j.task.Finished = time.Now().UTC()
	j.task.Err = failure.Engine(failure.CodeCancelled, "task cancelled before it started").
		With("task", j.task.ID)
	j.cancel()
	close(j.done)
	p.retire(j)
	log.Event("convert:task", "cancel").Author(j.task.Owner).Doc(j.task.Request.Doc).
		Detail("task", j.task.ID).Write(nil)
}

// Get returns a snapshot of a task.
func (p *Pipeline) Get(id string) (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.tasks[id]
	if !ok {
		return Task{}, false
	}
	return j.snapshot(), true
}

// List returns every known task, oldest first.
func (p *Pipeline) List() []Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Task, 0, len(p.tasks))
	for _, j := range p.tasks {
		out = append(out, j.snapshot())
	}
	slices.SortFunc(out, func(a, b Task) int { return a.Created.Compare(b.Created) })
	return out
}

// Wait blocks until the task reaches a terminal state or ctx ends. A task
// that finished long enough ago to be forgotten reports ErrUnknownTask.
func (p *Pipeline) Wait(ctx context.Context, id string) (Task, error) {
	p.mu.Lock()
	j, ok := p.tasks[id]
	p.mu.Unlock()
	if !ok {
		return Task{}, unknown(id)
	}
	return p.wait(ctx, j)
}

func (p *Pipeline) wait(ctx context.Context, j *job) (Task, error) {
	select {
	case <-j.done:
	case <-ctx.Done():
		return Task{}, failure.From(ctx.Err())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return j.snapshot(), nil
}

// Convert schedules a request and waits for it. A failed or cancelled task
// returns its error alongside the task.
func (p *Pipeline) Convert(ctx context.Context, req Request) (Task, error) {
	j, t, err := p.schedule(ctx, req)
	if err != nil {
		return t, err
	}
	t, err = p.wait(ctx, j)
	if err != nil {
		return t, err
	}
	if t.Err != nil {
		return t, t.Err
	}
	return t, nil
}

// Close stops accepting tasks, cancels queued and running ones, and waits
// for running tasks to clean up or for ctx to end.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	for p.queue.Len() > 0 {
		p.finishCancelled(heap.Pop(&p.queue).(*job))
	}
	p.mu.Unlock()
	p.stop()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) update(j *job, fn func(t *Task)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&j.task)
}

func (j *job) snapshot() Task {
	t := j.task
	t.Attempts = slices.Clone(t.Attempts)
	t.Warnings = slices.Clone(t.Warnings)
	return t
}

func unknown(id string) error {
	return failure.Validation(failure.CodeNotFound, "unknown conversion task").
		With("task", id).Wrap(ErrUnknownTask)
}

// run executes one task under the recovery manager and records the result.
func (p *Pipeline) run(j *job) {
	p.mu.Lock()
	t := j.task
	p.mu.Unlock()

	r := &runner{p: p, j: j, req: t.Request, owner: t.Owner, formats: p.Formats(t.Request)}
	ctx := section.WithOwner(j.ctx, t.Owner)

	outcome, err := p.recovery.Run(ctx, recovery.Operation{
		Name:     "convert:" + string(t.Request.Target),
		Doc:      t.Request.Doc,
		Scope:    lock.Document,
		Actor:    t.Owner,
		Run:      r.first,
		Fallback: r.fallback,
		Cleanup:  r.cleanup,
	})

	p.update(j, func(t *Task) {
		t.Finished = time.Now().UTC()
		t.Format, t.Output = r.produced, r.output
		switch {
		case err == nil && r.produced == t.Request.Target:
			t.State = Succeeded
		case err == nil:
			t.State = FallbackSucceeded
		case j.ctx.Err() != nil:
			t.State = Cancelled
			t.Err = failure.From(err)
		default:
			t.State = Failed
			t.Err = failure.From(err)
		}
	})
	log.Event("convert:task", "convert").Author(t.Owner).Doc(t.Request.Doc).
		Detail("task", t.ID).
		Detail("target", string(t.Request.Target)).
		Detail("format", string(r.produced)).
		Detail("outcome", string(outcome)).
		Write(err)
}

// runner carries the per-task state shared by the recovery callbacks.
type runner struct {
	p       *Pipeline
	j       *job
	req     Request
	owner   string
	formats []Format
	next    int

	held     *lock.Lock
	src      *Source
	staged   []string
	produced Format
	output   string
}

// first takes the lock, prepares the source and attempts the target format.
// Recovery may call it again after a transient failure.
func (r *runner) first(ctx context.Context) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	if err := r.prepare(ctx); err != nil {
		return err
	}
	r.next = 1
	return r.attempt(ctx, r.formats[0])
}

// fallback descends the chain after the target failed with an engine error.
// Other failures are left to the recovery defaults.
func (r *runner) fallback(ctx context.Context, cause *failure.Error) error {
	if cause.Kind != failure.KindEngine || r.src == nil || r.next >= len(r.formats) {
		return recovery.ErrNoFallback
	}
	last := error(cause)
	for ; r.next < len(r.formats); r.next++ {
		if err := ctx.Err(); err != nil {
			return failure.From(err)
		}
		err := r.attempt(ctx, r.formats[r.next])
		if err == nil {
			return nil
		}
		last = err
		if !fallbackable(err) {
			return err
		}
	}
	names := make([]string, len(r.formats))
	for i, f := range r.formats {
		names[i] = string(f)
	}
	return failure.Engine(failure.CodeEngineUnavailable, "every format in the chain failed").
		With("doc", r.req.Doc).
		With("formats", strings.Join(names, ",")).
		Suggest("check the attempt errors; install the missing engine or convert to another format").
		Wrap(last)
}

// fallbackable reports whether the chain should continue past err.
func fallbackable(err error) bool {
	fe := failure.From(err)
	switch {
	case fe.Kind == failure.KindEngine:
		return fe.Code != failure.CodeCancelled
	case fe.Code == failure.CodeOutputExists:
		return true
	}
	return false
}

func (r *runner) acquire(ctx context.Context) error {
	if r.held != nil {
		if r.held.Err() == nil {
			return nil
		}
		_ = r.held.Release(ctx)
		r.held = nil
	}
	store := r.p.store
	l, err := store.Locks().Acquire(ctx, r.req.Doc, lock.Document, r.owner, lock.Options{
		TTL:       store.LockTTL,
		Operation: "convert",
	})
	if err != nil {
		return err
	}
	r.held = l
	interval := r.p.cfg.KeepAlive
	if interval <= 0 {
		interval = l.Record().Lifetime() / 3
	}
	return l.KeepAlive(interval)
}

func (r *runner) prepare(ctx context.Context) error {
	if r.src != nil {
		return nil
	}
	raw, err := r.p.store.Read(ctx, r.req.Doc)
	if err != nil {
		return err
	}
	dir := filepath.Dir(r.p.store.File(r.req.Doc))
	res := lint.Check(r.req.Doc, raw, lint.Options{Dir: dir})
	var warnings []lint.Issue
	for _, i := range res.Issues {
		if i.Severity == lint.Warning {
			warnings = append(warnings, i)
		}
	}
	r.p.update(r.j, func(t *Task) { t.Warnings = warnings })
	if err := res.Err(); err != nil {
		return err
	}
	src, err := NewSource(r.req.Doc, raw, dir)
	if err != nil {
		return err
	}
	r.src = &src
	return nil
}

// attempt runs one engine and records the result on the task.
func (r *runner) attempt(ctx context.Context, f Format) error {
	start := time.Now()
	name := ""
	if e, ok := r.p.engines[f]; ok {
		name = e.Name()
	}
	out, err := r.convert(ctx, f)

	a := Attempt{Format: f, Engine: name, Duration: time.Since(start)}
	if err != nil {
		a.Error = err.Error()
	} else {
		r.produced, r.output = f, out
	}
	r.p.update(r.j, func(t *Task) { t.Attempts = append(t.Attempts, a) })
	log.Event("convert:attempt", string(f)).Author(r.owner).Doc(r.req.Doc).
		Detail("task", r.j.task.ID).
		Detail("engine", name).
		Write(err)
	return err
}

// convert stages, verifies and moves one artifact into place.
func (r *runner) convert(ctx context.Context, f Format) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", cancelled(f, err)
	}
	eng, ok := r.p.engines[f]
	if !ok {
		return "", unavailable(f, "", "no engine registered for format")
	}

	out := r.p.OutputPath(r.req.Doc, f)
	if !r.req.Overwrite {
		if _, err := os.Stat(out); err == nil {
			return "", failure.Validation(failure.CodeOutputExists, "output already exists").
				With("path", out).
				Suggest("pass --overwrite to replace it")
		}
	}

	if err := os.MkdirAll(r.p.staging, 0755); err != nil {
		return "", failure.IO(failure.CodeWrite, "create staging directory").Wrap(err)
	}
	tmp, err := os.CreateTemp(r.p.staging, fmt.Sprintf("%s-%s-*.part", r.j.task.ID, f))
	if err != nil {
		return "", failure.IO(failure.CodeWrite, "create staging file").Wrap(err)
	}
	r.staged = append(r.staged, tmp.Name())

	actx, cancel := context.WithTimeout(ctx, r.p.cfg.AttemptTimeout)
	defer cancel()
	err = eng.Convert(actx, *r.src, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = failure.IO(failure.CodeWrite, "close staging file").Wrap(cerr)
	}
	if err != nil {
		return "", r.engineError(ctx, actx, eng, err)
	}

	info, err := os.Stat(tmp.Name())
	if err != nil {
		return "", failure.From(err)
	}
	if info.Size() == 0 {
		return "", failure.Engine(failure.CodeVerifyFailed, "engine produced an empty artifact").
			With("format", string(f)).With("engine", eng.Name())
	}
	if v, ok := eng.(Verifier); ok {
		if err := v.Verify(tmp.Name()); err != nil {
			return "", failure.Engine(failure.CodeVerifyFailed, "artifact failed verification").
				With("format", string(f)).With("engine", eng.Name()).Wrap(err)
		}
	}

	if err := ctx.Err(); err != nil {
		return "", cancelled(f, err)
	}
	if err := r.held.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", failure.IO(failure.CodeWrite, "create output directory").Wrap(err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return "", failure.From(err)
	}
	if err := atomic.ReplaceFile(tmp.Name(), out); err != nil {
		return "", failure.IO(failure.CodeWrite, "move artifact into place").
			With("path", out).Wrap(err)
	}
	return out, nil
}

func (r *runner) engineError(ctx, actx context.Context, eng Engine, err error) error {
	f := eng.Format()
	switch {
	case ctx.Err() != nil:
		return cancelled(f, ctx.Err())
	case errors.Is(actx.Err(), context.DeadlineExceeded):
		return failure.Engine(failure.CodeTimeout, "conversion attempt timed out").
			With("format", string(f)).
			With("engine", eng.Name()).
			With("timeout", r.p.cfg.AttemptTimeout.String()).
			Wrap(err)
	}
	if fe, ok := failure.As(err); ok {
		return fe
	}
	return failure.Engine(failure.CodeEngineFailed, "conversion failed").
		With("format", string(f)).With("engine", eng.Name()).Wrap(err)
}

func cancelled(f Format, err error) *failure.Error {
	return failure.Engine(failure.CodeCancelled, "conversion cancelled").
		With("format", string(f)).Wrap(err)
}

// cleanup removes staged partials and releases the lock.
func (r *runner) cleanup(ctx context.Context) {
	for _, path := range r.staged {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Event("convert:cleanup", "remove").Doc(r.req.Doc).Detail("path", path).Write(err)
		}
	}
	r.staged = nil
	if r.held != nil {
		_ = r.held.Release(ctx)
	}
}
