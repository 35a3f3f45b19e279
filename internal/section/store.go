// Package section implements section-addressed reads and writes of quill
// documents.
//
// Writers take a lock through the lock registry first: the section scope for
// Edit and Delete, the document scope for everything that changes structure
// (Create, Append, SearchAndReplace, SetMetadata, Restore). The
// read-modify-write itself then runs under a short commit guard on
// .locks/<base>/.commit so two writers holding different section locks never
// overwrite each other's changes. Commits replace the file by rename, so
// readers (Get, Exists, Sections) take no lock and never see a torn file.
package section

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/flock"
	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/marker"
	norm "github.com/jpl-au/quill/internal/path"
	"github.com/natefinch/atomic"
)

// Default ceilings enforced at write time.
const (
	DefaultMaxSections     = 1000
	DefaultMaxSectionSize  = 1 << 20
	DefaultMaxDocumentSize = 10 << 20
)

var (
	// ErrNotFound indicates a missing document or section.
	ErrNotFound = errors.New("not found")
	// ErrExists indicates a document or section title is already taken.
	ErrExists = errors.New("already exists")
	// ErrLimit indicates a size or count ceiling was exceeded.
	ErrLimit = errors.New("limit exceeded")
)

// Limits are the write-time ceilings.
type Limits struct {
	MaxSections     int
	MaxSectionSize  int
	MaxDocumentSize int
}

// DefaultLimits returns the built-in ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxSections:     DefaultMaxSections,
		MaxSectionSize:  DefaultMaxSectionSize,
		MaxDocumentSize: DefaultMaxDocumentSize,
	}
}

// Store reads and writes documents under a workspace root.
type Store struct {
	root   string
	locks  *lock.Registry
	limits Limits

	// LockTTL is the TTL requested for write locks. Zero uses the
	// registry default.
	LockTTL time.Duration
}

// New returns a store rooted at root using locks for mutual exclusion.
func New(root string, locks *lock.Registry, limits Limits) *Store {
	return &Store{root: root, locks: locks, limits: limits}
}

// Root returns the workspace root.
func (s *Store) Root() string { return s.root }

// Locks returns the lock registry the store acquires through.
func (s *Store) Locks() *lock.Registry { return s.locks }

// Limits returns the active ceilings.
func (s *Store) Limits() Limits { return s.limits }

// File returns the on-disk path of a normalised document id.
func (s *Store) File(id string) string {
	return filepath.Join(s.root, norm.File(id))
}

type ownerKey struct{}

// WithOwner returns a context that attributes locks to owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// Owner returns the lock owner carried by ctx, or a process-derived
// identity when none is set.
func Owner(ctx context.Context) string {
	if o, ok := ctx.Value(ownerKey{}).(string); ok && o != "" {
		return o
	}
	host, _ := os.Hostname()
	return fmt.Sprintf("pid-%d@%s", os.Getpid(), host)
}

// Normalise validates a document id, mapping path errors into the failure
// taxonomy.
func Normalise(doc string) (string, error) {
	id, err := norm.Normalise(doc)
	if err != nil {
		return "", failure.Validation(failure.CodeInvalidContent, "invalid document id").
			With("doc", doc).Wrap(err)
	}
	return id, nil
}

// Read returns the raw bytes of a document.
func (s *Store) Read(ctx context.Context, doc string) ([]byte, error) {
	id, err := Normalise(doc)
	if err != nil {
		return nil, err
	}
	return s.read(ctx, id)
}

func (s *Store) read(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.File(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, notFound(id, "")
	}
	if err != nil {
		return nil, failure.IO(failure.CodeRead, "read document").With("doc", id).Wrap(err)
	}
	return b, nil
}

// Load reads and parses a document.
func (s *Store) Load(ctx context.Context, doc string) (*marker.Document, error) {
	id, err := Normalise(doc)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

func (s *Store) load(ctx context.Context, id string) (*marker.Document, error) {
	b, err := s.read(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := marker.Parse(b)
	if err != nil {
		if fe, ok := failure.As(err); ok {
			return nil, fe.With("doc", id)
		}
		return nil, err
	}
	return d, nil
}

// mutate runs fn under the scope lock and the commit guard. fn reports
// whether it changed the document; unchanged documents are not rewritten.
func (s *Store) mutate(ctx context.Context, id, scope, op string, fn func(d *marker.Document) (bool, error)) error {
	l, err := s.locks.Acquire(ctx, id, scope, Owner(ctx), lock.Options{TTL: s.LockTTL, Operation: op})
	if err != nil {
		return err
	}
	defer l.Release(ctx)

	return s.commit(ctx, id, func() ([]byte, error) {
		d, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		changed, err := fn(d)
		if err != nil || !changed {
			return nil, err
		}
		return d.Render(), nil
	})
}

// commit runs build under the commit guard and writes its output. A nil
// result from build means nothing to write.
func (s *Store) commit(ctx context.Context, id string, build func() ([]byte, error)) error {
	guard := filepath.Join(s.locks.Dir(id), ".commit")
	return flock.With(ctx, guard, func() error {
		out, err := build()
		if err != nil || out == nil {
			return err
		}
		if err := s.checkDocument(id, out); err != nil {
			return err
		}
		return writeFile(s.File(id), out)
	})
}

// writeFile replaces path with b by rename. New files get 0644 since the
// temp file is created 0600.
func writeFile(path string, b []byte) error {
	_, statErr := os.Stat(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return failure.IO(failure.CodeWrite, "create document directory").With("path", path).Wrap(err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(b)); err != nil {
		return failure.IO(failure.CodeWrite, "write document").With("path", path).Wrap(err)
	}
	if errors.Is(statErr, os.ErrNotExist) {
		if err := os.Chmod(path, 0644); err != nil {
			return failure.IO(failure.CodePermission, "set document permissions").With("path", path).Wrap(err)
		}
	}
	return nil
}

func (s *Store) checkDocument(id string, b []byte) error {
	if s.limits.MaxDocumentSize > 0 && len(b) > s.limits.MaxDocumentSize {
		return limitError(id, "document too large", len(b), s.limits.MaxDocumentSize)
	}
	return nil
}

func (s *Store) checkSection(id, title string, body []byte) error {
	if s.limits.MaxSectionSize > 0 && len(body) > s.limits.MaxSectionSize {
		return limitError(id, "section too large", len(body), s.limits.MaxSectionSize).With("title", title)
	}
	return nil
}

func limitError(id, msg string, got, max int) *failure.Error {
	return failure.Validation(failure.CodeLimitExceeded, msg).
		With("doc", id).
		With("size", got).
		With("max", max).
		Wrap(ErrLimit)
}

func notFound(id, title string) *failure.Error {
	if title == "" {
		return failure.Validation(failure.CodeNotFound, "document not found").
			With("doc", id).
			Suggest("create it first with 'quill create'").
			Wrap(ErrNotFound)
	}
	return failure.Validation(failure.CodeNotFound, "section not found").
		With("doc", id).
		With("title", title).
		Suggest("list sections with 'quill sections'").
		Wrap(ErrNotFound)
}
