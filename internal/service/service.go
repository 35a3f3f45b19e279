// Package service defines the shared interface for quill operations.
// Commands, MCP tools and the HTTP API depend on this interface rather than
// the concrete document service, so each surface can be tested with a fake.
package service

import (
	"context"

	"github.com/jpl-au/quill/internal/convert"
	"github.com/jpl-au/quill/internal/diff"
	"github.com/jpl-au/quill/internal/lint"
	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/jpl-au/quill/internal/section"
	"github.com/jpl-au/quill/internal/snapshot"
)

// Service defines all document operations.
//
// Obtain one with document.New and always Close it:
//
//	svc, err := document.New("")
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//	body, err := svc.Get(ctx, "reports/q3", "Intro")
//
// Mutations take their lock owner from the context (see section.WithOwner).
// Every error is a *failure.Error or wraps one.
type Service interface {
	// Close stops the conversion pipeline. Running conversions are
	// cancelled and cleaned up.
	Close() error

	// Root returns the workspace root.
	Root() string

	Sections

	Locks

	Versions

	Converter

	// Lint checks a document without changing it.
	Lint(ctx context.Context, doc string) (lint.Result, error)

	// Put writes a whole document, used by import. An existing document is
	// only replaced when overwrite is set.
	Put(ctx context.Context, doc string, content []byte, overwrite bool) error
}

// Sections is the section-addressable document surface.
type Sections interface {
	// Create writes a new document holding only its metadata block.
	// Returns section.ErrExists when the id is taken.
	Create(ctx context.Context, doc string, meta marker.Metadata) error

	// Append adds a section under the document lock.
	Append(ctx context.Context, doc, title, content string, opts section.AppendOptions) error

	// Edit replaces one section body under that section's lock. Other
	// sections can be edited concurrently.
	Edit(ctx context.Context, doc, title, content string) error

	// Get returns a section body exactly as it was written.
	Get(ctx context.Context, doc, title string) (string, error)

	// Exists reports whether the document has a section with title. A
	// missing document is an error, not false.
	Exists(ctx context.Context, doc, title string) (bool, error)

	// List returns the addressable sections of a document in order.
	List(ctx context.Context, doc string) ([]section.Info, error)

	// Delete removes one section.
	Delete(ctx context.Context, doc, title string) error

	// Replace substitutes text in the preamble and section bodies.
	Replace(ctx context.Context, doc, pattern, replacement string, opts section.ReplaceOptions) (section.ReplaceResult, error)

	// Metadata returns the metadata block.
	Metadata(ctx context.Context, doc string) (marker.Metadata, error)

	// SetMetadata sets one key. A nil value removes it.
	SetMetadata(ctx context.Context, doc, key string, value any) error

	// Read returns the raw document bytes.
	Read(ctx context.Context, doc string) ([]byte, error)

	// Documents lists document ids under prefix ("" for all).
	Documents(ctx context.Context, prefix string) ([]string, error)
}

// Locks exposes lock inspection and recovery.
type Locks interface {
	// Locks returns the records held on a document, stale ones included.
	Locks(ctx context.Context, doc string) ([]lock.Record, error)

	// ForceRelease removes a stale record. Live records are refused with
	// lock.ErrActive.
	ForceRelease(ctx context.Context, doc, scope string) error

	// Sweep removes every stale record on the listed documents, or on
	// every document when none are given.
	Sweep(ctx context.Context, docs ...string) ([]lock.Record, error)
}

// Versions is the snapshot surface.
type Versions interface {
	// Snapshot records the current document as the next version and
	// stamps the version key when the metadata carries one.
	Snapshot(ctx context.Context, doc string) (snapshot.Entry, error)

	// History lists snapshots, oldest first.
	History(ctx context.Context, doc string) ([]snapshot.Entry, error)

	// Version returns the bytes of snapshot n.
	Version(ctx context.Context, doc string, n int) ([]byte, error)

	// Diff compares two versions; zero is the current document.
	Diff(ctx context.Context, doc string, opts diff.Options) (diff.Result, error)

	// Verify checks snapshot n against its recorded checksum.
	Verify(ctx context.Context, doc string, n int) error

	// Prune keeps the newest keep snapshots. Zero uses the configured
	// retention.
	Prune(ctx context.Context, doc string, keep int) ([]snapshot.Entry, error)

	// Restore verifies snapshot n and writes it back as the document.
	Restore(ctx context.Context, doc string, n int) error
}

// Converter is the conversion pipeline surface.
type Converter interface {
	// Convert runs a conversion and waits for it.
	Convert(ctx context.Context, req convert.Request) (convert.Task, error)

	// Schedule queues a conversion and returns at once.
	Schedule(ctx context.Context, req convert.Request) (convert.Task, error)

	// Task returns a task by id.
	Task(ctx context.Context, id string) (convert.Task, error)

	// Tasks lists known tasks, oldest first.
	Tasks(ctx context.Context) ([]convert.Task, error)

	// Wait blocks until a task finishes or ctx ends.
	Wait(ctx context.Context, id string) (convert.Task, error)

	// Cancel stops a queued or running task.
	Cancel(ctx context.Context, id string) error
}
