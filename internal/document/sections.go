// sections.go implements the section operations of the service.
//
// Mutations go through the recovery chain so a stale lock or a transient
// write failure is retried before the caller sees it. Reads do not lock and
// are served straight from the store.

package document

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/lint"
	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/jpl-au/quill/internal/section"
)

// Create writes a new document holding only its metadata block.
func (s *Service) Create(ctx context.Context, doc string, meta marker.Metadata) error {
	id, err := section.Normalise(doc)
	if err != nil {
		return err
	}
	return s.run(ctx, "section:create", "create", id, lock.Document, func(ctx context.Context) error {
		return s.store.Create(ctx, id, meta)
	})
}

// Append adds a section.
func (s *Service) Append(ctx context.Context, doc, title, content string, opts section.AppendOptions) error {
	id, err := section.Normalise(doc)
	if err != nil {
		return err
	}
	return s.run(ctx, "section:append", "append", id, lock.Document, func(ctx context.Context) error {
		return s.store.Append(ctx, id, title, content, opts)
	})
}

// Edit replaces one section body.
func (s *Service) Edit(ctx context.Context, doc, title, content string) error {
	id, err := section.Normalise(doc)
	if err != nil {
		return err
	}
	return s.run(ctx, "section:edit", "edit", id, title, func(ctx context.Context) error {
		return s.store.Edit(ctx, id, title, content)
	})
}

// Delete removes one section.
func (s *Service) Delete(ctx context.Context, doc, title string) error {
	id, err := section.Normalise(doc)
	if err != nil {
		return err
	}
	return s.run(ctx, "section:delete", "delete", id, title, func(ctx context.Context) error {
		return s.store.Delete(ctx, id, title)
	})
}

// Replace substitutes text in the preamble and section bodies.
func (s *Service) Replace(ctx context.Context, doc, pattern, replacement string, opts section.ReplaceOptions) (section.ReplaceResult, error) {
	id, err := section.Normalise(doc)
	if err != nil {
		return section.ReplaceResult{}, err
	}
	var res section.ReplaceResult
	err = s.run(ctx, "section:replace", "replace", id, lock.Document, func(ctx context.Context) error {
		var err error
		res, err = s.store.SearchAndReplace(ctx, id, pattern, replacement, opts)
		return err
	})
	return res, err
}

// SetMetadata sets one metadata key. A nil value removes it.
func (s *Service) SetMetadata(ctx context.Context, doc, key string, value any) error {
	id, err := section.Normalise(doc)
	if err != nil {
		return err
	}
	return s.run(ctx, "section:metadata", "set", id, lock.Document, func(ctx context.Context) error {
		return s.store.SetMetadata(ctx, id, key, value)
	})
}

// Put writes a whole document.
func (s *Service) Put(ctx context.Context, doc string, content []byte, overwrite bool) error {
	id, err := section.Normalise(doc)
	if err != nil {
		return err
	}
	return s.run(ctx, "section:put", "put", id, lock.Document, func(ctx context.Context) error {
		return s.store.Put(ctx, id, content, overwrite)
	})
}

// Get returns a section body.
func (s *Service) Get(ctx context.Context, doc, title string) (string, error) {
	return s.store.Get(ctx, doc, title)
}

// Exists reports whether a section exists.
func (s *Service) Exists(ctx context.Context, doc, title string) (bool, error) {
	return s.store.Exists(ctx, doc, title)
}

// List returns the addressable sections of a document.
func (s *Service) List(ctx context.Context, doc string) ([]section.Info, error) {
	return s.store.Sections(ctx, doc)
}

// Metadata returns the metadata block.
func (s *Service) Metadata(ctx context.Context, doc string) (marker.Metadata, error) {
	return s.store.Metadata(ctx, doc)
}

// Read returns the raw document bytes.
func (s *Service) Read(ctx context.Context, doc string) ([]byte, error) {
	return s.store.Read(ctx, doc)
}

// Lint checks a document. Relative links resolve against the document's
// directory.
func (s *Service) Lint(ctx context.Context, doc string) (lint.Result, error) {
	id, err := section.Normalise(doc)
	if err != nil {
		return lint.Result{}, err
	}
	b, err := s.store.Read(ctx, id)
	if err != nil {
		return lint.Result{}, err
	}
	return lint.Check(id, b, lint.Options{Dir: filepath.Dir(s.store.File(id))}), nil
}

func fmtIOError(msg, path string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return failure.From(err)
	}
	return failure.IO(failure.CodeRead, msg).With("path", path).Wrap(err)
}
