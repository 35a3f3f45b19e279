// write.go implements the mutating section operations.
//
// Each operation validates its input before taking a lock so that bad
// requests fail fast without contending with other writers.

package section

import (
	"bytes"
	"context"
	"os"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/marker"
)

// DefaultLevel is the heading level of appended sections.
const DefaultLevel = 2

// AppendOptions configures Append.
type AppendOptions struct {
	// AllowDuplicate appends content to an existing section of the same
	// title instead of failing.
	AllowDuplicate bool
	// Level is the heading level (1-6). Zero uses DefaultLevel.
	Level int
	// After inserts the new section directly after the named section
	// instead of at the end of the document.
	After string
}

// Create writes a new document holding only its metadata block.
func (s *Store) Create(ctx context.Context, doc string, meta marker.Metadata) error {
	id, err := Normalise(doc)
	if err != nil {
		return err
	}
	if err := meta.Validate(); err != nil {
		if fe, ok := failure.As(err); ok {
			return fe.With("doc", id)
		}
		return err
	}

	l, err := s.locks.Acquire(ctx, id, lock.Document, Owner(ctx), lock.Options{TTL: s.LockTTL, Operation: "create"})
	if err != nil {
		return err
	}
	defer l.Release(ctx)

	return s.commit(ctx, id, func() ([]byte, error) {
		if _, err := os.Stat(s.File(id)); err == nil {
			return nil, failure.Validation(failure.CodeExists, "document already exists").
				With("doc", id).
				Wrap(ErrExists)
		}
		return marker.EncodeFront(meta), nil
	})
}

// Append adds a section. An existing title is rejected unless
// AllowDuplicate is set, in which case content is added to that section's
// body.
func (s *Store) Append(ctx context.Context, doc, title, content string, opts AppendOptions) error {
	id, err := Normalise(doc)
	if err != nil {
		return err
	}
	if err := marker.CheckTitle(title); err != nil {
		return withDoc(err, id)
	}
	if content == "" {
		return failure.Validation(failure.CodeInvalidContent, "content is empty").
			With("doc", id).With("title", title)
	}
	body := []byte(content)
	if err := marker.CheckBody(body); err != nil {
		return withDoc(err, id)
	}
	level := opts.Level
	if level == 0 {
		level = DefaultLevel
	}
	if level < 1 || level > 6 {
		return failure.Validation(failure.CodeInvalidContent, "heading level must be between 1 and 6").
			With("level", level)
	}

	return s.mutate(ctx, id, lock.Document, "append", func(d *marker.Document) (bool, error) {
		if _, sec := d.Find(title); sec != nil {
			if !opts.AllowDuplicate {
				return false, failure.Validation(failure.CodeExists, "section already exists").
					With("doc", id).
					With("title", title).
					Suggest("use edit to replace it, or allow duplicates to extend it").
					Wrap(ErrExists)
			}
			merged := join(sec.Body, body)
			if err := marker.CheckBody(merged); err != nil {
				return false, withDoc(err, id)
			}
			if err := s.checkSection(id, title, merged); err != nil {
				return false, err
			}
			sec.SetBody(merged)
			return true, nil
		}

		if err := s.checkSection(id, title, body); err != nil {
			return false, err
		}
		if s.limits.MaxSections > 0 && d.Count() >= s.limits.MaxSections {
			return false, limitError(id, "too many sections", d.Count()+1, s.limits.MaxSections)
		}

		at := len(d.Sections)
		if opts.After != "" {
			i, _ := d.Find(opts.After)
			if i < 0 {
				return false, notFound(id, opts.After)
			}
			at = i + 1
		}
		d.Insert(at, marker.NewSection(level, title, body))
		return true, nil
	})
}

// join concatenates an existing body and new content, starting the content
// on its own line.
func join(existing, content []byte) []byte {
	out := bytes.Clone(existing)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return append(out, content...)
}

// Edit replaces the body of a section with content, byte for byte.
func (s *Store) Edit(ctx context.Context, doc, title, content string) error {
	id, err := Normalise(doc)
	if err != nil {
		return err
	}
	body := []byte(content)
	if err := marker.CheckBody(body); err != nil {
		return withDoc(err, id)
	}
	if err := s.checkSection(id, title, body); err != nil {
		return err
	}

	return s.mutate(ctx, id, title, "edit", func(d *marker.Document) (bool, error) {
		_, sec := d.Find(title)
		if sec == nil {
			return false, notFound(id, title)
		}
		if bytes.Equal(sec.Body, body) && len(sec.Term) > 0 {
			return false, nil
		}
		sec.SetBody(body)
		return true, nil
	})
}

// Delete removes a section: heading, marker and body.
func (s *Store) Delete(ctx context.Context, doc, title string) error {
	id, err := Normalise(doc)
	if err != nil {
		return err
	}
	return s.mutate(ctx, id, title, "delete", func(d *marker.Document) (bool, error) {
		i, _ := d.Find(title)
		if i < 0 {
			return false, notFound(id, title)
		}
		d.Remove(i)
		return true, nil
	})
}

// Restore replaces the whole document with content. The content must parse
// and its metadata must validate.
func (s *Store) Restore(ctx context.Context, doc string, content []byte) error {
	return s.put(ctx, doc, content, true, "restore")
}

// Put writes a whole document. An existing document is only replaced when
// overwrite is set; the check happens under the commit guard.
func (s *Store) Put(ctx context.Context, doc string, content []byte, overwrite bool) error {
	return s.put(ctx, doc, content, overwrite, "put")
}

func (s *Store) put(ctx context.Context, doc string, content []byte, overwrite bool, op string) error {
	id, err := Normalise(doc)
	if err != nil {
		return err
	}
	d, err := marker.Parse(content)
	if err != nil {
		return withDoc(err, id)
	}
	// A document without a metadata block has none of the required keys.
	m := d.Meta
	if m == nil {
		m = marker.Metadata{}
	}
	if err := m.Validate(); err != nil {
		return withDoc(err, id)
	}
	if s.limits.MaxSections > 0 && d.Count() > s.limits.MaxSections {
		return limitError(id, "too many sections", d.Count(), s.limits.MaxSections)
	}

	l, err := s.locks.Acquire(ctx, id, lock.Document, Owner(ctx), lock.Options{TTL: s.LockTTL, Operation: op})
	if err != nil {
		return err
	}
	defer l.Release(ctx)

	return s.commit(ctx, id, func() ([]byte, error) {
		if !overwrite {
			if _, err := os.Stat(s.File(id)); err == nil {
				return nil, failure.Validation(failure.CodeExists, "document already exists").
					With("doc", id).
					Suggest("pass overwrite to replace it").
					Wrap(ErrExists)
			}
		}
		return bytes.Clone(content), nil
	})
}

func withDoc(err error, id string) error {
	if fe, ok := failure.As(err); ok {
		return fe.With("doc", id)
	}
	return err
}
