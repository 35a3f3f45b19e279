package document

import (
	"context"

	"github.com/jpl-au/quill/internal/diff"
	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/jpl-au/quill/internal/section"
	"github.com/jpl-au/quill/internal/snapshot"
)

// Snapshot records the current document as the next version. When the
// metadata carries a version key it is advanced to the new number, so the
// document names the snapshot it was last saved as.
func (s *Service) Snapshot(ctx context.Context, doc string) (snapshot.Entry, error) {
	id, err := section.Normalise(doc)
	if err != nil {
		return snapshot.Entry{}, err
	}
	var e snapshot.Entry
	err = s.run(ctx, "version:snapshot", "snapshot", id, lock.Document, func(ctx context.Context) error {
		var err error
		e, err = s.snaps.Snapshot(ctx, id)
		return err
	})
	if err != nil {
		return snapshot.Entry{}, err
	}

	meta, err := s.store.Metadata(ctx, id)
	if err != nil {
		return e, err
	}
	if _, ok := meta[marker.KeyVersion]; ok && meta.Version() != e.Version {
		if err := s.SetMetadata(ctx, id, marker.KeyVersion, e.Version); err != nil {
			return e, err
		}
	}
	return e, nil
}

// History lists snapshots, oldest first.
func (s *Service) History(ctx context.Context, doc string) ([]snapshot.Entry, error) {
	return s.snaps.List(ctx, doc)
}

// Version returns the bytes of snapshot n.
func (s *Service) Version(ctx context.Context, doc string, n int) ([]byte, error) {
	return s.snaps.Read(ctx, doc, n)
}

// Diff compares two versions.
func (s *Service) Diff(ctx context.Context, doc string, opts diff.Options) (diff.Result, error) {
	return s.snaps.Diff(ctx, doc, opts)
}

// Verify checks snapshot n against its recorded checksum.
func (s *Service) Verify(ctx context.Context, doc string, n int) error {
	return s.snaps.Verify(ctx, doc, n)
}

// Prune keeps the newest keep snapshots. Zero uses versions.keep.
func (s *Service) Prune(ctx context.Context, doc string, keep int) ([]snapshot.Entry, error) {
	id, err := section.Normalise(doc)
	if err != nil {
		return nil, err
	}
	if keep == 0 {
		keep = s.cfg.VersionsKeep()
	}
	var removed []snapshot.Entry
	err = s.run(ctx, "version:prune", "prune", id, lock.Document, func(ctx context.Context) error {
		var err error
		removed, err = s.snaps.Prune(ctx, id, keep)
		return err
	})
	return removed, err
}

// Restore verifies snapshot n and writes it back as the document. The
// current content is not snapshotted first; take one to keep it.
func (s *Service) Restore(ctx context.Context, doc string, n int) error {
	id, err := section.Normalise(doc)
	if err != nil {
		return err
	}
	if n <= 0 {
		return failure.Validation(failure.CodeInvalidContent, "version must be positive").
			With("doc", id).With("version", n)
	}
	if err := s.snaps.Verify(ctx, id, n); err != nil {
		return err
	}
	b, err := s.snaps.Read(ctx, id, n)
	if err != nil {
		return err
	}
	return s.run(ctx, "version:restore", "restore", id, lock.Document, func(ctx context.Context) error {
		return s.store.Restore(ctx, id, b)
	})
}
