package document

import (
	"context"

	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/section"
)

// Locks returns the records held on a document.
func (s *Service) Locks(ctx context.Context, doc string) ([]lock.Record, error) {
	id, err := section.Normalise(doc)
	if err != nil {
		return nil, err
	}
	return s.locks.List(ctx, id)
}

// ForceRelease removes a stale lock record. The actor is the context owner.
func (s *Service) ForceRelease(ctx context.Context, doc, scope string) error {
	id, err := section.Normalise(doc)
	if err != nil {
		return err
	}
	return s.locks.ForceRelease(ctx, id, scope, section.Owner(ctx))
}

// Sweep removes stale records on the given documents, or on every document
// in the workspace when none are given.
func (s *Service) Sweep(ctx context.Context, docs ...string) ([]lock.Record, error) {
	if len(docs) == 0 {
		all, err := s.Documents(ctx, "")
		if err != nil {
			return nil, err
		}
		docs = all
	}
	var swept []lock.Record
	for _, doc := range docs {
		id, err := section.Normalise(doc)
		if err != nil {
			return swept, err
		}
		recs, err := s.locks.Sweep(ctx, id)
		if err != nil {
			return swept, err
		}
		swept = append(swept, recs...)
	}
	return swept, nil
}
