package section

import (
	"context"
	"maps"

	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/marker"
)

// SetMetadata sets one metadata key under the document lock. A nil value
// removes the key. The resulting block must still validate.
func (s *Store) SetMetadata(ctx context.Context, doc, key string, value any) error {
	id, err := Normalise(doc)
	if err != nil {
		return err
	}
	return s.mutate(ctx, id, lock.Document, "metadata", func(d *marker.Document) (bool, error) {
		next := maps.Clone(d.Meta)
		if next == nil {
			next = marker.Metadata{}
		}
		if value == nil {
			delete(next, key)
		} else {
			next[key] = value
		}
		if err := next.Validate(); err != nil {
			return false, withDoc(err, id)
		}
		d.ReplaceMeta(next)
		return true, nil
	})
}
