package section

import (
	"context"
	"maps"

	"github.com/jpl-au/quill/internal/marker"
)

// Info describes one addressable section.
type Info struct {
	Title string `json:"title"`
	Level int    `json:"level"`
	Size  int    `json:"size"`
}

// Get returns the body of a section. An empty section returns "".
func (s *Store) Get(ctx context.Context, doc, title string) (string, error) {
	d, id, err := s.parse(ctx, doc)
	if err != nil {
		return "", err
	}
	_, sec := d.Find(title)
	if sec == nil {
		return "", notFound(id, title)
	}
	return string(sec.Body), nil
}

// Exists reports whether the document carries a marker for title.
// Matching is case-sensitive.
func (s *Store) Exists(ctx context.Context, doc, title string) (bool, error) {
	d, _, err := s.parse(ctx, doc)
	if err != nil {
		return false, err
	}
	_, sec := d.Find(title)
	return sec != nil, nil
}

// Sections lists addressable sections in document order.
func (s *Store) Sections(ctx context.Context, doc string) ([]Info, error) {
	d, _, err := s.parse(ctx, doc)
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(d.Sections))
	for _, sec := range d.Sections {
		if !sec.Marked() {
			continue
		}
		out = append(out, Info{Title: sec.Title, Level: sec.Level, Size: len(sec.Body)})
	}
	return out, nil
}

// Metadata returns a copy of the document's metadata.
func (s *Store) Metadata(ctx context.Context, doc string) (marker.Metadata, error) {
	d, _, err := s.parse(ctx, doc)
	if err != nil {
		return nil, err
	}
	return maps.Clone(d.Meta), nil
}

func (s *Store) parse(ctx context.Context, doc string) (*marker.Document, string, error) {
	id, err := Normalise(doc)
	if err != nil {
		return nil, "", err
	}
	d, err := s.load(ctx, id)
	return d, id, err
}
