// Package tag provides tag operations over the metadata "tags" key for the
// CLI layer.
//
// Tags live in the document's metadata block, so every change goes through
// SetMetadata and is checked by the same rules as any metadata edit: unique
// alphanumeric tokens, at most marker.MaxTags per document.

package tag

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/marker"
)

// Store reads and writes document metadata.
type Store interface {
	Documents(ctx context.Context, prefix string) ([]string, error)
	Metadata(ctx context.Context, doc string) (marker.Metadata, error)
	SetMetadata(ctx context.Context, doc, key string, value any) error
}

// Result contains the outcome of a tag operation.
type Result struct {
	Doc    string   `json:"doc,omitempty"`
	Tag    string   `json:"tag,omitempty"`
	Action string   `json:"action,omitempty"`
	Tags   []string `json:"tags"`
}

// Add adds a tag to a document. Adding a tag the document already carries
// changes nothing.
func Add(ctx context.Context, w io.Writer, s Store, doc, tag string) (Result, error) {
	result := Result{Doc: doc, Tag: tag, Action: "add"}

	m, err := s.Metadata(ctx, doc)
	if err != nil {
		return result, err
	}
	tags := m.Tags()
	if slices.Contains(tags, tag) {
		result.Tags = tags
		fmt.Fprintf(w, "%s already tagged %q\n", doc, tag)
		return result, nil
	}

	tags = append(slices.Clone(tags), tag)
	if err := s.SetMetadata(ctx, doc, marker.KeyTags, tags); err != nil {
		return result, err
	}
	result.Tags = tags

	fmt.Fprintf(w, "Added tag %q to %s\n", tag, doc)
	return result, nil
}

// Remove removes a tag from a document. The tags key is dropped once the
// last tag is gone.
func Remove(ctx context.Context, w io.Writer, s Store, doc, tag string) (Result, error) {
	result := Result{Doc: doc, Tag: tag, Action: "remove"}

	m, err := s.Metadata(ctx, doc)
	if err != nil {
		return result, err
	}
	tags := m.Tags()
	i := slices.Index(tags, tag)
	if i < 0 {
		return result, failure.Validation(failure.CodeNotFound, "tag not found").
			With("doc", doc).
			With("tag", tag)
	}

	tags = slices.Delete(slices.Clone(tags), i, i+1)
	var value any
	if len(tags) > 0 {
		value = tags
	}
	if err := s.SetMetadata(ctx, doc, marker.KeyTags, value); err != nil {
		return result, err
	}
	result.Tags = tags

	fmt.Fprintf(w, "Removed tag %q from %s\n", tag, doc)
	return result, nil
}

// List lists the tags of a document, or every tag in the workspace when doc
// is empty. Documents whose metadata cannot be read are skipped in the
// workspace listing.
func List(ctx context.Context, w io.Writer, s Store, doc string) (Result, error) {
	result := Result{Doc: doc}

	if doc != "" {
		m, err := s.Metadata(ctx, doc)
		if err != nil {
			return result, err
		}
		result.Tags = m.Tags()
	} else {
		ids, err := s.Documents(ctx, "")
		if err != nil {
			return result, err
		}
		for _, id := range ids {
			m, err := s.Metadata(ctx, id)
			if err != nil {
				continue
			}
			result.Tags = append(result.Tags, m.Tags()...)
		}
		slices.Sort(result.Tags)
		result.Tags = slices.Compact(result.Tags)
	}

	if result.Tags == nil {
		result.Tags = []string{}
	}
	for _, t := range result.Tags {
		fmt.Fprintln(w, t)
	}
	return result, nil
}
