// resources.go exposes documents as MCP resources.
//
//	quill://documents/{doc}                 current document
//	quill://documents/{doc}/v/{version}     a snapshot
//	quill://documents/{doc}/s/{title}       one section body

package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const documentsURI = "quill://documents/"

var (
	// ErrInvalidURI indicates a malformed resource URI.
	ErrInvalidURI = errors.New("invalid URI")
	// ErrEmptyPath indicates a missing document id in a resource URI.
	ErrEmptyPath = errors.New("empty document path")
)

// resourceRef is a parsed document URI.
type resourceRef struct {
	Doc     string
	Version int
	Section string
}

// registerResources adds URI-based access for direct document reading.
func registerResources(s *server.MCPServer, h *handlers) {
	s.AddResourceTemplate(
		mcp.NewResourceTemplate(
			documentsURI+"{path}",
			"Document",
			mcp.WithTemplateDescription("Read document content by id"),
			mcp.WithTemplateMIMEType("text/markdown"),
		),
		h.readResource,
	)
	s.AddResourceTemplate(
		mcp.NewResourceTemplate(
			documentsURI+"{path}/v/{version}",
			"Document Version",
			mcp.WithTemplateDescription("Read a snapshot of a document"),
			mcp.WithTemplateMIMEType("text/markdown"),
		),
		h.readResource,
	)
	s.AddResourceTemplate(
		mcp.NewResourceTemplate(
			documentsURI+"{path}/s/{title}",
			"Document Section",
			mcp.WithTemplateDescription("Read one section body; the title is URL-escaped"),
			mcp.WithTemplateMIMEType("text/markdown"),
		),
		h.readResource,
	)
}

func (h *handlers) readResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if h.svc == nil {
		return nil, errors.New(ErrNotInitialised)
	}
	ref, err := parseDocumentURI(req.Params.URI)
	if err != nil {
		return nil, err
	}

	var text string
	switch {
	case ref.Section != "":
		text, err = h.svc.Get(ctx, ref.Doc, ref.Section)
	case ref.Version > 0:
		var b []byte
		b, err = h.svc.Version(ctx, ref.Doc, ref.Version)
		text = string(b)
	default:
		var b []byte
		b, err = h.svc.Read(ctx, ref.Doc)
		text = string(b)
	}
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     text,
		},
	}, nil
}

// parseDocumentURI extracts the document, version and section from a URI.
func parseDocumentURI(uri string) (resourceRef, error) {
	rest, ok := strings.CutPrefix(uri, documentsURI)
	if !ok {
		return resourceRef{}, fmt.Errorf("%w: %s", ErrInvalidURI, uri)
	}
	if rest == "" {
		return resourceRef{}, ErrEmptyPath
	}

	if doc, title, ok := cutLast(rest, "/s/"); ok {
		t, err := url.PathUnescape(title)
		if err != nil || t == "" {
			return resourceRef{}, fmt.Errorf("%w: invalid section %s", ErrInvalidURI, title)
		}
		return resourceRef{Doc: doc, Section: t}, nil
	}
	if doc, v, ok := cutLast(rest, "/v/"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return resourceRef{}, fmt.Errorf("%w: invalid version %s", ErrInvalidURI, v)
		}
		return resourceRef{Doc: doc, Version: n}, nil
	}
	return resourceRef{Doc: rest}, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i <= 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
