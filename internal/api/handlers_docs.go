package api

import (
	"io"
	"net/http"
	"time"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/marker"
)

type createRequest struct {
	Doc    string         `json:"doc"`
	Title  string         `json:"title"`
	Date   string         `json:"date,omitempty"`
	Status string         `json:"status,omitempty"`
	Tags   []string       `json:"tags,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	ids, err := s.svc.Documents(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": ids})
}

// handleCreateDocument creates a document. The author header becomes the
// metadata author.
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	meta := marker.NewMetadata(req.Title, r.Header.Get(AuthorHeader), time.Now())
	if req.Date != "" {
		meta[marker.KeyDate] = req.Date
	}
	if req.Status != "" {
		meta[marker.KeyStatus] = req.Status
	}
	if req.Tags != nil {
		meta[marker.KeyTags] = req.Tags
	}
	for k, v := range req.Meta {
		if _, ok := meta[k]; !ok {
			meta[k] = v
		}
	}
	if err := s.svc.Create(r.Context(), req.Doc, meta); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"doc": req.Doc, "metadata": meta})
}

// handleReadDocument returns the raw document, or snapshot ?version=n.
func (s *Server) handleReadDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := docParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := intParam(r.URL.Query().Get("version"), "version", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	var b []byte
	if v > 0 {
		b, err = s.svc.Version(r.Context(), doc, v)
	} else {
		b, err = s.svc.Read(r.Context(), doc)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeMarkdown(w, b)
}

// handlePutDocument writes the request body as the whole document.
// Headings without markers are annotated first.
func (s *Server) handlePutDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := docParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, failure.IO(failure.CodeRead, "read request body").Wrap(err))
		return
	}
	annotated, n := marker.Annotate(b)
	if err := s.svc.Put(r.Context(), doc, annotated, boolParam(r, "overwrite")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doc": doc, "markers_added": n})
}

func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	doc, err := docParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	m, err := s.svc.Metadata(r.Context(), doc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handlePatchMetadata applies each key of a JSON object in turn; a null
// value removes the key.
func (s *Server) handlePatchMetadata(w http.ResponseWriter, r *http.Request) {
	doc, err := docParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var patch map[string]any
	if err := decode(r, &patch); err != nil {
		writeError(w, err)
		return
	}
	for k, v := range patch {
		if err := s.svc.SetMetadata(r.Context(), doc, k, v); err != nil {
			writeError(w, err)
			return
		}
	}
	s.handleGetMetadata(w, r)
}

func (s *Server) handleLint(w http.ResponseWriter, r *http.Request) {
	doc, err := docParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.Lint(r.Context(), doc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
