package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jpl-au/quill/internal/diff"
	"github.com/jpl-au/quill/internal/snapshot"
)

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	doc, err := docParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	e, err := s.svc.Snapshot(r.Context(), doc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	doc, err := docParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := s.svc.History(r.Context(), doc)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []snapshot.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": entries})
}

// handlePrune keeps the newest ?keep= snapshots, or versions.keep.
func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	doc, err := docParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	keep, err := intParam(r.URL.Query().Get("keep"), "keep", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	removed, err := s.svc.Prune(r.Context(), doc, keep)
	if err != nil {
		writeError(w, err)
		return
	}
	if removed == nil {
		removed = []snapshot.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// versionParams returns the doc query parameter and the {version} route
// parameter.
func versionParams(r *http.Request) (string, int, error) {
	doc, err := docParam(r)
	if err != nil {
		return "", 0, err
	}
	v, err := intParam(chi.URLParam(r, "version"), "version", 0)
	return doc, v, err
}

func (s *Server) handleReadSnapshot(w http.ResponseWriter, r *http.Request) {
	doc, v, err := versionParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := s.svc.Version(r.Context(), doc, v)
	if err != nil {
		writeError(w, err)
		return
	}
	writeMarkdown(w, b)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	doc, v, err := versionParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.Verify(r.Context(), doc, v); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doc": doc, "version": v, "ok": true})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	doc, v, err := versionParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.Restore(r.Context(), doc, v); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doc": doc, "restored": v})
}

// handleDiff compares ?from= and ?to=; zero or absent is the current
// document.
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	doc, err := docParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	from, err := intParam(q.Get("from"), "from", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := intParam(q.Get("to"), "to", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.Diff(r.Context(), doc, diff.Options{Version1: from, Version2: to})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
