package api

import (
	"net/http"

	"github.com/jpl-au/quill/internal/lock"
)

func (s *Server) handleListLocks(w http.ResponseWriter, r *http.Request) {
	doc, err := docParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	recs, err := s.svc.Locks(r.Context(), doc)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []lock.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"locks": recs})
}

// handleReleaseLock force-releases a stale lock; ?scope= names a section,
// absent means the document lock.
func (s *Server) handleReleaseLock(w http.ResponseWriter, r *http.Request) {
	doc, err := docParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.ForceRelease(r.Context(), doc, r.URL.Query().Get("scope")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSweepLocks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Docs []string `json:"docs"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	removed, err := s.svc.Sweep(r.Context(), req.Docs...)
	if err != nil {
		writeError(w, err)
		return
	}
	if removed == nil {
		removed = []lock.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}
