package api

import (
	"io"
	"net/http"

	"github.com/jpl-au/quill/internal/grep"
)

// handleGrep searches section bodies: ?pattern= is required; prefix, glob,
// section, ignore_case and invert narrow the search.
func (s *Server) handleGrep(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pattern := q.Get("pattern")
	if pattern == "" {
		jsonError(w, "pattern is required", http.StatusBadRequest)
		return
	}
	result, err := grep.Run(r.Context(), io.Discard, s.svc, pattern, grep.Options{
		Prefix:     q.Get("prefix"),
		Glob:       q.Get("glob"),
		Section:    q.Get("section"),
		IgnoreCase: boolParam(r, "ignore_case"),
		Invert:     boolParam(r, "invert"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if result.Hits == nil {
		result.Hits = []grep.DocMatch{}
	}
	writeJSON(w, http.StatusOK, result)
}
