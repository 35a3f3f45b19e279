package api

import (
	"net/http"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/section"
)

type appendRequest struct {
	Title          string `json:"title"`
	Content        string `json:"content"`
	Level          int    `json:"level,omitempty"`
	AllowDuplicate bool   `json:"allow_duplicate,omitempty"`
	After          string `json:"after,omitempty"`
}

type editRequest struct {
	Content string `json:"content"`
}

type replaceRequest struct {
	Old        string `json:"old"`
	New        string `json:"new"`
	Regexp     bool   `json:"regexp,omitempty"`
	IgnoreCase bool   `json:"ignore_case,omitempty"`
	First      bool   `json:"first,omitempty"`
}

func (s *Server) handleListSections(w http.ResponseWriter, r *http.Request) {
	doc, err := docParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	infos, err := s.svc.List(r.Context(), doc)
	if err != nil {
		writeError(w, err)
		return
	}
	if infos == nil {
		infos = []section.Info{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sections": infos})
}

// sectionParams returns the required doc and title query parameters.
func sectionParams(r *http.Request) (doc, title string, err error) {
	if doc, err = docParam(r); err != nil {
		return "", "", err
	}
	title = r.URL.Query().Get("title")
	if title == "" {
		return "", "", failure.Validation(failure.CodeInvalidTitle, "title query parameter is required")
	}
	return doc, title, nil
}

func (s *Server) handleGetSection(w http.ResponseWriter, r *http.Request) {
	doc, title, err := sectionParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := s.svc.Get(r.Context(), doc, title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"title": title, "body": body})
}

// handleSectionExists answers HEAD with 200 or 404. A missing document is
// reported with its own error status.
func (s *Server) handleSectionExists(w http.ResponseWriter, r *http.Request) {
	doc, title, err := sectionParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ok, err := s.svc.Exists(r.Context(), doc, title)
	switch {
	case err != nil:
		writeError(w, err)
	case ok:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) handleAppendSection(w http.ResponseWriter, r *http.Request) {
	doc, err := docParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req appendRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	err = s.svc.Append(r.Context(), doc, req.Title, req.Content, section.AppendOptions{
		AllowDuplicate: req.AllowDuplicate,
		Level:          req.Level,
		After:          req.After,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"doc": doc, "title": req.Title})
}

func (s *Server) handleEditSection(w http.ResponseWriter, r *http.Request) {
	doc, title, err := sectionParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req editRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.Edit(r.Context(), doc, title, req.Content); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"doc": doc, "title": title})
}

func (s *Server) handleDeleteSection(w http.ResponseWriter, r *http.Request) {
	doc, title, err := sectionParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.Delete(r.Context(), doc, title); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	doc, err := docParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req replaceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.Replace(r.Context(), doc, req.Old, req.New, section.ReplaceOptions{
		CaseSensitive: !req.IgnoreCase,
		Regexp:        req.Regexp,
		First:         req.First,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
