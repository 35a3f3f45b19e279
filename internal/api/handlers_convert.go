package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jpl-au/quill/internal/convert"
	"github.com/jpl-au/quill/internal/failure"
)

type convertRequest struct {
	Doc        string   `json:"doc"`
	Target     string   `json:"target"`
	Fallback   []string `json:"fallback,omitempty"`
	NoFallback bool     `json:"no_fallback,omitempty"`
	Overwrite  bool     `json:"overwrite,omitempty"`
	Priority   int      `json:"priority,omitempty"`
}

func (c convertRequest) request() (convert.Request, error) {
	target, err := convert.ParseFormat(c.Target)
	if err != nil {
		return convert.Request{}, err
	}
	req := convert.Request{
		Doc:        c.Doc,
		Target:     target,
		Priority:   c.Priority,
		NoFallback: c.NoFallback,
		Overwrite:  c.Overwrite,
	}
	for _, name := range c.Fallback {
		f, err := convert.ParseFormat(name)
		if err != nil {
			return convert.Request{}, err
		}
		req.Fallback = append(req.Fallback, f)
	}
	return req, nil
}

// handleConvert queues a conversion and answers 202 with the task, or
// with ?wait=true blocks and answers with the finished task. A failed task
// is returned with the status of its error.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var body convertRequest
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	req, err := body.request()
	if err != nil {
		writeError(w, failure.Validation(failure.CodeInvalidContent, "unknown format").With("target", body.Target).Wrap(err))
		return
	}

	if !boolParam(r, "wait") {
		task, err := s.svc.Schedule(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, task)
		return
	}

	task, err := s.svc.Convert(r.Context(), req)
	writeTask(w, task, err)
}

func (s *Server) handleListConversions(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.svc.Tasks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []convert.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleGetConversion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var task convert.Task
	var err error
	if boolParam(r, "wait") {
		task, err = s.svc.Wait(r.Context(), id)
	} else {
		task, err = s.svc.Task(r.Context(), id)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancelConversion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.svc.Cancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	task, err := s.svc.Task(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// writeTask writes a finished task. Failed tasks carry the status of
// their error so clients can branch without reading the body.
func writeTask(w http.ResponseWriter, task convert.Task, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, task)
		return
	}
	if task.ID == "" {
		writeError(w, err)
		return
	}
	if sw, ok := w.(*statusWriter); ok {
		sw.err = err
	}
	writeJSON(w, Status(failure.From(err)), task)
}
