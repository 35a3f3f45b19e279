package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/jpl-au/quill/internal/failure"
)

// maxBody bounds request bodies; documents are capped well below it.
const maxBody = 64 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMarkdown(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeError classifies err and writes it with the matching status. The
// body carries the typed error under "error".
func writeError(w http.ResponseWriter, err error) {
	if sw, ok := w.(*statusWriter); ok {
		sw.err = err
	}
	fe := failure.From(err)
	writeJSON(w, Status(fe), map[string]any{"error": fe})
}

// Status maps a typed error to an HTTP status code.
func Status(fe *failure.Error) int {
	switch fe.Code {
	case failure.CodeNotFound:
		return http.StatusNotFound
	case failure.CodeExists, failure.CodeOutputExists:
		return http.StatusConflict
	case failure.CodeLimitExceeded:
		return http.StatusRequestEntityTooLarge
	case failure.CodeLockTimeout, failure.CodeLockActive, failure.CodeLockLost:
		return http.StatusLocked
	case failure.CodeTimeout:
		return http.StatusGatewayTimeout
	case failure.CodeEngineUnavailable:
		return http.StatusServiceUnavailable
	case failure.CodePermission:
		return http.StatusForbidden
	}
	switch fe.Kind {
	case failure.KindValidation:
		return http.StatusBadRequest
	case failure.KindLock:
		return http.StatusLocked
	case failure.KindEngine:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return failure.Validation(failure.CodeInvalidContent, "invalid JSON body").Wrap(err)
	}
	return nil
}

// docParam returns the required doc query parameter.
func docParam(r *http.Request) (string, error) {
	doc := r.URL.Query().Get("doc")
	if doc == "" {
		return "", failure.Validation(failure.CodeInvalidContent, "doc query parameter is required")
	}
	return doc, nil
}

// intParam parses an optional integer parameter, returning def when absent.
func intParam(v, name string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, failure.Validation(failure.CodeInvalidContent, name+" must be an integer").With(name, v)
	}
	return n, nil
}

func boolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
