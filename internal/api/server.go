// Package api serves the quill service over HTTP as a JSON API. Routes take
// the document id in the doc query parameter since ids contain slashes.
// The X-Quill-Author header names the lock owner for mutations.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jpl-au/quill/internal/document"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/service"
)

// AuthorHeader names the caller; it becomes the lock owner.
const AuthorHeader = "X-Quill-Author"

const shutdownTimeout = 30 * time.Second

// Options configures a Server.
type Options struct {
	// Token, when set, is required as a bearer token on /api routes.
	Token string
}

// Server is the HTTP API server for quill.
type Server struct {
	router chi.Router
	svc    service.Service
	log    *slog.Logger
	opts   Options
}

// NewServer creates and configures the HTTP server.
func NewServer(svc service.Service, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, log: logger, opts: opts}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(s.opts.Token))
		r.Use(OwnerMiddleware)

		r.Get("/documents", s.handleListDocuments)
		r.Post("/documents", s.handleCreateDocument)
		r.Get("/document", s.handleReadDocument)
		r.Put("/document", s.handlePutDocument)
		r.Get("/metadata", s.handleGetMetadata)
		r.Patch("/metadata", s.handlePatchMetadata)
		r.Get("/lint", s.handleLint)

		r.Get("/sections", s.handleListSections)
		r.Get("/section", s.handleGetSection)
		r.Head("/section", s.handleSectionExists)
		r.Post("/section", s.handleAppendSection)
		r.Put("/section", s.handleEditSection)
		r.Delete("/section", s.handleDeleteSection)
		r.Post("/replace", s.handleReplace)
		r.Get("/grep", s.handleGrep)

		r.Get("/locks", s.handleListLocks)
		r.Delete("/locks", s.handleReleaseLock)
		r.Post("/locks/sweep", s.handleSweepLocks)

		r.Get("/snapshots", s.handleHistory)
		r.Post("/snapshots", s.handleSnapshot)
		r.Delete("/snapshots", s.handlePrune)
		r.Get("/snapshots/{version}", s.handleReadSnapshot)
		r.Post("/snapshots/{version}/verify", s.handleVerify)
		r.Post("/snapshots/{version}/restore", s.handleRestore)
		r.Get("/diff", s.handleDiff)

		r.Get("/conversions", s.handleListConversions)
		r.Post("/conversions", s.handleConvert)
		r.Get("/conversions/{id}", s.handleGetConversion)
		r.Delete("/conversions/{id}", s.handleCancelConversion)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "workspace": s.svc.Root()})
}

// Serve opens the workspace at dir (discovered when empty) and serves the
// API on addr until ctx ends.
func Serve(ctx context.Context, dir, addr string, opts Options, logger *slog.Logger) error {
	svc, err := document.New(dir)
	if err != nil {
		return err
	}
	defer svc.Close()
	log.SetProject(svc.Root())

	srv := &http.Server{
		Addr:              addr,
		Handler:           NewServer(svc, logger, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("quill API listening", "addr", addr, "workspace", svc.Root())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
