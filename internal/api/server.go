// Package api exposes the documentation service over REST: context
// generation, repository management, search, and git webhooks.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/docscout/docscout/internal/errors"
	"github.com/docscout/docscout/internal/service"
	"github.com/docscout/docscout/pkg/version"
)

// Server is the HTTP API server.
type Server struct {
	http   *http.Server
	router *chi.Mux
	svc    *service.Service
	logger *slog.Logger
}

// NewServer builds the router and wraps it in an http.Server bound per the
// server configuration.
func NewServer(svc *service.Service, logger *slog.Logger) *Server {
	return NewServerWithPort(svc, logger, 0)
}

// NewServerWithPort is NewServer with a port override. A non-positive port
// keeps the configured one.
func NewServerWithPort(svc *service.Service, logger *slog.Logger, port int) *Server {
	cfg := svc.Config().Snapshot().Server
	if port > 0 {
		cfg.Port = port
	}

	s := &Server{
		svc:    svc,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	if cfg.RateLimitRPS > 0 {
		r.Use(rateLimiter(cfg.RateLimitRPS))
	}

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		// Webhooks authenticate per provider, not with the API token.
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/github/{name}", s.handleGithubWebhook)
			r.Post("/gitlab/{name}", s.handleGitlabWebhook)
			r.Post("/generic/{name}", s.handleGenericWebhook)
		})

		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(cfg.AuthToken))

			r.Post("/context/generate", s.handleGenerateContext)
			r.Post("/context/generate-formatted", s.handleGenerateFormatted)

			r.Get("/repos/status", s.handleRepoStatus)
			r.Post("/repos/sync", s.handleRepoSync)
			r.Post("/repos/add", s.handleRepoAdd)
			r.Put("/repos/{name}", s.handleRepoUpdate)
			r.Delete("/repos/{name}", s.handleRepoDelete)

			r.Get("/search", s.handleSearch)
			r.Get("/search/metadata", s.handleSearchMetadata)
			r.Get("/stats", s.handleStats)
		})
	})
	s.router = r

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Router returns the underlying router, for tests and embedding.
func (s *Server) Router() *chi.Mux { return s.router }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the JSON error body.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError maps an internal error to its HTTP status and JSON body.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errors.HTTPStatus(err), errorResponse{
		Error: err.Error(),
		Kind:  string(errors.KindOf(err)),
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

// decodeBody decodes a JSON request body, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, errors.KindValidation, "malformed request body")
	}
	return nil
}
