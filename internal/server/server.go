// Package server exposes the alt text batch endpoint, the generation endpoint
// and the admin configuration endpoints over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/alttext"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/artisan"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/httpjson"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/nonce"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/page"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/settings"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/version"
)

// SettingsStore reads and updates settings
type SettingsStore interface {
	Load(ctx context.Context) (settings.Settings, error)
	Update(ctx context.Context, values map[string]string) (settings.Settings, error)
}

// Deps are the components the server routes to. Artisan may be nil when no
// image model is configured.
type Deps struct {
	AltText  *alttext.Handler
	Artisan  *artisan.Handler
	Renderer *page.Renderer
	Settings SettingsStore
	Nonces   *nonce.Manager
}

// Config tunes the HTTP server
type Config struct {
	Addr           string
	AdminToken     string
	RequestTimeout time.Duration
}

type Server struct {
	cfg  Config
	deps Deps
	log  logrus.FieldLogger
	http *http.Server
}

func New(cfg Config, deps Deps, log logrus.FieldLogger) *Server {
	s := &Server{cfg: cfg, deps: deps, log: log}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
	}
	return s
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger(s.log))
	r.Use(enableCORS)

	r.HandleFunc("/health", healthCheck).Methods(http.MethodGet)

	admin := adminOnly(s.cfg.AdminToken)
	r.Handle("/api/alttext/stats", admin(http.HandlerFunc(s.deps.AltText.Stats))).Methods(http.MethodGet)
	r.Handle("/api/alttext/config", admin(http.HandlerFunc(s.bulkConfig))).Methods(http.MethodGet)
	r.Handle("/api/artisan/config", admin(http.HandlerFunc(s.artisanConfig))).Methods(http.MethodGet)
	r.Handle("/api/settings", admin(http.HandlerFunc(s.getSettings))).Methods(http.MethodGet)
	r.Handle("/api/settings", admin(http.HandlerFunc(s.putSettings))).Methods(http.MethodPut)

	bulk := nonceRequired(s.deps.Nonces, nonce.ActionBulk)
	r.Handle("/api/alttext/runs", bulk(http.HandlerFunc(s.deps.AltText.StartRun))).Methods(http.MethodPost)
	r.Handle("/api/alttext/runs/{id}", bulk(http.HandlerFunc(s.deps.AltText.GetRun))).Methods(http.MethodGet)
	r.Handle("/api/alttext/runs/{id}/batch", bulk(http.HandlerFunc(s.deps.AltText.ProcessBatch))).Methods(http.MethodPost)
	r.Handle("/api/alttext/runs/{id}/cancel", bulk(http.HandlerFunc(s.deps.AltText.CancelRun))).Methods(http.MethodPost)

	gen := nonceRequired(s.deps.Nonces, nonce.ActionGenerate)
	r.Handle("/api/artisan/generate", gen(http.HandlerFunc(s.generate))).Methods(http.MethodPost)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithFields(logrus.Fields{
			"addr":    s.cfg.Addr,
			"version": version.Version,
		}).Info("Server starting")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "w3a11y",
		"version": version.Version,
	})
}

func (s *Server) bulkConfig(w http.ResponseWriter, r *http.Request) {
	filter, err := alttext.StatsFilter(r)
	if err != nil {
		httpjson.Error(w, err)
		return
	}
	cfg, err := s.deps.Renderer.BulkConfig(r.Context(), session(r), filter)
	if err != nil {
		httpjson.Error(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, cfg)
}

func (s *Server) artisanConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Renderer.ArtisanConfig(r.Context(), session(r))
	if err != nil {
		httpjson.Error(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, cfg)
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	cur, err := s.deps.Settings.Load(r.Context())
	if err != nil {
		httpjson.Error(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, cur)
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	var values map[string]string
	if err := httpjson.Decode(r, &values); err != nil {
		httpjson.Error(w, err)
		return
	}
	updated, err := s.deps.Settings.Update(r.Context(), values)
	if err != nil {
		httpjson.Error(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, updated)
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Artisan == nil {
		httpjson.Error(w, apperrors.New(apperrors.KindConfig, "server.generate", "image generation is not configured"))
		return
	}
	s.deps.Artisan.Generate(w, r)
}
