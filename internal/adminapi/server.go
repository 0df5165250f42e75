// Package adminapi exposes the HTTP surface operators use to curate the
// catalog and publish posts without going through the bot wizards.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	coreconfig "github.com/linearity/postbot/core/config"
	"github.com/linearity/postbot/core/logger"
	"github.com/linearity/postbot/internal/catalog"
	"github.com/linearity/postbot/internal/delivery"
)

// Server serves the admin API over plain HTTP, bound to localhost by
// default and fronted by a reverse proxy in real deployments.
type Server struct {
	cfg    coreconfig.AdminHTTPConfig
	store  *catalog.Store
	sender delivery.Sender
	// fallback destination when a post request names no channel
	defaultTarget string

	srv *http.Server
}

// New assembles the admin server over the shared catalog store and sender.
func New(cfg coreconfig.AdminHTTPConfig, store *catalog.Store, sender delivery.Sender, defaultTarget string) *Server {
	s := &Server{
		cfg:           cfg,
		store:         store,
		sender:        sender,
		defaultTarget: defaultTarget,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ping", s.handlePing)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /api/channels", s.requireAuth(s.handleListChannels))
	mux.HandleFunc("POST /api/channels", s.requireAuth(s.handleAddChannel))
	mux.HandleFunc("DELETE /api/channels", s.requireAuth(s.handleDeleteChannel))
	mux.HandleFunc("GET /api/presets", s.handleListPresets)
	mux.HandleFunc("POST /api/presets", s.requireAuth(s.handleCreatePreset))
	mux.HandleFunc("GET /api/presets/{id}", s.handleGetPreset)
	mux.HandleFunc("PUT /api/presets/{id}", s.requireAuth(s.handleUpdatePreset))
	mux.HandleFunc("DELETE /api/presets/{id}", s.requireAuth(s.handleDeletePreset))
	mux.HandleFunc("POST /api/post", s.requireAuth(s.handlePost))

	s.srv = &http.Server{
		Addr:              net.JoinHostPort(cfg.Listen, strconv.Itoa(cfg.Port)),
		Handler:           s.logRequests(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the HTTP handler for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves until Shutdown is called. It returns nil on clean shutdown.
func (s *Server) Start() error {
	logger.Info(logger.Background(), "adminapi", "listen",
		slog.String("listen", s.srv.Addr),
	)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("adminapi: serve: %w", err)
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info(r.Context(), "adminapi", "http.request",
			slog.String("path", r.URL.Path),
			slog.String("mode", r.Method),
			slog.Int("http_code", rec.status),
			slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"ok": false, "error": msg})
}
