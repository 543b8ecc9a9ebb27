// Package server exposes the Parley HTTP surface: the WebSocket audio
// endpoint, health and readiness probes, and the Prometheus metrics scrape
// endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/parley/internal/health"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/wsrtc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// shutdownGrace bounds how long Run waits for in-flight requests and live
// sessions during shutdown.
const shutdownGrace = 10 * time.Second

// Config configures a [Server].
type Config struct {
	// ListenAddr is the TCP address to listen on (e.g., ":8080"). Required.
	ListenAddr string

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// Sessions builds a session per accepted audio connection. Required.
	Sessions *session.Manager

	// Format is the engine's working audio format, applied to inbound
	// transport normalisation.
	Format audio.Format

	// Health serves the liveness and readiness probes. When nil, a
	// checker-less handler is used.
	Health *health.Handler

	// Metrics instruments the HTTP surface. When nil,
	// [observe.DefaultMetrics] is used.
	Metrics *observe.Metrics
}

// Server is the Parley HTTP server.
type Server struct {
	cfg      Config
	metrics  *observe.Metrics
	sessions *session.Manager
	http     *http.Server

	// sessionCtx parents every session so shutdown reaches them.
	sessionCtx    context.Context
	cancelSession context.CancelFunc
}

// New creates a server. Call [Server.Run] to start serving.
func New(cfg Config) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, errors.New("server: listen address is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("server: session manager is required")
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	healthHandler := cfg.Health
	if healthHandler == nil {
		healthHandler = health.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:           cfg,
		metrics:       metrics,
		sessions:      cfg.Sessions,
		sessionCtx:    ctx,
		cancelSession: cancel,
	}

	mux := http.NewServeMux()
	healthHandler.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /audio", s.handleAudio)

	s.http = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: observe.Middleware(metrics)(mux),
	}
	return s, nil
}

// Handler returns the server's root handler, including middleware. Exposed
// for tests that drive the HTTP surface without binding a port.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// handleAudio upgrades the request to a WebSocket audio session and drives it
// until the client disconnects or the server shuts down.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	conn, err := wsrtc.Accept(w, r, wsrtc.Config{Format: s.cfg.Format})
	if err != nil {
		slog.Warn("audio upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess, err := s.sessions.Open(conn)
	if err != nil {
		slog.Error("session open failed", "remote", r.RemoteAddr, "error", err)
		_ = conn.SendError(r.Context(), "session unavailable")
		_ = conn.Close()
		return
	}

	// The session outlives the request context once the socket is
	// hijacked; the server's own context bounds it instead.
	if err := sess.Run(s.sessionCtx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("session ended with error", "session_id", sess.ID(), "error", err)
	}
}

// Run serves until ctx is cancelled, then drains sessions and in-flight
// requests. It returns nil on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server listening", "addr", s.cfg.ListenAddr, "tls", s.cfg.TLSCertFile != "")
		var err error
		if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
			err = s.http.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			err = s.http.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	})

	g.Go(func() error {
		<-ctx.Done()

		grace, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		s.cancelSession()
		if err := s.sessions.Shutdown(grace); err != nil {
			slog.Warn("session drain incomplete", "error", err)
		}
		if err := s.http.Shutdown(grace); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
