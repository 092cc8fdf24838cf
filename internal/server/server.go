// Package server exposes the limiters over HTTP: one demo route per
// algorithm, an explicit-key check API, Prometheus metrics and a websocket
// stream of decisions.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/metrics"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
)

// Server is the gatekeeper HTTP server.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	limiters   map[limiter.Algorithm]limiter.RateLimiter
	order      []limiter.Algorithm
	clock      clock.Clock
	metrics    *metrics.Collector
	hub        *Hub
	recorder   *recorder.Recorder
	logger     *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves the collector's registry on /metrics and counts
// requests.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHub serves the decision stream on /ws.
func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithRecorder captures every API request into rec.
func WithRecorder(rec *recorder.Recorder) Option {
	return func(s *Server) { s.recorder = rec }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server over the given limiters, at most one per algorithm.
func New(addr string, clk clock.Clock, limiters []limiter.RateLimiter, opts ...Option) (*Server, error) {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	s := &Server{
		limiters: make(map[limiter.Algorithm]limiter.RateLimiter, len(limiters)),
		clock:    clk,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, lim := range limiters {
		alg := lim.Algorithm()
		if _, dup := s.limiters[alg]; dup {
			return nil, fmt.Errorf("duplicate limiter for %s", alg)
		}
		s.limiters[alg] = lim
		s.order = append(s.order, alg)
	}

	s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(accessLog(s.logger, s.metrics))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWebSocket)
	}

	api := r.With()
	if s.recorder != nil {
		api = r.With(RecordingMiddleware(s.recorder, s.clock, s.logger))
	}
	api.Get("/api/ratelimit/{algorithm}", s.handleRateLimit)
	api.Get("/api/check/{algorithm}/{key}", s.handleCheck)
	api.Delete("/api/check/{algorithm}/{key}", s.handleReset)

	s.router = r
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleRoot describes the service.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":    "gatekeeper",
		"status":     "running",
		"time":       s.clock.Now().Format(time.RFC3339),
		"algorithms": algorithmNames(s.order),
	})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRateLimit is the per-algorithm demo endpoint, keyed by the caller's
// remote host.
func (s *Server) handleRateLimit(w http.ResponseWriter, r *http.Request) {
	lim, ok := s.lookup(w, r)
	if !ok {
		return
	}
	Middleware(lim, s.clock)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintf(w, "%s Rate Limiting endpoint.", lim.Algorithm().DisplayName())
	})).ServeHTTP(w, r)
}

// handleCheck decides for the key in the path and reports the decision as
// JSON on both outcomes.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	lim, ok := s.lookup(w, r)
	if !ok {
		return
	}
	d := lim.Allow(r.Context(), chi.URLParam(r, "key"))
	writeRateLimitHeaders(w, d, s.clock.Now())
	status := http.StatusOK
	if !d.Allowed {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, d)
}

// handleReset forgets the key in the path.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	lim, ok := s.lookup(w, r)
	if !ok {
		return
	}
	lim.Reset(chi.URLParam(r, "key"))
	w.WriteHeader(http.StatusNoContent)
}

// lookup resolves {algorithm}, writing a 404 when it is unknown or not
// enabled on this server.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (limiter.RateLimiter, bool) {
	name := chi.URLParam(r, "algorithm")
	alg, err := limiter.ParseAlgorithm(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return nil, false
	}
	lim, ok := s.limiters[alg]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("algorithm %s is not enabled", alg)})
		return nil, false
	}
	return lim, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Start begins listening. It blocks until the server is shut down and
// returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}
	return s.StartOnListener(ln)
}

// StartOnListener begins serving on the provided listener.
// Useful for tests that need to pick an ephemeral port.
func (s *Server) StartOnListener(ln net.Listener) error {
	s.logger.Info("gatekeeper server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Strings("algorithms", algorithmNames(s.order)),
	)
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and disconnects websocket
// clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func algorithmNames(algs []limiter.Algorithm) []string {
	out := make([]string, len(algs))
	for i, a := range algs {
		out[i] = string(a)
	}
	return out
}
