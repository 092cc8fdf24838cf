// Package server exposes the gatekeeper HTTP handlers for embedding.
package server

import (
	"net/http"

	"go.uber.org/zap"

	internalserver "github.com/SmitUplenchwar2687/gatekeeper/internal/server"
	"github.com/SmitUplenchwar2687/gatekeeper/pkg/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/pkg/limiter"
	"github.com/SmitUplenchwar2687/gatekeeper/pkg/recorder"
)

// Server is the gatekeeper HTTP server.
type Server = internalserver.Server

// Option configures a Server.
type Option = internalserver.Option

// Hub streams decisions to websocket clients. Attach it to limiters with
// limiter.WithObserver.
type Hub = internalserver.Hub

// New creates a server over the given limiters, at most one per algorithm.
func New(addr string, clk clock.Clock, limiters []limiter.RateLimiter, opts ...Option) (*Server, error) {
	return internalserver.New(addr, clk, limiters, opts...)
}

// WithHub serves the decision stream on /ws.
func WithHub(h *Hub) Option {
	return internalserver.WithHub(h)
}

// WithRecorder captures every API request into rec.
func WithRecorder(rec *recorder.Recorder) Option {
	return internalserver.WithRecorder(rec)
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return internalserver.WithLogger(l)
}

// NewHub creates a new websocket hub.
func NewHub(logger *zap.Logger) *Hub {
	return internalserver.NewHub(logger)
}

// Middleware rate limits next with lim, keyed by the caller's remote host.
// Denied requests get a 429 and never reach next.
func Middleware(lim limiter.RateLimiter, clk clock.Clock) func(http.Handler) http.Handler {
	return internalserver.Middleware(lim, clk)
}

// RecordingMiddleware captures every request into rec.
func RecordingMiddleware(rec *recorder.Recorder, clk clock.Clock, logger *zap.Logger) func(http.Handler) http.Handler {
	return internalserver.RecordingMiddleware(rec, clk, logger)
}

// ClientKey returns the identity Middleware limits by.
func ClientKey(r *http.Request) string {
	return internalserver.ClientKey(r)
}
