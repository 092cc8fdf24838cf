package server

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/metrics"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
)

// ClientKey identifies the caller by the host part of the connection's
// remote address. Forwarding headers are ignored.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// TooManyRequestsMessage is the plain-text body of a rejected request.
func TooManyRequestsMessage(alg limiter.Algorithm) string {
	return fmt.Sprintf("Too many requests for %s. Try again later.", alg.DisplayName())
}

// Middleware rate limits next with lim, keyed by ClientKey. Denied requests
// get a 429 and never reach next.
func Middleware(lim limiter.RateLimiter, clk clock.Clock) func(http.Handler) http.Handler {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := lim.Allow(r.Context(), ClientKey(r))
			writeRateLimitHeaders(w, d, clk.Now())
			if !d.Allowed {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(TooManyRequestsMessage(lim.Algorithm())))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimitHeaders(w http.ResponseWriter, d limiter.Decision, now time.Time) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", d.ResetAt.UTC().Format(time.RFC3339))
	if !d.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAt, now)))
	}
}

// retryAfterSeconds rounds the wait up to whole seconds, at least one.
func retryAfterSeconds(retryAt, now time.Time) int {
	wait := retryAt.Sub(now)
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// RecordingMiddleware captures every request into rec before serving it. The
// algorithm is taken from the route's {algorithm} parameter when present.
func RecordingMiddleware(rec *recorder.Recorder, clk clock.Clock, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tr := recorder.TrafficRecord{
				Timestamp: clk.Now(),
				Key:       ClientKey(r),
				Endpoint:  r.Method + " " + r.URL.Path,
				Metadata: map[string]string{
					"user_agent": r.UserAgent(),
				},
			}
			if alg, err := limiter.ParseAlgorithm(chi.URLParam(r, "algorithm")); err == nil {
				tr.Algorithm = alg
			}
			if key := chi.URLParam(r, "key"); key != "" {
				tr.Key = key
			}

			if err := rec.Record(tr); err != nil {
				logger.Warn("recording request failed", zap.Error(err))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer for websocket upgrades.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// accessLog logs each request and counts it by route pattern.
func accessLog(logger *zap.Logger, m *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			if m != nil {
				m.ObserveHTTP(route, sw.status)
			}
			logger.Debug("request served",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", sw.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
