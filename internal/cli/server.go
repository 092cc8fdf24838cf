package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/config"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/metrics"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/server"
)

func newServerCmd(root *rootOptions) *cobra.Command {
	var (
		addr          string
		recordFile    string
		idleTTL       time.Duration
		sweepInterval time.Duration
		lf            limiterFlags
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the gatekeeper HTTP server",
		Long: `Starts an HTTP server with one limiter per enabled algorithm.

Endpoints:
  GET    /                                Server info and current time
  GET    /health                          Health check
  GET    /metrics                         Prometheus metrics
  GET    /api/ratelimit/{algorithm}       Demo endpoint keyed by client address
  GET    /api/check/{algorithm}/{key}     Decision for an explicit key
  DELETE /api/check/{algorithm}/{key}     Forget a key
  WS     /ws                              Stream of decisions`,
		Example: `  gatekeeper server
  gatekeeper server --addr :9090 --algorithms sliding_window --limit 100 --window 1m
  gatekeeper server --algorithms token_bucket --capacity 20 --refill-rate 2
  gatekeeper server --config gatekeeper.yaml --record traffic.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("record") {
				cfg.Server.RecordFile = recordFile
			}
			if cmd.Flags().Changed("idle-ttl") {
				cfg.Limiter.IdleTTL = idleTTL
			}
			if cmd.Flags().Changed("sweep-interval") {
				cfg.Limiter.SweepInterval = sweepInterval
			}
			if err := lf.applyIfSet(cmd, &cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	cmd.Flags().StringVar(&recordFile, "record", "", "record traffic to JSON file (exported on shutdown)")
	cmd.Flags().DurationVar(&idleTTL, "idle-ttl", 0, "evict clients idle this long (0 = per-policy default)")
	cmd.Flags().DurationVar(&sweepInterval, "sweep-interval", 0, "how often to evict idle clients (0 = per-policy default)")
	lf.addFlags(cmd)

	return cmd
}

// serverStack is everything a running server owns.
type serverStack struct {
	server   *server.Server
	limiters []limiter.RateLimiter
	recorder *recorder.Recorder
	metrics  *metrics.Collector
	hub      *server.Hub
}

// newServerStack wires limiters, metrics, the websocket hub and, when a
// record file is configured, a recorder into a server.
func newServerStack(cfg config.Config, clk clock.Clock, logger *zap.Logger) (*serverStack, error) {
	st := &serverStack{
		metrics: metrics.NewCollector(nil),
		hub:     server.NewHub(logger),
	}

	lims, err := buildLimiters(cfg.Limiter, clk, logger,
		limiter.WithObserver(limiter.Observers{st.metrics, st.hub}))
	if err != nil {
		return nil, err
	}
	st.limiters = lims

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(st.metrics),
		server.WithHub(st.hub),
	}
	if cfg.Server.RecordFile != "" {
		st.recorder = recorder.New(nil)
		opts = append(opts, server.WithRecorder(st.recorder))
	}

	srv, err := server.New(cfg.Server.Addr, clk, lims, opts...)
	if err != nil {
		_ = closeLimiters(lims)
		return nil, err
	}
	st.server = srv
	return st, nil
}

// runServer serves until ctx is done, then shuts down gracefully and exports
// recorded traffic.
func runServer(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	st, err := newServerStack(cfg, clock.NewRealClock(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLimiters(st.limiters); err != nil {
			logger.Warn("closing limiters", zap.Error(err))
		}
	}()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.Addr, err)
	}
	logger.Info("api ready",
		zap.String("ratelimit", fmt.Sprintf("http://%s/api/ratelimit/{algorithm}", ln.Addr())),
		zap.String("metrics", fmt.Sprintf("http://%s/metrics", ln.Addr())),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- st.server.StartOnListener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	shutdownErr := st.server.Shutdown(shutdownCtx)
	if err := <-errCh; err != nil {
		shutdownErr = errors.Join(shutdownErr, err)
	}

	if st.recorder != nil {
		logger.Info("exporting records",
			zap.Int("records", st.recorder.Len()),
			zap.String("file", cfg.Server.RecordFile),
		)
		if err := st.recorder.ExportFile(cfg.Server.RecordFile); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("exporting records: %w", err))
		}
	}
	return shutdownErr
}
