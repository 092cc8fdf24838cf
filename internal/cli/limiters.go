package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/config"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/logging"
)

// limiterFlags override the configured algorithms and policies. Policy flags
// apply to every selected algorithm; each algorithm reads only the fields it
// uses.
type limiterFlags struct {
	algorithms   string
	limit        int
	window       time.Duration
	capacity     int
	refillRate   float64
	leakInterval time.Duration
}

func (f *limiterFlags) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.algorithms, "algorithms", "all", "comma-separated algorithms (fixed_window, token_bucket, leaky_bucket, sliding_log, sliding_window) or all")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "requests per window (fixed_window, sliding_log, sliding_window)")
	cmd.Flags().DurationVar(&f.window, "window", 0, "window length (fixed_window, sliding_log, sliding_window)")
	cmd.Flags().IntVar(&f.capacity, "capacity", 0, "bucket size (token_bucket, leaky_bucket)")
	cmd.Flags().Float64Var(&f.refillRate, "refill-rate", 0, "tokens per second (token_bucket)")
	cmd.Flags().DurationVar(&f.leakInterval, "leak-interval", 0, "time to drain one request (leaky_bucket)")
}

// applyIfSet overrides cfg with every flag that was set explicitly.
func (f *limiterFlags) applyIfSet(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("algorithms") {
		algs, err := config.ParseAlgorithms(f.algorithms)
		if err != nil {
			return fmt.Errorf("--algorithms: %w", err)
		}
		cfg.Limiter.Algorithms = algs
	}

	policies := make(map[limiter.Algorithm]limiter.Policy, len(cfg.Limiter.Algorithms))
	for alg, p := range cfg.Limiter.Policies {
		policies[alg] = p
	}
	for _, alg := range cfg.Limiter.Algorithms {
		p := cfg.Limiter.Policy(alg)
		if flags.Changed("limit") {
			p.Limit = f.limit
		}
		if flags.Changed("window") {
			p.Window = f.window
		}
		if flags.Changed("capacity") {
			p.Capacity = f.capacity
		}
		if flags.Changed("refill-rate") {
			p.RefillRate = f.refillRate
		}
		if flags.Changed("leak-interval") {
			p.LeakInterval = f.leakInterval
		}
		policies[alg] = p
	}
	cfg.Limiter.Policies = policies
	return nil
}

// loadConfig loads the config named by --config and applies the root
// overrides. The caller applies its own flags and validates.
func loadConfig(opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return logger, nil
}

// buildLimiters creates one limiter per configured algorithm, in config
// order. extra options are applied after the configured ones.
func buildLimiters(cfg config.LimiterConfig, clk clock.Clock, logger *zap.Logger, extra ...limiter.Option) ([]limiter.RateLimiter, error) {
	base := append(cfg.Options(), limiter.WithClock(clk), limiter.WithLogger(logger))
	base = append(base, extra...)

	lims := make([]limiter.RateLimiter, 0, len(cfg.Algorithms))
	for _, alg := range cfg.Algorithms {
		lim, err := limiter.New(alg, cfg.Policy(alg), base...)
		if err != nil {
			closeLimiters(lims)
			return nil, fmt.Errorf("creating %s limiter: %w", alg, err)
		}
		lims = append(lims, lim)
	}
	return lims, nil
}

func closeLimiters(lims []limiter.RateLimiter) error {
	var errs []error
	for _, lim := range lims {
		errs = append(errs, lim.Close())
	}
	return errors.Join(errs...)
}
