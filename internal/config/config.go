// Package config loads gatekeeper settings from a YAML file, a .env file and
// GATEKEEPER_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/logging"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/store"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GATEKEEPER_"

// Config is the top-level configuration for a gatekeeper process.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Limiter LimiterConfig `yaml:"limiter"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RecordFile      string        `yaml:"record_file"` // capture traffic here on shutdown; empty disables
}

// LogConfig selects the logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// LimiterConfig selects the algorithms to run and their policies.
type LimiterConfig struct {
	Algorithms    []limiter.Algorithm                  `yaml:"algorithms"`
	IdleTTL       time.Duration                        `yaml:"idle_ttl"`       // zero picks a default per policy
	SweepInterval time.Duration                        `yaml:"sweep_interval"` // zero picks a default per policy
	Policies      map[limiter.Algorithm]limiter.Policy `yaml:"policies"`
}

// Default returns a Config with every algorithm enabled on its stock policy.
func Default() Config {
	policies := make(map[limiter.Algorithm]limiter.Policy, len(limiter.Algorithms))
	for _, alg := range limiter.Algorithms {
		policies[alg] = limiter.DefaultPolicy(alg)
	}
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Limiter: LimiterConfig{
			Algorithms: append([]limiter.Algorithm(nil), limiter.Algorithms...),
			Policies:   policies,
		},
	}
}

// Policy returns the configured policy for alg, falling back to the stock one.
func (c LimiterConfig) Policy(alg limiter.Algorithm) limiter.Policy {
	if p, ok := c.Policies[alg]; ok {
		return p
	}
	return limiter.DefaultPolicy(alg)
}

// Options returns the limiter options implied by the config.
func (c LimiterConfig) Options() []limiter.Option {
	var opts []limiter.Option
	if c.IdleTTL > 0 {
		opts = append(opts, limiter.WithIdleTTL(c.IdleTTL))
	}
	if c.SweepInterval > 0 {
		opts = append(opts, limiter.WithSweepInterval(c.SweepInterval))
	}
	return opts
}

// Validate checks that the config is valid.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must not be negative, got %s", c.Server.ShutdownTimeout)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if len(c.Limiter.Algorithms) == 0 {
		return fmt.Errorf("limiter.algorithms must name at least one algorithm")
	}
	if c.Limiter.IdleTTL < 0 {
		return fmt.Errorf("limiter.idle_ttl must not be negative, got %s", c.Limiter.IdleTTL)
	}
	if c.Limiter.SweepInterval < 0 || (c.Limiter.SweepInterval > 0 && c.Limiter.SweepInterval < store.MinSweepInterval) {
		return fmt.Errorf("limiter.sweep_interval must be zero or at least %s, got %s", store.MinSweepInterval, c.Limiter.SweepInterval)
	}
	for _, alg := range c.Limiter.Algorithms {
		p := c.Limiter.Policy(alg)
		if err := p.Validate(alg); err != nil {
			return fmt.Errorf("limiter.policies: %w", err)
		}
		if c.Limiter.IdleTTL > 0 && c.Limiter.IdleTTL < p.Horizon(alg) {
			return fmt.Errorf("limiter.idle_ttl %s is shorter than the %s horizon %s", c.Limiter.IdleTTL, alg, p.Horizon(alg))
		}
	}
	return nil
}

// Load reads .env (if present), then path (if not empty), then applies
// environment overrides. The result is not validated.
func Load(path string) (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return Default(), err
	}

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// policyFields mirrors limiter.Policy with pointers so that a field missing
// from the file can be told apart from one explicitly set to zero.
type policyFields struct {
	Limit        *int           `yaml:"limit"`
	Window       *time.Duration `yaml:"window"`
	Capacity     *int           `yaml:"capacity"`
	RefillRate   *float64       `yaml:"refill_rate"`
	LeakInterval *time.Duration `yaml:"leak_interval"`
}

type policyFile struct {
	Limiter struct {
		Policies map[string]policyFields `yaml:"policies"`
	} `yaml:"limiter"`
}

// LoadFile reads a YAML (or JSON) config file and merges it with defaults.
// Fields not specified in the file retain their default values, including
// individual policy fields. A policy field present in the file must be
// positive.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	policies := Default().Limiter.Policies
	for name, fields := range pf.Limiter.Policies {
		alg, err := limiter.ParseAlgorithm(name)
		if err != nil {
			return cfg, fmt.Errorf("parsing limiter.policies: %w", err)
		}
		p, err := fields.apply(policies[alg])
		if err != nil {
			return cfg, fmt.Errorf("limiter.policies.%s: %w", name, err)
		}
		policies[alg] = p
	}
	cfg.Limiter.Policies = policies
	for i, alg := range cfg.Limiter.Algorithms {
		canonical, err := limiter.ParseAlgorithm(string(alg))
		if err != nil {
			return cfg, fmt.Errorf("parsing limiter.algorithms: %w", err)
		}
		cfg.Limiter.Algorithms[i] = canonical
	}
	return cfg, nil
}

// apply overrides the fields of p that are present in f.
func (f policyFields) apply(p limiter.Policy) (limiter.Policy, error) {
	if f.Limit != nil {
		if *f.Limit <= 0 {
			return p, fmt.Errorf("%w: limit must be positive, got %d", limiter.ErrInvalidPolicy, *f.Limit)
		}
		p.Limit = *f.Limit
	}
	if f.Window != nil {
		if *f.Window <= 0 {
			return p, fmt.Errorf("%w: window must be positive, got %s", limiter.ErrInvalidPolicy, *f.Window)
		}
		p.Window = *f.Window
	}
	if f.Capacity != nil {
		if *f.Capacity <= 0 {
			return p, fmt.Errorf("%w: capacity must be positive, got %d", limiter.ErrInvalidPolicy, *f.Capacity)
		}
		p.Capacity = *f.Capacity
	}
	if f.RefillRate != nil {
		if !(*f.RefillRate > 0) {
			return p, fmt.Errorf("%w: refill_rate must be positive, got %g", limiter.ErrInvalidPolicy, *f.RefillRate)
		}
		p.RefillRate = *f.RefillRate
	}
	if f.LeakInterval != nil {
		if *f.LeakInterval <= 0 {
			return p, fmt.Errorf("%w: leak_interval must be positive, got %s", limiter.ErrInvalidPolicy, *f.LeakInterval)
		}
		p.LeakInterval = *f.LeakInterval
	}
	return p, nil
}

// ApplyEnv overrides cfg from GATEKEEPER_* variables read through lookup:
//
//	GATEKEEPER_ADDR, GATEKEEPER_SHUTDOWN_TIMEOUT, GATEKEEPER_RECORD_FILE,
//	GATEKEEPER_LOG_LEVEL, GATEKEEPER_LOG_DEVELOPMENT,
//	GATEKEEPER_ALGORITHMS (comma separated), GATEKEEPER_IDLE_TTL,
//	GATEKEEPER_SWEEP_INTERVAL
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	duration := func(name string, dst *time.Duration) error {
		if v, ok := get(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parsing %s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
		return nil
	}

	if v, ok := get("ADDR"); ok {
		cfg.Server.Addr = v
	}
	if v, ok := get("RECORD_FILE"); ok {
		cfg.Server.RecordFile = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := get("LOG_DEVELOPMENT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing %sLOG_DEVELOPMENT: %w", EnvPrefix, err)
		}
		cfg.Log.Development = b
	}
	if v, ok := get("ALGORITHMS"); ok {
		algs, err := ParseAlgorithms(v)
		if err != nil {
			return fmt.Errorf("parsing %sALGORITHMS: %w", EnvPrefix, err)
		}
		cfg.Limiter.Algorithms = algs
	}
	if err := duration("SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout); err != nil {
		return err
	}
	if err := duration("IDLE_TTL", &cfg.Limiter.IdleTTL); err != nil {
		return err
	}
	return duration("SWEEP_INTERVAL", &cfg.Limiter.SweepInterval)
}

// ParseAlgorithms parses a comma separated list of algorithm names. "all"
// selects every algorithm.
func ParseAlgorithms(s string) ([]limiter.Algorithm, error) {
	if strings.EqualFold(strings.TrimSpace(s), "all") {
		return append([]limiter.Algorithm(nil), limiter.Algorithms...), nil
	}
	var algs []limiter.Algorithm
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		alg, err := limiter.ParseAlgorithm(part)
		if err != nil {
			return nil, err
		}
		algs = append(algs, alg)
	}
	if len(algs) == 0 {
		return nil, fmt.Errorf("no algorithms in %q", s)
	}
	return algs, nil
}

// WriteExample writes an example config file to the given path.
func WriteExample(path string) error {
	example := `# gatekeeper configuration. Every field is optional.
server:
  addr: ":8080"
  shutdown_timeout: 10s
  # record_file: traffic.json

log:
  level: info
  development: false

limiter:
  algorithms: [fixed_window, token_bucket, leaky_bucket, sliding_log, sliding_window]
  # idle_ttl: 10m
  # sweep_interval: 1m
  policies:
    fixed_window:
      limit: 5
      window: 60s
    token_bucket:
      capacity: 10
      refill_rate: 5
    leaky_bucket:
      capacity: 10
      leak_interval: 1s
    sliding_log:
      limit: 5
      window: 60s
    sliding_window:
      limit: 5
      window: 60s
`
	return os.WriteFile(path, []byte(example), 0o644)
}
