package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
)

func newSimulateCmd(root *rootOptions) *cobra.Command {
	var (
		requests    int
		keys        []string
		fastForward time.Duration
		outputJSON  bool
		lf          limiterFlags
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run rate limit scenarios with time travel",
		Long: `Runs rate limit checks against a virtual clock, allowing you to
fast-forward time without waiting. This lets you verify limiter
behavior over hours or days in seconds.

The simulation sends a batch of requests through every selected
algorithm, optionally fast-forwards time, then sends another batch
to show how each algorithm recovers.`,
		Example: `  gatekeeper simulate --requests 20 --algorithms fixed_window --limit 10 --window 1m
  gatekeeper simulate --algorithms sliding_window,sliding_log --limit 5 --window 30s --fast-forward 1m
  gatekeeper simulate --keys user1,user2 --requests 15 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(keys) == 0 {
				keys = []string{"test-user"}
			}
			if requests < 0 {
				return fmt.Errorf("--requests must not be negative, got %d", requests)
			}

			cfg, err := loadConfig(root)
			if err != nil {
				return err
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

			vc := clock.NewVirtualClock(time.Now().UTC().Truncate(time.Second))
			lims, err := buildLimiters(cfg.Limiter, vc, logger, limiter.WithSweepInterval(0))
			if err != nil {
				return err
			}
			defer closeLimiters(lims)

			result := runSimulation(cmd.Context(), vc, lims, keys, requests, fastForward)

			if outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printSimulation(cmd.OutOrStdout(), &result)
			return nil
		},
	}

	cmd.Flags().IntVar(&requests, "requests", 15, "number of requests per key in each batch")
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "comma-separated client keys")
	cmd.Flags().DurationVar(&fastForward, "fast-forward", 0, "time to fast-forward between batches")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")
	lf.addFlags(cmd)

	return cmd
}

// SimulationResult captures the full output of a simulation.
type SimulationResult struct {
	Start       time.Time                                    `json:"start"`
	FastForward string                                       `json:"fast_forward,omitempty"`
	Policies    map[limiter.Algorithm]limiter.Policy         `json:"policies"`
	Batches     []BatchResult                                `json:"batches"`
	Summary     map[limiter.Algorithm]map[string]KeySummary `json:"summary"`
}

// BatchResult captures results for one batch of requests.
type BatchResult struct {
	Label     string           `json:"label"`
	Time      time.Time        `json:"time"`
	Decisions []DecisionRecord `json:"decisions"`
}

// DecisionRecord is a single rate limit check result.
type DecisionRecord struct {
	Algorithm limiter.Algorithm `json:"algorithm"`
	Key       string            `json:"key"`
	Decision  limiter.Decision  `json:"decision"`
}

// KeySummary aggregates stats per algorithm and key.
type KeySummary struct {
	TotalRequests int `json:"total_requests"`
	Allowed       int `json:"allowed"`
	Denied        int `json:"denied"`
}

func runSimulation(ctx context.Context, vc *clock.VirtualClock, lims []limiter.RateLimiter, keys []string, requests int, fastForward time.Duration) SimulationResult {
	if ctx == nil {
		ctx = context.Background()
	}
	result := SimulationResult{
		Start:    vc.Now(),
		Policies: make(map[limiter.Algorithm]limiter.Policy, len(lims)),
		Summary:  make(map[limiter.Algorithm]map[string]KeySummary, len(lims)),
	}
	for _, lim := range lims {
		result.Policies[lim.Algorithm()] = lim.Policy()
		result.Summary[lim.Algorithm()] = make(map[string]KeySummary, len(keys))
	}

	batch := func(label string) BatchResult {
		b := BatchResult{Label: label, Time: vc.Now()}
		for i := 0; i < requests; i++ {
			for _, key := range keys {
				for _, lim := range lims {
					d := lim.Allow(ctx, key)
					b.Decisions = append(b.Decisions, DecisionRecord{Algorithm: lim.Algorithm(), Key: key, Decision: d})

					s := result.Summary[lim.Algorithm()][key]
					s.TotalRequests++
					if d.Allowed {
						s.Allowed++
					} else {
						s.Denied++
					}
					result.Summary[lim.Algorithm()][key] = s
				}
			}
		}
		return b
	}

	result.Batches = append(result.Batches, batch("Initial requests"))
	if fastForward > 0 {
		vc.Advance(fastForward)
		result.FastForward = fastForward.String()
		result.Batches = append(result.Batches, batch(fmt.Sprintf("After fast-forward %s", fastForward)))
	}
	return result
}

func printSimulation(w io.Writer, r *SimulationResult) {
	fmt.Fprintln(w, "=== Gatekeeper Simulation ===")
	fmt.Fprintln(w)

	for _, batch := range r.Batches {
		fmt.Fprintf(w, "--- %s (at %s) ---\n", batch.Label, batch.Time.Format(time.RFC3339))
		for i, dr := range batch.Decisions {
			status := "ALLOW"
			if !dr.Decision.Allowed {
				status = "DENY "
			}
			fmt.Fprintf(w, "  #%03d [%s] %-14s key=%s remaining=%d/%d\n",
				i+1, status, dr.Algorithm, dr.Key, dr.Decision.Remaining, dr.Decision.Limit)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "--- Summary ---")
	for _, alg := range sortedAlgorithms(r.Summary) {
		fmt.Fprintf(w, "  %s\n", alg.DisplayName())
		perKey := r.Summary[alg]
		keys := make([]string, 0, len(perKey))
		for k := range perKey {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			s := perKey[key]
			fmt.Fprintf(w, "    %s: %d total, %d allowed, %d denied\n", key, s.TotalRequests, s.Allowed, s.Denied)
		}
	}

	if r.FastForward != "" {
		fmt.Fprintf(w, "\nTime travel: fast-forwarded %s\n", r.FastForward)
	}

	if recovered(r) {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Repeat("=", 50))
		fmt.Fprintln(w, "Time travel worked! Requests were denied, then")
		fmt.Fprintln(w, "allowed again after fast-forwarding the clock.")
		fmt.Fprintln(w, strings.Repeat("=", 50))
	}
}

// recovered reports whether the first batch saw denials and the second saw
// admissions.
func recovered(r *SimulationResult) bool {
	if len(r.Batches) < 2 {
		return false
	}
	denied := false
	for _, dr := range r.Batches[0].Decisions {
		if !dr.Decision.Allowed {
			denied = true
			break
		}
	}
	if !denied {
		return false
	}
	for _, dr := range r.Batches[1].Decisions {
		if dr.Decision.Allowed {
			return true
		}
	}
	return false
}

func sortedAlgorithms[V any](m map[limiter.Algorithm]V) []limiter.Algorithm {
	algs := make([]limiter.Algorithm, 0, len(m))
	for _, alg := range limiter.Algorithms {
		if _, ok := m[alg]; ok {
			algs = append(algs, alg)
		}
	}
	return algs
}
