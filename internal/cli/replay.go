package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/clock"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/replay"
)

func newReplayCmd(root *rootOptions) *cobra.Command {
	var (
		file       string
		speed      float64
		keys       []string
		endpoints  []string
		after      string
		before     string
		outputJSON bool
		lf         limiterFlags
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded traffic through one or more rate limiters",
		Long: `Replays previously recorded traffic through every selected algorithm with
speed control, so their decisions on identical traffic can be compared.

Records are replayed in timestamp order. The virtual clock starts at the
first record and advances to match the gaps between records, so each
limiter behaves exactly as it would in production at any speed you choose.

Speed: 0 = instant, 1 = real-time, 10 = 10x, 100 = 100x`,
		Example: `  gatekeeper replay --file traffic.json
  gatekeeper replay --file traffic.json --speed 100 --algorithms sliding_window,fixed_window
  gatekeeper replay --file traffic.json --keys user1,user2 --endpoints /api
  gatekeeper replay --file traffic.json --after 2024-01-01T00:00:00Z --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			filter := replay.Filter{Keys: keys, Endpoints: endpoints}
			var err error
			if filter.After, err = parseTimeFlag("after", after); err != nil {
				return err
			}
			if filter.Before, err = parseTimeFlag("before", before); err != nil {
				return err
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

			records, err := recorder.LoadFile(file)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("%s: %w", file, replay.ErrNoRecords)
			}

			vc := clock.NewVirtualClock(earliest(records))
			lims, err := buildLimiters(cfg.Limiter, vc, logger, limiter.WithSweepInterval(0))
			if err != nil {
				return err
			}
			defer closeLimiters(lims)

			r := replay.New(vc, speed, filter, logger, lims...)
			r.LoadRecords(records)

			out := cmd.OutOrStdout()
			if !outputJSON {
				fmt.Fprintf(out, "Replaying %s at %gx speed through %d algorithm(s)...\n\n", file, speed, len(lims))
			}

			var results []replay.Result
			summary, err := r.Run(cmd.Context(), func(res replay.Result) {
				if outputJSON {
					results = append(results, res)
					return
				}
				status := "ALLOW"
				if !res.Decision.Allowed {
					status = "DENY "
				}
				fmt.Fprintf(out, "  [%s] %s %-14s key=%s remaining=%d/%d\n",
					status,
					res.Time.Format("15:04:05"),
					res.Algorithm,
					res.Record.Key,
					res.Decision.Remaining,
					res.Decision.Limit)
			})
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"results": results,
					"summary": summary,
				})
			}
			printReplaySummary(out, summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to recorded traffic JSON file (required)")
	cmd.Flags().Float64Var(&speed, "speed", 0, "replay speed (0=instant, 1=real-time, 10=10x)")
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "filter by keys (comma-separated)")
	cmd.Flags().StringSliceVar(&endpoints, "endpoints", nil, "filter by endpoints (comma-separated)")
	cmd.Flags().StringVar(&after, "after", "", "only replay records after this RFC3339 time")
	cmd.Flags().StringVar(&before, "before", "", "only replay records before this RFC3339 time")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")
	lf.addFlags(cmd)

	return cmd
}

func parseTimeFlag(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}

func earliest(records []recorder.TrafficRecord) time.Time {
	first := records[0].Timestamp
	for _, rec := range records[1:] {
		if rec.Timestamp.Before(first) {
			first = rec.Timestamp
		}
	}
	return first
}

func printReplaySummary(w io.Writer, s *replay.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "--- Replay Summary ---")
	fmt.Fprintf(w, "  Total records:  %d\n", s.TotalRecords)
	fmt.Fprintf(w, "  Filtered:       %d\n", s.Filtered)
	fmt.Fprintf(w, "  Replayed:       %d\n", s.Replayed)
	fmt.Fprintf(w, "  Virtual time:   %s\n", s.Duration)
	fmt.Fprintf(w, "  Wall time:      %s\n", s.WallDuration.Round(time.Millisecond))

	for _, alg := range sortedAlgorithms(s.Algorithms) {
		as := s.Algorithms[alg]
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  %s: %d allowed, %d denied (%.1f%% denied)\n",
			alg.DisplayName(), as.Allowed, as.Denied, as.DenyRate()*100)

		if len(as.PerKey) > 1 {
			keys := make([]string, 0, len(as.PerKey))
			for k := range as.PerKey {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, key := range keys {
				ks := as.PerKey[key]
				fmt.Fprintf(w, "    %s: %d allowed, %d denied\n", key, ks.Allowed, ks.Denied)
			}
		}
	}

	if len(s.Algorithms) > 1 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Repeat("=", 50))
		fmt.Fprintln(w, "Same traffic, different algorithms: compare the deny rates above.")
		fmt.Fprintln(w, strings.Repeat("=", 50))
	}
}
