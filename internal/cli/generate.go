package cli

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/gatekeeper/internal/config"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/limiter"
	"github.com/SmitUplenchwar2687/gatekeeper/internal/recorder"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate sample traffic files and config",
		Long: `Generates sample data for testing and experimentation.

Use "generate traffic" to create a sample traffic JSON file.
Use "generate config" to create an example YAML config file.`,
	}

	cmd.AddCommand(newGenerateTrafficCmd(), newGenerateConfigCmd())
	return cmd
}

func newGenerateTrafficCmd() *cobra.Command {
	var (
		output   string
		count    int
		keys     int
		duration time.Duration
		pattern  string
		seed     int64
	)

	cmd := &cobra.Command{
		Use:   "traffic",
		Short: "Generate a sample traffic JSON file",
		Long: `Creates a realistic traffic file with configurable parameters.

Patterns:
  steady    Evenly distributed requests
  burst     Concentrated bursts with quiet periods
  ramp      Gradually increasing request rate`,
		Example: `  gatekeeper generate traffic --output traffic.json --count 100 --keys 5
  gatekeeper generate traffic --output burst.json --count 200 --pattern burst --duration 10m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive, got %d", count)
			}
			if keys <= 0 {
				return fmt.Errorf("--keys must be positive, got %d", keys)
			}
			if duration <= 0 {
				return fmt.Errorf("--duration must be positive, got %s", duration)
			}
			if seed == 0 {
				seed = time.Now().UnixNano()
			}

			records, err := generateTraffic(rand.New(rand.NewSource(seed)), time.Now().UTC().Truncate(time.Second), count, keys, duration, pattern)
			if err != nil {
				return err
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating file: %w", err)
			}
			defer f.Close()

			enc := json.NewEncoder(f)
			enc.SetIndent("", "  ")
			if err := enc.Encode(records); err != nil {
				return fmt.Errorf("writing records: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated %d traffic records to %s\n", len(records), output)
			fmt.Fprintf(out, "  Keys:     %d\n", keys)
			fmt.Fprintf(out, "  Duration: %s\n", duration)
			fmt.Fprintf(out, "  Pattern:  %s\n", pattern)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "traffic.json", "output file path")
	cmd.Flags().IntVar(&count, "count", 100, "number of records to generate")
	cmd.Flags().IntVar(&keys, "keys", 3, "number of distinct user keys")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Minute, "time span for generated traffic")
	cmd.Flags().StringVar(&pattern, "pattern", "steady", "traffic pattern (steady, burst, ramp)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 = time based)")

	return cmd
}

func newGenerateConfigCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Generate an example config YAML file",
		Example: `  gatekeeper generate config --output gatekeeper.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteExample(output); err != nil {
				return fmt.Errorf("writing example config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated example config at %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "gatekeeper.yaml", "output file path")
	return cmd
}

// generatedEndpoints are the demo routes, one per algorithm.
var generatedEndpoints = func() []string {
	eps := make([]string, len(limiter.Algorithms))
	for i, alg := range limiter.Algorithms {
		eps[i] = "GET /api/ratelimit/" + compactName(alg)
	}
	return eps
}()

func compactName(alg limiter.Algorithm) string {
	return strings.ReplaceAll(string(alg), "_", "")
}

// generateTraffic returns count records spread over dur from start, sorted
// by timestamp.
func generateTraffic(rng *rand.Rand, start time.Time, count, numKeys int, dur time.Duration, pattern string) ([]recorder.TrafficRecord, error) {
	userKeys := make([]string, numKeys)
	for i := range userKeys {
		userKeys[i] = fmt.Sprintf("user-%d", i+1)
	}

	var offsets []time.Duration
	switch pattern {
	case "steady":
		offsets = steadyOffsets(count, dur)
	case "burst":
		offsets = burstOffsets(rng, count, dur)
	case "ramp":
		offsets = rampOffsets(count, dur)
	default:
		return nil, fmt.Errorf("unknown pattern %q, must be one of: steady, burst, ramp", pattern)
	}
	slices.Sort(offsets)

	records := make([]recorder.TrafficRecord, len(offsets))
	for i, off := range offsets {
		ep := rng.Intn(len(generatedEndpoints))
		records[i] = recorder.TrafficRecord{
			ID:        uuid.NewString(),
			Timestamp: start.Add(off),
			Key:       userKeys[rng.Intn(len(userKeys))],
			Endpoint:  generatedEndpoints[ep],
			Algorithm: limiter.Algorithms[ep],
		}
	}
	return records, nil
}

func steadyOffsets(count int, dur time.Duration) []time.Duration {
	interval := dur / time.Duration(count)
	offsets := make([]time.Duration, count)
	for i := range offsets {
		offsets[i] = time.Duration(i) * interval
	}
	return offsets
}

func burstOffsets(rng *rand.Rand, count int, dur time.Duration) []time.Duration {
	const numBursts = 4
	burstSize := count / numBursts
	burstGap := dur / numBursts
	// Requests within a burst land within one second of its start.
	spread := max(min(time.Second, burstGap), 1)

	offsets := make([]time.Duration, 0, count)
	for b := 0; b < numBursts; b++ {
		for i := 0; i < burstSize; i++ {
			offsets = append(offsets, time.Duration(b)*burstGap+time.Duration(rng.Int63n(int64(spread))))
		}
	}
	for len(offsets) < count {
		offsets = append(offsets, time.Duration(rng.Int63n(int64(dur))))
	}
	return offsets
}

// rampOffsets concentrates records towards the end of the span.
func rampOffsets(count int, dur time.Duration) []time.Duration {
	offsets := make([]time.Duration, count)
	for i := range offsets {
		frac := float64(i) / float64(count)
		offsets[i] = time.Duration(frac * frac * float64(dur))
	}
	return offsets
}
