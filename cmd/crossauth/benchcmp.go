package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

const defaultRegressionThreshold = 0.30

// trackedBenchmarks are the hot paths guarded in CI.
var trackedBenchmarks = map[string][]string{
	"BenchmarkValidateCacheHit":         {"ns/op", "allocs/op"},
	"BenchmarkValidateCacheHitParallel": {"ns/op"},
	"BenchmarkValidateRejectMalformed":  {"ns/op", "allocs/op"},
	"BenchmarkGetParallel":              {"ns/op"},
}

// errRegression is returned when a tracked metric regressed beyond the threshold.
var errRegression = errors.New("performance regression threshold exceeded")

type sampleSet map[string]map[string][]float64

func benchCompareCmd() *cobra.Command {
	var (
		baselinePath  string
		candidatePath string
		threshold     float64
	)

	cmd := &cobra.Command{
		Use:   "bench-compare",
		Short: "Compare go test -bench output against a baseline",
		Long: `Compare the medians of tracked benchmarks between two go test -bench outputs.
Fails when any tracked metric grows by more than --threshold.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if baselinePath == "" || candidatePath == "" {
				return errors.New("--baseline and --candidate are required")
			}
			if threshold < 0 {
				return errors.New("--threshold must be >= 0")
			}
			baseline, err := parseBenchmarkFile(baselinePath)
			if err != nil {
				return fmt.Errorf("parse baseline: %w", err)
			}
			candidate, err := parseBenchmarkFile(candidatePath)
			if err != nil {
				return fmt.Errorf("parse candidate: %w", err)
			}
			return compareBenchmarks(cmd.OutOrStdout(), baseline, candidate, threshold)
		},
	}
	cmd.Flags().StringVar(&baselinePath, "baseline", "", "path to baseline benchmark output")
	cmd.Flags().StringVar(&candidatePath, "candidate", "", "path to candidate benchmark output")
	cmd.Flags().Float64Var(&threshold, "threshold", defaultRegressionThreshold, "maximum allowed regression ratio (0.30 = +30%)")
	return cmd
}

func compareBenchmarks(out io.Writer, baseline, candidate sampleSet, threshold float64) error {
	names := make([]string, 0, len(trackedBenchmarks))
	for name := range trackedBenchmarks {
		names = append(names, name)
	}
	sort.Strings(names)

	var failures []string
	fmt.Fprintln(out, "benchmark metric baseline candidate delta")
	for _, name := range names {
		for _, metric := range trackedBenchmarks[name] {
			base := baseline[name][metric]
			cand := candidate[name][metric]
			if len(base) == 0 || len(cand) == 0 {
				failures = append(failures, fmt.Sprintf("missing samples for %s %s", name, metric))
				continue
			}

			baseMedian := median(base)
			candMedian := median(cand)
			switch {
			case baseMedian < 0:
				failures = append(failures, fmt.Sprintf("invalid baseline median for %s %s", name, metric))
				continue
			case baseMedian == 0:
				// Zero-allocation paths must stay at zero.
				fmt.Fprintf(out, "%s %s %.3f %.3f\n", name, metric, baseMedian, candMedian)
				if candMedian > 0 {
					failures = append(failures, fmt.Sprintf("%s %s grew from 0 to %.3f", name, metric, candMedian))
				}
				continue
			}

			delta := (candMedian - baseMedian) / baseMedian
			fmt.Fprintf(out, "%s %s %.3f %.3f %+0.2f%%\n", name, metric, baseMedian, candMedian, delta*100)
			if delta > threshold {
				failures = append(failures, fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)", name, metric, delta*100, threshold*100))
			}
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("%w:\n  - %s", errRegression, strings.Join(failures, "\n  - "))
	}
	return nil
}

func parseBenchmarkFile(path string) (sampleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseBenchmarks(f)
}

// parseBenchmarks collects value/unit pairs from benchmark result lines.
func parseBenchmarks(r io.Reader) (sampleSet, error) {
	samples := sampleSet{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}

		name := trimProcs(fields[0])
		if _, ok := trackedBenchmarks[name]; !ok {
			continue
		}
		if samples[name] == nil {
			samples[name] = map[string][]float64{}
		}

		// fields[1] is the iteration count.
		for i := 2; i+1 < len(fields); i += 2 {
			value, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			samples[name][fields[i+1]] = append(samples[name][fields[i+1]], value)
		}
	}
	return samples, scanner.Err()
}

// trimProcs strips the -GOMAXPROCS suffix.
func trimProcs(raw string) string {
	if idx := strings.LastIndexByte(raw, '-'); idx > 0 {
		if _, err := strconv.Atoi(raw[idx+1:]); err == nil {
			return raw[:idx]
		}
	}
	return raw
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
