package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-resilience/internal/api"
	"github.com/miradorstack/mirador-resilience/internal/config"
	"github.com/miradorstack/mirador-resilience/internal/engine"
	"github.com/miradorstack/mirador-resilience/internal/models"
	"github.com/miradorstack/mirador-resilience/internal/scenario"
	"github.com/miradorstack/mirador-resilience/internal/utils"
)

var (
	serverAddr string
	timeout    time.Duration

	historyN int

	sample          models.MetricSample
	sampleTimestamp string

	fitSynthetic bool
	fitSeed      uint64

	demoSeed uint64
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "resilience-ctl",
		Short:         "Operate a mirador-resilience monitor",
		Long:          `Query and drive a running resilience monitor over gRPC, or run a local demo.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:50051", "gRPC address of the monitor")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current status",
		RunE:  runStatus,
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent condensed snapshots",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVarP(&historyN, "n", "n", 10, "Number of snapshots to show (0 for all)")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate statistics",
		RunE:  runStats,
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear monitor history and estimator state",
		RunE:  runReset,
	}

	pushCmd := &cobra.Command{
		Use:   "push",
		Short: "Push one metric sample",
		RunE:  runPush,
	}
	pushCmd.Flags().Float64Var(&sample.Latency, "latency", 15, "Mean processing time in ms")
	pushCmd.Flags().Float64Var(&sample.Utilization, "utilization", 0.3, "Server utilisation rho")
	pushCmd.Flags().Float64Var(&sample.BlockingProbability, "blocking", 0.001, "Blocking probability")
	pushCmd.Flags().Float64Var(&sample.CPU, "cpu", 0.4, "CPU utilisation")
	pushCmd.Flags().Float64Var(&sample.RAM, "ram", 0.5, "RAM utilisation")
	pushCmd.Flags().IntVar(&sample.AnomalousRequests, "anomalous", 0, "Anomalous request count")
	pushCmd.Flags().IntVar(&sample.BackgroundRequests, "background", 100, "Background request count")
	pushCmd.Flags().StringVar(&sampleTimestamp, "timestamp", "", "RFC3339 sample time (default now)")

	fitCmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit the transition matrix from the retained window or synthetic data",
		RunE:  runFit,
	}
	fitCmd.Flags().BoolVar(&fitSynthetic, "synthetic", false, "Fit on generated normal and attack profiles")
	fitCmd.Flags().Uint64Var(&fitSeed, "seed", 42, "Seed for synthetic data")

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a local monitor through normal operation followed by an attack",
		RunE:  runDemo,
	}
	demoCmd.Flags().Uint64Var(&demoSeed, "seed", 42, "Seed for the normal-operation samples")

	rootCmd.AddCommand(statusCmd, historyCmd, statsCmd, resetCmd, pushCmd, fitCmd, demoCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withClient(fn func(ctx context.Context, client *api.Client) error) error {
	client, err := api.NewClient(serverAddr)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return fn(ctx, client)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	return withClient(func(ctx context.Context, client *api.Client) error {
		status, err := client.Status(ctx)
		if err != nil {
			return fmt.Errorf("get status: %w", err)
		}
		printStatus(cmd.OutOrStdout(), status)
		return nil
	})
}

func runHistory(cmd *cobra.Command, _ []string) error {
	return withClient(func(ctx context.Context, client *api.Client) error {
		entries, err := client.History(ctx, historyN)
		if err != nil {
			return fmt.Errorf("get history: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-25s %-6s %-6s %-6s %-6s %-6s %-6s %-6s %-4s %s\n",
			"TIMESTAMP", "C", "L", "Q", "R", "A", "SUST", "SIM", "MODE", "OSR")
		for _, e := range entries {
			fmt.Fprintf(out, "%-25s %-6.3f %-6.3f %-6.3f %-6.3f %-6.3f %-6.3f %-6.3f %-4d %t\n",
				e.Timestamp.Format(time.RFC3339),
				e.Vector[models.ComponentCapacity], e.Vector[models.ComponentLoad],
				e.Vector[models.ComponentQuality], e.Vector[models.ComponentResources],
				e.Vector[models.ComponentAnomaly],
				e.Sustainability, e.Similarity, int(e.Mode), e.InOSR)
		}
		return nil
	})
}

func runStats(cmd *cobra.Command, _ []string) error {
	return withClient(func(ctx context.Context, client *api.Client) error {
		stats, err := client.Statistics(ctx)
		if err != nil {
			return fmt.Errorf("get statistics: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), stats)
	})
}

func runReset(cmd *cobra.Command, _ []string) error {
	return withClient(func(ctx context.Context, client *api.Client) error {
		if err := client.Reset(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "monitor reset")
		return nil
	})
}

func runPush(cmd *cobra.Command, _ []string) error {
	sample.Timestamp = time.Now().UTC()
	if sampleTimestamp != "" {
		ts, err := utils.ParseRFC3339(sampleTimestamp)
		if err != nil {
			return fmt.Errorf("--timestamp: %w", err)
		}
		sample.Timestamp = ts
	}
	return withClient(func(ctx context.Context, client *api.Client) error {
		snapshot, err := client.ProcessMetrics(ctx, sample)
		if err != nil {
			return fmt.Errorf("push sample: %w", err)
		}
		printSnapshot(cmd.OutOrStdout(), snapshot)
		return nil
	})
}

func runFit(cmd *cobra.Command, _ []string) error {
	return withClient(func(ctx context.Context, client *api.Client) error {
		result, err := client.FitTransition(ctx, models.FitRequest{Synthetic: fitSynthetic, Seed: fitSeed})
		if err != nil {
			return fmt.Errorf("fit transition: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), result)
	})
}

func runDemo(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Default()
	logger := utils.NewLoggerTo(io.Discard, "error", false)
	monitor := engine.NewMonitor(logger, cfg, nil, utils.SystemClock{})
	ctx := context.Background()
	start := time.Now().UTC()

	fmt.Fprintln(out, "=== Stability Monitor Demo ===")
	fmt.Fprintln(out, "\nSimulating normal operation...")
	var snapshot models.MonitoringSnapshot
	for _, s := range scenario.New(demoSeed).NormalSamples(20, start, time.Second) {
		snapshot = monitor.ProcessMetrics(ctx, s)
	}
	printSnapshot(out, snapshot)

	fmt.Fprintln(out, "\nSimulating attack...")
	for _, s := range scenario.AttackSamples(10, start.Add(20*time.Second), time.Second) {
		snapshot = monitor.ProcessMetrics(ctx, s)
	}
	printSnapshot(out, snapshot)

	stats, ok := monitor.Statistics()
	if !ok {
		return fmt.Errorf("demo produced no snapshots")
	}
	fmt.Fprintln(out, "\n=== Statistics ===")
	fmt.Fprintf(out, "Total snapshots: %d\n", stats.TotalSnapshots)
	fmt.Fprintf(out, "OSR violations: %d\n", stats.OSRViolations)
	fmt.Fprintln(out, "Mode distribution:")
	for _, mode := range models.AllModes {
		if n := stats.ModeDistribution[mode.String()]; n > 0 {
			fmt.Fprintf(out, "  %-22s %d\n", mode, n)
		}
	}
	return nil
}

func printSnapshot(out io.Writer, s models.MonitoringSnapshot) {
	fmt.Fprintf(out, "Status: %s\n", s.Sustainability.Status)
	fmt.Fprintf(out, "Sust Index: %.3f\n", s.Sustainability.Index)
	fmt.Fprintf(out, "Mode: %s\n", s.Decision.Mode)
	fmt.Fprintf(out, "Action: %s\n", s.Decision.Action)
	fmt.Fprintf(out, "Reason: %s\n", s.Decision.Reason)
}

func printStatus(out io.Writer, status map[string]any) {
	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%-18s %v\n", k+":", status[k])
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
