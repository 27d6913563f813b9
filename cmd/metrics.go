package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/monitoring"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Summarize generation health",
	Long:  "Aggregates logged generations over a lookback window. With --alert, evaluates thresholds and posts breaches to the configured webhook.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		project, _ := cmd.Flags().GetString("project")
		hours, _ := cmd.Flags().GetInt("hours")
		if hours <= 0 {
			hours = cfg.Monitoring.LookbackHours
		}
		alert, _ := cmd.Flags().GetBool("alert")
		asJSON, _ := cmd.Flags().GetBool("json")

		snap, err := monitoring.NewCollector(st).Collect(ctx, project, hours)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(snap); err != nil {
				return err
			}
		} else {
			formatMetrics(os.Stdout, snap)
		}

		if alert {
			alerter := monitoring.NewAlerter(cfg.Monitoring)
			alerts := alerter.Evaluate(snap)
			for _, a := range alerts {
				fmt.Fprintf(os.Stderr, "ALERT [%s] %s\n", a.Severity, a.Message)
			}
			sent := alerter.SendAlerts(ctx, alerts)
			if len(alerts) > 0 {
				fmt.Fprintf(os.Stderr, "%d alert(s) triggered, %d sent\n", len(alerts), sent)
			}
		}
		return nil
	},
}

func init() {
	metricsCmd.Flags().String("project", "", "limit to one project")
	metricsCmd.Flags().Int("hours", 0, "lookback window in hours (default from config)")
	metricsCmd.Flags().Bool("alert", false, "evaluate alert thresholds and send webhooks")
	metricsCmd.Flags().Bool("json", false, "print the snapshot as JSON")
	rootCmd.AddCommand(metricsCmd)
}

// formatMetrics writes a snapshot to w.
func formatMetrics(out io.Writer, s *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Attempts:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	for _, status := range sortedKeys(s.ByStatus) {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", status, s.ByStatus[status])
	}
	_, _ = fmt.Fprintf(w, "Blocked:\t%d (%.1f%%)\n", s.Blocked, s.BlockRate*100)
	for _, reason := range sortedKeys(s.ByBlockReason) {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", reason, s.ByBlockReason[reason])
	}
	_, _ = fmt.Fprintf(w, "Failed:\t%d (%.1f%%)\n", s.Failed, s.FailRate*100)
	_, _ = fmt.Fprintf(w, "Avg coverage:\t%.1f%%\n", s.AvgCoverage)
	_, _ = fmt.Fprintf(w, "Waste rate:\t%.1f%% (%d)\n", s.WasteRate*100, s.Wasted)
	_, _ = fmt.Fprintf(w, "Latency p50/p95:\t%dms / %dms\n", s.P50LatencyMs, s.P95LatencyMs)
	_ = w.Flush()
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
