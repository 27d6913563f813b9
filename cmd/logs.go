package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/store"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect generation history",
	Long:  "Commands for listing and viewing logged generation attempts.",
}

// -- logs list --

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List generation attempts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		project, _ := cmd.Flags().GetString("project")
		function, _ := cmd.Flags().GetString("function")
		outcome, _ := cmd.Flags().GetString("outcome")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.GenerationFilter{
			ProjectID:    project,
			FunctionName: function,
			Outcome:      model.Outcome(outcome),
			Limit:        limit,
		}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		logs, err := st.ListGenerations(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "logs list")
		}

		if len(logs) == 0 {
			fmt.Fprintln(os.Stderr, "No generations found.")
			return nil
		}

		formatLogsList(os.Stdout, logs)
		return nil
	},
}

// -- logs show --

var logsShowCmd = &cobra.Command{
	Use:   "show <generation-id>",
	Short: "Show full details of a generation attempt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entry, err := st.GetGeneration(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "logs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	},
}

func init() {
	logsListCmd.Flags().String("project", "", "filter by project id")
	logsListCmd.Flags().String("function", "", "filter by function name")
	logsListCmd.Flags().String("outcome", "", "filter by outcome (complete, blocked, failed)")
	logsListCmd.Flags().Duration("since", 0, "only attempts within this window (e.g. 24h)")
	logsListCmd.Flags().Int("limit", 50, "max number of attempts to display")

	logsCmd.AddCommand(logsListCmd)
	logsCmd.AddCommand(logsShowCmd)
	rootCmd.AddCommand(logsCmd)
}

// formatLogsList writes a tabular list of generation attempts to w.
func formatLogsList(out io.Writer, logs []model.GenerationLog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tFUNCTION\tMODE\tOUTCOME\tSTATUS\tCOVERAGE\tSOURCES\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t--------\t----\t-------\t------\t--------\t-------\t-------\t--------")

	for _, l := range logs {
		status := string(l.Status)
		switch l.Outcome {
		case model.OutcomeBlocked:
			status = string(l.BlockReason)
		case model.OutcomeFailed:
			status = truncate(l.Error, 30)
		}
		dur := (time.Duration(l.DurationMS) * time.Millisecond).Round(time.Millisecond).String()

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d%%\t%d\t%s\t%s\n",
			truncateID(l.ID),
			truncate(l.FunctionName, 30),
			l.Mode,
			l.Outcome,
			status,
			l.Coverage,
			l.SourcesFound,
			l.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// truncateID shortens a UUID to its first 8 characters for display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
