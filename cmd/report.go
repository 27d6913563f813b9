package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report <generation-id>",
	Short: "Show the evidence report of a logged generation",
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
			return eris.Wrap(err, "report")
		}
		if entry.Result == nil {
			return eris.Errorf("report: generation %s ended %s without a result", entry.ID, entry.Outcome)
		}

		rep, err := report.Assemble(entry.Result)
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		return report.Render(os.Stdout, rep)
	},
}

func init() {
	reportCmd.Flags().Bool("json", false, "print the assembled report as JSON")
	rootCmd.AddCommand(reportCmd)
}
