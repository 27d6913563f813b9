package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/store"
	"github.com/sells-group/evidence-cli/internal/tierconfig"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage a project's source policy",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved source policy",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		project, _ := cmd.Flags().GetString("project")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := st.GetSourcePolicy(ctx, project)
		if err != nil {
			return eris.Wrap(err, "policy show")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

var policySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update the source policy",
	Long:  "Flags that are not given keep their saved value, or the default for a new policy.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		project, _ := cmd.Flags().GetString("project")
		user, _ := cmd.Flags().GetString("user")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := st.GetSourcePolicy(ctx, project)
		if err != nil {
			if !eris.Is(err, store.ErrNotFound) {
				return eris.Wrap(err, "policy set")
			}
			def := tierconfig.Build(tierconfig.DefaultUIState(evidence.ModeBalanced)).Policy(project, user)
			p = &def
		}

		state, err := applyStateFlags(cmd, tierconfig.FromPolicy(*p))
		if err != nil {
			return err
		}
		gc := tierconfig.Build(state)
		if err := gc.Validate(); err != nil {
			return err
		}

		next := gc.Policy(project, user)
		next.AllowedDomains = p.AllowedDomains
		next.MinReliabilityScore = p.MinReliabilityScore
		next.RequireHTTPS = p.RequireHTTPS
		next.CreatedAt = p.CreatedAt
		f := cmd.Flags()
		if f.Changed("allow-domain") {
			next.AllowedDomains, _ = f.GetStringSlice("allow-domain")
		}
		if f.Changed("min-reliability") {
			next.MinReliabilityScore, _ = f.GetInt("min-reliability")
		}
		if f.Changed("require-https") {
			next.RequireHTTPS, _ = f.GetBool("require-https")
		}
		if next.MinReliabilityScore < 0 || next.MinReliabilityScore > 100 {
			return &evidence.ConfigurationError{Field: "min-reliability", Reason: "must be between 0 and 100"}
		}

		if err := st.SaveSourcePolicy(ctx, &next); err != nil {
			return eris.Wrap(err, "policy set")
		}
		fmt.Fprintf(os.Stderr, "Saved source policy for %s\n", project)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{policyShowCmd, policySetCmd} {
		c.Flags().String("project", "", "project id (required)")
		_ = c.MarkFlagRequired("project")
	}
	f := policySetCmd.Flags()
	f.String("user", "", "user id")
	f.String("mode", string(evidence.ModeBalanced), "evidence mode: strict, balanced or hypothesis")
	f.Bool("tier1", true, "search user documents")
	f.Bool("tier2", true, "search official APIs")
	f.Bool("tier3", true, "search business data")
	f.Bool("tier4", false, "search news")
	f.StringSlice("block-domain", nil, "domains to exclude")
	f.StringSlice("allow-domain", nil, "only search these domains")
	f.Int("max-age", 0, "maximum source age in days (0 = no limit)")
	f.Int("min-reliability", tierconfig.DefaultMinReliability, "minimum source reliability score")
	f.Bool("require-https", true, "reject non-HTTPS sources")

	policyCmd.AddCommand(policyShowCmd, policySetCmd)
	rootCmd.AddCommand(policyCmd)
}
