package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/negotiator"
	"github.com/sells-group/evidence-cli/internal/orchestrator"
	"github.com/sells-group/evidence-cli/internal/report"
	"github.com/sells-group/evidence-cli/internal/store"
	"github.com/sells-group/evidence-cli/internal/tierconfig"
)

// maxUnattendedRounds bounds --on-block search_more when every retry blocks.
const maxUnattendedRounds = 3

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run an evidence-backed generation",
	Long: `Searches the enabled source tiers and generates cited claims for a function.

In strict mode a generation that misses its evidence contract is blocked and
the exit options are shown. Pick one interactively, or pass --on-block to
decide up front.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		function, _ := cmd.Flags().GetString("function")
		projectID, _ := cmd.Flags().GetString("project")
		userID, _ := cmd.Flags().GetString("user")
		onBlock, _ := cmd.Flags().GetString("on-block")
		asJSON, _ := cmd.Flags().GetBool("json")
		rawParams, _ := cmd.Flags().GetStringArray("param")
		profile, _ := cmd.Flags().GetString("profile")

		if onBlock != "" && !evidence.ExitAction(onBlock).Valid() {
			return eris.Errorf("--on-block must be search_more, continue_as_hypothesis or cancel, got %q", onBlock)
		}
		params, err := parseParams(rawParams)
		if err != nil {
			return err
		}
		if profile != "" {
			params["profile"] = profile
		}

		env, err := initGeneration(ctx, "generate")
		if err != nil {
			return err
		}
		defer env.Close()

		state, err := baseState(ctx, env.Store, env.Profiles.Get(profile), projectID)
		if err != nil {
			return err
		}
		state, err = applyStateFlags(cmd, state)
		if err != nil {
			return err
		}

		wf := orchestrator.New(env.Invoker, orchestrator.Options{
			ProjectID: projectID,
			UserID:    userID,
			Function:  function,
			Registry:  env.Registry,
			Recorder:  env.Store,
			Listener: func(t orchestrator.Transition) {
				_, _ = fmt.Fprintf(os.Stderr, "[%s] %s\n", function, t.To.Phase())
			},
		})

		res, err := runGeneration(ctx, wf, tierconfig.Build(state), params, exitChooser(onBlock, os.Stdin, os.Stderr))
		if err != nil {
			return err
		}
		if res == nil {
			_, _ = fmt.Fprintln(os.Stderr, "Generation cancelled.")
			return nil
		}
		return printResult(os.Stdout, res, asJSON)
	},
}

// chooser picks an exit action for a block. round counts blocks so far.
type chooser func(opts *evidence.StrictModeExitOptions, round int) (evidence.ExitAction, error)

// runGeneration submits once and resolves blocks until the workflow
// completes or is cancelled. A nil result means cancelled.
func runGeneration(ctx context.Context, wf *orchestrator.Workflow, gc tierconfig.GenerationConfig, params map[string]any, choose chooser) (*evidence.GenerationResult, error) {
	res, err := wf.Generate(ctx, gc, params)
	for round := 1; err == nil && res == nil; round++ {
		blocked, ok := wf.State().(orchestrator.Blocked)
		if !ok {
			return nil, nil
		}
		action, cerr := choose(blocked.Options, round)
		if cerr != nil {
			wf.Cancel()
			return nil, cerr
		}
		res, err = negotiator.New(wf).HandleStrictModeExit(ctx, action)
	}
	return res, err
}

// exitChooser uses the fixed action when set, otherwise prompts on in.
func exitChooser(fixed string, in io.Reader, out io.Writer) chooser {
	reader := bufio.NewReader(in)
	return func(opts *evidence.StrictModeExitOptions, round int) (evidence.ExitAction, error) {
		printExitOptions(out, opts)
		if fixed != "" {
			if round > maxUnattendedRounds {
				return "", eris.Errorf("generation still blocked after %d attempts", maxUnattendedRounds)
			}
			return evidence.ExitAction(fixed), nil
		}
		return promptAction(reader, out, opts)
	}
}

func printExitOptions(w io.Writer, opts *evidence.StrictModeExitOptions) {
	if opts == nil {
		_, _ = fmt.Fprintln(w, "Strict mode blocked this generation.")
		return
	}
	_, _ = fmt.Fprintf(w, "Strict mode blocked this generation: %s\n", opts.Reason)
	if opts.Detail != "" {
		_, _ = fmt.Fprintf(w, "  %s\n", opts.Detail)
	}
	_, _ = fmt.Fprintf(w, "  Coverage %d%% (required %d%%), sources %d (required %d)\n",
		opts.CurrentCoverage, opts.RequiredCoverage, opts.SourcesFound, opts.SourcesRequired)
	for i, o := range opts.Options {
		_, _ = fmt.Fprintf(w, "  %d) %s: %s\n", i+1, o.Label, o.Description)
		if o.Warning != "" {
			_, _ = fmt.Fprintf(w, "     warning: %s\n", o.Warning)
		}
	}
}

// promptAction reads an option number or action name. End of input cancels.
func promptAction(r *bufio.Reader, w io.Writer, opts *evidence.StrictModeExitOptions) (evidence.ExitAction, error) {
	if opts == nil || len(opts.Options) == 0 {
		return evidence.ActionCancel, nil
	}
	for {
		_, _ = fmt.Fprint(w, "Choose an option: ")
		line, err := r.ReadString('\n')
		choice := strings.TrimSpace(line)
		if choice != "" {
			if n, convErr := strconv.Atoi(choice); convErr == nil && n >= 1 && n <= len(opts.Options) {
				return opts.Options[n-1].Action, nil
			}
			if a := evidence.ExitAction(choice); opts.Offers(a) {
				return a, nil
			}
			_, _ = fmt.Fprintf(w, "Unknown option %q\n", choice)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return evidence.ActionCancel, nil
			}
			return "", eris.Wrap(err, "read choice")
		}
	}
}

// baseState starts from the project's saved policy, or the profile defaults
// when none is saved.
func baseState(ctx context.Context, st store.Store, profile tierconfig.Profile, projectID string) (tierconfig.UIState, error) {
	if projectID != "" {
		p, err := st.GetSourcePolicy(ctx, projectID)
		switch {
		case err == nil:
			return tierconfig.FromPolicy(*p), nil
		case !errors.Is(err, store.ErrNotFound):
			return tierconfig.UIState{}, err
		}
	}
	return profile.DefaultState(), nil
}

// applyStateFlags overrides state with the flags the user set explicitly.
func applyStateFlags(cmd *cobra.Command, state tierconfig.UIState) (tierconfig.UIState, error) {
	f := cmd.Flags()
	if f.Changed("mode") {
		mode, _ := f.GetString("mode")
		state.EvidenceMode = evidence.EvidenceMode(mode)
	}
	tiers := []*bool{&state.Tier1Enabled, &state.Tier2Enabled, &state.Tier3Enabled, &state.Tier4Enabled}
	for i, dst := range tiers {
		name := fmt.Sprintf("tier%d", i+1)
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}
	if f.Changed("block-domain") {
		state.BlockedDomains, _ = f.GetStringSlice("block-domain")
	}
	if f.Changed("max-age") {
		days, _ := f.GetInt("max-age")
		if days < 0 {
			return state, &evidence.ConfigurationError{Field: "max-age", Reason: "must not be negative"}
		}
		state.MaxSourceAgeDays = &days
	}
	return state, nil
}

// parseParams turns repeated key=value flags into additional params.
func parseParams(raw []string) (map[string]any, error) {
	params := make(map[string]any, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, eris.Errorf("invalid --param %q, want key=value", kv)
		}
		params[k] = v
	}
	return params, nil
}

func printResult(w io.Writer, res *evidence.GenerationResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	rep, err := report.Assemble(res)
	if err != nil {
		return err
	}
	return report.Render(w, rep)
}

func init() {
	f := generateCmd.Flags()
	f.String("function", "", "generation function name (required)")
	f.String("project", "", "project id")
	f.String("user", "", "user id")
	f.String("mode", string(evidence.ModeBalanced), "evidence mode: strict, balanced or hypothesis")
	f.Bool("tier1", true, "search user documents")
	f.Bool("tier2", true, "search official APIs")
	f.Bool("tier3", true, "search business data")
	f.Bool("tier4", false, "search news")
	f.StringSlice("block-domain", nil, "domains to exclude (repeatable)")
	f.Int("max-age", 0, "maximum source age in days (0 = no limit)")
	f.StringArray("param", nil, "additional parameter key=value (repeatable)")
	f.String("profile", "", "evidence profile id")
	f.String("on-block", "", "action when strict mode blocks: search_more, continue_as_hypothesis or cancel")
	f.Bool("json", false, "print the raw result as JSON")
	_ = generateCmd.MarkFlagRequired("function")
	rootCmd.AddCommand(generateCmd)
}
