package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/evidence-cli/internal/evidence"
)

const unresolvedMarker = "UNRESOLVED"

// Render writes a plain-text report.
func Render(out io.Writer, r *Report) error {
	p := message.NewPrinter(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "Generation:\t%s\n", r.GenerationID)
	_, _ = fmt.Fprintf(w, "Function:\t%s\n", r.FunctionName)
	if r.Mode != "" {
		_, _ = fmt.Fprintf(w, "Mode:\t%s\n", r.Mode)
	}
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", r.Presentation.Label)
	_, _ = fmt.Fprintf(w, "Coverage:\t%d%%\n", r.Coverage)
	_, _ = p.Fprintf(w, "Sources:\t%d found / %d planned\n", r.SourcesFound, r.SourcesPlanned)
	_, _ = fmt.Fprintf(w, "Claims:\t%d supported, %d weak, %d unsupported\n",
		r.ClaimsSupported, r.ClaimsWeak, r.ClaimsUnsupported)
	if err := w.Flush(); err != nil {
		return err
	}

	if len(r.Claims) > 0 {
		_, _ = fmt.Fprintln(out, "\nCLAIMS")
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tSTATUS\tVALUE\tCITATIONS\tDOMAINS")
		for _, c := range r.Claims {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				c.ClaimID, c.Status, clip(c.Value, 40), len(c.Citations), strings.Join(c.IndependentDomains, ","))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if len(r.Sources) > 0 {
		_, _ = fmt.Fprintln(out, "\nSOURCES")
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "TIER\tNAME\tDOMAIN\tRELIABILITY\tPUBLISHED")
		for _, s := range r.Sources {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
				s.Type.Number(), clip(sourceName(s), 40), s.Domain, s.ReliabilityScore, s.PublishedDate)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if len(r.Conflicts) > 0 {
		_, _ = fmt.Fprintln(out, "\nCONFLICTS")
		for _, c := range r.Conflicts {
			_, _ = fmt.Fprintf(out, "Claim %s:\n", c.ClaimID)
			for _, v := range c.Values {
				_, _ = p.Fprintf(out, "  %s (%d citations)\n", v.Value, v.Citations)
			}
			if c.Resolved {
				_, _ = fmt.Fprintf(out, "  Resolution (%s): %s\n", c.ResolutionType, c.Resolution)
			} else {
				_, _ = fmt.Fprintf(out, "  %s\n", unresolvedMarker)
			}
		}
	}

	if len(r.Content) > 0 {
		_, _ = fmt.Fprintln(out, "\nCONTENT")
		var buf bytes.Buffer
		if err := json.Indent(&buf, r.Content, "", "  "); err != nil {
			_, _ = out.Write(r.Content)
		} else {
			_, _ = buf.WriteTo(out)
		}
		_, _ = fmt.Fprintln(out)
	}

	if len(r.Limitations) > 0 {
		_, _ = fmt.Fprintln(out, "\nLIMITATIONS")
		for _, l := range r.Limitations {
			_, _ = fmt.Fprintf(out, "- %s\n", l)
		}
	}
	return nil
}

func sourceName(s evidence.RealSource) string {
	if s.Title != "" {
		return s.Title
	}
	return s.Name
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
