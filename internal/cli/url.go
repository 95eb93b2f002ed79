package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/straja-ai/threatkit/internal/analyzer"
	"github.com/straja-ai/threatkit/internal/app"
	"github.com/straja-ai/threatkit/internal/summarizer"
)

type urlOutput struct {
	*analyzer.URLResult
	AISummary string `json:"ai_summary,omitempty"`
}

func newURLCmd(g *globals) *cobra.Command {
	var (
		asJSON    bool
		summarize bool
		dns       bool
	)
	cmd := &cobra.Command{
		Use:   "url <url>...",
		Short: "Score one or more URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("dns") {
				cfg.URLHeuristics.DNS.Enabled = dns
			}
			cfg.Summarizer.Enabled = cfg.Summarizer.Enabled || summarize
			a, err := app.Build(cmd.Context(), cfg, logger, app.Options{SkipRecorder: true, SkipTelemetry: true})
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			results := make([]urlOutput, 0, len(args))
			for _, raw := range args {
				res, err := a.URL.Analyze(cmd.Context(), raw)
				if err != nil {
					return fmt.Errorf("%s: %w", raw, err)
				}
				o := urlOutput{URLResult: res}
				if summarize {
					o.AISummary = summarizer.Explain(cmd.Context(), a.Summarizer, summarizer.KindURL, res)
				}
				results = append(results, o)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if len(results) == 1 {
					return writeJSON(out, results[0])
				}
				return writeJSON(out, results)
			}
			for _, r := range results {
				if err := renderURL(out, r); err != nil {
					return err
				}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&asJSON, "json", false, "Print results as JSON")
	f.BoolVar(&summarize, "summarize", false, "Ask the language model for an explanation")
	f.BoolVar(&dns, "dns", false, "Run the DNS consistency probe (overrides config)")
	return cmd
}

func renderURL(w io.Writer, r urlOutput) error {
	heading(w, r.URL)
	rows := [][]string{
		{"Field", "Value"},
		{"Label", r.Label},
		{"Heuristic score", strconv.Itoa(r.Score)},
		{"Risk score", fmt.Sprintf("%d / %d", r.RiskScore, r.Threshold)},
		{"Flagged", yesNo(r.Flag)},
		{"Calibration", r.Calibration.String()},
	}
	if err := table(w, rows); err != nil {
		return err
	}
	checks := [][]string{{"Check", "Triggered", "Reason"}}
	for _, c := range r.Results {
		trig := yesNo(c.Triggered)
		if c.Triggered && c.Diagnostic {
			trig = "diagnostic"
		}
		checks = append(checks, []string{c.Name, trig, c.Reason})
	}
	if err := table(w, checks); err != nil {
		return err
	}
	if r.AISummary != "" {
		heading(w, "AI summary")
		fmt.Fprintln(w, r.AISummary)
	}
	return nil
}
