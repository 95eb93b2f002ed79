package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/straja-ai/threatkit/internal/analyzer"
	"github.com/straja-ai/threatkit/internal/app"
	"github.com/straja-ai/threatkit/internal/summarizer"
)

type emailOptions struct {
	in        analyzer.EmailInput
	bodyFile  string
	json      bool
	summarize bool
}

func newEmailCmd(g *globals) *cobra.Command {
	o := &emailOptions{}
	cmd := &cobra.Command{
		Use:   "email",
		Short: "Score a single email",
		Example: `  threatkit email --subject "Verify your account" --from support@paypa1.xyz --body-file mail.txt
  cat mail.txt | threatkit email --subject "Invoice" --body-file - --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.bodyFile != "" {
				body, err := readBody(cmd.InOrStdin(), o.bodyFile)
				if err != nil {
					return err
				}
				o.in.Body = body
			}
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			cfg.Summarizer.Enabled = cfg.Summarizer.Enabled || o.summarize
			a, err := app.Build(cmd.Context(), cfg, logger, app.Options{SkipRecorder: true, SkipTelemetry: true})
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			res, err := a.Email.Analyze(cmd.Context(), o.in)
			if err != nil {
				return err
			}
			var explanation string
			if o.summarize {
				explanation = summarizer.Explain(cmd.Context(), a.Summarizer, summarizer.KindEmail, res)
			}
			out := cmd.OutOrStdout()
			if o.json {
				return writeJSON(out, struct {
					*analyzer.EmailResult
					AISummary string `json:"ai_summary,omitempty"`
				}{res, explanation})
			}
			return renderEmail(out, res, explanation)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.in.Subject, "subject", "", "Email subject")
	f.StringVar(&o.in.From, "from", "", "From header")
	f.StringVar(&o.in.ReturnPath, "return-path", "", "Return-Path header")
	f.StringVar(&o.in.To, "to", "", "To header")
	f.StringVar(&o.in.Body, "body", "", "Email body")
	f.StringVar(&o.bodyFile, "body-file", "", "Read the body from a file, - for stdin")
	f.BoolVar(&o.json, "json", false, "Print the result as JSON")
	f.BoolVar(&o.summarize, "summarize", false, "Ask the language model for an explanation")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")
	return cmd
}

func readBody(stdin io.Reader, path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(b), nil
}

func renderEmail(w io.Writer, res *analyzer.EmailResult, explanation string) error {
	heading(w, "Email verdict")
	rows := [][]string{
		{"Field", "Value"},
		{"Category", res.Category.String()},
		{"Safety score", formatFloat(res.SafetyScore, 1)},
		{"Phishing probability", formatFloat(res.PhishingProbability, 3)},
		{"Rule score", strconv.Itoa(res.RuleScore)},
		{"Calibration", res.Calibration.String()},
		{"Sender domain", res.Raw.SenderDomain},
		{"Return-Path domain", res.Raw.ReturnPathDomain},
	}
	if res.Classifier != nil {
		if res.Classifier.Error != "" {
			rows = append(rows, []string{"Classifier", "error: " + res.Classifier.Error})
		} else {
			rows = append(rows, []string{"Classifier", fmt.Sprintf("%s (%.3f)", res.Classifier.Prediction, res.Classifier.Confidence)})
		}
	}
	if err := table(w, rows); err != nil {
		return err
	}

	hits := [][]string{{"Signal", "Score", "Reason"}}
	for _, s := range res.Signals {
		if !s.Triggered {
			continue
		}
		hits = append(hits, []string{s.ID, strconv.Itoa(s.Score), s.Reason})
	}
	if len(hits) > 1 {
		heading(w, "Triggered signals")
		if err := table(w, hits); err != nil {
			return err
		}
	}
	if len(res.Raw.ParsedLinks) > 0 {
		heading(w, "Links")
		fmt.Fprintln(w, strings.Join(res.Raw.ParsedLinks, "\n"))
	}
	if explanation != "" {
		heading(w, "AI summary")
		fmt.Fprintln(w, explanation)
	}
	return nil
}
