package cli

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"sync"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/straja-ai/threatkit/internal/app"
	"github.com/straja-ai/threatkit/internal/evaluate"
)

type evalOptions struct {
	data        string
	out         string
	sampleLimit int
	cutoff      float64
	workers     int
	json        bool
}

func newEvalCmd(g *globals) *cobra.Command {
	o := &evalOptions{}
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate the email pipeline against a labelled CSV dataset",
		Long: `eval scores every row of a CSV dataset with columns
label,subject,from,return_path,to,body and reports accuracy, precision,
recall, F1, ROC AUC and the confusion matrix. An email is predicted
phishing when its safety score falls below the cutoff.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("sample-limit") {
				cfg.Eval.SampleLimit = o.sampleLimit
			}
			if cmd.Flags().Changed("cutoff") {
				cfg.Eval.Cutoff = o.cutoff
			}

			samples, err := evaluate.LoadFile(o.data)
			if err != nil {
				return err
			}
			samples = evaluate.Limit(samples, cfg.Eval.SampleLimit)

			a, err := app.Build(cmd.Context(), cfg, logger, app.Options{SkipRecorder: true, SkipTelemetry: true})
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			runOpts := evaluate.Options{Cutoff: cfg.Eval.Cutoff, Workers: o.workers, Logger: logger}
			var bar *pterm.ProgressbarPrinter
			if !o.json {
				bar, _ = pterm.DefaultProgressbar.
					WithTotal(len(samples)).
					WithTitle("Scoring emails").
					WithWriter(cmd.ErrOrStderr()).
					Start()
			}
			if bar != nil {
				var mu sync.Mutex
				runOpts.Progress = func(done, total int) {
					mu.Lock()
					defer mu.Unlock()
					bar.Increment()
				}
			}
			report, err := evaluate.Run(cmd.Context(), a.Email, samples, runOpts)
			if bar != nil {
				_, _ = bar.Stop()
			}
			if err != nil {
				return err
			}

			if o.out != "" {
				if err := writeResultsFile(o.out, report.Results); err != nil {
					return err
				}
			}
			if o.json {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			return renderReport(cmd.OutOrStdout(), report)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.data, "data", "", "Path to the labelled CSV dataset")
	f.StringVar(&o.out, "out", "", "Write per-row predictions to this CSV file")
	f.IntVar(&o.sampleLimit, "sample-limit", 0, "Evaluate a seeded random subset of this size (0 for all)")
	f.Float64Var(&o.cutoff, "cutoff", evaluate.DefaultCutoff, "Safety score below which an email counts as phishing")
	f.IntVar(&o.workers, "workers", 4, "Concurrent analyses")
	f.BoolVar(&o.json, "json", false, "Print the report as JSON")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func writeResultsFile(path string, results []evaluate.Result) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return evaluate.WriteResults(f, results)
}

func renderReport(w io.Writer, r *evaluate.Report) error {
	m := r.Metrics
	heading(w, fmt.Sprintf("Evaluation of %d emails (cutoff %s, %d errors)", r.Samples, formatFloat(r.Cutoff, 1), r.Errors))
	auc := "n/a"
	if !math.IsNaN(m.ROCAUC) {
		auc = formatFloat(m.ROCAUC, 4)
	}
	if err := table(w, [][]string{
		{"Metric", "Value"},
		{"Accuracy", formatFloat(m.Accuracy, 4)},
		{"Precision", formatFloat(m.Precision, 4)},
		{"Recall", formatFloat(m.Recall, 4)},
		{"F1", formatFloat(m.F1, 4)},
		{"ROC AUC", auc},
	}); err != nil {
		return err
	}

	heading(w, "Per class")
	if err := table(w, [][]string{
		{"Class", "Precision", "Recall", "F1", "Support"},
		classRow("legitimate", m.Legitimate),
		classRow("phishing", m.Phishing),
	}); err != nil {
		return err
	}

	cm := m.ConfusionMatrix
	heading(w, "Confusion matrix")
	return table(w, [][]string{
		{"", "pred legitimate", "pred phishing"},
		{"legitimate", strconv.Itoa(cm[0][0]), strconv.Itoa(cm[0][1])},
		{"phishing", strconv.Itoa(cm[1][0]), strconv.Itoa(cm[1][1])},
	})
}

func classRow(name string, c evaluate.ClassReport) []string {
	return []string{name, formatFloat(c.Precision, 4), formatFloat(c.Recall, 4), formatFloat(c.F1, 4), strconv.Itoa(c.Support)}
}
