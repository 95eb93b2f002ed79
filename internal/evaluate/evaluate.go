package evaluate

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/straja-ai/threatkit/internal/analyzer"
	"github.com/straja-ai/threatkit/internal/verdict"
)

// DefaultCutoff marks a sample as phishing when its safety score is below it.
const DefaultCutoff = 4.0

// EmailAnalyzer is the part of the email pipeline a run needs.
type EmailAnalyzer interface {
	Analyze(ctx context.Context, in analyzer.EmailInput) (*analyzer.EmailResult, error)
}

// Options tunes a run.
type Options struct {
	Cutoff float64
	// Workers bounds concurrent analyses. Values below one mean one.
	Workers int
	Logger  *slog.Logger
	// Progress is called after each sample with the number processed so far.
	// It may be called from several goroutines.
	Progress func(done, total int)
}

// Result is the outcome for one sample.
type Result struct {
	Sample      Sample
	SafetyScore float64
	Category    string
	Predicted   bool
	Err         error
}

// Report is the output of Run.
type Report struct {
	Samples int      `json:"samples"`
	Errors  int      `json:"errors"`
	Cutoff  float64  `json:"cutoff"`
	Metrics Metrics  `json:"metrics"`
	Results []Result `json:"-"`
}

// Run analyses every sample and computes metrics. Samples that fail analysis
// are treated as safe. Results keep the order of samples. Run stops early
// only when ctx is cancelled.
func Run(ctx context.Context, a EmailAnalyzer, samples []Sample, opts Options) (*Report, error) {
	cutoff := opts.Cutoff
	if cutoff <= 0 {
		cutoff = DefaultCutoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]Result, len(samples))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.Workers))
	for i, s := range samples {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := Result{Sample: s, SafetyScore: verdict.MaxSafetyScore}
			res, err := a.Analyze(gctx, s.Email)
			if err != nil {
				r.Err = err
				logger.Warn("sample analysis failed, counting as safe", "row", s.Index, "error", err)
			} else {
				r.SafetyScore = clampScore(res.SafetyScore)
				r.Category = res.Category.String()
			}
			r.Predicted = r.SafetyScore < cutoff
			results[i] = r
			if opts.Progress != nil {
				opts.Progress(int(done.Add(1)), len(samples))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &Report{Samples: len(samples), Cutoff: cutoff, Results: results}
	truth := make([]bool, len(results))
	pred := make([]bool, len(results))
	scores := make([]float64, len(results))
	for i, r := range results {
		if r.Err != nil {
			rep.Errors++
		}
		truth[i] = r.Sample.Phishing
		pred[i] = r.Predicted
		scores[i] = 1 - r.SafetyScore/verdict.MaxSafetyScore
	}
	rep.Metrics = Compute(truth, pred, scores)
	return rep, nil
}

func clampScore(s float64) float64 {
	if math.IsNaN(s) {
		return verdict.MaxSafetyScore
	}
	return math.Max(0, math.Min(verdict.MaxSafetyScore, s))
}

// WriteResults writes per-sample rows as CSV.
func WriteResults(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"row", "subject", "from", "label", "safety_score", "category", "pred_phish", "error"}); err != nil {
		return err
	}
	for _, r := range results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		row := []string{
			strconv.Itoa(r.Sample.Index),
			r.Sample.Email.Subject,
			r.Sample.Email.From,
			boolDigit(r.Sample.Phishing),
			strconv.FormatFloat(r.SafetyScore, 'f', 1, 64),
			r.Category,
			boolDigit(r.Predicted),
			errText,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", r.Sample.Index, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
