package cli

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/straja-ai/threatkit/internal/analyzer"
	"github.com/straja-ai/threatkit/internal/app"
)

const benchWarmup = 5

type benchStats struct {
	N   int
	Avg float64
	P50 float64
	P95 float64
}

// summarizeDurations returns latency statistics in milliseconds.
func summarizeDurations(durations []time.Duration) benchStats {
	if len(durations) == 0 {
		return benchStats{}
	}
	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }
	return benchStats{
		N:   len(sorted),
		Avg: float64(total.Microseconds()) / 1000.0 / float64(len(sorted)),
		P50: ms(sorted[len(sorted)/2]),
		P95: ms(sorted[int(float64(len(sorted))*0.95)]),
	}
}

func newBenchCmd(g *globals) *cobra.Command {
	var (
		kind string
		n    int
		text string
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure analysis latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			a, err := app.Build(cmd.Context(), cfg, logger, app.Options{SkipRecorder: true, SkipTelemetry: true})
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			var run func(ctx context.Context) error
			switch kind {
			case "email":
				in := analyzer.EmailInput{Subject: "Action required", From: "support@example.com", Body: text}
				run = func(ctx context.Context) error {
					_, err := a.Email.Analyze(ctx, in)
					return err
				}
			case "url":
				if text == defaultBenchText {
					text = "http://secure-login.example.top/account/verify"
				}
				run = func(ctx context.Context) error {
					_, err := a.URL.Analyze(ctx, text)
					return err
				}
			default:
				return fmt.Errorf("unknown kind %q (want email or url)", kind)
			}

			a.Warm()
			for range benchWarmup {
				if err := run(cmd.Context()); err != nil {
					return fmt.Errorf("warmup: %w", err)
				}
			}
			if n <= 0 {
				n = 1
			}
			durations := make([]time.Duration, 0, n)
			for range n {
				start := time.Now()
				if err := run(cmd.Context()); err != nil {
					return err
				}
				durations = append(durations, time.Since(start))
			}

			s := summarizeDurations(durations)
			fmt.Fprintf(cmd.OutOrStdout(), "bench: kind=%s n=%d avg_ms=%.2f p50_ms=%.2f p95_ms=%.2f classifier=%s\n",
				kind, s.N, s.Avg, s.P50, s.P95, yesNo(cfg.Classifier.Enabled))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&kind, "kind", "email", "Pipeline to benchmark (email or url)")
	f.IntVar(&n, "n", 200, "Number of iterations")
	f.StringVar(&text, "text", defaultBenchText, "Email body or URL to analyse")
	return cmd
}

const defaultBenchText = "Your account has been suspended. Verify your password within 24 hours at http://192.168.4.20/login"
