// Package analyzer composes the detectors, the classifier adapter, the
// calibrator and the categorizer into the two analysis entry points.
package analyzer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/straja-ai/threatkit/internal/calibrate"
	"github.com/straja-ai/threatkit/internal/classifier"
)

// ErrInvalidInput marks requests that cannot be analysed at all.
var ErrInvalidInput = errors.New("invalid input")

// Observer receives one callback per completed analysis.
type Observer interface {
	RecordAnalysis(ctx context.Context, kind, path, verdict string, elapsed time.Duration)
}

// ClassifierSummary is the minimal classifier view attached to results.
type ClassifierSummary struct {
	Prediction string  `json:"prediction,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
}

type options struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer
}

// Option customises an analyzer.
type Option func(*options)

// WithLogger sets the logger used for classifier failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracer wraps each analysis in a span.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithObserver reports each analysis to o.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

func buildOptions(opts []Option) options {
	o := options{
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// consult calls the classifier once and converts the answer into calibration
// evidence. Errors are logged and folded into the evidence.
func consult(ctx context.Context, c classifier.Classifier, text string, logger *slog.Logger, kind string) (calibrate.Evidence, *ClassifierSummary) {
	if c == nil {
		return calibrate.Absent(), nil
	}
	pred, err := c.Predict(ctx, text)
	if err != nil {
		logger.Warn("classifier prediction failed, using fallback probability", "kind", kind, "error", err)
		return calibrate.Failed(err), &ClassifierSummary{Error: err.Error()}
	}
	return calibrate.Observed(pred.Probabilities), &ClassifierSummary{
		Prediction: pred.Label,
		Confidence: pred.Confidence,
	}
}
