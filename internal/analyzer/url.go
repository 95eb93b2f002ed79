package analyzer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/straja-ai/threatkit/internal/calibrate"
	"github.com/straja-ai/threatkit/internal/classifier"
	"github.com/straja-ai/threatkit/internal/urlscan"
)

// DefaultURLFlagThreshold is the risk score at which a URL is flagged.
const DefaultURLFlagThreshold = 40

// URLResult is the heuristic report plus the calibrated probability.
type URLResult struct {
	urlscan.Report
	PhishingProbability float64            `json:"phishing_probability"`
	RiskScore           int                `json:"risk_score"`
	Flag                bool               `json:"flag"`
	Threshold           int                `json:"threshold"`
	Calibration         calibrate.Path     `json:"calibration"`
	Classifier          *ClassifierSummary `json:"classifier"`
}

// URL analyses links.
type URL struct {
	scanner    *urlscan.Scanner
	classifier classifier.Classifier
	params     calibrate.URLParams
	threshold  int
	opts       options
}

// NewURL builds a URL analyzer. cls may be nil for heuristics-only mode.
// A non-positive threshold selects DefaultURLFlagThreshold.
func NewURL(scanner *urlscan.Scanner, cls classifier.Classifier, params calibrate.URLParams, threshold int, opts ...Option) *URL {
	if scanner == nil {
		scanner = urlscan.New(urlscan.DefaultConfig())
	}
	if threshold <= 0 {
		threshold = DefaultURLFlagThreshold
	}
	return &URL{
		scanner:    scanner,
		classifier: cls,
		params:     params,
		threshold:  threshold,
		opts:       buildOptions(opts),
	}
}

// Analyze scores one URL. The only error it returns wraps ErrInvalidInput.
func (a *URL) Analyze(ctx context.Context, raw string) (*URLResult, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: url required", ErrInvalidInput)
	}

	start := time.Now()
	ctx, span := a.opts.tracer.Start(ctx, "analyzer.url")
	defer span.End()

	rep := a.scanner.Scan(ctx, raw)
	ev, cls := consult(ctx, a.classifier, raw, a.opts.logger, "url")
	outcome := a.params.URL(ev, rep.Suspicious)

	risk := int(math.Round(outcome.Probability * 100))
	res := &URLResult{
		Report:              rep,
		PhishingProbability: outcome.Probability,
		RiskScore:           risk,
		Flag:                risk >= a.threshold,
		Threshold:           a.threshold,
		Calibration:         outcome.Path,
		Classifier:          cls,
	}

	span.SetAttributes(
		attribute.Int("threatkit.url_score", rep.Score),
		attribute.String("threatkit.calibration", outcome.Path.String()),
	)
	if a.opts.observer != nil {
		a.opts.observer.RecordAnalysis(ctx, "url", outcome.Path.String(), rep.Label, time.Since(start))
	}
	return res, nil
}
