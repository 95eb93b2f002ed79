package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/straja-ai/threatkit/internal/calibrate"
	"github.com/straja-ai/threatkit/internal/classifier"
	"github.com/straja-ai/threatkit/internal/extract"
	"github.com/straja-ai/threatkit/internal/rules"
	"github.com/straja-ai/threatkit/internal/safety"
	"github.com/straja-ai/threatkit/internal/verdict"
)

// EmailInput is the analysable part of an email.
type EmailInput struct {
	Subject    string            `json:"subject"`
	From       string            `json:"from"`
	ReturnPath string            `json:"return_path"`
	To         string            `json:"to"`
	Body       string            `json:"body"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// EmailRaw carries the extracted context behind a verdict.
type EmailRaw struct {
	SenderDomain               string   `json:"sender_domain"`
	ReturnPathDomain           string   `json:"return_path_domain"`
	SenderRegisteredDomain     string   `json:"sender_registered_domain,omitempty"`
	ReturnPathRegisteredDomain string   `json:"return_path_registered_domain,omitempty"`
	ParsedLinks                []string `json:"parsed_links"`
}

// EmailResult is the calibrated verdict for one email.
type EmailResult struct {
	PhishingProbability float64            `json:"phishing_probability"`
	SafetyScore         float64            `json:"safety_score"`
	Category            verdict.Category   `json:"category"`
	Indicators          []string           `json:"indicators"`
	RuleScore           int                `json:"rule_score"`
	Calibration         calibrate.Path     `json:"calibration"`
	Classifier          *ClassifierSummary `json:"classifier"`
	Raw                 EmailRaw           `json:"raw"`
	Signals             []safety.Signal    `json:"signals"`
}

// Email analyses emails.
type Email struct {
	engine     *rules.Engine
	classifier classifier.Classifier
	params     calibrate.EmailParams
	opts       options
}

// NewEmail builds an email analyzer. cls may be nil for rules-only mode.
func NewEmail(engine *rules.Engine, cls classifier.Classifier, params calibrate.EmailParams, opts ...Option) *Email {
	if engine == nil {
		engine = rules.NewEngine()
	}
	return &Email{
		engine:     engine,
		classifier: cls,
		params:     params,
		opts:       buildOptions(opts),
	}
}

func (in EmailInput) normalized() EmailInput {
	return EmailInput{
		Subject:    strings.TrimSpace(in.Subject),
		From:       strings.TrimSpace(in.From),
		ReturnPath: strings.TrimSpace(in.ReturnPath),
		To:         strings.TrimSpace(in.To),
		Body:       strings.TrimSpace(in.Body),
		Headers:    in.Headers,
	}
}

// Validate rejects emails with neither subject nor body.
func (in EmailInput) Validate() error {
	n := in.normalized()
	if n.Subject == "" && n.Body == "" {
		return fmt.Errorf("%w: subject or body required", ErrInvalidInput)
	}
	return nil
}

// Analyze scores one email. The only error it returns wraps ErrInvalidInput.
func (a *Email) Analyze(ctx context.Context, in EmailInput) (*EmailResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	in = in.normalized()

	start := time.Now()
	ctx, span := a.opts.tracer.Start(ctx, "analyzer.email")
	defer span.End()

	signals := a.engine.Run(rules.Email{
		Subject:    in.Subject,
		From:       in.From,
		ReturnPath: in.ReturnPath,
		To:         in.To,
		Body:       in.Body,
		Headers:    in.Headers,
	})
	summary := safety.Aggregate(signals)

	ev, cls := consult(ctx, a.classifier, classifier.EmailInput(in.Subject, in.From, in.Body), a.opts.logger, "email")
	outcome := a.params.Email(summary.RuleScore, ev)
	v := verdict.Categorize(outcome.Probability)

	senderDomain := extract.Domain(in.From)
	rpDomain := extract.Domain(in.ReturnPath)
	res := &EmailResult{
		PhishingProbability: outcome.Probability,
		SafetyScore:         v.SafetyScore,
		Category:            v.Category,
		Indicators:          summary.Indicators,
		RuleScore:           summary.RuleScore,
		Calibration:         outcome.Path,
		Classifier:          cls,
		Raw: EmailRaw{
			SenderDomain:               senderDomain,
			ReturnPathDomain:           rpDomain,
			SenderRegisteredDomain:     extract.RegisteredDomain(senderDomain),
			ReturnPathRegisteredDomain: extract.RegisteredDomain(rpDomain),
			ParsedLinks:                extract.Links(in.Body),
		},
		Signals: signals,
	}

	span.SetAttributes(
		attribute.Int("threatkit.rule_score", res.RuleScore),
		attribute.String("threatkit.calibration", outcome.Path.String()),
		attribute.String("threatkit.category", v.Category.String()),
	)
	if a.opts.observer != nil {
		a.opts.observer.RecordAnalysis(ctx, "email", outcome.Path.String(), v.Category.String(), time.Since(start))
	}
	return res, nil
}
