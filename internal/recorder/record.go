// Package recorder persists privacy-reduced analysis records to write-only
// sinks. Recording runs off the request path and never alters a verdict.
package recorder

import (
	"time"

	"github.com/google/uuid"

	"github.com/straja-ai/threatkit/internal/analyzer"
	"github.com/straja-ai/threatkit/internal/redact"
)

const (
	KindEmail = "email"
	KindURL   = "url"

	maxSubjectRunes = 200
	maxLinks        = 3
)

// Domains are the sender-side domains of an email record.
type Domains struct {
	Sender     string `json:"sender,omitempty"`
	ReturnPath string `json:"return_path,omitempty"`
}

// Record is the persisted form of one analysis.
type Record struct {
	ID                  string                      `json:"id"`
	Kind                string                      `json:"kind"`
	CreatedAt           time.Time                   `json:"created_at"`
	SenderMasked        string                      `json:"sender_masked,omitempty"`
	Subject             string                      `json:"subject,omitempty"`
	Body                string                      `json:"body,omitempty"`
	URL                 string                      `json:"url,omitempty"`
	PhishingProbability float64                     `json:"phishing_probability"`
	SafetyScore         *float64                    `json:"safety_score,omitempty"`
	Category            string                      `json:"category,omitempty"`
	URLScore            *int                        `json:"url_score,omitempty"`
	URLLabel            string                      `json:"url_label,omitempty"`
	Indicators          []string                    `json:"indicators"`
	Domains             *Domains                    `json:"domains,omitempty"`
	Links               []string                    `json:"links,omitempty"`
	Calibration         string                      `json:"calibration"`
	Classifier          *analyzer.ClassifierSummary `json:"ml,omitempty"`
}

// EmailOptions controls what an email record keeps.
type EmailOptions struct {
	// StoreBody keeps the raw body. Off unless the caller opts in.
	StoreBody bool
}

var (
	newID = func() string { return uuid.NewString() }
	now   = func() time.Time { return time.Now().UTC() }
)

// FromEmail reduces an email analysis to a record. The sender is masked,
// the subject truncated and the body dropped unless opts.StoreBody is set.
func FromEmail(in analyzer.EmailInput, res *analyzer.EmailResult, opts EmailOptions) *Record {
	if res == nil {
		return nil
	}
	score := res.SafetyScore
	rec := &Record{
		ID:                  newID(),
		Kind:                KindEmail,
		CreatedAt:           now(),
		SenderMasked:        redact.MaskAddress(in.From),
		Subject:             redact.Truncate(in.Subject, maxSubjectRunes),
		PhishingProbability: res.PhishingProbability,
		SafetyScore:         &score,
		Category:            res.Category.String(),
		Indicators:          append([]string{}, res.Indicators...),
		Calibration:         res.Calibration.String(),
		Classifier:          res.Classifier,
	}
	if res.Raw.SenderDomain != "" || res.Raw.ReturnPathDomain != "" {
		rec.Domains = &Domains{Sender: res.Raw.SenderDomain, ReturnPath: res.Raw.ReturnPathDomain}
	}
	if n := min(len(res.Raw.ParsedLinks), maxLinks); n > 0 {
		rec.Links = append([]string(nil), res.Raw.ParsedLinks[:n]...)
	}
	if opts.StoreBody {
		rec.Body = in.Body
	}
	return rec
}

// FromURL reduces a URL analysis to a record.
func FromURL(res *analyzer.URLResult) *Record {
	if res == nil {
		return nil
	}
	score := res.Score
	indicators := make([]string, 0, len(res.Triggered))
	for _, c := range res.Triggered {
		indicators = append(indicators, c.Name)
	}
	return &Record{
		ID:                  newID(),
		Kind:                KindURL,
		CreatedAt:           now(),
		URL:                 redact.MaskURLUser(res.URL),
		PhishingProbability: res.PhishingProbability,
		URLScore:            &score,
		URLLabel:            res.Label,
		Indicators:          indicators,
		Calibration:         res.Calibration.String(),
		Classifier:          res.Classifier,
	}
}
