// Package rules implements the email detector battery. Each detector reads
// only the fields it declares and returns exactly one signal; detectors never
// fail, missing input degrades to a zero-score signal with an explanation.
package rules

import (
	"strings"

	"github.com/straja-ai/threatkit/internal/safety"
)

// Email is the artifact inspected by the email detectors.
type Email struct {
	Subject    string
	From       string
	ReturnPath string
	To         string
	Body       string
	Headers    map[string]string
}

// text joins subject and body the way the phrase detectors read them.
func (e Email) text() string {
	return e.Subject + "\n" + e.Body
}

// Detector evaluates one condition over an email.
type Detector interface {
	ID() string
	Evaluate(Email) safety.Signal
}

// Engine runs a fixed, ordered detector set.
type Engine struct {
	detectors []Detector
}

// NewEngine returns an engine over the given detectors. With no detectors the
// default battery is used.
func NewEngine(detectors ...Detector) *Engine {
	if len(detectors) == 0 {
		detectors = DefaultDetectors()
	}
	return &Engine{detectors: detectors}
}

// DefaultDetectors returns the email battery in registration order.
func DefaultDetectors() []Detector {
	return []Detector{
		SenderMismatch{},
		UrgencyKeywords{},
		CredentialLifecycle{},
		LinkProfile{},
		SuspiciousAttachment{},
		AllCapsSubject{},
	}
}

// Detectors returns the IDs of the registered detectors in order.
func (e *Engine) Detectors() []string {
	ids := make([]string, 0, len(e.detectors))
	for _, d := range e.detectors {
		ids = append(ids, d.ID())
	}
	return ids
}

// Run evaluates every detector against msg and returns one signal per
// detector in registration order.
func (e *Engine) Run(msg Email) []safety.Signal {
	out := make([]safety.Signal, 0, len(e.detectors))
	for _, d := range e.detectors {
		out = append(out, d.Evaluate(msg))
	}
	return out
}

func normalize(s string) string {
	return strings.TrimSpace(s)
}
