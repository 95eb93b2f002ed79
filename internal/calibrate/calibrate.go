// Package calibrate turns rule scores and classifier probabilities into a
// single phishing probability. Every call returns a tagged Outcome; a
// classifier failure is folded into the fallback path and never returned as
// an error.
package calibrate

import (
	"math"
	"strings"
)

// Path tags which branch produced a probability.
type Path int

const (
	PathBlended Path = iota
	PathFallbackOnly
	PathClassifierError
)

func (p Path) String() string {
	switch p {
	case PathBlended:
		return "blended"
	case PathFallbackOnly:
		return "fallback_only"
	case PathClassifierError:
		return "classifier_error"
	default:
		return "unknown"
	}
}

func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Evidence is what the classifier contributed to one analysis.
type Evidence struct {
	present       bool
	probabilities map[string]float64
	err           error
}

// Absent is used when no classifier is configured.
func Absent() Evidence { return Evidence{} }

// Failed records a classifier call that returned an error.
func Failed(err error) Evidence { return Evidence{present: true, err: err} }

// Observed records a successful classifier call.
func Observed(probs map[string]float64) Evidence {
	return Evidence{present: true, probabilities: probs}
}

// Err returns the classifier error, if any.
func (e Evidence) Err() error { return e.err }

// Outcome is the calibrated probability plus the branch that produced it.
type Outcome struct {
	Path        Path
	Probability float64
	// RuleProbability is the saturated rule component used by the branch.
	RuleProbability float64
	// ModelProbability is the classifier component after smoothing. Zero
	// on fallback paths.
	ModelProbability float64
	Err              string
}

// EmailParams are the tunable constants of the email calibration.
type EmailParams struct {
	ModelWeight        float64 `yaml:"model_weight"`
	RuleWeight         float64 `yaml:"rule_weight"`
	Temperature        float64 `yaml:"temperature"`
	RuleSaturation     float64 `yaml:"rule_saturation"`
	FallbackSaturation float64 `yaml:"fallback_saturation"`
	Epsilon            float64 `yaml:"epsilon"`
}

// DefaultEmailParams returns the shipped tuning.
func DefaultEmailParams() EmailParams {
	return EmailParams{
		ModelWeight:        0.45,
		RuleWeight:         0.55,
		Temperature:        0.9,
		RuleSaturation:     10,
		FallbackSaturation: 30,
		Epsilon:            1e-6,
	}
}

// Email calibrates an email analysis.
func (p EmailParams) Email(ruleSum int, ev Evidence) Outcome {
	if ruleSum < 0 {
		ruleSum = 0
	}
	if !ev.present || ev.err != nil {
		out := Outcome{
			Path:            PathFallbackOnly,
			RuleProbability: Saturate(ruleSum, p.FallbackSaturation),
		}
		out.Probability = out.RuleProbability
		if ev.err != nil {
			out.Path = PathClassifierError
			out.Err = ev.err.Error()
		}
		return out
	}

	pRule := Saturate(ruleSum, p.RuleSaturation)
	pML := p.smooth(emailPhishingProbability(ev.probabilities))
	return Outcome{
		Path:             PathBlended,
		Probability:      clamp01(p.ModelWeight*pML + p.RuleWeight*pRule),
		RuleProbability:  pRule,
		ModelProbability: pML,
	}
}

// Saturate maps a non-negative rule sum onto [0,1) via 1-e^(-sum/denom).
func Saturate(ruleSum int, denom float64) float64 {
	if ruleSum <= 0 || denom <= 0 {
		return 0
	}
	return 1 - math.Exp(-float64(ruleSum)/denom)
}

// smooth applies temperature scaling in the logit domain.
func (p EmailParams) smooth(prob float64) float64 {
	eps := p.Epsilon
	if eps <= 0 {
		eps = 1e-6
	}
	t := p.Temperature
	if t <= 0 {
		t = 1
	}
	prob = math.Min(1-eps, math.Max(eps, clamp01(prob)))
	logit := math.Log(prob / (1 - prob))
	return clamp01(1 / (1 + math.Exp(-logit/t)))
}

// emailPhishingProbability sums phishing labels. When none carries mass the
// strongest legitimate label is inverted.
func emailPhishingProbability(probs map[string]float64) float64 {
	phish := sumLabels(probs, "phishing")
	if phish == 0 && len(probs) > 0 {
		legit := 0.0
		for label, v := range probs {
			if strings.Contains(strings.ToLower(label), "legitimate") && v > legit {
				legit = v
			}
		}
		phish = math.Max(0, 1-legit)
	}
	return phish
}

func sumLabels(probs map[string]float64, fragment string) float64 {
	total := 0.0
	for label, v := range probs {
		if strings.Contains(strings.ToLower(label), fragment) {
			total += v
		}
	}
	return total
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
