// Package classifier adapts external text classifiers to the scoring engine.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrNotLoaded is returned when the underlying model could not be loaded.
var ErrNotLoaded = errors.New("classifier not loaded")

// Prediction is a single classifier answer.
type Prediction struct {
	Label         string             `json:"prediction"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"all_probabilities"`
}

// Classifier predicts label probabilities for a text or URL. Implementations
// must be safe for concurrent use and report failures as errors.
type Classifier interface {
	Predict(ctx context.Context, text string) (Prediction, error)
}

// Func adapts a function to the Classifier interface.
type Func func(ctx context.Context, text string) (Prediction, error)

func (f Func) Predict(ctx context.Context, text string) (Prediction, error) {
	return f(ctx, text)
}

// Static always answers with the same probabilities. It is useful for tests
// and for pinning a classifier in offline evaluation.
func Static(probs map[string]float64) Classifier {
	return Func(func(context.Context, string) (Prediction, error) {
		return FromProbabilities(probs)
	})
}

// FromProbabilities builds a Prediction whose label is the most probable
// entry. NaN or infinite values are rejected.
func FromProbabilities(probs map[string]float64) (Prediction, error) {
	out := Prediction{Probabilities: make(map[string]float64, len(probs))}
	best := math.Inf(-1)
	for label, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return Prediction{}, fmt.Errorf("classifier returned non-finite probability for %q", label)
		}
		out.Probabilities[label] = p
		if p > best || (p == best && label < out.Label) {
			best = p
			out.Label = label
			out.Confidence = p
		}
	}
	return out, nil
}

// Softmax converts logits to probabilities keyed by label.
func Softmax(labels []string, logits []float32) (map[string]float64, error) {
	n := min(len(labels), len(logits))
	if n == 0 {
		return nil, errors.New("no logits to normalise")
	}
	maxLogit := math.Inf(-1)
	for _, l := range logits[:n] {
		maxLogit = math.Max(maxLogit, float64(l))
	}
	var sum float64
	exps := make([]float64, n)
	for i, l := range logits[:n] {
		exps[i] = math.Exp(float64(l) - maxLogit)
		sum += exps[i]
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, errors.New("logits are not finite")
	}
	out := make(map[string]float64, n)
	for i := 0; i < n; i++ {
		out[labels[i]] = exps[i] / sum
	}
	return out, nil
}
