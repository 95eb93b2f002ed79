package calibrate

// URLParams are the tunable constants of the URL calibration.
type URLParams struct {
	Shift              float64 `yaml:"shift"`
	Scale              float64 `yaml:"scale"`
	HeuristicBoost     float64 `yaml:"heuristic_boost"`
	FallbackSuspicious float64 `yaml:"fallback_suspicious"`
	FallbackClean      float64 `yaml:"fallback_clean"`
}

// DefaultURLParams returns the shipped tuning.
func DefaultURLParams() URLParams {
	return URLParams{
		Shift:              0,
		Scale:              1,
		HeuristicBoost:     0.15,
		FallbackSuspicious: 0.50,
		FallbackClean:      0.10,
	}
}

// URL calibrates a URL analysis. suspicious is true when any structural check
// triggered.
func (p URLParams) URL(ev Evidence, suspicious bool) Outcome {
	if !ev.present || ev.err != nil {
		out := Outcome{Path: PathFallbackOnly, Probability: p.FallbackClean}
		if suspicious {
			out.Probability = p.FallbackSuspicious
		}
		if ev.err != nil {
			out.Path = PathClassifierError
			out.Err = ev.err.Error()
		}
		out.Probability = clamp01(out.Probability)
		return out
	}

	phish := sumLabels(ev.probabilities, "phishing")
	if legit := sumLabels(ev.probabilities, "legit"); phish == 0 && legit > 0 {
		phish = 1 - legit
	}
	model := (phish + p.Shift) * p.Scale
	prob := model
	if suspicious {
		prob += p.HeuristicBoost
	}
	return Outcome{
		Path:             PathBlended,
		Probability:      clamp01(prob),
		ModelProbability: clamp01(model),
	}
}
