package safety

// MaxIndicators bounds the number of reasons surfaced for one analysis.
const MaxIndicators = 5

// Signal is the verdict of one detector on one narrow condition.
type Signal struct {
	ID        string   `json:"id"`
	Score     int      `json:"score"`
	Triggered bool     `json:"triggered"`
	Reason    string   `json:"reason"`
	Evidence  []string `json:"evidence,omitempty"`
}

// NewSignal builds a Signal, keeping Triggered consistent with Score.
// Negative scores are clamped to zero.
func NewSignal(id string, score int, reason string, evidence ...string) Signal {
	if score < 0 {
		score = 0
	}
	var ev []string
	if len(evidence) > 0 {
		ev = append([]string(nil), evidence...)
	}
	return Signal{
		ID:        id,
		Score:     score,
		Triggered: score > 0,
		Reason:    reason,
		Evidence:  ev,
	}
}

// Summary is the aggregate of an ordered rule output.
type Summary struct {
	RuleScore  int      `json:"rule_score"`
	Hits       int      `json:"hits"`
	Indicators []string `json:"indicators"`
}

// Aggregate sums signal scores and collects the reasons of triggered signals
// in order, truncated to MaxIndicators.
func Aggregate(signals []Signal) Summary {
	sum := Summary{Indicators: []string{}}
	for _, s := range signals {
		if s.Score <= 0 {
			continue
		}
		sum.RuleScore += s.Score
		sum.Hits++
		if len(sum.Indicators) < MaxIndicators {
			sum.Indicators = append(sum.Indicators, s.Reason)
		}
	}
	return sum
}
