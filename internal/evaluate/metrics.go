package evaluate

import (
	"encoding/json"
	"math"
	"sort"
)

// Confusion is a binary confusion matrix with phishing as the positive class.
type Confusion struct {
	TN, FP, FN, TP int
}

// Matrix returns [[tn, fp], [fn, tp]].
func (c Confusion) Matrix() [2][2]int {
	return [2][2]int{{c.TN, c.FP}, {c.FN, c.TP}}
}

func (c Confusion) total() int { return c.TN + c.FP + c.FN + c.TP }

// ClassReport holds per-class precision, recall and F1.
type ClassReport struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Metrics summarises a run.
type Metrics struct {
	Accuracy        float64     `json:"accuracy"`
	Precision       float64     `json:"precision"`
	Recall          float64     `json:"recall"`
	F1              float64     `json:"f1"`
	ROCAUC          float64     `json:"roc_auc"`
	ConfusionMatrix [2][2]int   `json:"confusion_matrix"`
	Legitimate      ClassReport `json:"legitimate"`
	Phishing        ClassReport `json:"phishing"`
}

// MarshalJSON writes an undefined ROC AUC as null.
func (m Metrics) MarshalJSON() ([]byte, error) {
	type plain Metrics
	out := struct {
		plain
		ROCAUC *float64 `json:"roc_auc"`
	}{plain: plain(m)}
	if !math.IsNaN(m.ROCAUC) {
		out.ROCAUC = &m.ROCAUC
	}
	return json.Marshal(out)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func f1(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func classReport(tp, fp, fn int) ClassReport {
	p := ratio(tp, tp+fp)
	r := ratio(tp, tp+fn)
	return ClassReport{Precision: p, Recall: r, F1: f1(p, r), Support: tp + fn}
}

// Compute derives metrics from truth labels, predictions and scores where a
// higher score means more likely phishing.
func Compute(truth, pred []bool, scores []float64) Metrics {
	var c Confusion
	for i := range truth {
		switch {
		case truth[i] && pred[i]:
			c.TP++
		case truth[i]:
			c.FN++
		case pred[i]:
			c.FP++
		default:
			c.TN++
		}
	}
	phish := classReport(c.TP, c.FP, c.FN)
	legit := classReport(c.TN, c.FN, c.FP)
	return Metrics{
		Accuracy:        ratio(c.TP+c.TN, c.total()),
		Precision:       phish.Precision,
		Recall:          phish.Recall,
		F1:              phish.F1,
		ROCAUC:          ROCAUC(truth, scores),
		ConfusionMatrix: c.Matrix(),
		Legitimate:      legit,
		Phishing:        phish,
	}
}

// ROCAUC computes the area under the ROC curve via the rank-sum statistic.
// Tied scores share their average rank. It is NaN when either class is absent.
func ROCAUC(truth []bool, scores []float64) float64 {
	n := len(truth)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && scores[idx[j+1]] == scores[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}

	var pos, neg int
	var rankSum float64
	for i, t := range truth {
		if t {
			pos++
			rankSum += ranks[i]
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return math.NaN()
	}
	return (rankSum - float64(pos)*float64(pos+1)/2) / (float64(pos) * float64(neg))
}
