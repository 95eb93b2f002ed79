package verdict

// MaxURLScore is the score of a URL that triggered no structural check.
const MaxURLScore = 5

var urlLabels = [...]string{
	"Extremely Suspicious",
	"Highly Suspicious",
	"Fairly Suspicious",
	"Somewhat Suspicious",
	"Slightly Suspicious",
	"Not Suspicious",
}

// URLScore is 5 minus the penalised check count, floored at zero.
func URLScore(penalised int) int {
	return max(0, MaxURLScore-penalised)
}

// URLLabel names a 0-5 URL score. Out of range scores are clamped.
func URLLabel(score int) string {
	score = max(0, min(MaxURLScore, score))
	return urlLabels[score]
}
