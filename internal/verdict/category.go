// Package verdict maps calibrated probabilities and URL check counts onto the
// user-facing scales.
package verdict

import (
	"fmt"
	"math"
	"strconv"
)

const (
	MaxSafetyScore = 5.0

	phishingBelow       = 1.5
	likelyPhishingBelow = 3.5
)

// Category is an immutable value object for the email verdict band.
type Category struct {
	value string
}

var (
	CategoryPhishing       = Category{value: "Phishing"}
	CategoryLikelyPhishing = Category{value: "Likely Phishing"}
	CategorySafe           = Category{value: "Safe"}
)

// CategoryFromString reconstructs a Category from its string representation.
func CategoryFromString(s string) (Category, error) {
	switch s {
	case CategoryPhishing.value:
		return CategoryPhishing, nil
	case CategoryLikelyPhishing.value:
		return CategoryLikelyPhishing, nil
	case CategorySafe.value:
		return CategorySafe, nil
	default:
		return Category{}, fmt.Errorf("invalid category: %q", s)
	}
}

// CategoryFromSafetyScore bands a 0-5 safety score. Upper bounds are
// exclusive: 1.5 is Likely Phishing and 3.5 is Safe.
func CategoryFromSafetyScore(score float64) Category {
	switch {
	case score < phishingBelow:
		return CategoryPhishing
	case score < likelyPhishingBelow:
		return CategoryLikelyPhishing
	default:
		return CategorySafe
	}
}

func (c Category) String() string { return c.value }

// IsZero returns true if the Category has not been set.
func (c Category) IsZero() bool { return c.value == "" }

// Equal checks equality with another Category.
func (c Category) Equal(other Category) bool { return c.value == other.value }

// IsPhishing reports whether the band is Phishing or Likely Phishing.
func (c Category) IsPhishing() bool {
	return c.Equal(CategoryPhishing) || c.Equal(CategoryLikelyPhishing)
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.value), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := CategoryFromString(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// SafetyScore converts a phishing probability into the 0-5 safety scale,
// rounded to one decimal. Higher is safer.
func SafetyScore(phishingProbability float64) float64 {
	if math.IsNaN(phishingProbability) {
		phishingProbability = 1
	}
	s := math.Max(0, math.Min(MaxSafetyScore, MaxSafetyScore*(1-phishingProbability)))
	return roundTenth(s)
}

// roundTenth rounds the exact binary value to one decimal place. Scaling by
// ten first would round twice: 3.4499999999999997 must stay 3.4.
func roundTenth(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// Verdict is the categorizer output for one email.
type Verdict struct {
	SafetyScore float64  `json:"safety_score"`
	Category    Category `json:"category"`
}

// Categorize derives the safety score and band from a probability.
func Categorize(phishingProbability float64) Verdict {
	s := SafetyScore(phishingProbability)
	return Verdict{SafetyScore: s, Category: CategoryFromSafetyScore(s)}
}
