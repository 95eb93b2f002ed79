package calibrate

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const tol = 1e-9

func TestSaturate(t *testing.T) {
	assert.Equal(t, 0.0, Saturate(0, 10))
	assert.InDelta(t, 1-math.Exp(-1), Saturate(10, 10), tol)

	prev := 0.0
	for sum := 0; sum <= 200; sum++ {
		p := Saturate(sum, 10)
		assert.GreaterOrEqual(t, p, prev)
		assert.Less(t, p, 1.0)
		prev = p
	}
}

func TestEmail_FallbackWhenAbsent(t *testing.T) {
	out := DefaultEmailParams().Email(26, Absent())

	assert.Equal(t, PathFallbackOnly, out.Path)
	assert.InDelta(t, 1-math.Exp(-26.0/30), out.Probability, tol)
	assert.InDelta(t, 0.5796, out.Probability, 1e-3)
	assert.Empty(t, out.Err)
	assert.Zero(t, out.ModelProbability)
}

func TestEmail_ClassifierErrorUsesFallbackFormula(t *testing.T) {
	out := DefaultEmailParams().Email(12, Failed(errors.New("session closed")))

	assert.Equal(t, PathClassifierError, out.Path)
	assert.InDelta(t, 1-math.Exp(-12.0/30), out.Probability, tol)
	assert.Equal(t, "session closed", out.Err)
}

func TestEmail_Blended(t *testing.T) {
	params := DefaultEmailParams()
	probs := map[string]float64{
		"legitimate_email": 0.2,
		"phishing_url":     0.5,
		"legitimate_url":   0.1,
		"phishing_url_alt": 0.2,
	}

	out := params.Email(18, Observed(probs))

	logit := math.Log(0.7 / 0.3)
	wantML := 1 / (1 + math.Exp(-logit/0.9))
	wantRule := 1 - math.Exp(-1.8)
	assert.Equal(t, PathBlended, out.Path)
	assert.InDelta(t, wantML, out.ModelProbability, tol)
	assert.InDelta(t, wantRule, out.RuleProbability, tol)
	assert.InDelta(t, 0.45*wantML+0.55*wantRule, out.Probability, tol)
}

func TestEmail_LegitimateInversion(t *testing.T) {
	probs := map[string]float64{"legitimate_email": 0.9, "legitimate_url": 0.1}
	out := DefaultEmailParams().Email(0, Observed(probs))

	logit := math.Log(0.1 / 0.9)
	wantML := 1 / (1 + math.Exp(-logit/0.9))
	assert.InDelta(t, 0.45*wantML, out.Probability, 1e-9)
}

func TestEmail_EmptyProbabilitiesStayBlended(t *testing.T) {
	out := DefaultEmailParams().Email(0, Observed(map[string]float64{}))
	assert.Equal(t, PathBlended, out.Path)
	assert.InDelta(t, 0.45*out.ModelProbability, out.Probability, tol)
	assert.Less(t, out.ModelProbability, 1e-6)
}

func TestEmail_ExtremesStayFinite(t *testing.T) {
	params := DefaultEmailParams()
	hi := params.Email(500, Observed(map[string]float64{"phishing_url": 1}))
	lo := params.Email(0, Observed(map[string]float64{"phishing_url": 0, "legitimate_email": 1}))

	assert.False(t, math.IsNaN(hi.Probability))
	assert.LessOrEqual(t, hi.Probability, 1.0)
	assert.GreaterOrEqual(t, lo.Probability, 0.0)
	assert.Less(t, lo.Probability, 0.01)
}

func TestEmail_SmoothingIsTemperatureScaledLogit(t *testing.T) {
	params := DefaultEmailParams()
	for _, p := range []float64{0.05, 0.3, 0.95} {
		want := 1 / (1 + math.Exp(-math.Log(p/(1-p))/0.9))
		assert.InDelta(t, want, params.smooth(p), tol)
	}
	assert.InDelta(t, 0.5, params.smooth(0.5), tol)

	params.Temperature = 1
	assert.InDelta(t, 0.95, params.smooth(0.95), tol)
}

func TestEmail_TunableConstants(t *testing.T) {
	params := DefaultEmailParams()
	params.ModelWeight = 0
	params.RuleWeight = 1
	out := params.Email(10, Observed(map[string]float64{"phishing_url": 0.99}))
	assert.InDelta(t, 1-math.Exp(-1), out.Probability, tol)

	params.FallbackSaturation = 10
	assert.InDelta(t, 1-math.Exp(-1), params.Email(10, Absent()).Probability, tol)
}

func TestURL(t *testing.T) {
	params := DefaultURLParams()
	tests := []struct {
		name       string
		ev         Evidence
		suspicious bool
		wantPath   Path
		want       float64
	}{
		{name: "fallback clean", ev: Absent(), want: 0.10, wantPath: PathFallbackOnly},
		{name: "fallback suspicious", ev: Absent(), suspicious: true, want: 0.50, wantPath: PathFallbackOnly},
		{name: "error suspicious", ev: Failed(errors.New("boom")), suspicious: true, want: 0.50, wantPath: PathClassifierError},
		{name: "phishing label", ev: Observed(map[string]float64{"phishing_url": 0.3, "legitimate_url": 0.7}), want: 0.3, wantPath: PathBlended},
		{name: "boosted", ev: Observed(map[string]float64{"phishing_url": 0.3, "legitimate_url": 0.7}), suspicious: true, want: 0.45, wantPath: PathBlended},
		{name: "clamped", ev: Observed(map[string]float64{"phishing_url": 0.95}), suspicious: true, want: 1, wantPath: PathBlended},
		{name: "legit inversion", ev: Observed(map[string]float64{"legitimate_url": 0.8}), want: 0.2, wantPath: PathBlended},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := params.URL(tt.ev, tt.suspicious)
			assert.Equal(t, tt.wantPath, out.Path)
			assert.InDelta(t, tt.want, out.Probability, tol)
		})
	}
}

func TestPath_String(t *testing.T) {
	assert.Equal(t, "blended", PathBlended.String())
	assert.Equal(t, "fallback_only", PathFallbackOnly.String())
	assert.Equal(t, "classifier_error", PathClassifierError.String())
	b, _ := PathClassifierError.MarshalText()
	assert.Equal(t, "classifier_error", string(b))
}
