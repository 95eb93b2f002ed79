package verdict_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straja-ai/threatkit/internal/verdict"
)

func TestCategoryFromSafetyScore_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  verdict.Category
	}{
		{0, verdict.CategoryPhishing},
		{1.4, verdict.CategoryPhishing},
		{1.5, verdict.CategoryLikelyPhishing},
		{3.4, verdict.CategoryLikelyPhishing},
		{3.5, verdict.CategorySafe},
		{5, verdict.CategorySafe},
	}
	for _, tt := range tests {
		got := verdict.CategoryFromSafetyScore(tt.score)
		assert.True(t, tt.want.Equal(got), "score %.1f: got %s", tt.score, got)
	}
}

func TestCategoryFromString(t *testing.T) {
	tests := []struct {
		input   string
		want    verdict.Category
		wantErr bool
	}{
		{"Phishing", verdict.CategoryPhishing, false},
		{"Likely Phishing", verdict.CategoryLikelyPhishing, false},
		{"Safe", verdict.CategorySafe, false},
		{"safe", verdict.Category{}, true},
		{"", verdict.Category{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := verdict.CategoryFromString(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, got.IsZero())
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
		})
	}
}

func TestCategory_JSON(t *testing.T) {
	b, err := json.Marshal(verdict.Categorize(0.9))
	require.NoError(t, err)
	assert.JSONEq(t, `{"safety_score":0.5,"category":"Phishing"}`, string(b))

	var v verdict.Verdict
	require.NoError(t, json.Unmarshal([]byte(`{"safety_score":4,"category":"Safe"}`), &v))
	assert.True(t, v.Category.Equal(verdict.CategorySafe))
	assert.False(t, v.Category.IsPhishing())
}

func TestSafetyScore(t *testing.T) {
	assert.Equal(t, 5.0, verdict.SafetyScore(0))
	assert.Equal(t, 0.0, verdict.SafetyScore(1))
	assert.Equal(t, 2.1, verdict.SafetyScore(0.58))
	assert.Equal(t, 5.0, verdict.SafetyScore(-0.5))
	assert.Equal(t, 0.0, verdict.SafetyScore(2))
}

func TestSafetyScore_RoundsOnce(t *testing.T) {
	tests := []struct {
		p        float64
		score    float64
		category verdict.Category
	}{
		{0.31, 3.4, verdict.CategoryLikelyPhishing},
		{0.03, 4.8, verdict.CategorySafe},
		{0.15, 4.2, verdict.CategorySafe},
		{0.5, 2.5, verdict.CategoryLikelyPhishing},
	}
	for _, tt := range tests {
		v := verdict.Categorize(tt.p)
		assert.Equal(t, tt.score, v.SafetyScore, "p=%v", tt.p)
		assert.Equal(t, tt.category, v.Category, "p=%v", tt.p)
	}
}

func TestSafetyScore_MonotoneAndBounded(t *testing.T) {
	prev := verdict.SafetyScore(0)
	for i := 1; i <= 1000; i++ {
		s := verdict.SafetyScore(float64(i) / 1000)
		assert.LessOrEqual(t, s, prev)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 5.0)
		prev = s
	}
}

func TestURLScoreAndLabel(t *testing.T) {
	assert.Equal(t, 5, verdict.URLScore(0))
	assert.Equal(t, 2, verdict.URLScore(3))
	assert.Equal(t, 0, verdict.URLScore(7))

	assert.Equal(t, "Extremely Suspicious", verdict.URLLabel(0))
	assert.Equal(t, "Fairly Suspicious", verdict.URLLabel(2))
	assert.Equal(t, "Not Suspicious", verdict.URLLabel(5))
	assert.Equal(t, "Not Suspicious", verdict.URLLabel(9))
	assert.Equal(t, "Extremely Suspicious", verdict.URLLabel(-1))
}
