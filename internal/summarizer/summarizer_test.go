package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllama_ConcatenatesStream(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"response":"This email ","done":false}` + "\n"))
		_, _ = w.Write([]byte("not json\n\n"))
		_, _ = w.Write([]byte(`{"response":"is likely Phishing","done":true}` + "\n"))
		_, _ = w.Write([]byte(`{"response":" ignored","done":false}` + "\n"))
	}))
	defer srv.Close()

	o := NewOllama(srv.URL+"/", "", time.Second)
	text, err := o.Summarize(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "This email is likely Phishing", text)
	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, "hello", got.Prompt)
}

func TestOllama_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, "missing", time.Second).Summarize(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "model not found")
}

func TestPrompt(t *testing.T) {
	result := map[string]any{"safety_score": 2.1}

	p, err := Prompt(KindEmail, result)
	require.NoError(t, err)
	assert.Contains(t, p, `"This email is likely Phishing/Legitimate"`)
	assert.True(t, strings.HasSuffix(p, "{\n  \"safety_score\": 2.1\n}"))

	p, err = Prompt(KindURL, result)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, "You are a cybersecurity assistant. Evaluate this URL analysis report"))

	_, err = Prompt("sms", result)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestExplain_FoldsErrors(t *testing.T) {
	failing := Func(func(context.Context, string) (string, error) {
		return "", errors.New("connection refused")
	})
	assert.Equal(t, "Error contacting AI model: connection refused", Explain(context.Background(), failing, KindURL, map[string]int{}))

	ok := Func(func(_ context.Context, prompt string) (string, error) {
		return "safe", nil
	})
	assert.Equal(t, "safe", Explain(context.Background(), ok, KindURL, map[string]int{}))
	assert.Empty(t, Explain(context.Background(), nil, KindURL, nil))
}
