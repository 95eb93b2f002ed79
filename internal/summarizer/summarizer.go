// Package summarizer asks a local generative model for a plain-language
// explanation of an analysis result.
package summarizer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://ollama:11434"
	DefaultModel   = "granite4:micro"
	DefaultTimeout = 120 * time.Second

	maxLineBytes = 1 << 20
)

// Summarizer turns a prompt into generated text.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Func adapts a function to Summarizer.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Summarize(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

// Ollama streams completions from an Ollama generate endpoint.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama returns a client. Empty values fall back to the defaults.
func NewOllama(baseURL, model string, timeout time.Duration) *Ollama {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Summarize posts prompt and concatenates the streamed response fragments.
// Lines that are not JSON are skipped.
func (o *Ollama) Summarize(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: o.model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("model returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out strings.Builder
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		out.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read model stream: %w", err)
	}
	return out.String(), nil
}

// ErrorText is the summary reported in place of generated text on failure.
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	return "Error contacting AI model: " + err.Error()
}

// Explain builds the prompt for kind, runs it and folds any failure into
// the returned text.
func Explain(ctx context.Context, s Summarizer, kind Kind, result any) string {
	if s == nil {
		return ""
	}
	prompt, err := Prompt(kind, result)
	if err != nil {
		return ErrorText(err)
	}
	text, err := s.Summarize(ctx, prompt)
	if err != nil {
		return ErrorText(err)
	}
	return text
}

// ErrUnknownKind is returned by Prompt for kinds it has no template for.
var ErrUnknownKind = errors.New("unknown summary kind")
