package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// MarkdownSink appends a human-readable entry per record, ending with a
// compact JSON block that a summarising model can consume.
type MarkdownSink struct {
	path string
	file *os.File
	mu   sync.Mutex
}

func NewMarkdownSink(path string) (*MarkdownSink, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &MarkdownSink{path: path, file: f}, nil
}

func (s *MarkdownSink) Name() string { return "markdown:" + s.path }

func (s *MarkdownSink) Deliver(_ context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	entry, err := renderMarkdown(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("markdown sink closed")
	}
	if _, err := s.file.WriteString(entry); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}

func (s *MarkdownSink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

type compactRecord struct {
	SenderMasked string   `json:"sender_masked,omitempty"`
	Subject      string   `json:"subject,omitempty"`
	URL          string   `json:"url,omitempty"`
	Probability  float64  `json:"phishing_probability"`
	SafetyScore  *float64 `json:"safety_score,omitempty"`
	Category     string   `json:"category,omitempty"`
	URLScore     *int     `json:"url_score,omitempty"`
	ML           any      `json:"ml"`
	Indicators   []string `json:"indicators"`
	Domains      *Domains `json:"domains,omitempty"`
	Links        []string `json:"links,omitempty"`
}

func renderMarkdown(rec *Record) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s UTC\n", rec.CreatedAt.UTC().Format("2006-01-02 15:04:05Z"))

	switch rec.Kind {
	case KindURL:
		fmt.Fprintf(&b, "- **URL:** %s\n", rec.URL)
		if rec.URLScore != nil {
			fmt.Fprintf(&b, "- **Score:** %d / 5 (%s)\n", *rec.URLScore, rec.URLLabel)
		}
	default:
		fmt.Fprintf(&b, "- **Sender (masked):** `%s`\n", rec.SenderMasked)
		fmt.Fprintf(&b, "- **Subject:** %s\n", rec.Subject)
		if rec.SafetyScore != nil {
			fmt.Fprintf(&b, "- **Safety score:** %.1f / 5 (%s)\n", *rec.SafetyScore, rec.Category)
		}
	}
	fmt.Fprintf(&b, "- **Phishing probability:** %.2f%% via %s\n", rec.PhishingProbability*100, rec.Calibration)

	if ml := rec.Classifier; ml != nil {
		if ml.Error != "" {
			fmt.Fprintf(&b, "- **ML:** error `%s`\n", ml.Error)
		} else {
			fmt.Fprintf(&b, "- **ML prediction:** %s\n", ml.Prediction)
			fmt.Fprintf(&b, "- **ML confidence:** %.2f%%\n", ml.Confidence*100)
		}
	}

	if len(rec.Indicators) > 0 {
		b.WriteString("- **Key indicators:**\n")
		for _, ind := range rec.Indicators {
			fmt.Fprintf(&b, "  - %s\n", ind)
		}
	}
	if d := rec.Domains; d != nil {
		b.WriteString("- **Domains:**\n")
		if d.Sender != "" {
			fmt.Fprintf(&b, "  - sender_domain: %s\n", d.Sender)
		}
		if d.ReturnPath != "" {
			fmt.Fprintf(&b, "  - return_path_domain: %s\n", d.ReturnPath)
		}
	}
	if len(rec.Links) > 0 {
		b.WriteString("- **Top links:**\n")
		for _, l := range rec.Links {
			fmt.Fprintf(&b, "  - %s\n", l)
		}
	}

	compact := compactRecord{
		SenderMasked: rec.SenderMasked,
		Subject:      rec.Subject,
		URL:          rec.URL,
		Probability:  rec.PhishingProbability,
		SafetyScore:  rec.SafetyScore,
		Category:     rec.Category,
		URLScore:     rec.URLScore,
		Indicators:   rec.Indicators,
		Domains:      rec.Domains,
		Links:        rec.Links,
	}
	if rec.Classifier != nil {
		compact.ML = rec.Classifier
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(compact); err != nil {
		return "", fmt.Errorf("encode compact record: %w", err)
	}

	b.WriteString("\n<details><summary>compact-json</summary>\n\n```json\n")
	b.Write(buf.Bytes())
	b.WriteString("```\n</details>\n\n---\n\n")
	return b.String(), nil
}
