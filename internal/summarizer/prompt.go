package summarizer

import (
	"encoding/json"
	"fmt"
)

// Kind selects the prompt template.
type Kind string

const (
	KindEmail Kind = "email"
	KindURL   Kind = "url"
)

const emailPreamble = "You are a cybersecurity assistant. Analyze this EMAIL using the provided analysis data. " +
	"Use the safety_score as your primary source of truth, followed by key_indicators, sender " +
	"analysis, link evaluation, and ML probability scores. Base all reasoning on these signals " +
	"only. Do not guess beyond the data.\n\n" +
	"Respond in this exact format:\n" +
	"Line 1: \"This email is likely Phishing/Legitimate\" (choose based mainly on safety_score)\n" +
	"Next up to six lines: numbered reasons such as " +
	"\"1. <short reason based on score, indicators, links, keywords, or domain issues>\"\n" +
	"Final line: a brief summary sentence reinforcing the safety_score and main risk factors.\n\n" +
	"Here is the analysis data:\n"

const urlPreamble = "You are a cybersecurity assistant. " +
	"Evaluate this URL analysis report and provide a short, educational explanation " +
	"about whether the URL seems safe or suspicious.\n\n"

// Prompt renders result as indented JSON behind the preamble for kind.
func Prompt(kind Kind, result any) (string, error) {
	var preamble string
	switch kind {
	case KindEmail:
		preamble = emailPreamble
	case KindURL:
		preamble = urlPreamble
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode analysis: %w", err)
	}
	return preamble + string(data), nil
}
