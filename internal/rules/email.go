package rules

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/straja-ai/threatkit/internal/extract"
	"github.com/straja-ai/threatkit/internal/safety"
)

const (
	IDSenderMismatch       = "sender_mismatch"
	IDUrgencyKeywords      = "urgency_keywords"
	IDCredentialLifecycle  = "credential_lifecycle"
	IDLinkProfile          = "link_profile"
	IDSuspiciousAttachment = "suspicious_attachment"
	IDAllCapsSubject       = "all_caps_subject"
)

const (
	senderMismatchScore = 18
	attachmentScore     = 12
	allCapsScore        = 6
	urgencyCap          = 14
	credentialCap       = 14
	linkCap             = 14
	maxEvidence         = 5
)

type pattern struct {
	src string
	re  *regexp.Regexp
}

func compile(srcs ...string) []pattern {
	out := make([]pattern, 0, len(srcs))
	for _, s := range srcs {
		out = append(out, pattern{src: s, re: regexp.MustCompile(`(?i)` + s)})
	}
	return out
}

var urgencyPatterns = compile(
	`\burgent(?:ly|cy)?\b`,
	`\bimmediat(?:e|ely)\b`,
	`\bact (?:now|immediately|today)\b`,
	`\bverif(?:y|ication|ied|ying)\b`,
	`\baccount (?:lock(?:ed)?|suspend(?:ed|s)?|restrict(?:ed)?)\b`,
	`\bconfirm (?:your )?(?:password|details|identity)\b`,
	`\blast (?:warning|notice)\b`,
	`\blimited (?:time|offer)\b`,
	`\baction required\b`,
	`\bclick (?:here|the link)\b`,
)

// urgencySteps are the diminishing contributions of the first matched patterns.
var urgencySteps = []int{8, 4, 2}

var credentialPatterns = compile(
	`\bpassword(?:s)? (?:will )?expir(?:e|ation)\b`,
	`\breset (?:your )?password\b`,
	`\bupdate (?:your )?password\b`,
	`\bcredential(?:s)? (?:will )?expir(?:e|ation)\b`,
)

var (
	softDeadlineRe = regexp.MustCompile(`(?i)\bbefore (?:the )?(?:end of|tomorrow|today|monday|tuesday|wednesday|thursday|friday|week)\b`)
	attachmentRe   = regexp.MustCompile(`(?i)\.(exe|scr|js|bat|vbs|jar)\b`)
	upperLetterRe  = regexp.MustCompile(`[A-Z]`)
)

// SenderMismatch flags emails whose From and Return-Path domains differ.
type SenderMismatch struct{}

func (SenderMismatch) ID() string { return IDSenderMismatch }

func (SenderMismatch) Evaluate(e Email) safety.Signal {
	from := extract.Domain(normalize(e.From))
	rp := extract.Domain(normalize(e.ReturnPath))
	if from == "" || rp == "" {
		return safety.NewSignal(IDSenderMismatch, 0, "Insufficient headers for sender-domain check")
	}
	if from == rp {
		return safety.NewSignal(IDSenderMismatch, 0, "From and Return-Path domains match")
	}
	return safety.NewSignal(IDSenderMismatch, senderMismatchScore,
		fmt.Sprintf("From domain (%s) does not match Return-Path domain (%s)", from, rp),
		"from="+from, "return_path="+rp)
}

// UrgencyKeywords scores pressure phrasing with diminishing returns.
type UrgencyKeywords struct{}

func (UrgencyKeywords) ID() string { return IDUrgencyKeywords }

func (UrgencyKeywords) Evaluate(e Email) safety.Signal {
	text := e.text()
	var hits []string
	for _, p := range urgencyPatterns {
		if p.re.MatchString(text) {
			hits = append(hits, p.src)
		}
	}
	if len(hits) == 0 {
		return safety.NewSignal(IDUrgencyKeywords, 0, "No urgency phrasing detected")
	}

	n := min(len(hits), len(urgencySteps))
	score := 0
	for _, s := range urgencySteps[:n] {
		score += s
	}
	score = min(score, urgencyCap)

	return safety.NewSignal(IDUrgencyKeywords, score,
		fmt.Sprintf("Urgency/pressure phrasing detected (%d+ patterns)", n),
		hits[:min(len(hits), maxEvidence)]...)
}

// CredentialLifecycle flags password expiry, reset and update lures.
type CredentialLifecycle struct{}

func (CredentialLifecycle) ID() string { return IDCredentialLifecycle }

func (CredentialLifecycle) Evaluate(e Email) safety.Signal {
	text := e.text()
	hits := 0
	for _, p := range credentialPatterns {
		if p.re.MatchString(text) {
			hits++
		}
	}
	deadline := softDeadlineRe.MatchString(text)
	if hits == 0 && !deadline {
		return safety.NewSignal(IDCredentialLifecycle, 0, "No password/credential lifecycle phrasing")
	}

	score := 0
	if hits >= 1 {
		score += 8
	}
	if hits >= 2 {
		score += 4
	}
	score = min(score, 12)
	if deadline {
		score += 2
	}
	score = min(score, credentialCap)

	return safety.NewSignal(IDCredentialLifecycle, score,
		"Password/credential expiration/reset/update language detected")
}

// LinkProfile scores link volume and raw-IP links in the body.
type LinkProfile struct{}

func (LinkProfile) ID() string { return IDLinkProfile }

func (LinkProfile) Evaluate(e Email) safety.Signal {
	links := extract.Links(e.Body)
	n := len(links)
	nIP := 0
	for _, l := range links {
		if extract.IsIPLink(l) {
			nIP++
		}
	}

	score := 0
	if n >= 1 {
		score += 4
	}
	if n >= 2 {
		score += 2
	}
	if n >= 3 {
		score += 2
	}
	if nIP >= 1 {
		score += 8
	}
	if nIP >= 2 {
		score += 4
	}
	score = min(score, linkCap)

	if score == 0 {
		return safety.NewSignal(IDLinkProfile, 0, "No links")
	}

	reason := fmt.Sprintf("%d link(s)", n)
	if nIP > 0 {
		reason += fmt.Sprintf(" / %d raw-IP link(s)", nIP)
	}
	return safety.NewSignal(IDLinkProfile, score, reason, links[:min(n, maxEvidence)]...)
}

// SuspiciousAttachment flags mentions of executable-style file extensions.
type SuspiciousAttachment struct{}

func (SuspiciousAttachment) ID() string { return IDSuspiciousAttachment }

func (SuspiciousAttachment) Evaluate(e Email) safety.Signal {
	if !attachmentRe.MatchString(e.Body) {
		return safety.NewSignal(IDSuspiciousAttachment, 0, "No risky attachment extensions referenced")
	}
	return safety.NewSignal(IDSuspiciousAttachment, attachmentScore,
		"Executable attachment extension mentioned", "exe/scr/js/bat/vbs/jar")
}

// AllCapsSubject flags shouted subjects.
type AllCapsSubject struct{}

func (AllCapsSubject) ID() string { return IDAllCapsSubject }

func (AllCapsSubject) Evaluate(e Email) safety.Signal {
	subj := normalize(e.Subject)
	if subj != "" &&
		utf8.RuneCountInString(subj) >= 6 &&
		strings.ToUpper(subj) == subj &&
		upperLetterRe.MatchString(subj) {
		return safety.NewSignal(IDAllCapsSubject, allCapsScore, "ALL-CAPS subject (urgency/spam cue)")
	}
	return safety.NewSignal(IDAllCapsSubject, 0, "Subject casing looks normal")
}
