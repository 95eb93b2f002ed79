// Package redact masks personal data and secrets before they reach logs or
// persisted records.
package redact

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	authHeaderRe  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	bearerRe      = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	apiKeyValueRe = regexp.MustCompile(`(?i)(api[_-]?key(?:s)?\s*[:=]\s*)([A-Za-z0-9._\-+/=]+)`)
	passwordRe    = regexp.MustCompile(`(?i)(password\s*[:=]\s*)(\S+)`)
	dsnRe         = regexp.MustCompile(`(?i)\b(postgres(?:ql)?://[^:/@\s]+:)([^@\s]+)(@)`)
	tokenishKeyRe = regexp.MustCompile(`(?i)\b(secret|token)\s*[:=]\s*([A-Za-z0-9._\-+/=]{6,})`)
	addressRe     = regexp.MustCompile(`([A-Za-z0-9._%+\-]*)@([A-Za-z0-9.\-]+\.[A-Za-z]{2,})`)
)

// String redacts secrets and masks email addresses in free-form text.
func String(s string) string {
	if s == "" {
		return s
	}
	out := s
	out = dsnRe.ReplaceAllString(out, "${1}[REDACTED]${3}")
	out = authHeaderRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = bearerRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyValueRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = passwordRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = tokenishKeyRe.ReplaceAllString(out, "${1}=[REDACTED]")
	out = addressRe.ReplaceAllStringFunc(out, MaskAddress)
	for strings.Contains(out, "[REDACTED][REDACTED]") {
		out = strings.ReplaceAll(out, "[REDACTED][REDACTED]", "[REDACTED]")
	}
	return out
}

// MaskAddress keeps the first character of the local part followed by one to
// three asterisks. Values without '@' are returned unchanged; an empty local
// part becomes a single asterisk. A display-name form "Name <a@b>" is masked
// inside the brackets.
func MaskAddress(addr string) string {
	if open := strings.LastIndex(addr, "<"); open >= 0 {
		if end := strings.Index(addr[open:], ">"); end > 0 {
			inner := addr[open+1 : open+end]
			return addr[:open+1] + MaskAddress(inner) + addr[open+end:]
		}
	}
	local, domain, ok := strings.Cut(addr, "@")
	if !ok {
		return addr
	}
	if local == "" {
		return "*@" + domain
	}
	first, size := utf8.DecodeRuneInString(local)
	rest := utf8.RuneCountInString(local[size:])
	return string(first) + strings.Repeat("*", max(1, min(3, rest))) + "@" + domain
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// MaskURLUser masks the userinfo of a URL in place, keeping the rest of the
// text as written. "http://john.doe:pw@evil.xyz/a" becomes
// "http://j***@evil.xyz/a". It works on URLs net/url rejects.
func MaskURLUser(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	end := len(rest)
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		end = i
	}
	authority := rest[:end]
	at := strings.LastIndex(authority, "@")
	if at < 0 {
		return raw
	}
	masked := MaskAddress(authority[:at] + "@x")
	masked = strings.TrimSuffix(masked, "@x")
	return scheme + "://" + masked + authority[at:] + rest[end:]
}

// URL strips credentials, query and fragment from a URL for log output.
func URL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "[REDACTED_URL]"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
