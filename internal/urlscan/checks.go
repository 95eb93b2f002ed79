// Package urlscan runs the structural URL heuristics and the optional DNS
// consistency probe.
package urlscan

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	NameInsecureProtocol   = "Insecure Protocol (HTTP)"
	NameSuspiciousTLD      = "Suspicious TLD"
	NameAtSymbol           = "Contains '@' Symbol"
	NameExcessiveLength    = "Excessive URL Length"
	NameExcessiveSubdomain = "Excessive Subdomains"
	NameDNSConsistency     = "DNS Consistency"
	NamePublicDNSFailed    = "Public DNS Lookup Failed"
	NameDNSFailure         = "DNS Resolution Failure"
)

// Check is the outcome of one URL heuristic.
type Check struct {
	Name      string `json:"name"`
	Triggered bool   `json:"triggered"`
	Reason    string `json:"reason,omitempty"`
	Reference string `json:"reference,omitempty"`
	// Diagnostic checks are reported but never deducted from the score.
	Diagnostic bool `json:"diagnostic,omitempty"`
}

// Penalised reports whether the check counts against the URL score.
func (c Check) Penalised() bool {
	return c.Triggered && !c.Diagnostic
}

func pass(name string) Check { return Check{Name: name} }

// target is the parsed view shared by the structural checks.
type target struct {
	raw    string
	scheme string
	netloc string
	host   string
}

func parseTarget(raw string) target {
	t := target{raw: raw}
	u, err := url.Parse(raw)
	if err != nil {
		return splitTarget(t)
	}
	t.scheme = strings.ToLower(u.Scheme)
	t.netloc = strings.ToLower(u.Host)
	if u.User != nil {
		t.netloc = strings.ToLower(u.User.String()) + "@" + t.netloc
	}
	t.host = strings.ToLower(u.Hostname())
	return t
}

// splitTarget recovers scheme and network location from a URL that
// net/url rejects, such as one with a broken percent escape in the path.
func splitTarget(t target) target {
	rest := t.raw
	if scheme, after, ok := strings.Cut(rest, "://"); ok && validScheme(scheme) {
		t.scheme = strings.ToLower(scheme)
		rest = after
	} else if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
	} else {
		return t
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	t.netloc = strings.ToLower(rest)
	host := t.netloc
	if i := strings.LastIndex(host, "@"); i >= 0 {
		host = host[i+1:]
	}
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end > 0 {
			host = host[1:end]
		}
	} else if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	t.host = host
	return t
}

func validScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

func checkHTTPS(t target, _ Config) Check {
	if t.scheme == "https" {
		return pass(NameInsecureProtocol)
	}
	return Check{
		Name:      NameInsecureProtocol,
		Triggered: true,
		Reason:    "URL uses plain HTTP instead of HTTPS, which can expose users to phishing or interception.",
		Reference: "HTTPS ensures encryption and authenticity. HTTP sites are often targeted for phishing.",
	}
}

func checkSuspiciousTLD(t target, cfg Config) Check {
	for _, tld := range cfg.SuspiciousTLDs {
		if tld != "" && strings.HasSuffix(t.netloc, strings.ToLower(tld)) {
			return Check{
				Name:      NameSuspiciousTLD,
				Triggered: true,
				Reason:    fmt.Sprintf("Domain ends with '%s', a TLD frequently used for phishing or spam.", tld),
				Reference: "Low-cost TLDs like " + strings.Join(cfg.SuspiciousTLDs, ", ") + " are often abused in phishing campaigns.",
			}
		}
	}
	return pass(NameSuspiciousTLD)
}

func checkAtSymbol(t target, _ Config) Check {
	if !strings.Contains(t.raw, "@") {
		return pass(NameAtSymbol)
	}
	return Check{
		Name:      NameAtSymbol,
		Triggered: true,
		Reason:    "URL contains an '@' character, which can obscure the real destination of a link.",
		Reference: "Attackers often use 'user@domain.com' patterns to mislead users (OWASP URL Security Cheatsheet).",
	}
}

func checkLength(t target, cfg Config) Check {
	n := len([]rune(t.raw))
	if n <= cfg.MaxLength {
		return pass(NameExcessiveLength)
	}
	return Check{
		Name:      NameExcessiveLength,
		Triggered: true,
		Reason:    fmt.Sprintf("URL length (%d) exceeds %d characters, potentially hiding malicious content.", n, cfg.MaxLength),
		Reference: "Very long URLs are often padded to conceal redirect chains or tracking parameters.",
	}
}

func checkSubdomains(t target, cfg Config) Check {
	n := len(strings.Split(t.netloc, ".")) - 2
	if n <= cfg.MaxSubdomains {
		return pass(NameExcessiveSubdomain)
	}
	return Check{
		Name:      NameExcessiveSubdomain,
		Triggered: true,
		Reason:    fmt.Sprintf("URL contains many subdomains (%d), which may be used to mimic legitimate sites.", n),
		Reference: "Phishing URLs often use misleading subdomains (e.g., login.security.update.example.com).",
	}
}

var structuralChecks = []func(target, Config) Check{
	checkHTTPS,
	checkSuspiciousTLD,
	checkAtSymbol,
	checkLength,
	checkSubdomains,
}
