// Package extract holds the header and body parsing helpers shared by the
// email detectors and the result builders.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var (
	addrDomainRe = regexp.MustCompile(`@([A-Za-z0-9\.-]+\.[A-Za-z]{2,})`)

	// linkRe overmatches on purpose: everything up to whitespace, angle
	// bracket or double quote is kept so evidence stays readable.
	linkRe = regexp.MustCompile(`https?://[^\s<>"]+`)

	ipLinkRe = regexp.MustCompile(`^https?://\d{1,3}(?:\.\d{1,3}){3}(?:[/:]|$)`)
)

// Domain returns the lowercased domain of a header value. An address match
// wins; otherwise the network location of the value parsed as a URL is used.
// Values that do not parse at all are returned trimmed and lowercased.
func Domain(value string) string {
	if value == "" {
		return ""
	}
	if m := addrDomainRe.FindStringSubmatch(value); m != nil {
		return strings.ToLower(m[1])
	}
	u, err := url.Parse(value)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(value))
	}
	return strings.ToLower(u.Host)
}

// Links returns every http(s) token in text in order of appearance.
func Links(text string) []string {
	found := linkRe.FindAllString(text, -1)
	if found == nil {
		return []string{}
	}
	return found
}

// IsIPLink reports whether link points at a dotted-quad host.
func IsIPLink(link string) bool {
	return ipLinkRe.MatchString(link)
}

// RegisteredDomain reduces a host to its eTLD+1 using the public suffix
// list. Hosts that have no registrable part are returned unchanged.
func RegisteredDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return ""
	}
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	reg, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return reg
}
