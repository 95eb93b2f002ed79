package urlscan

import (
	"context"
	"net"
	"slices"
	"time"
)

// DefaultPublicResolver is queried to cross-check the local resolver.
const DefaultPublicResolver = "8.8.8.8:53"

// Resolver resolves a hostname to addresses.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// NewPublicResolver returns a resolver that sends every query to addr.
func NewPublicResolver(addr string) Resolver {
	if addr == "" {
		addr = DefaultPublicResolver
	}
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: 2 * time.Second}
			return d.DialContext(ctx, network, addr)
		},
	}
}

func (s *Scanner) checkDNS(ctx context.Context, t target) Check {
	if t.host == "" {
		return Check{
			Name:       NameDNSFailure,
			Triggered:  true,
			Reason:     "URL has no hostname to resolve.",
			Reference:  "A link without a resolvable host cannot be verified against public DNS.",
			Diagnostic: true,
		}
	}

	if s.cfg.DNS.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DNS.Timeout)
		defer cancel()
	}

	local, err := s.local.LookupHost(ctx, t.host)
	if err != nil {
		return Check{
			Name:       NameDNSFailure,
			Triggered:  true,
			Reason:     "Local resolver could not resolve " + t.host + ": " + err.Error(),
			Reference:  "Domains that do not resolve are often freshly registered, parked or already taken down.",
			Diagnostic: true,
		}
	}
	public, err := s.public.LookupHost(ctx, t.host)
	if err != nil {
		return Check{
			Name:       NamePublicDNSFailed,
			Triggered:  true,
			Reason:     "Public resolver lookup for " + t.host + " failed: " + err.Error(),
			Reference:  "The public cross-check could not be completed; the result is informational only.",
			Diagnostic: true,
		}
	}

	if disjoint(local, public) {
		return Check{
			Name:      NameDNSConsistency,
			Triggered: true,
			Reason:    "Local DNS answers for " + t.host + " share no address with the public resolver.",
			Reference: "Diverging answers can indicate DNS hijacking or a poisoned local resolver.",
		}
	}
	return pass(NameDNSConsistency)
}

func disjoint(a, b []string) bool {
	for _, addr := range a {
		if slices.Contains(b, addr) {
			return false
		}
	}
	return true
}
