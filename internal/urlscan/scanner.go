package urlscan

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/straja-ai/threatkit/internal/verdict"
)

// Config tunes the structural heuristics.
type Config struct {
	MaxLength      int       `yaml:"max_length"`
	SuspiciousTLDs []string  `yaml:"suspicious_tlds"`
	MaxSubdomains  int       `yaml:"max_subdomains"`
	DNS            DNSConfig `yaml:"dns"`
}

// DNSConfig controls the DNS consistency probe.
type DNSConfig struct {
	Enabled        bool          `yaml:"enabled"`
	PublicResolver string        `yaml:"public_resolver"`
	Timeout        time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the shipped heuristics.
func DefaultConfig() Config {
	return Config{
		MaxLength:      70,
		SuspiciousTLDs: []string{".xyz", ".top", ".click", ".info", ".country"},
		MaxSubdomains:  3,
		DNS: DNSConfig{
			PublicResolver: DefaultPublicResolver,
			Timeout:        3 * time.Second,
		},
	}
}

// Report is the heuristic view of one URL.
type Report struct {
	URL       string  `json:"url"`
	Score     int     `json:"score"`
	Label     string  `json:"label"`
	Results   []Check `json:"results"`
	Triggered []Check `json:"triggered"`
	// Suspicious is true when any penalised check triggered.
	Suspicious bool `json:"suspicious"`
}

// Scanner evaluates URLs against the configured heuristics.
type Scanner struct {
	cfg    Config
	local  Resolver
	public Resolver
}

// Option customises a Scanner.
type Option func(*Scanner)

// WithResolvers replaces the local and public resolvers.
func WithResolvers(local, public Resolver) Option {
	return func(s *Scanner) {
		s.local = local
		s.public = public
	}
}

// New builds a Scanner. Resolvers default to the system resolver and a
// resolver pinned to cfg.DNS.PublicResolver.
func New(cfg Config, opts ...Option) *Scanner {
	s := &Scanner{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.local == nil {
		s.local = net.DefaultResolver
	}
	if s.public == nil {
		s.public = NewPublicResolver(cfg.DNS.PublicResolver)
	}
	return s
}

// Scan runs every check against raw in a fixed order. It never fails.
func (s *Scanner) Scan(ctx context.Context, raw string) Report {
	raw = strings.TrimSpace(raw)
	t := parseTarget(raw)

	results := make([]Check, 0, len(structuralChecks)+1)
	for _, check := range structuralChecks {
		results = append(results, check(t, s.cfg))
	}
	if s.cfg.DNS.Enabled {
		results = append(results, s.checkDNS(ctx, t))
	}

	rep := Report{URL: raw, Results: results, Triggered: []Check{}}
	penalised := 0
	for _, c := range results {
		if !c.Triggered {
			continue
		}
		rep.Triggered = append(rep.Triggered, c)
		if c.Penalised() {
			penalised++
		}
	}
	rep.Suspicious = penalised > 0
	rep.Score = verdict.URLScore(penalised)
	rep.Label = verdict.URLLabel(rep.Score)
	return rep
}
