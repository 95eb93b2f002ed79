package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/straja-ai/threatkit/internal/logging"
	"github.com/straja-ai/threatkit/internal/recorder"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return invalid("config is nil")
	}
	checks := []func(*Config) error{
		validateServer,
		validateLogging,
		validateScoring,
		validateURLHeuristics,
		validateClassifier,
		validateRecorder,
		validateSummarizer,
		validateTelemetry,
		validateEval,
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func validateServer(cfg *Config) error {
	s := cfg.Server
	if strings.TrimSpace(s.Addr) == "" {
		return invalid("server.addr must be set")
	}
	if s.MaxRequestBodyBytes <= 0 {
		return invalid("server.max_request_body_bytes must be positive")
	}
	if s.RequestTimeout <= 0 {
		return invalid("server.request_timeout must be positive")
	}
	return nil
}

func validateLogging(cfg *Config) error {
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return invalid("logging.level: %v", err)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "json", "text":
		return nil
	default:
		return invalid("logging.format must be json or text, got %q", cfg.Logging.Format)
	}
}

func unit(v float64) bool { return v >= 0 && v <= 1 }

func validateScoring(cfg *Config) error {
	e := cfg.Scoring.Email
	if !unit(e.ModelWeight) || !unit(e.RuleWeight) {
		return invalid("scoring.email weights must be within [0,1]")
	}
	if e.Temperature <= 0 {
		return invalid("scoring.email.temperature must be positive")
	}
	if e.RuleSaturation <= 0 || e.FallbackSaturation <= 0 {
		return invalid("scoring.email saturation denominators must be positive")
	}
	if e.Epsilon <= 0 || e.Epsilon >= 0.5 {
		return invalid("scoring.email.epsilon must be within (0,0.5)")
	}

	u := cfg.Scoring.URL
	if u.Scale <= 0 {
		return invalid("scoring.url.scale must be positive")
	}
	if !unit(u.HeuristicBoost) || !unit(u.FallbackSuspicious) || !unit(u.FallbackClean) {
		return invalid("scoring.url boost and fallback probabilities must be within [0,1]")
	}
	if t := cfg.Scoring.URLFlagThreshold; t < 0 || t > 100 {
		return invalid("scoring.url_flag_threshold must be within [0,100], got %d", t)
	}
	return nil
}

func validateURLHeuristics(cfg *Config) error {
	h := cfg.URLHeuristics
	if h.MaxLength <= 0 {
		return invalid("url_heuristics.max_length must be positive")
	}
	if h.MaxSubdomains < 0 {
		return invalid("url_heuristics.max_subdomains must not be negative")
	}
	for _, tld := range h.SuspiciousTLDs {
		if !strings.HasPrefix(tld, ".") {
			return invalid("url_heuristics.suspicious_tlds entry %q must start with '.'", tld)
		}
	}
	if h.DNS.Enabled {
		if _, _, err := net.SplitHostPort(h.DNS.PublicResolver); err != nil {
			return invalid("url_heuristics.dns.public_resolver must be host:port: %v", err)
		}
		if h.DNS.Timeout <= 0 {
			return invalid("url_heuristics.dns.timeout must be positive")
		}
	}
	return nil
}

func validateClassifier(cfg *Config) error {
	c := cfg.Classifier
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Email.Dir) == "" && strings.TrimSpace(c.URL.Dir) == "" {
		return invalid("classifier enabled but neither email.dir nor url.dir is set")
	}
	if c.Email.SeqLen < 8 || c.URL.SeqLen < 8 {
		return invalid("classifier seq_len must be at least 8")
	}
	return nil
}

func validateRecorder(cfg *Config) error {
	r := cfg.Recorder
	if !r.Enabled {
		return nil
	}
	if len(r.Sinks) == 0 {
		return invalid("recorder enabled but no sinks configured")
	}
	for i, s := range r.Sinks {
		if err := validateSink(i, s, r.AllowPrivateNetworks); err != nil {
			return err
		}
	}
	return nil
}

func validateSink(i int, s recorder.SinkConfig, allowPrivate bool) error {
	switch s.Type {
	case recorder.SinkJSONL, recorder.SinkMarkdown:
		if strings.TrimSpace(s.Path) == "" {
			return invalid("recorder sink %d (%s) missing path", i, s.Type)
		}
	case recorder.SinkWebhook:
		if err := validateHTTPURL(s.URL); err != nil {
			return invalid("recorder sink %d (webhook) %v", i, err)
		}
		u, _ := url.Parse(s.URL)
		if err := blockPrivateHost(u.Host, allowPrivate); err != nil {
			return invalid("recorder sink %d (webhook) url blocked: %v", i, err)
		}
	case recorder.SinkPostgres:
		if strings.TrimSpace(s.DSN) == "" {
			return invalid("recorder sink %d (postgres) missing dsn", i)
		}
	case recorder.SinkKafka:
		if len(s.Brokers) == 0 || strings.TrimSpace(s.Topic) == "" {
			return invalid("recorder sink %d (kafka) needs brokers and topic", i)
		}
	default:
		return invalid("recorder sink %d has unknown type %q", i, s.Type)
	}
	return nil
}

func validateSummarizer(cfg *Config) error {
	s := cfg.Summarizer
	if !s.Enabled {
		return nil
	}
	if err := validateHTTPURL(s.BaseURL); err != nil {
		return invalid("summarizer.base_url %v", err)
	}
	if strings.TrimSpace(s.Model) == "" {
		return invalid("summarizer.model must be set")
	}
	return nil
}

func validateTelemetry(cfg *Config) error {
	t := cfg.Telemetry
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return invalid("telemetry enabled but endpoint is empty")
	}
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
		return nil
	default:
		return invalid("telemetry.protocol must be grpc or http, got %q", t.Protocol)
	}
}

func validateEval(cfg *Config) error {
	if c := cfg.Eval.Cutoff; c <= 0 || c > 5 {
		return invalid("eval.cutoff must be within (0,5], got %v", c)
	}
	if cfg.Eval.SampleLimit < 0 {
		return invalid("eval.sample_limit must not be negative")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("has invalid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("url must be http or https")
	}
	return nil
}

func blockPrivateHost(hostport string, allowPrivate bool) error {
	if allowPrivate {
		return nil
	}
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	if strings.EqualFold(strings.TrimSpace(host), "localhost") {
		return errors.New("private network host localhost blocked for SSRF safety")
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("private network IP %s blocked for SSRF safety", ip)
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
