package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/straja-ai/threatkit/internal/calibrate"
	"github.com/straja-ai/threatkit/internal/classifier"
	"github.com/straja-ai/threatkit/internal/evaluate"
	"github.com/straja-ai/threatkit/internal/logging"
	"github.com/straja-ai/threatkit/internal/recorder"
	"github.com/straja-ai/threatkit/internal/summarizer"
	"github.com/straja-ai/threatkit/internal/telemetry"
	"github.com/straja-ai/threatkit/internal/urlscan"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "threatkit.yaml"

// Environment variables that override file values.
const (
	EnvLogLevel          = "THREATKIT_LOG_LEVEL"
	EnvAddr              = "THREATKIT_ADDR"
	EnvSharedLibraryPath = "ONNXRUNTIME_SHARED_LIBRARY_PATH"
)

// Config holds ThreatKit configuration.
type Config struct {
	Server        ServerConfig     `yaml:"server"`
	Logging       logging.Config   `yaml:"logging"`
	Scoring       ScoringConfig    `yaml:"scoring"`
	URLHeuristics urlscan.Config   `yaml:"url_heuristics"`
	Classifier    ClassifierConfig `yaml:"classifier"`
	Recorder      RecorderConfig   `yaml:"recorder"`
	Summarizer    SummarizerConfig `yaml:"summarizer"`
	Telemetry     telemetry.Config `yaml:"telemetry"`
	Eval          EvalConfig       `yaml:"eval"`
}

type ServerConfig struct {
	Addr                string        `yaml:"addr"` // HTTP listen address, e.g. ":8080"
	MaxRequestBodyBytes int64         `yaml:"max_request_body_bytes"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	ReadHeaderTimeout   time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
}

type ScoringConfig struct {
	Email calibrate.EmailParams `yaml:"email"`
	URL   calibrate.URLParams   `yaml:"url"`
	// URLFlagThreshold is the risk score (0-100) at which a URL is flagged.
	URLFlagThreshold int `yaml:"url_flag_threshold"`
}

type ClassifierConfig struct {
	Enabled           bool        `yaml:"enabled"`
	SharedLibraryPath string      `yaml:"shared_library_path"`
	Email             ModelConfig `yaml:"email"`
	URL               ModelConfig `yaml:"url"`
}

// ModelConfig locates one exported model. An empty Dir disables that model.
type ModelConfig struct {
	Dir    string `yaml:"dir"`
	SeqLen int    `yaml:"seq_len"`
}

type RecorderConfig struct {
	Enabled         bool          `yaml:"enabled"`
	QueueSize       int           `yaml:"queue_size"`
	Workers         int           `yaml:"workers"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	DeliverTimeout  time.Duration `yaml:"deliver_timeout"`
	// StoreBody permits callers to opt into storing email bodies.
	StoreBody            bool                  `yaml:"store_body"`
	AllowPrivateNetworks bool                  `yaml:"allow_private_networks"`
	Sinks                []recorder.SinkConfig `yaml:"sinks"`
}

type SummarizerConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type EvalConfig struct {
	Cutoff      float64 `yaml:"cutoff"`
	SampleLimit int     `yaml:"sample_limit"`
}

// Load reads configuration from a YAML file over the defaults and applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg, os.Getenv)
	applyDefaults(cfg)
	return cfg, nil
}

// Parse decodes YAML into cfg. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Default returns the shipped configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                ":8080",
			MaxRequestBodyBytes: 1 << 20,
			RequestTimeout:      30 * time.Second,
			ReadHeaderTimeout:   10 * time.Second,
			ShutdownTimeout:     10 * time.Second,
		},
		Logging: logging.Config{Level: "info", Format: "text"},
		Scoring: ScoringConfig{
			Email:            calibrate.DefaultEmailParams(),
			URL:              calibrate.DefaultURLParams(),
			URLFlagThreshold: 40,
		},
		URLHeuristics: urlscan.DefaultConfig(),
		Classifier: ClassifierConfig{
			Email: ModelConfig{SeqLen: classifier.DefaultSeqLen(classifier.KindEmail)},
			URL:   ModelConfig{SeqLen: classifier.DefaultSeqLen(classifier.KindURL)},
		},
		Recorder: RecorderConfig{
			QueueSize:       1000,
			Workers:         1,
			ShutdownTimeout: 2 * time.Second,
			DeliverTimeout:  5 * time.Second,
		},
		Summarizer: SummarizerConfig{
			BaseURL: summarizer.DefaultBaseURL,
			Model:   summarizer.DefaultModel,
			Timeout: summarizer.DefaultTimeout,
		},
		Telemetry: telemetry.Config{Protocol: "grpc", Service: "threatkit"},
		Eval:      EvalConfig{Cutoff: evaluate.DefaultCutoff},
	}
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(getenv(EnvAddr)); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(getenv(EnvSharedLibraryPath)); v != "" {
		cfg.Classifier.SharedLibraryPath = v
	}
}

// applyDefaults fills fields whose zero value is never meaningful.
func applyDefaults(cfg *Config) {
	d := Default()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = d.Server.Addr
	}
	if cfg.Server.MaxRequestBodyBytes == 0 {
		cfg.Server.MaxRequestBodyBytes = d.Server.MaxRequestBodyBytes
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = d.Server.RequestTimeout
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = d.Server.ReadHeaderTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if cfg.Classifier.Email.SeqLen == 0 {
		cfg.Classifier.Email.SeqLen = d.Classifier.Email.SeqLen
	}
	if cfg.Classifier.URL.SeqLen == 0 {
		cfg.Classifier.URL.SeqLen = d.Classifier.URL.SeqLen
	}
	if cfg.URLHeuristics.DNS.PublicResolver == "" {
		cfg.URLHeuristics.DNS.PublicResolver = d.URLHeuristics.DNS.PublicResolver
	}
	if cfg.URLHeuristics.DNS.Timeout == 0 {
		cfg.URLHeuristics.DNS.Timeout = d.URLHeuristics.DNS.Timeout
	}
	if cfg.Summarizer.BaseURL == "" {
		cfg.Summarizer.BaseURL = d.Summarizer.BaseURL
	}
	if cfg.Summarizer.Model == "" {
		cfg.Summarizer.Model = d.Summarizer.Model
	}
	if cfg.Summarizer.Timeout == 0 {
		cfg.Summarizer.Timeout = d.Summarizer.Timeout
	}
	if cfg.Eval.Cutoff == 0 {
		cfg.Eval.Cutoff = d.Eval.Cutoff
	}
	for i := range cfg.Recorder.Sinks {
		cfg.Recorder.Sinks[i].Type = strings.ToLower(strings.TrimSpace(cfg.Recorder.Sinks[i].Type))
	}
}

// EmitterConfig maps the recorder section onto the emitter settings.
func (r RecorderConfig) EmitterConfig() recorder.EmitterConfig {
	return recorder.EmitterConfig{
		QueueSize:       r.QueueSize,
		Workers:         r.Workers,
		ShutdownTimeout: r.ShutdownTimeout,
		DeliverTimeout:  r.DeliverTimeout,
	}
}
