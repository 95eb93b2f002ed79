package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straja-ai/threatkit/internal/recorder"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, int64(1<<20), cfg.Server.MaxRequestBodyBytes)
	assert.Equal(t, 0.45, cfg.Scoring.Email.ModelWeight)
	assert.Equal(t, 40, cfg.Scoring.URLFlagThreshold)
	assert.False(t, cfg.Summarizer.Enabled)
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing server addr", func(c *Config) { c.Server.Addr = " " }, "server.addr"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"weight above one", func(c *Config) { c.Scoring.Email.ModelWeight = 1.2 }, "weights"},
		{"zero temperature", func(c *Config) { c.Scoring.Email.Temperature = 0 }, "temperature"},
		{"negative saturation", func(c *Config) { c.Scoring.Email.RuleSaturation = -1 }, "saturation"},
		{"url scale", func(c *Config) { c.Scoring.URL.Scale = 0 }, "scoring.url.scale"},
		{"flag threshold", func(c *Config) { c.Scoring.URLFlagThreshold = 101 }, "url_flag_threshold"},
		{"tld without dot", func(c *Config) { c.URLHeuristics.SuspiciousTLDs = []string{"xyz"} }, "suspicious_tlds"},
		{"dns resolver", func(c *Config) {
			c.URLHeuristics.DNS.Enabled = true
			c.URLHeuristics.DNS.PublicResolver = "8.8.8.8"
		}, "public_resolver"},
		{"classifier without dirs", func(c *Config) { c.Classifier.Enabled = true }, "email.dir"},
		{"recorder without sinks", func(c *Config) { c.Recorder.Enabled = true }, "no sinks"},
		{"unknown sink", func(c *Config) {
			c.Recorder.Enabled = true
			c.Recorder.Sinks = []recorder.SinkConfig{{Type: "fax"}}
		}, "unknown type"},
		{"jsonl without path", func(c *Config) {
			c.Recorder.Enabled = true
			c.Recorder.Sinks = []recorder.SinkConfig{{Type: recorder.SinkJSONL}}
		}, "missing path"},
		{"webhook private host", func(c *Config) {
			c.Recorder.Enabled = true
			c.Recorder.Sinks = []recorder.SinkConfig{{Type: recorder.SinkWebhook, URL: "http://127.0.0.1:9000/hook"}}
		}, "blocked"},
		{"webhook ftp", func(c *Config) {
			c.Recorder.Enabled = true
			c.Recorder.Sinks = []recorder.SinkConfig{{Type: recorder.SinkWebhook, URL: "ftp://hooks.example.com"}}
		}, "http or https"},
		{"kafka without topic", func(c *Config) {
			c.Recorder.Enabled = true
			c.Recorder.Sinks = []recorder.SinkConfig{{Type: recorder.SinkKafka, Brokers: []string{"kafka:9092"}}}
		}, "brokers and topic"},
		{"summarizer url", func(c *Config) {
			c.Summarizer.Enabled = true
			c.Summarizer.BaseURL = "ollama"
		}, "summarizer.base_url"},
		{"telemetry endpoint", func(c *Config) { c.Telemetry.Enabled = true }, "endpoint"},
		{"telemetry protocol", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Endpoint = "collector:4317"
			c.Telemetry.Protocol = "udp"
		}, "telemetry.protocol"},
		{"eval cutoff", func(c *Config) { c.Eval.Cutoff = 6 }, "eval.cutoff"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateAllowsPrivateWebhookWhenOptedIn(t *testing.T) {
	cfg := Default()
	cfg.Recorder.Enabled = true
	cfg.Recorder.AllowPrivateNetworks = true
	cfg.Recorder.Sinks = []recorder.SinkConfig{{Type: recorder.SinkWebhook, URL: "http://10.0.0.5/hook"}}
	assert.NoError(t, Validate(cfg))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvAddr, "")
	t.Setenv(EnvLogLevel, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 70, cfg.URLHeuristics.MaxLength)
}

func TestLoadOverlaysFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threatkit.yaml")
	yaml := strings.Join([]string{
		"server:",
		"  request_timeout: 5s",
		"scoring:",
		"  email:",
		"    model_weight: 0.6",
		"    rule_weight: 0.4",
		"url_heuristics:",
		"  suspicious_tlds: [\".zip\"]",
		"recorder:",
		"  enabled: true",
		"  sinks:",
		"    - type: JSONL",
		"      path: /tmp/records.jsonl",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv(EnvAddr, ":9999")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvSharedLibraryPath, "/opt/onnx/libonnxruntime.so")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 0.6, cfg.Scoring.Email.ModelWeight)
	assert.Equal(t, 0.9, cfg.Scoring.Email.Temperature)
	assert.Equal(t, []string{".zip"}, cfg.URLHeuristics.SuspiciousTLDs)
	assert.Equal(t, 3, cfg.URLHeuristics.MaxSubdomains)
	assert.Equal(t, recorder.SinkJSONL, cfg.Recorder.Sinks[0].Type)
	assert.Equal(t, "/opt/onnx/libonnxruntime.so", cfg.Classifier.SharedLibraryPath)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threatkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("servr:\n  addr: \":1\"\n"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
