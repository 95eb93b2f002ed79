package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/straja-ai/threatkit/internal/analyzer"
)

// Sink types accepted by BuildSinks.
const (
	SinkJSONL    = "jsonl"
	SinkMarkdown = "markdown"
	SinkWebhook  = "webhook"
	SinkPostgres = "postgres"
	SinkKafka    = "kafka"
)

// SinkConfig describes one sink. Only the fields of its Type are read.
type SinkConfig struct {
	Type    string            `yaml:"type"`
	Path    string            `yaml:"path"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
	DSN     string            `yaml:"dsn"`
	Migrate bool              `yaml:"migrate"`
	Brokers []string          `yaml:"brokers"`
	Topic   string            `yaml:"topic"`
}

// BuildSinks opens every configured sink. Sinks opened before a failure are
// closed again.
func BuildSinks(ctx context.Context, cfgs []SinkConfig) ([]Sink, error) {
	sinks := make([]Sink, 0, len(cfgs))
	for i, c := range cfgs {
		s, err := buildSink(ctx, c)
		if err != nil {
			for _, opened := range sinks {
				_ = opened.Close(ctx)
			}
			return nil, fmt.Errorf("recorder sink %d (%s): %w", i, c.Type, err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func buildSink(ctx context.Context, c SinkConfig) (Sink, error) {
	switch c.Type {
	case SinkJSONL:
		return NewFileSink(c.Path)
	case SinkMarkdown:
		return NewMarkdownSink(c.Path)
	case SinkWebhook:
		return NewWebhookSink(c.URL, c.Headers, c.Timeout)
	case SinkPostgres:
		return NewPostgresSink(ctx, PostgresConfig{DSN: c.DSN, Migrate: c.Migrate})
	case SinkKafka:
		return NewKafkaSink(c.Brokers, c.Topic)
	default:
		return nil, fmt.Errorf("unknown sink type %q", c.Type)
	}
}

// Recorder turns analysis results into records and hands them to an emitter.
type Recorder struct {
	emitter   *Emitter
	allowBody bool
	logger    *slog.Logger
}

// New returns a Recorder. allowBody gates whether callers may opt into body
// storage at all. A nil emitter yields a recorder that drops everything.
func New(emitter *Emitter, allowBody bool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{emitter: emitter, allowBody: allowBody, logger: logger}
}

// RecordEmail persists an email analysis. The body is kept only when both
// the recorder and the caller permit it.
func (r *Recorder) RecordEmail(ctx context.Context, in analyzer.EmailInput, res *analyzer.EmailResult, storeBody bool) {
	if r == nil || r.emitter == nil {
		return
	}
	rec := FromEmail(in, res, EmailOptions{StoreBody: r.allowBody && storeBody})
	r.emitter.Emit(ctx, rec)
}

// RecordURL persists a URL analysis.
func (r *Recorder) RecordURL(ctx context.Context, res *analyzer.URLResult) {
	if r == nil || r.emitter == nil {
		return
	}
	r.emitter.Emit(ctx, FromURL(res))
}

// Metrics returns the emitter counters.
func (r *Recorder) Metrics() Metrics {
	if r == nil {
		return Metrics{}
	}
	return r.emitter.MetricsSnapshot()
}

// Close drains the emitter and closes all sinks.
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil || r.emitter == nil {
		return nil
	}
	r.emitter.Close(ctx)
	return nil
}

// ErrNoSinks is returned by Open when recording is enabled without sinks.
var ErrNoSinks = errors.New("recorder enabled without sinks")

// Options configures Open.
type Options struct {
	Emitter   EmitterConfig
	Sinks     []SinkConfig
	AllowBody bool
}

// Open builds sinks, starts the emitter and returns the Recorder.
func Open(ctx context.Context, opts Options) (*Recorder, error) {
	if len(opts.Sinks) == 0 {
		return nil, ErrNoSinks
	}
	sinks, err := BuildSinks(ctx, opts.Sinks)
	if err != nil {
		return nil, err
	}
	return New(NewEmitter(opts.Emitter, sinks), opts.AllowBody, opts.Emitter.Logger), nil
}
