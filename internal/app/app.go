// Package app assembles the analyzers and their optional collaborators from
// configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/straja-ai/threatkit/internal/analyzer"
	"github.com/straja-ai/threatkit/internal/classifier"
	"github.com/straja-ai/threatkit/internal/config"
	"github.com/straja-ai/threatkit/internal/recorder"
	"github.com/straja-ai/threatkit/internal/rules"
	"github.com/straja-ai/threatkit/internal/server"
	"github.com/straja-ai/threatkit/internal/summarizer"
	"github.com/straja-ai/threatkit/internal/telemetry"
	"github.com/straja-ai/threatkit/internal/urlscan"
)

// Version is stamped at build time.
var Version = "dev"

// App holds the assembled components. Close releases them in reverse order.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Telemetry  *telemetry.Provider
	Email      *analyzer.Email
	URL        *analyzer.URL
	Recorder   *recorder.Recorder
	Summarizer summarizer.Summarizer

	classifiers map[classifier.Kind]*classifier.Lazy
}

// Options narrows what Build wires. The CLI one-shot commands skip the
// recorder and telemetry exporters.
type Options struct {
	SkipRecorder  bool
	SkipTelemetry bool
}

// Build wires every component the configuration enables.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, classifiers: map[classifier.Kind]*classifier.Lazy{}}

	tcfg := cfg.Telemetry
	tcfg.Version = Version
	if opts.SkipTelemetry {
		tcfg = telemetry.Config{}
	}
	tp, err := telemetry.NewProvider(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.Telemetry = tp

	if cfg.Classifier.Enabled {
		for kind, mc := range map[classifier.Kind]config.ModelConfig{
			classifier.KindEmail: cfg.Classifier.Email,
			classifier.KindURL:   cfg.Classifier.URL,
		} {
			if mc.Dir == "" {
				continue
			}
			a.classifiers[kind] = lazyModel(kind, mc, cfg.Classifier.SharedLibraryPath)
		}
	}

	analyzerOpts := []analyzer.Option{
		analyzer.WithLogger(logger),
		analyzer.WithTracer(tp.Tracer()),
		analyzer.WithObserver(tp),
	}
	a.Email = analyzer.NewEmail(rules.NewEngine(), a.classifier(classifier.KindEmail), cfg.Scoring.Email, analyzerOpts...)
	a.URL = analyzer.NewURL(urlscan.New(cfg.URLHeuristics), a.classifier(classifier.KindURL), cfg.Scoring.URL,
		cfg.Scoring.URLFlagThreshold, analyzerOpts...)

	if cfg.Recorder.Enabled && !opts.SkipRecorder {
		ecfg := cfg.Recorder.EmitterConfig()
		ecfg.Logger = logger
		rec, err := recorder.Open(ctx, recorder.Options{
			Emitter:   ecfg,
			Sinks:     cfg.Recorder.Sinks,
			AllowBody: cfg.Recorder.StoreBody,
		})
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("recorder: %w", err)
		}
		a.Recorder = rec
		if err := tp.ObserveQueue(func() (uint64, uint64) {
			m := rec.Metrics()
			return m.Enqueued(), m.Dropped()
		}); err != nil {
			logger.Warn("recorder queue metrics unavailable", "error", err)
		}
	}

	if cfg.Summarizer.Enabled {
		a.Summarizer = summarizer.NewOllama(cfg.Summarizer.BaseURL, cfg.Summarizer.Model, cfg.Summarizer.Timeout)
	}
	return a, nil
}

func lazyModel(kind classifier.Kind, mc config.ModelConfig, sharedLib string) *classifier.Lazy {
	return classifier.NewLazy(string(kind), func() (classifier.Classifier, error) {
		m, err := classifier.LoadModel(classifier.ModelConfig{
			Kind:              kind,
			Dir:               mc.Dir,
			SeqLen:            mc.SeqLen,
			SharedLibraryPath: sharedLib,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	})
}

// classifier returns the configured model or nil. A nil *Lazy must not be
// stored in the interface.
func (a *App) classifier(kind classifier.Kind) classifier.Classifier {
	if l, ok := a.classifiers[kind]; ok {
		return l
	}
	return nil
}

// Warm loads every configured classifier and logs the outcome.
func (a *App) Warm() {
	for kind, l := range a.classifiers {
		if err := l.Load(); err != nil {
			a.Logger.Warn("classifier unavailable, falling back to rules", "kind", kind, "error", err)
			continue
		}
		a.Logger.Info("classifier loaded", "kind", kind)
	}
}

// errLoading is reported by readiness checks while a model is still loading.
var errLoading = errors.New("model loading")

// ReadyChecks reports each configured classifier's load state.
func (a *App) ReadyChecks() []server.ReadyCheck {
	checks := make([]server.ReadyCheck, 0, len(a.classifiers))
	for kind, l := range a.classifiers {
		checks = append(checks, server.ReadyCheck{
			Name: string(kind) + "_classifier",
			Check: func() error {
				done, err := l.State()
				if !done {
					return errLoading
				}
				return err
			},
		})
	}
	return checks
}

// ServerDeps adapts the app to the HTTP layer.
func (a *App) ServerDeps() server.Deps {
	deps := server.Deps{
		Email:   a.Email,
		URL:     a.URL,
		Ready:   a.ReadyChecks(),
		Metrics: a.Telemetry.Handler(),
		Logger:  a.Logger,
	}
	if a.Recorder != nil {
		deps.Recorder = a.Recorder
	}
	if a.Summarizer != nil {
		deps.Summarizer = a.Summarizer
	}
	return deps
}

// Close drains the recorder, releases models and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Recorder != nil {
		errs = append(errs, a.Recorder.Close(ctx))
	}
	for _, l := range a.classifiers {
		errs = append(errs, l.Close())
	}
	errs = append(errs, a.Telemetry.Shutdown(ctx))
	return errors.Join(errs...)
}
