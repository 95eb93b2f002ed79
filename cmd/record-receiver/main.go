// Command record-receiver is a development endpoint for the recorder's
// webhook sink. It logs a summary of every record and can append them to a
// JSON Lines file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/straja-ai/threatkit/internal/logging"
	"github.com/straja-ai/threatkit/internal/recorder"
)

const maxRecordBytes = 1 << 20

type receiver struct {
	logger *slog.Logger
	file   *recorder.FileSink
}

func (rc *receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRecordBytes))
	_ = r.Body.Close()
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	var rec recorder.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		rc.logger.Warn("rejecting malformed record", "error", err, "len", len(body))
		http.Error(w, "invalid record", http.StatusBadRequest)
		return
	}

	rc.logger.Info("received record",
		"id", rec.ID,
		"kind", rec.Kind,
		"calibration", rec.Calibration,
		"probability", rec.PhishingProbability,
		"category", rec.Category,
		"url_label", rec.URLLabel,
		"indicators", len(rec.Indicators),
	)
	if rc.file != nil {
		if err := rc.file.Deliver(r.Context(), &rec); err != nil {
			rc.logger.Error("append record failed", "error", err)
			http.Error(w, "store error", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, `{"status":"ok"}`)
}

func main() {
	addr := pflag.String("addr", ":8099", "listen address")
	out := pflag.String("out", "", "append received records to this JSON Lines file")
	level := pflag.String("log-level", "info", "log level")
	pflag.Parse()

	logger := logging.Init(logging.Config{Level: *level, Format: "text"})
	if err := run(*addr, *out, logger); err != nil {
		logger.Error("receiver stopped", "error", err)
		os.Exit(1)
	}
}

func run(addr, out string, logger *slog.Logger) error {
	rc := &receiver{logger: logger}
	if out != "" {
		fs, err := recorder.NewFileSink(out)
		if err != nil {
			return err
		}
		defer fs.Close(context.Background())
		rc.file = fs
	}

	mux := http.NewServeMux()
	mux.Handle("/records", rc)
	mux.Handle("/", rc)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("record receiver listening", "addr", addr, "out", out)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
