package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/straja-ai/threatkit/internal/analyzer"
	"github.com/straja-ai/threatkit/internal/calibrate"
	"github.com/straja-ai/threatkit/internal/urlscan"
	"github.com/straja-ai/threatkit/internal/verdict"
)

func fixedClock(t *testing.T) {
	t.Helper()
	prevID, prevNow := newID, now
	newID = func() string { return "rec-1" }
	now = func() time.Time { return time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { newID, now = prevID, prevNow })
}

func sampleEmail() (analyzer.EmailInput, *analyzer.EmailResult) {
	in := analyzer.EmailInput{
		Subject: "URGENT: verify your account",
		From:    "Support <support@secure-paypal.co>",
		Body:    "Click http://1.2.3.4/login now",
	}
	res := &analyzer.EmailResult{
		PhishingProbability: 0.58,
		SafetyScore:         2.1,
		Category:            verdict.CategoryFromSafetyScore(2.1),
		Indicators:          []string{"Sender domain differs from Return-Path domain"},
		RuleScore:           26,
		Calibration:         calibrate.PathFallbackOnly,
		Raw: analyzer.EmailRaw{
			SenderDomain:     "secure-paypal.co",
			ReturnPathDomain: "mailer.ru",
			ParsedLinks:      []string{"http://a", "http://b", "http://c", "http://d"},
		},
	}
	return in, res
}

func TestFromEmailMasksAndDropsBody(t *testing.T) {
	fixedClock(t)
	in, res := sampleEmail()

	rec := FromEmail(in, res, EmailOptions{})
	if rec.ID != "rec-1" || rec.Kind != KindEmail {
		t.Fatalf("unexpected identity %s/%s", rec.ID, rec.Kind)
	}
	if rec.SenderMasked != "Support <s***@secure-paypal.co>" {
		t.Fatalf("sender not masked: %q", rec.SenderMasked)
	}
	if rec.Body != "" {
		t.Fatalf("body stored without opt-in")
	}
	if len(rec.Links) != maxLinks {
		t.Fatalf("expected %d links, got %d", maxLinks, len(rec.Links))
	}
	if rec.Domains == nil || rec.Domains.ReturnPath != "mailer.ru" {
		t.Fatalf("domains missing: %+v", rec.Domains)
	}
	if rec.Category != "Likely Phishing" || rec.Calibration != "fallback_only" {
		t.Fatalf("unexpected verdict fields %q %q", rec.Category, rec.Calibration)
	}

	rec = FromEmail(in, res, EmailOptions{StoreBody: true})
	if rec.Body != in.Body {
		t.Fatalf("expected body with opt-in, got %q", rec.Body)
	}
}

func TestFromEmailTruncatesSubject(t *testing.T) {
	in, res := sampleEmail()
	in.Subject = strings.Repeat("é", 250)
	rec := FromEmail(in, res, EmailOptions{})
	if n := len([]rune(rec.Subject)); n != maxSubjectRunes {
		t.Fatalf("expected %d runes, got %d", maxSubjectRunes, n)
	}
}

func TestFromURLUsesTriggeredNames(t *testing.T) {
	fixedClock(t)
	res := &analyzer.URLResult{PhishingProbability: 0.7}
	res.URL = "http://1.2.3.4/x"
	res.Score = 3
	res.Label = verdict.URLLabel(3)
	res.Triggered = []urlscan.Check{{Name: urlscan.NameAtSymbol, Triggered: true}}
	res.Calibration = calibrate.PathFallbackOnly

	rec := FromURL(res)
	if rec.Kind != KindURL || rec.URLScore == nil || *rec.URLScore != 3 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(rec.Indicators) != 1 || rec.Indicators[0] != urlscan.NameAtSymbol {
		t.Fatalf("unexpected indicators %v", rec.Indicators)
	}

	res.URL = "http://john.doe@evil.xyz/login"
	if got := FromURL(res).URL; got != "http://j***@evil.xyz/login" {
		t.Fatalf("url userinfo not masked: %q", got)
	}
	if FromURL(nil) != nil {
		t.Fatalf("nil result must yield nil record")
	}
}

func TestFileSinkWritesJSONL(t *testing.T) {
	fixedClock(t)
	path := filepath.Join(t.TempDir(), "nested", "records.jsonl")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("file sink: %v", err)
	}
	in, res := sampleEmail()
	for i := 0; i < 2; i++ {
		if err := sink.Deliver(context.Background(), FromEmail(in, res, EmailOptions{})); err != nil {
			t.Fatalf("deliver %d: %v", i, err)
		}
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close sink: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var decoded Record
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("unmarshal jsonl line: %v", err)
	}
	if decoded.ID != "rec-1" || decoded.SafetyScore == nil || *decoded.SafetyScore != 2.1 {
		t.Fatalf("unexpected decoded record %+v", decoded)
	}
}

func TestMarkdownSinkRendersEntry(t *testing.T) {
	fixedClock(t)
	path := filepath.Join(t.TempDir(), "records.md")
	sink, err := NewMarkdownSink(path)
	if err != nil {
		t.Fatalf("markdown sink: %v", err)
	}
	in, res := sampleEmail()
	if err := sink.Deliver(context.Background(), FromEmail(in, res, EmailOptions{})); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	_ = sink.Close(context.Background())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		"## 2025-03-01 12:30:00Z UTC",
		"- **Safety score:** 2.1 / 5 (Likely Phishing)",
		"  - return_path_domain: mailer.ru",
		"<details><summary>compact-json",
		"---",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("markdown missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, in.Body) {
		t.Fatalf("markdown must not contain the body")
	}
}

func TestWebhookSinkHandlesNon2xx(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("X-Test") != "1" {
			t.Errorf("missing custom header")
		}
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("fail"))
	}))

	sink, err := NewWebhookSink(srv.URL, map[string]string{"X-Test": "1"}, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("webhook sink: %v", err)
	}
	err = sink.Deliver(context.Background(), &Record{ID: "r1", Kind: KindURL})
	if err == nil || !strings.Contains(err.Error(), "status 418") {
		t.Fatalf("expected status error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", calls.Load())
	}
}

func TestWebhookSinkRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	sink, err := NewWebhookSink(srv.URL, nil, time.Second)
	if err != nil {
		t.Fatalf("webhook sink: %v", err)
	}
	sink.backoffs = []time.Duration{time.Millisecond, time.Millisecond}
	if err := sink.Deliver(context.Background(), &Record{ID: "r1"}); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestWebhookSinkNameHidesCredentials(t *testing.T) {
	sink, err := NewWebhookSink("https://user:pw@hooks.example.com/in?token=abc", nil, 0)
	if err != nil {
		t.Fatalf("webhook sink: %v", err)
	}
	if name := sink.Name(); strings.Contains(name, "pw") || strings.Contains(name, "abc") {
		t.Fatalf("name leaks secrets: %s", name)
	}
}

type fakeExec struct {
	sql  string
	args []any
	err  error
}

func (f *fakeExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql, f.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func TestPostgresSinkInsertsRecord(t *testing.T) {
	fixedClock(t)
	db := &fakeExec{}
	sink := &PostgresSink{db: db}
	in, res := sampleEmail()

	if err := sink.Deliver(context.Background(), FromEmail(in, res, EmailOptions{})); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !strings.Contains(db.sql, "INSERT INTO analysis_records") {
		t.Fatalf("unexpected sql %q", db.sql)
	}
	if len(db.args) != 15 {
		t.Fatalf("expected 15 args, got %d", len(db.args))
	}
	if body, ok := db.args[5].(*string); !ok || body != nil {
		t.Fatalf("body must be a nil *string without opt-in, got %#v", db.args[5])
	}
	var payload Record
	if err := json.Unmarshal(db.args[14].([]byte), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.ID != "rec-1" {
		t.Fatalf("payload id %q", payload.ID)
	}

	db.err = errors.New("connection refused")
	if err := sink.Deliver(context.Background(), &Record{ID: "x"}); err == nil || !strings.Contains(err.Error(), "insert record x") {
		t.Fatalf("expected wrapped insert error, got %v", err)
	}
}

func TestMigrateURLUsesPgxScheme(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/app":   "pgx5://u:p@db:5432/app",
		"postgresql://u:p@db:5432/app": "pgx5://u:p@db:5432/app",
	}
	for in, want := range cases {
		if got := migrateURL(in); got != want {
			t.Fatalf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafkago.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSinkPublishesKeyedMessage(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{topic: "analyses", writer: w}
	if err := sink.Deliver(context.Background(), &Record{ID: "r1", Kind: KindURL}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "r1" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	if h := w.msgs[0].Headers[0]; h.Key != "kind" || string(h.Value) != KindURL {
		t.Fatalf("unexpected kind header %+v", h)
	}
	_ = sink.Close(context.Background())
	if !w.closed {
		t.Fatalf("writer not closed")
	}
	if sink.Name() != "kafka:analyses" {
		t.Fatalf("unexpected name %s", sink.Name())
	}
}

func TestBuildSinksRejectsUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ok.jsonl")
	_, err := BuildSinks(context.Background(), []SinkConfig{
		{Type: SinkJSONL, Path: path},
		{Type: "carrier-pigeon"},
	})
	if err == nil || !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Fatalf("expected unknown sink error, got %v", err)
	}
}

func TestOpenRequiresSinks(t *testing.T) {
	if _, err := Open(context.Background(), Options{}); !errors.Is(err, ErrNoSinks) {
		t.Fatalf("expected ErrNoSinks, got %v", err)
	}
}

func TestRecorderHonoursBodyGate(t *testing.T) {
	sink := &captureSink{}
	rec := New(NewEmitter(EmitterConfig{QueueSize: 4, Workers: 1, ShutdownTimeout: time.Second}, []Sink{sink}), false, nil)
	in, res := sampleEmail()
	rec.RecordEmail(context.Background(), in, res, true)
	_ = rec.Close(context.Background())

	got := sink.records()
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Body != "" {
		t.Fatalf("body stored although recorder disallows it")
	}
}

func TestEmitterDropsWhenQueueFull(t *testing.T) {
	wait := make(chan struct{})
	sink := &blockingSink{wait: wait}
	em := NewEmitter(EmitterConfig{QueueSize: 1, Workers: 1, ShutdownTimeout: time.Second}, []Sink{sink})

	rec := &Record{ID: "r1", Kind: KindURL}
	em.Emit(context.Background(), rec)
	em.Emit(context.Background(), rec)
	em.Emit(context.Background(), rec)

	metrics := em.MetricsSnapshot()
	if metrics.Dropped() == 0 {
		t.Fatalf("expected dropped records when queue is full")
	}

	close(wait)
	em.Close(context.Background())
}

func TestEmitterDropsAfterClose(t *testing.T) {
	em := NewEmitter(EmitterConfig{QueueSize: 2, Workers: 1, ShutdownTimeout: time.Second}, nil)
	em.Close(context.Background())
	em.Emit(context.Background(), &Record{ID: "late"})
	metrics := em.MetricsSnapshot()
	if metrics.Dropped() != 1 || metrics.Enqueued() != 0 {
		t.Fatalf("expected one drop after close, got dropped=%d enqueued=%d", metrics.Dropped(), metrics.Enqueued())
	}
}

func TestEmitterCountsSinkFailures(t *testing.T) {
	sink := &captureSink{err: errors.New("disk full")}
	em := NewEmitter(EmitterConfig{QueueSize: 4, Workers: 1, ShutdownTimeout: time.Second}, []Sink{sink})
	em.Emit(context.Background(), &Record{ID: "r1"})
	em.Close(context.Background())

	metrics := em.MetricsSnapshot()
	if metrics.SinkFailure(sink.Name()) != 1 || metrics.SinkSuccess(sink.Name()) != 0 {
		t.Fatalf("unexpected counters failure=%d success=%d", metrics.SinkFailure(sink.Name()), metrics.SinkSuccess(sink.Name()))
	}
}

func TestEmitterWebhookIntegration(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Record
	)
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var rec Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err == nil {
			mu.Lock()
			received = append(received, rec)
			mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))

	sink, err := NewWebhookSink(srv.URL, nil, time.Second)
	if err != nil {
		t.Fatalf("webhook sink: %v", err)
	}
	em := NewEmitter(EmitterConfig{QueueSize: 8, Workers: 1, ShutdownTimeout: time.Second}, []Sink{sink})
	defer em.Close(context.Background())

	for i := 0; i < 5; i++ {
		em.Emit(context.Background(), &Record{ID: "integration", Kind: KindURL})
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n >= 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for webhook records, got %d", n)
		}
		time.Sleep(20 * time.Millisecond)
	}

	metrics := em.MetricsSnapshot()
	if metrics.SinkSuccess(sink.Name()) == 0 {
		t.Fatalf("expected sink success counter to increase")
	}
	if metrics.Dropped() != 0 {
		t.Fatalf("did not expect dropped records, got %d", metrics.Dropped())
	}
}

type captureSink struct {
	mu  sync.Mutex
	got []*Record
	err error
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Deliver(_ context.Context, rec *Record) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.got = append(s.got, rec)
	s.mu.Unlock()
	return nil
}

func (s *captureSink) Close(context.Context) error { return nil }

func (s *captureSink) records() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Record(nil), s.got...)
}

type blockingSink struct {
	wait chan struct{}
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Deliver(context.Context, *Record) error {
	<-s.wait
	return nil
}

func (s *blockingSink) Close(context.Context) error { return nil }

func newTestServer(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping: cannot open listener: %v", err)
	}
	srv := httptest.NewUnstartedServer(h)
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}
