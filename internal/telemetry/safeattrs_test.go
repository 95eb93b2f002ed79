package telemetry

import (
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesFiltersContent(t *testing.T) {
	kvs := map[string]any{
		"email.subject":         "should drop",
		"email.body":            "drop",
		"sender_masked":         "j***@x.com",
		"url":                   "http://x",
		"webhook_token":         "abc",
		"threatkit.kind":        "email",
		"long_string":           string(make([]byte, 600)),
		"threatkit.rule_score":  26,
		"threatkit.elapsed":     1500 * time.Millisecond,
		"authorization":         "secret",
		"threatkit.calibration": "blended",
	}

	attrs := SafeAttributes(kvs)
	got := map[attribute.Key]attribute.Value{}
	for _, a := range attrs {
		got[a.Key] = a.Value
	}
	for _, bad := range []attribute.Key{"email.subject", "email.body", "sender_masked", "url", "webhook_token", "authorization", "long_string"} {
		if _, ok := got[bad]; ok {
			t.Fatalf("unexpected unsafe attribute %s", bad)
		}
	}
	if v := got["threatkit.elapsed"]; v.AsInt64() != 1500 {
		t.Fatalf("expected duration in ms, got %v", v.Emit())
	}
	if len(attrs) != 4 {
		t.Fatalf("expected 4 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "threatkit.calibration" {
		t.Fatalf("attributes not sorted, first is %s", attrs[0].Key)
	}
}
