package telemetry

import (
	"slices"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Keys naming message content or credentials never become attributes.
var denyKeys = []string{
	"body",
	"subject",
	"sender",
	"from",
	"return_path",
	"address",
	"url",
	"link",
	"authorization",
	"password",
	"token",
	"secret",
	"dsn",
}

const maxAttrString = 256

// SafeAttributes drops content-bearing keys and oversized values and
// returns the rest as OTEL attributes in key order.
func SafeAttributes(values map[string]any) []attribute.KeyValue {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var attrs []attribute.KeyValue
	for _, k := range keys {
		v := values[k]
		lk := strings.ToLower(k)
		if slices.ContainsFunc(denyKeys, func(bad string) bool { return strings.Contains(lk, bad) }) {
			continue
		}
		switch val := v.(type) {
		case string:
			if len(val) > maxAttrString {
				continue
			}
			attrs = append(attrs, attribute.String(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case []string:
			attrs = append(attrs, attribute.StringSlice(k, truncateStrings(val, 32)))
		case time.Duration:
			attrs = append(attrs, attribute.Int64(k, val.Milliseconds()))
		}
	}
	return attrs
}

func truncateStrings(in []string, limit int) []string {
	if len(in) <= limit {
		return in
	}
	return in[:limit]
}
