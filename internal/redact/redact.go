// Package redact masks sensitive values and bounds oversized payloads
// before a capture entry is persisted.
package redact

import (
	"encoding/json"
	"strings"
)

// Marker replaces every sensitive value.
const Marker = "[REDACTED]"

// sensitiveKeys 为小写子串，命中即整值替换（大小写不敏感，任意嵌套深度）
var sensitiveKeys = []string{
	"password",
	"token",
	"accesstoken",
	"refreshtoken",
	"secret",
	"apikey",
	"xmlcontent",
	"pdfdata",
	"authorization",
	"cookie",
}

// Limits bounds the redactor's output.
type Limits struct {
	MaxBytes     int // serialized ceiling; past it the value collapses to a summary
	PreviewBytes int // preview length inside the summary
	MaxDepth     int // recursion guard; deeper nodes collapse to Marker
}

// DefaultLimits matches the request-side defaults.
func DefaultLimits() Limits {
	return Limits{MaxBytes: 10000, PreviewBytes: 1000, MaxDepth: 10}
}

// Redact masks sensitive keys in value and bounds its serialized size to
// maxBytes, using default preview/depth limits. nil passes through as nil.
func Redact(value interface{}, maxBytes int) interface{} {
	l := DefaultLimits()
	l.MaxBytes = maxBytes
	return WithLimits(value, l)
}

// WithLimits is Redact with explicit limits.
func WithLimits(value interface{}, l Limits) interface{} {
	if value == nil {
		return nil
	}
	if l.MaxBytes <= 0 {
		l.MaxBytes = 10000
	}
	if l.PreviewBytes <= 0 {
		l.PreviewBytes = 1000
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = 10
	}

	out := redactValue(value, l.MaxDepth)

	raw, err := json.Marshal(out)
	if err != nil {
		// 不可序列化的值没有资格进入存储
		return Marker
	}
	if len(raw) <= l.MaxBytes {
		return out
	}
	return summarize(raw, l)
}

func redactValue(v interface{}, depth int) interface{} {
	if depth <= 0 {
		return Marker
	}
	switch raw := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(raw))
		for key, val := range raw {
			if isSensitiveKey(key) {
				out[key] = Marker
				continue
			}
			out[key] = redactValue(val, depth-1)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(raw))
		for i, val := range raw {
			out[i] = redactValue(val, depth-1)
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// summarize replaces an oversized payload with a fixed three-key summary.
// The preview comes from the already-redacted serialization, so it can
// never leak a masked value.
func summarize(raw []byte, l Limits) map[string]interface{} {
	preview := l.PreviewBytes
	// 摘要自身也必须落在上限之内
	if preview+128 > l.MaxBytes {
		preview = l.MaxBytes / 2
	}
	if preview > len(raw) {
		preview = len(raw)
	}
	return map[string]interface{}{
		"truncated":    true,
		"originalSize": len(raw),
		"preview":      string(raw[:preview]) + "...",
	}
}
