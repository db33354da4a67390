package redact

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRedactMasksSensitiveKeysAtAnyDepth(t *testing.T) {
	input := map[string]interface{}{
		"username": "ana",
		"password": "hunter2",
		"Authorization": "Bearer abc",
		"nested": map[string]interface{}{
			"accessToken": "tok-123",
			"deeper": map[string]interface{}{
				"API_KEY": "k",
				"Cookie":  "session=1",
			},
		},
		"items": []interface{}{
			map[string]interface{}{"refreshToken": "r-1", "qty": 3.0},
		},
	}

	out := Redact(input, 10000)
	raw, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal redacted: %v", err)
	}
	for _, leaked := range []string{"hunter2", "Bearer abc", "tok-123", "session=1", "r-1"} {
		if strings.Contains(string(raw), leaked) {
			t.Fatalf("sensitive value %q leaked: %s", leaked, raw)
		}
	}
	m := out.(map[string]interface{})
	if m["username"] != "ana" {
		t.Fatalf("non-sensitive value mangled: %v", m["username"])
	}
	if m["password"] != Marker {
		t.Fatalf("expected marker, got %v", m["password"])
	}
}

func TestRedactNilPassesThrough(t *testing.T) {
	if out := Redact(nil, 1000); out != nil {
		t.Fatalf("expected nil, got %v", out)
	}
}

func TestRedactScalarPassesThrough(t *testing.T) {
	if out := Redact("plain text", 1000); out != "plain text" {
		t.Fatalf("expected passthrough, got %v", out)
	}
	if out := Redact(42.0, 1000); out != 42.0 {
		t.Fatalf("expected passthrough, got %v", out)
	}
}

func TestRedactSizeBounding(t *testing.T) {
	big := map[string]interface{}{
		"blob": strings.Repeat("x", 20000),
	}
	out := Redact(big, 5000)

	summary, ok := out.(map[string]interface{})
	if !ok {
		t.Fatalf("expected summary object, got %T", out)
	}
	if summary["truncated"] != true {
		t.Fatalf("expected truncated=true, got %v", summary["truncated"])
	}
	if _, ok := summary["originalSize"].(int); !ok {
		t.Fatalf("expected originalSize int, got %T", summary["originalSize"])
	}
	preview, ok := summary["preview"].(string)
	if !ok || !strings.HasSuffix(preview, "...") {
		t.Fatalf("expected preview ending in ..., got %v", summary["preview"])
	}

	raw, err := json.Marshal(summary)
	if err != nil {
		t.Fatalf("marshal summary: %v", err)
	}
	if len(raw) > 5000+200 {
		t.Fatalf("summary exceeds ceiling: %d bytes", len(raw))
	}
}

func TestRedactSizeBoundingAfterMasking(t *testing.T) {
	// 脱敏后仍超限才触发摘要；preview 不得包含原始敏感值
	big := map[string]interface{}{
		"password": "hunter2",
		"blob":     strings.Repeat("y", 20000),
	}
	out := Redact(big, 5000)
	raw, _ := json.Marshal(out)
	if strings.Contains(string(raw), "hunter2") {
		t.Fatalf("sensitive value leaked through preview: %s", raw)
	}
}

func TestRedactDepthGuard(t *testing.T) {
	leaf := map[string]interface{}{"value": "deep"}
	node := interface{}(leaf)
	for i := 0; i < 20; i++ {
		node = map[string]interface{}{"child": node}
	}

	out := WithLimits(node, Limits{MaxBytes: 100000, PreviewBytes: 1000, MaxDepth: 10})

	cur := out
	depth := 0
	for {
		m, ok := cur.(map[string]interface{})
		if !ok {
			break
		}
		next, exists := m["child"]
		if !exists {
			break
		}
		cur = next
		depth++
	}
	if cur != Marker {
		t.Fatalf("expected marker past depth guard, got %v at depth %d", cur, depth)
	}
	if depth >= 20 {
		t.Fatalf("depth guard never triggered")
	}
}
