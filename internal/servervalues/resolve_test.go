package servervalues

import "testing"

func TestResolveTimestamp(t *testing.T) {
	raw := map[string]any{
		"createdAt": map[string]any{TypeKey: TimestampType},
		"name":      "alice",
	}
	ctx := GenerateContext(1234)
	out := Resolve(raw, ctx).(map[string]any)
	if out["createdAt"] != int64(1234) {
		t.Fatalf("createdAt = %v; want 1234", out["createdAt"])
	}
	if out["name"] != "alice" {
		t.Fatalf("name = %v; want alice", out["name"])
	}
}

func TestResolveNestedInSlice(t *testing.T) {
	raw := []any{map[string]any{TypeKey: TimestampType}, "x"}
	out := Resolve(raw, GenerateContext(99)).([]any)
	if out[0] != int64(99) || out[1] != "x" {
		t.Fatalf("unexpected resolved slice: %#v", out)
	}
}

func TestIsDeferred(t *testing.T) {
	if !IsDeferred(map[string]any{TypeKey: TimestampType}) {
		t.Fatal("expected sentinel map to be deferred")
	}
	if IsDeferred("plain") {
		t.Fatal("plain scalar must not be deferred")
	}
}
