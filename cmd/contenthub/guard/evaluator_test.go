package guard

import (
	"testing"
)

func testRecord() map[string]interface{} {
	return map[string]interface{}{
		"kind":        "tool",
		"branch_type": "draft",
		"created_by":  "alice",
		"metadata": map[string]interface{}{
			"reviewed": true,
		},
	}
}

func TestAllow_EmptyExpression(t *testing.T) {
	e := NewEvaluator()

	allowed, err := e.Allow("", testRecord(), "alice")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if !allowed {
		t.Error("empty expression must allow")
	}
}

func TestAllow_RecordFields(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"kind match", `record.kind == "tool"`, true},
		{"kind mismatch", `record.kind == "widget"`, false},
		{"nested metadata", `record.metadata.reviewed == true`, true},
		{"actor binding", `actor == "alice"`, true},
		{"combined", `record.kind == "tool" && actor != record.created_by`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, err := e.Allow(tt.expr, testRecord(), "alice")
			if err != nil {
				t.Fatalf("Allow failed: %v", err)
			}
			if allowed != tt.want {
				t.Errorf("expected %v for %q, got %v", tt.want, tt.expr, allowed)
			}
		})
	}
}

func TestAllow_CompileError(t *testing.T) {
	e := NewEvaluator()

	if _, err := e.Allow(`record.kind ==`, testRecord(), "alice"); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestAllow_NonBooleanResult(t *testing.T) {
	e := NewEvaluator()

	if _, err := e.Allow(`record.kind`, testRecord(), "alice"); err == nil {
		t.Fatal("expected error for non-boolean expression")
	}
}

func TestAllow_CachesPrograms(t *testing.T) {
	e := NewEvaluator()
	expr := `record.kind == "tool"`

	if _, err := e.Allow(expr, testRecord(), "alice"); err != nil {
		t.Fatalf("first Allow failed: %v", err)
	}
	if len(e.cache) != 1 {
		t.Fatalf("expected 1 cached program, got %d", len(e.cache))
	}

	if _, err := e.Allow(expr, testRecord(), "bob"); err != nil {
		t.Fatalf("second Allow failed: %v", err)
	}
	if len(e.cache) != 1 {
		t.Fatalf("expected program to be reused, got %d cached", len(e.cache))
	}

	e.ClearCache()
	if len(e.cache) != 0 {
		t.Error("ClearCache should empty the cache")
	}
}
