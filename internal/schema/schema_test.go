package schema

import (
	"errors"
	"testing"
)

func TestAlign_NilSchema(t *testing.T) {
	_, err := Align(FeatureVector{"open_rate": 0.4}, nil)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady for nil schema, got %v", err)
	}
}

func TestAlign_CategoricalExpansion(t *testing.T) {
	ts := TrainingSchema{
		"industry_technology",
		"industry_finance",
		"seniority_level_c_level",
		"open_rate",
	}

	raw := FeatureVector{
		"industry":        "technology",
		"seniority_level": "c_level",
	}

	encoded, err := Align(raw, ts)
	if err != nil {
		t.Fatalf("align failed: %v", err)
	}

	want := []float64{1, 0, 1, 0}
	for i, v := range want {
		if encoded[i] != v {
			t.Errorf("column %s = %v, want %v", ts[i], encoded[i], v)
		}
	}
}

func TestAlign_Totality(t *testing.T) {
	ts := TrainingSchema{"a", "b_x", "c"}

	tests := []struct {
		name string
		raw  FeatureVector
	}{
		{"empty input", FeatureVector{}},
		{"nil input", nil},
		{"unknown columns dropped", FeatureVector{"zzz": 1.0, "other": "level"}},
		{"unsupported value types ignored", FeatureVector{"a": []string{"x"}, "c": map[string]int{}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := Align(tc.raw, ts)
			if err != nil {
				t.Fatalf("align must not fail for non-nil schema: %v", err)
			}
			if len(encoded) != len(ts) {
				t.Fatalf("expected %d columns, got %d", len(ts), len(encoded))
			}
		})
	}
}

func TestAlign_Deterministic(t *testing.T) {
	ts := TrainingSchema{"open_rate", "industry_finance", "has_cta"}
	raw := FeatureVector{"open_rate": 0.25, "industry": "finance", "has_cta": true}

	first, err := Align(raw, ts)
	if err != nil {
		t.Fatalf("align failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Align(raw, ts)
		if err != nil {
			t.Fatalf("align failed: %v", err)
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("alignment not deterministic at column %d", j)
			}
		}
	}
}

func TestAlign_Idempotent(t *testing.T) {
	ts := TrainingSchema{"open_rate", "reply_rate", "spam_words_count"}
	raw := FeatureVector{"open_rate": 0.3, "reply_rate": 0.1, "spam_words_count": 2.0}

	once, err := Align(raw, ts)
	if err != nil {
		t.Fatalf("align failed: %v", err)
	}

	// Feed the aligned vector back through as a feature mapping.
	realigned := FeatureVector{}
	for i, col := range ts {
		realigned[col] = once[i]
	}

	twice, err := Align(realigned, ts)
	if err != nil {
		t.Fatalf("realign failed: %v", err)
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("column %s changed on realignment: %v != %v", ts[i], once[i], twice[i])
		}
	}
}

func TestExpand_ValueKinds(t *testing.T) {
	expanded := Expand(FeatureVector{
		"industry":  "technology",
		"has_cta":   true,
		"dry":       false,
		"open_rate": 0.42,
		"count":     int(7),
		"wide":      int64(9),
	})

	if expanded["industry_technology"] != 1 {
		t.Error("categorical expansion missing indicator column")
	}
	if expanded["has_cta"] != 1 || expanded["dry"] != 0 {
		t.Error("boolean expansion incorrect")
	}
	if expanded["open_rate"] != 0.42 {
		t.Error("numeric passthrough incorrect")
	}
	if expanded["count"] != 7 || expanded["wide"] != 9 {
		t.Error("integer widening incorrect")
	}
}
