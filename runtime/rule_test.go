package runtime

import (
	"encoding/json"
	"math"
	"math/big"
	"testing"
)

type labelString string

func TestRule_Required(t *testing.T) {
	rule := Required("")

	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"nil", nil, false},
		{"empty string", "", false},
		{"whitespace string", " \t\n", false},
		{"string", "x", true},
		{"zero int", 0, true},
		{"false", false, true},
		{"empty map", map[string]any{}, true},
		{"nil pointer", (*int)(nil), false},
		{"pointer", new(int), true},
		{"blank named string", labelString("  "), false},
		{"named string", labelString("x"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rule.Validate(tt.value); got != tt.want {
				t.Errorf("Validate(%#v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestRule_Bounds(t *testing.T) {
	tests := []struct {
		name  string
		rule  Rule
		value any
		want  bool
	}{
		{"min nil", Min(1, ""), nil, false},
		{"min non-numeric", Min(1, ""), "5", false},
		{"min below", Min(1, ""), 0, false},
		{"min equal", Min(1, ""), 1, true},
		{"min float above", Min(1, ""), 1.5, true},
		{"min uint64", Min(1, ""), uint64(math.MaxUint64), true},
		{"min big.Int", Min(1, ""), big.NewInt(-3), false},
		{"min json.Number", Min(1, ""), json.Number("1.0000000001"), true},
		{"max equal", Max(10, ""), 10, true},
		{"max above", Max(10, ""), 10.0001, false},
		{"max NaN", Max(10, ""), math.NaN(), false},
		{"max Inf", Max(10, ""), math.Inf(-1), false},
		{"range inside", Range(1, 5, ""), int8(3), true},
		{"range lower edge", Range(1, 5, ""), float32(1), true},
		{"range outside", Range(1, 5, ""), 6, false},
		{"range big.Rat", Range(0, 1, ""), big.NewRat(1, 3), true},
		{"decimal bound", Min(0.1, ""), 0.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Validate(tt.value); got != tt.want {
				t.Errorf("Validate(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestRule_LargeIntegersDoNotLosePrecision(t *testing.T) {
	// 2^53 + 1 is not representable as float64.
	rule := Min(int64(9007199254740993), "")

	if rule.Validate(int64(9007199254740992)) {
		t.Error("Expected 2^53 to fail min 2^53+1")
	}
	if !rule.Validate(int64(9007199254740993)) {
		t.Error("Expected 2^53+1 to pass min 2^53+1")
	}
}

func TestRule_Pattern(t *testing.T) {
	rule := Pattern(`^https?://`, "")

	if rule.Validate(nil) {
		t.Error("Expected nil to fail pattern")
	}
	if rule.Validate(42) {
		t.Error("Expected non-string to fail pattern")
	}
	if rule.Validate("ftp://x") {
		t.Error("Expected ftp URL to fail pattern")
	}
	if !rule.Validate("https://example.com") {
		t.Error("Expected https URL to pass pattern")
	}
	if !rule.Validate(labelString("https://example.com")) {
		t.Error("Expected named string type to pass pattern")
	}
}

func TestRule_Expression(t *testing.T) {
	rule := Expression(`value != nil && len(value) % 2 == 0`, "Length must be even")

	if !rule.Validate("ab") {
		t.Error("Expected 'ab' to pass")
	}
	if rule.Validate("abc") {
		t.Error("Expected 'abc' to fail")
	}
	if rule.Validate(nil) {
		t.Error("Expected nil to fail")
	}
	if rule.Message() != "Length must be even" {
		t.Errorf("Unexpected message: %s", rule.Message())
	}

	nonBool := Expression(`value`, "")
	if nonBool.Validate("x") {
		t.Error("Expected non-boolean expression result to fail")
	}
}

func TestRule_DefaultMessages(t *testing.T) {
	tests := []struct {
		rule Rule
		want string
	}{
		{Required(""), "This field is required"},
		{Min(1, ""), "Value must be at least 1"},
		{Max(2.5, ""), "Value must be at most 2.5"},
		{Range(1, 10, ""), "Value must be between 1 and 10"},
		{Pattern(`\d+`, ""), "Value does not match the required format"},
		{Expression(`true`, ""), "Value is invalid"},
		{Min(1, "Need at least one like"), "Need at least one like"},
	}

	for _, tt := range tests {
		t.Run(string(tt.rule.Kind()), func(t *testing.T) {
			if got := tt.rule.Message(); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewRule_Invalid(t *testing.T) {
	tests := []struct {
		name string
		spec RuleSpec
	}{
		{"unknown kind", RuleSpec{Kind: "between"}},
		{"min without bound", RuleSpec{Kind: RuleMin}},
		{"max non-numeric", RuleSpec{Kind: RuleMax, Max: "ten"}},
		{"range missing max", RuleSpec{Kind: RuleRange, Min: 1}},
		{"range inverted", RuleSpec{Kind: RuleRange, Min: 5, Max: 1}},
		{"bad pattern", RuleSpec{Kind: RulePattern, Pattern: "("}},
		{"empty expression", RuleSpec{Kind: RuleExpression}},
		{"bad expression", RuleSpec{Kind: RuleExpression, Expression: "value =="}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRule(tt.spec); err == nil {
				t.Errorf("Expected error for %+v, got nil", tt.spec)
			}
		})
	}
}

func TestRule_SpecRoundTrip(t *testing.T) {
	original := Range(1, 5, "custom")

	rebuilt, err := NewRule(original.Spec())
	if err != nil {
		t.Fatalf("NewRule failed: %v", err)
	}
	if rebuilt.Message() != "custom" || !rebuilt.Validate(3) || rebuilt.Validate(6) {
		t.Errorf("Rebuilt rule does not behave like the original: %+v", rebuilt.Spec())
	}
}

func TestBuilders_PanicOnInvalidDeclaration(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected Min with non-numeric bound to panic")
		}
	}()
	Min("one", "")
}
