package runtime

import (
	"fmt"
	"math/big"
	"reflect"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// RuleKind identifies a validation rule.
type RuleKind string

const (
	RuleRequired   RuleKind = "required"
	RuleMin        RuleKind = "min"
	RuleMax        RuleKind = "max"
	RuleRange      RuleKind = "range"
	RulePattern    RuleKind = "pattern"
	RuleExpression RuleKind = "expression"
)

// RuleSpec is the declarative form of a rule as written by provider authors
// or loaded from a manifest.
type RuleSpec struct {
	Kind       RuleKind `yaml:"kind" json:"kind" validate:"required,oneof=required min max range pattern expression"`
	Message    string   `yaml:"message,omitempty" json:"message,omitempty"`
	Min        any      `yaml:"min,omitempty" json:"min,omitempty"`
	Max        any      `yaml:"max,omitempty" json:"max,omitempty"`
	Pattern    string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Expression string   `yaml:"expression,omitempty" json:"expression,omitempty"`
}

// Rule is a compiled, immutable validation rule.
type Rule struct {
	kind    RuleKind
	message string

	min, max       *big.Rat
	rawMin, rawMax any

	pattern *regexp.Regexp
	program *vm.Program
	source  string
}

// NewRule compiles a RuleSpec. Bounds must be numeric and patterns and
// expressions must compile; a range rule requires both bounds.
func NewRule(spec RuleSpec) (Rule, error) {
	r := Rule{kind: spec.Kind, message: spec.Message}

	switch spec.Kind {
	case RuleRequired:
	case RuleMin:
		if err := r.setMin(spec.Min); err != nil {
			return Rule{}, err
		}
	case RuleMax:
		if err := r.setMax(spec.Max); err != nil {
			return Rule{}, err
		}
	case RuleRange:
		if err := r.setMin(spec.Min); err != nil {
			return Rule{}, err
		}
		if err := r.setMax(spec.Max); err != nil {
			return Rule{}, err
		}
		if r.min.Cmp(r.max) > 0 {
			return Rule{}, fmt.Errorf("range rule: min %s is greater than max %s", formatBound(spec.Min), formatBound(spec.Max))
		}
	case RulePattern:
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return Rule{}, fmt.Errorf("pattern rule: invalid pattern %q: %w", spec.Pattern, err)
		}
		r.pattern = re
		r.source = spec.Pattern
	case RuleExpression:
		if strings.TrimSpace(spec.Expression) == "" {
			return Rule{}, fmt.Errorf("expression rule: expression is required")
		}
		program, err := expr.Compile(spec.Expression)
		if err != nil {
			return Rule{}, fmt.Errorf("expression rule: %w", err)
		}
		r.program = program
		r.source = spec.Expression
	default:
		return Rule{}, fmt.Errorf("unknown rule kind %q", spec.Kind)
	}

	return r, nil
}

func (r *Rule) setMin(v any) error {
	bound, ok := toRat(v)
	if !ok {
		return fmt.Errorf("%s rule: min bound %v is not numeric", r.kind, v)
	}
	r.min, r.rawMin = bound, v
	return nil
}

func (r *Rule) setMax(v any) error {
	bound, ok := toRat(v)
	if !ok {
		return fmt.Errorf("%s rule: max bound %v is not numeric", r.kind, v)
	}
	r.max, r.rawMax = bound, v
	return nil
}

// Required builds a required rule. An empty message selects the default.
func Required(message string) Rule {
	return Rule{kind: RuleRequired, message: message}
}

// Min builds an inclusive lower-bound rule. It panics on a non-numeric bound,
// which is a programming error in a provider's static declaration.
func Min(bound any, message string) Rule {
	return mustRule(RuleSpec{Kind: RuleMin, Min: bound, Message: message})
}

// Max builds an inclusive upper-bound rule.
func Max(bound any, message string) Rule {
	return mustRule(RuleSpec{Kind: RuleMax, Max: bound, Message: message})
}

// Range builds an inclusive two-sided bound rule.
func Range(min, max any, message string) Rule {
	return mustRule(RuleSpec{Kind: RuleRange, Min: min, Max: max, Message: message})
}

// Pattern builds a regular expression rule.
func Pattern(pattern, message string) Rule {
	return mustRule(RuleSpec{Kind: RulePattern, Pattern: pattern, Message: message})
}

// Expression builds a rule from a boolean expr-lang expression with the
// candidate value bound to `value`.
func Expression(code, message string) Rule {
	return mustRule(RuleSpec{Kind: RuleExpression, Expression: code, Message: message})
}

func mustRule(spec RuleSpec) Rule {
	r, err := NewRule(spec)
	if err != nil {
		panic(err)
	}
	return r
}

// Kind returns the rule kind.
func (r Rule) Kind() RuleKind {
	return r.kind
}

// Message returns the failure message, falling back to the kind default.
func (r Rule) Message() string {
	if r.message != "" {
		return r.message
	}
	switch r.kind {
	case RuleRequired:
		return "This field is required"
	case RuleMin:
		return fmt.Sprintf("Value must be at least %s", formatBound(r.rawMin))
	case RuleMax:
		return fmt.Sprintf("Value must be at most %s", formatBound(r.rawMax))
	case RuleRange:
		return fmt.Sprintf("Value must be between %s and %s", formatBound(r.rawMin), formatBound(r.rawMax))
	case RulePattern:
		return "Value does not match the required format"
	default:
		return "Value is invalid"
	}
}

// Spec returns the declarative form of the rule.
func (r Rule) Spec() RuleSpec {
	spec := RuleSpec{Kind: r.kind, Message: r.message, Min: r.rawMin, Max: r.rawMax}
	switch r.kind {
	case RulePattern:
		spec.Pattern = r.source
	case RuleExpression:
		spec.Expression = r.source
	}
	return spec
}

// Validate reports whether value satisfies the rule. A nil value is handled
// explicitly by every kind.
func (r Rule) Validate(value any) bool {
	switch r.kind {
	case RuleRequired:
		if value == nil {
			return false
		}
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Pointer:
			return !rv.IsNil()
		case reflect.String:
			return strings.TrimSpace(rv.String()) != ""
		}
		return true
	case RuleMin:
		n, ok := toRat(value)
		return ok && n.Cmp(r.min) >= 0
	case RuleMax:
		n, ok := toRat(value)
		return ok && n.Cmp(r.max) <= 0
	case RuleRange:
		n, ok := toRat(value)
		return ok && n.Cmp(r.min) >= 0 && n.Cmp(r.max) <= 0
	case RulePattern:
		s, ok := stringOf(value)
		return ok && r.pattern != nil && r.pattern.MatchString(s)
	case RuleExpression:
		return r.evalExpression(value)
	default:
		return false
	}
}

// stringOf accepts string and named string types.
func stringOf(value any) (string, bool) {
	if value == nil {
		return "", false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.String {
		return "", false
	}
	return rv.String(), true
}

func (r Rule) evalExpression(value any) bool {
	if r.program == nil {
		return false
	}
	out, err := expr.Run(r.program, map[string]any{"value": value})
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}
