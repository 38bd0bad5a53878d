package runtime

import (
	"fmt"
	"math"
	"time"

	"gopkg.in/yaml.v3"
)

// Declaration is the declarative metadata a provider publishes for one plug.
// It is validated and compiled into a Definition and an Operation when the
// provider is registered. RunEveryMs is capped at MaxRunEveryMs so the
// interval fits a time.Duration.
type Declaration struct {
	Identifier  string      `yaml:"id" json:"id" validate:"required,plug_id"`
	Title       string      `yaml:"title" json:"title" validate:"required"`
	Description string      `yaml:"description" json:"description"`
	RunEveryMs  int64       `yaml:"run_every_ms" json:"run_every_ms" validate:"gte=0,lte=9223372036854"`
	TotalRuns   int         `yaml:"total_runs" json:"total_runs" validate:"gte=0"`
	Method      string      `yaml:"method" json:"method" validate:"required"`
	Params      []ParamSpec `yaml:"params" json:"params" validate:"dive"`
	Fields      []FieldSpec `yaml:"fields" json:"fields" validate:"unique=Name,dive"`
}

// MaxRunEveryMs is the largest run interval, in milliseconds, a declaration
// may carry.
const MaxRunEveryMs = int64(math.MaxInt64 / int64(time.Millisecond))

// FieldSpec declares one configurable field of a plug.
type FieldSpec struct {
	Name        string     `yaml:"name" json:"name" validate:"required"`
	Type        string     `yaml:"type" json:"type"`
	Placeholder string     `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Rules       []RuleSpec `yaml:"rules,omitempty" json:"rules,omitempty" validate:"dive"`
}

// ParamSpec names one formal parameter of the target method, in order.
// Default is used when neither field values nor execution data supply it.
type ParamSpec struct {
	Name       string `yaml:"name" json:"name" validate:"required"`
	Default    any    `yaml:"default,omitempty" json:"default,omitempty"`
	HasDefault bool   `yaml:"-" json:"-"`
}

// UnmarshalYAML marks the parameter as defaulted whenever the default key is
// present, even when its value is null. A bare scalar is read as the name.
func (p *ParamSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*p = ParamSpec{Name: node.Value}
		return nil
	}

	var raw struct {
		Name    string `yaml:"name"`
		Default any    `yaml:"default"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	p.Name = raw.Name
	p.Default = raw.Default
	p.HasDefault = false
	if node.Kind == yaml.MappingNode {
		for i := 0; i < len(node.Content)-1; i += 2 {
			if node.Content[i].Value == "default" {
				p.HasDefault = true
			}
		}
	}
	return nil
}

// ParamWithDefault declares a parameter with a default value.
func ParamWithDefault(name string, def any) ParamSpec {
	return ParamSpec{Name: name, Default: def, HasDefault: true}
}

// FieldDefinition is an immutable, compiled field of a plug's schema.
type FieldDefinition struct {
	name        string
	fieldType   string
	placeholder string
	description string
	rules       []Rule
}

// NewField builds a field definition from already compiled rules.
func NewField(name, fieldType string, rules ...Rule) FieldDefinition {
	return FieldDefinition{
		name:      name,
		fieldType: fieldType,
		rules:     append([]Rule(nil), rules...),
	}
}

// WithPlaceholder returns a copy of the field with UI hints set.
func (f FieldDefinition) WithPlaceholder(placeholder, description string) FieldDefinition {
	f.placeholder = placeholder
	f.description = description
	f.rules = append([]Rule(nil), f.rules...)
	return f
}

func (f FieldDefinition) Name() string        { return f.name }
func (f FieldDefinition) Type() string        { return f.fieldType }
func (f FieldDefinition) Placeholder() string { return f.placeholder }
func (f FieldDefinition) Description() string { return f.description }

// Rules returns a copy of the field's rules in declared order.
func (f FieldDefinition) Rules() []Rule {
	return append([]Rule(nil), f.rules...)
}

// Spec returns the declarative form of the field.
func (f FieldDefinition) Spec() FieldSpec {
	spec := FieldSpec{
		Name:        f.name,
		Type:        f.fieldType,
		Placeholder: f.placeholder,
		Description: f.description,
	}
	for _, r := range f.rules {
		spec.Rules = append(spec.Rules, r.Spec())
	}
	return spec
}

func compileField(spec FieldSpec) (FieldDefinition, error) {
	rules := make([]Rule, 0, len(spec.Rules))
	for i, rs := range spec.Rules {
		r, err := NewRule(rs)
		if err != nil {
			return FieldDefinition{}, fmt.Errorf("field %q rule #%d: %w", spec.Name, i, err)
		}
		rules = append(rules, r)
	}
	return NewField(spec.Name, spec.Type, rules...).WithPlaceholder(spec.Placeholder, spec.Description), nil
}

// Definition is the immutable metadata of a registered plug.
type Definition struct {
	identifier  string
	title       string
	description string
	runEvery    time.Duration
	totalRuns   int
	fields      []FieldDefinition
}

// NewDefinition validates a declaration and compiles its field schema.
func NewDefinition(decl Declaration) (*Definition, error) {
	if err := validateStruct(decl); err != nil {
		return nil, &PlugError{Kind: KindRegistration, Plug: decl.Identifier, Message: "invalid declaration", Cause: err}
	}

	fields := make([]FieldDefinition, 0, len(decl.Fields))
	for _, fs := range decl.Fields {
		f, err := compileField(fs)
		if err != nil {
			return nil, &PlugError{Kind: KindRegistration, Plug: decl.Identifier, Message: "invalid field schema", Cause: err}
		}
		fields = append(fields, f)
	}

	return &Definition{
		identifier:  decl.Identifier,
		title:       decl.Title,
		description: decl.Description,
		runEvery:    time.Duration(decl.RunEveryMs) * time.Millisecond,
		totalRuns:   decl.TotalRuns,
		fields:      fields,
	}, nil
}

func (d *Definition) Identifier() string      { return d.identifier }
func (d *Definition) Title() string           { return d.title }
func (d *Definition) Description() string     { return d.description }
func (d *Definition) RunEvery() time.Duration { return d.runEvery }

// TotalRuns is the run budget; 0 means unlimited.
func (d *Definition) TotalRuns() int { return d.totalRuns }

// Fields returns a copy of the field schema in declared order.
func (d *Definition) Fields() []FieldDefinition {
	return append([]FieldDefinition(nil), d.fields...)
}

// Validate applies the definition's field schema to values.
func (d *Definition) Validate(values map[string]any) ValidationResult {
	return ValidateFields(d.fields, values)
}
