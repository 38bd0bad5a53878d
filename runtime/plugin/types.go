package plugin

import "github.com/BDNK1/plugrun/runtime"

type (
	Declaration = runtime.Declaration
	FieldSpec   = runtime.FieldSpec
	ParamSpec   = runtime.ParamSpec
	RuleSpec    = runtime.RuleSpec
	RuleKind    = runtime.RuleKind
)

// Execution is one scheduled attempt of a plug for an integration.
// Declare a *plugin.Execution parameter to receive it.
type Execution = runtime.Execution

const (
	RuleRequired   = runtime.RuleRequired
	RuleMin        = runtime.RuleMin
	RuleMax        = runtime.RuleMax
	RuleRange      = runtime.RuleRange
	RulePattern    = runtime.RulePattern
	RuleExpression = runtime.RuleExpression
)

// ParamWithDefault declares a parameter that falls back to def.
func ParamWithDefault(name string, def any) ParamSpec {
	return runtime.ParamWithDefault(name, def)
}
