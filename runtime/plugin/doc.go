// Package plugin is the surface provider authors build against.
//
// A provider is a Go type whose exported methods implement plugs. It
// publishes one Declaration per plug: the plug's identity, its schedule
// (RunEveryMs, TotalRuns), the configurable fields with their rules and the
// target method with its parameter names in order.
//
//	type Provider struct{}
//
//	func (p *Provider) Identifier() string { return "webhook" }
//
//	func (p *Provider) Plugs() []plugin.Declaration {
//	    return []plugin.Declaration{{
//	        Identifier: "heartbeat",
//	        Title:      "Heartbeat",
//	        RunEveryMs: 60000,
//	        Method:     "Heartbeat",
//	        Params:     []plugin.ParamSpec{{Name: "ctx"}, {Name: "webhookUrl"}},
//	        Fields: []plugin.FieldSpec{{
//	            Name:  "webhookUrl",
//	            Type:  "string",
//	            Rules: []plugin.RuleSpec{{Kind: plugin.RuleRequired}},
//	        }},
//	    }}
//	}
//
//	func (p *Provider) Heartbeat(ctx context.Context, webhookUrl string) (map[string]any, error) {
//	    ...
//	}
//
// # Parameters
//
// Each method parameter is bound by name: first from the field values the
// caller supplies, then from Execution.Data, then from the declared default.
// Parameters of type context.Context and *plugin.Execution receive the
// caller's context and the current execution when nothing else supplies
// them. Anything left unresolved gets its zero value.
//
// # Results
//
// A method may return nothing, a value, an error, or a value and an error.
// A method that does its work asynchronously returns a Deferred (see Go);
// the engine awaits it with the caller's context.
//
// # Lifecycle
//
// Providers that hold connections or clients implement Initializer and
// Shutdowner. Shutdown runs in reverse registration order.
package plugin
