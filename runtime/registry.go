package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Plug binds a definition to the operation implementing it and the provider
// value the operation is invoked on.
type Plug struct {
	ProviderID string
	Definition *Definition
	Operation  *Operation
	Provider   any
}

// ID returns the plug identifier.
func (p *Plug) ID() string {
	return p.Definition.Identifier()
}

// Key returns "provider.plug".
func (p *Plug) Key() string {
	return plugKey(p.ProviderID, p.Definition.Identifier())
}

func plugKey(providerID, plugID string) string {
	return providerID + "." + plugID
}

// Registry maps (provider, plug) to registered plugs. It is populated once at
// startup; after that it is only read and needs no locking.
type Registry struct {
	plugs     map[string]*Plug
	providers map[string]Provider
	order     []string // provider IDs in registration order
}

func NewRegistry() *Registry {
	return &Registry{
		plugs:     make(map[string]*Plug),
		providers: make(map[string]Provider),
	}
}

// RegisterProvider compiles every declaration of p and registers the
// resulting plugs. Either all plugs of the provider are registered or none.
func (r *Registry) RegisterProvider(p Provider) error {
	if p == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	providerID := p.Identifier()
	if providerID == "" {
		return fmt.Errorf("provider %T has an empty identifier", p)
	}
	if _, exists := r.providers[providerID]; exists {
		return fmt.Errorf("provider %q already registered", providerID)
	}

	var target any = p
	if d, ok := p.(Delegator); ok {
		target = d.Delegate()
	}

	compiled := make(map[string]*Plug)
	for _, decl := range p.Plugs() {
		if _, dup := compiled[decl.Identifier]; dup {
			return fmt.Errorf("provider %q: %w", providerID, newRegistrationError(decl.Identifier, "duplicate plug identifier"))
		}

		def, err := NewDefinition(decl)
		if err != nil {
			return fmt.Errorf("provider %q: %w", providerID, err)
		}

		op, err := NewOperation(target, decl.Identifier, decl.Method, decl.Params)
		if err != nil {
			return fmt.Errorf("provider %q: %w", providerID, err)
		}

		compiled[decl.Identifier] = &Plug{
			ProviderID: providerID,
			Definition: def,
			Operation:  op,
			Provider:   target,
		}
	}

	r.providers[providerID] = p
	r.order = append(r.order, providerID)
	for id, plug := range compiled {
		r.plugs[plugKey(providerID, id)] = plug
	}
	return nil
}

// Lookup returns the plug registered under (providerID, plugID).
func (r *Registry) Lookup(providerID, plugID string) (*Plug, bool) {
	p, ok := r.plugs[plugKey(providerID, plugID)]
	return p, ok
}

// Provider returns a registered provider by identifier.
func (r *Registry) Provider(id string) (Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// Providers returns provider identifiers in registration order.
func (r *Registry) Providers() []string {
	return append([]string(nil), r.order...)
}

// Plugs returns all plugs sorted by key.
func (r *Registry) Plugs() []*Plug {
	plugs := make([]*Plug, 0, len(r.plugs))
	for _, p := range r.plugs {
		plugs = append(plugs, p)
	}
	sort.Slice(plugs, func(i, j int) bool {
		return plugs[i].Key() < plugs[j].Key()
	})
	return plugs
}

// Definitions returns the definitions declared by one provider, sorted by
// identifier.
func (r *Registry) Definitions(providerID string) []*Definition {
	var defs []*Definition
	for _, p := range r.Plugs() {
		if p.ProviderID == providerID {
			defs = append(defs, p.Definition)
		}
	}
	return defs
}

// Initialize calls Initialize on every provider implementing Initializer,
// in registration order, and stops at the first failure.
func (r *Registry) Initialize(ctx context.Context) error {
	for _, id := range r.order {
		init, ok := r.providers[id].(Initializer)
		if !ok {
			continue
		}
		if err := init.Initialize(ctx); err != nil {
			return fmt.Errorf("provider %q initialization failed: %w", id, err)
		}
	}
	return nil
}

// Shutdown calls Shutdown on every provider implementing Shutdowner in
// reverse registration order and joins the errors.
func (r *Registry) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(r.order) - 1; i >= 0; i-- {
		id := r.order[i]
		s, ok := r.providers[id].(Shutdowner)
		if !ok {
			continue
		}
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("provider %q shutdown failed: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
