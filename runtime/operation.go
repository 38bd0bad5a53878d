package runtime

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Deferred is an asynchronous result returned by a plug operation. The
// executor awaits it with the caller's context.
type Deferred interface {
	Await(ctx context.Context) (any, error)
}

// Operation is a late-bound plug method: the method of a provider type
// resolved by name, together with its ordered parameter descriptors.
type Operation struct {
	plug     string
	receiver reflect.Type
	method   reflect.Method
	params   []Param
}

// NewOperation resolves method on provider's type and pairs each formal
// parameter with its declared name. The number of names must match the
// method's arity; a method may return nothing, a value, an error, or a value
// and an error.
func NewOperation(provider any, plugID, method string, specs []ParamSpec) (*Operation, error) {
	if provider == nil {
		return nil, newRegistrationError(plugID, "provider cannot be nil")
	}

	providerType := reflect.TypeOf(provider)
	m, ok := providerType.MethodByName(method)
	if !ok {
		return nil, newRegistrationError(plugID, "method %s not found on %s", method, providerType)
	}

	mt := m.Type
	if mt.IsVariadic() {
		return nil, newRegistrationError(plugID, "method %s must not be variadic", method)
	}
	if !isValidPlugSignature(mt) {
		return nil, newRegistrationError(plugID, "method %s has unsupported results %s", method, mt)
	}

	// In(0) is the receiver.
	if mt.NumIn()-1 != len(specs) {
		return nil, newRegistrationError(plugID, "method %s takes %d parameters, %d names declared", method, mt.NumIn()-1, len(specs))
	}

	params := make([]Param, len(specs))
	seen := make(map[string]bool, len(specs))
	for i, spec := range specs {
		if seen[spec.Name] {
			return nil, newRegistrationError(plugID, "duplicate parameter name %q", spec.Name)
		}
		seen[spec.Name] = true

		t := mt.In(i + 1)
		p := Param{
			Name:       spec.Name,
			Type:       t,
			Default:    spec.Default,
			HasDefault: spec.HasDefault,
			Slot:       slotFor(t),
		}
		if p.HasDefault {
			if _, err := coerce(p.Default, t); err != nil {
				return nil, &PlugError{Kind: KindRegistration, Plug: plugID, Param: p.Name, Message: "invalid default", Cause: err}
			}
		}
		params[i] = p
	}

	return &Operation{
		plug:     plugID,
		receiver: providerType,
		method:   m,
		params:   params,
	}, nil
}

// isValidPlugSignature accepts (), (T), (error) and (T, error) results.
func isValidPlugSignature(mt reflect.Type) bool {
	switch mt.NumOut() {
	case 0, 1:
		return true
	case 2:
		return mt.Out(1) == errorType
	default:
		return false
	}
}

// Name returns the method name.
func (o *Operation) Name() string {
	return o.method.Name
}

// Params returns a copy of the parameter descriptors.
func (o *Operation) Params() []Param {
	return append([]Param(nil), o.params...)
}

// Bind resolves the operation's arguments. See BindArguments.
func (o *Operation) Bind(ctx context.Context, values map[string]any, exec *Execution) ([]reflect.Value, error) {
	args, err := BindArguments(ctx, o.params, values, exec)
	if err != nil {
		var pe *PlugError
		if errors.As(err, &pe) {
			pe.Plug = o.plug
		}
		return nil, err
	}
	return args, nil
}

// invoke calls the method on provider and, when it returns a Deferred, waits
// for it. Every fault (returned error, panic, failed Deferred) comes back
// wrapped in exactly one invocation *PlugError.
func (o *Operation) invoke(ctx context.Context, provider any, args []reflect.Value) (out any, err error) {
	if reflect.TypeOf(provider) != o.receiver {
		return nil, newInvocationError(o.plug, fmt.Errorf("provider %T does not declare %s", provider, o.method.Name))
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = newInvocationError(o.plug, &PanicError{Value: r})
		}
	}()

	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, reflect.ValueOf(provider))
	in = append(in, args...)
	results := o.method.Func.Call(in)

	value, callErr := splitResults(results)
	if callErr != nil {
		return nil, newInvocationError(o.plug, callErr)
	}

	if d, ok := value.(Deferred); ok && d != nil {
		value, callErr = d.Await(ctx)
		if callErr != nil {
			return nil, newInvocationError(o.plug, callErr)
		}
	}

	return value, nil
}

func splitResults(results []reflect.Value) (any, error) {
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		if results[0].Type() == errorType {
			return nil, asError(results[0])
		}
		return interfaceOf(results[0]), nil
	default:
		return interfaceOf(results[0]), asError(results[1])
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

func interfaceOf(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return nil
		}
	}
	return v.Interface()
}
