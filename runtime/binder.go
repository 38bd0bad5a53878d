package runtime

import (
	"context"
	"reflect"
)

// ParamSlot marks parameters that are filled by the engine rather than from
// supplied values.
type ParamSlot int

const (
	SlotNone ParamSlot = iota
	// SlotCancellation receives the caller's context.Context.
	SlotCancellation
	// SlotExecution receives the *Execution of the current attempt.
	SlotExecution
)

var (
	contextType      = reflect.TypeOf((*context.Context)(nil)).Elem()
	executionPtrType = reflect.TypeOf((*Execution)(nil))
)

// Param is one formal parameter of a plug operation.
type Param struct {
	Name       string
	Type       reflect.Type
	Default    any
	HasDefault bool
	Slot       ParamSlot
}

func slotFor(t reflect.Type) ParamSlot {
	switch t {
	case contextType:
		return SlotCancellation
	case executionPtrType:
		return SlotExecution
	default:
		return SlotNone
	}
}

// BindArguments resolves params into positional arguments. For each
// parameter the first match wins:
//
//  1. a non-nil entry under its name in values
//  2. a non-nil entry under its name in exec.Data
//  3. its declared default
//  4. the engine slot (ctx for the cancellation slot, exec for the execution slot)
//  5. the zero value of its type
//
// Sources 1-3 are coerced to the parameter type; a failed coercion yields a
// binding *PlugError.
func BindArguments(ctx context.Context, params []Param, values map[string]any, exec *Execution) ([]reflect.Value, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	args := make([]reflect.Value, len(params))
	for i, p := range params {
		if raw, ok := lookupArgument(p, values, exec); ok {
			v, err := coerce(raw, p.Type)
			if err != nil {
				return nil, newBindingError("", p.Name, err)
			}
			args[i] = v
			continue
		}

		args[i] = slotArgument(ctx, p, exec)
	}
	return args, nil
}

func lookupArgument(p Param, values map[string]any, exec *Execution) (any, bool) {
	if v, ok := values[p.Name]; ok && v != nil {
		return v, true
	}
	if v, ok := exec.Value(p.Name); ok && v != nil {
		return v, true
	}
	if p.HasDefault {
		return p.Default, true
	}
	return nil, false
}

func slotArgument(ctx context.Context, p Param, exec *Execution) reflect.Value {
	out := reflect.New(p.Type).Elem()
	switch p.Slot {
	case SlotCancellation:
		out.Set(reflect.ValueOf(ctx))
	case SlotExecution:
		if exec != nil {
			out.Set(reflect.ValueOf(exec))
		}
	}
	return out
}
