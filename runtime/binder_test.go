package runtime

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func params(specs ...Param) []Param {
	for i := range specs {
		specs[i].Slot = slotFor(specs[i].Type)
	}
	return specs
}

func TestBindArguments_Precedence(t *testing.T) {
	ps := params(Param{Name: "x", Type: reflect.TypeOf(0), Default: 3, HasDefault: true})

	exec := NewExecution("integration-1", "token", time.Now())
	exec.AddValue("x", 2)

	tests := []struct {
		name   string
		values map[string]any
		exec   *Execution
		want   int
	}{
		{"field value wins", map[string]any{"x": 1}, exec, 1},
		{"nil field value falls through", map[string]any{"x": nil}, exec, 2},
		{"execution data", nil, exec, 2},
		{"default", nil, nil, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := BindArguments(context.Background(), ps, tt.values, tt.exec)
			if err != nil {
				t.Fatalf("BindArguments failed: %v", err)
			}
			if got := args[0].Interface().(int); got != tt.want {
				t.Errorf("x = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBindArguments_ZeroValueWhenUnresolved(t *testing.T) {
	ps := params(
		Param{Name: "s", Type: reflect.TypeOf("")},
		Param{Name: "m", Type: reflect.TypeOf(map[string]any(nil))},
		Param{Name: "p", Type: reflect.TypeOf(&Result{})},
	)

	args, err := BindArguments(context.Background(), ps, nil, nil)
	if err != nil {
		t.Fatalf("BindArguments failed: %v", err)
	}
	if args[0].Interface().(string) != "" {
		t.Errorf("Expected empty string, got %v", args[0])
	}
	if !args[1].IsNil() || !args[2].IsNil() {
		t.Error("Expected nil map and pointer")
	}
}

func TestBindArguments_Slots(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "marker")
	exec := NewExecution("integration-1", "", time.Now())

	ps := params(
		Param{Name: "ctx", Type: contextType},
		Param{Name: "exec", Type: executionPtrType},
	)

	args, err := BindArguments(ctx, ps, nil, exec)
	if err != nil {
		t.Fatalf("BindArguments failed: %v", err)
	}

	gotCtx := args[0].Interface().(context.Context)
	if gotCtx.Value(key{}) != "marker" {
		t.Error("Expected caller context to be bound to the cancellation slot")
	}
	if args[1].Interface().(*Execution) != exec {
		t.Error("Expected execution to be bound to the execution slot")
	}
}

func TestBindArguments_NilContext(t *testing.T) {
	ps := params(Param{Name: "ctx", Type: contextType})

	args, err := BindArguments(nil, ps, nil, nil)
	if err != nil {
		t.Fatalf("BindArguments failed: %v", err)
	}
	if args[0].IsNil() {
		t.Error("Expected a background context, got nil")
	}
}

func TestBindArguments_CoercesEnumsAndNumbers(t *testing.T) {
	ps := params(
		Param{Name: "mode", Type: reflect.TypeOf(mode(""))},
		Param{Name: "limit", Type: reflect.TypeOf(int64(0))},
		Param{Name: "ratio", Type: reflect.TypeOf(float64(0))},
	)

	args, err := BindArguments(context.Background(), ps, map[string]any{
		"mode":  "Any",
		"limit": 20.0,
		"ratio": "0.25",
	}, nil)
	if err != nil {
		t.Fatalf("BindArguments failed: %v", err)
	}

	if args[0].Interface().(mode) != "any" {
		t.Errorf("Expected mode 'any', got %v", args[0])
	}
	if args[1].Interface().(int64) != 20 {
		t.Errorf("Expected limit 20, got %v", args[1])
	}
	if args[2].Interface().(float64) != 0.25 {
		t.Errorf("Expected ratio 0.25, got %v", args[2])
	}
}

func TestBindArguments_CoercionFailure(t *testing.T) {
	ps := params(Param{Name: "mode", Type: reflect.TypeOf(mode(""))})

	_, err := BindArguments(context.Background(), ps, map[string]any{"mode": "sometimes"}, nil)
	if err == nil {
		t.Fatal("Expected binding error, got nil")
	}

	var pe *PlugError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected *PlugError, got %T", err)
	}
	if pe.Kind != KindBinding || pe.Param != "mode" {
		t.Errorf("Unexpected error: %+v", pe)
	}
}
