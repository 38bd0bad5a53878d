package yaml

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/BDNK1/plugrun/runtime"
)

const greeterManifest = `
provider: greeter
plugs:
  - id: greet
    title: Greet
    description: Says hello
    run_every_ms: 60000
    total_runs: 3
    method: Greet
    params:
      - ctx
      - name: name
      - name: punctuation
        default: "!"
    fields:
      - name: name
        type: string
        rules:
          - kind: required
          - kind: pattern
            pattern: "^[A-Z]"
            message: Name must be capitalized
`

type greeter struct {
	initialized bool
}

func (g *greeter) Greet(ctx context.Context, name, punctuation string) string {
	return "Hello, " + name + punctuation
}

func (g *greeter) Initialize(ctx context.Context) error {
	g.initialized = true
	return nil
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(greeterManifest))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if m.Provider != "greeter" {
		t.Errorf("Expected provider 'greeter', got '%s'", m.Provider)
	}
	if len(m.Plugs) != 1 {
		t.Fatalf("Expected 1 plug, got %d", len(m.Plugs))
	}

	params := m.Plugs[0].Params
	if len(params) != 3 {
		t.Fatalf("Expected 3 params, got %d", len(params))
	}
	if params[0].Name != "ctx" || params[0].HasDefault {
		t.Errorf("Expected bare 'ctx' param without default, got %+v", params[0])
	}
	if params[1].HasDefault {
		t.Errorf("Expected 'name' without default, got %+v", params[1])
	}
	if !params[2].HasDefault || params[2].Default != "!" {
		t.Errorf("Expected 'punctuation' default '!', got %+v", params[2])
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", "provider: [unclosed"},
		{"missing provider", "plugs:\n  - id: x\n    title: X\n    method: X\n"},
		{"no plugs", "provider: greeter\n"},
		{"dotted provider", "provider: a.b\nplugs:\n  - id: x\n    title: X\n    method: X\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "greeter.yaml"), []byte(greeterManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	manifests, err := NewManifestLoader().LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(manifests) != 1 {
		t.Fatalf("Expected 1 manifest, got %d", len(manifests))
	}
}

func TestManifestProvider_RegisterAndRun(t *testing.T) {
	m, err := Parse([]byte(greeterManifest))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	impl := &greeter{}
	registry := runtime.NewRegistry()
	if err := registry.RegisterProvider(Bind(m, impl)); err != nil {
		t.Fatalf("RegisterProvider failed: %v", err)
	}
	if err := registry.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if !impl.initialized {
		t.Error("Expected Initialize to be forwarded to the implementation")
	}

	plug, ok := registry.Lookup("greeter", "greet")
	if !ok {
		t.Fatal("Expected plug greeter.greet to be registered")
	}

	res := plug.Definition.Validate(map[string]any{"name": "bob"})
	if res.IsValid() {
		t.Error("Expected lowercase name to fail validation")
	}

	result := runtime.NewExecutor(nil).Run(context.Background(), plug, nil, map[string]any{"name": "Bob"})
	if !result.Success {
		t.Fatalf("Expected success, got error: %s", result.Error)
	}
	if result.Data != "Hello, Bob!" {
		t.Errorf("Expected 'Hello, Bob!', got %v", result.Data)
	}
}

func TestManifest_ImplementationID(t *testing.T) {
	m, err := Parse([]byte("provider: greeter-extra\nimplementation: greeter\nplugs:\n  - id: x\n    title: X\n    method: Greet\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.ImplementationID() != "greeter" {
		t.Errorf("Expected implementation 'greeter', got %q", m.ImplementationID())
	}

	if got := (Manifest{Provider: "greeter"}).ImplementationID(); got != "greeter" {
		t.Errorf("Expected implementation to default to provider, got %q", got)
	}
}
