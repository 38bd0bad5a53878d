package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BDNK1/plugrun/internal/runstate"
	"github.com/BDNK1/plugrun/runtime"
)

type greeter struct{}

func (greeter) Identifier() string { return "greeter" }

func (greeter) Plugs() []runtime.Declaration {
	return []runtime.Declaration{{
		Identifier: "greet",
		Title:      "Greet",
		RunEveryMs: 3600000,
		TotalRuns:  3,
		Method:     "Greet",
		Params:     []runtime.ParamSpec{{Name: "exec"}, {Name: "name"}},
		Fields: []runtime.FieldSpec{{
			Name:  "name",
			Type:  "string",
			Rules: []runtime.RuleSpec{{Kind: runtime.RuleRequired, Message: "Name is required"}},
		}},
	}}
}

func (greeter) Greet(exec *runtime.Execution, name string) string {
	greeting := "Hello, " + name
	if exec.HasPost() {
		greeting += " on " + exec.PostID
	}
	return greeting
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T, withStore bool) (*gin.Engine, runstate.Store) {
	t.Helper()

	registry := runtime.NewRegistry()
	if err := registry.RegisterProvider(greeter{}); err != nil {
		t.Fatalf("RegisterProvider failed: %v", err)
	}

	var store runstate.Store
	if withStore {
		s, err := runstate.Open(context.Background(), runstate.Config{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1}, nil)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		store = s
	}

	srv := New(registry, runtime.NewExecutor(nil), store, nil)
	srv.now = func() time.Time { return fixedNow }
	return srv.Router(gin.TestMode), store
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func do(t *testing.T, r http.Handler, method, path string, body any) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("Response is not JSON: %v (%s)", err, w.Body.String())
	}
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("Unmarshal failed: %v (%s)", err, raw)
	}
	return v
}

func TestListAndGet(t *testing.T) {
	r, _ := newTestRouter(t, false)

	code, env := do(t, r, http.MethodGet, "/plugs", nil)
	if code != http.StatusOK || !env.Success {
		t.Fatalf("GET /plugs = %d %+v", code, env)
	}
	plugs := decode[[]PlugSummary](t, env.Data)
	if len(plugs) != 1 || plugs[0].Provider != "greeter" || plugs[0].ID != "greet" {
		t.Fatalf("Unexpected plugs %+v", plugs)
	}
	if plugs[0].RunEveryMs != 3600000 || plugs[0].TotalRuns != 3 || len(plugs[0].Fields) != 1 {
		t.Errorf("Unexpected summary %+v", plugs[0])
	}

	code, env = do(t, r, http.MethodGet, "/plugs/greeter/greet", nil)
	if code != http.StatusOK || decode[PlugSummary](t, env.Data).Title != "Greet" {
		t.Errorf("GET plug = %d %+v", code, env)
	}

	code, env = do(t, r, http.MethodGet, "/plugs/greeter/missing", nil)
	if code != http.StatusNotFound || env.Success {
		t.Errorf("Expected 404 for unknown plug, got %d %+v", code, env)
	}
}

func TestValidate(t *testing.T) {
	r, _ := newTestRouter(t, false)

	tests := []struct {
		name   string
		values map[string]any
		valid  bool
	}{
		{"valid", map[string]any{"name": "Ada"}, true},
		{"missing name", map[string]any{}, false},
		{"blank name", map[string]any{"name": "  "}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, r, http.MethodPost, "/plugs/greeter/greet/validate", ValidateRequest{Values: tt.values})
			if code != http.StatusOK {
				t.Fatalf("status = %d", code)
			}
			got := decode[struct {
				Valid  bool                `json:"valid"`
				Errors map[string][]string `json:"errors"`
			}](t, env.Data)
			if got.Valid != tt.valid {
				t.Errorf("valid = %v, want %v (%v)", got.Valid, tt.valid, got.Errors)
			}
			if !tt.valid && got.Errors["name"][0] != "Name is required" {
				t.Errorf("Unexpected errors %v", got.Errors)
			}
		})
	}
}

type eligibility struct {
	Eligible     bool       `json:"eligible"`
	NextEligible *time.Time `json:"next_eligible"`
}

func TestEligibility(t *testing.T) {
	r, _ := newTestRouter(t, false)
	recent := fixedNow.Add(-30 * time.Minute)
	old := fixedNow.Add(-2 * time.Hour)

	tests := []struct {
		name     string
		req      EligibilityRequest
		eligible bool
	}{
		{"never ran", EligibilityRequest{}, true},
		{"ran recently", EligibilityRequest{LastRun: &recent, ExecutionCount: 1}, false},
		{"interval elapsed", EligibilityRequest{LastRun: &old, ExecutionCount: 1}, true},
		{"budget exhausted", EligibilityRequest{LastRun: &old, ExecutionCount: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, r, http.MethodPost, "/plugs/greeter/greet/eligibility", tt.req)
			if code != http.StatusOK {
				t.Fatalf("status = %d %+v", code, env)
			}
			got := decode[eligibility](t, env.Data)
			if got.Eligible != tt.eligible {
				t.Errorf("eligible = %v, want %v", got.Eligible, tt.eligible)
			}
			if tt.req.LastRun != nil && !got.NextEligible.Equal(tt.req.LastRun.Add(time.Hour)) {
				t.Errorf("Unexpected next eligible %v", got.NextEligible)
			}
		})
	}

	code, _ := do(t, r, http.MethodPost, "/plugs/greeter/greet/eligibility", map[string]any{"execution_count": -1})
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400 for negative count, got %d", code)
	}
}

func TestExecute(t *testing.T) {
	r, _ := newTestRouter(t, false)

	code, env := do(t, r, http.MethodPost, "/plugs/greeter/greet/execute", ExecuteRequest{
		IntegrationID: "integration-1",
		PostID:        "post-2",
		Values:        map[string]any{"name": "Ada"},
	})
	if code != http.StatusOK || !env.Success {
		t.Fatalf("execute = %d %+v", code, env)
	}
	got := decode[struct {
		ExecutionID string `json:"execution_id"`
		Result      struct {
			Success bool   `json:"success"`
			Data    string `json:"data"`
		} `json:"result"`
	}](t, env.Data)
	if got.ExecutionID == "" || !got.Result.Success || got.Result.Data != "Hello, Ada on post-2" {
		t.Errorf("Unexpected execution %+v", got)
	}

	code, env = do(t, r, http.MethodPost, "/plugs/greeter/greet/execute", ExecuteRequest{IntegrationID: "integration-1"})
	if code != http.StatusUnprocessableEntity || env.Success {
		t.Errorf("Expected 422 for invalid values, got %d %+v", code, env)
	}

	code, _ = do(t, r, http.MethodPost, "/plugs/greeter/greet/execute", map[string]any{"values": map[string]any{"name": "Ada"}})
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400 without integration_id, got %d", code)
	}
}

func TestExecute_RecordsRunsWithStore(t *testing.T) {
	r, _ := newTestRouter(t, true)

	code, env := do(t, r, http.MethodPost, "/plugs/greeter/greet/execute", ExecuteRequest{
		IntegrationID: "integration-1",
		Values:        map[string]any{"name": "Ada"},
	})
	if code != http.StatusOK {
		t.Fatalf("execute = %d %+v", code, env)
	}
	state := decode[struct {
		State runstate.State `json:"state"`
	}](t, env.Data).State
	if state.ExecutionCount != 1 || state.LastRunAt == nil || !state.LastRunAt.Equal(fixedNow) {
		t.Errorf("Unexpected state %+v", state)
	}

	// history comes from the store when the request omits it
	code, env = do(t, r, http.MethodPost, "/plugs/greeter/greet/eligibility", EligibilityRequest{IntegrationID: "integration-1"})
	if code != http.StatusOK {
		t.Fatalf("eligibility = %d", code)
	}
	if decode[eligibility](t, env.Data).Eligible {
		t.Error("Expected plug that just ran to be ineligible")
	}

	code, env = do(t, r, http.MethodGet, "/plugs/greeter/greet/runs?integration_id=integration-1", nil)
	if code != http.StatusOK {
		t.Fatalf("runs = %d %+v", code, env)
	}
	runs := decode[[]runstate.Run](t, env.Data)
	if len(runs) != 1 || !runs[0].Success {
		t.Errorf("Unexpected runs %+v", runs)
	}

	code, _ = do(t, r, http.MethodGet, "/plugs/greeter/greet/runs", nil)
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400 without integration_id, got %d", code)
	}
}

func TestRuns_WithoutStore(t *testing.T) {
	r, _ := newTestRouter(t, false)
	code, _ := do(t, r, http.MethodGet, "/plugs/greeter/greet/runs?integration_id=x", nil)
	if code != http.StatusNotImplemented {
		t.Errorf("Expected 501 without a store, got %d", code)
	}
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, false)
	code, env := do(t, r, http.MethodGet, "/health", nil)
	if code != http.StatusOK || !env.Success {
		t.Errorf("health = %d %+v", code, env)
	}
}
