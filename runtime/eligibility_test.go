package runtime

import (
	"math"
	"testing"
	"time"
)

func mustDefinition(t *testing.T, runEveryMs int64, totalRuns int) *Definition {
	t.Helper()
	def, err := NewDefinition(Declaration{
		Identifier: "plug",
		Title:      "Plug",
		Method:     "Run",
		RunEveryMs: runEveryMs,
		TotalRuns:  totalRuns,
	})
	if err != nil {
		t.Fatalf("NewDefinition failed: %v", err)
	}
	return def
}

func TestShouldExecute_BudgetExhausted(t *testing.T) {
	def := mustDefinition(t, 21600000, 10)
	longAgo := time.Now().Add(-30 * 24 * time.Hour)

	if ShouldExecute(def, &longAgo, 10) {
		t.Error("Expected exhausted budget to block execution")
	}
	if ShouldExecute(def, nil, 10) {
		t.Error("Expected exhausted budget to block execution without history")
	}
	if ShouldExecute(def, nil, 11) {
		t.Error("Expected count above budget to block execution")
	}
	if !ShouldExecute(def, nil, 9) {
		t.Error("Expected last remaining run to be allowed")
	}
}

func TestShouldExecute_NeverRun(t *testing.T) {
	for _, runEvery := range []int64{0, 1, 21600000} {
		def := mustDefinition(t, runEvery, 0)
		if !ShouldExecute(def, nil, 1000) {
			t.Errorf("Expected never-run plug (runEvery=%d) to be eligible", runEvery)
		}
	}
}

func TestShouldExecuteAt_Interval(t *testing.T) {
	def := mustDefinition(t, 60000, 0)
	last := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"just ran", last, false},
		{"one ms early", last.Add(time.Minute - time.Millisecond), false},
		{"exactly due", last.Add(time.Minute), true},
		{"overdue", last.Add(time.Hour), true},
		{"clock behind", last.Add(-time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldExecuteAt(def, &last, 0, tt.now); got != tt.want {
				t.Errorf("ShouldExecuteAt(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestShouldExecuteAt_ZeroInterval(t *testing.T) {
	def := mustDefinition(t, 0, 0)
	last := time.Now()

	if !ShouldExecuteAt(def, &last, 5, last) {
		t.Error("Expected zero interval plug to be eligible immediately")
	}
}

func TestShouldExecute_NilDefinition(t *testing.T) {
	if ShouldExecute(nil, nil, 0) {
		t.Error("Expected nil definition to never be eligible")
	}
}

func TestNextEligible(t *testing.T) {
	def := mustDefinition(t, 21600000, 10)
	last := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	if got, want := NextEligible(def, last), last.Add(6*time.Hour); !got.Equal(want) {
		t.Errorf("NextEligible = %v, want %v", got, want)
	}
}

func TestShouldExecuteAt_LargestInterval(t *testing.T) {
	def := mustDefinition(t, MaxRunEveryMs, 0)
	if def.RunEvery() <= 0 {
		t.Fatalf("Expected a positive interval, got %v", def.RunEvery())
	}

	last := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if ShouldExecuteAt(def, &last, 1, last.Add(time.Second)) {
		t.Error("Expected plug to stay ineligible right after a run")
	}
	if ShouldExecuteAt(def, &last, 1, last.Add(100*365*24*time.Hour)) {
		t.Error("Expected plug to stay ineligible a century after a run")
	}
}

func TestNewDefinition_RejectsOverflowingInterval(t *testing.T) {
	for _, ms := range []int64{MaxRunEveryMs + 1, math.MaxInt64 / 1000, math.MaxInt64} {
		_, err := NewDefinition(Declaration{
			Identifier: "plug",
			Title:      "Plug",
			Method:     "Run",
			RunEveryMs: ms,
		})
		if !IsKind(err, KindRegistration) {
			t.Errorf("RunEveryMs=%d: expected registration error, got %v", ms, err)
		}
	}
}
