package runstate

import (
	"context"
	"time"

	"github.com/BDNK1/plugrun/runtime"
)

// Key identifies the run history of one plug for one integration.
type Key struct {
	Provider    string `json:"provider"`
	Plug        string `json:"plug"`
	Integration string `json:"integration"`
}

// State is what the eligibility predicate needs from the history.
type State struct {
	LastRunAt      *time.Time `json:"last_run_at"`
	ExecutionCount int        `json:"execution_count"`
}

// Run is a single recorded plug invocation.
type Run struct {
	ID         string    `json:"id"`
	Key        Key       `json:"key"`
	Success    bool      `json:"success"`
	ErrorMsg   string    `json:"error_msg,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
}

// Store persists run history keyed by (provider, plug, integration).
//
// Only successful runs advance LastRunAt and ExecutionCount; failed runs are
// kept as run rows so the next tick retries them.
type Store interface {
	Get(ctx context.Context, key Key) (State, error)
	Record(ctx context.Context, key Key, res *runtime.Result, at time.Time) (State, error)
	ListRuns(ctx context.Context, key Key, limit int) ([]Run, error)
	Close() error
}
