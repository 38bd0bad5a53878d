package runtime

import (
	"time"

	"github.com/google/uuid"
)

// Execution is the per-invocation context handed to a plug. It is created
// fresh for every attempt and never retained by the engine.
type Execution struct {
	ID            string
	IntegrationID string
	AccessToken   string
	PostID        string // empty when the plug is not bound to a post
	Data          map[string]any
	ScheduledAt   time.Time
}

// NewExecution creates an execution context with a fresh ID.
func NewExecution(integrationID, accessToken string, scheduledAt time.Time) *Execution {
	return &Execution{
		ID:            uuid.New().String(),
		IntegrationID: integrationID,
		AccessToken:   accessToken,
		Data:          make(map[string]any),
		ScheduledAt:   scheduledAt,
	}
}

// WithPost returns a shallow copy bound to a post.
func (e *Execution) WithPost(postID string) *Execution {
	cp := *e
	cp.PostID = postID
	return &cp
}

// HasPost reports whether the execution targets a specific post.
func (e *Execution) HasPost() bool {
	return e.PostID != ""
}

// AddValue stores auxiliary data visible to the parameter binder.
func (e *Execution) AddValue(k string, v any) {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[k] = v
}

// Value returns auxiliary data by key.
func (e *Execution) Value(k string) (any, bool) {
	if e == nil || e.Data == nil {
		return nil, false
	}
	v, ok := e.Data[k]
	return v, ok
}
