package runtime

import "time"

// Result is the outcome of one plug invocation. It is produced for every
// call to Executor.Execute, including binding and invocation failures.
type Result struct {
	Success          bool          `json:"success"`
	Data             any           `json:"data,omitempty"`
	Error            string        `json:"error,omitempty"`
	Fault            error         `json:"-"`
	ShouldReschedule bool          `json:"should_reschedule"`
	Duration         time.Duration `json:"duration"`
}

// Succeeded wraps a plug's return value.
func Succeeded(data any) *Result {
	return &Result{Success: true, Data: data, ShouldReschedule: true}
}

// Failed wraps the original cause of a failed invocation.
func Failed(cause error) *Result {
	r := &Result{Success: false, Fault: cause, ShouldReschedule: true}
	if cause != nil {
		r.Error = cause.Error()
	}
	return r
}

// ReschedulePolicy decides whether the caller should keep scheduling a plug
// after seeing its result.
type ReschedulePolicy func(*Result) bool
