package plugin

import (
	"context"

	"github.com/BDNK1/plugrun/runtime"
)

// Provider groups related plugs under one identifier.
type Provider = runtime.Provider

// Initializer is called once at startup, before any plug runs.
// If Initialize returns an error, the application fails to start.
type Initializer = runtime.Initializer

// Shutdowner is called during graceful shutdown in reverse order of
// registration.
type Shutdowner = runtime.Shutdowner

// Deferred is an asynchronous plug result.
type Deferred = runtime.Deferred

// Enum is implemented by parameter types with a closed set of values.
//
//	type Mode string
//
//	func (Mode) EnumValues() []any { return []any{Mode("any"), Mode("all")} }
type Enum = runtime.Enum

// Go runs fn in its own goroutine and returns a Deferred for its outcome.
func Go(ctx context.Context, fn func(context.Context) (any, error)) Deferred {
	return runtime.Go(ctx, fn)
}

// Resolved returns an already completed Deferred.
func Resolved(value any, err error) Deferred {
	return runtime.Resolved(value, err)
}
