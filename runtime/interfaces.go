package runtime

import "context"

// Provider is the capability every platform module exposes to the engine: a
// stable identifier and the declarations of its plugs. The methods named by
// the declarations are resolved on the provider value itself.
type Provider interface {
	Identifier() string
	Plugs() []Declaration
}

// Initializer allows providers to perform startup initialization.
// Initialize is called once by Registry.Initialize, in registration order.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Shutdowner allows providers to release resources. Shutdown is called in
// reverse registration order.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Delegator is implemented by providers whose plug methods live on another
// value, such as a provider wrapped with externally loaded declarations.
type Delegator interface {
	Delegate() any
}
