package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// App wires a Registry and an Executor for a process hosting plugs.
type App struct {
	Registry *Registry
	Executor *Executor
}

func NewApp(l *slog.Logger, providers []Provider, opts ...ExecutorOption) (*App, error) {
	app := App{
		Registry: NewRegistry(),
		Executor: NewExecutor(l, opts...),
	}

	for _, p := range providers {
		if err := app.RegisterProvider(p); err != nil {
			return nil, err
		}
	}

	return &app, nil
}

func (a *App) RegisterProvider(p Provider) error {
	if err := a.Registry.RegisterProvider(p); err != nil {
		return fmt.Errorf("error registering provider: %w", err)
	}
	return nil
}

// Start initializes every provider.
func (a *App) Start(ctx context.Context) error {
	return a.Registry.Initialize(ctx)
}

// Stop shuts providers down in reverse registration order.
func (a *App) Stop(ctx context.Context) error {
	return a.Registry.Shutdown(ctx)
}

// Run looks up a plug and executes it. An unknown plug yields a failed Result.
func (a *App) Run(ctx context.Context, providerID, plugID string, exec *Execution, values map[string]any) *Result {
	plug, ok := a.Registry.Lookup(providerID, plugID)
	if !ok {
		if ctx == nil {
			ctx = context.Background()
		}
		err := &PlugError{Kind: KindRegistration, Plug: plugKey(providerID, plugID), Message: "plug not registered"}
		return a.Executor.finish(ctx, plugID, time.Now(), Failed(err))
	}
	return a.Executor.Run(ctx, plug, exec, values)
}
