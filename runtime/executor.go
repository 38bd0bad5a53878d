package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Executor binds arguments, dispatches plug operations and turns every
// outcome into a Result. It holds no per-invocation state and is safe for
// concurrent use.
type Executor struct {
	l          *slog.Logger
	tracer     trace.Tracer
	metrics    *instruments
	reschedule ReschedulePolicy
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorOptions)

type executorOptions struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	reschedule     ReschedulePolicy
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) ExecutorOption {
	return func(o *executorOptions) { o.tracerProvider = tp }
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) ExecutorOption {
	return func(o *executorOptions) { o.meterProvider = mp }
}

// WithReschedulePolicy lets the caller decide Result.ShouldReschedule.
// Without a policy it is always true.
func WithReschedulePolicy(p ReschedulePolicy) ExecutorOption {
	return func(o *executorOptions) { o.reschedule = p }
}

func NewExecutor(l *slog.Logger, opts ...ExecutorOption) *Executor {
	o := executorOptions{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if l == nil {
		l = slog.Default()
	}

	return &Executor{
		l:          l,
		tracer:     o.tracerProvider.Tracer(instrumentationName),
		metrics:    newInstruments(o.meterProvider),
		reschedule: o.reschedule,
	}
}

// Run executes a registered plug.
func (e *Executor) Run(ctx context.Context, plug *Plug, exec *Execution, values map[string]any) *Result {
	if ctx == nil {
		ctx = context.Background()
	}
	if plug == nil {
		return e.finish(ctx, "", time.Now(), Failed(errors.New("plug is nil")))
	}
	return e.Execute(ctx, plug.Operation, plug.Provider, exec, values)
}

// Execute binds the operation's arguments, invokes it on provider and awaits
// a Deferred result. It never returns an error and never panics on behalf of
// the operation: binding failures, returned errors, panics and failed
// Deferreds all produce a failed Result carrying the original cause.
func (e *Executor) Execute(ctx context.Context, op *Operation, provider any, exec *Execution, values map[string]any) *Result {
	start := time.Now()
	if ctx == nil {
		ctx = context.Background()
	}
	if op == nil {
		return e.finish(ctx, "", start, Failed(errors.New("operation is nil")))
	}

	ctx, span := e.tracer.Start(ctx, "plug.execute", trace.WithAttributes(e.attributes(op.plug, exec)...))
	defer span.End()

	args, err := op.Bind(ctx, values, exec)
	if err != nil {
		e.l.ErrorContext(ctx, fmt.Sprintf("Error binding arguments for plug %s", op.plug),
			"error", err)
		res := e.finish(ctx, op.plug, start, Failed(err))
		markSpan(span, res)
		return res
	}

	value, err := op.invoke(ctx, provider, args)
	if err != nil {
		cause := unwrapInvocation(err)
		e.l.ErrorContext(ctx, fmt.Sprintf("Plug execution failed: %s", op.plug),
			"method", op.Name(),
			"error", cause)
		res := e.finish(ctx, op.plug, start, Failed(cause))
		markSpan(span, res)
		return res
	}

	res := e.finish(ctx, op.plug, start, Succeeded(value))
	e.l.InfoContext(ctx, fmt.Sprintf("Executed plug: %s", op.plug),
		"duration", res.Duration)
	markSpan(span, res)
	return res
}

func (e *Executor) finish(ctx context.Context, plugID string, start time.Time, res *Result) *Result {
	res.Duration = time.Since(start)
	res.ShouldReschedule = true
	if e.reschedule != nil {
		res.ShouldReschedule = e.reschedule(res)
	}
	e.metrics.record(ctx, res, attribute.String("plug.id", plugID), attribute.Bool("plug.success", res.Success))
	return res
}

func (e *Executor) attributes(plugID string, exec *Execution) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("plug.id", plugID)}
	if exec != nil {
		attrs = append(attrs,
			attribute.String("plug.execution_id", exec.ID),
			attribute.String("plug.integration_id", exec.IntegrationID))
		if exec.HasPost() {
			attrs = append(attrs, attribute.String("plug.post_id", exec.PostID))
		}
	}
	return attrs
}

func markSpan(span trace.Span, res *Result) {
	span.SetAttributes(attribute.Bool("plug.reschedule", res.ShouldReschedule))
	if res.Success {
		span.SetStatus(codes.Ok, "")
		return
	}
	if res.Fault != nil {
		span.RecordError(res.Fault)
	}
	span.SetStatus(codes.Error, res.Error)
}
