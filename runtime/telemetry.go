package runtime

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/BDNK1/plugrun/runtime"

type instruments struct {
	executions metric.Int64Counter
	failures   metric.Int64Counter
	duration   metric.Float64Histogram
}

func newInstruments(mp metric.MeterProvider) *instruments {
	meter := mp.Meter(instrumentationName)

	executions, err := meter.Int64Counter("plug.executions",
		metric.WithDescription("Number of plug invocations"))
	if err != nil {
		otel.Handle(err)
	}
	failures, err := meter.Int64Counter("plug.failures",
		metric.WithDescription("Number of plug invocations that did not succeed"))
	if err != nil {
		otel.Handle(err)
	}
	duration, err := meter.Float64Histogram("plug.duration",
		metric.WithDescription("Plug invocation latency"),
		metric.WithUnit("ms"))
	if err != nil {
		otel.Handle(err)
	}

	return &instruments{
		executions: executions,
		failures:   failures,
		duration:   duration,
	}
}

func (i *instruments) record(ctx context.Context, res *Result, attrs ...attribute.KeyValue) {
	opt := metric.WithAttributes(attrs...)
	i.executions.Add(ctx, 1, opt)
	if !res.Success {
		i.failures.Add(ctx, 1, opt)
	}
	i.duration.Record(ctx, float64(res.Duration.Microseconds())/1000, opt)
}
