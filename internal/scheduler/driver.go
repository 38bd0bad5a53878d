package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BDNK1/plugrun/internal/config"
	"github.com/BDNK1/plugrun/internal/runstate"
	"github.com/BDNK1/plugrun/runtime"
)

// cronParser supports standard 5-field cron expressions and descriptors
// like @hourly and @every 1m.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a cron expression and returns a Schedule.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// Status is what a tick did with one subscription.
type Status string

const (
	StatusRan        Status = "ran"
	StatusIneligible Status = "ineligible"
	StatusInvalid    Status = "invalid"
	StatusDisabled   Status = "disabled"
	StatusError      Status = "error"
)

// Outcome reports a subscription's handling during one tick.
type Outcome struct {
	Key    runstate.Key
	Status Status
	Result *runtime.Result     // set when the plug ran
	Errors map[string][]string // set when values failed validation
	State  runstate.State      // state after the tick
	Err    error               // store failures
}

type subscription struct {
	config.Subscription
	plug *runtime.Plug

	mu       sync.Mutex
	disabled bool
}

// Driver runs subscribed plugs on a cron schedule: eligibility from the
// stored run state, then validation, then execution, then persistence.
type Driver struct {
	executor *runtime.Executor
	store    runstate.Store
	subs     []*subscription
	l        *slog.Logger
	now      func() time.Time

	cron    *cron.Cron
	entryID cron.EntryID
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock replaces time.Now for eligibility decisions and run records.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// New resolves every subscription against the registry. An unknown plug is
// a configuration error.
func New(registry *runtime.Registry, executor *runtime.Executor, store runstate.Store, subs []config.Subscription, l *slog.Logger, opts ...Option) (*Driver, error) {
	if l == nil {
		l = slog.Default()
	}

	d := &Driver{
		executor: executor,
		store:    store,
		l:        l,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	for i, s := range subs {
		plug, ok := registry.Lookup(s.Provider, s.Plug)
		if !ok {
			return nil, fmt.Errorf("subscription #%d: plug %s.%s is not registered", i, s.Provider, s.Plug)
		}
		d.subs = append(d.subs, &subscription{Subscription: s, plug: plug})
	}

	d.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.Recover(cronLogger{l}), cron.SkipIfStillRunning(cronLogger{l})),
		cron.WithLogger(cronLogger{l}),
	)

	return d, nil
}

// Start schedules Tick with the given cron spec and starts the cron loop.
func (d *Driver) Start(ctx context.Context, spec string) error {
	id, err := d.cron.AddFunc(spec, func() { d.Tick(ctx) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	d.entryID = id
	d.cron.Start()

	d.l.InfoContext(ctx, "Scheduler started",
		"spec", spec,
		"subscriptions", len(d.subs))
	return nil
}

// Stop stops the cron loop and waits for a running tick to finish.
func (d *Driver) Stop(ctx context.Context) error {
	select {
	case <-d.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextRun returns when the next tick is due, or the zero time when the
// driver is not started.
func (d *Driver) NextRun() time.Time {
	if d.entryID == 0 {
		return time.Time{}
	}
	return d.cron.Entry(d.entryID).Next
}

// Tick handles every subscription once, concurrently, and returns the
// outcomes in subscription order.
func (d *Driver) Tick(ctx context.Context) []Outcome {
	now := d.now()
	outcomes := make([]Outcome, len(d.subs))

	var wg sync.WaitGroup
	for i, s := range d.subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = d.handle(ctx, s, now)
		}()
	}
	wg.Wait()

	return outcomes
}

func (d *Driver) handle(ctx context.Context, s *subscription, now time.Time) Outcome {
	key := s.Key()
	out := Outcome{Key: key}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disabled {
		out.Status = StatusDisabled
		return out
	}

	state, err := d.store.Get(ctx, key)
	if err != nil {
		d.l.ErrorContext(ctx, "Failed to load run state",
			"plug", s.plug.Key(),
			"integration", s.Integration,
			"error", err)
		out.Status, out.Err = StatusError, err
		return out
	}
	out.State = state

	if !runtime.ShouldExecuteAt(s.plug.Definition, state.LastRunAt, state.ExecutionCount, now) {
		out.Status = StatusIneligible
		return out
	}

	if v := s.plug.Definition.Validate(s.Values); !v.IsValid() {
		d.l.WarnContext(ctx, "Skipping plug with invalid values",
			"plug", s.plug.Key(),
			"integration", s.Integration,
			"errors", v.Errors)
		out.Status, out.Errors = StatusInvalid, v.Errors
		return out
	}

	exec := runtime.NewExecution(s.Integration, s.AccessToken, now)
	if s.PostID != "" {
		exec = exec.WithPost(s.PostID)
	}
	for k, v := range s.Data {
		exec.AddValue(k, v)
	}

	res := d.executor.Run(ctx, s.plug, exec, s.Values)
	out.Status, out.Result = StatusRan, res

	state, err = d.store.Record(ctx, key, res, now)
	if err != nil {
		d.l.ErrorContext(ctx, "Failed to record plug run",
			"plug", s.plug.Key(),
			"integration", s.Integration,
			"error", err)
		out.Err = err
	} else {
		out.State = state
	}

	if !res.ShouldReschedule {
		s.disabled = true
		d.l.InfoContext(ctx, "Plug will not be rescheduled",
			"plug", s.plug.Key(),
			"integration", s.Integration)
	}

	return out
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
