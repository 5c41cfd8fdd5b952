package notify

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"opsnotify/internal/eventbus"
	logx "opsnotify/pkg/logx"
)

const (
	DefaultWorkers        = 8
	DefaultAttemptTimeout = 10 * time.Second

	// Bus event types.
	EventTypeSent       = "notify.sent"
	EventTypeFailed     = "notify.failed"
	EventTypeDispatched = "notify.dispatched"
)

// SubscriptionStore resolves the channels subscribed to an event kind.
type SubscriptionStore interface {
	ListChannelsForEvent(ctx context.Context, kind EventKind) ([]ChannelConfig, error)
}

// Observer receives dispatch telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveOutcome(event EventKind, o DispatchOutcome)
	ObserveDispatch(event EventKind, selected int, took time.Duration)
}

// Config bounds the fan-out. Zero values mean defaults.
type Config struct {
	Workers        int
	AttemptTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	return c
}

type Dispatcher struct {
	store    SubscriptionStore
	registry *Registry

	log logx.Logger
	bus eventbus.Bus
	obs Observer

	mu       sync.RWMutex
	cfg      Config
	composer *Composer
}

type Option func(*Dispatcher)

func WithLogger(log logx.Logger) Option { return func(d *Dispatcher) { d.log = log } }

// WithBus publishes one bus event per finished attempt and per dispatch.
func WithBus(bus eventbus.Bus) Option { return func(d *Dispatcher) { d.bus = bus } }

func WithObserver(obs Observer) Option { return func(d *Dispatcher) { d.obs = obs } }

func WithComposer(c *Composer) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.composer = c
		}
	}
}

func NewDispatcher(cfg Config, store SubscriptionStore, registry *Registry, opts ...Option) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	d := &Dispatcher{
		store:    store,
		registry: registry,
		cfg:      cfg.withDefaults(),
		composer: NewComposer("", nil),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Apply swaps fan-out limits at runtime. In-flight dispatches keep their limits.
func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.cfg = cfg.withDefaults()
	d.mu.Unlock()
}

// SetComposer swaps the composer (instance name, timezone, layouts).
func (d *Dispatcher) SetComposer(c *Composer) {
	if c == nil {
		return
	}
	d.mu.Lock()
	d.composer = c
	d.mu.Unlock()
}

func (d *Dispatcher) snapshot() (Config, *Composer) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg, d.composer
}

// Dispatch delivers ev to every subscribed channel and waits for all attempts.
//
// ctx bounds only the store read. Attempts run detached from it, each bounded by
// the attempt timeout, so a caller going away cannot cut a fan-out short.
// The returned error is non-nil only when the store could not be read.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (DispatchResult, error) {
	start := time.Now()
	res := DispatchResult{EventID: ev.ID, Kind: ev.Kind}

	cfgs, err := d.store.ListChannelsForEvent(ctx, ev.Kind)
	if err != nil {
		return res, fmt.Errorf("list channels for %s: %w", ev.Kind, err)
	}
	selected := selectChannels(ev.Kind, cfgs)
	res.Outcomes = make([]DispatchOutcome, len(selected))
	if len(selected) == 0 {
		d.finish(ev, res, start)
		return res, nil
	}

	cfg, composer := d.snapshot()
	bundle := composer.Compose(ev)
	attemptCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(cfg.Workers)
	for i, ch := range selected {
		g.Go(func() error {
			o := d.attempt(attemptCtx, bundle, ch, cfg.AttemptTimeout)
			res.Outcomes[i] = o
			d.report(ev, o)
			return nil
		})
	}
	_ = g.Wait()

	d.finish(ev, res, start)
	return res, nil
}

// Notify is the entry point for upstream code: Dispatch plus a summary log line.
// Failed outcomes are not errors; only a store failure is returned.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) (DispatchResult, error) {
	res, err := d.Dispatch(ctx, ev)
	if err != nil {
		d.log.Error("dispatch aborted", logx.String("event_id", ev.ID), logx.String("event", string(ev.Kind)), logx.Err(err))
		return res, err
	}
	fields := []logx.Field{
		logx.String("event_id", ev.ID),
		logx.String("event", string(ev.Kind)),
		logx.Int("channels", len(res.Outcomes)),
		logx.Int("sent", res.Sent()),
		logx.Int("failed", res.Failed()),
	}
	switch {
	case len(res.Outcomes) == 0:
		d.log.Debug("no channels subscribed", fields...)
	case res.Failed() > 0:
		d.log.Warn("event dispatched with failures", fields...)
	default:
		d.log.Info("event dispatched", fields...)
	}
	return res, nil
}

func (d *Dispatcher) attempt(parent context.Context, b ContentBundle, ch ChannelConfig, timeout time.Duration) DispatchOutcome {
	start := time.Now()
	out := DispatchOutcome{ChannelID: ch.ID, ChannelName: ch.Name, Kind: ch.Kind, Status: StatusSent}

	err := d.send(parent, b, ch, timeout)
	out.Took = time.Since(start)
	if err != nil {
		out.Status = StatusFailed
		out.Error = detailFor(ch, err)
		var pe *panicError
		if errors.As(err, &pe) {
			d.log.Error("channel attempt panicked", logx.String("channel_id", ch.ID), logx.Err(err), logx.Stack(pe.stack))
		}
	}
	return out
}

func (d *Dispatcher) send(parent context.Context, b ContentBundle, ch ChannelConfig, timeout time.Duration) error {
	binding, ok := d.registry.Lookup(ch.Kind)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedChannel, ch.Kind)
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	return runIsolated(ctx, func(ctx context.Context) error {
		p, err := binding.Formatter.Format(b, ch)
		if err != nil {
			return &FormatError{Channel: ch.Kind, Err: err}
		}
		return binding.Transport.Send(ctx, ch.Destination, p)
	})
}

// runIsolated runs fn in its own goroutine, converting a panic into an error.
// If fn ignores ctx, it is abandoned at the deadline.
func runIsolated(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &panicError{value: r, stack: string(debug.Stack())}
			}
		}()
		done <- fn(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		select {
		case err := <-done:
			return err
		default:
		}
		return ctx.Err()
	}
}

func (d *Dispatcher) report(ev Event, o DispatchOutcome) {
	if d.obs != nil {
		d.obs.ObserveOutcome(ev.Kind, o)
	}
	if d.bus != nil {
		typ := EventTypeSent
		if o.Status == StatusFailed {
			typ = EventTypeFailed
		}
		d.bus.Publish(eventbus.Event{Type: typ, Data: OutcomeEvent{EventID: ev.ID, EventKind: ev.Kind, Outcome: o}})
	}
}

func (d *Dispatcher) finish(ev Event, res DispatchResult, start time.Time) {
	if d.obs != nil {
		d.obs.ObserveDispatch(ev.Kind, len(res.Outcomes), time.Since(start))
	}
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: EventTypeDispatched, Data: res})
	}
}

// selectChannels keeps subscribed configs, first occurrence per id.
func selectChannels(kind EventKind, cfgs []ChannelConfig) []ChannelConfig {
	out := make([]ChannelConfig, 0, len(cfgs))
	seen := make(map[string]struct{}, len(cfgs))
	for _, c := range cfgs {
		if !c.Subscribed(kind) {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
