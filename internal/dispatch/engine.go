// Package dispatch is the notification engine. It moves each host event
// through resolve, filter, render, and send on a pool of worker lanes and
// never returns errors to the host: problems become diagnostics.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"alerticorn/internal/channel"
	"alerticorn/internal/diag"
	"alerticorn/internal/eventbus"
	"alerticorn/internal/metadata"
	"alerticorn/internal/metrics"
	"alerticorn/internal/render"
	rtsup "alerticorn/internal/runtime/supervisor"
	"alerticorn/internal/transport"
	logx "alerticorn/pkg/logx"
)

type Config struct {
	Workers int
	// QueueSize bounds each lane.
	QueueSize        int
	ShutdownDeadline time.Duration
	// EnvReload is an optional schedule for refreshing the env snapshot.
	EnvReload string
	Transport transport.Config
}

func DefaultConfig() Config {
	return Config{
		Workers:          4,
		QueueSize:        256,
		ShutdownDeadline: 10 * time.Second,
		Transport:        transport.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.ShutdownDeadline <= 0 {
		c.ShutdownDeadline = d.ShutdownDeadline
	}
	return c
}

// Sender delivers a rendered payload. *transport.Client implements it.
type Sender interface {
	Send(ctx context.Context, endpoint, contentType string, body []byte) (transport.Result, error)
}

type runState int

const (
	idle runState = iota
	running
	stopping
	stopped
)

// Engine is safe for concurrent use. The zero value is not usable; call New.
type Engine struct {
	cfg       Config
	log       logx.Logger
	sink      diag.Sink
	bus       eventbus.Bus
	channels  *channel.Resolver
	renderers *render.Registry
	meta      *metadata.Resolver
	sender    Sender
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	mu         sync.Mutex
	state      runState
	lanes      []chan *job
	sup        *rtsup.Supervisor
	pending    int
	abandoned  bool
	stopReload func()
}

type Option func(*Engine)

// WithSink replaces the default stderr diagnostic sink.
func WithSink(s diag.Sink) Option { return func(e *Engine) { e.sink = s } }

func WithLogger(log logx.Logger) Option { return func(e *Engine) { e.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(e *Engine) { e.bus = bus } }

func WithChannels(r *channel.Resolver) Option { return func(e *Engine) { e.channels = r } }

func WithRenderers(r *render.Registry) Option { return func(e *Engine) { e.renderers = r } }

func WithTemplates(t *metadata.Templates) Option {
	return func(e *Engine) { e.meta = metadata.NewResolver(t) }
}

func WithSender(s Sender) Option { return func(e *Engine) { e.sender = s } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg.withDefaults()}
	for _, o := range opts {
		o(e)
	}
	if e.log.IsZero() {
		e.log = logx.NewConsole("info")
	}
	e.log = e.log.With(logx.String("comp", "dispatch"))
	if e.bus == nil {
		e.bus = eventbus.New()
	}
	if e.sink == nil {
		e.sink = diag.NewLogSink(e.log)
	}
	e.sink = diag.Multi(e.sink, diag.NewBusSink(e.bus))
	if e.channels == nil {
		e.channels = channel.NewResolver(channel.WithBus(e.bus))
	}
	if e.renderers == nil {
		e.renderers = render.NewDefaultRegistry()
	}
	if e.meta == nil {
		e.meta = metadata.NewResolver(nil)
	}
	if e.sender == nil {
		e.sender = transport.New(e.cfg.Transport, transport.WithLogger(e.log.With(logx.String("comp", "transport"))))
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.metrics == nil {
		if m, err := metrics.New(nil); err == nil {
			e.metrics = m
		} else {
			e.log.Warn("metrics disabled", logx.Err(err))
		}
	}
	return e
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Bus() eventbus.Bus { return e.bus }

func (e *Engine) Channels() *channel.Resolver { return e.channels }

func (e *Engine) Renderers() *render.Registry { return e.renderers }

func (e *Engine) Templates() *metadata.Templates { return e.meta.Templates() }

// Supervisor returns the lane supervisor, nil before Start.
func (e *Engine) Supervisor() *rtsup.Supervisor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sup
}

// ReloadEnv re-reads the AC_ environment into a fresh snapshot.
func (e *Engine) ReloadEnv() { e.channels.Reload() }

// Start launches the worker lanes. It is idempotent; the first host event
// starts the engine implicitly with a background context.
func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case running:
		return nil
	case stopping, stopped:
		return errors.New("dispatch: engine already shut down")
	}

	e.sup = rtsup.New(ctx, rtsup.WithLogger(e.log))
	e.lanes = make([]chan *job, e.cfg.Workers)
	for i := range e.lanes {
		q := make(chan *job, e.cfg.QueueSize)
		e.lanes[i] = q
		e.sup.GoRestart(fmt.Sprintf("lane.%d", i), 100*time.Millisecond, func(c context.Context) error {
			return e.laneLoop(c, q)
		})
	}
	if e.cfg.EnvReload != "" {
		stop, err := e.channels.AutoReload(e.cfg.EnvReload)
		if err != nil {
			e.log.Warn("env auto-reload disabled", logx.String("schedule", e.cfg.EnvReload), logx.Err(err))
		} else {
			e.stopReload = stop
		}
	}
	e.state = running
	e.log.Debug("engine started", logx.Int("workers", e.cfg.Workers), logx.Int("queue", e.cfg.QueueSize))
	return nil
}

func (e *Engine) laneLoop(ctx context.Context, q <-chan *job) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j, ok := <-q:
			if !ok {
				return nil
			}
			if !e.take() {
				continue
			}
			e.run(ctx, j)
		}
	}
}

// take claims a queued job for processing unless shutdown abandoned it.
func (e *Engine) take() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.abandoned {
		return false
	}
	e.pending--
	return true
}

func (e *Engine) enqueue(j *job) {
	e.mu.Lock()
	if e.state == idle {
		e.mu.Unlock()
		_ = e.Start(context.Background())
		e.mu.Lock()
	}
	if e.state != running {
		e.mu.Unlock()
		e.drop(j, diag.NotRunning, "engine is shut down", nil)
		return
	}
	lane := e.lanes[laneFor(j.itemID, len(e.lanes))]
	select {
	case lane <- j:
		e.pending++
		e.mu.Unlock()
		e.bus.Publish(eventbus.Event{Type: eventbus.TypeQueued, Data: j.delivery})
	default:
		e.mu.Unlock()
		e.drop(j, diag.QueueFull, "worker lane queue is full", nil)
	}
}

func laneFor(itemID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(itemID))
	return int(h.Sum32() % uint32(n))
}

// ShutdownReport summarizes a Shutdown.
type ShutdownReport struct {
	Dropped  int
	TimedOut bool
	Elapsed  time.Duration
}

// Shutdown stops intake and drains the lanes until the shutdown deadline
// or ctx, whichever comes first. Jobs still queued at that point are
// dropped and counted. Requests already on the wire are not interrupted.
func (e *Engine) Shutdown(ctx context.Context) ShutdownReport {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	e.mu.Lock()
	if e.state != running {
		e.state = stopped
		e.mu.Unlock()
		return ShutdownReport{}
	}
	e.state = stopping
	for _, q := range e.lanes {
		close(q)
	}
	sup := e.sup
	stopReload := e.stopReload
	e.stopReload = nil
	e.mu.Unlock()

	if stopReload != nil {
		stopReload()
	}

	dctx, cancel := context.WithTimeout(ctx, e.cfg.ShutdownDeadline)
	defer cancel()
	err := sup.Wait(dctx)

	report := ShutdownReport{}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		e.mu.Lock()
		e.abandoned = true
		report.Dropped = e.pending
		e.pending = 0
		e.mu.Unlock()
		report.TimedOut = true
		sup.Cancel()
		e.sink.Report(diag.Stamp(diag.Diagnostic{
			Kind:    diag.ShutdownDropped,
			Message: fmt.Sprintf("shutdown deadline reached, dropped %d queued notification(s)", report.Dropped),
			Count:   report.Dropped,
		}))
		for range report.Dropped {
			e.metrics.RecordDropped(context.Background(), string(diag.ShutdownDropped))
		}
	}

	e.mu.Lock()
	e.state = stopped
	e.mu.Unlock()
	report.Elapsed = time.Since(start)
	e.log.Debug("engine stopped", logx.Int("dropped", report.Dropped), logx.Bool("timed_out", report.TimedOut))
	return report
}
