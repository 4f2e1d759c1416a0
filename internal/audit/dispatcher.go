package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the emitting transition.
	DropIfFull bool
	// Logger receives sink panics and drops. Nil means zap.NewNop.
	Logger *zap.Logger
}

// Dispatcher hands events to a sink on one worker goroutine, so the sink
// observes a flow's events in the order its transitions happened.
type Dispatcher struct {
	cfg    Config
	sink   Sink
	logger *zap.Logger

	queue   chan Event
	stop    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once
	closing atomic.Bool

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewDispatcher starts the worker and returns nil when cfg is disabled.
// Every method accepts a nil *Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger.Named("audit"),
		queue:  make(chan Event, cfg.BufferSize),
		stop:   make(chan struct{}),
	}
	d.stopped.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.stopped.Done()
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			// Deliver what was accepted before Close.
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver isolates the worker from a panicking sink.
func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("audit sink panicked",
				zap.String("event_type", event.EventType),
				zap.String("flow_id", event.FlowID),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event. A full buffer either drops the event (DropIfFull) or
// waits until there is room, ctx ends or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closing.Load() {
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			if n := d.dropped.Add(1); n == 1 || n%100 == 0 {
				d.logger.Warn("audit buffer full, dropping events",
					zap.String("event_type", event.EventType),
					zap.Uint64("dropped_total", n),
				)
			}
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close delivers the queued events and stops the worker. Later calls are
// no-ops.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		d.stopped.Wait()
	})
}

// Dropped counts events that never reached the sink: a full buffer with
// DropIfFull, or an emitting context that ended while waiting for room.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// SinkFailures counts events whose delivery panicked in the sink.
func (d *Dispatcher) SinkFailures() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
