package notify

import (
	"context"
	"sync"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
	"github.com/Temutjin2k/hust-run/pkg/metrics"
)

const (
	DefaultBufferSize = 256

	publishTimeout = 5 * time.Second
)

// Publisher delivers one event to an external system.
type Publisher interface {
	Publish(ctx context.Context, ev models.SessionEvent) error
}

/*
Dispatcher decouples event producers from slow publishers. Notify never
blocks: events are queued and delivered by a single worker in order. When the
queue is full the event is dropped and counted.
*/
type Dispatcher struct {
	events    chan models.SessionEvent
	lifecycle []Publisher
	telemetry []Publisher
	l         logger.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	done    chan struct{}
}

type Option func(*Dispatcher)

// WithLifecycle adds publishers for session state changes.
func WithLifecycle(p ...Publisher) Option {
	return func(d *Dispatcher) { d.lifecycle = append(d.lifecycle, p...) }
}

// WithTelemetry adds publishers for sent fixes.
func WithTelemetry(p ...Publisher) Option {
	return func(d *Dispatcher) { d.telemetry = append(d.telemetry, p...) }
}

func NewDispatcher(bufferSize int, l logger.Logger, opts ...Option) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	d := &Dispatcher{
		events: make(chan models.SessionEvent, bufferSize),
		l:      l,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start runs the delivery worker until Close. Only the first call counts.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started || d.closed {
		return
	}
	d.started = true
	go d.run(wrap.WithAction(context.WithoutCancel(ctx), types.ActionEventDispatch))
}

func (d *Dispatcher) Notify(ev models.SessionEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}

	select {
	case d.events <- ev:
	default:
		metrics.EventsDroppedTotal.Inc()
		d.l.Warn(wrap.WithSessionID(context.Background(), ev.SessionID), "event dropped, dispatcher buffer full",
			"type", ev.Type.String(),
		)
	}
}

// Close stops accepting events and waits until queued ones are delivered or
// ctx is done. Without a worker, queued events are dropped.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
		if !d.started {
			close(d.done)
		}
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)

	for ev := range d.events {
		targets := d.lifecycle
		if ev.Type.IsTelemetry() {
			targets = d.telemetry
		}
		for _, p := range targets {
			d.deliver(ctx, p, ev)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, p Publisher, ev models.SessionEvent) {
	ctx, cancel := context.WithTimeout(wrap.WithSessionID(ctx, ev.SessionID), publishTimeout)
	defer cancel()

	if err := p.Publish(ctx, ev); err != nil {
		d.l.Error(wrap.ErrorCtx(ctx, err), "failed to deliver session event", err, "type", ev.Type.String())
	}
}
