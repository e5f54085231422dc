package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink delivers a single event to its destination.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Dispatcher buffers events and delivers them on a background worker.
// Enqueue never blocks; when the buffer is full the event is dropped with
// a warning, since ledger state in storage remains the source of truth.
type Dispatcher struct {
	sink    Sink
	logger  *zap.Logger
	buf     chan Event
	stop    chan struct{}
	wg      sync.WaitGroup
	timeout time.Duration
}

// NewDispatcher creates a dispatcher with the given buffer size.
func NewDispatcher(sink Sink, bufferSize int, logger *zap.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Dispatcher{
		sink:    sink,
		logger:  logger,
		buf:     make(chan Event, bufferSize),
		stop:    make(chan struct{}),
		timeout: 10 * time.Second,
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop drains buffered events and shuts the worker down.
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.wg.Wait()
}

// Enqueue hands an event to the worker. Returns false if it was dropped.
func (d *Dispatcher) Enqueue(ev Event) bool {
	select {
	case d.buf <- ev:
		return true
	default:
		d.logger.Warn("event buffer full, dropping event",
			zap.String("kind", ev.Kind),
			zap.String("tenant_id", ev.TenantID),
			zap.String("entry_id", ev.EntryID),
		)
		return false
	}
}

// HealthCheck reports whether the dispatcher can still accept events.
func (d *Dispatcher) HealthCheck(_ context.Context) error {
	if len(d.buf) == cap(d.buf) {
		return errors.New("event buffer saturated")
	}
	return nil
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case ev := <-d.buf:
			d.deliver(ev)
		case <-d.stop:
			for {
				select {
				case ev := <-d.buf:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sink.Publish(ctx, ev); err != nil {
		d.logger.Error("failed to publish event",
			zap.String("kind", ev.Kind),
			zap.String("tenant_id", ev.TenantID),
			zap.String("entry_id", ev.EntryID),
			zap.Error(err),
		)
	}
}
