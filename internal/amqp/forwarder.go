package amqp

import (
	"context"
	"sync/atomic"
	"time"

	"fintrack/internal/events"
	"fintrack/internal/log"
)

const drainTimeout = 5 * time.Second

// Publisher is implemented by Client.
type Publisher interface {
	PublishEvent(ctx context.Context, e events.Event) error
}

// Forwarder relays bus events to AMQP from its own goroutine so journal
// callers never wait on the broker. When the buffer is full new events are
// dropped: notifications are advisory and consumers re-read state.
type Forwarder struct {
	pub     Publisher
	buf     chan events.Event
	logger  *log.Logger
	dropped atomic.Int64
}

func NewForwarder(pub Publisher, size int, logger *log.Logger) *Forwarder {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Forwarder{
		pub:    pub,
		buf:    make(chan events.Event, size),
		logger: logger.WithComponent(log.ComponentAMQP),
	}
}

// Attach subscribes the forwarder to every event kind on bus.
func (f *Forwarder) Attach(bus *events.Bus) {
	bus.SubscribeAll(f.Enqueue)
}

// Enqueue never blocks.
func (f *Forwarder) Enqueue(ctx context.Context, e events.Event) {
	select {
	case f.buf <- e:
	default:
		n := f.dropped.Add(1)
		f.logger.WarnContext(ctx, "Event buffer full, dropping event",
			log.FieldEventKind, e.Kind(),
			"dropped_total", n)
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (f *Forwarder) Dropped() int64 {
	return f.dropped.Load()
}

// Run publishes buffered events until ctx is done, then makes one bounded
// attempt to flush what is left.
func (f *Forwarder) Run(ctx context.Context) error {
	f.logger.InfoContext(ctx, "Event forwarder started", "buffer", cap(f.buf))
	for {
		select {
		case <-ctx.Done():
			f.drain()
			return nil
		case e := <-f.buf:
			f.forward(ctx, e)
		}
	}
}

func (f *Forwarder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case e := <-f.buf:
			f.forward(ctx, e)
		default:
			return
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, e events.Event) {
	if err := f.pub.PublishEvent(ctx, e); err != nil {
		f.logger.WarnContext(ctx, "Failed to forward event",
			log.FieldEventKind, e.Kind(),
			log.FieldOperation, log.OpPublish,
			log.FieldError, err)
	}
}
