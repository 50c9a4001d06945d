package events

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/log"
)

// Handler receives any event.
type Handler func(ctx context.Context, e Event)

// Bus fans events out to subscribers. Handlers run on the publisher's
// goroutine in registration order; a panicking handler is logged and does
// not affect the others.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	all      []Handler
	logger   *log.Logger
}

func NewBus(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Discard()
	}
	return &Bus{
		handlers: make(map[Kind][]Handler),
		logger:   logger.WithComponent(log.ComponentEvents),
	}
}

// Subscribe registers fn for events of type E only.
func Subscribe[E Event](b *Bus, fn func(ctx context.Context, e E)) {
	var zero E
	kind := zero.Kind()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], func(ctx context.Context, e Event) {
		if typed, ok := e.(E); ok {
			fn(ctx, typed)
		}
	})
}

// SubscribeAll registers fn for every event kind.
func (b *Bus) SubscribeAll(fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, fn)
}

// Publish delivers e to the handlers of its kind, then to catch-all handlers.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if b == nil || e == nil {
		return
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[e.Kind()])+len(b.all))
	handlers = append(handlers, b.handlers[e.Kind()]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ctx, h, e)
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "Event handler panicked",
				log.FieldEventKind, e.Kind(),
				log.FieldError, fmt.Sprint(r))
		}
	}()
	h(ctx, e)
}
