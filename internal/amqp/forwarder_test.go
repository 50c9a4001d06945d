package amqp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fintrack/internal/events"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []events.Event
	err       error
}

func (p *fakePublisher) PublishEvent(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, e)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func TestForwarder_RelaysBusEventsInOrder(t *testing.T) {
	pub := &fakePublisher{}
	fwd := NewForwarder(pub, 8, nil)
	bus := events.NewBus(nil)
	fwd.Attach(bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fwd.Run(ctx) }()

	bus.Publish(ctx, events.TransactionsChanged{Action: events.ActionCreate, ID: "t1"})
	bus.Publish(ctx, events.AccountBalancesChanged{AccountIDs: []string{"a"}})

	deadline := time.Now().Add(2 * time.Second)
	for pub.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if pub.count() != 2 {
		t.Fatalf("published %d events, want 2", pub.count())
	}
	if pub.published[0].Kind() != events.KindTransactionsChanged || pub.published[1].Kind() != events.KindAccountBalancesChanged {
		t.Errorf("order = %v, %v", pub.published[0].Kind(), pub.published[1].Kind())
	}
}

func TestForwarder_DropsWhenFull(t *testing.T) {
	fwd := NewForwarder(&fakePublisher{}, 2, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		fwd.Enqueue(ctx, events.TransactionsChanged{Action: events.ActionDelete, ID: "t"})
	}
	if got := fwd.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
}

func TestForwarder_DrainsOnShutdown(t *testing.T) {
	pub := &fakePublisher{}
	fwd := NewForwarder(pub, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())

	fwd.Enqueue(ctx, events.TransactionsChanged{ID: "a"})
	fwd.Enqueue(ctx, events.TransactionsChanged{ID: "b"})
	cancel()

	if err := fwd.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if pub.count() != 2 {
		t.Errorf("published %d events on shutdown, want 2", pub.count())
	}
}

func TestForwarder_PublishErrorsAreSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	fwd := NewForwarder(pub, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())

	fwd.Enqueue(ctx, events.TransactionsChanged{ID: "a"})
	cancel()
	if err := fwd.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}
