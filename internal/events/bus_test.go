package events

import (
	"sync"
	"testing"
	"time"
)

func TestPublishDeliversInPriorityOrder(t *testing.T) {
	b := NewBus()
	b.Start()
	defer b.Stop()

	var mu sync.Mutex
	var order []string

	done := make(chan struct{})
	count := 0
	b.Subscribe(TypeCustom, func(ev Event) {
		mu.Lock()
		order = append(order, ev.Source)
		count++
		if count == 3 {
			close(done)
		}
		mu.Unlock()
	}, PriorityNormal, false)

	// publish LOW, then CRITICAL, then HIGH in that order; CRITICAL should be
	// delivered first among anything still queued behind it.
	b.Publish(Event{Type: TypeCustom, Priority: PriorityLow, Source: "low"})
	b.Publish(Event{Type: TypeCustom, Priority: PriorityCritical, Source: "critical"})
	b.Publish(Event{Type: TypeCustom, Priority: PriorityHigh, Source: "high"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "critical" {
		t.Fatalf("delivery order = %v, want critical first", order)
	}
}

func TestDeliversToHighPrioritySubscriberBeforeNormal(t *testing.T) {
	b := NewBus()
	b.Start()
	defer b.Stop()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	b.Subscribe(TypeOrder, func(Event) {
		mu.Lock()
		order = append(order, "normal")
		mu.Unlock()
		close(done)
	}, PriorityNormal, false)
	b.Subscribe(TypeOrder, func(Event) {
		mu.Lock()
		order = append(order, "high")
		mu.Unlock()
	}, PriorityHigh, false)

	b.Publish(Event{Type: TypeOrder})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "high" || order[1] != "normal" {
		t.Fatalf("delivery order = %v, want [high normal]", order)
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBus()
	b.Start()
	defer b.Stop()

	hits := make(chan struct{}, 10)
	id := b.Subscribe(TypeOrder, func(Event) { hits <- struct{}{} }, PriorityNormal, false)

	b.Publish(Event{Type: TypeOrder, Source: "1"})
	select {
	case <-hits:
	case <-time.After(time.Second):
		t.Fatal("expected delivery before unsubscribe")
	}

	if !b.Unsubscribe(id) {
		t.Fatal("Unsubscribe should succeed for a known id")
	}
	if b.Unsubscribe(id) {
		t.Fatal("Unsubscribe should fail the second time")
	}

	b.Publish(Event{Type: TypeOrder, Source: "2"})
	select {
	case <-hits:
		t.Fatal("should not receive events after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWildcardSubscriptionSeesEverything(t *testing.T) {
	b := NewBus()
	b.Start()
	defer b.Stop()

	seen := make(chan Type, 10)
	b.Subscribe(Wildcard, func(ev Event) { seen <- ev.Type }, PriorityNormal, false)

	b.Publish(Event{Type: TypeOrder})
	b.Publish(Event{Type: TypeFill})

	got := map[Type]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ty := <-seen:
			got[ty] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for wildcard delivery")
		}
	}
	if !got[TypeOrder] || !got[TypeFill] {
		t.Fatalf("wildcard subscriber missed events: %v", got)
	}
}

func TestAsyncHandlerDoesNotBlockDispatch(t *testing.T) {
	b := NewBus()
	b.Start()
	defer b.Stop()

	release := make(chan struct{})
	b.Subscribe(TypeCustom, func(Event) { <-release }, PriorityNormal, true)

	fast := make(chan struct{})
	b.Subscribe(TypeOrder, func(Event) { close(fast) }, PriorityNormal, false)

	b.Publish(Event{Type: TypeCustom})
	b.Publish(Event{Type: TypeOrder})

	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("async handler blocked dispatch of a later, unrelated event")
	}
	close(release)
}

func TestPublishRejectedAfterStop(t *testing.T) {
	b := NewBus()
	b.Start()
	b.Stop()

	if id := b.Publish(Event{Type: TypeOrder}); id != "" {
		t.Fatalf("Publish after Stop returned id %q, want empty", id)
	}
}

func TestPanickingHandlerCountsAsFailedButDoesNotStopBus(t *testing.T) {
	b := NewBus()
	b.Start()
	defer b.Stop()

	ok := make(chan struct{})
	b.Subscribe(TypeOrder, func(Event) { panic("boom") }, PriorityNormal, false)
	b.Subscribe(TypeFill, func(Event) { close(ok) }, PriorityNormal, false)

	b.Publish(Event{Type: TypeOrder})
	b.Publish(Event{Type: TypeFill})

	select {
	case <-ok:
	case <-time.After(time.Second):
		t.Fatal("bus stalled after a handler panic")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if b.Stats().EventsFailed >= 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected EventsFailed >= 1 after a panicking handler")
}

func TestRecentEventRetained(t *testing.T) {
	b := NewBus()
	b.Start()
	defer b.Stop()

	id := b.Publish(Event{Type: TypeOrder, Source: "x"})
	if id == "" {
		t.Fatal("expected a non-empty event id")
	}

	ev, ok := b.RecentEvent(id)
	if !ok || ev.Source != "x" {
		t.Fatalf("RecentEvent(%q) = %v, %v", id, ev, ok)
	}
}
