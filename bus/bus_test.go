package bus

import (
	"fmt"
	"testing"
	"time"
)

func recv(t *testing.T, sub *Subscription) *Message {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func expectNone(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case m := <-sub.Channel():
		t.Fatalf("unexpected message on %v: %v", m.Topic, m.Payload)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBasicPubSub(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(Topic{"pdsink", "main", "telemetry"})
	conn.Publish(conn.NewMessage(Topic{"pdsink", "main", "telemetry"}, "hello", false))

	if got := recv(t, sub); got.Payload.(string) != "hello" {
		t.Errorf("payload = %v", got.Payload)
	}

	// Different topic, no delivery.
	conn.Publish(conn.NewMessage(Topic{"pdsink", "main", "profiles"}, "other", false))
	expectNone(t, sub)
}

func TestRetained(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("svc")

	conn.Publish(conn.NewMessage(Topic{"pdsink", "main", "profiles"}, 42, true))

	// Late subscriber sees the retained value.
	late := b.NewConnection("late")
	sub := late.Subscribe(Topic{"pdsink", "main", "profiles"})
	if got := recv(t, sub); got.Payload.(int) != 42 {
		t.Errorf("retained payload = %v", got.Payload)
	}

	// Nil payload clears the slot.
	conn.Publish(&Message{Topic: Topic{"pdsink", "main", "profiles"}, Payload: nil, Retained: true})
	sub2 := late.Subscribe(Topic{"pdsink", "main", "profiles"})
	expectNone(t, sub2)
}

func TestWildcard(t *testing.T) {
	b := NewBus(4)
	svc := b.NewConnection("svc")
	mon := b.NewConnection("mon")

	sub := mon.Subscribe(Topic{"pdsink", Wildcard, "telemetry"})

	svc.Publish(svc.NewMessage(Topic{"pdsink", "a", "telemetry"}, "a", false))
	svc.Publish(svc.NewMessage(Topic{"pdsink", "b", "telemetry"}, "b", false))
	svc.Publish(svc.NewMessage(Topic{"pdsink", "a", "profiles"}, "no", false))

	if got := recv(t, sub); got.Payload.(string) != "a" {
		t.Errorf("first = %v", got.Payload)
	}
	if got := recv(t, sub); got.Payload.(string) != "b" {
		t.Errorf("second = %v", got.Payload)
	}
	expectNone(t, sub)
}

func TestWildcardRetainedReplay(t *testing.T) {
	b := NewBus(4)
	svc := b.NewConnection("svc")

	svc.Publish(svc.NewMessage(Topic{"pdsink", "a", "profiles"}, "a", true))
	svc.Publish(svc.NewMessage(Topic{"pdsink", "b", "profiles"}, "b", true))

	sub := b.NewConnection("mon").Subscribe(Topic{"pdsink", Wildcard, "profiles"})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[recv(t, sub).Payload.(string)] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("replayed = %v", seen)
	}
}

func TestDropOldest(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")
	sub := conn.Subscribe(Topic{"t"})

	for i := 0; i < 5; i++ {
		conn.Publish(conn.NewMessage(Topic{"t"}, i, false))
	}

	// Queue holds the newest two.
	if got := recv(t, sub); got.Payload.(int) != 3 {
		t.Errorf("first = %v", got.Payload)
	}
	if got := recv(t, sub); got.Payload.(int) != 4 {
		t.Errorf("second = %v", got.Payload)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(Topic{"pdsink", "main", "telemetry"})
	sub.Unsubscribe()

	conn.Publish(conn.NewMessage(Topic{"pdsink", "main", "telemetry"}, "x", false))
	if _, ok := <-sub.Channel(); ok {
		t.Error("channel still open after unsubscribe")
	}
}

func TestDisconnectClosesAll(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	var subs []*Subscription
	for i := 0; i < 3; i++ {
		subs = append(subs, conn.Subscribe(Topic{"t", fmt.Sprint(i)}))
	}
	conn.Disconnect()

	for _, sub := range subs {
		if _, ok := <-sub.Channel(); ok {
			t.Error("channel still open after disconnect")
		}
	}
}

func TestTopicHelpers(t *testing.T) {
	top := ParseTopic("pdsink/main/request")
	if !top.Equal(Topic{"pdsink", "main", "request"}) {
		t.Errorf("ParseTopic = %v", top)
	}
	if top.String() != "pdsink/main/request" {
		t.Errorf("String = %q", top.String())
	}
	if top.Equal(Topic{"pdsink", "main"}) {
		t.Error("Equal matched different lengths")
	}
}
