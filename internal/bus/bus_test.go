package bus

import (
	"testing"
	"time"
)

func TestQueueDropsOldestNeverNewest(t *testing.T) {
	b := New(3, nil)
	for i := 0; i < 5; i++ {
		b.Publish("pocsag", Event{Type: EventMessage, Payload: map[string]any{"i": i}})
	}
	length, dropped := b.QueueStats("pocsag")
	if length > 3 {
		t.Fatalf("queue length %d exceeds capacity 3", length)
	}
	if dropped != 2 {
		t.Fatalf("expected 2 drops, got %d", dropped)
	}
	head, ok := b.queueFor("pocsag").PopWithTimeout(time.Second)
	if !ok || head.Payload["i"] != 2 {
		t.Fatalf("expected oldest surviving event i=2, got %v", head.Payload)
	}
}

func TestSubscriberReceivesPublishedEvents(t *testing.T) {
	b := New(10, nil)
	sub := b.Subscribe("ais")
	defer sub.Close()

	b.Publish("ais", Event{Type: EventVessel, Payload: map[string]any{"mmsi": "123"}})

	ev, ok := sub.Next(time.Second)
	if !ok {
		t.Fatalf("expected an event")
	}
	if ev.Type != EventVessel {
		t.Fatalf("expected vessel event, got %s", ev.Type)
	}
}

func TestSinksNeverSeeKeepaliveOrPing(t *testing.T) {
	b := New(10, nil)
	var seen []EventType
	b.AddSink(SinkFunc(func(ev Event) error {
		seen = append(seen, ev.Type)
		return nil
	}))

	b.Publish("dsc", Event{Type: EventKeepalive})
	b.Publish("dsc", Event{Type: EventPing})
	b.Publish("dsc", Event{Type: EventMessage})

	if len(seen) != 1 || seen[0] != EventMessage {
		t.Fatalf("expected only the message event to reach sinks, got %v", seen)
	}
}

func TestSinkPanicDoesNotBreakPublish(t *testing.T) {
	b := New(10, nil)
	b.AddSink(SinkFunc(func(ev Event) error {
		panic("boom")
	}))

	// Must not panic the caller.
	b.Publish("dmr", Event{Type: EventMessage})
}

func TestSubscribeTimeoutReturnsNotOK(t *testing.T) {
	b := New(10, nil)
	sub := b.Subscribe("rtlamr")
	defer sub.Close()

	_, ok := sub.Next(50 * time.Millisecond)
	if ok {
		t.Fatalf("expected timeout with no events published")
	}
}
