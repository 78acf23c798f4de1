// pkg/sim/eventstream_test.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"testing"

	"github.com/simhub-atc/simhub/pkg/wire"
)

func TestEventStreamDelivery(t *testing.T) {
	es := NewEventStream(nil)
	defer es.Destroy()

	// No subscribers yet, so this one vanishes.
	es.Post(Event{Type: StatusMessageEvent, WrittenText: "before"})

	sub := es.Subscribe()
	defer sub.Unsubscribe()

	es.Post(Event{Type: AircraftAddedEvent, Callsign: "AAL42"})
	es.Post(Event{Type: AircraftRemovedEvent, Callsign: "AAL42"})

	events := sub.Get()
	if len(events) != 2 {
		t.Fatalf("got %d events, expected 2: %+v", len(events), events)
	}
	if events[0].Type != AircraftAddedEvent || events[1].Type != AircraftRemovedEvent {
		t.Errorf("events out of order: %+v", events)
	}

	if again := sub.Get(); len(again) != 0 {
		t.Errorf("second Get returned %d events", len(again))
	}
}

func TestEventStreamIndependentSubscribers(t *testing.T) {
	es := NewEventStream(nil)
	defer es.Destroy()

	a := es.Subscribe()
	es.Post(Event{Type: ControllerJoinedEvent, Controller: wire.NewGUID()})

	// b joins after the first event, so it only ever sees the second.
	b := es.Subscribe()
	es.Post(Event{Type: ControllerSignedOffEvent, Controller: wire.NewGUID()})

	if got := a.Get(); len(got) != 2 {
		t.Errorf("first subscriber got %d events, expected 2", len(got))
	}
	if got := b.Get(); len(got) != 1 || got[0].Type != ControllerSignedOffEvent {
		t.Errorf("late subscriber got %+v", got)
	}

	a.Unsubscribe()
	b.Unsubscribe()
}

func TestEventStreamCompact(t *testing.T) {
	es := NewEventStream(nil)
	defer es.Destroy()

	sub := es.Subscribe()
	defer sub.Unsubscribe()

	for i := 0; i < 100; i++ {
		es.Post(Event{Type: StatusMessageEvent})
	}
	if got := sub.Get(); len(got) != 100 {
		t.Fatalf("got %d events", len(got))
	}

	es.mu.Lock()
	es.compact()
	length, offset := len(es.events), sub.offset
	es.mu.Unlock()

	if length != 0 || offset != 0 {
		t.Errorf("after compaction len %d offset %d", length, offset)
	}

	// The stream keeps working after compaction.
	es.Post(Event{Type: PluginsChangedEvent, Callsign: "bridge:demo"})
	if got := sub.Get(); len(got) != 1 {
		t.Errorf("post-compaction delivery broken: %+v", got)
	}
}
