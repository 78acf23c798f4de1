// pkg/sim/eventstream.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/simhub-atc/simhub/pkg/log"
	"github.com/simhub-atc/simhub/pkg/wire"
)

// EventStream is the simulation's pub/sub bus: lifecycle notices
// (aircraft added and removed, controllers joining and signing off, chat
// traffic, plugin changes) are posted to it and delivered to whoever has
// subscribed. Events are buffered per stream, not per subscriber; each
// subscription tracks its own read offset and storage is reclaimed once
// every subscriber has consumed it.
type EventStream struct {
	mu          sync.Mutex
	events      []Event
	subscribers map[*EventsSubscription]interface{}
	lastPost    time.Time
	warnedLong  bool
	done        chan struct{}
	lg          *log.Logger
}

// EventsSubscription is one reader's position in the stream. Events
// posted before the subscription was created are never delivered to it.
type EventsSubscription struct {
	stream *EventStream
	// Index into the stream's event buffer up to which this subscriber
	// has consumed events.
	offset      int
	source      string
	lastGet     time.Time
	warnedNoGet bool
}

func NewEventStream(lg *log.Logger) *EventStream {
	es := &EventStream{
		subscribers: make(map[*EventsSubscription]interface{}),
		lastPost:    time.Now(),
		done:        make(chan struct{}),
		lg:          lg,
	}
	go es.monitor()
	return es
}

// Subscribe registers a new reader starting at the current end of the
// stream.
func (e *EventStream) Subscribe() *EventsSubscription {
	// Remember where the subscription came from; a subscriber that stops
	// consuming is otherwise painful to track down.
	_, fn, line, _ := runtime.Caller(1)

	e.mu.Lock()
	defer e.mu.Unlock()

	sub := &EventsSubscription{
		stream:  e,
		offset:  len(e.events),
		source:  fmt.Sprintf("%s:%d", fn, line),
		lastGet: time.Now(),
	}
	e.subscribers[sub] = nil
	return sub
}

// Post appends an event to the stream. With no subscribers the event is
// discarded immediately.
func (e *EventStream) Post(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lg.Debug("posted event", slog.Any("event", event))

	if len(e.subscribers) > 0 {
		e.lastPost = time.Now()
		e.events = append(e.events, event)
	}
}

// Get returns the events posted since the subscription's previous Get
// call.
func (e *EventsSubscription) Get() []Event {
	e.stream.mu.Lock()
	defer e.stream.mu.Unlock()

	if _, ok := e.stream.subscribers[e]; !ok {
		e.stream.lg.Errorf("Get() on an unregistered subscription: %+v", e)
		return nil
	}

	events := slices.Clone(e.stream.events[e.offset:])
	e.offset = len(e.stream.events)
	e.lastGet = time.Now()
	e.warnedNoGet = false
	return events
}

func (e *EventsSubscription) Unsubscribe() {
	e.stream.mu.Lock()
	defer e.stream.mu.Unlock()

	if _, ok := e.stream.subscribers[e]; !ok {
		e.stream.lg.Errorf("Unsubscribe() of an unregistered subscription: %+v", e)
	}
	delete(e.stream.subscribers, e)
	e.stream = nil
}

func (e *EventStream) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	close(e.done)
	clear(e.subscribers)
}

// monitor periodically compacts the buffer and complains about
// subscribers that have stopped consuming, since they pin stream storage
// indefinitely.
func (e *EventStream) monitor() {
	tick := time.Tick(5 * time.Second)

	for {
		<-tick

		select {
		case <-e.done:
			return
		default:
		}

		e.mu.Lock()

		e.compact()

		if len(e.events) > 1000 && !e.warnedLong {
			e.lg.Warn("Long EventStream", slog.Int("length", len(e.events)))
			e.warnedLong = true
		}

		// Only complain about idle subscribers while events are actually
		// flowing; a quiet stream has nothing to consume.
		if time.Since(e.lastPost) < 5*time.Second {
			for sub := range e.subscribers {
				if d := time.Since(sub.lastGet); d > 10*time.Second && !sub.warnedNoGet {
					e.lg.Warn("Subscriber has not called Get() recently",
						slog.Duration("duration", d), slog.Any("subscriber", sub))
					sub.warnedNoGet = true
				}
			}
		}

		e.mu.Unlock()
	}
}

// compact drops events every subscriber has consumed, but only once
// doing so reclaims at least half the buffer's capacity.
func (e *EventStream) compact() {
	minOffset := len(e.events)
	for sub := range e.subscribers {
		minOffset = min(minOffset, sub.offset)
	}

	if minOffset > cap(e.events)/2 {
		n := copy(e.events, e.events[minOffset:])
		e.events = e.events[:n]

		for sub := range e.subscribers {
			sub.offset -= minOffset
		}
		e.warnedLong = false
	}
}

func (e *EventStream) LogValue() slog.Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	items := []slog.Attr{slog.Int("len", len(e.events)), slog.Int("cap", cap(e.events))}
	if len(e.events) > 0 {
		items = append(items, slog.Any("last_element", e.events[len(e.events)-1]))
	}
	return slog.GroupValue(items...)
}

func (e *EventsSubscription) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("offset", e.offset),
		slog.String("source", e.source),
		slog.Time("last_get", e.lastGet))
}

///////////////////////////////////////////////////////////////////////////

type EventType int

const (
	AircraftAddedEvent EventType = iota
	AircraftRemovedEvent
	ControllerJoinedEvent
	ControllerSignedOffEvent
	TextMessageEvent
	ChannelMessageEvent
	StatusMessageEvent
	PluginsChangedEvent
)

func (t EventType) String() string {
	return []string{"AircraftAdded", "AircraftRemoved", "ControllerJoined",
		"ControllerSignedOff", "TextMessage", "ChannelMessage", "StatusMessage",
		"PluginsChanged"}[t]
}

// Event is deliberately a flat bag of fields; subscribers look at the
// ones their event types carry.
type Event struct {
	Type        EventType
	Aircraft    wire.GUID
	Controller  wire.GUID
	Callsign    string
	Frequency   wire.Frequency
	WrittenText string
}

func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("type", e.Type.String())}
	if e.Aircraft != (wire.GUID{}) {
		attrs = append(attrs, slog.String("aircraft", e.Aircraft.String()))
	}
	if e.Controller != (wire.GUID{}) {
		attrs = append(attrs, slog.String("controller", e.Controller.String()))
	}
	if e.Callsign != "" {
		attrs = append(attrs, slog.String("callsign", e.Callsign))
	}
	if e.WrittenText != "" {
		attrs = append(attrs, slog.String("written_text", e.WrittenText))
	}
	return slog.GroupValue(attrs...)
}
