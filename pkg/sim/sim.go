// pkg/sim/sim.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"slices"
	"sync"
	"time"

	"github.com/simhub-atc/simhub/pkg/log"
	"github.com/simhub-atc/simhub/pkg/wire"
)

// Sim is one authoritative simulation: the store, the instruction
// planner, and the policy for traffic arriving from the hub. It is also
// the handle plugins get: every mutation they make goes through the
// pending batch, so clients only ever observe committed state.
type Sim struct {
	lg          *log.Logger
	State       *State
	EventStream *EventStream
	planner     *Planner

	mu     sync.Mutex
	id     wire.GUID
	send   func([]byte) error
	onText []func(sender, recipient wire.GUID, message string)
}

func New(lg *log.Logger) *Sim {
	es := NewEventStream(lg)
	s := &Sim{
		lg:          lg,
		EventStream: es,
		State:       NewState(es, lg),
	}
	s.planner = NewPlanner(s.State, lg)
	return s
}

func (s *Sim) Planner() *Planner { return s.planner }

// SetLink installs the sim's identity and its path to the hub; both come
// from the server handshake. A nil send drops outbound frames, which is
// how tests run the engine unplugged.
func (s *Sim) SetLink(id wire.GUID, send func([]byte) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.send = send
}

func (s *Sim) ID() wire.GUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// OnTextMessage registers a callback for every chat frame the sim
// receives; the pump uses this to fan chat out to plugins.
func (s *Sim) OnTextMessage(cb func(sender, recipient wire.GUID, message string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onText = append(s.onText, cb)
}

func (s *Sim) sendMessage(m wire.Message) {
	b, err := wire.Encode(m)
	if err != nil {
		s.lg.Errorf("encoding %T: %v", m, err)
		return
	}

	s.mu.Lock()
	send := s.send
	s.mu.Unlock()
	if send == nil {
		return
	}
	if err := send(b); err != nil {
		s.lg.Warnf("sending %T: %v", m, err)
	}
}

///////////////////////////////////////////////////////////////////////////
// The server handle available to plugins.

// AddAircraft introduces an aircraft into the simulation and returns its
// identifier; the aircraft becomes visible at the next commit.
func (s *Sim) AddAircraft(ac wire.Aircraft) wire.GUID {
	if ac.ID == (wire.GUID{}) {
		ac.ID = wire.NewGUID()
	}
	if ac.Time.IsZero() {
		ac.Time = time.Now()
	}
	s.State.QueueUpdate(wire.FullAircraft(ac))
	return ac.ID
}

// UpdateAircraft schedules a delta against an existing aircraft; it
// reports false if no such aircraft is live.
func (s *Sim) UpdateAircraft(id wire.GUID, u wire.AircraftUpdate) bool {
	if _, ok := s.State.GetAircraft(id); !ok {
		return false
	}
	u.Aircraft = id
	s.State.QueueUpdate(u)
	return true
}

// RemoveAircraft schedules the aircraft's deletion; it reports false if
// no such aircraft is live.
func (s *Sim) RemoveAircraft(id wire.GUID) bool {
	if _, ok := s.State.GetAircraft(id); !ok {
		return false
	}
	s.State.QueueUpdate(wire.DeleteAircraft(id))
	return true
}

// RemoveAircraftByCallsign deletes every aircraft flying the callsign and
// returns their identifiers.
func (s *Sim) RemoveAircraftByCallsign(callsign string) []wire.GUID {
	var removed []wire.GUID
	for id := range s.State.GetAircraftByCallsign(callsign) {
		s.State.QueueUpdate(wire.DeleteAircraft(id))
		removed = append(removed, id)
	}
	return removed
}

func (s *Sim) GetAircraftByCallsign(callsign string) map[wire.GUID]wire.Aircraft {
	return s.State.GetAircraftByCallsign(callsign)
}

func (s *Sim) Aircraft() map[wire.GUID]wire.Aircraft {
	return s.State.Aircraft()
}

func (s *Sim) Controllers() map[wire.GUID]wire.Controller {
	return s.State.Controllers()
}

func (s *Sim) SendTextMessage(from, to wire.GUID, message string) {
	s.sendMessage(wire.TextMessage{From: from, To: to, Message: message})
	s.EventStream.Post(Event{Type: TextMessageEvent, Controller: to, WrittenText: message})
}

func (s *Sim) SendChannelMessage(frequency wire.Frequency, message string) {
	s.sendMessage(wire.ChannelMessage{From: s.ID(), Frequency: frequency, Message: message})
	s.EventStream.Post(Event{Type: ChannelMessageEvent, Frequency: frequency, WrittenText: message})
}

// AssignRoute hands the aircraft a fresh instruction queue.
func (s *Sim) AssignRoute(id wire.GUID, instructions []Instruction) {
	s.planner.AssignRoute(id, instructions)
}

///////////////////////////////////////////////////////////////////////////
// Inbound traffic and periodic publication.

// HandleRawFrame is called for every text frame relayed from the hub.
// Clients may send controller updates, chat, and kill requests; aircraft
// and authoritative updates only ever flow the other way, so inbound ones
// are logged and dropped.
func (s *Sim) HandleRawFrame(b []byte, now time.Time) {
	msg, err := wire.Decode(b)
	if err != nil {
		s.lg.Warnf("dropping malformed frame: %v", err)
		return
	}

	switch m := msg.(type) {
	case wire.ControllerUpdate:
		joined, err := s.State.ApplyControllerUpdate(m, now)
		if err != nil {
			s.lg.Warnf("%s: controller update: %v", m.Controller, err)
			return
		}
		if joined {
			// A newly announced controller gets the full picture right
			// away rather than waiting out the resync period.
			s.sendMessage(s.State.AuthoritativeUpdate(m.Controller))
		}

	case wire.TextMessage:
		s.State.HeardFrom(m.From, now)
		s.EventStream.Post(Event{Type: TextMessageEvent, Controller: m.From, WrittenText: m.Message})
		s.dispatchText(m.From, m.To, m.Message)

	case wire.ChannelMessage:
		s.State.HeardFrom(m.From, now)
		s.EventStream.Post(Event{Type: ChannelMessageEvent, Controller: m.From,
			Frequency: m.Frequency, WrittenText: m.Message})
		txt := m.Text()
		s.dispatchText(txt.From, txt.To, txt.Message)

	case wire.KillMessage:
		s.State.QueueUpdate(wire.DeleteAircraft(m.Victim))

	case wire.AircraftUpdate, wire.AuthoritativeUpdate:
		s.lg.Warnf("dropping inbound %T: %v", m, ErrInvalidMessage)

	case wire.NetworkMessage:
		// Unknown or untagged frame; accepted and dropped.
		s.lg.Debugf("dropping base message frame")
	}
}

func (s *Sim) dispatchText(sender, recipient wire.GUID, message string) {
	s.mu.Lock()
	callbacks := slices.Clone(s.onText)
	s.mu.Unlock()
	for _, cb := range callbacks {
		cb(sender, recipient, message)
	}
}

// CommitAndPublish drains the pending batch and sends one update per
// changed aircraft to the hub, which fans them out to every client.
func (s *Sim) CommitAndPublish(now time.Time) []wire.AircraftUpdate {
	updates := s.State.CommitBatch(now)
	for _, u := range updates {
		s.sendMessage(u)
	}
	return updates
}

// Resync sends every controller a complete snapshot.
func (s *Sim) Resync() {
	for id := range s.State.Controllers() {
		s.sendMessage(s.State.AuthoritativeUpdate(id))
	}
}

// SweepStaleControllers drops controllers that have gone silent.
func (s *Sim) SweepStaleControllers(now time.Time) {
	s.State.SweepStaleControllers(now, staleControllerWarning, staleControllerSignOff)
}

const (
	staleControllerWarning = 15 * time.Second
	staleControllerSignOff = time.Minute
)
