// pkg/sim/state.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"sort"
	"time"

	"github.com/simhub-atc/simhub/pkg/log"
	"github.com/simhub-atc/simhub/pkg/util"
	"github.com/simhub-atc/simhub/pkg/wire"

	"github.com/brunoga/deep"
)

// State is the authoritative store of one server process: aircraft and
// controllers keyed by identifier. Aircraft mutations do not land
// directly; they accumulate in a pending delta table, coalesced per
// aircraft with the delta-merge operator, and take effect when
// CommitBatch drains the table. Controller updates are applied
// immediately since they arrive one per client and carry no motion.
type State struct {
	lg *log.Logger
	mu util.LoggingMutex

	aircraft    map[wire.GUID]wire.Aircraft
	controllers map[wire.GUID]wire.Controller
	pending     map[wire.GUID]wire.AircraftUpdate

	lastHeard map[wire.GUID]time.Time
	warned    map[wire.GUID]interface{}

	eventStream *EventStream
}

func NewState(es *EventStream, lg *log.Logger) *State {
	return &State{
		lg:          lg,
		aircraft:    make(map[wire.GUID]wire.Aircraft),
		controllers: make(map[wire.GUID]wire.Controller),
		pending:     make(map[wire.GUID]wire.AircraftUpdate),
		lastHeard:   make(map[wire.GUID]time.Time),
		warned:      make(map[wire.GUID]interface{}),
		eventStream: es,
	}
}

// QueueUpdate schedules an aircraft delta for the next commit, merging it
// with whatever is already pending for that aircraft.
func (s *State) QueueUpdate(u wire.AircraftUpdate) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	if prev, ok := s.pending[u.Aircraft]; ok {
		u = prev.Merge(u)
	}
	s.pending[u.Aircraft] = u
}

// CommitBatch advances every live aircraft to now, drains the pending
// delta table into the store, and returns one update per changed
// aircraft. Merging the returned updates left to right yields exactly the
// difference between the store before and after the commit; deleted
// aircraft are removed and their delete delta is included.
func (s *State) CommitBatch(now time.Time) []wire.AircraftUpdate {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	prev := make(map[wire.GUID]wire.Aircraft, len(s.aircraft))
	for id, ac := range s.aircraft {
		prev[id] = ac
		s.aircraft[id] = ac.Extrapolate(now)
	}

	pending := s.pending
	s.pending = make(map[wire.GUID]wire.AircraftUpdate)
	for id, d := range pending {
		if d.Update.Has(wire.FieldDelete) {
			delete(s.aircraft, id)
			continue
		}
		ac, ok := s.aircraft[id]
		if !ok {
			ac = wire.Aircraft{ID: id}
		}
		ac.Time = now
		if err := d.Apply(&ac); err != nil {
			s.lg.Errorf("%s: applying pending delta: %v", id, err)
			continue
		}
		s.aircraft[id] = ac
	}

	// Emission order is deterministic: ascending by identifier string.
	ids := make(map[string]wire.GUID, len(prev))
	for id := range prev {
		ids[id.String()] = id
	}
	for id := range s.aircraft {
		ids[id.String()] = id
	}

	var updates []wire.AircraftUpdate
	for _, key := range util.SortedMapKeys(ids) {
		id := ids[key]
		pa, inPrev := prev[id]
		na, inNext := s.aircraft[id]
		switch {
		case !inNext:
			updates = append(updates, wire.DeleteAircraft(id))
			s.eventStream.Post(Event{Type: AircraftRemovedEvent, Aircraft: id,
				Callsign: pa.Metadata.Callsign})
		case !inPrev:
			updates = append(updates, wire.FullAircraft(na))
			s.eventStream.Post(Event{Type: AircraftAddedEvent, Aircraft: id,
				Callsign: na.Metadata.Callsign})
		default:
			if d := wire.DiffAircraft(pa, na); d.Update != wire.FieldNone {
				updates = append(updates, d)
			}
		}
	}
	return updates
}

// ApplyControllerUpdate applies an inbound controller delta immediately.
// An update for an unknown controller creates it (that is how a client
// announces itself); the returned flag reports that case so the caller
// can trigger an immediate authoritative resync.
func (s *State) ApplyControllerUpdate(u wire.ControllerUpdate, now time.Time) (joined bool, err error) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	if u.Update.Has(wire.FieldDelete) {
		ctrl, ok := s.controllers[u.Controller]
		if !ok {
			return false, ErrUnknownController
		}
		delete(s.controllers, u.Controller)
		delete(s.lastHeard, u.Controller)
		delete(s.warned, u.Controller)
		s.eventStream.Post(Event{Type: ControllerSignedOffEvent, Controller: u.Controller,
			Callsign: ctrl.Metadata.Callsign()})
		return false, nil
	}

	ctrl, ok := s.controllers[u.Controller]
	if !ok {
		ctrl = wire.Controller{ID: u.Controller}
	}
	ctrl.Time = now
	if err := u.Apply(&ctrl); err != nil {
		return false, err
	}
	s.controllers[u.Controller] = ctrl
	s.lastHeard[u.Controller] = now
	delete(s.warned, u.Controller)

	if !ok {
		s.eventStream.Post(Event{Type: ControllerJoinedEvent, Controller: u.Controller,
			Callsign: ctrl.Metadata.Callsign()})
	}
	return !ok, nil
}

// HeardFrom refreshes a controller's liveness clock.
func (s *State) HeardFrom(id wire.GUID, now time.Time) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	if _, ok := s.controllers[id]; ok {
		s.lastHeard[id] = now
		delete(s.warned, id)
	}
}

// SweepStaleControllers warns about controllers that have gone quiet and
// signs off the ones silent past the drop threshold, returning their ids.
func (s *State) SweepStaleControllers(now time.Time, warnAfter, dropAfter time.Duration) []wire.GUID {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	var dropped []wire.GUID
	for id, ctrl := range s.controllers {
		silent := now.Sub(s.lastHeard[id])
		if silent > dropAfter {
			s.lg.Infof("%s: signing off silent controller %s", id, ctrl.Metadata.Callsign())
			delete(s.controllers, id)
			delete(s.lastHeard, id)
			delete(s.warned, id)
			dropped = append(dropped, id)
			s.eventStream.Post(Event{Type: ControllerSignedOffEvent, Controller: id,
				Callsign: ctrl.Metadata.Callsign()})
		} else if silent > warnAfter {
			if _, ok := s.warned[id]; !ok {
				s.lg.Warnf("%s: no traffic from controller %s for %v", id,
					ctrl.Metadata.Callsign(), silent.Round(time.Second))
				s.warned[id] = nil
			}
		}
	}
	return dropped
}

// Aircraft returns a snapshot of the live aircraft.
func (s *State) Aircraft() map[wire.GUID]wire.Aircraft {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return util.DuplicateMap(s.aircraft)
}

// Controllers returns a deep-copied snapshot of the signed-in
// controllers; the radar antennae slices are not shared with the store.
func (s *State) Controllers() map[wire.GUID]wire.Controller {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return deep.MustCopy(s.controllers)
}

// CreationPending reports whether the aircraft has a queued non-delete
// delta that has not yet committed. Routes assigned right after
// AddAircraft must survive until the creating commit lands.
func (s *State) CreationPending(id wire.GUID) bool {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	d, ok := s.pending[id]
	return ok && !d.Update.Has(wire.FieldDelete)
}

func (s *State) GetAircraft(id wire.GUID) (wire.Aircraft, bool) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	ac, ok := s.aircraft[id]
	return ac, ok
}

func (s *State) GetAircraftByCallsign(callsign string) map[wire.GUID]wire.Aircraft {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return util.FilterMap(s.aircraft, func(_ wire.GUID, ac wire.Aircraft) bool {
		return ac.Metadata.Callsign == callsign
	})
}

// AuthoritativeUpdate assembles the complete snapshot for one recipient.
func (s *State) AuthoritativeUpdate(recipient wire.GUID) wire.AuthoritativeUpdate {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	u := wire.AuthoritativeUpdate{Recipient: recipient}
	for _, ctrl := range s.controllers {
		u.Controllers = append(u.Controllers, wire.FullController(deep.MustCopy(ctrl)))
	}
	for _, ac := range s.aircraft {
		u.Aircraft = append(u.Aircraft, wire.FullAircraft(ac))
	}
	sort.Slice(u.Controllers, func(i, j int) bool {
		return u.Controllers[i].Controller.String() < u.Controllers[j].Controller.String()
	})
	sort.Slice(u.Aircraft, func(i, j int) bool {
		return u.Aircraft[i].Aircraft.String() < u.Aircraft[j].Aircraft.String()
	})
	return u
}
