// pkg/wire/delta.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wire

import "slices"

// Fields is the bitmask naming which slots of a delta are present.
type Fields uint8

const (
	FieldNone     Fields = 0
	FieldDelete   Fields = 1 << 0
	FieldMetadata Fields = 1 << 1
	FieldState    Fields = 1 << 2
	FieldMovement Fields = 1 << 3
)

func (f Fields) Has(g Fields) bool { return f&g != 0 }

///////////////////////////////////////////////////////////////////////////
// AircraftUpdate

// AircraftUpdate is a sparse delta against one aircraft: a field bitmask
// plus nullable slots for the fields it carries.
type AircraftUpdate struct {
	Aircraft GUID              `json:"aircraft"`
	Update   Fields            `json:"update"`
	Metadata *AircraftMetadata `json:"metadata,omitempty"`
	State    *AircraftState    `json:"state,omitempty"`
	Motion   *AircraftMotion   `json:"motion,omitempty"`
}

func DeleteAircraft(id GUID) AircraftUpdate {
	return AircraftUpdate{Aircraft: id, Update: FieldDelete}
}

// Merge composes two deltas for the same aircraft; the result applied to
// an entity is equivalent to applying u then v. A Delete on the right
// wipes the merge down to a pure delete; a Delete on the left is replaced
// wholesale by the right (the identifier is preserved); otherwise the
// right's present fields overwrite the left's. Merge is associative along
// a left-to-right sequence.
func (u AircraftUpdate) Merge(v AircraftUpdate) AircraftUpdate {
	if v.Update.Has(FieldDelete) {
		return DeleteAircraft(u.Aircraft)
	}
	if u.Update.Has(FieldDelete) {
		v.Aircraft = u.Aircraft
		return v
	}

	if v.Update.Has(FieldMetadata) {
		u.Metadata = v.Metadata
	}
	if v.Update.Has(FieldState) {
		u.State = v.State
	}
	if v.Update.Has(FieldMovement) {
		u.Motion = v.Motion
	}
	u.Update |= v.Update
	return u
}

// Apply writes the delta's present fields through to the aircraft.
// Applying a Delete to a live entity is a programming error, not a state
// transition; deletion is the store's job.
func (u AircraftUpdate) Apply(ac *Aircraft) error {
	if u.Update.Has(FieldDelete) {
		return ErrDeleteAppliedToEntity
	}
	if ac.ID != u.Aircraft {
		return ErrUpdateIDMismatch
	}

	if u.Update.Has(FieldMetadata) && u.Metadata != nil {
		ac.Metadata = *u.Metadata
	}
	if u.Update.Has(FieldState) && u.State != nil {
		ac.State = *u.State
	}
	if u.Update.Has(FieldMovement) && u.Motion != nil {
		ac.Motion = *u.Motion
	}
	return nil
}

// DiffAircraft returns the delta carrying exactly the fields in which the
// two snapshots differ.
func DiffAircraft(from, to Aircraft) AircraftUpdate {
	u := AircraftUpdate{Aircraft: to.ID}
	if from.Metadata != to.Metadata {
		m := to.Metadata
		u.Metadata, u.Update = &m, u.Update|FieldMetadata
	}
	if from.State != to.State {
		s := to.State
		u.State, u.Update = &s, u.Update|FieldState
	}
	if from.Motion != to.Motion {
		m := to.Motion
		u.Motion, u.Update = &m, u.Update|FieldMovement
	}
	return u
}

// FullAircraft returns the delta that rebuilds the aircraft from nothing;
// it is what authoritative snapshots are made of.
func FullAircraft(ac Aircraft) AircraftUpdate {
	m, s, mo := ac.Metadata, ac.State, ac.Motion
	return AircraftUpdate{
		Aircraft: ac.ID,
		Update:   FieldMetadata | FieldState | FieldMovement,
		Metadata: &m,
		State:    &s,
		Motion:   &mo,
	}
}

///////////////////////////////////////////////////////////////////////////
// ControllerUpdate

type ControllerUpdate struct {
	Controller GUID                `json:"controller"`
	Update     Fields              `json:"update"`
	Metadata   *ControllerMetadata `json:"metadata,omitempty"`
	State      *ControllerState    `json:"state,omitempty"`
}

func DeleteController(id GUID) ControllerUpdate {
	return ControllerUpdate{Controller: id, Update: FieldDelete}
}

func (u ControllerUpdate) Merge(v ControllerUpdate) ControllerUpdate {
	if v.Update.Has(FieldDelete) {
		return DeleteController(u.Controller)
	}
	if u.Update.Has(FieldDelete) {
		v.Controller = u.Controller
		return v
	}

	if v.Update.Has(FieldMetadata) {
		u.Metadata = v.Metadata
	}
	if v.Update.Has(FieldState) {
		u.State = v.State
	}
	u.Update |= v.Update
	return u
}

func (u ControllerUpdate) Apply(ctrl *Controller) error {
	if u.Update.Has(FieldDelete) {
		return ErrDeleteAppliedToEntity
	}
	if ctrl.ID != u.Controller {
		return ErrUpdateIDMismatch
	}

	if u.Update.Has(FieldMetadata) && u.Metadata != nil {
		ctrl.Metadata = *u.Metadata
	}
	if u.Update.Has(FieldState) && u.State != nil {
		ctrl.State = *u.State
	}
	return nil
}

func DiffController(from, to Controller) ControllerUpdate {
	u := ControllerUpdate{Controller: to.ID}
	if from.Metadata != to.Metadata {
		m := to.Metadata
		u.Metadata, u.Update = &m, u.Update|FieldMetadata
	}
	if !slices.Equal(from.State.RadarAntennae, to.State.RadarAntennae) {
		s := to.State
		u.State, u.Update = &s, u.Update|FieldState
	}
	return u
}

func FullController(ctrl Controller) ControllerUpdate {
	m, s := ctrl.Metadata, ctrl.State
	return ControllerUpdate{
		Controller: ctrl.ID,
		Update:     FieldMetadata | FieldState,
		Metadata:   &m,
		State:      &s,
	}
}
