// pkg/wire/delta_test.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wire

import (
	"testing"
	"time"

	"github.com/simhub-atc/simhub/pkg/math"
)

func sampleAircraft() Aircraft {
	return Aircraft{
		ID:   NewGUID(),
		Time: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Metadata: AircraftMetadata{
			Callsign:    "DAL123",
			Origin:      "KJFK",
			Destination: "KLAX",
			Rules:       FlightRulesIFR,
			Type:        "B738",
			Route:       "GREKI JUDDS",
		},
		State: AircraftState{
			Heading:  270,
			Altitude: 24000,
			Position: math.LatLong{Latitude: 40.6413, Longitude: -73.7781},
			Squawk:   Transponder{Code: 0o2345, Mode: TransponderAltitude},
		},
		Motion: AircraftMotion{Speed: 420, ClimbRate: 1500},
	}
}

func TestDiffApplyRoundTrip(t *testing.T) {
	a := sampleAircraft()
	b := a
	b.State.Heading = 90
	b.State.Altitude = 25000
	b.Motion.ClimbRate = 0
	b.Metadata.Remarks = "NORDO"

	d := DiffAircraft(a, b)
	if !d.Update.Has(FieldMetadata) || !d.Update.Has(FieldState) || !d.Update.Has(FieldMovement) {
		t.Errorf("diff missing fields: %b", d.Update)
	}

	got := a
	if err := d.Apply(&got); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got != b {
		t.Errorf("diff(a,b) applied to a: got %+v, expected %+v", got, b)
	}
}

func TestDiffIdentical(t *testing.T) {
	a := sampleAircraft()
	if d := DiffAircraft(a, a); d.Update != FieldNone {
		t.Errorf("diff(a,a) should have empty bitmask, got %b", d.Update)
	}
}

func TestMergeAssociative(t *testing.T) {
	id := NewGUID()
	meta := &AircraftMetadata{Callsign: "UAL1"}
	st := &AircraftState{Heading: 45}
	mo := &AircraftMotion{Speed: 250}

	d1 := AircraftUpdate{Aircraft: id, Update: FieldMetadata, Metadata: meta}
	d2 := AircraftUpdate{Aircraft: id, Update: FieldState, State: st}
	d3 := AircraftUpdate{Aircraft: id, Update: FieldState | FieldMovement,
		State: &AircraftState{Heading: 90}, Motion: mo}

	left := d1.Merge(d2).Merge(d3)
	right := d1.Merge(d2.Merge(d3))
	if left != right {
		t.Errorf("merge not associative: %+v vs %+v", left, right)
	}
	if left.State.Heading != 90 {
		t.Errorf("right-most state should win, got %v", left.State.Heading)
	}

	// A delete on the right wipes everything before it, however the
	// sequence is parenthesized.
	del := DeleteAircraft(id)
	left = d1.Merge(d2).Merge(del)
	right = d1.Merge(d2.Merge(del))
	if left != right || left != del {
		t.Errorf("delete on the right should produce a pure delete: %+v vs %+v", left, right)
	}
}

func TestMergeDeleteThenUpdate(t *testing.T) {
	id := NewGUID()
	del := DeleteAircraft(id)
	up := AircraftUpdate{Aircraft: id, Update: FieldMetadata,
		Metadata: &AircraftMetadata{Callsign: "SWA2"}}

	m := del.Merge(up)
	if m.Update.Has(FieldDelete) {
		t.Errorf("update after delete should drop the delete: %b", m.Update)
	}
	if m.Aircraft != id {
		t.Errorf("identifier not preserved across delete merge")
	}
}

func TestApplyDeleteIsError(t *testing.T) {
	a := sampleAircraft()
	if err := DeleteAircraft(a.ID).Apply(&a); err != ErrDeleteAppliedToEntity {
		t.Errorf("expected ErrDeleteAppliedToEntity, got %v", err)
	}
}

func TestControllerDiffApply(t *testing.T) {
	c := Controller{
		ID:       NewGUID(),
		Metadata: ControllerMetadata{Facility: "BOS", Type: ControllerTower},
		State:    ControllerState{RadarAntennae: []math.LatLong{{Latitude: 42.36, Longitude: -71.01}}},
	}
	d := c
	d.Metadata.Discriminator = "E"
	d.State.RadarAntennae = append(d.State.RadarAntennae,
		math.LatLong{Latitude: 42.5, Longitude: -71.2})

	u := DiffController(c, d)
	if !u.Update.Has(FieldMetadata) || !u.Update.Has(FieldState) {
		t.Errorf("controller diff missing fields: %b", u.Update)
	}

	got := c
	if err := u.Apply(&got); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Metadata != d.Metadata || len(got.State.RadarAntennae) != 2 {
		t.Errorf("controller apply mismatch: %+v", got)
	}
}

func TestControllerCallsign(t *testing.T) {
	m := ControllerMetadata{Facility: "BOS", Type: ControllerTower}
	if cs := m.Callsign(); cs != "BOS_TWR" {
		t.Errorf("expected BOS_TWR, got %s", cs)
	}
	m.Discriminator = "E"
	if cs := m.Callsign(); cs != "BOS_E_TWR" {
		t.Errorf("expected BOS_E_TWR, got %s", cs)
	}
}
