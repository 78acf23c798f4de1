// pkg/wire/aircraft_test.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wire

import (
	gomath "math"
	"testing"
	"time"

	"github.com/simhub-atc/simhub/pkg/math"
)

func TestExtrapolateStraight(t *testing.T) {
	ac := sampleAircraft()
	ac.State.Heading = 360
	ac.State.Position = math.LatLong{Latitude: 33.9425, Longitude: -118.408056}
	ac.Motion = AircraftMotion{Speed: 200, ClimbRate: -600}

	later := ac.Time.Add(time.Minute)
	got := ac.Extrapolate(later)

	if !got.Time.Equal(later) {
		t.Errorf("time not advanced: %v", got.Time)
	}
	if got.State.Heading < 0 || got.State.Heading >= 360 {
		t.Errorf("heading not normalized: %v", got.State.Heading)
	}
	// Northbound: latitude grows, longitude holds.
	if got.State.Position.Latitude <= ac.State.Position.Latitude {
		t.Errorf("latitude did not increase: %v", got.State.Position)
	}
	if gomath.Abs(got.State.Position.Longitude-ac.State.Position.Longitude) > 0.01 {
		t.Errorf("longitude drifted: %v", got.State.Position)
	}
	// 200kt for one minute is 10/3nm.
	if d := ac.State.Position.DistanceTo(got.State.Position); gomath.Abs(d-200.0/60) > 0.01 {
		t.Errorf("traveled %v nm, expected %v", d, 200.0/60)
	}
	// -600 fpm for one minute.
	if gomath.Abs(got.State.Altitude-(ac.State.Altitude-600)) > 0.01 {
		t.Errorf("altitude %v, expected %v", got.State.Altitude, ac.State.Altitude-600)
	}
}

// Extrapolating in two steps should land where one step does, to within
// geodesic tolerance, when no turn is in progress.
func TestExtrapolateComposes(t *testing.T) {
	ac := sampleAircraft()
	ac.Motion.TurnRate = 0

	t1 := ac.Time.Add(37 * time.Second)
	t2 := ac.Time.Add(95 * time.Second)

	oneShot := ac.Extrapolate(t2)
	twoStep := ac.Extrapolate(t1).Extrapolate(t2)

	if !twoStep.Time.Equal(oneShot.Time) {
		t.Errorf("times differ: %v vs %v", twoStep.Time, oneShot.Time)
	}
	if d := oneShot.State.Position.DistanceTo(twoStep.State.Position); d > 1e-3 {
		t.Errorf("positions differ by %v nm", d)
	}
	if gomath.Abs(oneShot.State.Altitude-twoStep.State.Altitude) > 1e-6 {
		t.Errorf("altitudes differ: %v vs %v", oneShot.State.Altitude, twoStep.State.Altitude)
	}
}

func TestExtrapolateTurn(t *testing.T) {
	ac := sampleAircraft()
	ac.State.Heading = 360
	ac.State.Position = math.LatLong{Latitude: 33.9425, Longitude: -118.408056}
	ac.State.Altitude = 9000
	ac.Motion = AircraftMotion{Speed: 200, ClimbRate: -10, TurnRate: 3}

	got := ac.Extrapolate(ac.Time.Add(time.Second))

	if gomath.Abs(got.State.Heading-3) > 1e-6 {
		t.Errorf("heading %v, expected 3", got.State.Heading)
	}
	if got.State.Position.Latitude <= 33.9425 {
		t.Errorf("latitude should increase, got %v", got.State.Position.Latitude)
	}
	if gomath.Abs(got.State.Altitude-(9000-10.0/60)) > 0.01 {
		t.Errorf("altitude %v", got.State.Altitude)
	}

	// A full 120 seconds at 3 deg/s is a complete circle; we should come
	// back to about where we started.
	full := ac.Extrapolate(ac.Time.Add(120 * time.Second))
	if gomath.Abs(full.State.Heading-360) > 1e-3 && full.State.Heading > 1e-3 {
		t.Errorf("heading after full circle: %v", full.State.Heading)
	}
	if d := ac.State.Position.DistanceTo(full.State.Position); d > 0.1 {
		t.Errorf("did not close the circle: %v nm away", d)
	}
}

// A negative heading snapshot is normalized even when the aircraft is not
// moving.
func TestHeadingNormalizedWhenParked(t *testing.T) {
	st := AircraftState{Heading: -10}
	got := AircraftMotion{}.Apply(st, time.Second)
	if got.Heading < 0 || got.Heading >= 360 {
		t.Errorf("heading %v not in [0,360)", got.Heading)
	}
	if gomath.Abs(got.Heading-350) > 1e-9 {
		t.Errorf("heading %v, expected 350", got.Heading)
	}
}

func TestParseSquawk(t *testing.T) {
	sq, err := ParseSquawk("2345")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sq != 0o2345 || sq.String() != "2345" {
		t.Errorf("got %v / %s", sq, sq)
	}

	for _, invalid := range []string{"8888", "123", "12345", "abcd"} {
		if _, err := ParseSquawk(invalid); err == nil {
			t.Errorf("%s: expected error", invalid)
		}
	}
}
