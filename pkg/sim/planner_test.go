// pkg/sim/planner_test.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"testing"
	"time"

	"github.com/simhub-atc/simhub/pkg/math"
	"github.com/simhub-atc/simhub/pkg/wire"
)

func fp(v float64) *float64 { return &v }
func up(v uint32) *uint32   { return &v }

func TestEmptyRangesCompliant(t *testing.T) {
	for _, alt := range []float64{-1000, 0, 45000} {
		if !(AltitudeRange{}).IsCompliant(alt) {
			t.Errorf("unrestricted altitude range rejected %v", alt)
		}
	}
	for _, speed := range []uint32{0, 250, 600} {
		if !(SpeedRange{}).IsCompliant(speed) {
			t.Errorf("unrestricted speed range rejected %v", speed)
		}
	}

	r := AltitudeRange{Min: fp(5000), Max: fp(10000)}
	if r.IsCompliant(4999) || r.IsCompliant(10001) || !r.IsCompliant(7000) {
		t.Errorf("bounded altitude range misbehaves")
	}
}

func TestActuateTurnDirections(t *testing.T) {
	ac := testAircraft(time.Now()) // heading 90

	for _, tc := range []struct {
		target float64
		rate   float32
	}{
		{180, standardTurnRate},  // right turn is shorter
		{350, -standardTurnRate}, // left turn is shorter
		{90, 0},                  // already there
		{270, standardTurnRate},  // dead astern breaks clockwise
	} {
		m := actuate(Instruction{LNAV: FlyHeading(tc.target)}, ac, time.Second)
		if m.TurnRate != tc.rate {
			t.Errorf("heading 90 to %v: turn rate %v, expected %v", tc.target, m.TurnRate, tc.rate)
		}
	}
}

func TestActuateAltitude(t *testing.T) {
	ac := testAircraft(time.Now()) // at 12000

	m := actuate(Instruction{Altitude: AltitudeRange{Min: fp(15000)}}, ac, time.Second)
	if m.ClimbRate != plannerClimbRate {
		t.Errorf("below restriction: climb rate %v", m.ClimbRate)
	}

	m = actuate(Instruction{Altitude: AltitudeRange{Max: fp(10000)}}, ac, time.Second)
	if m.ClimbRate != plannerDescentRate {
		t.Errorf("above restriction: climb rate %v", m.ClimbRate)
	}

	ac.Motion.ClimbRate = 700
	m = actuate(Instruction{Altitude: AltitudeRange{Min: fp(10000), Max: fp(14000)}}, ac, time.Second)
	if m.ClimbRate != 0 {
		t.Errorf("compliant altitude should level off, climb rate %v", m.ClimbRate)
	}
}

func TestActuateSpeed(t *testing.T) {
	ac := testAircraft(time.Now()) // at 300 knots

	// Accelerate toward a minimum, without overshooting it.
	m := actuate(Instruction{Speed: SpeedRange{Min: up(350)}}, ac, time.Second)
	if m.Speed != 310 {
		t.Errorf("accelerating: speed %v, expected 310", m.Speed)
	}
	m = actuate(Instruction{Speed: SpeedRange{Min: up(305)}}, ac, time.Second)
	if m.Speed != 305 {
		t.Errorf("accelerating near target: speed %v, expected 305", m.Speed)
	}

	// Decelerate toward a maximum, clamped likewise.
	m = actuate(Instruction{Speed: SpeedRange{Max: up(250)}}, ac, time.Second)
	if m.Speed != 295 {
		t.Errorf("decelerating: speed %v, expected 295", m.Speed)
	}
	m = actuate(Instruction{Speed: SpeedRange{Max: up(297)}}, ac, time.Second)
	if m.Speed != 297 {
		t.Errorf("decelerating near target: speed %v, expected 297", m.Speed)
	}

	// A sub-second tick still makes at least a knot of progress.
	m = actuate(Instruction{Speed: SpeedRange{Min: up(350)}}, ac, 10*time.Millisecond)
	if m.Speed != 301 {
		t.Errorf("short tick: speed %v, expected 301", m.Speed)
	}

	m = actuate(Instruction{Speed: SpeedRange{Min: up(200), Max: up(340)}}, ac, time.Second)
	if m.Speed != 300 {
		t.Errorf("compliant speed changed to %v", m.Speed)
	}
}

func TestDirectWithinTolerance(t *testing.T) {
	ac := testAircraft(time.Now())
	ac.State.Heading = 0.5
	endpoint := ac.State.Position.FixRadialDistance(360, 10)

	m := actuate(Instruction{LNAV: DirectTo(endpoint)}, ac, time.Second)
	if m.TurnRate != 0 {
		t.Errorf("within direct tolerance but turning at %v", m.TurnRate)
	}

	ac.State.Heading = 45
	m = actuate(Instruction{LNAV: DirectTo(endpoint)}, ac, time.Second)
	if m.TurnRate != -standardTurnRate {
		t.Errorf("off the bearing but turn rate %v", m.TurnRate)
	}
}

func TestCrossingWithoutDirectDemoted(t *testing.T) {
	s := New(nil)
	t0 := time.Now()
	id := s.AddAircraft(testAircraft(t0))
	s.State.CommitBatch(t0)

	s.AssignRoute(id, []Instruction{
		{LNAV: FlyHeading(180), Terminate: TerminateCrossing},
	})
	route := s.Planner().Route(id)
	if len(route) != 1 || route[0].Terminate != TerminateForever {
		t.Errorf("crossing without a direct target survived: %+v", route)
	}
}

func TestAssignEmptyRouteClears(t *testing.T) {
	s := New(nil)
	t0 := time.Now()
	id := s.AddAircraft(testAircraft(t0))
	s.State.CommitBatch(t0)

	s.AssignRoute(id, []Instruction{{LNAV: PresentHeading()}})
	s.AssignRoute(id, nil)
	if route := s.Planner().Route(id); route != nil {
		t.Errorf("route not cleared: %+v", route)
	}
}

// An aircraft flying direct to a fix a nautical mile ahead at 60 knots
// needs a minute to get there; the crossing condition must pop the
// instruction on the tick it passes abeam, not before.
func TestCrossingDetected(t *testing.T) {
	s := New(nil)
	t0 := time.Now()

	start := math.LatLong{Latitude: 40, Longitude: -75}
	fix := start.FixRadialDistance(360, 1)

	id := s.AddAircraft(wire.Aircraft{
		Time:   t0,
		State:  wire.AircraftState{Heading: 360, Position: start},
		Motion: wire.AircraftMotion{Speed: 60},
	})
	s.State.CommitBatch(t0)

	s.AssignRoute(id, []Instruction{
		{LNAV: DirectTo(fix), Terminate: TerminateCrossing},
		{LNAV: PresentHeading(), Terminate: TerminateForever},
	})

	const dt = 100 * time.Millisecond
	detected := 0
	for i := 1; i <= 700; i++ {
		now := t0.Add(time.Duration(i) * dt)
		s.State.CommitBatch(now)
		s.Planner().Tick(dt)
		if len(s.Planner().Route(id)) == 1 {
			detected = i
			break
		}
	}

	if detected == 0 {
		t.Fatalf("crossing never detected")
	}
	// 60 knots covers the mile in 600 ticks of 100ms.
	if detected < 595 || detected > 615 {
		t.Errorf("crossing detected at tick %d, expected around 600", detected)
	}

	ac, _ := s.State.GetAircraft(id)
	if d := ac.State.Position.DistanceTo(fix); d > 0.05 {
		t.Errorf("aircraft %v NM from the fix at detection", d)
	}
}

// Passing abeam a fix just off the flight path pops the direct
// instruction and promotes the next one the same tick.
func TestAbeamPopPromotesNextInstruction(t *testing.T) {
	s := New(nil)
	t0 := time.Now()

	start := math.LatLong{Latitude: 40, Longitude: -75}
	fix := start.FixRadialDistance(360, 0.05) // just north of the track

	id := s.AddAircraft(wire.Aircraft{
		Time:   t0,
		State:  wire.AircraftState{Heading: 90, Altitude: 0, Position: start},
		Motion: wire.AircraftMotion{Speed: 600},
	})
	s.State.CommitBatch(t0)

	s.AssignRoute(id, []Instruction{
		{LNAV: DirectTo(fix), Terminate: TerminateCrossing},
		{LNAV: PresentHeading(), Altitude: AltitudeRange{Min: fp(1000), Max: fp(1000)},
			Terminate: TerminateAltitude},
	})

	const dt = 100 * time.Millisecond

	// Abeam the fix already, but approaching: not a crossing yet.
	s.Planner().Tick(dt)
	if len(s.Planner().Route(id)) != 2 {
		t.Fatalf("crossing detected before passing the fix")
	}

	// One tick of eastbound flight puts the fix behind the wing line.
	s.State.CommitBatch(t0.Add(dt))
	s.Planner().Tick(dt)

	route := s.Planner().Route(id)
	if len(route) != 1 || route[0].Terminate != TerminateAltitude {
		t.Fatalf("direct instruction not popped: %+v", route)
	}

	// The promoted altitude instruction starts the climb immediately.
	s.State.CommitBatch(t0.Add(2 * dt))
	ac, _ := s.State.GetAircraft(id)
	if ac.Motion.ClimbRate != plannerClimbRate {
		t.Errorf("climb rate %v after promotion, expected %v", ac.Motion.ClimbRate, plannerClimbRate)
	}
}

// A route assigned right after AddAircraft must survive planner ticks
// that run before the creating commit lands; only never-created or
// deleted aircraft lose theirs.
func TestRouteSurvivesPendingCreation(t *testing.T) {
	s := New(nil)
	t0 := time.Now()

	id := s.AddAircraft(testAircraft(t0)) // heading 90
	s.AssignRoute(id, []Instruction{{LNAV: FlyHeading(180)}})

	s.Planner().Tick(100 * time.Millisecond)
	if route := s.Planner().Route(id); len(route) != 1 {
		t.Fatalf("route dropped before the creating commit: %+v", route)
	}

	s.State.CommitBatch(t0.Add(time.Second))
	s.Planner().Tick(100 * time.Millisecond)
	s.State.CommitBatch(t0.Add(2 * time.Second))

	ac, ok := s.State.GetAircraft(id)
	if !ok {
		t.Fatal("aircraft never committed")
	}
	if ac.Motion.TurnRate != standardTurnRate {
		t.Errorf("turn rate %v, expected %v", ac.Motion.TurnRate, standardTurnRate)
	}

	ghost := wire.NewGUID()
	s.AssignRoute(ghost, []Instruction{{LNAV: PresentHeading()}})
	s.Planner().Tick(100 * time.Millisecond)
	if s.Planner().Route(ghost) != nil {
		t.Errorf("route for a never-created aircraft survived")
	}
}

// A compliant aircraft on heading produces no pending deltas, so commits
// stay quiet apart from extrapolation.
func TestPlannerWritesThroughOnlyOnChange(t *testing.T) {
	s := New(nil)
	t0 := time.Now()

	id := s.AddAircraft(wire.Aircraft{
		Time:  t0,
		State: wire.AircraftState{Heading: 90, Altitude: 5000, Position: math.LatLong{Latitude: 40, Longitude: -75}},
	})
	s.State.CommitBatch(t0)

	s.AssignRoute(id, []Instruction{{
		LNAV:     FlyHeading(90),
		Altitude: AltitudeRange{Min: fp(4000), Max: fp(6000)},
	}})

	s.Planner().Tick(100 * time.Millisecond)
	if updates := s.State.CommitBatch(t0.Add(time.Second)); len(updates) != 0 {
		t.Errorf("stationary compliant aircraft produced updates: %+v", updates)
	}
}
