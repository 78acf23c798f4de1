// pkg/sim/planner.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	gomath "math"
	"sync"
	"time"

	"github.com/simhub-atc/simhub/pkg/log"
	"github.com/simhub-atc/simhub/pkg/math"
	"github.com/simhub-atc/simhub/pkg/wire"
)

const (
	standardTurnRate   = 3 // degrees per second
	plannerClimbRate   = 1000
	plannerDescentRate = -500
	accelerationKts    = 10 // knots per second
	decelerationKts    = 5
	directTolerance    = 1 // degrees off the bearing before we bother turning
)

type LNAVMode int

const (
	LNAVPresentHeading LNAVMode = iota
	LNAVHeading
	LNAVDirect
)

type LNAV struct {
	Mode     LNAVMode
	Heading  float64
	Endpoint math.LatLong
}

func PresentHeading() LNAV         { return LNAV{Mode: LNAVPresentHeading} }
func FlyHeading(h float64) LNAV    { return LNAV{Mode: LNAVHeading, Heading: h} }
func DirectTo(p math.LatLong) LNAV { return LNAV{Mode: LNAVDirect, Endpoint: p} }

// AltitudeRange restricts altitude to [Min,Max] feet MSL; a nil bound is
// unrestricted, so the zero value is compliant with everything.
type AltitudeRange struct {
	Min, Max *float64
}

func (r AltitudeRange) IsCompliant(alt float64) bool {
	if r.Min != nil && alt < *r.Min {
		return false
	}
	if r.Max != nil && alt > *r.Max {
		return false
	}
	return true
}

type SpeedRange struct {
	Min, Max *uint32
}

func (r SpeedRange) IsCompliant(speed uint32) bool {
	if r.Min != nil && speed < *r.Min {
		return false
	}
	if r.Max != nil && speed > *r.Max {
		return false
	}
	return true
}

type Termination int

const (
	TerminateForever Termination = iota
	TerminateCrossing
	TerminateAltitude
)

// Instruction is one entry in an aircraft's route: a lateral command, an
// altitude and speed restriction, and the condition that pops it off the
// queue.
type Instruction struct {
	LNAV      LNAV
	Altitude  AltitudeRange
	Speed     SpeedRange
	Terminate Termination
}

type routeState struct {
	instructions []Instruction
	// Last tick's position and heading, for the abeam-crossing test.
	prevPosition math.LatLong
	prevHeading  float64
	prevValid    bool
}

// Planner drives queued instructions: each tick it pops instructions
// whose termination condition holds and steers every aircraft toward its
// current instruction, writing motion changes through the pending batch.
type Planner struct {
	mu     sync.Mutex
	state  *State
	routes map[wire.GUID]*routeState
	lg     *log.Logger
}

func NewPlanner(state *State, lg *log.Logger) *Planner {
	return &Planner{
		state:  state,
		routes: make(map[wire.GUID]*routeState),
		lg:     lg,
	}
}

// AssignRoute replaces the aircraft's instruction queue. A Crossing
// termination without a direct lateral command cannot ever trigger, so it
// is demoted to Forever up front.
func (p *Planner) AssignRoute(id wire.GUID, instructions []Instruction) {
	for i, in := range instructions {
		if in.Terminate == TerminateCrossing && in.LNAV.Mode != LNAVDirect {
			instructions[i].Terminate = TerminateForever
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(instructions) == 0 {
		delete(p.routes, id)
		return
	}
	p.routes[id] = &routeState{instructions: instructions}
}

// Route returns the remaining instruction queue for the aircraft.
func (p *Planner) Route(id wire.GUID) []Instruction {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rs, ok := p.routes[id]; ok {
		return append([]Instruction(nil), rs.instructions...)
	}
	return nil
}

// Tick runs one planner pass over every aircraft with a route.
func (p *Planner) Tick(dt time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	aircraft := p.state.Aircraft()
	for id, rs := range p.routes {
		ac, ok := aircraft[id]
		if !ok {
			// An aircraft added but not yet committed keeps its route; only
			// deleted or never-created ones lose theirs.
			if !p.state.CreationPending(id) {
				delete(p.routes, id)
			}
			continue
		}

		if p.terminated(rs, ac, dt) {
			rs.instructions = rs.instructions[1:]
			rs.prevValid = false
			if len(rs.instructions) == 0 {
				delete(p.routes, id)
				continue
			}
		}

		motion := actuate(rs.instructions[0], ac, dt)
		if motion != ac.Motion {
			m := motion
			p.state.QueueUpdate(wire.AircraftUpdate{
				Aircraft: id,
				Update:   wire.FieldMovement,
				Motion:   &m,
			})
		}
	}
}

// terminated checks the head instruction's termination condition and
// updates the crossing history for the next tick.
func (p *Planner) terminated(rs *routeState, ac wire.Aircraft, dt time.Duration) bool {
	in := rs.instructions[0]
	switch in.Terminate {
	case TerminateAltitude:
		return in.Altitude.IsCompliant(ac.State.Altitude)

	case TerminateCrossing:
		// Passing abeam the endpoint flips the angle between the bearing
		// to the endpoint and the aircraft's heading from acute to
		// obtuse: the endpoint moves from ahead of the wing line to
		// behind it.
		prevPos, prevHdg := rs.prevPosition, rs.prevHeading
		if !rs.prevValid {
			// First look at this instruction: reconstruct last tick by
			// flying backwards.
			prevPos = ac.State.Position.FixRadialDistance(
				math.OppositeHeading(ac.State.Heading),
				float64(ac.Motion.Speed)*dt.Seconds()/3600)
			prevHdg = math.NormalizeHeading(ac.State.Heading - float64(ac.Motion.TurnRate)*dt.Seconds())
		}

		prevAngle := abeamAngle(in.LNAV.Endpoint, prevPos, prevHdg)
		curAngle := abeamAngle(in.LNAV.Endpoint, ac.State.Position, ac.State.Heading)

		rs.prevPosition, rs.prevHeading, rs.prevValid = ac.State.Position, ac.State.Heading, true

		return prevAngle <= 90 && curAngle > 90

	default:
		return false
	}
}

// abeamAngle is the unsigned angle between the bearing from the aircraft
// to the endpoint and the aircraft's heading; 0 for a coincident pair.
func abeamAngle(endpoint, position math.LatLong, heading float64) float64 {
	bearing, _ := position.GetBearingDistance(endpoint)
	if bearing == nil {
		return 0
	}
	return math.HeadingDifference(*bearing, heading)
}

// actuate returns the motion that steers the aircraft toward the
// instruction: turn rate for the lateral command, climb rate for the
// altitude restriction, and speed stepped toward the speed restriction.
func actuate(in Instruction, ac wire.Aircraft, dt time.Duration) wire.AircraftMotion {
	m := ac.Motion

	switch in.LNAV.Mode {
	case LNAVPresentHeading:
		m.TurnRate = 0

	case LNAVHeading:
		m.TurnRate = turnToward(ac.State.Heading, in.LNAV.Heading, 0)

	case LNAVDirect:
		if bearing, _ := ac.State.Position.GetBearingDistance(in.LNAV.Endpoint); bearing == nil {
			m.TurnRate = 0
		} else {
			m.TurnRate = turnToward(ac.State.Heading, *bearing, directTolerance)
		}
	}

	if in.Altitude.IsCompliant(ac.State.Altitude) {
		m.ClimbRate = 0
	} else if in.Altitude.Min != nil && ac.State.Altitude < *in.Altitude.Min {
		m.ClimbRate = plannerClimbRate
	} else {
		m.ClimbRate = plannerDescentRate
	}

	if !in.Speed.IsCompliant(m.Speed) {
		if in.Speed.Min != nil && m.Speed < *in.Speed.Min {
			m.Speed = min(m.Speed+speedStep(accelerationKts, dt), *in.Speed.Min)
		} else if in.Speed.Max != nil && m.Speed > *in.Speed.Max {
			step := speedStep(decelerationKts, dt)
			if m.Speed < *in.Speed.Max+step {
				m.Speed = *in.Speed.Max
			} else {
				m.Speed -= step
			}
		}
	}

	return m
}

// turnToward picks the shorter turn direction at the standard rate, or no
// turn at all once within the tolerance.
func turnToward(current, target, tolerance float64) float32 {
	turn := math.HeadingSignedTurn(current, target)
	if math.Abs(turn) <= gomath.Max(tolerance, 1e-3) {
		return 0
	}
	if turn > 0 {
		return standardTurnRate
	}
	return -standardTurnRate
}

// speedStep converts a knots-per-second rate into this tick's increment,
// at least one knot so short ticks still make progress.
func speedStep(ratePerSec float64, dt time.Duration) uint32 {
	step := uint32(gomath.Round(ratePerSec * dt.Seconds()))
	return max(step, 1)
}
