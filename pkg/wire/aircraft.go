// pkg/wire/aircraft.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wire

import (
	"fmt"
	"strconv"
	"time"

	"github.com/simhub-atc/simhub/pkg/math"
)

type FlightRules int

const (
	FlightRulesVFR FlightRules = iota
	FlightRulesIFR
	FlightRulesY
	FlightRulesZ
)

func (r FlightRules) String() string {
	return [...]string{"VFR", "IFR", "Y", "Z"}[r]
}

// Squawk codes are octal; they are stored in regular ints and converted
// to and from their four-digit form on the way in and out.
type Squawk uint16

func (s Squawk) String() string { return fmt.Sprintf("%04o", uint16(s)) }

func ParseSquawk(s string) (Squawk, error) {
	if len(s) != 4 {
		return Squawk(0), ErrInvalidSquawkCode
	}

	sq, err := strconv.ParseInt(s, 8, 32) // base 8!!!
	if err != nil || sq < 0 || sq > 0o7777 {
		return Squawk(0), ErrInvalidSquawkCode
	}
	return Squawk(sq), nil
}

type TransponderMode int

const (
	TransponderStandby TransponderMode = iota
	TransponderOn
	TransponderAltitude
)

func (m TransponderMode) String() string {
	return [...]string{"Standby", "On", "Altitude"}[m]
}

type Transponder struct {
	Code Squawk          `json:"code"`
	Mode TransponderMode `json:"mode"`
}

type AircraftMetadata struct {
	Callsign    string      `json:"callsign"`
	Origin      string      `json:"origin"`
	Destination string      `json:"destination"`
	Rules       FlightRules `json:"rules"`
	Type        string      `json:"type"`
	Route       string      `json:"route"`
	Remarks     string      `json:"remarks"`
}

type AircraftState struct {
	Heading  float64      `json:"heading"`  // degrees, [0,360)
	Altitude float64      `json:"altitude"` // feet MSL
	Position math.LatLong `json:"position"`
	Squawk   Transponder  `json:"squawk"`
}

type AircraftMotion struct {
	Speed     uint32  `json:"speed"`     // knots
	ClimbRate int32   `json:"climbRate"` // feet per minute
	TurnRate  float32 `json:"turnRate"`  // degrees per second, positive clockwise
}

// Apply extrapolates the given state forward by d under this motion. With
// no turn in progress the aircraft translates along its heading; otherwise
// it flies the small-circle arc of radius speed/turnRate whose tangent at
// the start matches the heading. Heading is normalized after translation.
func (m AircraftMotion) Apply(st AircraftState, d time.Duration) AircraftState {
	sec := d.Seconds()

	if m.TurnRate == 0 {
		prev := st.Position
		st.Position = prev.FixRadialDistance(st.Heading, float64(m.Speed)*sec/3600)
		// Advance the heading to the geodesic's arrival azimuth so that
		// successive translations continue along the same geodesic.
		if back, _ := st.Position.GetBearingDistance(prev); back != nil {
			st.Heading = math.OppositeHeading(*back)
		} else {
			st.Heading = math.NormalizeHeading(st.Heading)
		}
	} else {
		turn := float64(m.TurnRate) * sec
		radius := (float64(m.Speed) / 3600) / math.Radians(math.Abs(float64(m.TurnRate)))
		// The turn center sits abeam the aircraft, on the inside of the
		// turn; sweep the radial from the center through the turn angle.
		side := float64(90)
		if m.TurnRate < 0 {
			side = -90
		}
		center := st.Position.FixRadialDistance(math.NormalizeHeading(st.Heading+side), radius)
		st.Position = center.FixRadialDistance(math.NormalizeHeading(st.Heading-side+turn), radius)
		st.Heading = math.NormalizeHeading(st.Heading + turn)
	}

	st.Altitude += float64(m.ClimbRate) * sec / 60
	return st
}

type Aircraft struct {
	ID       GUID             `json:"id"`
	Time     time.Time        `json:"time"`
	Metadata AircraftMetadata `json:"metadata"`
	State    AircraftState    `json:"state"`
	Motion   AircraftMotion   `json:"motion"`
}

// Extrapolate returns the aircraft advanced to time t under its current
// motion.
func (a Aircraft) Extrapolate(t time.Time) Aircraft {
	a.State = a.Motion.Apply(a.State, t.Sub(a.Time))
	a.Time = t
	return a
}
