// pkg/wire/controller.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wire

import (
	"time"

	"github.com/simhub-atc/simhub/pkg/math"
)

type ControllerType int

const (
	ControllerDelivery ControllerType = iota
	ControllerGround
	ControllerTower
	ControllerApproach
	ControllerDeparture
	ControllerCenter
	ControllerFlightService
)

func (t ControllerType) String() string {
	return [...]string{"DEL", "GND", "TWR", "APP", "DEP", "CTR", "FSS"}[t]
}

type ControllerMetadata struct {
	Facility      string         `json:"facility"`
	Type          ControllerType `json:"type"`
	Discriminator string         `json:"discriminator,omitempty"`
}

// Callsign returns the derived callsign facility[_discriminator]_type,
// e.g. LAX_TWR or NY_W_CTR.
func (m ControllerMetadata) Callsign() string {
	cs := m.Facility
	if m.Discriminator != "" {
		cs += "_" + m.Discriminator
	}
	return cs + "_" + m.Type.String()
}

type ControllerState struct {
	RadarAntennae []math.LatLong `json:"radarAntennae"`
}

type Controller struct {
	ID       GUID               `json:"id"`
	Time     time.Time          `json:"time"`
	Metadata ControllerMetadata `json:"metadata"`
	State    ControllerState    `json:"state"`
}
