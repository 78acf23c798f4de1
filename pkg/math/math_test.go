// pkg/math/math_test.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	gomath "math"
	"testing"
)

func TestNormalizeHeading(t *testing.T) {
	for _, c := range []struct{ in, out float64 }{
		{-10, 350},
		{0, 0},
		{360, 0},
		{370, 10},
		{720, 0},
		{-370, 350},
		{-360, 0},
		{-720, 0},
	} {
		if got := NormalizeHeading(c.in); gomath.Abs(got-c.out) > 1e-9 {
			t.Errorf("NormalizeHeading(%v) = %v, expected %v", c.in, got, c.out)
		}
	}
}

func TestHeadingSignedTurn(t *testing.T) {
	if turn := HeadingSignedTurn(350, 10); turn <= 0 {
		t.Errorf("350 -> 10 should be a right turn, got %v", turn)
	}
	if turn := HeadingSignedTurn(10, 350); turn >= 0 {
		t.Errorf("10 -> 350 should be a left turn, got %v", turn)
	}
	if turn := HeadingSignedTurn(90, 90); turn != 0 {
		t.Errorf("90 -> 90 should be no turn, got %v", turn)
	}
}

func TestHaversineDistance(t *testing.T) {
	// One degree of longitude on the equator.
	p, q := LatLong{Latitude: 0, Longitude: 0}, LatLong{Latitude: 0, Longitude: 1}
	d := p.DistanceTo(q)
	expected := NMEarthRadius * gomath.Pi / 180
	if gomath.Abs(d-expected) > 0.001 {
		t.Errorf("equatorial degree: got %v, expected %v", d, expected)
	}

	if d := p.DistanceTo(p); d != 0 {
		t.Errorf("distance to self should be 0, got %v", d)
	}
}

func TestGetBearingDistanceCoincident(t *testing.T) {
	p := LatLong{Latitude: 40.6413, Longitude: -73.7781}
	bearing, dist := p.GetBearingDistance(p)
	if bearing != nil {
		t.Errorf("expected nil bearing for coincident points, got %v", *bearing)
	}
	if dist != 0 {
		t.Errorf("expected 0 distance for coincident points, got %v", dist)
	}
}

// For every pair (p, q), traveling from p along the bearing to q for the
// distance between them should land within 0.01nm of q.
func TestFixRadialDistanceRoundTrip(t *testing.T) {
	pts := []LatLong{
		{Latitude: 40.6413, Longitude: -73.7781},  // JFK
		{Latitude: 33.9425, Longitude: -118.408},  // LAX
		{Latitude: 51.4775, Longitude: -0.4614},   // LHR
		{Latitude: -33.9399, Longitude: 151.1753}, // SYD
		{Latitude: 0.001, Longitude: 0.001},
	}

	for _, p := range pts {
		for _, q := range pts {
			if p == q {
				continue
			}
			bearing, dist := p.GetBearingDistance(q)
			if bearing == nil {
				t.Errorf("%v -> %v: unexpected nil bearing", p, q)
				continue
			}
			r := p.FixRadialDistance(*bearing, dist)
			if err := r.DistanceTo(q); err > 0.01 {
				t.Errorf("%v -> %v: round trip error %v nm", p, q, err)
			}
		}
	}
}

// Pairs whose raw longitude difference exceeds 180 degrees must be
// solved the short way around.
func TestBearingAcrossAntimeridian(t *testing.T) {
	p := LatLong{Latitude: 0, Longitude: 170}
	q := LatLong{Latitude: 0, Longitude: -170}

	bearing, dist := p.GetBearingDistance(q)
	if bearing == nil {
		t.Fatal("unexpected nil bearing")
	}
	if gomath.Abs(*bearing-90) > 1e-6 {
		t.Errorf("bearing %v, expected 90 (eastbound across the antimeridian)", *bearing)
	}
	// 20 degrees along the equator.
	if expected := wgs84a * Radians(20); gomath.Abs(dist-expected) > 0.1 {
		t.Errorf("distance %v, expected %v", dist, expected)
	}
}

func TestVincentyAgainstHaversine(t *testing.T) {
	// Over a modest distance the ellipsoidal and spherical solutions
	// should agree to a fraction of a percent.
	p := LatLong{Latitude: 40, Longitude: -75}
	q := p.FixRadialDistance(90, 100)
	if d := p.DistanceTo(q); gomath.Abs(d-100) > 1 {
		t.Errorf("100nm radial: haversine distance back is %v", d)
	}
}

func TestAddSubClamp(t *testing.T) {
	p := LatLong{Latitude: 89, Longitude: 179}
	r := p.Add(LatLong{Latitude: 5, Longitude: 5})
	if r.Latitude != 90 || r.Longitude != 180 {
		t.Errorf("expected clamped (90, 180), got %v", r)
	}
	r = LatLong{Latitude: -89, Longitude: -179}.Sub(LatLong{Latitude: 5, Longitude: 5})
	if r.Latitude != -90 || r.Longitude != -180 {
		t.Errorf("expected clamped (-90, -180), got %v", r)
	}
}

func TestBulkDistances(t *testing.T) {
	p := LatLong{Latitude: 40, Longitude: -75}
	var pts []LatLong
	for i := 0; i < 1000; i++ {
		pts = append(pts, LatLong{Latitude: float64(i%90) - 45, Longitude: float64(i%180) - 90})
	}
	d := BulkDistances(p, pts)
	if len(d) != len(pts) {
		t.Fatalf("expected %d distances, got %d", len(pts), len(d))
	}
	for i, q := range pts {
		if d[i] != p.DistanceTo(q) {
			t.Errorf("%d: bulk distance %v != %v", i, d[i], p.DistanceTo(q))
		}
	}
}
