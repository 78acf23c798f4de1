// pkg/math/geodesy.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	"fmt"
	gomath "math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Geodesic constants, all in nautical miles on the WGS-84 ellipsoid.
const (
	// NMEarthRadius is the sphere radius used by the haversine fast path.
	NMEarthRadius = 3440.07

	wgs84a = 3443.918         // semi-major axis
	wgs84b = 3432.3716599595  // semi-minor axis
	wgs84f = 1 / 298.257223563

	vincentyTolerance     = 1e-9
	vincentyMaxIterations = 100
)

// LatLong is a position on the WGS-84 ellipsoid in signed decimal degrees.
type LatLong struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p LatLong) IsZero() bool {
	return p.Latitude == 0 && p.Longitude == 0
}

func (p LatLong) String() string {
	return fmt.Sprintf("(%f, %f)", p.Latitude, p.Longitude)
}

// Add composes two positions component-wise, clamping the result to the
// valid coordinate range. This is vector composition for screen-space and
// offset math, not great-circle addition.
func (p LatLong) Add(q LatLong) LatLong {
	return LatLong{
		Latitude:  Clamp(p.Latitude+q.Latitude, -90, 90),
		Longitude: Clamp(p.Longitude+q.Longitude, -180, 180),
	}
}

func (p LatLong) Sub(q LatLong) LatLong {
	return LatLong{
		Latitude:  Clamp(p.Latitude-q.Latitude, -90, 90),
		Longitude: Clamp(p.Longitude-q.Longitude, -180, 180),
	}
}

// DistanceTo returns the haversine distance in nautical miles between the
// two positions. It is the fast path used for bulk culling and proximity
// checks; use GetBearingDistance when geodesic accuracy matters.
func (p LatLong) DistanceTo(q LatLong) float64 {
	// https://www.movable-type.co.uk/scripts/latlong.html
	lat1, lon1 := Radians(p.Latitude), Radians(p.Longitude)
	lat2, lon2 := Radians(q.Latitude), Radians(q.Longitude)
	dlat, dlon := lat2-lat1, lon2-lon1

	x := Sqr(gomath.Sin(dlat/2)) + gomath.Cos(lat1)*gomath.Cos(lat2)*Sqr(gomath.Sin(dlon/2))
	c := 2 * gomath.Atan2(gomath.Sqrt(x), gomath.Sqrt(1-x))
	return NMEarthRadius * c
}

// FixRadialDistance returns the position at the given distance in nautical
// miles along the initial bearing from p, via the direct Vincenty
// solution.
//
// T Vincenty, "Direct and Inverse Solutions of Geodesics on the Ellipsoid
// with application of nested equations", Survey Review XXIII/176, 1975.
func (p LatLong) FixRadialDistance(bearing float64, distance float64) LatLong {
	if distance == 0 {
		return p
	}

	alpha1 := Radians(bearing)
	sinAlpha1, cosAlpha1 := gomath.Sincos(alpha1)

	tanU1 := (1 - wgs84f) * gomath.Tan(Radians(p.Latitude))
	cosU1 := 1 / gomath.Sqrt(1+tanU1*tanU1)
	sinU1 := tanU1 * cosU1

	sigma1 := gomath.Atan2(tanU1, cosAlpha1)
	sinAlpha := cosU1 * sinAlpha1
	cosSqAlpha := 1 - sinAlpha*sinAlpha
	uSq := cosSqAlpha * (wgs84a*wgs84a - wgs84b*wgs84b) / (wgs84b * wgs84b)
	bigA := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	bigB := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))

	sigma := distance / (wgs84b * bigA)
	var sinSigma, cosSigma, cos2SigmaM float64
	for iter := 0; iter < vincentyMaxIterations; iter++ {
		cos2SigmaM = gomath.Cos(2*sigma1 + sigma)
		sinSigma, cosSigma = gomath.Sincos(sigma)
		deltaSigma := bigB * sinSigma * (cos2SigmaM + bigB/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
			bigB/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))
		next := distance/(wgs84b*bigA) + deltaSigma
		if gomath.Abs(next-sigma) < vincentyTolerance {
			sigma = next
			break
		}
		sigma = next
	}
	cos2SigmaM = gomath.Cos(2*sigma1 + sigma)
	sinSigma, cosSigma = gomath.Sincos(sigma)

	tmp := sinU1*sinSigma - cosU1*cosSigma*cosAlpha1
	lat2 := gomath.Atan2(sinU1*cosSigma+cosU1*sinSigma*cosAlpha1,
		(1-wgs84f)*gomath.Sqrt(sinAlpha*sinAlpha+tmp*tmp))
	lambda := gomath.Atan2(sinSigma*sinAlpha1, cosU1*cosSigma-sinU1*sinSigma*cosAlpha1)
	c := wgs84f / 16 * cosSqAlpha * (4 + wgs84f*(4-3*cosSqAlpha))
	l := lambda - (1-c)*wgs84f*sinAlpha*
		(sigma+c*sinSigma*(cos2SigmaM+c*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))

	return LatLong{
		Latitude:  Clamp(Degrees(lat2), -90, 90),
		Longitude: Clamp(p.Longitude+Degrees(l), -180, 180),
	}
}

// GetBearingDistance returns the initial bearing in degrees and the
// distance in nautical miles from p to q via the inverse Vincenty
// solution. The bearing is nil if the two points coincide (or the azimuth
// is otherwise undefined), in which case the distance is still valid.
func (p LatLong) GetBearingDistance(q LatLong) (*float64, float64) {
	if p == q {
		return nil, 0
	}

	// The iteration assumes the longitude difference is the shorter way
	// around; wrap it into [-180,180] before converting.
	dlon := q.Longitude - p.Longitude
	if dlon > 180 {
		dlon -= 360
	} else if dlon < -180 {
		dlon += 360
	}
	l := Radians(dlon)
	tanU1 := (1 - wgs84f) * gomath.Tan(Radians(p.Latitude))
	cosU1 := 1 / gomath.Sqrt(1+tanU1*tanU1)
	sinU1 := tanU1 * cosU1
	tanU2 := (1 - wgs84f) * gomath.Tan(Radians(q.Latitude))
	cosU2 := 1 / gomath.Sqrt(1+tanU2*tanU2)
	sinU2 := tanU2 * cosU2

	lambda := l
	var sinLambda, cosLambda, sinSigma, cosSigma, sigma float64
	var cosSqAlpha, cos2SigmaM float64
	converged := false
	for iter := 0; iter < vincentyMaxIterations; iter++ {
		sinLambda, cosLambda = gomath.Sincos(lambda)
		sinSigma = gomath.Sqrt(Sqr(cosU2*sinLambda) + Sqr(cosU1*sinU2-sinU1*cosU2*cosLambda))
		if sinSigma == 0 {
			// Coincident points to within the math's precision.
			return nil, 0
		}
		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = gomath.Atan2(sinSigma, cosSigma)
		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cosSqAlpha = 1 - sinAlpha*sinAlpha
		if cosSqAlpha == 0 {
			// Both points on the equator.
			cos2SigmaM = 0
		} else {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cosSqAlpha
		}
		c := wgs84f / 16 * cosSqAlpha * (4 + wgs84f*(4-3*cosSqAlpha))
		next := l + (1-c)*wgs84f*sinAlpha*
			(sigma+c*sinSigma*(cos2SigmaM+c*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))
		if gomath.Abs(next-lambda) < vincentyTolerance {
			lambda = next
			converged = true
			break
		}
		lambda = next
	}

	uSq := cosSqAlpha * (wgs84a*wgs84a - wgs84b*wgs84b) / (wgs84b * wgs84b)
	bigA := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	bigB := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
	deltaSigma := bigB * sinSigma * (cos2SigmaM + bigB/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
		bigB/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))
	distance := wgs84b * bigA * (sigma - deltaSigma)

	if !converged {
		// Near-antipodal points; the distance estimate is still usable but
		// the azimuth is not.
		return nil, distance
	}

	sinLambda, cosLambda = gomath.Sincos(lambda)
	bearing := NormalizeHeading(Degrees(gomath.Atan2(cosU2*sinLambda,
		cosU1*sinU2-sinU1*cosU2*cosLambda)))
	return &bearing, distance
}

// BulkDistances computes the haversine distance from p to each of the
// given points, in order. The computation is spread over the available
// CPUs; the result is deterministic for a given input.
func BulkDistances(p LatLong, pts []LatLong) []float64 {
	d := make([]float64, len(pts))

	var g errgroup.Group
	n := runtime.NumCPU()
	chunk := max(1, (len(pts)+n-1)/n)
	for start := 0; start < len(pts); start += chunk {
		start, end := start, min(start+chunk, len(pts))
		g.Go(func() error {
			for i := start; i < end; i++ {
				d[i] = p.DistanceTo(pts[i])
			}
			return nil
		})
	}
	g.Wait() // no errors possible

	return d
}
