// pkg/math/heading.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import gomath "math"

// NormalizeHeading reduces a heading to [0,360).
func NormalizeHeading(h float64) float64 {
	if h < 0 {
		// Exact negative multiples of 360 would yield 360 - 0.
		return gomath.Mod(360-NormalizeHeading(-h), 360)
	}
	return gomath.Mod(h, 360)
}

func OppositeHeading(h float64) float64 {
	return NormalizeHeading(h + 180)
}

// HeadingDifference returns the minimum difference between two
// headings. (i.e., the result is always in the range [0,180].)
func HeadingDifference(a float64, b float64) float64 {
	var d float64
	if a > b {
		d = a - b
	} else {
		d = b - a
	}
	if d > 180 {
		d = 360 - d
	}
	return d
}

// HeadingSignedTurn returns the signed turn from cur to target, in
// (-180,180]; positive values indicate a right (clockwise) turn. First
// find the angle to rotate the target heading by so that it's aligned with
// 180 degrees; this lets us not worry about the complexities of the wrap
// around at 0/360.
func HeadingSignedTurn(cur, target float64) float64 {
	rot := NormalizeHeading(180 - target)
	return 180 - NormalizeHeading(cur+rot) // w.r.t. 180 target
}
