// pkg/rand/rand.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rand

import (
	_ "embed"
	"strings"

	"github.com/MichaelTJones/pcg"
)

// Rand wraps a PCG32 generator; it is cheap enough to keep one per use
// site when reproducibility matters.
type Rand struct {
	r *pcg.PCG32
}

func New() Rand {
	return Rand{r: pcg.NewPCG32()}
}

func (r *Rand) Seed(s int64) {
	r.r.Seed(uint64(s), 0xda3e39cb94b95bdb)
}

func (r *Rand) Intn(n int) int {
	return int(r.r.Bounded(uint32(n)))
}

func (r *Rand) Float32() float32 {
	return float32(r.r.Random()) / (1<<32 - 1)
}

// Package-level generator for callers that don't care about seeding.
var r = New()

func Seed(s int64)     { r.Seed(s) }
func Intn(n int) int   { return r.Intn(n) }
func Float32() float32 { return r.Float32() }

// SampleSlice uniformly randomly samples an element of a non-empty slice.
func SampleSlice[T any](slice []T) T {
	return slice[Intn(len(slice))]
}

var (
	//go:embed adjectives.txt
	adjectivesFile string
	//go:embed nouns.txt
	nounsFile string

	adjectives, nouns []string
)

func init() {
	adjectives = strings.Fields(adjectivesFile)
	nouns = strings.Fields(nounsFile)
}

// AdjectiveNoun returns a friendly two-word name; the hub assigns these
// to servers that announce themselves without one.
func AdjectiveNoun() string {
	return SampleSlice(adjectives) + "-" + SampleSlice(nouns)
}
