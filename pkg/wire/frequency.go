// pkg/wire/frequency.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wire

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Frequencies are scaled by 1000 and then stored in integers, so 121.9
// MHz is represented as 121900. Decimal arithmetic throughout; fractional
// kHz never goes anywhere near a float.
type Frequency int

func NewFrequency(f float32) Frequency {
	// 0.5 is key for handling rounding!
	return Frequency(f*1000 + 0.5)
}

func (f Frequency) String() string {
	s := fmt.Sprintf("%03d.%03d", f/1000, f%1000)
	for len(s) < 7 {
		s += "0"
	}
	return s
}

// GUID returns the channel identifier derived from the frequency: the
// kHz-scaled value padded to eight digits followed by zeroed groups.
// 134.565 maps to 13456500-0000-0000-0000-000000000000.
func (f Frequency) GUID() uuid.UUID {
	u, err := uuid.Parse(fmt.Sprintf("%08d-0000-0000-0000-000000000000", int(f)*100))
	if err != nil {
		// Only reachable for frequencies above 999.99 MHz, which the
		// parser rejects.
		return uuid.Nil
	}
	return u
}

func (f Frequency) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%d.%03d", f/1000, f%1000)), nil
}

func (f *Frequency) UnmarshalJSON(b []byte) error {
	fr, err := ParseFrequency(string(b))
	if err == nil {
		*f = fr
	}
	return err
}

// ParseFrequency parses a decimal frequency in MHz, e.g. "134.565",
// digit-wise so that the fractional part survives exactly.
func ParseFrequency(s string) (Frequency, error) {
	whole, frac := s, ""
	for i := range s {
		if s[i] == '.' {
			whole, frac = s[:i], s[i+1:]
			break
		}
	}

	mhz, err := strconv.Atoi(whole)
	if err != nil || mhz < 0 || mhz > 999 {
		return 0, fmt.Errorf("%s: invalid frequency", s)
	}

	khz := 0
	for i := 0; i < 3; i++ {
		khz *= 10
		if i < len(frac) {
			if frac[i] < '0' || frac[i] > '9' {
				return 0, fmt.Errorf("%s: invalid frequency", s)
			}
			khz += int(frac[i] - '0')
		}
	}
	if len(frac) > 3 {
		return 0, fmt.Errorf("%s: frequency has sub-kHz precision", s)
	}

	return Frequency(mhz*1000 + khz), nil
}
