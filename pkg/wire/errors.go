// pkg/wire/errors.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wire

import "errors"

var (
	ErrDeleteAppliedToEntity = errors.New("Delete update applied to a live entity")
	ErrInvalidSquawkCode     = errors.New("Invalid squawk code")
	ErrUpdateIDMismatch      = errors.New("Update addressed to a different entity")
)
