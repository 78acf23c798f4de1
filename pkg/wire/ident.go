// pkg/wire/ident.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wire

import "github.com/google/uuid"

// GUID identifies a session, aircraft, or controller: a 128-bit opaque
// value rendered as canonical hex-with-dashes. Identifiers are assigned at
// creation by the side that introduces the entity.
type GUID = uuid.UUID

func NewGUID() GUID {
	return uuid.New()
}

func ParseGUID(s string) (GUID, error) {
	return uuid.Parse(s)
}
