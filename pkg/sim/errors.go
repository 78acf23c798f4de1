// pkg/sim/errors.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import "errors"

var (
	ErrDuplicatePlugin    = errors.New("Plugin with that name already registered")
	ErrInvalidHandshake   = errors.New("Invalid handshake reply from hub")
	ErrInvalidMessage     = errors.New("Invalid message for this recipient")
	ErrMissingDependency  = errors.New("Unable to satisfy plugin constructor dependencies")
	ErrNotAConstructor    = errors.New("Plugin factory is not a function returning a plugin")
	ErrPluginNotFound     = errors.New("No plugin with that name")
	ErrServerDisconnected = errors.New("Server disconnected")
	ErrUnknownAircraft    = errors.New("No aircraft with that identifier")
	ErrUnknownController  = errors.New("No controller with that identifier")
)
