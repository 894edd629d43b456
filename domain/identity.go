// Package domain contains core concepts of the chat engine.
// This file defines Identity, the stable participant profile.
// No runtime, network, or UI logic should be added here.
package domain

// Identity is a registered chat participant, stable across reconnections.
// The profile is owned by the external identity store; the engine only
// derives the online flag from connection existence.
type Identity struct {
	ID          string
	DisplayName string
}
