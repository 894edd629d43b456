package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// Connection is one live transport session currently representing an identity.
// Owned exclusively by the ConnectionRegistry from announce to removal.
// At most one non-stale Connection exists per identity.
type Connection struct {
	ID          ConnectionID
	IdentityID  string
	JoinedAt    time.Time
	CurrentRoom *RoomID
}
