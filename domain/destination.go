package domain

type DestinationKind string

const (
	DestIdentity DestinationKind = "identity"
	DestRoom     DestinationKind = "room"
)

// Destination addresses a typing signal: either a single identity
// (private conversation) or a room.
type Destination struct {
	Kind DestinationKind
	Key  string
}

func IdentityDestination(identityID string) Destination {
	return Destination{Kind: DestIdentity, Key: identityID}
}

func RoomDestination(roomID RoomID) Destination {
	return Destination{Kind: DestRoom, Key: string(roomID)}
}
