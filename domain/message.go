package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	KindPrivate MessageKind = "private"
	KindRoom    MessageKind = "room"
)

// Message is the transient in-flight envelope. The engine owns its delivery
// only; durable storage belongs to the MessageRecorder collaborator.
type Message struct {
	ID         uuid.UUID
	Kind       MessageKind
	FromID     string
	FromName   string
	ToIdentity string
	Room       RoomID
	Body       string
	SentAt     time.Time
}

type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonRecipientOffline FailureReason = "recipient-offline"
	ReasonNotInRoom        FailureReason = "not-in-room"
	ReasonNotAMember       FailureReason = "not-a-member"
)

// DeliveryResult is returned to the send caller. A failed delivery is a
// result, not an error: the caller decides about durable fallback.
type DeliveryResult struct {
	Message   Message
	Delivered bool
	Reason    FailureReason
}
