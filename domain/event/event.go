// Package event defines the closed set of outbound domain events pushed to
// live connections. Each variant maps to one wire event of the chat protocol.
package event

import (
	"chat-engine/domain"
)

type DomainEvent interface {
	Name() string
}

type PresenceOnline struct {
	Identity domain.Identity
}

func (PresenceOnline) Name() string { return "presence-online" }

type PresenceOffline struct {
	Identity domain.Identity
}

func (PresenceOffline) Name() string { return "presence-offline" }

// OnlineRoster is sent to a freshly announced connection so the client can
// render the current online list without a separate query.
type OnlineRoster struct {
	Identities []domain.Identity
}

func (OnlineRoster) Name() string { return "online-roster" }

type RoomJoined struct {
	Room    domain.RoomID
	Display string
	Members []domain.Identity
}

func (RoomJoined) Name() string { return "room-joined" }

type MemberJoined struct {
	Identity domain.Identity
	Room     domain.RoomID
}

func (MemberJoined) Name() string { return "member-joined" }

type MemberLeft struct {
	Identity domain.Identity
	Room     domain.RoomID
}

func (MemberLeft) Name() string { return "member-left" }

type MessageReceived struct {
	Message domain.Message
}

func (MessageReceived) Name() string { return "receive-message" }

// MessageSent acknowledges a send to its author, delivered or not.
// It carries the same message id as the matching MessageReceived so the
// client can reconcile optimistic UI state.
type MessageSent struct {
	Message   domain.Message
	Delivered bool
	Reason    domain.FailureReason
}

func (MessageSent) Name() string { return "message-sent" }

type TypingStarted struct {
	Identity    domain.Identity
	Destination domain.Destination
}

func (TypingStarted) Name() string { return "typing-started" }

type TypingStopped struct {
	Identity    domain.Identity
	Destination domain.Destination
}

func (TypingStopped) Name() string { return "typing-stopped" }

type Error struct {
	Code    string
	Message string
}

func (Error) Name() string { return "error" }
