// Package gateway is the websocket transport in front of the engine: one
// goroutine pair per connection, JSON frames on the wire, payloads validated
// at the boundary. Malformed input is answered with a structured error event,
// never propagated into the engine.
package gateway

import (
	"chat-engine/domain"
	"chat-engine/domain/event"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = validator.New()

// Frame is the wire envelope: a type tag plus an event-specific payload.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound payloads. Every field the engine relies on is validated here.
type AnnouncePayload struct {
	IdentityID string `json:"identityId" validate:"required"`
}

type JoinRoomPayload struct {
	RoomID          string `json:"roomId" validate:"required"`
	RoomDisplayName string `json:"roomDisplayName,omitempty"`
}

type SendPrivatePayload struct {
	ToIdentityID string `json:"toIdentityId" validate:"required"`
	Body         string `json:"body" validate:"required"`
}

type SendRoomPayload struct {
	Body string `json:"body" validate:"required"`
}

type TypingPayload struct {
	Destination     string `json:"destination" validate:"required"`
	DestinationKind string `json:"destinationKind" validate:"required,oneof=identity room"`
}

func (p TypingPayload) AsDestination() domain.Destination {
	if p.DestinationKind == string(domain.DestRoom) {
		return domain.RoomDestination(domain.RoomID(p.Destination))
	}
	return domain.IdentityDestination(p.Destination)
}

// decodePayload unmarshals and validates one inbound payload.
func decodePayload[T any](raw json.RawMessage) (T, error) {
	var payload T
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("malformed payload: %w", err)
	}
	if err := validate.Struct(payload); err != nil {
		return payload, fmt.Errorf("invalid payload: %w", err)
	}
	return payload, nil
}

// Outbound wire shapes.
type wireIdentity struct {
	IdentityID  string `json:"identityId"`
	DisplayName string `json:"displayName"`
}

type wireMessage struct {
	MessageID string    `json:"messageId"`
	Kind      string    `json:"kind"`
	From      string    `json:"from"`
	FromName  string    `json:"fromName"`
	To        string    `json:"toIdentityId,omitempty"`
	RoomID    string    `json:"roomId,omitempty"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sentAt"`
}

func toWireIdentity(identity domain.Identity) wireIdentity {
	return wireIdentity{IdentityID: identity.ID, DisplayName: identity.DisplayName}
}

func toWireMessage(message domain.Message) wireMessage {
	return wireMessage{
		MessageID: message.ID.String(),
		Kind:      string(message.Kind),
		From:      message.FromID,
		FromName:  message.FromName,
		To:        message.ToIdentity,
		RoomID:    string(message.Room),
		Body:      message.Body,
		SentAt:    message.SentAt,
	}
}

// EncodeEvent turns a domain event into its wire frame. The switch is the
// closed counterpart of the event variants: adding an event without a wire
// shape fails loudly at the unknown-event branch.
func EncodeEvent(e event.DomainEvent) ([]byte, error) {
	var payload any
	switch evt := e.(type) {
	case event.PresenceOnline:
		payload = toWireIdentity(evt.Identity)
	case event.PresenceOffline:
		payload = toWireIdentity(evt.Identity)
	case event.OnlineRoster:
		payload = struct {
			Identities []wireIdentity `json:"identities"`
		}{Identities: lo.Map(evt.Identities, func(identity domain.Identity, _ int) wireIdentity {
			return toWireIdentity(identity)
		})}
	case event.RoomJoined:
		payload = struct {
			RoomID      string         `json:"roomId"`
			DisplayName string         `json:"displayName"`
			Members     []wireIdentity `json:"members"`
		}{
			RoomID:      string(evt.Room),
			DisplayName: evt.Display,
			Members: lo.Map(evt.Members, func(identity domain.Identity, _ int) wireIdentity {
				return toWireIdentity(identity)
			}),
		}
	case event.MemberJoined:
		payload = struct {
			wireIdentity
			RoomID string `json:"roomId"`
		}{wireIdentity: toWireIdentity(evt.Identity), RoomID: string(evt.Room)}
	case event.MemberLeft:
		payload = struct {
			wireIdentity
			RoomID string `json:"roomId"`
		}{wireIdentity: toWireIdentity(evt.Identity), RoomID: string(evt.Room)}
	case event.MessageReceived:
		payload = toWireMessage(evt.Message)
	case event.MessageSent:
		payload = struct {
			wireMessage
			Delivered bool   `json:"delivered"`
			Reason    string `json:"reason,omitempty"`
		}{
			wireMessage: toWireMessage(evt.Message),
			Delivered:   evt.Delivered,
			Reason:      string(evt.Reason),
		}
	case event.TypingStarted:
		payload = struct {
			wireIdentity
			Destination     string `json:"destination"`
			DestinationKind string `json:"destinationKind"`
		}{
			wireIdentity:    toWireIdentity(evt.Identity),
			Destination:     evt.Destination.Key,
			DestinationKind: string(evt.Destination.Kind),
		}
	case event.TypingStopped:
		payload = struct {
			wireIdentity
			Destination     string `json:"destination"`
			DestinationKind string `json:"destinationKind"`
		}{
			wireIdentity:    toWireIdentity(evt.Identity),
			Destination:     evt.Destination.Key,
			DestinationKind: string(evt.Destination.Kind),
		}
	case event.Error:
		payload = struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}{Code: evt.Code, Message: evt.Message}
	default:
		return nil, fmt.Errorf("no wire shape for event %q", e.Name())
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: e.Name(), Payload: raw})
}
