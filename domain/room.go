package domain

import "time"

type RoomID string

// Room is a named multi-party channel with a dynamic membership set.
// Created lazily on first join, deleted when the last member leaves.
// A connection belongs to at most one room at a time.
type Room struct {
	ID             RoomID
	DisplayName    string
	Members        map[ConnectionID]struct{}
	LastActivityAt time.Time
}

func NewRoom(id RoomID, displayName string) *Room {
	if displayName == "" {
		displayName = string(id)
	}
	return &Room{
		ID:             id,
		DisplayName:    displayName,
		Members:        make(map[ConnectionID]struct{}),
		LastActivityAt: time.Now().UTC(),
	}
}

// RoomSnapshot is what a joiner gets back: the room plus the members
// already present, excluding the joiner itself.
type RoomSnapshot struct {
	ID          RoomID
	DisplayName string
	Members     []Identity
}
