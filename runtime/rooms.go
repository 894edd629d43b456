package runtime

import (
	"chat-engine/contract"
	"chat-engine/domain"
	"chat-engine/domain/event"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

// RoomManager owns the room table and the connection->room mapping.
// A connection is a member of at most one room; joining a new room leaves the
// previous one as part of the same mutation, so no member-less intermediate
// state of the old room is ever observable.
//
// Lock order is registry -> room. The manager therefore never touches the
// registry while holding its own mutex: membership is mutated first, events
// and identity lookups happen after the lock is released.
type RoomManager struct {
	mu        sync.Mutex
	rooms     map[domain.RoomID]*domain.Room
	roomOf    map[domain.ConnectionID]domain.RoomID
	registry  *ConnectionRegistry
	directory contract.IdentityDirectory
	log       *slog.Logger
}

func NewRoomManager(registry *ConnectionRegistry, directory contract.IdentityDirectory, log *slog.Logger) *RoomManager {
	return &RoomManager{
		rooms:     make(map[domain.RoomID]*domain.Room),
		roomOf:    make(map[domain.ConnectionID]domain.RoomID),
		registry:  registry,
		directory: directory,
		log:       log,
	}
}

// Join adds the connection to roomID, creating the room lazily and leaving
// the previous room first. It returns the member list excluding the joiner.
// Re-joining the current room only refreshes LastActivityAt and emits no
// join/leave events.
func (m *RoomManager) Join(ctx context.Context, handle contract.ConnectionHandle, roomID domain.RoomID, displayName string) domain.RoomSnapshot {
	connID := handle.ID()

	m.mu.Lock()
	if current, ok := m.roomOf[connID]; ok && current == roomID {
		room := m.rooms[roomID]
		room.LastActivityAt = time.Now().UTC()
		others := m.otherMembers(room, connID)
		display := room.DisplayName
		m.mu.Unlock()
		return m.snapshot(roomID, display, others)
	}

	var previous *domain.RoomID
	var previousMembers []domain.ConnectionID
	if current, ok := m.roomOf[connID]; ok {
		previous = &current
		previousMembers = m.dropMember(current, connID)
	}

	room, ok := m.rooms[roomID]
	if !ok {
		room = domain.NewRoom(roomID, displayName)
		m.rooms[roomID] = room
		m.log.Info("Room created", "room", string(roomID), "display", room.DisplayName)
	}
	others := m.otherMembers(room, connID)
	room.Members[connID] = struct{}{}
	room.LastActivityAt = time.Now().UTC()
	m.roomOf[connID] = roomID
	display := room.DisplayName
	m.mu.Unlock()

	m.registry.SetCurrentRoom(connID, &roomID)
	joiner := m.identityOf(connID)
	if previous != nil {
		m.push(ctx, previousMembers, event.MemberLeft{Identity: joiner, Room: *previous})
	}
	m.push(ctx, others, event.MemberJoined{Identity: joiner, Room: roomID})
	return m.snapshot(roomID, display, others)
}

// Leave removes the connection from its current room, deleting the room when
// it becomes empty. Deletion is silent: nobody is left to observe it.
// A connection that is in no room is a no-op. The leaver identity is passed
// in because on a disconnect the registry entry is already gone.
// Returns the left room and whether it was deleted.
func (m *RoomManager) Leave(ctx context.Context, connID domain.ConnectionID, leaver domain.Identity) (domain.RoomID, bool, bool) {
	m.mu.Lock()
	roomID, ok := m.roomOf[connID]
	if !ok {
		m.mu.Unlock()
		return "", false, false
	}
	remaining := m.dropMember(roomID, connID)
	_, stillThere := m.rooms[roomID]
	m.mu.Unlock()

	m.registry.SetCurrentRoom(connID, nil)
	m.push(ctx, remaining, event.MemberLeft{Identity: leaver, Room: roomID})
	return roomID, true, !stillThere
}

func (m *RoomManager) MembersOf(roomID domain.RoomID) ([]domain.ConnectionID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, false
	}
	return lo.Keys(room.Members), true
}

func (m *RoomManager) RoomOf(connID domain.ConnectionID) (domain.RoomID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, ok := m.roomOf[connID]
	return roomID, ok
}

// Touch refreshes a room's LastActivityAt, e.g. after a message fan-out.
func (m *RoomManager) Touch(roomID domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[roomID]; ok {
		room.LastActivityAt = time.Now().UTC()
	}
}

// SweepEmpty removes zero-member rooms and returns their ids. The leave path
// already deletes empty rooms; this is the reaper's safety net for cleanup
// that was bypassed by a transport-level failure.
func (m *RoomManager) SweepEmpty() []domain.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var swept []domain.RoomID
	for id, room := range m.rooms {
		if len(room.Members) == 0 {
			delete(m.rooms, id)
			swept = append(swept, id)
		}
	}
	return swept
}

// dropMember removes connID from roomID under the held lock and returns the
// remaining members. Deletes the room when it becomes empty.
func (m *RoomManager) dropMember(roomID domain.RoomID, connID domain.ConnectionID) []domain.ConnectionID {
	delete(m.roomOf, connID)
	room, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	delete(room.Members, connID)
	if len(room.Members) == 0 {
		delete(m.rooms, roomID)
		m.log.Info("Room deleted", "room", string(roomID))
		return nil
	}
	return lo.Keys(room.Members)
}

func (m *RoomManager) otherMembers(room *domain.Room, connID domain.ConnectionID) []domain.ConnectionID {
	others := make([]domain.ConnectionID, 0, len(room.Members))
	for member := range room.Members {
		if member != connID {
			others = append(others, member)
		}
	}
	return others
}

func (m *RoomManager) snapshot(roomID domain.RoomID, display string, members []domain.ConnectionID) domain.RoomSnapshot {
	return domain.RoomSnapshot{
		ID:          roomID,
		DisplayName: display,
		Members: lo.FilterMap(members, func(connID domain.ConnectionID, _ int) (domain.Identity, bool) {
			live, ok := m.registry.LookupByConnection(connID)
			if !ok {
				return domain.Identity{}, false
			}
			return resolveIdentity(m.directory, live.Connection.IdentityID), true
		}),
	}
}

func (m *RoomManager) identityOf(connID domain.ConnectionID) domain.Identity {
	live, ok := m.registry.LookupByConnection(connID)
	if !ok {
		return domain.Identity{}
	}
	return resolveIdentity(m.directory, live.Connection.IdentityID)
}

func (m *RoomManager) push(ctx context.Context, members []domain.ConnectionID, e event.DomainEvent) {
	for _, connID := range members {
		live, ok := m.registry.LookupByConnection(connID)
		if !ok {
			continue
		}
		if err := live.Handle.Consume(ctx, e); err != nil {
			m.log.Warn("Room event dropped",
				"event", e.Name(), "connection", string(connID), "error", err)
		}
	}
}
