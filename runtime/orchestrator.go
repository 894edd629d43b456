// Package runtime orchestrates connection lifecycle, room membership, message
// routing and typing signals. It contains no transport and no domain rules
// beyond sequencing the shared-state components.
package runtime

import (
	"chat-engine/contract"
	"chat-engine/domain"
	"chat-engine/domain/event"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Orchestrator wires the engine components together and sequences every
// cross-component operation: announce, disconnect, join, send, typing.
// It is the single entry point for the transport layer.
//
// Sequencing matters more than the individual components here. Announce and
// disconnect walk registry -> typing -> rooms -> presence so that cleanup of
// a superseded or vanished connection is fully observable before anything
// about its successor is.
type Orchestrator struct {
	log       *slog.Logger
	directory contract.IdentityDirectory
	registry  *ConnectionRegistry
	presence  *PresenceDirectory
	rooms     *RoomManager
	router    *MessageRouter
	typing    *TypingTracker

	// Presence transitions of one identity must not interleave: the
	// per-identity lock keeps the offline/online broadcast sequences of
	// racing announces and disconnects in registration order.
	mu      sync.Mutex
	idLocks map[string]*sync.Mutex
}

func NewOrchestrator(log *slog.Logger, directory contract.IdentityDirectory,
	recorder contract.MessageRecorder, censor Censor, typingExpiry time.Duration) *Orchestrator {
	registry := NewConnectionRegistry(log)
	rooms := NewRoomManager(registry, directory, log)
	return &Orchestrator{
		log:       log,
		directory: directory,
		registry:  registry,
		presence:  NewPresenceDirectory(registry, directory, log),
		rooms:     rooms,
		router:    NewMessageRouter(registry, rooms, directory, recorder, censor, log),
		typing:    NewTypingTracker(registry, rooms, directory, typingExpiry, log),
		idLocks:   make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) identityLock(identityID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.idLocks[identityID]
	if !ok {
		lock = &sync.Mutex{}
		o.idLocks[identityID] = lock
	}
	return lock
}

// Announce registers a live connection for identityID. If the identity is
// already connected through another connection the old one loses: its room
// membership and typing marks are cleaned up, its transport closed, and its
// offline broadcast goes out before the online broadcast of the new
// connection, so other clients observe offline-then-online in that order and
// nothing in between. A repeat announce on the same connection refreshes the
// registration without a supersession. The connection receives the current
// online roster either way.
func (o *Orchestrator) Announce(ctx context.Context, handle contract.ConnectionHandle, identityID string) (domain.Identity, error) {
	identity, err := o.directory.Ensure(identityID)
	if err != nil {
		return domain.Identity{}, err
	}

	lock := o.identityLock(identityID)
	lock.Lock()
	defer lock.Unlock()

	_, superseded := o.registry.Announce(handle, identityID)
	if superseded != nil {
		oldID := superseded.Connection.ID
		o.typing.ClearConnection(ctx, oldID)
		if roomID, left, deleted := o.rooms.Leave(ctx, oldID, identity); left && deleted {
			o.router.Prune(roomID)
		}
		if err := superseded.Handle.Close("duplicate-connection-superseded"); err != nil {
			o.log.Debug("Superseded connection close failed",
				"connection", string(oldID), "error", err)
		}
		o.presence.BroadcastOffline(ctx, identity)
	}
	o.presence.BroadcastOnline(ctx, identity)

	roster := event.OnlineRoster{Identities: o.presence.ListOnline(identityID)}
	if err := handle.Consume(ctx, roster); err != nil {
		o.log.Warn("Online roster dropped", "identity", identityID, "error", err)
	}

	o.log.Info("Identity online", "identity", identityID, "connection", string(handle.ID()))
	return identity, nil
}

// Disconnect tears down a connection: registry removal first, then typing and
// room cleanup, then the offline broadcast. Idempotent, and a no-op for a
// connection that was already superseded.
func (o *Orchestrator) Disconnect(ctx context.Context, handle contract.ConnectionHandle) {
	live, ok := o.registry.LookupByConnection(handle.ID())
	if !ok {
		return
	}
	lock := o.identityLock(live.Connection.IdentityID)
	lock.Lock()
	defer lock.Unlock()

	live, ok = o.registry.Remove(handle.ID())
	if !ok {
		return
	}
	identity := resolveIdentity(o.directory, live.Connection.IdentityID)

	o.typing.ClearConnection(ctx, live.Connection.ID)
	if roomID, left, deleted := o.rooms.Leave(ctx, live.Connection.ID, identity); left && deleted {
		o.router.Prune(roomID)
	}
	o.presence.BroadcastOffline(ctx, identity)
	o.log.Info("Identity offline", "identity", identity.ID, "connection", string(handle.ID()))
}

// JoinRoom moves the connection into roomID, clearing any typing mark scoped
// to the room it implicitly leaves, and answers the joiner with a room-joined
// event carrying the member snapshot.
func (o *Orchestrator) JoinRoom(ctx context.Context, handle contract.ConnectionHandle, roomID domain.RoomID, displayName string) domain.RoomSnapshot {
	if previous, ok := o.rooms.RoomOf(handle.ID()); ok && previous != roomID {
		o.typing.ClearDestination(ctx, handle.ID(), domain.RoomDestination(previous))
	}

	snapshot := o.rooms.Join(ctx, handle, roomID, displayName)

	joined := event.RoomJoined{Room: snapshot.ID, Display: snapshot.DisplayName, Members: snapshot.Members}
	if err := handle.Consume(ctx, joined); err != nil {
		o.log.Warn("Room-joined event dropped", "connection", string(handle.ID()), "error", err)
	}
	return snapshot
}

func (o *Orchestrator) SendPrivate(ctx context.Context, from contract.ConnectionHandle, toIdentityID, body string) domain.DeliveryResult {
	return o.router.SendPrivate(ctx, from, toIdentityID, body)
}

func (o *Orchestrator) SendRoom(ctx context.Context, from contract.ConnectionHandle, body string) domain.DeliveryResult {
	return o.router.SendRoom(ctx, from, body)
}

func (o *Orchestrator) StartTyping(ctx context.Context, from contract.ConnectionHandle, dest domain.Destination) error {
	return o.typing.StartTyping(ctx, from, dest)
}

func (o *Orchestrator) StopTyping(ctx context.Context, from contract.ConnectionHandle, dest domain.Destination) {
	o.typing.StopTyping(ctx, from, dest)
}

// Snapshot exposes the live connections for the stale-session reaper.
func (o *Orchestrator) Snapshot() []contract.LiveConnection {
	return o.registry.Snapshot()
}

// SweepEmptyRooms removes zero-member rooms and their send locks.
func (o *Orchestrator) SweepEmptyRooms() []domain.RoomID {
	swept := o.rooms.SweepEmpty()
	for _, roomID := range swept {
		o.router.Prune(roomID)
	}
	return swept
}
