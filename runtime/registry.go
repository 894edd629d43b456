package runtime

import (
	"chat-engine/contract"
	"chat-engine/domain"
	"log/slog"
	"sync"
	"time"
)

// ConnectionRegistry is the single writer-of-record for "is identity X
// reachable and via which connection". Presence and room views must read
// reachability through it, never cache it across operations.
//
// Invariant: at most one live connection per identity. A second announce for
// the same identity supersedes the first one (last-writer-wins).
type ConnectionRegistry struct {
	mu           sync.RWMutex
	byIdentity   map[string]*contract.LiveConnection
	byConnection map[domain.ConnectionID]*contract.LiveConnection
	log          *slog.Logger
}

func NewConnectionRegistry(log *slog.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		byIdentity:   make(map[string]*contract.LiveConnection),
		byConnection: make(map[domain.ConnectionID]*contract.LiveConnection),
		log:          log,
	}
}

// Announce registers a new live connection for identityID and returns it,
// together with the superseded connection if the identity was already
// connected through a different one. The superseded entry is removed from the
// registry here; closing its transport and cleaning up its room and typing
// state is the caller's job, and must happen before the new connection is
// announced to other clients. A repeat announce on the same connection is a
// refresh, never a supersession of itself.
func (r *ConnectionRegistry) Announce(handle contract.ConnectionHandle, identityID string) (domain.Connection, *contract.LiveConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	superseded := r.byIdentity[identityID]
	if superseded != nil && superseded.Connection.ID == handle.ID() {
		return superseded.Connection, nil
	}
	if superseded != nil {
		delete(r.byConnection, superseded.Connection.ID)
		r.log.Info("Connection superseded",
			"identity", identityID, "old_connection", string(superseded.Connection.ID))
	}

	live := &contract.LiveConnection{
		Connection: domain.Connection{
			ID:         handle.ID(),
			IdentityID: identityID,
			JoinedAt:   time.Now().UTC(),
		},
		Handle: handle,
	}
	r.byIdentity[identityID] = live
	r.byConnection[live.Connection.ID] = live
	return live.Connection, superseded
}

func (r *ConnectionRegistry) Lookup(identityID string) (contract.LiveConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	live, ok := r.byIdentity[identityID]
	if !ok {
		return contract.LiveConnection{}, false
	}
	return *live, true
}

func (r *ConnectionRegistry) LookupByConnection(id domain.ConnectionID) (contract.LiveConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	live, ok := r.byConnection[id]
	if !ok {
		return contract.LiveConnection{}, false
	}
	return *live, true
}

// Remove deregisters a connection and returns what was removed. It is
// idempotent: a disconnect observed twice, or a disconnect racing with a
// supersession, resolves to a no-op the second time.
func (r *ConnectionRegistry) Remove(id domain.ConnectionID) (contract.LiveConnection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	live, ok := r.byConnection[id]
	if !ok {
		return contract.LiveConnection{}, false
	}
	delete(r.byConnection, id)
	// Only drop the identity mapping if it still points at this connection;
	// a superseding announce may already have replaced it.
	if current, ok := r.byIdentity[live.Connection.IdentityID]; ok && current.Connection.ID == id {
		delete(r.byIdentity, live.Connection.IdentityID)
	}
	return *live, true
}

// SetCurrentRoom records the room a connection currently belongs to.
// Called by the room manager after a membership change, with no other
// lock held.
func (r *ConnectionRegistry) SetCurrentRoom(id domain.ConnectionID, room *domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if live, ok := r.byConnection[id]; ok {
		live.Connection.CurrentRoom = room
	}
}

// Snapshot returns a copy of all live connections, for broadcast fan-out and
// for the stale-session reaper.
func (r *ConnectionRegistry) Snapshot() []contract.LiveConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]contract.LiveConnection, 0, len(r.byConnection))
	for _, live := range r.byConnection {
		out = append(out, *live)
	}
	return out
}

// HandlesExcept returns the transports of every live connection not owned by
// identityID. Used by presence broadcasts, which exclude the subject itself.
func (r *ConnectionRegistry) HandlesExcept(identityID string) []contract.ConnectionHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var handles []contract.ConnectionHandle
	for _, live := range r.byConnection {
		if live.Connection.IdentityID != identityID {
			handles = append(handles, live.Handle)
		}
	}
	return handles
}
