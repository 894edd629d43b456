package runtime

import (
	"chat-engine/contract"
	"chat-engine/domain"
	"chat-engine/domain/event"
	"chat-engine/errors"
	"context"
	"log/slog"
	"sync"
	"time"
)

// TypingTracker holds the ephemeral "currently typing" marks. Nothing here is
// ever persisted; a process restart loses all marks by design.
//
// Each mark is scoped to one (connection, destination) pair and carries an
// expiry timer: if no explicit stop arrives, the tracker synthesizes the
// typing-stopped broadcast itself, so clients never observe a typing state
// that never ends.
type TypingTracker struct {
	registry  *ConnectionRegistry
	rooms     *RoomManager
	directory contract.IdentityDirectory
	expiry    time.Duration
	log       *slog.Logger

	mu    sync.Mutex
	gen   uint64
	marks map[markKey]*typingMark
}

type markKey struct {
	conn domain.ConnectionID
	dest domain.Destination
}

// typingMark carries a generation: every re-arm replaces the timer and bumps
// the generation, so an expire call from a timer that fired while the re-arm
// held the mutex recognizes itself as stale.
type typingMark struct {
	timer    *time.Timer
	identity domain.Identity
	gen      uint64
}

func NewTypingTracker(registry *ConnectionRegistry, rooms *RoomManager,
	directory contract.IdentityDirectory, expiry time.Duration, log *slog.Logger) *TypingTracker {
	return &TypingTracker{
		registry:  registry,
		rooms:     rooms,
		directory: directory,
		expiry:    expiry,
		log:       log,
		marks:     make(map[markKey]*typingMark),
	}
}

// StartTyping marks the sender as typing towards dest and broadcasts
// typing-started to the destination, excluding the sender. Re-invocation
// before expiry re-arms the timer without a duplicate broadcast.
// Typing towards a room is only valid while the sender is a member of it.
func (t *TypingTracker) StartTyping(ctx context.Context, from contract.ConnectionHandle, dest domain.Destination) error {
	if dest.Kind == domain.DestRoom {
		current, ok := t.rooms.RoomOf(from.ID())
		if !ok || current != domain.RoomID(dest.Key) {
			return errors.ErrNotAMember
		}
	}

	key := markKey{conn: from.ID(), dest: dest}
	sender := t.senderIdentity(from)

	t.mu.Lock()
	if mark, ok := t.marks[key]; ok {
		mark.timer.Stop()
		t.arm(key, mark)
		t.mu.Unlock()
		return nil
	}
	mark := &typingMark{identity: sender}
	t.arm(key, mark)
	t.marks[key] = mark
	t.mu.Unlock()

	t.push(ctx, from.ID(), dest, event.TypingStarted{Identity: sender, Destination: dest})
	return nil
}

// StopTyping clears the mark immediately, cancels the pending expiry timer
// and broadcasts typing-stopped. Stopping an absent mark is a no-op.
func (t *TypingTracker) StopTyping(ctx context.Context, from contract.ConnectionHandle, dest domain.Destination) {
	key := markKey{conn: from.ID(), dest: dest}

	t.mu.Lock()
	mark, ok := t.marks[key]
	if ok {
		mark.timer.Stop()
		delete(t.marks, key)
	}
	t.mu.Unlock()

	if ok {
		t.push(ctx, from.ID(), dest, event.TypingStopped{Identity: mark.identity, Destination: dest})
	}
}

// ClearConnection drops every mark owned by the connection and emits the
// matching typing-stopped events. Called on disconnect and supersession so no
// orphaned indicator survives its owner.
func (t *TypingTracker) ClearConnection(ctx context.Context, connID domain.ConnectionID) {
	t.mu.Lock()
	cleared := make(map[domain.Destination]domain.Identity)
	for key, mark := range t.marks {
		if key.conn == connID {
			mark.timer.Stop()
			delete(t.marks, key)
			cleared[key.dest] = mark.identity
		}
	}
	t.mu.Unlock()

	for dest, identity := range cleared {
		t.push(ctx, connID, dest, event.TypingStopped{Identity: identity, Destination: dest})
	}
}

// ClearDestination drops the connection's mark towards one destination, used
// when an implicit room leave invalidates a room-scoped mark.
func (t *TypingTracker) ClearDestination(ctx context.Context, connID domain.ConnectionID, dest domain.Destination) {
	key := markKey{conn: connID, dest: dest}

	t.mu.Lock()
	mark, ok := t.marks[key]
	if ok {
		mark.timer.Stop()
		delete(t.marks, key)
	}
	t.mu.Unlock()

	if ok {
		t.push(ctx, connID, dest, event.TypingStopped{Identity: mark.identity, Destination: dest})
	}
}

// arm gives the mark a fresh timer under a new generation. Caller holds the
// mutex.
func (t *TypingTracker) arm(key markKey, mark *typingMark) {
	t.gen++
	mark.gen = t.gen
	gen := mark.gen
	mark.timer = time.AfterFunc(t.expiry, func() { t.expire(key, gen) })
}

// expire fires when a mark outlives the expiry window: the stop broadcast is
// synthesized on behalf of the silent client. A generation mismatch means the
// mark was re-armed or replaced after this timer fired, so the call is stale
// and must not clear anything.
func (t *TypingTracker) expire(key markKey, gen uint64) {
	t.mu.Lock()
	mark, ok := t.marks[key]
	if !ok || mark.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.marks, key)
	t.mu.Unlock()

	t.log.Debug("Typing mark expired",
		"connection", string(key.conn), "destination", key.dest.Key)
	t.push(context.Background(), key.conn, key.dest,
		event.TypingStopped{Identity: mark.identity, Destination: key.dest})
}

// push resolves the destination audience at broadcast time: the recipient's
// live connection for an identity destination, the current room members
// (sender excluded) for a room destination. An offline audience is a no-op.
func (t *TypingTracker) push(ctx context.Context, sender domain.ConnectionID, dest domain.Destination, e event.DomainEvent) {
	switch dest.Kind {
	case domain.DestIdentity:
		live, online := t.registry.Lookup(dest.Key)
		if !online {
			return
		}
		t.consume(ctx, live.Handle, e)
	case domain.DestRoom:
		members, ok := t.rooms.MembersOf(domain.RoomID(dest.Key))
		if !ok {
			return
		}
		for _, connID := range members {
			if connID == sender {
				continue
			}
			if live, online := t.registry.LookupByConnection(connID); online {
				t.consume(ctx, live.Handle, e)
			}
		}
	}
}

func (t *TypingTracker) consume(ctx context.Context, handle contract.ConnectionHandle, e event.DomainEvent) {
	if err := handle.Consume(ctx, e); err != nil {
		t.log.Warn("Typing event dropped",
			"event", e.Name(), "connection", string(handle.ID()), "error", err)
	}
}

func (t *TypingTracker) senderIdentity(from contract.ConnectionHandle) domain.Identity {
	live, ok := t.registry.LookupByConnection(from.ID())
	if !ok {
		return domain.Identity{}
	}
	return resolveIdentity(t.directory, live.Connection.IdentityID)
}
