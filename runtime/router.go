package runtime

import (
	"chat-engine/contract"
	"chat-engine/domain"
	"chat-engine/domain/event"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Censor sanitizes a message body before fan-out.
type Censor interface {
	Censor(original string) string
}

// MessageRouter resolves a logical destination (identity or room) to the live
// connections that must receive an event, and delivers it.
//
// Two guarantees:
//   - the sender always gets a message-sent acknowledgment, delivered or not;
//   - sends into one room never overlap: a per-room mutex keeps every member
//     observing the same total order of messages.
//
// Delivered messages are handed to the recorder collaborator after fan-out,
// outside every lock, so a slow store cannot stall unrelated connections.
type MessageRouter struct {
	registry  *ConnectionRegistry
	rooms     *RoomManager
	directory contract.IdentityDirectory
	recorder  contract.MessageRecorder
	censor    Censor
	log       *slog.Logger

	mu        sync.Mutex
	roomLocks map[domain.RoomID]*sync.Mutex
}

func NewMessageRouter(registry *ConnectionRegistry, rooms *RoomManager,
	directory contract.IdentityDirectory, recorder contract.MessageRecorder,
	censor Censor, log *slog.Logger) *MessageRouter {
	return &MessageRouter{
		registry:  registry,
		rooms:     rooms,
		directory: directory,
		recorder:  recorder,
		censor:    censor,
		log:       log,
		roomLocks: make(map[domain.RoomID]*sync.Mutex),
	}
}

// SendPrivate delivers a point-to-point message. An offline recipient is a
// structured failure result, not an error: the engine queues nothing, the
// caller decides about a durable fallback. The sender receives a message-sent
// acknowledgment either way, carrying the same message id as the recipient's
// receive-message event.
func (r *MessageRouter) SendPrivate(ctx context.Context, from contract.ConnectionHandle, toIdentityID, body string) domain.DeliveryResult {
	sender := r.senderIdentity(from)
	msg := domain.Message{
		ID:         uuid.New(),
		Kind:       domain.KindPrivate,
		FromID:     sender.ID,
		FromName:   sender.DisplayName,
		ToIdentity: toIdentityID,
		Body:       r.censor.Censor(body),
		SentAt:     time.Now().UTC(),
	}

	recipient, online := r.registry.Lookup(toIdentityID)
	result := domain.DeliveryResult{Message: msg, Delivered: online}
	if !online {
		result.Reason = domain.ReasonRecipientOffline
		r.acknowledge(ctx, from, result)
		return result
	}

	r.deliver(ctx, recipient.Handle, event.MessageReceived{Message: msg})
	r.acknowledge(ctx, from, result)
	r.record(msg)
	return result
}

// SendRoom fans a message out to every member of the sender's current room,
// sender included: its own copy comes back through the same path as everyone
// else's, so there is a single source of ordering truth.
func (r *MessageRouter) SendRoom(ctx context.Context, from contract.ConnectionHandle, body string) domain.DeliveryResult {
	sender := r.senderIdentity(from)
	msg := domain.Message{
		ID:       uuid.New(),
		Kind:     domain.KindRoom,
		FromID:   sender.ID,
		FromName: sender.DisplayName,
		Body:     r.censor.Censor(body),
		SentAt:   time.Now().UTC(),
	}

	roomID, ok := r.rooms.RoomOf(from.ID())
	if !ok {
		result := domain.DeliveryResult{Message: msg, Delivered: false, Reason: domain.ReasonNotInRoom}
		r.acknowledge(ctx, from, result)
		return result
	}
	msg.Room = roomID

	lock := r.roomLock(roomID)
	lock.Lock()
	members, found := r.rooms.MembersOf(roomID)
	if !found {
		lock.Unlock()
		result := domain.DeliveryResult{Message: msg, Delivered: false, Reason: domain.ReasonNotInRoom}
		r.acknowledge(ctx, from, result)
		return result
	}
	for _, connID := range members {
		if live, online := r.registry.LookupByConnection(connID); online {
			r.deliver(ctx, live.Handle, event.MessageReceived{Message: msg})
		}
	}
	lock.Unlock()

	r.rooms.Touch(roomID)
	r.record(msg)
	return domain.DeliveryResult{Message: msg, Delivered: true}
}

// Prune drops the send lock of a deleted room.
func (r *MessageRouter) Prune(roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roomLocks, roomID)
}

func (r *MessageRouter) roomLock(roomID domain.RoomID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.roomLocks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		r.roomLocks[roomID] = lock
	}
	return lock
}

func (r *MessageRouter) acknowledge(ctx context.Context, from contract.ConnectionHandle, result domain.DeliveryResult) {
	r.deliver(ctx, from, event.MessageSent{
		Message:   result.Message,
		Delivered: result.Delivered,
		Reason:    result.Reason,
	})
}

func (r *MessageRouter) deliver(ctx context.Context, handle contract.ConnectionHandle, e event.DomainEvent) {
	if err := handle.Consume(ctx, e); err != nil {
		r.log.Warn("Delivery dropped",
			"event", e.Name(), "connection", string(handle.ID()), "error", err)
	}
}

func (r *MessageRouter) record(msg domain.Message) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Append(msg); err != nil {
		r.log.Error("Message record failed", "message", msg.ID.String(), "error", err)
	}
}

func (r *MessageRouter) senderIdentity(from contract.ConnectionHandle) domain.Identity {
	live, ok := r.registry.LookupByConnection(from.ID())
	if !ok {
		return domain.Identity{}
	}
	return resolveIdentity(r.directory, live.Connection.IdentityID)
}
