package runtime

import (
	"chat-engine/domain"
	"chat-engine/domain/event"
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeHandle records every event pushed to one connection.
type fakeHandle struct {
	id domain.ConnectionID

	mu          sync.Mutex
	events      []event.DomainEvent
	closed      bool
	closeReason string
	lastActive  time.Time
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{id: domain.NewConnectionID(), lastActive: time.Now()}
}

func (h *fakeHandle) ID() domain.ConnectionID { return h.id }

func (h *fakeHandle) LastActive() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastActive
}

func (h *fakeHandle) Consume(_ context.Context, e event.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return nil
}

func (h *fakeHandle) Close(reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.closeReason = reason
	return nil
}

func (h *fakeHandle) Events() []event.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]event.DomainEvent(nil), h.events...)
}

func (h *fakeHandle) EventsNamed(name string) []event.DomainEvent {
	var out []event.DomainEvent
	for _, e := range h.Events() {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

func (h *fakeHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// fakeDirectory is an in-memory identity store.
type fakeDirectory struct {
	mu       sync.Mutex
	profiles map[string]domain.Identity
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{profiles: make(map[string]domain.Identity)}
}

func (d *fakeDirectory) Resolve(identityID string) (domain.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	identity, ok := d.profiles[identityID]
	if !ok {
		return domain.Identity{}, fmt.Errorf("identity %q not found", identityID)
	}
	return identity, nil
}

func (d *fakeDirectory) Ensure(identityID string) (domain.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if identity, ok := d.profiles[identityID]; ok {
		return identity, nil
	}
	identity := domain.Identity{ID: identityID, DisplayName: identityID}
	d.profiles[identityID] = identity
	return identity, nil
}

// fakeRecorder collects appended messages.
type fakeRecorder struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (r *fakeRecorder) Append(message domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

func (r *fakeRecorder) Messages() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Message(nil), r.messages...)
}

// passthroughCensor leaves bodies untouched.
type passthroughCensor struct{}

func (passthroughCensor) Censor(original string) string { return original }
