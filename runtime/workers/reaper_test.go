package workers

import (
	"chat-engine/contract"
	"chat-engine/domain"
	"chat-engine/domain/event"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type staleHandle struct {
	id         domain.ConnectionID
	lastActive time.Time

	mu     sync.Mutex
	closed bool
}

func (h *staleHandle) ID() domain.ConnectionID { return h.id }
func (h *staleHandle) LastActive() time.Time   { return h.lastActive }
func (h *staleHandle) Consume(context.Context, event.DomainEvent) error {
	return nil
}
func (h *staleHandle) Close(string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}
func (h *staleHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type fakeEngine struct {
	mu           sync.Mutex
	live         []contract.LiveConnection
	disconnected []domain.ConnectionID
	swept        bool
}

func (e *fakeEngine) Snapshot() []contract.LiveConnection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]contract.LiveConnection(nil), e.live...)
}

func (e *fakeEngine) Disconnect(_ context.Context, handle contract.ConnectionHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disconnected = append(e.disconnected, handle.ID())
}

func (e *fakeEngine) SweepEmptyRooms() []domain.RoomID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.swept = true
	return nil
}

func TestStaleSessionReaper_Evicts_Only_Stale_Connections(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	stale := &staleHandle{id: domain.NewConnectionID(), lastActive: time.Now().Add(-time.Hour)}
	fresh := &staleHandle{id: domain.NewConnectionID(), lastActive: time.Now()}
	engine := &fakeEngine{live: []contract.LiveConnection{
		{Connection: domain.Connection{ID: stale.id, IdentityID: "alice"}, Handle: stale},
		{Connection: domain.Connection{ID: fresh.id, IdentityID: "bob"}, Handle: fresh},
	}}

	reaper := NewStaleSessionReaper(engine, 10*time.Millisecond, time.Minute, log)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = reaper.Run(ctx)
		close(done)
	}()

	// The stale connection goes through the shared disconnect path and its
	// transport is closed; the fresh one is left alone.
	require.Eventually(t, func() bool { return stale.isClosed() }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	req.Contains(engine.disconnected, stale.id)
	req.NotContains(engine.disconnected, fresh.id)
	req.False(fresh.isClosed())
	req.True(engine.swept)
}
