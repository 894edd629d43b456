package workers

import (
	"chat-engine/contract"
	"chat-engine/domain"
	"context"
	"log/slog"
	"time"
)

// Engine is the slice of the orchestrator the reaper needs: the live
// connection snapshot, the shared disconnect path and the empty-room sweep.
type Engine interface {
	Snapshot() []contract.LiveConnection
	Disconnect(ctx context.Context, handle contract.ConnectionHandle)
	SweepEmptyRooms() []domain.RoomID
}

// StaleSessionReaper periodically evicts connections whose transport stopped
// proving liveness without a clean disconnect (abrupt network loss), plus any
// zero-member room left behind. Eviction goes through the exact same
// disconnect path as a clean close, so presence-offline and typing-stopped
// side effects are never skipped.
type StaleSessionReaper struct {
	engine         Engine
	interval       time.Duration
	staleThreshold time.Duration
	log            *slog.Logger
}

func NewStaleSessionReaper(engine Engine, interval, staleThreshold time.Duration, log *slog.Logger) *StaleSessionReaper {
	return &StaleSessionReaper{
		engine:         engine,
		interval:       interval,
		staleThreshold: staleThreshold,
		log:            log,
	}
}

func (w *StaleSessionReaper) Run(ctx context.Context) error {
	w.log.Info("Starting stale-session reaper",
		"interval", w.interval, "threshold", w.staleThreshold)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *StaleSessionReaper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleThreshold)
	for _, live := range w.engine.Snapshot() {
		if live.Handle.LastActive().After(cutoff) {
			continue
		}
		w.log.Warn("Reaping stale connection",
			"connection", string(live.Connection.ID),
			"identity", live.Connection.IdentityID,
			"last_active", live.Handle.LastActive())
		w.engine.Disconnect(ctx, live.Handle)
		if err := live.Handle.Close("transport-failure"); err != nil {
			w.log.Debug("Stale transport close failed",
				"connection", string(live.Connection.ID), "error", err)
		}
	}

	if swept := w.engine.SweepEmptyRooms(); len(swept) > 0 {
		w.log.Info("Swept empty rooms", "count", len(swept))
	}
}
