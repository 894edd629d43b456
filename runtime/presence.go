package runtime

import (
	"chat-engine/contract"
	"chat-engine/domain"
	"chat-engine/domain/event"
	"context"
	"log/slog"
	"sort"

	"github.com/samber/lo"
)

// PresenceDirectory derives the online/offline view from the connection
// registry. It holds no state of its own: reachability is always read through
// the registry at broadcast time, so it can never drift from the source of
// truth.
type PresenceDirectory struct {
	registry  *ConnectionRegistry
	directory contract.IdentityDirectory
	log       *slog.Logger
}

func NewPresenceDirectory(registry *ConnectionRegistry, directory contract.IdentityDirectory, log *slog.Logger) *PresenceDirectory {
	return &PresenceDirectory{registry: registry, directory: directory, log: log}
}

// ListOnline returns the currently online identities ordered by display name,
// excluding the viewer.
func (p *PresenceDirectory) ListOnline(excluding string) []domain.Identity {
	snapshot := p.registry.Snapshot()
	identities := lo.FilterMap(snapshot, func(live contract.LiveConnection, _ int) (domain.Identity, bool) {
		if live.Connection.IdentityID == excluding {
			return domain.Identity{}, false
		}
		return resolveIdentity(p.directory, live.Connection.IdentityID), true
	})
	sort.Slice(identities, func(i, j int) bool {
		return identities[i].DisplayName < identities[j].DisplayName
	})
	return identities
}

// BroadcastOnline notifies every other live connection that identity came
// online. For one identity, callers sequence offline-then-online themselves;
// this method provides no cross-call ordering.
func (p *PresenceDirectory) BroadcastOnline(ctx context.Context, identity domain.Identity) {
	p.push(ctx, identity.ID, event.PresenceOnline{Identity: identity})
}

func (p *PresenceDirectory) BroadcastOffline(ctx context.Context, identity domain.Identity) {
	p.push(ctx, identity.ID, event.PresenceOffline{Identity: identity})
}

func (p *PresenceDirectory) push(ctx context.Context, excluding string, e event.DomainEvent) {
	for _, handle := range p.registry.HandlesExcept(excluding) {
		if err := handle.Consume(ctx, e); err != nil {
			p.log.Warn("Presence event dropped",
				"event", e.Name(), "connection", string(handle.ID()), "error", err)
		}
	}
}

// resolveIdentity fetches a profile from the identity store collaborator,
// degrading to the raw id when the store has no record.
func resolveIdentity(directory contract.IdentityDirectory, identityID string) domain.Identity {
	identity, err := directory.Resolve(identityID)
	if err != nil {
		return domain.Identity{ID: identityID, DisplayName: identityID}
	}
	return identity
}
