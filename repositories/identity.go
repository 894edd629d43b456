package repositories

import (
	"chat-engine/domain"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IIdentityRepository interface {
	Resolve(identityID string) (domain.Identity, error)
	Ensure(identityID string) (domain.Identity, error)
}

// IdentityRepository is the durable identity directory. Announce performs a
// find-or-create: an unknown identity gets a profile whose display name
// defaults to its id, matching how registration-less clients first appear.
type IdentityRepository struct {
	db *badger.DB
}

func NewIdentityRepository(db *badger.DB) IdentityRepository {
	return IdentityRepository{db: db}
}

type diskIdentity struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func identityKey(identityID string) []byte {
	return []byte("identity:" + identityID)
}

func (r IdentityRepository) Resolve(identityID string) (domain.Identity, error) {
	var record diskIdentity
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(identityKey(identityID))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &record)
		})
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("resolve %q: %w", identityID, err)
	}
	return domain.Identity{ID: record.ID, DisplayName: record.DisplayName}, nil
}

func (r IdentityRepository) Ensure(identityID string) (domain.Identity, error) {
	identity, err := r.Resolve(identityID)
	if err == nil {
		return identity, nil
	}

	record := diskIdentity{
		ID:          identityID,
		DisplayName: identityID,
		CreatedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("marshal failed: %w", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(identityKey(identityID), data)
	})
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{ID: record.ID, DisplayName: record.DisplayName}, nil
}
