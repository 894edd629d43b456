// Package repositories holds the badger-backed collaborator implementations:
// the durable message log and the identity directory. The engine only appends
// messages; history reads serve the external REST layer.
package repositories

import (
	"chat-engine/domain"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	Append(message domain.Message) error
	History(conversation string, cursor *string) ([]DiskMessage, *string, error)
}

// DiskMessage is the stored shape of one message record.
type DiskMessage struct {
	ID       uuid.UUID          `json:"id"`
	Kind     domain.MessageKind `json:"kind"`
	From     string             `json:"from"`
	FromName string             `json:"from_name"`
	To       string             `json:"to,omitempty"`
	Room     string             `json:"room,omitempty"`
	Body     string             `json:"body"`
	At       time.Time          `json:"at"`
}

type MessageRepository struct {
	db    *badger.DB
	log   *slog.Logger
	limit *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limit *int) MessageRepository {
	return MessageRepository{db: db, log: log, limit: limit}
}

// RoomConversation keys the history of one room.
func RoomConversation(roomID domain.RoomID) string {
	return "room:" + string(roomID)
}

// PrivateConversation keys a private history independently of who sent what:
// both directions land under the same sorted identity pair.
func PrivateConversation(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return "private:" + pair[0] + ":" + pair[1]
}

func conversationOf(message domain.Message) string {
	if message.Kind == domain.KindRoom {
		return RoomConversation(message.Room)
	}
	return PrivateConversation(message.FromID, message.ToIdentity)
}

// Append persists one message. The key is
// "msg:{conversation}:{timestamp_padded}:{uuid}"; the 19-digit zero padding
// keeps badger's lexicographical order chronological within a conversation.
func (m MessageRepository) Append(message domain.Message) error {
	record := DiskMessage{
		ID:       message.ID,
		Kind:     message.Kind,
		From:     message.FromID,
		FromName: message.FromName,
		To:       message.ToIdentity,
		Room:     string(message.Room),
		Body:     message.Body,
		At:       message.SentAt,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	key := fmt.Sprintf("msg:%s:%019d:%s",
		conversationOf(message), message.SentAt.UnixNano(), message.ID)
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// History retrieves messages for a conversation using a reverse prefix scan,
// newest first, resuming after the cursor when one is given. It stops once
// the configured limit is reached and returns the cursor of the last record.
func (m MessageRepository) History(conversation string, cursor *string) ([]DiskMessage, *string, error) {
	var rawRecords [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", conversation)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limit != nil && len(rawRecords) == *m.limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limit))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			if err := item.Value(func(value []byte) error {
				rawRecords = append(rawRecords, append([]byte(nil), value...))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	records := make([]DiskMessage, 0, len(rawRecords))
	for _, raw := range rawRecords {
		var record DiskMessage
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, nil, err
		}
		records = append(records, record)
	}
	return records, lo.ToPtr(lastKey), nil
}
