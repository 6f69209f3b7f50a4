package store

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/peertutor/relay/internal/domain"
)

// NotificationStore parks events addressed to offline users until the user
// drains its inbox over the pull API.
type NotificationStore struct {
	db *badger.DB
}

func NewNotificationStore(db *badger.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Push(user domain.UserID, n domain.Notification) error {
	key := fmt.Sprintf("ntf:%s:%019d:%s", user, n.At.UnixNano(), n.ID)
	val, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

// Drain returns the user's pending notifications oldest first and deletes
// them in the same transaction, so a poll sees each notification once.
func (s *NotificationStore) Drain(user domain.UserID) ([]domain.Notification, error) {
	var out []domain.Notification
	err := s.db.Update(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("ntf:%s:", user))
		var keys [][]byte

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			keys = append(keys, item.KeyCopy(nil))
			err := item.Value(func(v []byte) error {
				var n domain.Notification
				if err := json.Unmarshal(v, &n); err != nil {
					return err
				}
				out = append(out, n)
				return nil
			})
			if err != nil {
				it.Close()
				return err
			}
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
