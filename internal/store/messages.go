package store

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/peertutor/relay/internal/domain"
)

// MessageStore persists broadcast messages per channel so that a client
// joining late can fetch history out-of-band.
type MessageStore struct {
	db *badger.DB
}

func NewMessageStore(db *badger.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Append stores one message. The key is "msg:{channel}:{paddedNanos}:{uuid}":
// 19-digit zero padding keeps lexicographic order chronological, and the
// uuid tail disambiguates two messages landing on the same nanosecond.
func (s *MessageStore) Append(m domain.StoredMessage) error {
	key := fmt.Sprintf("msg:%s:%019d:%s", m.Channel, m.At.UnixNano(), m.ID)
	val, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal stored message: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

// History returns up to limit messages for a channel, newest first.
func (s *MessageStore) History(channel string, limit int) ([]domain.StoredMessage, error) {
	var raw [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", channel))
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past every possible timestamp, then walk backwards.
		seek := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(raw) == limit {
				break
			}
			err := it.Item().Value(func(v []byte) error {
				raw = append(raw, append([]byte{}, v...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.StoredMessage, 0, len(raw))
	for _, b := range raw {
		var m domain.StoredMessage
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("unmarshal stored message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}
