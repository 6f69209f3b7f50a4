package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StoredMessage is a chat or forum message handed to the persistence
// collaborator before it is relayed. Body is whatever the client sent,
// kept opaque.
type StoredMessage struct {
	ID      uuid.UUID       `json:"id"`
	Channel string          `json:"channel"`
	Author  string          `json:"author"`
	Body    json.RawMessage `json:"body"`
	At      time.Time       `json:"at"`
}

// Notification is an event addressed to an offline user, held until the
// user drains its inbox.
type Notification struct {
	ID   uuid.UUID       `json:"id"`
	User UserID          `json:"user"`
	Body json.RawMessage `json:"body"`
	At   time.Time       `json:"at"`
}
