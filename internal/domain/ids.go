// Package domain contains entities without logic, just meta-data.
package domain

import "github.com/google/uuid"

type (
	// ConnectionID identifies one live transport connection. It is opaque,
	// server-generated and never reused; a reconnect gets a fresh one.
	ConnectionID string

	// UserID is the caller-supplied logical identity, stable across reconnects.
	UserID string

	SessionID string
	TopicID   string
)

// NewConnectionID mints an id for a freshly accepted connection.
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}
