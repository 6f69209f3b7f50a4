package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/peertutor/relay/internal/domain"
)

type connEntry struct {
	sender EventSender
	user   domain.UserID
}

// Registry tracks every live connection and, where a presence channel has
// been joined, the user identity bound to it.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnectionID]*connEntry
	users map[domain.UserID]domain.ConnectionID
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.ConnectionID]*connEntry),
		users: make(map[domain.UserID]domain.ConnectionID),
	}
}

// Register mints an id for a freshly accepted connection.
func (r *Registry) Register(sender EventSender) domain.ConnectionID {
	id := domain.NewConnectionID()
	r.mu.Lock()
	r.conns[id] = &connEntry{sender: sender}
	r.mu.Unlock()
	log.Info().Str("module", "core.registry").Str("conn", string(id)).Msg("registered connection")
	return id
}

// Unregister is idempotent. A user binding is cleared only while it still
// points at this connection: a stale unregister racing a fast reconnect
// must not knock out the newer binding.
func (r *Registry) Unregister(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return
	}
	if e.user != "" && r.users[e.user] == id {
		delete(r.users, e.user)
	}
	delete(r.conns, id)
	log.Info().Str("module", "core.registry").Str("conn", string(id)).Msg("unregistered connection")
}

func (r *Registry) Sender(id domain.ConnectionID) (EventSender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.sender, true
	}
	return nil, false
}

// BindUser is last-write-wins: a repeat join by the same user simply
// overwrites the stored connection.
func (r *Registry) BindUser(user domain.UserID, id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return
	}
	e.user = user
	r.users[user] = id
	log.Info().Str("module", "core.registry").Str("conn", string(id)).Str("user", string(user)).Msg("bound user")
}

// UnbindUser clears the binding only if this connection still holds it.
func (r *Registry) UnbindUser(user domain.UserID, id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.users[user] != id {
		return
	}
	delete(r.users, user)
	if e, ok := r.conns[id]; ok && e.user == user {
		e.user = ""
	}
	log.Info().Str("module", "core.registry").Str("conn", string(id)).Str("user", string(user)).Msg("unbound user")
}

func (r *Registry) ResolveUser(user domain.UserID) (domain.ConnectionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.users[user]
	return id, ok
}
