package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peertutor/relay/internal/domain"
)

func TestRegistryRegisterUnregister(t *testing.T) {
	r := NewRegistry()
	s := &fakeSender{}

	id := r.Register(s)
	require.NotEmpty(t, id)

	got, ok := r.Sender(id)
	require.True(t, ok)
	require.Same(t, s, got.(*fakeSender))

	r.Unregister(id)
	_, ok = r.Sender(id)
	require.False(t, ok)

	// Idempotent, including for ids that never existed.
	r.Unregister(id)
	r.Unregister(domain.ConnectionID("never-registered"))
}

func TestRegistryBindResolveUser(t *testing.T) {
	r := NewRegistry()
	user := domain.UserID("alice")

	_, ok := r.ResolveUser(user)
	require.False(t, ok)

	c1 := r.Register(&fakeSender{})
	r.BindUser(user, c1)

	got, ok := r.ResolveUser(user)
	require.True(t, ok)
	require.Equal(t, c1, got)

	r.UnbindUser(user, c1)
	_, ok = r.ResolveUser(user)
	require.False(t, ok)
}

func TestRegistryRebindIsLastWriteWins(t *testing.T) {
	r := NewRegistry()
	user := domain.UserID("alice")

	c1 := r.Register(&fakeSender{})
	c2 := r.Register(&fakeSender{})
	r.BindUser(user, c1)
	r.BindUser(user, c2)

	got, ok := r.ResolveUser(user)
	require.True(t, ok)
	require.Equal(t, c2, got)
}

// A stale unregister of the old connection must not knock out the binding
// a fast reconnect just established.
func TestRegistryStaleUnregisterKeepsNewerBinding(t *testing.T) {
	r := NewRegistry()
	user := domain.UserID("alice")

	c1 := r.Register(&fakeSender{})
	r.BindUser(user, c1)

	c2 := r.Register(&fakeSender{})
	r.BindUser(user, c2)

	r.Unregister(c1)

	got, ok := r.ResolveUser(user)
	require.True(t, ok)
	require.Equal(t, c2, got)

	// Unregistering the current holder clears it.
	r.Unregister(c2)
	_, ok = r.ResolveUser(user)
	require.False(t, ok)
}

func TestRegistryUnbindByNonHolderIsNoop(t *testing.T) {
	r := NewRegistry()
	user := domain.UserID("alice")

	c1 := r.Register(&fakeSender{})
	c2 := r.Register(&fakeSender{})
	r.BindUser(user, c1)

	r.UnbindUser(user, c2)

	got, ok := r.ResolveUser(user)
	require.True(t, ok)
	require.Equal(t, c1, got)
}
