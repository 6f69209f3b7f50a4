package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/peertutor/relay/internal/domain"
)

func newDB(t *testing.T) *MessageStore {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewMessageStore(db)
}

func msg(channel, author, body string, at time.Time) domain.StoredMessage {
	return domain.StoredMessage{
		ID:      uuid.New(),
		Channel: channel,
		Author:  author,
		Body:    json.RawMessage(body),
		At:      at,
	}
}

func TestMessageHistoryNewestFirst(t *testing.T) {
	s := newDB(t)
	base := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(msg("session:1", "a", `"hi"`, base.Add(time.Duration(i)*time.Second))))
	}

	got, err := s.History("session:1", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.True(t, got[0].At.After(got[1].At))
	require.True(t, got[1].At.After(got[2].At))
}

func TestMessageHistoryHonorsLimitAndChannel(t *testing.T) {
	s := newDB(t)
	base := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(msg("topic:go", "a", `"x"`, base.Add(time.Duration(i)*time.Millisecond))))
	}
	require.NoError(t, s.Append(msg("topic:golang", "b", `"other"`, base)))

	got, err := s.History("topic:go", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, m := range got {
		require.Equal(t, "topic:go", m.Channel)
	}

	empty, err := s.History("topic:none", 0)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestNotificationPushDrain(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := NewNotificationStore(db)

	user := domain.UserID("alice")
	base := time.Now()
	for i := 0; i < 3; i++ {
		err := s.Push(user, domain.Notification{
			ID:   uuid.New(),
			User: user,
			Body: json.RawMessage(`{"event":"ReceiveNotification","args":["n"]}`),
			At:   base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	got, err := s.Drain(user)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.True(t, got[0].At.Before(got[1].At))

	// Drained once, gone for good.
	again, err := s.Drain(user)
	require.NoError(t, err)
	require.Empty(t, again)

	// Other users' inboxes are untouched.
	other, err := s.Drain(domain.UserID("bob"))
	require.NoError(t, err)
	require.Empty(t, other)
}
