package core

import (
	"encoding/json"
	"errors"

	"github.com/peertutor/relay/internal/domain"
)

// Frame is a raw wire payload, already marshaled.
type Frame []byte

var ErrBackpressure = errors.New("backpressure")

// EventSender abstracts a client's outbound half. Owned by the adapter;
// the adapter must Close() it. TrySend never blocks: a full buffer or a
// closed connection is a drop, reported but never retried.
type EventSender interface {
	TrySend(Frame) error
	Close()
}

// Server-pushed event names.
const (
	EventConnected           = "Connected"
	EventUserJoined          = "UserJoined"
	EventUserLeft            = "UserLeft"
	EventReceiveOffer        = "ReceiveOffer"
	EventReceiveAnswer       = "ReceiveAnswer"
	EventReceiveIceCandidate = "ReceiveIceCandidate"
	EventReceiveMessage      = "ReceiveMessage"
	EventReceiveForumMessage = "ReceiveForumMessage"
	EventReceiveNotification = "ReceiveNotification"
	EventError               = "Error"
)

// Event is the server→client envelope: {"event": ..., "args": [...]}.
type Event struct {
	Event string `json:"event"`
	Args  []any  `json:"args"`
}

func NewEvent(name string, args ...any) Event {
	return Event{Event: name, Args: args}
}

func (e Event) Frame() (Frame, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}

// RelayKind selects which signaling event a unicast relay is delivered as.
type RelayKind uint8

const (
	RelayOffer RelayKind = iota + 1
	RelayAnswer
	RelayIceCandidate
)

func (k RelayKind) eventName() string {
	switch k {
	case RelayOffer:
		return EventReceiveOffer
	case RelayAnswer:
		return EventReceiveAnswer
	case RelayIceCandidate:
		return EventReceiveIceCandidate
	}
	return ""
}

// MessageStore is the persistence collaborator called on the chat/forum
// broadcast path before relaying, so late joiners can fetch history.
type MessageStore interface {
	Append(domain.StoredMessage) error
}

// NotificationStore holds events addressed to users that are offline at
// send time, for later poll/pull recovery.
type NotificationStore interface {
	Push(domain.UserID, domain.Notification) error
}
