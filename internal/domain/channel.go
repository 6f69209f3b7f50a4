package domain

import (
	"errors"
	"fmt"
)

type ChannelKind uint8

const (
	KindSession ChannelKind = iota + 1
	KindUser
	KindTopic
)

var ErrUnknownChannelKind = errors.New("unknown channel kind")

func (k ChannelKind) String() string {
	switch k {
	case KindSession:
		return "session"
	case KindUser:
		return "user"
	case KindTopic:
		return "topic"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func ParseChannelKind(s string) (ChannelKind, error) {
	switch s {
	case "session":
		return KindSession, nil
	case "user":
		return KindUser, nil
	case "topic":
		return KindTopic, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownChannelKind, s)
}

// ChannelKey names one broadcast/membership domain. Channels have no
// lifecycle object of their own: one springs into existence on first join
// and vanishes when its member set empties.
type ChannelKey struct {
	Kind ChannelKind
	ID   string
}

func SessionChannel(id SessionID) ChannelKey {
	return ChannelKey{Kind: KindSession, ID: string(id)}
}

func UserChannel(id UserID) ChannelKey {
	return ChannelKey{Kind: KindUser, ID: string(id)}
}

func TopicChannel(id TopicID) ChannelKey {
	return ChannelKey{Kind: KindTopic, ID: string(id)}
}

func (k ChannelKey) String() string {
	return k.Kind.String() + ":" + k.ID
}
