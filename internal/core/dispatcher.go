package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/peertutor/relay/internal/domain"
)

// Dispatcher validates client operations, resolves targets through the
// registry and table, and performs unicast or multicast delivery. Routing
// misses (unknown target, offline user, duplicate join/leave) are silent
// no-ops: delivery everywhere in this core is at-most-once and
// fire-and-forget.
type Dispatcher struct {
	registry *Registry
	table    *Table

	// Persistence collaborators; either may be nil for a relay-only setup.
	messages MessageStore
	notes    NotificationStore
}

func NewDispatcher(reg *Registry, table *Table, messages MessageStore, notes NotificationStore) *Dispatcher {
	return &Dispatcher{registry: reg, table: table, messages: messages, notes: notes}
}

// Connect registers a freshly accepted transport connection.
func (d *Dispatcher) Connect(sender EventSender) domain.ConnectionID {
	return d.registry.Register(sender)
}

// JoinSession joins the session channel, decides the pairing role, tells
// the joiner about everyone already present and announces the joiner to
// everyone else. The joiner never sees the broadcast describing its own
// arrival.
func (d *Dispatcher) JoinSession(sid domain.SessionID, id domain.ConnectionID) JoinOutcome {
	sender, ok := d.registry.Sender(id)
	if !ok {
		return JoinOutcome{}
	}
	out := d.table.JoinSession(sid, id, sender)
	if out.Transition == AlreadyJoined {
		return out
	}

	for _, m := range out.Existing {
		d.send(sender, NewEvent(EventUserJoined, m))
	}
	d.broadcast(domain.SessionChannel(sid), NewEvent(EventUserJoined, id), id)
	return out
}

// LeaveSession is idempotent; a departure is announced only when the
// caller actually was a member.
func (d *Dispatcher) LeaveSession(sid domain.SessionID, id domain.ConnectionID) {
	if d.table.Leave(domain.SessionChannel(sid), id) {
		d.broadcast(domain.SessionChannel(sid), NewEvent(EventUserLeft, id), "")
	}
}

// JoinMessaging joins the user's presence channel and binds the identity,
// last-write-wins across reconnects.
func (d *Dispatcher) JoinMessaging(user domain.UserID, id domain.ConnectionID) {
	sender, ok := d.registry.Sender(id)
	if !ok {
		return
	}
	d.table.Join(domain.UserChannel(user), id, sender)
	d.registry.BindUser(user, id)
}

func (d *Dispatcher) LeaveMessaging(user domain.UserID, id domain.ConnectionID) {
	d.table.Leave(domain.UserChannel(user), id)
	d.registry.UnbindUser(user, id)
}

func (d *Dispatcher) JoinForum(topic domain.TopicID, id domain.ConnectionID) {
	sender, ok := d.registry.Sender(id)
	if !ok {
		return
	}
	d.table.Join(domain.TopicChannel(topic), id, sender)
}

func (d *Dispatcher) LeaveForum(topic domain.TopicID, id domain.ConnectionID) {
	d.table.Leave(domain.TopicChannel(topic), id)
}

// RelayToPeer forwards an opaque signaling payload to one session member.
// The target only has to be a current member of the session, not the paired
// peer: a client may resume signaling with a peer it discovered by other
// means. A vanished target is a silent drop, never an error to the sender.
func (d *Dispatcher) RelayToPeer(sid domain.SessionID, from, to domain.ConnectionID, kind RelayKind, payload json.RawMessage) {
	sender, ok := d.table.MemberSender(domain.SessionChannel(sid), to)
	if !ok {
		log.Debug().Str("module", "core.dispatcher").Str("session", string(sid)).
			Str("to", string(to)).Msg("relay target not a member, dropped")
		return
	}
	d.send(sender, NewEvent(kind.eventName(), from, payload))
}

// BroadcastMessage persists the chat line, then delivers it to every
// session member including the sender: the echo is how the sender's UI
// confirms delivery. A store failure never aborts the relay.
func (d *Dispatcher) BroadcastMessage(sid domain.SessionID, from domain.ConnectionID, text string) {
	key := domain.SessionChannel(sid)
	d.persist(key, from, mustRaw(text))
	d.broadcast(key, NewEvent(EventReceiveMessage, from, text), "")
}

// BroadcastForum persists and relays an opaque forum post to the topic
// channel, sender echo included.
func (d *Dispatcher) BroadcastForum(topic domain.TopicID, from domain.ConnectionID, dto json.RawMessage) {
	key := domain.TopicChannel(topic)
	d.persist(key, from, dto)
	d.broadcast(key, NewEvent(EventReceiveForumMessage, dto), "")
}

// SendToUser delivers an event to the user's live connection, or parks it
// in the notification store while the user is offline. With no store wired,
// an offline target is a plain drop.
func (d *Dispatcher) SendToUser(user domain.UserID, ev Event) (delivered bool, err error) {
	if id, ok := d.registry.ResolveUser(user); ok {
		if sender, ok := d.registry.Sender(id); ok {
			d.send(sender, ev)
			return true, nil
		}
	}
	if d.notes == nil {
		log.Debug().Str("module", "core.dispatcher").Str("user", string(user)).Msg("user offline, event dropped")
		return false, nil
	}
	frame, err := ev.Frame()
	if err != nil {
		return false, err
	}
	return false, d.notes.Push(user, domain.Notification{
		ID:   uuid.New(),
		User: user,
		Body: json.RawMessage(frame),
		At:   time.Now(),
	})
}

// OnDisconnect is the reaper path, invoked by the transport's disconnect
// callback. It converges with an in-flight explicit Leave: both end with
// the connection in no channel and unregistered.
func (d *Dispatcher) OnDisconnect(id domain.ConnectionID) {
	for _, key := range d.table.RemoveAll(id) {
		if key.Kind == domain.KindSession {
			d.broadcast(key, NewEvent(EventUserLeft, id), "")
		}
	}
	d.registry.Unregister(id)
}

func (d *Dispatcher) persist(key domain.ChannelKey, from domain.ConnectionID, body json.RawMessage) {
	if d.messages == nil {
		return
	}
	err := d.messages.Append(domain.StoredMessage{
		ID:      uuid.New(),
		Channel: key.String(),
		Author:  string(from),
		Body:    body,
		At:      time.Now(),
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "core.dispatcher").Str("channel", key.String()).Msg("message store append failed")
	}
}

// broadcast delivers to every member except at most one. The snapshot is
// taken under the table lock, the writes happen after it.
func (d *Dispatcher) broadcast(key domain.ChannelKey, ev Event, except domain.ConnectionID) {
	frame, err := ev.Frame()
	if err != nil {
		log.Error().Err(err).Str("module", "core.dispatcher").Str("event", ev.Event).Msg("marshal event")
		return
	}
	dropped := 0
	for _, sender := range d.table.Senders(key, except) {
		if err := sender.TrySend(frame); err != nil {
			dropped++
		}
	}
	if dropped > 0 {
		log.Debug().Str("module", "core.dispatcher").Str("channel", key.String()).
			Str("event", ev.Event).Int("dropped", dropped).Msg("broadcast drops")
	}
}

func (d *Dispatcher) send(sender EventSender, ev Event) {
	frame, err := ev.Frame()
	if err != nil {
		log.Error().Err(err).Str("module", "core.dispatcher").Str("event", ev.Event).Msg("marshal event")
		return
	}
	if err := sender.TrySend(frame); err != nil {
		log.Debug().Str("module", "core.dispatcher").Str("event", ev.Event).Msg("unicast dropped")
	}
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`null`)
	}
	return json.RawMessage(b)
}
