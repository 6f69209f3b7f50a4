package core

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/peertutor/relay/internal/domain"
)

// Transition is the pairing coordinator's verdict for one session join.
type Transition int

const (
	// BecameWaiting: first live joiner, provisional initiator.
	BecameWaiting Transition = iota + 1
	// PairedWithPeer: second live joiner; Peer carries the initiator.
	PairedWithPeer
	// JoinedAsObserver: third and later joiners, no signaling role.
	JoinedAsObserver
	// AlreadyJoined: repeat join by a current member, nothing re-decided.
	AlreadyJoined
)

func (t Transition) String() string {
	switch t {
	case BecameWaiting:
		return "waiting"
	case PairedWithPeer:
		return "paired"
	case JoinedAsObserver:
		return "observer"
	case AlreadyJoined:
		return "already_joined"
	}
	return "none"
}

// JoinOutcome reports a session join back to the dispatcher.
type JoinOutcome struct {
	Transition Transition
	Peer       domain.ConnectionID   // set for PairedWithPeer
	Pair       []domain.ConnectionID // set for JoinedAsObserver
	Existing   []domain.ConnectionID // members present before this join
	First      bool
}

// pairSlots holds the at-most-two signaling participants of one session.
// Slot a is the initiator.
type pairSlots struct {
	a, b domain.ConnectionID
}

// Table is the bidirectional connection↔channel index plus the per-session
// pairing slots. One mutex guards all three maps: both membership
// directions mutate in a single critical section, and the pairing decision
// happens inside the same section as the membership insert, so two
// near-simultaneous joiners can never both be told they are the initiator.
//
// The table never performs transport writes; it only hands out snapshots
// that callers consume after the lock is released.
type Table struct {
	mu        sync.RWMutex
	byChannel map[domain.ChannelKey]map[domain.ConnectionID]EventSender
	byConn    map[domain.ConnectionID]map[domain.ChannelKey]struct{}
	pairs     map[domain.SessionID]*pairSlots
}

func NewTable() *Table {
	return &Table{
		byChannel: make(map[domain.ChannelKey]map[domain.ConnectionID]EventSender),
		byConn:    make(map[domain.ConnectionID]map[domain.ChannelKey]struct{}),
		pairs:     make(map[domain.SessionID]*pairSlots),
	}
}

// Join adds the connection to a channel. Idempotent; reports whether the
// connection is the channel's first member.
func (t *Table) Join(key domain.ChannelKey, id domain.ConnectionID, sender EventSender) (first bool) {
	t.mu.Lock()
	first, joined := t.joinLocked(key, id, sender)
	t.mu.Unlock()
	if joined {
		log.Info().Str("module", "core.table").Str("channel", key.String()).Str("conn", string(id)).Msg("joined channel")
	}
	return first
}

// JoinSession joins a session channel and decides the caller's pairing role
// in the same atomic step. Slots are validated against the live member set
// at decision time: a recorded participant that has since left never counts,
// so a joiner after such a race falls back to BecameWaiting instead of being
// paired with a dead connection.
func (t *Table) JoinSession(sid domain.SessionID, id domain.ConnectionID, sender EventSender) JoinOutcome {
	key := domain.SessionChannel(sid)

	t.mu.Lock()
	members := t.byChannel[key]
	if _, ok := members[id]; ok {
		t.mu.Unlock()
		return JoinOutcome{Transition: AlreadyJoined}
	}
	existing := lo.Keys(members)

	first, _ := t.joinLocked(key, id, sender)

	p := t.pairs[sid]
	if p == nil {
		p = &pairSlots{}
		t.pairs[sid] = p
	}
	// The new member set is the old one plus id, and id held no slot, so
	// checking slots against it is exactly the live pre-insertion check.
	live := t.byChannel[key]
	if p.a != "" {
		if _, ok := live[p.a]; !ok {
			p.a = ""
		}
	}
	if p.b != "" {
		if _, ok := live[p.b]; !ok {
			p.b = ""
		}
	}
	if p.a == "" && p.b != "" {
		p.a, p.b = p.b, ""
	}

	out := JoinOutcome{Existing: existing, First: first}
	switch {
	case p.a == "":
		p.a = id
		out.Transition = BecameWaiting
	case p.b == "":
		p.b = id
		out.Transition = PairedWithPeer
		out.Peer = p.a
	default:
		out.Transition = JoinedAsObserver
		out.Pair = []domain.ConnectionID{p.a, p.b}
	}
	t.mu.Unlock()

	log.Info().Str("module", "core.table").Str("session", string(sid)).Str("conn", string(id)).
		Stringer("transition", out.Transition).Msg("joined session")
	return out
}

// Leave removes the connection from a channel. Idempotent; reports whether
// it was a member.
func (t *Table) Leave(key domain.ChannelKey, id domain.ConnectionID) bool {
	t.mu.Lock()
	removed := t.leaveLocked(key, id)
	t.mu.Unlock()
	if removed {
		log.Info().Str("module", "core.table").Str("channel", key.String()).Str("conn", string(id)).Msg("left channel")
	}
	return removed
}

// RemoveAll takes the connection out of every channel it belongs to in one
// atomic step and returns the affected channels. Safe to call twice.
func (t *Table) RemoveAll(id domain.ConnectionID) []domain.ChannelKey {
	t.mu.Lock()
	keys := lo.Keys(t.byConn[id])
	for _, key := range keys {
		t.leaveLocked(key, id)
	}
	t.mu.Unlock()
	if len(keys) > 0 {
		log.Info().Str("module", "core.table").Str("conn", string(id)).Int("channels", len(keys)).Msg("removed from all channels")
	}
	return keys
}

// Members returns a snapshot of the channel's member ids. The snapshot may
// be stale by the time the caller acts on it.
func (t *Table) Members(key domain.ChannelKey) []domain.ConnectionID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return lo.Keys(t.byChannel[key])
}

// ChannelsOf returns a snapshot of the channels the connection belongs to.
func (t *Table) ChannelsOf(id domain.ConnectionID) []domain.ChannelKey {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return lo.Keys(t.byConn[id])
}

// MemberSender returns the sender for id only while it is a member of key.
func (t *Table) MemberSender(key domain.ChannelKey, id domain.ConnectionID) (EventSender, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byChannel[key][id]
	return s, ok
}

// Senders returns a delivery snapshot for a broadcast, excluding at most
// one connection. Pass an empty except to include everyone. The caller
// writes to the senders only after this returns, so no transport write ever
// happens under the table lock.
func (t *Table) Senders(key domain.ChannelKey, except domain.ConnectionID) []EventSender {
	t.mu.RLock()
	defer t.mu.RUnlock()
	members := t.byChannel[key]
	out := make([]EventSender, 0, len(members))
	for id, s := range members {
		if id == except {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (t *Table) joinLocked(key domain.ChannelKey, id domain.ConnectionID, sender EventSender) (first, joined bool) {
	members := t.byChannel[key]
	if _, ok := members[id]; ok {
		return false, false
	}
	if members == nil {
		members = make(map[domain.ConnectionID]EventSender)
		t.byChannel[key] = members
	}
	first = len(members) == 0
	members[id] = sender

	set := t.byConn[id]
	if set == nil {
		set = make(map[domain.ChannelKey]struct{})
		t.byConn[id] = set
	}
	set[key] = struct{}{}
	return first, true
}

func (t *Table) leaveLocked(key domain.ChannelKey, id domain.ConnectionID) bool {
	members, ok := t.byChannel[key]
	if !ok {
		return false
	}
	if _, ok := members[id]; !ok {
		return false
	}
	delete(members, id)
	if set := t.byConn[id]; set != nil {
		delete(set, key)
		if len(set) == 0 {
			delete(t.byConn, id)
		}
	}

	if key.Kind == domain.KindSession {
		sid := domain.SessionID(key.ID)
		// A departing pair participant dissolves the pairing entirely;
		// the survivor is not re-armed as initiator and the next joiner
		// starts a fresh pairing.
		if p, ok := t.pairs[sid]; ok && (p.a == id || p.b == id) {
			delete(t.pairs, sid)
		}
		if len(members) == 0 {
			delete(t.pairs, sid)
		}
	}
	if len(members) == 0 {
		delete(t.byChannel, key)
	}
	return true
}
