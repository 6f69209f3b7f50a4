package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peertutor/relay/internal/domain"
)

// requireConsistent asserts the table consistency invariant over the given
// connections and channels: c ∈ Members(k) ⇔ k ∈ ChannelsOf(c).
func requireConsistent(t *testing.T, tbl *Table, conns []domain.ConnectionID, keys []domain.ChannelKey) {
	t.Helper()
	for _, key := range keys {
		members := map[domain.ConnectionID]bool{}
		for _, m := range tbl.Members(key) {
			members[m] = true
		}
		for _, c := range conns {
			inChannels := false
			for _, k := range tbl.ChannelsOf(c) {
				if k == key {
					inChannels = true
				}
			}
			require.Equal(t, members[c], inChannels,
				"conn %s / channel %s: directions disagree", c, key)
		}
	}
}

func TestTableJoinLeaveIdempotent(t *testing.T) {
	tbl := NewTable()
	key := domain.TopicChannel("go")
	c := domain.ConnectionID("c1")

	require.True(t, tbl.Join(key, c, &fakeSender{}))
	require.False(t, tbl.Join(key, c, &fakeSender{}))
	require.Len(t, tbl.Members(key), 1)

	require.True(t, tbl.Leave(key, c))
	require.False(t, tbl.Leave(key, c))
	require.Empty(t, tbl.Members(key))
	require.Empty(t, tbl.ChannelsOf(c))

	// Leaving a channel that never existed is a no-op too.
	require.False(t, tbl.Leave(domain.TopicChannel("rust"), c))
}

func TestTableConsistencyUnderMixedMutation(t *testing.T) {
	tbl := NewTable()
	conns := []domain.ConnectionID{"a", "b", "c"}
	keys := []domain.ChannelKey{
		domain.SessionChannel("s1"),
		domain.TopicChannel("t1"),
		domain.UserChannel("u1"),
	}

	tbl.Join(keys[0], conns[0], &fakeSender{})
	tbl.Join(keys[0], conns[1], &fakeSender{})
	tbl.Join(keys[1], conns[1], &fakeSender{})
	tbl.Join(keys[1], conns[2], &fakeSender{})
	tbl.Join(keys[2], conns[2], &fakeSender{})
	requireConsistent(t, tbl, conns, keys)

	tbl.Leave(keys[0], conns[1])
	tbl.RemoveAll(conns[2])
	requireConsistent(t, tbl, conns, keys)

	require.Empty(t, tbl.ChannelsOf(conns[2]))
	require.Equal(t, []domain.ConnectionID{conns[1]}, tbl.Members(keys[1]))
}

func TestTableRemoveAllReturnsAffectedChannels(t *testing.T) {
	tbl := NewTable()
	c := domain.ConnectionID("c1")
	tbl.Join(domain.SessionChannel("s1"), c, &fakeSender{})
	tbl.Join(domain.TopicChannel("t1"), c, &fakeSender{})

	keys := tbl.RemoveAll(c)
	require.Len(t, keys, 2)
	require.Empty(t, tbl.ChannelsOf(c))

	// Second reap finds nothing.
	require.Empty(t, tbl.RemoveAll(c))
}

func TestJoinSessionAssignsRolesInOrder(t *testing.T) {
	tbl := NewTable()
	sid := domain.SessionID("math-101")

	x := tbl.JoinSession(sid, "X", &fakeSender{})
	require.Equal(t, BecameWaiting, x.Transition)
	require.True(t, x.First)
	require.Empty(t, x.Existing)

	y := tbl.JoinSession(sid, "Y", &fakeSender{})
	require.Equal(t, PairedWithPeer, y.Transition)
	require.Equal(t, domain.ConnectionID("X"), y.Peer)
	require.Equal(t, []domain.ConnectionID{"X"}, y.Existing)

	z := tbl.JoinSession(sid, "Z", &fakeSender{})
	require.Equal(t, JoinedAsObserver, z.Transition)
	require.ElementsMatch(t, []domain.ConnectionID{"X", "Y"}, z.Pair)
	require.Len(t, z.Existing, 2)
}

func TestJoinSessionRejoinDoesNotRedecide(t *testing.T) {
	tbl := NewTable()
	sid := domain.SessionID("s")

	tbl.JoinSession(sid, "X", &fakeSender{})
	again := tbl.JoinSession(sid, "X", &fakeSender{})
	require.Equal(t, AlreadyJoined, again.Transition)

	// X is still the initiator: the next joiner pairs with it.
	y := tbl.JoinSession(sid, "Y", &fakeSender{})
	require.Equal(t, PairedWithPeer, y.Transition)
	require.Equal(t, domain.ConnectionID("X"), y.Peer)
}

// When a pair participant disconnects, the pairing dissolves entirely: the
// survivor is not re-armed and the next joiner starts fresh.
func TestPairingDissolvesWhenParticipantDisconnects(t *testing.T) {
	tbl := NewTable()
	sid := domain.SessionID("s")

	tbl.JoinSession(sid, "X", &fakeSender{})
	tbl.JoinSession(sid, "Y", &fakeSender{})

	tbl.RemoveAll("X")

	z := tbl.JoinSession(sid, "Z", &fakeSender{})
	require.Equal(t, BecameWaiting, z.Transition)
	// Y is still a member and is reported to the joiner.
	require.Equal(t, []domain.ConnectionID{"Y"}, z.Existing)
}

func TestPairingFallsBackWhenInitiatorLeft(t *testing.T) {
	tbl := NewTable()
	sid := domain.SessionID("s")

	tbl.JoinSession(sid, "X", &fakeSender{})
	tbl.Leave(domain.SessionChannel(sid), "X")

	y := tbl.JoinSession(sid, "Y", &fakeSender{})
	require.Equal(t, BecameWaiting, y.Transition)
}

// Two concurrent first joiners: exactly one becomes waiting, the other is
// paired with it — never both waiting.
func TestPairingDeterminismUnderConcurrentJoin(t *testing.T) {
	for i := 0; i < 50; i++ {
		tbl := NewTable()
		sid := domain.SessionID(fmt.Sprintf("s%d", i))

		var wg sync.WaitGroup
		outs := make([]JoinOutcome, 2)
		ids := []domain.ConnectionID{"A", "B"}
		for n := 0; n < 2; n++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				outs[n] = tbl.JoinSession(sid, ids[n], &fakeSender{})
			}(n)
		}
		wg.Wait()

		got := map[Transition]int{}
		for _, out := range outs {
			got[out.Transition]++
		}
		require.Equal(t, 1, got[BecameWaiting], "outcomes: %v", outs)
		require.Equal(t, 1, got[PairedWithPeer], "outcomes: %v", outs)
		for n, out := range outs {
			if out.Transition == PairedWithPeer {
				require.Equal(t, ids[1-n], out.Peer)
			}
		}
	}
}

func TestEmptyChannelVanishes(t *testing.T) {
	tbl := NewTable()
	sid := domain.SessionID("s")

	tbl.JoinSession(sid, "X", &fakeSender{})
	tbl.Leave(domain.SessionChannel(sid), "X")

	require.Empty(t, tbl.Members(domain.SessionChannel(sid)))
	// A fresh first joiner starts a brand-new pairing.
	out := tbl.JoinSession(sid, "Y", &fakeSender{})
	require.Equal(t, BecameWaiting, out.Transition)
	require.True(t, out.First)
}

func TestSendersExcludesAtMostOne(t *testing.T) {
	tbl := NewTable()
	key := domain.SessionChannel("s")
	a, b := &fakeSender{}, &fakeSender{}
	tbl.Join(key, "A", a)
	tbl.Join(key, "B", b)

	require.Len(t, tbl.Senders(key, ""), 2)
	require.Len(t, tbl.Senders(key, "A"), 1)
	require.Empty(t, tbl.Senders(domain.SessionChannel("other"), ""))
}

func TestMemberSenderRequiresMembership(t *testing.T) {
	tbl := NewTable()
	key := domain.SessionChannel("s")
	s := &fakeSender{}
	tbl.Join(key, "A", s)

	got, ok := tbl.MemberSender(key, "A")
	require.True(t, ok)
	require.Same(t, s, got.(*fakeSender))

	_, ok = tbl.MemberSender(key, "B")
	require.False(t, ok)

	tbl.Leave(key, "A")
	_, ok = tbl.MemberSender(key, "A")
	require.False(t, ok)
}
