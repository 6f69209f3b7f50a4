package core

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeSender records delivered frames in order.
type fakeSender struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
}

func (f *fakeSender) TrySend(fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return ErrBackpressure
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSender) Close() {}

func (f *fakeSender) events(t *testing.T) []Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, 0, len(f.frames))
	for _, fr := range f.frames {
		var ev Event
		require.NoError(t, json.Unmarshal(fr, &ev))
		out = append(out, ev)
	}
	return out
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

// eventsNamed filters the recorded events by name.
func eventsNamed(t *testing.T, f *fakeSender, name string) []Event {
	t.Helper()
	var out []Event
	for _, ev := range f.events(t) {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func argString(t *testing.T, ev Event, i int) string {
	t.Helper()
	require.Greater(t, len(ev.Args), i)
	s, ok := ev.Args[i].(string)
	require.True(t, ok, "arg %d of %s is not a string", i, ev.Event)
	return s
}
