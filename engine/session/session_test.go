package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutti-live/tutti/config/params"
	"github.com/tutti-live/tutti/engine/bus"
	"github.com/tutti-live/tutti/engine/feed"
	"github.com/tutti-live/tutti/engine/types"
	"github.com/tutti-live/tutti/store/kv"
)

func testSession(t *testing.T) (*Service, *bus.Bus, kv.Store) {
	t.Helper()
	b := bus.New()
	store := kv.NewMemStore()
	s := New(context.Background(), &Config{
		ID:          "s1",
		Name:        "evening show",
		Genre:       "electronic_music",
		Definitions: params.DefaultParameters(),
		Venue:       params.DefaultVenue(),
		Bus:         b,
		Store:       store,
	})
	return s, b, store
}

func TestLifecycle_HappyPath(t *testing.T) {
	s, b, _ := testSession(t)
	sub := b.Subscribe(feed.SessionStart, 4)
	defer sub.Unsubscribe()

	require.Equal(t, types.SessionPending, s.CurrentStatus())
	require.NoError(t, s.Activate())
	require.Equal(t, types.SessionActive, s.CurrentStatus())

	select {
	case ev := <-sub.C():
		data := ev.Data.(*feed.SessionData)
		assert.Equal(t, "s1", data.SessionID)
		assert.Equal(t, types.SessionActive, data.Status)
	case <-time.After(time.Second):
		t.Fatal("no session start event")
	}

	require.NoError(t, s.Pause())
	require.Equal(t, types.SessionPaused, s.CurrentStatus())
	require.NoError(t, s.Resume())
	require.Equal(t, types.SessionActive, s.CurrentStatus())
	require.NoError(t, s.End())
	require.Equal(t, types.SessionEnded, s.CurrentStatus())
	require.Error(t, s.Status())
}

func TestLifecycle_RejectsInvalidTransitions(t *testing.T) {
	s, _, _ := testSession(t)

	// Pause and resume require a running session.
	require.ErrorIs(t, s.Pause(), ErrInvalidTransition)
	require.ErrorIs(t, s.Resume(), ErrInvalidTransition)

	require.NoError(t, s.Activate())
	require.ErrorIs(t, s.Activate(), ErrInvalidTransition)
	require.ErrorIs(t, s.Resume(), ErrInvalidTransition)

	require.NoError(t, s.End())
	// Ended is terminal.
	require.ErrorIs(t, s.Activate(), ErrInvalidTransition)
	require.ErrorIs(t, s.Pause(), ErrInvalidTransition)
	require.ErrorIs(t, s.End(), ErrInvalidTransition)
}

func TestTransitions_PersistMetadata(t *testing.T) {
	s, _, store := testSession(t)
	require.NoError(t, s.Activate())

	v, ok, err := store.Get(context.Background(), "session:s1")
	require.NoError(t, err)
	require.Equal(t, true, ok)
	assert.Contains(t, string(v), `"status":"active"`)
	assert.Contains(t, string(v), `"name":"evening show"`)

	require.NoError(t, s.End())
	v, _, err = store.Get(context.Background(), "session:s1")
	require.NoError(t, err)
	assert.Contains(t, string(v), `"status":"ended"`)
	assert.Contains(t, string(v), `"endedAt"`)
}

func TestUptime(t *testing.T) {
	s, _, _ := testSession(t)
	assert.Equal(t, int64(0), s.UptimeMs())
	require.NoError(t, s.Activate())
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, true, s.UptimeMs() >= 10)

	require.NoError(t, s.End())
	frozen := s.UptimeMs()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, frozen, s.UptimeMs())
}

func TestStopEndsSession(t *testing.T) {
	s, _, _ := testSession(t)
	require.NoError(t, s.Activate())
	require.NoError(t, s.Stop())
	assert.Equal(t, types.SessionEnded, s.CurrentStatus())

	// Stop after end is idempotent.
	require.NoError(t, s.Stop())
}
