package ingress

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutti-live/tutti/config/params"
	"github.com/tutti-live/tutti/engine/aggregator"
	"github.com/tutti-live/tutti/engine/bus"
	"github.com/tutti-live/tutti/engine/feed"
	"github.com/tutti-live/tutti/engine/override"
	"github.com/tutti-live/tutti/engine/types"
	"github.com/tutti-live/tutti/store/kv"
	"github.com/tutti-live/tutti/time/mono"
)

func testService(t *testing.T, mutate func(*params.EngineConfig)) (*Service, *bus.Bus) {
	t.Helper()
	b := bus.New()
	cfg := params.DefaultEngineConfig().Copy()
	if mutate != nil {
		mutate(cfg)
	}
	defs := params.DefaultParameters()
	agg := aggregator.New(&aggregator.Config{
		SessionID:   "test-session",
		Definitions: defs,
		Weighting:   cfg.Weighting,
		Venue:       params.DefaultVenue(),
		Overrides:   override.New(defs, b, true),
		Bus:         b,
	})
	s := New(context.Background(), &Config{
		SessionID:  "test-session",
		Engine:     cfg,
		Venue:      params.DefaultVenue(),
		Aggregator: agg,
		Bus:        b,
		Store:      kv.NewMemStore(),
	})
	return s, b
}

func TestSubmit_RejectsUnknownParameter(t *testing.T) {
	s, _ := testService(t, nil)
	_, reason := s.Submit("c1", "fog", 0.5)
	assert.Equal(t, types.RejectInvalidParameter, reason)
}

func TestSubmit_RejectsOutOfRangeValue(t *testing.T) {
	s, _ := testService(t, nil)
	for _, v := range []float64{-0.1, 1.5, math.NaN(), math.Inf(1)} {
		_, reason := s.Submit("c1", "mood", v)
		assert.Equal(t, types.RejectInvalidValue, reason)
	}
}

func TestSubmit_RejectsWhenAudienceInputDisabled(t *testing.T) {
	s, _ := testService(t, func(c *params.EngineConfig) {
		c.AllowAudienceInput = false
	})
	_, reason := s.Submit("c1", "mood", 0.5)
	assert.Equal(t, types.RejectClientBlocked, reason)
}

func TestSubmit_AcceptedInputIsStampedAndPublished(t *testing.T) {
	s, b := testService(t, nil)
	sub := b.Subscribe(feed.AudienceInput, 4)
	defer sub.Unsubscribe()

	before := mono.Now()
	input, reason := s.Submit("c1", "mood", 0.8)
	require.Equal(t, types.RejectionReason(""), reason)
	require.NotNil(t, input)
	assert.NotEqual(t, "", input.ID)
	assert.Equal(t, "test-session", input.SessionID)
	assert.Equal(t, true, input.Timestamp >= before)

	select {
	case ev := <-sub.C():
		assert.Equal(t, input, ev.Data.(*types.AudienceInput))
	case <-time.After(time.Second):
		t.Fatal("no audience input event published")
	}
}

func TestSubmit_RateLimitAlternates(t *testing.T) {
	s, _ := testService(t, func(c *params.EngineConfig) {
		c.InputRateLimitMs = 50
	})

	_, reason := s.Submit("c1", "mood", 0.5)
	require.Equal(t, types.RejectionReason(""), reason)

	// Inside the interval the bucket is full.
	_, reason = s.Submit("c1", "mood", 0.6)
	assert.Equal(t, types.RejectRateLimited, reason)

	// A different client has its own bucket.
	_, reason = s.Submit("c2", "mood", 0.6)
	assert.Equal(t, types.RejectionReason(""), reason)

	time.Sleep(100 * time.Millisecond)
	_, reason = s.Submit("c1", "mood", 0.7)
	assert.Equal(t, types.RejectionReason(""), reason)
}

func TestSubmit_FloodBlockTripsAndExpires(t *testing.T) {
	s, b := testService(t, func(c *params.EngineConfig) {
		c.MaxInputsPerClient = 2
		c.FloodBlockMs = 50
	})
	sub := b.Subscribe(feed.Warning, 4)
	defer sub.Unsubscribe()

	s.clients.withState("c1", func(state *ClientState) {
		state.InputCount = 2
	})
	_, reason := s.Submit("c1", "mood", 0.5)
	require.Equal(t, types.RejectFloodBlocked, reason)

	select {
	case ev := <-sub.C():
		assert.Equal(t, "flood_block", ev.Data.(*feed.WarningData).Tag)
	case <-time.After(time.Second):
		t.Fatal("no flood warning published")
	}

	// Still blocked while the block window is open, even after the rate
	// limit would allow another input.
	time.Sleep(10 * time.Millisecond)
	_, reason = s.Submit("c1", "mood", 0.5)
	assert.Equal(t, types.RejectFloodBlocked, reason)

	// Counters were reset by the rollover before the block expires.
	s.clients.withState("c1", func(state *ClientState) {
		state.BlockedUntil = mono.Now() - 1
		state.InputCount = 0
	})
	time.Sleep(time.Duration(s.cfg.Engine.InputRateLimitMs+20) * time.Millisecond)
	_, reason = s.Submit("c1", "mood", 0.5)
	assert.Equal(t, types.RejectionReason(""), reason)
}

func TestSubmit_RateLimitedInputsDoNotCountTowardFlood(t *testing.T) {
	s, _ := testService(t, func(c *params.EngineConfig) {
		c.InputRateLimitMs = 1000
	})
	_, reason := s.Submit("c1", "mood", 0.5)
	require.Equal(t, types.RejectionReason(""), reason)
	for i := 0; i < 5; i++ {
		_, reason = s.Submit("c1", "mood", 0.5)
		require.Equal(t, types.RejectRateLimited, reason)
	}
	var count int64
	s.clients.lookup("c1", func(state *ClientState) {
		count = state.InputCount
	})
	assert.Equal(t, int64(1), count)
}

func TestSetLocation_ValidatesBounds(t *testing.T) {
	s, _ := testService(t, nil)
	require.ErrorIs(t, s.SetLocation("c1", types.Location{X: -5, Y: 0}), errLocationOutOfBounds)
	require.ErrorIs(t, s.SetLocation("c1", types.Location{X: math.NaN(), Y: 1}), errLocationOutOfBounds)
	require.NoError(t, s.SetLocation("c1", types.Location{X: 10, Y: 5, Zone: "front"}))

	input, reason := s.Submit("c1", "mood", 0.5)
	require.Equal(t, types.RejectionReason(""), reason)
	require.NotNil(t, input.Location)
	assert.Equal(t, 10.0, input.Location.X)
	assert.Equal(t, "front", input.Location.Zone)
}

func TestBlockClient_AdminBlock(t *testing.T) {
	s, _ := testService(t, nil)
	s.BlockClient("c1")
	_, reason := s.Submit("c1", "mood", 0.5)
	assert.Equal(t, types.RejectClientBlocked, reason)

	s.UnblockClient("c1")
	_, reason = s.Submit("c1", "mood", 0.5)
	assert.Equal(t, types.RejectionReason(""), reason)
}

func TestBatcher_FlushPublishesAcceptedInputs(t *testing.T) {
	s, b := testService(t, nil)
	sub := b.Subscribe(feed.AudienceInputBatch, 4)
	defer sub.Unsubscribe()

	// An empty flush publishes nothing.
	s.batch.flush()

	_, reason := s.Submit("c1", "mood", 0.5)
	require.Equal(t, types.RejectionReason(""), reason)
	_, reason = s.Submit("c2", "tempo", 0.7)
	require.Equal(t, types.RejectionReason(""), reason)
	s.batch.flush()

	select {
	case ev := <-sub.C():
		batch := ev.Data.(*feed.BatchData)
		require.Equal(t, 2, len(batch.Inputs))
		assert.Equal(t, "mood", batch.Inputs[0].Parameter)
		assert.Equal(t, "tempo", batch.Inputs[1].Parameter)
	case <-time.After(time.Second):
		t.Fatal("no batch event published")
	}

	// The flush drained the buffer.
	s.batch.flush()
	select {
	case <-sub.C():
		t.Fatal("unexpected second batch")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEvictIdle_PublishesLeave(t *testing.T) {
	s, b := testService(t, nil)
	sub := b.Subscribe(feed.ParticipantLeave, 4)
	defer sub.Unsubscribe()

	_, reason := s.Submit("c1", "mood", 0.5)
	require.Equal(t, types.RejectionReason(""), reason)
	require.Equal(t, 1, s.TrackedClients())

	s.clients.withState("c1", func(state *ClientState) {
		state.LastInputTime = mono.Now() - s.cfg.Engine.ClientIdleEvictionMs - 1
	})
	s.evictIdle()
	assert.Equal(t, 0, s.TrackedClients())

	select {
	case ev := <-sub.C():
		assert.Equal(t, "c1", ev.Data.(*feed.ParticipantData).ClientID)
	case <-time.After(time.Second):
		t.Fatal("no leave event published")
	}
}

func TestRolloverCounters_ResetsAndPersists(t *testing.T) {
	s, _ := testService(t, nil)
	_, reason := s.Submit("c1", "mood", 0.5)
	require.Equal(t, types.RejectionReason(""), reason)

	s.rolloverCounters()
	var count int64 = -1
	s.clients.lookup("c1", func(state *ClientState) {
		count = state.InputCount
	})
	assert.Equal(t, int64(0), count)

	v, ok, err := s.cfg.Store.Get(context.Background(), "ratelimit:rollover:test-session")
	require.NoError(t, err)
	require.Equal(t, true, ok)
	assert.Contains(t, string(v), `"c1":1`)
}
