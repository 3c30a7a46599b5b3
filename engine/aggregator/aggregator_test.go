package aggregator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutti-live/tutti/config/params"
	"github.com/tutti-live/tutti/engine/bus"
	"github.com/tutti-live/tutti/engine/override"
	"github.com/tutti-live/tutti/engine/types"
)

func testAggregator(t *testing.T) (*Aggregator, *override.Registry, *bus.Bus) {
	t.Helper()
	b := bus.New()
	defs := params.DefaultParameters()
	reg := override.New(defs, b, true)
	a := New(&Config{
		SessionID:   "test-session",
		Definitions: defs,
		Weighting:   params.DefaultEngineConfig().Weighting,
		Venue:       params.DefaultVenue(),
		Overrides:   reg,
		Bus:         b,
		MaxHistory:  100,
	})
	return a, reg, b
}

func input(client, parameter string, value float64, ts int64) *types.AudienceInput {
	return &types.AudienceInput{
		ID:        fmt.Sprintf("%s-%d", client, ts),
		ClientID:  client,
		Parameter: parameter,
		Value:     value,
		Timestamp: ts,
	}
}

func TestAdd_RejectsUnknownParameter(t *testing.T) {
	a, _, _ := testAggregator(t)
	err := a.Add(input("c1", "fog", 0.5, 0))
	require.ErrorIs(t, err, ErrUnknownParameter)
}

func TestAdd_RejectsNonAudienceParameter(t *testing.T) {
	b := bus.New()
	defs := params.DefaultParameters()
	defs[0].AudienceControllable = false
	a := New(&Config{
		SessionID:   "s",
		Definitions: defs,
		Weighting:   params.DefaultEngineConfig().Weighting,
		Venue:       params.DefaultVenue(),
		Overrides:   override.New(defs, b, true),
		Bus:         b,
	})
	err := a.Add(input("c1", defs[0].Name, 0.5, 0))
	require.ErrorIs(t, err, ErrNotAudienceControllable)
}

func TestCompute_DefaultsWithNoInputs(t *testing.T) {
	a, _, _ := testAggregator(t)
	results := a.ComputeAll(200)

	require.Equal(t, 4, len(results))
	assert.Equal(t, 0.5, results["mood"].Value)
	assert.Equal(t, 0.5, results["tempo"].Value)
	assert.Equal(t, 0.3, results["intensity"].Value)
	assert.Equal(t, 0.4, results["density"].Value)
	for _, r := range results {
		assert.Equal(t, 0.0, r.Confidence)
		assert.Equal(t, 0, r.InputCount)
		assert.Equal(t, types.ModeDefault, r.Mode)
		assert.Equal(t, 0.0, r.ParticipationRate)
	}
}

// Ten unanimous inputs of 0.8 converge per the smoothing law: after five
// ticks the value is 0.8*(1-0.7^5) + 0.5*0.7^5.
func TestCompute_UnanimousSmoothing(t *testing.T) {
	a, _, _ := testAggregator(t)
	for i := 0; i < 10; i++ {
		require.NoError(t, a.Add(input(fmt.Sprintf("c%d", i), "mood", 0.8, 0)))
	}
	var last *types.ConsensusResult
	for tick := 1; tick <= 5; tick++ {
		var err error
		last, err = a.ComputeParameter("mood", int64(tick*50))
		require.NoError(t, err)
	}
	require.InDelta(t, 0.749, last.Value, 0.02)
	assert.Equal(t, 10, last.InputCount)
	require.InDelta(t, 0.8, last.RawMean, 1e-9)
	// Unanimous inputs carry full confidence.
	assert.Equal(t, 1.0, last.Confidence)
}

func TestCompute_Deterministic(t *testing.T) {
	run := func() []float64 {
		a, _, _ := testAggregator(t)
		for i := 0; i < 8; i++ {
			require.NoError(t, a.Add(input(fmt.Sprintf("c%d", i), "mood", 0.1+0.1*float64(i%3), 0)))
		}
		var seq []float64
		for tick := 1; tick <= 10; tick++ {
			r, err := a.ComputeParameter("mood", int64(tick*50))
			require.NoError(t, err)
			seq = append(seq, r.Value)
		}
		return seq
	}
	assert.Equal(t, run(), run())
}

func TestCompute_WindowExpiry(t *testing.T) {
	a, _, _ := testAggregator(t)
	require.NoError(t, a.Add(input("c1", "mood", 0.9, 0)))

	r, err := a.ComputeParameter("mood", 50)
	require.NoError(t, err)
	assert.Equal(t, 1, r.InputCount)
	held := r.Value

	// After the temporal window passes the input is pruned: the value holds,
	// confidence drops to zero.
	r, err = a.ComputeParameter("mood", 5100)
	require.NoError(t, err)
	assert.Equal(t, 0, r.InputCount)
	assert.Equal(t, held, r.Value)
	assert.Equal(t, 0.0, r.Confidence)
}

func TestCompute_TimestampsStrictlyMonotonic(t *testing.T) {
	a, _, _ := testAggregator(t)
	r1, err := a.ComputeParameter("mood", 100)
	require.NoError(t, err)
	r2, err := a.ComputeParameter("mood", 100)
	require.NoError(t, err)
	r3, err := a.ComputeParameter("mood", 50)
	require.NoError(t, err)
	assert.Equal(t, true, r2.Timestamp > r1.Timestamp)
	assert.Equal(t, true, r3.Timestamp > r2.Timestamp)
}

func TestCompute_ValueAlwaysInRange(t *testing.T) {
	a, _, _ := testAggregator(t)
	for i := 0; i < 20; i++ {
		require.NoError(t, a.Add(input(fmt.Sprintf("c%d", i), "mood", float64(i%2), 0)))
	}
	for tick := 1; tick <= 20; tick++ {
		r, err := a.ComputeParameter("mood", int64(tick*50))
		require.NoError(t, err)
		assert.Equal(t, true, r.Value >= 0 && r.Value <= 1)
	}
}

func TestCompute_OverrideAbsoluteWinsImmediately(t *testing.T) {
	a, reg, _ := testAggregator(t)
	perf := &types.PerformerIdentity{ID: "p1", Authenticated: true, Permissions: types.AllPermissions()}

	for i := 0; i < 10; i++ {
		require.NoError(t, a.Add(input(fmt.Sprintf("c%d", i), "mood", 0.8, 0)))
	}
	r, err := a.ComputeParameter("mood", 50)
	require.NoError(t, err)
	assert.Equal(t, types.ModeConsensus, r.Mode)

	_, failure := reg.Request(perf, &types.PerformerOverride{
		Parameter: "mood", Value: 0.2, Mode: types.OverrideAbsolute,
	})
	require.Equal(t, types.OverrideFailure(""), failure)

	for tick := 2; tick <= 6; tick++ {
		r, err = a.ComputeParameter("mood", int64(tick*50))
		require.NoError(t, err)
		assert.Equal(t, 0.2, r.Value)
		assert.Equal(t, types.ModeOverride, r.Mode)
	}
}

// Under lock the reported value pins to the override while the window keeps
// rolling for telemetry.
func TestCompute_OverrideLockFreezesOutputOnly(t *testing.T) {
	a, reg, _ := testAggregator(t)
	perf := &types.PerformerIdentity{ID: "p1", Authenticated: true, Permissions: types.AllPermissions()}
	_, failure := reg.Request(perf, &types.PerformerOverride{
		Parameter: "mood", Value: 0.9, Mode: types.OverrideLock,
	})
	require.Equal(t, types.OverrideFailure(""), failure)

	for tick := 1; tick <= 5; tick++ {
		require.NoError(t, a.Add(input(fmt.Sprintf("c%d", tick), "mood", 0.1, int64(tick*40))))
		r, err := a.ComputeParameter("mood", int64(tick*50))
		require.NoError(t, err)
		assert.Equal(t, 0.9, r.Value)
		assert.Equal(t, tick, r.InputCount)
	}

	// Clearing the lock lets the audience consensus through again.
	require.Equal(t, true, reg.Clear("p1", "mood"))
	r, err := a.ComputeParameter("mood", 300)
	require.NoError(t, err)
	assert.Equal(t, true, r.Value < 0.9)
}

func TestCompute_OverrideBlendLaw(t *testing.T) {
	a, reg, _ := testAggregator(t)
	perf := &types.PerformerIdentity{ID: "p1", Authenticated: true, Permissions: types.AllPermissions()}

	// Let the consensus converge to 0.8 first.
	for i := 0; i < 10; i++ {
		require.NoError(t, a.Add(input(fmt.Sprintf("c%d", i), "mood", 0.8, 0)))
	}
	var r *types.ConsensusResult
	var err error
	for tick := 1; tick <= 40; tick++ {
		r, err = a.ComputeParameter("mood", int64(tick*50))
		require.NoError(t, err)
	}

	_, failure := reg.Request(perf, &types.PerformerOverride{
		Parameter: "mood", Value: 0.2, Mode: types.OverrideBlend, BlendFactor: 0.5,
	})
	require.Equal(t, types.OverrideFailure(""), failure)

	// With the consensus pinned near 0.8 the blend lands near 0.5.
	for tick := 41; tick <= 80; tick++ {
		r, err = a.ComputeParameter("mood", int64(tick*50))
		require.NoError(t, err)
	}
	require.InDelta(t, 0.5, r.Value, 0.02)
}

func TestCompute_OverrideExpiryReleasesAudience(t *testing.T) {
	a, reg, _ := testAggregator(t)
	perf := &types.PerformerIdentity{ID: "p1", Authenticated: true, Permissions: types.AllPermissions()}
	_, failure := reg.Request(perf, &types.PerformerOverride{
		Parameter: "mood", Value: 1.0, Mode: types.OverrideAbsolute, ExpiresAt: 200,
	})
	require.Equal(t, types.OverrideFailure(""), failure)

	// Audience pushes 0.0 continuously.
	addAll := func(ts int64) {
		for i := 0; i < 5; i++ {
			require.NoError(t, a.Add(input(fmt.Sprintf("c%d", i), "mood", 0.0, ts)))
		}
	}
	addAll(0)
	r, err := a.ComputeParameter("mood", 100)
	require.NoError(t, err)
	assert.Equal(t, true, r.Value >= 0.9)

	// Past expiry the audience wins; smoothing pulls the value down.
	var v float64
	for tick := int64(250); tick <= 1000; tick += 50 {
		addAll(tick - 10)
		r, err = a.ComputeParameter("mood", tick)
		require.NoError(t, err)
		v = r.Value
	}
	assert.Equal(t, true, v <= 0.1)
}

func TestSnapshot_BimodalMetadata(t *testing.T) {
	a, _, _ := testAggregator(t)
	for i := 0; i < 6; i++ {
		require.NoError(t, a.Add(input(fmt.Sprintf("low%d", i), "mood", 0.1, 0)))
		require.NoError(t, a.Add(input(fmt.Sprintf("high%d", i), "mood", 0.9, 0)))
	}
	snap := a.Snapshot(50)
	r := snap.Results["mood"]
	require.NotNil(t, r.Clusters)
	assert.Equal(t, true, r.Clusters.Bimodal)
	require.Equal(t, 2, len(r.Clusters.Clusters))
	assert.Equal(t, 6, r.Clusters.Clusters[0].Density)
	assert.Equal(t, 6, r.Clusters.Clusters[1].Density)
	// The consensus itself sits near the middle.
	require.InDelta(t, 0.5, r.RawMean, 1e-9)
	assert.Equal(t, 12, snap.ActiveParticipants)
	require.InDelta(t, 1.0, r.ParticipationRate, 1e-9)
}

func TestSnapshot_Values(t *testing.T) {
	a, _, _ := testAggregator(t)
	snap := a.Snapshot(50)
	values := snap.Values()
	assert.Equal(t, 0.5, values["mood"])
	assert.Equal(t, 0.4, values["density"])
	assert.Equal(t, "test-session", snap.SessionID)
}

func TestUpdateWeighting_AppliedBetweenTicks(t *testing.T) {
	a, _, _ := testAggregator(t)
	w := a.Weighting()
	w.SmoothingFactor = 1.0
	a.UpdateWeighting(w)

	// Not yet applied.
	assert.Equal(t, 0.3, a.Weighting().SmoothingFactor)
	a.ApplyQueued()
	assert.Equal(t, 1.0, a.Weighting().SmoothingFactor)

	// With factor 1 a unanimous batch takes effect in a single tick.
	for i := 0; i < 4; i++ {
		require.NoError(t, a.Add(input(fmt.Sprintf("c%d", i), "mood", 0.8, 0)))
	}
	r, err := a.ComputeParameter("mood", 50)
	require.NoError(t, err)
	require.InDelta(t, 0.8, r.Value, 1e-9)
}

func TestHistory_Bounded(t *testing.T) {
	b := bus.New()
	defs := params.DefaultParameters()
	a := New(&Config{
		SessionID:   "s",
		Definitions: defs,
		Weighting:   params.DefaultEngineConfig().Weighting,
		Venue:       params.DefaultVenue(),
		Overrides:   override.New(defs, b, true),
		Bus:         b,
		MaxHistory:  10,
	})
	for tick := 1; tick <= 25; tick++ {
		_, err := a.ComputeParameter("mood", int64(tick*50))
		require.NoError(t, err)
	}
	h := a.History("mood")
	require.Equal(t, 10, len(h))
	assert.Equal(t, true, h[9].Timestamp > h[0].Timestamp)
}

func TestValues_DefaultsBeforeFirstTick(t *testing.T) {
	a, _, _ := testAggregator(t)
	values := a.Values()
	assert.Equal(t, 0.5, values["mood"])
	assert.Equal(t, 0.4, values["density"])
	assert.Equal(t, 0, a.ActiveClients())
}

// Control-plane reads come from the published per-tick view and must stay
// safe while the tick goroutine prunes and rewrites window state.
func TestValues_SafeDuringConcurrentTicks(t *testing.T) {
	a, _, _ := testAggregator(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for tick := int64(1); tick <= 300; tick++ {
			now := tick * 20
			_ = a.Add(input(fmt.Sprintf("c%d", tick%7), "mood", 0.8, now))
			a.ComputeAll(now)
		}
	}()
	for {
		values := a.Values()
		v, ok := values["mood"]
		require.Equal(t, true, ok)
		require.Equal(t, true, v >= 0 && v <= 1)
		require.Equal(t, true, a.ActiveClients() >= 0)
		select {
		case <-done:
			return
		default:
		}
	}
}
