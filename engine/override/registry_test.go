package override

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutti-live/tutti/config/params"
	"github.com/tutti-live/tutti/engine/bus"
	"github.com/tutti-live/tutti/engine/feed"
	"github.com/tutti-live/tutti/engine/types"
)

func testPerformer() *types.PerformerIdentity {
	return &types.PerformerIdentity{
		ID:            "conductor",
		Authenticated: true,
		Permissions:   types.AllPermissions(),
	}
}

func testRegistry(b *bus.Bus) *Registry {
	return New(params.DefaultParameters(), b, true)
}

func TestRequest_FailureReasons(t *testing.T) {
	r := testRegistry(bus.New())
	valid := &types.PerformerOverride{Parameter: "mood", Value: 0.2, Mode: types.OverrideAbsolute}

	tests := []struct {
		name string
		perf *types.PerformerIdentity
		ov   *types.PerformerOverride
		want types.OverrideFailure
	}{
		{"nil performer", nil, valid, types.FailPerformerNotFound},
		{"empty id", &types.PerformerIdentity{}, valid, types.FailPerformerNotFound},
		{
			"unauthenticated",
			&types.PerformerIdentity{ID: "x"},
			valid,
			types.FailNotAuthenticated,
		},
		{
			"no permission",
			&types.PerformerIdentity{ID: "x", Authenticated: true},
			valid,
			types.FailNoOverridePermission,
		},
		{
			"parameter outside allowed set",
			&types.PerformerIdentity{
				ID:            "x",
				Authenticated: true,
				Permissions: types.PerformerPermissions{
					CanOverride:       true,
					AllowedParameters: []string{"tempo"},
				},
			},
			valid,
			types.FailParameterNotAllowed,
		},
		{
			"unknown parameter",
			testPerformer(),
			&types.PerformerOverride{Parameter: "fog", Value: 0.2, Mode: types.OverrideAbsolute},
			types.FailParameterNotAllowed,
		},
		{
			"non-finite value",
			testPerformer(),
			&types.PerformerOverride{Parameter: "mood", Value: math.NaN(), Mode: types.OverrideAbsolute},
			types.FailInvalidValue,
		},
		{
			"out of range value",
			testPerformer(),
			&types.PerformerOverride{Parameter: "mood", Value: 1.2, Mode: types.OverrideAbsolute},
			types.FailInvalidValue,
		},
		{
			"invalid mode",
			testPerformer(),
			&types.PerformerOverride{Parameter: "mood", Value: 0.2, Mode: "sticky"},
			types.FailInvalidMode,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, failure := r.Request(tt.perf, tt.ov)
			assert.Equal(t, tt.want, failure)
		})
	}
}

func TestRequest_ParameterNotPerformerControllable(t *testing.T) {
	defs := params.DefaultParameters()
	defs[0].PerformerControllable = false
	r := New(defs, bus.New(), true)
	_, failure := r.Request(testPerformer(), &types.PerformerOverride{
		Parameter: defs[0].Name, Value: 0.2, Mode: types.OverrideAbsolute,
	})
	assert.Equal(t, types.FailParameterNotPerformerControllable, failure)
}

func TestRequest_OverridesDisabled(t *testing.T) {
	r := New(params.DefaultParameters(), bus.New(), false)
	_, failure := r.Request(testPerformer(), &types.PerformerOverride{
		Parameter: "mood", Value: 0.2, Mode: types.OverrideAbsolute,
	})
	assert.Equal(t, types.FailNoOverridePermission, failure)
}

func TestRequest_PublishesAndReplaces(t *testing.T) {
	b := bus.New()
	accepted := b.Subscribe(feed.PerformerOverride, 8)
	cleared := b.Subscribe(feed.PerformerOverrideClear, 8)
	defer accepted.Unsubscribe()
	defer cleared.Unsubscribe()

	r := testRegistry(b)
	first, failure := r.Request(testPerformer(), &types.PerformerOverride{
		Parameter: "mood", Value: 0.2, Mode: types.OverrideAbsolute,
	})
	require.Equal(t, types.OverrideFailure(""), failure)
	require.NotNil(t, first)
	<-accepted.C()

	// A second performer wins the last-writer race; the first holder is
	// notified with the winner's id.
	other := &types.PerformerIdentity{ID: "soloist", Authenticated: true, Permissions: types.AllPermissions()}
	_, failure = r.Request(other, &types.PerformerOverride{
		Parameter: "mood", Value: 0.9, Mode: types.OverrideAbsolute,
	})
	require.Equal(t, types.OverrideFailure(""), failure)

	evt := <-cleared.C()
	data := evt.Data.(*feed.OverrideClearData)
	assert.Equal(t, "conductor", data.PerformerID)
	assert.Equal(t, "soloist", data.ReplacedBy)
	assert.Equal(t, "soloist", r.Active("mood").PerformerID)
}

func TestRequest_Idempotent(t *testing.T) {
	r := testRegistry(bus.New())
	ov := &types.PerformerOverride{Parameter: "mood", Value: 0.2, Mode: types.OverrideAbsolute}
	first, failure := r.Request(testPerformer(), ov)
	require.Equal(t, types.OverrideFailure(""), failure)
	second, failure := r.Request(testPerformer(), ov)
	require.Equal(t, types.OverrideFailure(""), failure)
	assert.Equal(t, *first, *second)
	v, active := r.Resolve("mood", 0.8, 0)
	assert.Equal(t, 0.2, v)
	require.NotNil(t, active)
}

func TestClear_OwnershipRequired(t *testing.T) {
	r := testRegistry(bus.New())
	_, failure := r.Request(testPerformer(), &types.PerformerOverride{
		Parameter: "mood", Value: 0.2, Mode: types.OverrideAbsolute,
	})
	require.Equal(t, types.OverrideFailure(""), failure)

	assert.Equal(t, false, r.Clear("impostor", "mood"))
	require.NotNil(t, r.Active("mood"))
	assert.Equal(t, true, r.Clear("conductor", "mood"))
	require.Nil(t, r.Active("mood"))
}

func TestResolve_Modes(t *testing.T) {
	r := testRegistry(bus.New())

	// No override passes the consensus value through.
	v, active := r.Resolve("mood", 0.7, 100)
	assert.Equal(t, 0.7, v)
	require.Nil(t, active)

	_, failure := r.Request(testPerformer(), &types.PerformerOverride{
		Parameter: "mood", Value: 0.2, Mode: types.OverrideBlend, BlendFactor: 0.5,
	})
	require.Equal(t, types.OverrideFailure(""), failure)
	v, _ = r.Resolve("mood", 0.8, 100)
	require.InDelta(t, 0.5*0.2+0.5*0.8, v, 1e-9)

	_, failure = r.Request(testPerformer(), &types.PerformerOverride{
		Parameter: "mood", Value: 0.3, Mode: types.OverrideLock,
	})
	require.Equal(t, types.OverrideFailure(""), failure)
	v, _ = r.Resolve("mood", 0.9, 100)
	assert.Equal(t, 0.3, v)
}

func TestResolve_ExplicitZeroBlendFactor(t *testing.T) {
	r := testRegistry(bus.New())
	stored, failure := r.Request(testPerformer(), &types.PerformerOverride{
		Parameter: "mood", Value: 1, Mode: types.OverrideBlend, BlendFactor: 0,
	})
	require.Equal(t, types.OverrideFailure(""), failure)
	assert.Equal(t, 0.0, stored.BlendFactor)

	// A zero factor passes the consensus through while the override stays
	// active.
	v, active := r.Resolve("mood", 0.8, 100)
	assert.Equal(t, 0.8, v)
	require.NotNil(t, active)

	_, failure = r.Request(testPerformer(), &types.PerformerOverride{
		Parameter: "mood", Value: 1, Mode: types.OverrideBlend, BlendFactor: 1.5,
	})
	assert.Equal(t, types.FailInvalidValue, failure)
}

func TestResolve_LazyExpiry(t *testing.T) {
	b := bus.New()
	cleared := b.Subscribe(feed.PerformerOverrideClear, 4)
	defer cleared.Unsubscribe()

	r := testRegistry(b)
	_, failure := r.Request(testPerformer(), &types.PerformerOverride{
		Parameter: "mood", Value: 1, Mode: types.OverrideAbsolute, ExpiresAt: 200,
	})
	require.Equal(t, types.OverrideFailure(""), failure)

	// Strictly after T the override ceases to affect output.
	v, active := r.Resolve("mood", 0.4, 199)
	assert.Equal(t, 1.0, v)
	require.NotNil(t, active)

	v, active = r.Resolve("mood", 0.4, 200)
	assert.Equal(t, 0.4, v)
	require.Nil(t, active)
	require.Nil(t, r.Active("mood"))

	evt := <-cleared.C()
	assert.Equal(t, true, evt.Data.(*feed.OverrideClearData).Expired)
}

func TestClearOwnedBy(t *testing.T) {
	r := testRegistry(bus.New())
	perf := testPerformer()
	for _, p := range []string{"mood", "tempo"} {
		_, failure := r.Request(perf, &types.PerformerOverride{
			Parameter: p, Value: 0.5, Mode: types.OverrideAbsolute,
		})
		require.Equal(t, types.OverrideFailure(""), failure)
	}
	r.ClearOwnedBy("conductor")
	assert.Equal(t, 0, len(r.ActiveAll()))
}
