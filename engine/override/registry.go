// Package override implements the authenticated store of per-parameter
// performer overrides. At most one override is active per parameter at any
// instant; replacement is last-writer-wins with the displaced holder
// notified. Expired overrides are removed lazily on resolve.
package override

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tutti-live/tutti/config/params"
	"github.com/tutti-live/tutti/engine/bus"
	"github.com/tutti-live/tutti/engine/feed"
	"github.com/tutti-live/tutti/engine/types"
	"github.com/tutti-live/tutti/engine/weighting"
)

var log = logrus.WithField("prefix", "override")

// Registry stores active performer overrides. Writes are serialized by a
// mutex; the aggregator's per-tick resolve reads a consistent view under the
// read lock.
type Registry struct {
	mu        sync.RWMutex
	overrides map[string]*types.PerformerOverride
	defs      map[string]*params.ParameterDefinition
	bus       *bus.Bus
	allowed   bool
}

// New constructs a registry over the session's parameter definitions.
func New(defs []*params.ParameterDefinition, b *bus.Bus, allowOverrides bool) *Registry {
	byName := make(map[string]*params.ParameterDefinition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	return &Registry{
		overrides: make(map[string]*types.PerformerOverride),
		defs:      byName,
		bus:       b,
		allowed:   allowOverrides,
	}
}

// Request validates and stores an override. On success the stored override
// is returned and an override event published; on failure the reason from
// the closed failure set is returned.
func (r *Registry) Request(perf *types.PerformerIdentity, ov *types.PerformerOverride) (*types.PerformerOverride, types.OverrideFailure) {
	if perf == nil || perf.ID == "" {
		return nil, types.FailPerformerNotFound
	}
	if !perf.Authenticated {
		return nil, types.FailNotAuthenticated
	}
	if !r.allowed || !perf.Permissions.CanOverride {
		return nil, types.FailNoOverridePermission
	}
	if !perf.Permissions.ParameterAllowed(ov.Parameter) {
		return nil, types.FailParameterNotAllowed
	}
	def, known := r.defs[ov.Parameter]
	if !known {
		return nil, types.FailParameterNotAllowed
	}
	if !def.PerformerControllable {
		return nil, types.FailParameterNotPerformerControllable
	}
	if !weighting.Finite(ov.Value) || ov.Value < 0 || ov.Value > 1 {
		return nil, types.FailInvalidValue
	}
	if !types.ValidOverrideMode(ov.Mode) {
		return nil, types.FailInvalidMode
	}
	if ov.Mode == types.OverrideBlend {
		// A factor of zero is legal and passes the consensus through; the
		// transport applies the default for omitted factors.
		if !weighting.Finite(ov.BlendFactor) || ov.BlendFactor < 0 || ov.BlendFactor > 1 {
			return nil, types.FailInvalidValue
		}
	}
	stored := *ov
	stored.PerformerID = perf.ID

	r.mu.Lock()
	previous := r.overrides[stored.Parameter]
	r.overrides[stored.Parameter] = &stored
	r.mu.Unlock()

	if previous != nil && previous.PerformerID != stored.PerformerID {
		r.bus.Publish(&feed.Event{
			Kind: feed.PerformerOverrideClear,
			Data: &feed.OverrideClearData{
				PerformerID: previous.PerformerID,
				Parameter:   previous.Parameter,
				ReplacedBy:  stored.PerformerID,
			},
		})
	}
	r.bus.Publish(&feed.Event{
		Kind: feed.PerformerOverride,
		Data: &feed.OverrideData{Override: &stored},
	})
	log.WithFields(logrus.Fields{
		"performer": stored.PerformerID,
		"parameter": stored.Parameter,
		"mode":      stored.Mode,
	}).Debug("Override accepted")
	return &stored, ""
}

// Clear removes the active override for a parameter. It succeeds only when
// the caller owns it.
func (r *Registry) Clear(performerID, parameter string) bool {
	r.mu.Lock()
	active, ok := r.overrides[parameter]
	if !ok || active.PerformerID != performerID {
		r.mu.Unlock()
		return false
	}
	delete(r.overrides, parameter)
	r.mu.Unlock()

	r.bus.Publish(&feed.Event{
		Kind: feed.PerformerOverrideClear,
		Data: &feed.OverrideClearData{PerformerID: performerID, Parameter: parameter},
	})
	return true
}

// ClearOwnedBy removes every override owned by a performer. Called when a
// performer connection is canceled.
func (r *Registry) ClearOwnedBy(performerID string) {
	r.mu.Lock()
	var cleared []string
	for parameter, ov := range r.overrides {
		if ov.PerformerID == performerID {
			delete(r.overrides, parameter)
			cleared = append(cleared, parameter)
		}
	}
	r.mu.Unlock()

	for _, parameter := range cleared {
		r.bus.Publish(&feed.Event{
			Kind: feed.PerformerOverrideClear,
			Data: &feed.OverrideClearData{PerformerID: performerID, Parameter: parameter},
		})
	}
}

// Resolve maps a consensus value through the active override for the
// parameter, removing it first if expired. The returned override is nil
// when the consensus value passed through untouched.
func (r *Registry) Resolve(parameter string, consensusValue float64, nowMs int64) (float64, *types.PerformerOverride) {
	r.mu.RLock()
	active, ok := r.overrides[parameter]
	r.mu.RUnlock()
	if !ok {
		return consensusValue, nil
	}
	if active.Expired(nowMs) {
		r.mu.Lock()
		// Re-check under the write lock; a replacement may have raced in.
		if current, still := r.overrides[parameter]; still && current == active {
			delete(r.overrides, parameter)
		}
		r.mu.Unlock()
		r.bus.Publish(&feed.Event{
			Kind: feed.PerformerOverrideClear,
			Data: &feed.OverrideClearData{
				PerformerID: active.PerformerID,
				Parameter:   parameter,
				Expired:     true,
			},
		})
		return consensusValue, nil
	}
	switch active.Mode {
	case types.OverrideAbsolute, types.OverrideLock:
		return active.Value, active
	case types.OverrideBlend:
		f := active.BlendFactor
		return active.Value*f + consensusValue*(1-f), active
	}
	return consensusValue, nil
}

// Active returns the current override for a parameter, or nil.
func (r *Registry) Active(parameter string) *types.PerformerOverride {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.overrides[parameter]
}

// ActiveAll returns a copy of the active override set.
func (r *Registry) ActiveAll() map[string]*types.PerformerOverride {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*types.PerformerOverride, len(r.overrides))
	for k, v := range r.overrides {
		out[k] = v
	}
	return out
}
