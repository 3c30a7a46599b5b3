// Package aggregator holds the per-parameter consensus state: the sliding
// input window, the last consensus result, and a bounded history. All
// mutation happens on the tick goroutine; ingress workers hand inputs over
// through per-parameter MPSC queues drained at tick time, so the hot path
// of input acceptance acquires no lock.
package aggregator

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tutti-live/tutti/config/params"
	"github.com/tutti-live/tutti/engine/bus"
	"github.com/tutti-live/tutti/engine/feed"
	"github.com/tutti-live/tutti/engine/override"
	"github.com/tutti-live/tutti/engine/types"
	"github.com/tutti-live/tutti/engine/weighting"
)

var log = logrus.WithField("prefix", "aggregator")

// pendingQueueSize bounds each parameter's MPSC queue between ticks.
const pendingQueueSize = 4096

// ErrUnknownParameter is returned for inputs targeting an undefined
// parameter.
var ErrUnknownParameter = errors.New("unknown parameter")

// ErrNotAudienceControllable is returned for inputs targeting a parameter
// the audience cannot control.
var ErrNotAudienceControllable = errors.New("parameter is not audience controllable")

type paramState struct {
	def     *params.ParameterDefinition
	pending chan *types.AudienceInput
	window  *window
	// consensus is the smoothed audience track, kept free of override
	// displacement so clearing an override restores the pre-override
	// consensus within one tick.
	consensus float64
	last      *types.ConsensusResult
	history   []*types.ConsensusResult
}

// Config holds the aggregator dependencies.
type Config struct {
	SessionID   string
	Definitions []*params.ParameterDefinition
	Weighting   params.WeightingConfig
	Venue       *params.VenueGeometry
	Overrides   *override.Registry
	Bus         *bus.Bus
	MaxHistory  int
}

// view is the immutable per-tick projection served to readers outside the
// tick goroutine. The tick goroutine replaces it wholesale after every
// ComputeAll; readers never touch live window state.
type view struct {
	values map[string]float64
	active int
}

// Aggregator computes per-parameter consensus values. ComputeAll,
// ComputeParameter, Snapshot and ApplyQueued must only be called from the
// tick goroutine; Add, Values, ActiveClients, UpdateWeighting and
// SetStagePosition may be called from any goroutine.
type Aggregator struct {
	sessionID  string
	states     map[string]*paramState
	order      []string
	weighting  params.WeightingConfig
	venue      *params.VenueGeometry
	stageX     float64
	stageY     float64
	overrides  *override.Registry
	bus        *bus.Bus
	maxHistory int
	queued     chan func(*Aggregator)
	published  atomic.Value // *view
}

// New constructs an aggregator with one state per parameter definition. The
// last consensus of every parameter is seeded with its default value so the
// engine reports sensible values before the first input arrives.
func New(cfg *Config) *Aggregator {
	a := &Aggregator{
		sessionID:  cfg.SessionID,
		states:     make(map[string]*paramState, len(cfg.Definitions)),
		weighting:  cfg.Weighting,
		venue:      cfg.Venue,
		stageX:     cfg.Venue.StageX,
		stageY:     cfg.Venue.StageY,
		overrides:  cfg.Overrides,
		bus:        cfg.Bus,
		maxHistory: cfg.MaxHistory,
		queued:     make(chan func(*Aggregator), 16),
	}
	if a.maxHistory <= 0 {
		a.maxHistory = 100
	}
	defaults := make(map[string]float64, len(cfg.Definitions))
	for _, def := range cfg.Definitions {
		a.states[def.Name] = &paramState{
			def:       def,
			pending:   make(chan *types.AudienceInput, pendingQueueSize),
			window:    newWindow(),
			consensus: def.Default,
			last: &types.ConsensusResult{
				Parameter: def.Name,
				Value:     def.Default,
				Mode:      types.ModeDefault,
			},
		}
		a.order = append(a.order, def.Name)
		defaults[def.Name] = def.Default
	}
	a.published.Store(&view{values: defaults})
	return a
}

// Add offers an accepted input to its parameter's pending queue. When the
// queue is full the oldest pending input is dropped and a warning published.
func (a *Aggregator) Add(input *types.AudienceInput) error {
	state, ok := a.states[input.Parameter]
	if !ok {
		return ErrUnknownParameter
	}
	if !state.def.AudienceControllable {
		return ErrNotAudienceControllable
	}
	select {
	case state.pending <- input:
		return nil
	default:
	}
	select {
	case <-state.pending:
	default:
	}
	a.bus.Publish(&feed.Event{
		Kind: feed.Warning,
		Data: &feed.WarningData{Tag: "ingress_queue_full", Message: "dropped oldest pending input for " + input.Parameter},
	})
	select {
	case state.pending <- input:
	default:
	}
	return nil
}

// SetSessionID stamps snapshots with the session id. Called once during
// node assembly, before the tick loop starts.
func (a *Aggregator) SetSessionID(id string) {
	a.sessionID = id
}

// UpdateWeighting swaps the weighting config at the next tick boundary.
func (a *Aggregator) UpdateWeighting(w params.WeightingConfig) {
	a.queued <- func(a *Aggregator) {
		a.weighting = w
		log.Debug("Weighting config updated")
	}
}

// SetStagePosition moves the stage reference point at the next tick
// boundary.
func (a *Aggregator) SetStagePosition(x, y float64) {
	a.queued <- func(a *Aggregator) {
		a.stageX, a.stageY = x, y
	}
}

// ApplyQueued applies pending config commands. The tick loop calls this
// between ticks so swaps are atomic with respect to computation.
func (a *Aggregator) ApplyQueued() {
	for {
		select {
		case apply := <-a.queued:
			apply(a)
		default:
			return
		}
	}
}

// ComputeParameter computes the consensus result for one parameter at the
// given monotonic time.
func (a *Aggregator) ComputeParameter(name string, nowMs int64) (*types.ConsensusResult, error) {
	state, ok := a.states[name]
	if !ok {
		return nil, ErrUnknownParameter
	}
	result := a.compute(state, nowMs)
	a.fillParticipation(result, nowMs)
	return result, nil
}

func (a *Aggregator) fillParticipation(result *types.ConsensusResult, nowMs int64) {
	active := a.activeClients(nowMs)
	if active > 0 {
		result.ParticipationRate = float64(result.InputCount) / float64(active)
	}
}

func (a *Aggregator) compute(state *paramState, nowMs int64) *types.ConsensusResult {
	w := a.weighting

	// Drain the MPSC queue, then prune by the temporal window.
draining:
	for {
		select {
		case input := <-state.pending:
			state.window.add(input)
		default:
			break draining
		}
	}
	state.window.prune(nowMs - w.TemporalWindowMs)

	prev := state.consensus
	size := state.window.size()
	values := state.window.values(make([]float64, 0, size))

	result := &types.ConsensusResult{
		Parameter:  state.def.Name,
		InputCount: size,
		Timestamp:  nowMs,
		Mode:       types.ModeConsensus,
	}
	if state.last != nil && result.Timestamp <= state.last.Timestamp {
		result.Timestamp = state.last.Timestamp + 1
	}

	var consensus float64
	if size == 0 {
		// No recent inputs: hold the previous value (the default before any
		// input ever arrived) with zero confidence.
		consensus = prev
		result.RawMean = prev
		result.WeightedMean = prev
		result.Mode = state.last.Mode
		if result.Mode == types.ModeOverride {
			result.Mode = types.ModeConsensus
		}
	} else {
		weights := make([]float64, size)
		diag := a.venue.Diagonal()
		for i := 0; i < size; i++ {
			input := state.window.at(i)
			spatial := weighting.NoLocationWeight
			if loc := input.Location; loc != nil {
				mult := a.venue.ZoneMultiplier(loc.Zone, loc.X, loc.Y)
				spatial = weighting.SpatialWeight(loc.X, loc.Y, a.stageX, a.stageY, diag, w.SpatialDecayRate, mult)
			}
			temporal := weighting.TemporalWeight(nowMs-input.Timestamp, w.TemporalWindowMs, w.TemporalDecayRate)
			agreement := weighting.ConsensusWeight(input.Value, values, w.ClusterThreshold)
			weights[i] = weighting.CompositeWeight(spatial, temporal, agreement, w.SpatialAlpha, w.TemporalBeta, w.ConsensusGamma)
		}
		weighting.Normalize(weights)

		keep := weighting.FilterOutliers(values, w.OutlierThreshold)
		kept := values
		keptWeights := weights
		if len(keep) != size {
			kept = make([]float64, 0, len(keep))
			keptWeights = make([]float64, 0, len(keep))
			for _, idx := range keep {
				kept = append(kept, values[idx])
				keptWeights = append(keptWeights, weights[idx])
			}
			weighting.Normalize(keptWeights)
		}

		result.RawMean = weighting.Mean(values)
		result.StandardDeviation = weighting.StdDev(values)
		result.WeightedMean = weighting.WeightedMean(kept, keptWeights)

		consensus = result.WeightedMean
		if state.def.SmoothingEnabled {
			consensus = weighting.Smooth(&prev, consensus, w.SmoothingFactor)
		}
	}
	consensus = weighting.Clamp01(consensus)
	state.consensus = consensus

	result.Confidence = 0
	if size > 0 {
		result.Confidence = 1 / (1 + result.StandardDeviation)
	}

	final, active := a.overrides.Resolve(state.def.Name, consensus, nowMs)
	if active != nil {
		result.Mode = types.ModeOverride
	}
	result.Value = weighting.Clamp01(final)
	result.Clusters = weighting.AnalyzeClusters(values, w.ClusterThreshold, prev)

	state.last = result
	state.history = append(state.history, result)
	if len(state.history) > a.maxHistory {
		state.history = state.history[len(state.history)-a.maxHistory:]
	}
	return result
}

// ComputeAll computes every parameter, publishes the per-tick view and
// returns the results keyed by parameter name.
func (a *Aggregator) ComputeAll(nowMs int64) map[string]*types.ConsensusResult {
	results := make(map[string]*types.ConsensusResult, len(a.order))
	for _, name := range a.order {
		results[name] = a.compute(a.states[name], nowMs)
	}
	active := a.activeClients(nowMs)
	values := make(map[string]float64, len(results))
	for name, result := range results {
		if active > 0 {
			result.ParticipationRate = float64(result.InputCount) / float64(active)
		}
		values[name] = result.Value
	}
	a.published.Store(&view{values: values, active: active})
	return results
}

// Snapshot computes every parameter and assembles the per-tick snapshot.
// ActiveParticipants counts distinct clients with an input inside the
// temporal window across all parameters.
func (a *Aggregator) Snapshot(nowMs int64) *types.Snapshot {
	results := a.ComputeAll(nowMs)
	return &types.Snapshot{
		SessionID:          a.sessionID,
		Timestamp:          nowMs,
		Results:            results,
		ActiveParticipants: a.ActiveClients(),
	}
}

// activeClients counts distinct clientIds with at least one input inside
// the temporal window. It walks live window state, so it runs on the tick
// goroutine only.
func (a *Aggregator) activeClients(nowMs int64) int {
	cutoff := nowMs - a.weighting.TemporalWindowMs
	seen := make(map[string]struct{})
	for _, state := range a.states {
		for i := 0; i < state.window.size(); i++ {
			input := state.window.at(i)
			if input.Timestamp >= cutoff {
				seen[input.ClientID] = struct{}{}
			}
		}
	}
	return len(seen)
}

// ActiveClients reports the distinct participant count from the last
// published tick.
func (a *Aggregator) ActiveClients() int {
	return a.published.Load().(*view).active
}

// Last returns the most recent consensus result for a parameter, or nil.
func (a *Aggregator) Last(name string) *types.ConsensusResult {
	if state, ok := a.states[name]; ok {
		return state.last
	}
	return nil
}

// History returns the bounded result history for a parameter, oldest first.
func (a *Aggregator) History(name string) []*types.ConsensusResult {
	state, ok := a.states[name]
	if !ok {
		return nil
	}
	out := make([]*types.ConsensusResult, len(state.history))
	copy(out, state.history)
	return out
}

// Values returns the per-parameter values from the last published tick.
// Before the first tick every parameter reports its default.
func (a *Aggregator) Values() map[string]float64 {
	published := a.published.Load().(*view)
	values := make(map[string]float64, len(published.values))
	for name, value := range published.values {
		values[name] = value
	}
	return values
}

// Definitions returns the parameter definitions of the session.
func (a *Aggregator) Definitions() []*params.ParameterDefinition {
	defs := make([]*params.ParameterDefinition, 0, len(a.order))
	for _, name := range a.order {
		defs = append(defs, a.states[name].def)
	}
	return defs
}

// Weighting returns the active weighting config.
func (a *Aggregator) Weighting() params.WeightingConfig {
	return a.weighting
}
