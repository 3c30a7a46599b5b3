// Package params defines the configuration of the performance engine: the
// session options, the weighting coefficients of the consensus algorithm,
// the venue geometry, and the parameter definitions of a session. A single
// process-wide config is accessible through EngineConfig and may be replaced
// with OverrideEngineConfig before the session starts.
package params

import (
	"github.com/pkg/errors"
)

// WeightingConfig holds the coefficients of the weighted-voting consensus
// algorithm. It is owned by the aggregator and may only be swapped between
// ticks.
type WeightingConfig struct {
	SpatialAlpha      float64 `yaml:"spatialAlpha"`      // Coefficient of the spatial weight component.
	SpatialDecayRate  float64 `yaml:"spatialDecayRate"`  // Exponential decay of influence with distance to stage.
	TemporalBeta      float64 `yaml:"temporalBeta"`      // Coefficient of the temporal weight component.
	TemporalWindowMs  int64   `yaml:"temporalWindowMs"`  // Sliding window length for inputs, in milliseconds.
	TemporalDecayRate float64 `yaml:"temporalDecayRate"` // Exponential decay of influence with input age.
	ConsensusGamma    float64 `yaml:"consensusGamma"`    // Coefficient of the consensus (median proximity) weight component.
	ClusterThreshold  float64 `yaml:"clusterThreshold"`  // Bin width for cluster analysis and median proximity cutoff.
	SmoothingFactor   float64 `yaml:"smoothingFactor"`   // Exponential smoothing factor applied to consensus values.
	OutlierThreshold  float64 `yaml:"outlierThreshold"`  // Z-score beyond which inputs are rejected as outliers.
}

// EngineConfig contains every recognized option of a session.
type EngineConfig struct {
	// Session options.
	SessionName            string `yaml:"sessionName"`
	MaxParticipants        int    `yaml:"maxParticipants"`
	AllowAudienceInput     bool   `yaml:"allowAudienceInput"`
	AllowPerformerOverride bool   `yaml:"allowPerformerOverride"`

	// Ingress options.
	InputRateLimitMs   int64 `yaml:"inputRateLimitMs"`
	MaxInputsPerClient int64 `yaml:"maxInputsPerClient"`

	// Loop cadence options.
	ConsensusIntervalMs int64 `yaml:"consensusIntervalMs"`
	BatchIntervalMs     int64 `yaml:"batchIntervalMs"`

	// Weighting options.
	Weighting WeightingConfig `yaml:"weighting"`

	// Aggregator bounds.
	MaxHistoryLength int `yaml:"maxHistoryLength"`

	// External synthesis sink options.
	OSCEnabled bool   `yaml:"oscEnabled"`
	OSCHost    string `yaml:"oscHost"`
	OSCPort    int    `yaml:"oscPort"`

	// Performer channel options.
	AuthTimeoutMs   int64  `yaml:"authTimeoutMs"`
	PerformerSecret string `yaml:"performerSecret"`

	// Client lifecycle bounds.
	ClientIdleEvictionMs int64 `yaml:"clientIdleEvictionMs"`
	FloodBlockMs         int64 `yaml:"floodBlockMs"`
	ConnIdleTimeoutMs    int64 `yaml:"connIdleTimeoutMs"`

	// Per-connection send queue bound.
	SendQueueSize int `yaml:"sendQueueSize"`
}

var engineConfig = DefaultEngineConfig()

// Config retrieves the engine config.
func Config() *EngineConfig {
	return engineConfig
}

// OverrideEngineConfig replaces the process-wide engine config. This is
// intended to be called at session init or from tests, never while the tick
// loop is running.
func OverrideEngineConfig(c *EngineConfig) {
	engineConfig = c
}

// Copy returns a deep value copy of the config.
func (c *EngineConfig) Copy() *EngineConfig {
	cp := *c
	return &cp
}

// Validate verifies config values that would otherwise produce an engine
// that cannot honor its invariants. Invalid configuration is fatal to
// session creation.
func (c *EngineConfig) Validate() error {
	if c.ConsensusIntervalMs <= 0 {
		return errors.New("consensusIntervalMs must be positive")
	}
	if c.BatchIntervalMs <= 0 {
		return errors.New("batchIntervalMs must be positive")
	}
	if c.InputRateLimitMs <= 0 {
		return errors.New("inputRateLimitMs must be positive")
	}
	if c.MaxInputsPerClient <= 0 {
		return errors.New("maxInputsPerClient must be positive")
	}
	if c.Weighting.TemporalWindowMs <= 0 {
		return errors.New("temporalWindowMs must be positive")
	}
	for name, v := range map[string]float64{
		"spatialAlpha":   c.Weighting.SpatialAlpha,
		"temporalBeta":   c.Weighting.TemporalBeta,
		"consensusGamma": c.Weighting.ConsensusGamma,
	} {
		if v < 0 || v > 1 {
			return errors.Errorf("%s must lie in [0,1], got %f", name, v)
		}
	}
	if c.Weighting.SmoothingFactor < 0 || c.Weighting.SmoothingFactor > 1 {
		return errors.New("smoothingFactor must lie in [0,1]")
	}
	if c.Weighting.ClusterThreshold <= 0 {
		return errors.New("clusterThreshold must be positive")
	}
	if c.Weighting.OutlierThreshold <= 0 {
		return errors.New("outlierThreshold must be positive")
	}
	if c.AllowPerformerOverride && c.PerformerSecret == "" {
		return errors.New("performerSecret is required when performer overrides are enabled")
	}
	return nil
}
