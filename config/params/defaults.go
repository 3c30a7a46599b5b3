package params

// DefaultEngineConfig returns the configuration used when no option is
// supplied at session init.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		SessionName:            "performance",
		MaxParticipants:        1000,
		AllowAudienceInput:     true,
		AllowPerformerOverride: true,

		InputRateLimitMs:   100,
		MaxInputsPerClient: 600,

		ConsensusIntervalMs: 50,
		BatchIntervalMs:     50,

		Weighting: WeightingConfig{
			SpatialAlpha:      0.3,
			SpatialDecayRate:  0.5,
			TemporalBeta:      0.5,
			TemporalWindowMs:  5000,
			TemporalDecayRate: 0.5,
			ConsensusGamma:    0.2,
			ClusterThreshold:  0.1,
			SmoothingFactor:   0.3,
			OutlierThreshold:  2.5,
		},

		MaxHistoryLength: 100,

		OSCEnabled: true,
		OSCHost:    "127.0.0.1",
		OSCPort:    57120,

		AuthTimeoutMs: 5000,

		ClientIdleEvictionMs: 60_000,
		FloodBlockMs:         60_000,
		ConnIdleTimeoutMs:    120_000,

		SendQueueSize: 1024,
	}
}
