package node

import (
	"github.com/tutti-live/tutti/cmd/engine/flags"
	"github.com/tutti-live/tutti/config/params"
	"github.com/urfave/cli/v2"
)

// configure assembles the engine config from defaults, the optional session
// file, the optional genre preset, and explicitly set flags, in that order
// of increasing precedence. The result replaces the process-wide config.
func configure(cliCtx *cli.Context) (*params.EngineConfig, []*params.ParameterDefinition, *params.VenueGeometry, error) {
	cfg := params.DefaultEngineConfig()
	defs := params.DefaultParameters()
	venue := params.DefaultVenue()

	if cliCtx.IsSet(flags.ConfigFileFlag.Name) {
		file, err := params.LoadSessionFile(cliCtx.String(flags.ConfigFileFlag.Name))
		if err != nil {
			return nil, nil, nil, err
		}
		cfg = file.Engine
		if len(file.Parameters) > 0 {
			defs = file.Parameters
		}
		if file.Venue != nil {
			venue = file.Venue
		}
	}

	if cliCtx.IsSet(flags.GenreFlag.Name) {
		if err := cfg.UseGenrePreset(cliCtx.String(flags.GenreFlag.Name)); err != nil {
			return nil, nil, nil, err
		}
	}

	applyFlags(cliCtx, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}
	params.OverrideEngineConfig(cfg)
	return cfg, defs, venue, nil
}

func applyFlags(cliCtx *cli.Context, cfg *params.EngineConfig) {
	if cliCtx.IsSet(flags.SessionNameFlag.Name) {
		cfg.SessionName = cliCtx.String(flags.SessionNameFlag.Name)
	}
	if cfg.SessionName == "" {
		cfg.SessionName = flags.SessionNameFlag.Value
	}
	if cliCtx.IsSet(flags.MaxParticipantsFlag.Name) {
		cfg.MaxParticipants = cliCtx.Int(flags.MaxParticipantsFlag.Name)
	}
	if cliCtx.IsSet(flags.AllowAudienceInputFlag.Name) {
		cfg.AllowAudienceInput = cliCtx.Bool(flags.AllowAudienceInputFlag.Name)
	}
	if cliCtx.IsSet(flags.AllowPerformerOverrideFlag.Name) {
		cfg.AllowPerformerOverride = cliCtx.Bool(flags.AllowPerformerOverrideFlag.Name)
	}
	if cliCtx.IsSet(flags.InputRateLimitFlag.Name) {
		cfg.InputRateLimitMs = cliCtx.Int64(flags.InputRateLimitFlag.Name)
	}
	if cliCtx.IsSet(flags.MaxInputsPerClientFlag.Name) {
		cfg.MaxInputsPerClient = cliCtx.Int64(flags.MaxInputsPerClientFlag.Name)
	}
	if cliCtx.IsSet(flags.ConsensusIntervalFlag.Name) {
		cfg.ConsensusIntervalMs = cliCtx.Int64(flags.ConsensusIntervalFlag.Name)
	}
	if cliCtx.IsSet(flags.BatchIntervalFlag.Name) {
		cfg.BatchIntervalMs = cliCtx.Int64(flags.BatchIntervalFlag.Name)
	}
	if cliCtx.IsSet(flags.TemporalWindowFlag.Name) {
		cfg.Weighting.TemporalWindowMs = cliCtx.Int64(flags.TemporalWindowFlag.Name)
	}
	if cliCtx.IsSet(flags.TemporalDecayFlag.Name) {
		cfg.Weighting.TemporalDecayRate = cliCtx.Float64(flags.TemporalDecayFlag.Name)
	}
	if cliCtx.IsSet(flags.SpatialAlphaFlag.Name) {
		cfg.Weighting.SpatialAlpha = cliCtx.Float64(flags.SpatialAlphaFlag.Name)
	}
	if cliCtx.IsSet(flags.SpatialDecayFlag.Name) {
		cfg.Weighting.SpatialDecayRate = cliCtx.Float64(flags.SpatialDecayFlag.Name)
	}
	if cliCtx.IsSet(flags.TemporalBetaFlag.Name) {
		cfg.Weighting.TemporalBeta = cliCtx.Float64(flags.TemporalBetaFlag.Name)
	}
	if cliCtx.IsSet(flags.ConsensusGammaFlag.Name) {
		cfg.Weighting.ConsensusGamma = cliCtx.Float64(flags.ConsensusGammaFlag.Name)
	}
	if cliCtx.IsSet(flags.ClusterThresholdFlag.Name) {
		cfg.Weighting.ClusterThreshold = cliCtx.Float64(flags.ClusterThresholdFlag.Name)
	}
	if cliCtx.IsSet(flags.SmoothingFactorFlag.Name) {
		cfg.Weighting.SmoothingFactor = cliCtx.Float64(flags.SmoothingFactorFlag.Name)
	}
	if cliCtx.IsSet(flags.OutlierThresholdFlag.Name) {
		cfg.Weighting.OutlierThreshold = cliCtx.Float64(flags.OutlierThresholdFlag.Name)
	}
	if cliCtx.IsSet(flags.OSCEnabledFlag.Name) {
		cfg.OSCEnabled = cliCtx.Bool(flags.OSCEnabledFlag.Name)
	}
	if cliCtx.IsSet(flags.OSCHostFlag.Name) {
		cfg.OSCHost = cliCtx.String(flags.OSCHostFlag.Name)
	}
	if cliCtx.IsSet(flags.OSCPortFlag.Name) {
		cfg.OSCPort = cliCtx.Int(flags.OSCPortFlag.Name)
	}
	if cliCtx.IsSet(flags.AuthTimeoutFlag.Name) {
		cfg.AuthTimeoutMs = cliCtx.Int64(flags.AuthTimeoutFlag.Name)
	}
	if cliCtx.IsSet(flags.PerformerSecretFlag.Name) {
		cfg.PerformerSecret = cliCtx.String(flags.PerformerSecretFlag.Name)
	}
}
