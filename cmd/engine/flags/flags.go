// Package flags defines the command-line options of the performance engine.
package flags

import (
	"github.com/urfave/cli/v2"
)

var (
	// SessionNameFlag names the session.
	SessionNameFlag = &cli.StringFlag{
		Name:  "session-name",
		Usage: "Human-readable name of the performance session",
		Value: "untitled performance",
	}
	// GenreFlag selects a weighting preset.
	GenreFlag = &cli.StringFlag{
		Name:  "genre",
		Usage: "Genre preset for the weighting coefficients (electronic_music, ballet, opera, installation, theatre)",
	}
	// ConfigFileFlag loads a YAML session file.
	ConfigFileFlag = &cli.StringFlag{
		Name:  "config-file",
		Usage: "Path to a YAML session configuration file",
	}
	// WSAddrFlag is the websocket listener address.
	WSAddrFlag = &cli.StringFlag{
		Name:  "ws-addr",
		Usage: "host:port for the audience and performer websocket listener",
		Value: "0.0.0.0:8080",
	}
	// AllowedOriginFlag restricts cross-origin websocket upgrades.
	AllowedOriginFlag = &cli.StringFlag{
		Name:  "allowed-origin",
		Usage: "Allowed CORS origin for browser clients, empty allows any",
	}
	// MonitoringAddrFlag is the diagnostics listener address.
	MonitoringAddrFlag = &cli.StringFlag{
		Name:  "monitoring-addr",
		Usage: "host:port for prometheus metrics and the control plane",
		Value: "127.0.0.1:9090",
	}
	// MaxParticipantsFlag bounds concurrent audience clients.
	MaxParticipantsFlag = &cli.IntFlag{
		Name:  "max-participants",
		Usage: "Maximum concurrent audience participants",
		Value: 1000,
	}
	// AllowAudienceInputFlag gates the audience channel.
	AllowAudienceInputFlag = &cli.BoolFlag{
		Name:  "allow-audience-input",
		Usage: "Accept audience inputs",
		Value: true,
	}
	// AllowPerformerOverrideFlag gates the performer channel.
	AllowPerformerOverrideFlag = &cli.BoolFlag{
		Name:  "allow-performer-override",
		Usage: "Accept performer overrides",
		Value: true,
	}
	// InputRateLimitFlag is the per-client input interval.
	InputRateLimitFlag = &cli.Int64Flag{
		Name:  "input-rate-limit-ms",
		Usage: "Minimum milliseconds between accepted inputs per client",
		Value: 100,
	}
	// MaxInputsPerClientFlag is the rolling flood threshold.
	MaxInputsPerClientFlag = &cli.Int64Flag{
		Name:  "max-inputs-per-client",
		Usage: "Rolling input count per client before a flood block",
		Value: 600,
	}
	// ConsensusIntervalFlag is the tick cadence.
	ConsensusIntervalFlag = &cli.Int64Flag{
		Name:  "consensus-interval-ms",
		Usage: "Milliseconds between consensus ticks",
		Value: 50,
	}
	// BatchIntervalFlag is the ingress batch flush cadence.
	BatchIntervalFlag = &cli.Int64Flag{
		Name:  "batch-interval-ms",
		Usage: "Milliseconds between ingress batch flushes",
		Value: 50,
	}
	// TemporalWindowFlag is the sliding input window.
	TemporalWindowFlag = &cli.Int64Flag{
		Name:  "temporal-window-ms",
		Usage: "Sliding window length for inputs in milliseconds",
		Value: 5000,
	}
	// TemporalDecayFlag is the input age decay rate.
	TemporalDecayFlag = &cli.Float64Flag{
		Name:  "temporal-decay-rate",
		Usage: "Exponential decay of influence with input age",
		Value: 0.5,
	}
	// SpatialAlphaFlag is the spatial weighting coefficient.
	SpatialAlphaFlag = &cli.Float64Flag{
		Name:  "spatial-alpha",
		Usage: "Coefficient of the spatial weight component",
		Value: 0.3,
	}
	// SpatialDecayFlag is the distance decay rate.
	SpatialDecayFlag = &cli.Float64Flag{
		Name:  "spatial-decay-rate",
		Usage: "Exponential decay of influence with distance to stage",
		Value: 0.5,
	}
	// TemporalBetaFlag is the temporal weighting coefficient.
	TemporalBetaFlag = &cli.Float64Flag{
		Name:  "temporal-beta",
		Usage: "Coefficient of the temporal weight component",
		Value: 0.5,
	}
	// ConsensusGammaFlag is the agreement weighting coefficient.
	ConsensusGammaFlag = &cli.Float64Flag{
		Name:  "consensus-gamma",
		Usage: "Coefficient of the consensus weight component",
		Value: 0.2,
	}
	// ClusterThresholdFlag is the cluster bin width.
	ClusterThresholdFlag = &cli.Float64Flag{
		Name:  "cluster-threshold",
		Usage: "Bin width for cluster analysis",
		Value: 0.1,
	}
	// SmoothingFactorFlag is the exponential smoothing factor.
	SmoothingFactorFlag = &cli.Float64Flag{
		Name:  "smoothing-factor",
		Usage: "Exponential smoothing factor for consensus values",
		Value: 0.3,
	}
	// OutlierThresholdFlag is the z-score rejection bound.
	OutlierThresholdFlag = &cli.Float64Flag{
		Name:  "outlier-threshold",
		Usage: "Z-score beyond which inputs are rejected as outliers",
		Value: 2.5,
	}
	// OSCEnabledFlag gates the synthesis sink.
	OSCEnabledFlag = &cli.BoolFlag{
		Name:  "osc-enabled",
		Usage: "Forward parameter values to the OSC sink",
		Value: true,
	}
	// OSCHostFlag is the sink host.
	OSCHostFlag = &cli.StringFlag{
		Name:  "osc-host",
		Usage: "Host of the OSC synthesis sink",
		Value: "127.0.0.1",
	}
	// OSCPortFlag is the sink port.
	OSCPortFlag = &cli.IntFlag{
		Name:  "osc-port",
		Usage: "Port of the OSC synthesis sink",
		Value: 57120,
	}
	// AuthTimeoutFlag bounds the performer auth handshake.
	AuthTimeoutFlag = &cli.Int64Flag{
		Name:  "auth-timeout-ms",
		Usage: "Milliseconds a performer connection may remain unauthenticated",
		Value: 5000,
	}
	// PerformerSecretFlag authenticates performers.
	PerformerSecretFlag = &cli.StringFlag{
		Name:    "performer-secret",
		Usage:   "Shared secret for the performer channel, required when overrides are enabled",
		EnvVars: []string{"TUTTI_PERFORMER_SECRET"},
	}
	// VerbosityFlag sets the log level.
	VerbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (trace, debug, info, warn, error, fatal, panic)",
		Value: "info",
	}
	// LogFormatFlag selects the log output format.
	LogFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Log format (text, fluentd, json)",
		Value: "text",
	}
)

// Flags is the complete option set of the engine command.
var Flags = []cli.Flag{
	SessionNameFlag,
	GenreFlag,
	ConfigFileFlag,
	WSAddrFlag,
	AllowedOriginFlag,
	MonitoringAddrFlag,
	MaxParticipantsFlag,
	AllowAudienceInputFlag,
	AllowPerformerOverrideFlag,
	InputRateLimitFlag,
	MaxInputsPerClientFlag,
	ConsensusIntervalFlag,
	BatchIntervalFlag,
	TemporalWindowFlag,
	TemporalDecayFlag,
	SpatialAlphaFlag,
	SpatialDecayFlag,
	TemporalBetaFlag,
	ConsensusGammaFlag,
	ClusterThresholdFlag,
	SmoothingFactorFlag,
	OutlierThresholdFlag,
	OSCEnabledFlag,
	OSCHostFlag,
	OSCPortFlag,
	AuthTimeoutFlag,
	PerformerSecretFlag,
	VerbosityFlag,
	LogFormatFlag,
}
