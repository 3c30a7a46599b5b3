// Package controlplane provides the read-only HTTP diagnostics handlers
// mounted on the prometheus service: GET /health, /session, and /values.
// There are no write endpoints; the websocket dialects are the only way to
// mutate the engine.
package controlplane

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/tutti-live/tutti/config/params"
	"github.com/tutti-live/tutti/engine/aggregator"
	"github.com/tutti-live/tutti/engine/override"
	"github.com/tutti-live/tutti/engine/session"
	"github.com/tutti-live/tutti/engine/types"
	"github.com/tutti-live/tutti/monitoring/prometheus"
	"github.com/tutti-live/tutti/transport"
)

var log = logrus.WithField("prefix", "controlplane")

// Config holds the engine views the handlers read from.
type Config struct {
	Engine     *params.EngineConfig
	Session    *session.Service
	Aggregator *aggregator.Aggregator
	Overrides  *override.Registry
	Transport  *transport.Service
}

type healthResponse struct {
	SessionID            string              `json:"sessionId"`
	Status               types.SessionStatus `json:"status"`
	UptimeMs             int64               `json:"uptimeMs"`
	AudienceConnections  int                 `json:"audienceConnections"`
	PerformerConnections int                 `json:"performerConnections"`
	ActiveParticipants   int                 `json:"activeParticipants"`
}

type sessionResponse struct {
	SessionID  string                              `json:"sessionId"`
	Name       string                              `json:"name"`
	Status     types.SessionStatus                 `json:"status"`
	Config     *params.EngineConfig                `json:"config"`
	Parameters []*params.ParameterDefinition       `json:"parameters"`
	Values     map[string]float64                  `json:"values"`
	Overrides  map[string]*types.PerformerOverride `json:"overrides,omitempty"`
}

// Handlers returns the control-plane routes for the diagnostics server.
func Handlers(cfg *Config) []prometheus.Handler {
	return []prometheus.Handler{
		{Path: "/health", Handler: healthHandler(cfg)},
		{Path: "/session", Handler: sessionHandler(cfg)},
		{Path: "/values", Handler: valuesHandler(cfg)},
	}
}

func healthHandler(cfg *Config) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, &healthResponse{
			SessionID:            cfg.Session.ID(),
			Status:               cfg.Session.CurrentStatus(),
			UptimeMs:             cfg.Session.UptimeMs(),
			AudienceConnections:  cfg.Transport.AudienceConnections(),
			PerformerConnections: cfg.Transport.PerformerConnections(),
			ActiveParticipants:   cfg.Aggregator.ActiveClients(),
		})
	}
}

func sessionHandler(cfg *Config) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		// The secret never leaves the process.
		conf := cfg.Engine.Copy()
		conf.PerformerSecret = ""
		writeJSON(w, &sessionResponse{
			SessionID:  cfg.Session.ID(),
			Name:       cfg.Session.Name(),
			Status:     cfg.Session.CurrentStatus(),
			Config:     conf,
			Parameters: cfg.Session.Definitions(),
			Values:     cfg.Aggregator.Values(),
			Overrides:  cfg.Overrides.ActiveAll(),
		})
	}
}

func valuesHandler(cfg *Config) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, cfg.Aggregator.Values())
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := jsoniter.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Could not write response")
	}
}
