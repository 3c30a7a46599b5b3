package transport

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/tutti-live/tutti/config/params"
	"github.com/tutti-live/tutti/engine/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message is the wire envelope of both websocket dialects.
type Message struct {
	Type string              `json:"type"`
	Data jsoniter.RawMessage `json:"data,omitempty"`
}

// Inbound message types.
const (
	msgInput         = "input"
	msgLocation      = "location"
	msgAuth          = "auth"
	msgOverride      = "override"
	msgOverrideClear = "override:clear"
	msgSessionStart  = "session:start"
	msgSessionPause  = "session:pause"
	msgSessionResume = "session:resume"
	msgSessionEnd    = "session:end"
)

// Outbound message types.
const (
	msgSessionState    = "session:state"
	msgValues          = "values"
	msgSnapshot        = "snapshot"
	msgInputRejected   = "input:rejected"
	msgError           = "error"
	msgAuthSuccess     = "auth:success"
	msgAuthFailed      = "auth:failed"
	msgOverrideSuccess = "override:success"
	msgOverrideCleared = "override:cleared"
)

type inputData struct {
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`
}

type authData struct {
	Secret      string `json:"secret"`
	PerformerID string `json:"performerId"`
	DisplayName string `json:"displayName,omitempty"`
}

type overrideData struct {
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`
	Mode      string  `json:"mode"`
	// A pointer keeps an explicit zero distinguishable from an omitted
	// factor, which defaults.
	BlendFactor *float64 `json:"blendFactor,omitempty"`
	DurationMs  int64    `json:"durationMs,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

type overrideClearData struct {
	Parameter string `json:"parameter"`
}

type sessionStateData struct {
	SessionID  string                        `json:"sessionId"`
	Status     types.SessionStatus           `json:"status"`
	Parameters []*params.ParameterDefinition `json:"parameters"`
	Values     map[string]float64            `json:"values"`
}

type rejectedData struct {
	Reason types.RejectionReason `json:"reason"`
}

type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type authSuccessData struct {
	PerformerID string `json:"performerId"`
}

type authFailedData struct {
	Reason string `json:"reason"`
}

type overrideSuccessData struct {
	Override *types.PerformerOverride `json:"override"`
}

type overrideClearedData struct {
	Parameter   string `json:"parameter"`
	PerformerID string `json:"performerId"`
	ReplacedBy  string `json:"replacedBy,omitempty"`
	Expired     bool   `json:"expired,omitempty"`
}

type lifecycleData struct {
	SessionID string              `json:"sessionId"`
	Status    types.SessionStatus `json:"status"`
}

// encode builds the wire bytes of an outbound message. Encoding failures
// are programming errors surfaced as a nil frame the conn discards.
func encode(msgType string, data interface{}) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		log.WithError(err).WithField("type", msgType).Error("Could not encode message")
		return nil
	}
	payload, err := json.Marshal(&Message{Type: msgType, Data: raw})
	if err != nil {
		log.WithError(err).WithField("type", msgType).Error("Could not encode envelope")
		return nil
	}
	return payload
}
