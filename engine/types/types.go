// Package types declares the data model shared across the parameter
// pipeline: audience inputs, consensus results, snapshots, performer
// overrides, and the closed rejection-reason sets of the wire dialect.
package types

import (
	"github.com/tutti-live/tutti/engine/weighting"
)

// Location is an audience member's position within the venue, with an
// optional named zone.
type Location struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zone string  `json:"zone,omitempty"`
}

// AudienceInput is one accepted parameter input. The timestamp is the
// server-assigned monotonic acceptance time in milliseconds; client-supplied
// timestamps are never used for aggregation.
type AudienceInput struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"clientId"`
	SessionID string    `json:"sessionId"`
	Timestamp int64     `json:"timestamp"`
	Parameter string    `json:"parameter"`
	Value     float64   `json:"value"`
	Location  *Location `json:"location,omitempty"`
}

// ConsensusMode describes how the reported value of a tick was produced.
type ConsensusMode string

const (
	// ModeConsensus marks a value produced purely from audience inputs.
	ModeConsensus ConsensusMode = "consensus"
	// ModeOverride marks a value displaced by a performer override.
	ModeOverride ConsensusMode = "override"
	// ModeDefault marks a value reported with no inputs and no history.
	ModeDefault ConsensusMode = "default"
)

// ConsensusResult is the per-parameter output of one tick.
type ConsensusResult struct {
	Parameter         string                     `json:"parameter"`
	Value             float64                    `json:"value"`
	Confidence        float64                    `json:"confidence"`
	InputCount        int                        `json:"inputCount"`
	Timestamp         int64                      `json:"timestamp"`
	Mode              ConsensusMode              `json:"mode"`
	RawMean           float64                    `json:"rawMean"`
	WeightedMean      float64                    `json:"weightedMean"`
	StandardDeviation float64                    `json:"standardDeviation"`
	ParticipationRate float64                    `json:"participationRate"`
	Clusters          *weighting.ClusterAnalysis `json:"clusters,omitempty"`
}

// Snapshot is the per-tick aggregation of every parameter plus participant
// metadata. It is transient and produced for the performer channel.
type Snapshot struct {
	SessionID          string                      `json:"sessionId"`
	Timestamp          int64                       `json:"timestamp"`
	Results            map[string]*ConsensusResult `json:"results"`
	TotalParticipants  int                         `json:"totalParticipants"`
	ActiveParticipants int                         `json:"activeParticipants"`
}

// Values reduces the snapshot to the values map broadcast on the audience
// channel.
func (s *Snapshot) Values() map[string]float64 {
	values := make(map[string]float64, len(s.Results))
	for name, r := range s.Results {
		values[name] = r.Value
	}
	return values
}

// OverrideMode is one of the three performer override modes.
type OverrideMode string

const (
	// OverrideAbsolute replaces the consensus value outright.
	OverrideAbsolute OverrideMode = "absolute"
	// OverrideBlend mixes the override value with the consensus value.
	OverrideBlend OverrideMode = "blend"
	// OverrideLock pins the reported value while the aggregator keeps its
	// rolling window.
	OverrideLock OverrideMode = "lock"
)

// ValidOverrideMode reports membership in the closed mode set.
func ValidOverrideMode(m OverrideMode) bool {
	switch m {
	case OverrideAbsolute, OverrideBlend, OverrideLock:
		return true
	}
	return false
}

// DefaultBlendFactor applies when a blend override omits its factor.
const DefaultBlendFactor = 0.5

// PerformerOverride is a performer-applied displacement of a parameter's
// consensus output. At most one override is active per parameter.
type PerformerOverride struct {
	PerformerID string       `json:"performerId"`
	Parameter   string       `json:"parameter"`
	Value       float64      `json:"value"`
	Mode        OverrideMode `json:"mode"`
	BlendFactor float64      `json:"blendFactor,omitempty"`
	ExpiresAt   int64        `json:"expiresAt,omitempty"` // Monotonic ms; zero means no expiry.
	Reason      string       `json:"reason,omitempty"`
}

// Expired reports whether the override has an expiry at or before now.
func (o *PerformerOverride) Expired(nowMs int64) bool {
	return o.ExpiresAt != 0 && o.ExpiresAt <= nowMs
}

// PerformerPermissions is the permission set attached to an authenticated
// performer session.
type PerformerPermissions struct {
	CanOverride       bool     `json:"canOverride"`
	CanPause          bool     `json:"canPause"`
	CanEnd            bool     `json:"canEnd"`
	CanModifyConfig   bool     `json:"canModifyConfig"`
	AllowedParameters []string `json:"allowedParameters,omitempty"` // Empty means all.
}

// ParameterAllowed reports whether the permission set covers a parameter.
func (p *PerformerPermissions) ParameterAllowed(name string) bool {
	if len(p.AllowedParameters) == 0 {
		return true
	}
	for _, allowed := range p.AllowedParameters {
		if allowed == name {
			return true
		}
	}
	return false
}

// AllPermissions grants every capability on every parameter.
func AllPermissions() PerformerPermissions {
	return PerformerPermissions{
		CanOverride:     true,
		CanPause:        true,
		CanEnd:          true,
		CanModifyConfig: true,
	}
}

// PerformerIdentity is the authenticated identity the override registry
// authorizes against.
type PerformerIdentity struct {
	ID            string               `json:"id"`
	DisplayName   string               `json:"displayName,omitempty"`
	Authenticated bool                 `json:"authenticated"`
	Permissions   PerformerPermissions `json:"permissions"`
}

// RejectionReason is one of the closed set of audience input failures.
type RejectionReason string

const (
	// RejectInvalidParameter marks an unknown or non-audience parameter.
	RejectInvalidParameter RejectionReason = "invalid_parameter"
	// RejectInvalidValue marks a non-finite or out-of-range value.
	RejectInvalidValue RejectionReason = "invalid_value"
	// RejectRateLimited marks an input arriving before the rate limit allows.
	RejectRateLimited RejectionReason = "rate_limited"
	// RejectClientBlocked marks an input from an administratively blocked client.
	RejectClientBlocked RejectionReason = "client_blocked"
	// RejectFloodBlocked marks an input from a flood-blocked client.
	RejectFloodBlocked RejectionReason = "flood_blocked"
)

// OverrideFailure is one of the closed set of override request failures.
type OverrideFailure string

const (
	// FailPerformerNotFound marks an unknown performer id.
	FailPerformerNotFound OverrideFailure = "performer_not_found"
	// FailNotAuthenticated marks a request before successful auth.
	FailNotAuthenticated OverrideFailure = "not_authenticated"
	// FailNoOverridePermission marks a performer without canOverride.
	FailNoOverridePermission OverrideFailure = "no_override_permission"
	// FailParameterNotAllowed marks a parameter outside the performer's set.
	FailParameterNotAllowed OverrideFailure = "parameter_not_allowed"
	// FailInvalidValue marks a non-finite or out-of-range override value.
	FailInvalidValue OverrideFailure = "invalid_value"
	// FailInvalidMode marks a mode outside the closed set.
	FailInvalidMode OverrideFailure = "invalid_mode"
	// FailParameterNotPerformerControllable marks a parameter closed to overrides.
	FailParameterNotPerformerControllable OverrideFailure = "parameter_not_performer_controllable"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	// SessionPending is the state before the first session:start.
	SessionPending SessionStatus = "pending"
	// SessionActive is the running state.
	SessionActive SessionStatus = "active"
	// SessionPaused is the state after session:pause.
	SessionPaused SessionStatus = "paused"
	// SessionEnded is the terminal state.
	SessionEnded SessionStatus = "ended"
)
