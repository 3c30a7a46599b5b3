// Package feed defines the closed set of event kinds flowing through the
// parameter bus during the runtime of a session, together with the payload
// type sent with each kind.
package feed

import (
	"github.com/tutti-live/tutti/engine/types"
)

// EventKind identifies one of the closed set of bus event kinds.
type EventKind int

const (
	// AudienceInput is sent for every accepted audience input.
	AudienceInput EventKind = iota + 1
	// AudienceInputBatch is sent when the ingress batcher flushes.
	AudienceInputBatch
	// ConsensusUpdate is sent per parameter per tick.
	ConsensusUpdate
	// ConsensusSnapshot is sent once per tick with every parameter's result.
	ConsensusSnapshot
	// PerformerOverride is sent when an override is accepted.
	PerformerOverride
	// PerformerOverrideClear is sent when an override is cleared, replaced,
	// or expired.
	PerformerOverrideClear
	// PerformerCommand is sent for accepted performer session commands.
	PerformerCommand
	// SessionStart is sent when the session transitions to active.
	SessionStart
	// SessionPause is sent when the session is paused.
	SessionPause
	// SessionResume is sent when a paused session resumes.
	SessionResume
	// SessionEnd is sent when the session ends.
	SessionEnd
	// ParticipantJoin is sent when an audience or performer client connects.
	ParticipantJoin
	// ParticipantLeave is sent on disconnect or idle eviction.
	ParticipantLeave
	// ParticipantUpdate is sent when a client updates its location.
	ParticipantUpdate
	// Error is sent for internal errors surfaced on the bus.
	Error
	// Warning is sent for recoverable conditions such as tick overruns.
	Warning
	// Stats is sent every second with bus and loop telemetry.
	Stats
)

// NumKinds is the size of the closed kind set, exported for subscriber
// accounting.
const NumKinds = int(Stats) + 1

// Event is a tagged union of an event kind and its payload.
type Event struct {
	Kind EventKind
	Data interface{}
}

// String returns the wire name of the kind.
func (k EventKind) String() string {
	switch k {
	case AudienceInput:
		return "audience_input"
	case AudienceInputBatch:
		return "audience_input_batch"
	case ConsensusUpdate:
		return "consensus_update"
	case ConsensusSnapshot:
		return "consensus_snapshot"
	case PerformerOverride:
		return "performer_override"
	case PerformerOverrideClear:
		return "performer_override_clear"
	case PerformerCommand:
		return "performer_command"
	case SessionStart:
		return "session_start"
	case SessionPause:
		return "session_pause"
	case SessionResume:
		return "session_resume"
	case SessionEnd:
		return "session_end"
	case ParticipantJoin:
		return "participant_join"
	case ParticipantLeave:
		return "participant_leave"
	case ParticipantUpdate:
		return "participant_update"
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Stats:
		return "stats"
	default:
		return "unknown"
	}
}

// BatchData is the data sent with AudienceInputBatch events.
type BatchData struct {
	// Inputs accepted since the previous flush, in acceptance order.
	Inputs []*types.AudienceInput
}

// ConsensusUpdateData is the data sent with ConsensusUpdate events.
type ConsensusUpdateData struct {
	Result *types.ConsensusResult
}

// SnapshotData is the data sent with ConsensusSnapshot events.
type SnapshotData struct {
	Snapshot *types.Snapshot
	// Tick is the loop tick number that produced the snapshot.
	Tick uint64
}

// OverrideData is the data sent with PerformerOverride events.
type OverrideData struct {
	Override *types.PerformerOverride
}

// OverrideClearData is the data sent with PerformerOverrideClear events.
type OverrideClearData struct {
	PerformerID string
	Parameter   string
	// ReplacedBy is set when the clear was caused by another performer's
	// override winning the last-writer race.
	ReplacedBy string
	// Expired is true when the clear was caused by expiry.
	Expired bool
}

// CommandData is the data sent with PerformerCommand events.
type CommandData struct {
	PerformerID string
	Command     string
}

// SessionData is the data sent with session lifecycle events.
type SessionData struct {
	SessionID string
	Status    types.SessionStatus
}

// ParticipantData is the data sent with participant events.
type ParticipantData struct {
	ClientID  string
	Performer bool
	Location  *types.Location
}

// ErrorData is the data sent with Error events.
type ErrorData struct {
	Code    string
	Message string
}

// WarningData is the data sent with Warning events.
type WarningData struct {
	Tag     string
	Message string
}

// StatsData is the data sent with Stats events, produced at 1 Hz.
type StatsData struct {
	InputsPerSecond    int64
	UpdatesPerSecond   int64
	Subscribers        map[string]int
	LastTickMs         float64
	SkippedTicks       uint64
	ActiveParticipants int
}
