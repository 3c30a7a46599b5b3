// Package session holds the single process-wide performance session: its
// identity, lifecycle status, parameter definitions, and venue geometry.
// Lifecycle transitions publish session events on the bus and persist
// metadata best-effort to the session store.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tutti-live/tutti/config/params"
	"github.com/tutti-live/tutti/engine/bus"
	"github.com/tutti-live/tutti/engine/feed"
	"github.com/tutti-live/tutti/engine/loop"
	"github.com/tutti-live/tutti/engine/types"
	"github.com/tutti-live/tutti/store/kv"
)

var log = logrus.WithField("prefix", "session")

// ErrInvalidTransition is returned for a lifecycle command the current
// status does not permit.
var ErrInvalidTransition = errors.New("invalid session transition")

// Config holds the session dependencies.
type Config struct {
	// ID overrides the generated session id; used by tests.
	ID          string
	Name        string
	Genre       string
	Definitions []*params.ParameterDefinition
	Venue       *params.VenueGeometry
	Bus         *bus.Bus
	Store       kv.Store
	Loop        *loop.Service
}

// Metadata is the persisted session record.
type Metadata struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Genre     string              `json:"genre,omitempty"`
	Status    types.SessionStatus `json:"status"`
	CreatedAt int64               `json:"createdAt"`
	StartedAt int64               `json:"startedAt,omitempty"`
	EndedAt   int64               `json:"endedAt,omitempty"`
}

// Service is the session lifecycle state machine:
// pending -> active <-> paused, any -> ended.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config

	mu        sync.Mutex
	id        string
	status    types.SessionStatus
	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
}

// New constructs a pending session.
func New(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	id := cfg.ID
	if id == "" {
		id = uuid.New().String()
	}
	return &Service{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		id:        id,
		status:    types.SessionPending,
		createdAt: time.Now(),
	}
}

// Start persists the pending session record.
func (s *Service) Start() {
	s.persist()
	log.WithFields(logrus.Fields{
		"sessionId": s.id,
		"name":      s.cfg.Name,
	}).Info("Session created")
}

// Stop ends the session if it is still running.
func (s *Service) Stop() error {
	if err := s.End(); err != nil && !errors.Is(err, ErrInvalidTransition) {
		return err
	}
	s.cancel()
	return nil
}

// Status returns an error once the session has ended.
func (s *Service) Status() error {
	if s.CurrentStatus() == types.SessionEnded {
		return errors.New("session has ended")
	}
	return nil
}

// ID returns the session id.
func (s *Service) ID() string {
	return s.id
}

// Name returns the session name.
func (s *Service) Name() string {
	return s.cfg.Name
}

// Definitions returns the session's parameter definitions.
func (s *Service) Definitions() []*params.ParameterDefinition {
	return s.cfg.Definitions
}

// Venue returns the session's venue geometry.
func (s *Service) Venue() *params.VenueGeometry {
	return s.cfg.Venue
}

// CurrentStatus returns the lifecycle status.
func (s *Service) CurrentStatus() types.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// UptimeMs returns milliseconds since activation, zero before it.
func (s *Service) UptimeMs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	end := time.Now()
	if !s.endedAt.IsZero() {
		end = s.endedAt
	}
	return end.Sub(s.startedAt).Milliseconds()
}

// Activate transitions pending -> active.
func (s *Service) Activate() error {
	return s.transition(types.SessionActive, feed.SessionStart, types.SessionPending)
}

// Pause transitions active -> paused and suspends the tick loop.
func (s *Service) Pause() error {
	if err := s.transition(types.SessionPaused, feed.SessionPause, types.SessionActive); err != nil {
		return err
	}
	if s.cfg.Loop != nil {
		s.cfg.Loop.SetPaused(true)
	}
	return nil
}

// Resume transitions paused -> active and resumes the tick loop.
func (s *Service) Resume() error {
	if err := s.transition(types.SessionActive, feed.SessionResume, types.SessionPaused); err != nil {
		return err
	}
	if s.cfg.Loop != nil {
		s.cfg.Loop.SetPaused(false)
	}
	return nil
}

// End transitions any non-ended status to ended. Ending is terminal.
func (s *Service) End() error {
	return s.transition(types.SessionEnded, feed.SessionEnd,
		types.SessionPending, types.SessionActive, types.SessionPaused)
}

func (s *Service) transition(to types.SessionStatus, kind feed.EventKind, from ...types.SessionStatus) error {
	s.mu.Lock()
	allowed := false
	for _, f := range from {
		if s.status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		current := s.status
		s.mu.Unlock()
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", current, to)
	}
	s.status = to
	now := time.Now()
	switch to {
	case types.SessionActive:
		if s.startedAt.IsZero() {
			s.startedAt = now
		}
	case types.SessionEnded:
		s.endedAt = now
	}
	s.mu.Unlock()

	log.WithFields(logrus.Fields{
		"sessionId": s.id,
		"status":    to,
	}).Info("Session transition")
	s.cfg.Bus.Publish(&feed.Event{
		Kind: kind,
		Data: &feed.SessionData{SessionID: s.id, Status: to},
	})
	s.persist()
	return nil
}

// persist writes the session record to the store. Failures are logged and
// otherwise ignored; the engine never depends on the store to run.
func (s *Service) persist() {
	if s.cfg.Store == nil {
		return
	}
	s.mu.Lock()
	meta := &Metadata{
		ID:        s.id,
		Name:      s.cfg.Name,
		Genre:     s.cfg.Genre,
		Status:    s.status,
		CreatedAt: s.createdAt.UnixMilli(),
	}
	if !s.startedAt.IsZero() {
		meta.StartedAt = s.startedAt.UnixMilli()
	}
	if !s.endedAt.IsZero() {
		meta.EndedAt = s.endedAt.UnixMilli()
	}
	s.mu.Unlock()

	data, err := jsoniter.Marshal(meta)
	if err != nil {
		log.WithError(err).Error("Could not encode session metadata")
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	if err := s.cfg.Store.Set(ctx, "session:"+s.id, data, 0); err != nil {
		log.WithError(err).Warn("Could not persist session metadata")
	}
}
