package transport

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tutti-live/tutti/engine/feed"
	"github.com/tutti-live/tutti/engine/session"
	"github.com/tutti-live/tutti/engine/types"
	"github.com/tutti-live/tutti/time/mono"
)

// handlePerformer serves one performer connection. The state machine is
// connect -> awaiting auth -> authenticated; the first message must be a
// valid auth within the auth timeout or the connection is closed.
func (s *Service) handlePerformer(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("Performer upgrade failed")
		return
	}
	c := newConn(uuid.New().String(), ws, s.cfg.Engine.SendQueueSize, s.idleWait())
	s.watchDrops(c)
	go c.writePump()
	defer c.close()

	perf := s.authenticate(c)
	if perf == nil {
		return
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(c.idleWait))
	c.send(msgAuthSuccess, &authSuccessData{PerformerID: perf.ID}, false)
	log.WithField("performerId", perf.ID).Info("Performer authenticated")

	s.cfg.Bus.Publish(&feed.Event{
		Kind: feed.ParticipantJoin,
		Data: &feed.ParticipantData{ClientID: perf.ID, Performer: true},
	})
	s.performers.register(c)
	defer func() {
		s.performers.unregister(c)
		// Disconnect clears only this performer's overrides.
		s.cfg.Overrides.ClearOwnedBy(perf.ID)
		s.cfg.Bus.Publish(&feed.Event{
			Kind: feed.ParticipantLeave,
			Data: &feed.ParticipantData{ClientID: perf.ID, Performer: true},
		})
	}()

	for {
		msg, err := c.readMessage()
		if err == errMalformedMessage {
			c.send(msgError, &errorData{Code: "malformed_message", Message: "message is not valid JSON"}, false)
			continue
		}
		if err != nil {
			return
		}
		s.dispatchPerformer(c, perf, msg)
	}
}

// authenticate runs the awaiting-auth state. It returns nil after sending
// auth:failed and closing, or the authenticated identity.
func (s *Service) authenticate(c *conn) *types.PerformerIdentity {
	_ = c.ws.SetReadDeadline(time.Now().Add(time.Duration(s.cfg.Engine.AuthTimeoutMs) * time.Millisecond))
	msg, err := c.readMessage()
	if err != nil {
		log.Debug("Performer connection closed before auth")
		return nil
	}
	fail := func(reason string) *types.PerformerIdentity {
		c.send(msgAuthFailed, &authFailedData{Reason: reason}, false)
		// Give the writer pump a moment to flush the failure frame.
		time.Sleep(50 * time.Millisecond)
		return nil
	}
	if msg.Type != msgAuth {
		return fail("auth required")
	}
	data := &authData{}
	if err := json.Unmarshal(msg.Data, data); err != nil {
		return fail("invalid auth payload")
	}
	if !s.cfg.Engine.AllowPerformerOverride {
		return fail("performer channel disabled")
	}
	if subtle.ConstantTimeCompare([]byte(data.Secret), []byte(s.cfg.Engine.PerformerSecret)) != 1 {
		log.Warn("Performer auth failed")
		return fail("invalid secret")
	}
	id := data.PerformerID
	if id == "" {
		id = uuid.New().String()
	}
	return &types.PerformerIdentity{
		ID:            id,
		DisplayName:   data.DisplayName,
		Authenticated: true,
		Permissions:   types.AllPermissions(),
	}
}

func (s *Service) dispatchPerformer(c *conn, perf *types.PerformerIdentity, msg *Message) {
	switch msg.Type {
	case msgOverride:
		s.handleOverride(c, perf, msg)
	case msgOverrideClear:
		data := &overrideClearData{}
		if err := json.Unmarshal(msg.Data, data); err != nil {
			c.send(msgError, &errorData{Code: "malformed_message", Message: "invalid override:clear payload"}, false)
			return
		}
		if !s.cfg.Overrides.Clear(perf.ID, data.Parameter) {
			c.send(msgError, &errorData{Code: "override_not_found", Message: "no active override owned by this performer"}, false)
		}
	case msgSessionStart, msgSessionPause, msgSessionResume, msgSessionEnd:
		s.handleSessionCommand(c, perf, msg.Type)
	default:
		log.WithFields(logrus.Fields{
			"performerId": perf.ID,
			"type":        msg.Type,
		}).Debug("Unknown performer event")
		c.send(msgError, &errorData{Code: "unknown_event", Message: "event not allowed on the performer channel: " + msg.Type}, false)
	}
}

func (s *Service) handleOverride(c *conn, perf *types.PerformerIdentity, msg *Message) {
	data := &overrideData{}
	if err := json.Unmarshal(msg.Data, data); err != nil {
		c.send(msgError, &errorData{Code: "malformed_message", Message: "invalid override payload"}, false)
		return
	}
	ov := &types.PerformerOverride{
		PerformerID: perf.ID,
		Parameter:   data.Parameter,
		Value:       data.Value,
		Mode:        types.OverrideMode(data.Mode),
		Reason:      data.Reason,
	}
	if data.BlendFactor != nil {
		ov.BlendFactor = *data.BlendFactor
	} else if ov.Mode == types.OverrideBlend {
		ov.BlendFactor = types.DefaultBlendFactor
	}
	if data.DurationMs > 0 {
		ov.ExpiresAt = mono.Now() + data.DurationMs
	}
	stored, failure := s.cfg.Overrides.Request(perf, ov)
	if failure != "" {
		c.send(msgError, &errorData{Code: string(failure), Message: "override rejected"}, false)
		return
	}
	c.send(msgOverrideSuccess, &overrideSuccessData{Override: stored}, false)
}

func (s *Service) handleSessionCommand(c *conn, perf *types.PerformerIdentity, command string) {
	var err error
	switch command {
	case msgSessionStart:
		err = s.cfg.Session.Activate()
	case msgSessionPause:
		if !perf.Permissions.CanPause {
			c.send(msgError, &errorData{Code: "no_permission", Message: "pause requires canPause"}, false)
			return
		}
		err = s.cfg.Session.Pause()
	case msgSessionResume:
		if !perf.Permissions.CanPause {
			c.send(msgError, &errorData{Code: "no_permission", Message: "resume requires canPause"}, false)
			return
		}
		err = s.cfg.Session.Resume()
	case msgSessionEnd:
		if !perf.Permissions.CanEnd {
			c.send(msgError, &errorData{Code: "no_permission", Message: "end requires canEnd"}, false)
			return
		}
		err = s.cfg.Session.End()
	}
	if err != nil {
		code := "command_failed"
		if errors.Is(err, session.ErrInvalidTransition) {
			code = "invalid_transition"
		}
		c.send(msgError, &errorData{Code: code, Message: err.Error()}, false)
		return
	}
	s.cfg.Bus.Publish(&feed.Event{
		Kind: feed.PerformerCommand,
		Data: &feed.CommandData{PerformerID: perf.ID, Command: command},
	})
}
