package transport

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tutti-live/tutti/engine/types"
)

// handleAudience serves one anonymous audience connection. The state
// machine is connect -> session:state sent -> active; only input and
// location events are accepted.
func (s *Service) handleAudience(w http.ResponseWriter, r *http.Request) {
	if max := s.cfg.Engine.MaxParticipants; max > 0 && s.audience.count() >= max {
		http.Error(w, "session is full", http.StatusServiceUnavailable)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("Audience upgrade failed")
		return
	}
	clientID := uuid.New().String()
	c := newConn(clientID, ws, s.cfg.Engine.SendQueueSize, s.idleWait())
	s.watchDrops(c)
	go c.writePump()
	defer c.close()

	s.cfg.Ingress.ClientConnected(clientID, false)
	defer s.cfg.Ingress.ClientDisconnected(clientID, false)

	c.send(msgSessionState, &sessionStateData{
		SessionID:  s.cfg.Session.ID(),
		Status:     s.cfg.Session.CurrentStatus(),
		Parameters: s.cfg.Session.Definitions(),
		Values:     s.cfg.Aggregator.Values(),
	}, false)

	s.audience.register(c)
	defer s.audience.unregister(c)

	for {
		msg, err := c.readMessage()
		if err == errMalformedMessage {
			c.send(msgError, &errorData{Code: "malformed_message", Message: "message is not valid JSON"}, false)
			continue
		}
		if err != nil {
			return
		}
		s.dispatchAudience(c, clientID, msg)
	}
}

func (s *Service) dispatchAudience(c *conn, clientID string, msg *Message) {
	switch msg.Type {
	case msgInput:
		data := &inputData{}
		if err := json.Unmarshal(msg.Data, data); err != nil {
			c.send(msgError, &errorData{Code: "malformed_message", Message: "invalid input payload"}, false)
			return
		}
		if _, reason := s.cfg.Ingress.Submit(clientID, data.Parameter, data.Value); reason != "" {
			if s.cfg.Telemetry != nil {
				s.cfg.Telemetry.RecordRejection(reason)
			}
			c.send(msgInputRejected, &rejectedData{Reason: reason}, false)
		}
	case msgLocation:
		loc := &types.Location{}
		if err := json.Unmarshal(msg.Data, loc); err != nil {
			c.send(msgError, &errorData{Code: "malformed_message", Message: "invalid location payload"}, false)
			return
		}
		if err := s.cfg.Ingress.SetLocation(clientID, *loc); err != nil {
			c.send(msgError, &errorData{Code: "invalid_location", Message: err.Error()}, false)
		}
	default:
		// Performer commands over the audience channel fail without
		// disconnecting.
		log.WithFields(logrus.Fields{
			"clientId": clientID,
			"type":     msg.Type,
		}).Debug("Unknown audience event")
		c.send(msgError, &errorData{Code: "unknown_event", Message: "event not allowed on the audience channel: " + msg.Type}, false)
	}
}
