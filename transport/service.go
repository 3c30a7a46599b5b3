// Package transport exposes the two websocket surfaces of the engine: the
// anonymous audience channel and the secret-authenticated performer
// channel. One HTTP listener serves both paths; each connection gets a
// reader goroutine and a writer pump, and one broadcaster per channel fans
// bus events out to the registered connections.
package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"github.com/tutti-live/tutti/config/params"
	"github.com/tutti-live/tutti/engine/aggregator"
	"github.com/tutti-live/tutti/engine/bus"
	"github.com/tutti-live/tutti/engine/feed"
	"github.com/tutti-live/tutti/engine/ingress"
	"github.com/tutti-live/tutti/engine/override"
	"github.com/tutti-live/tutti/engine/session"
	"github.com/tutti-live/tutti/telemetry"
)

var log = logrus.WithField("prefix", "transport")

// errMalformedMessage marks an inbound frame that is not a valid envelope.
var errMalformedMessage = errors.New("malformed message")

// Config holds the transport dependencies.
type Config struct {
	Addr          string
	AllowedOrigin string
	Engine        *params.EngineConfig
	Session       *session.Service
	Ingress       *ingress.Service
	Overrides     *override.Registry
	Aggregator    *aggregator.Aggregator
	Bus           *bus.Bus
	Telemetry     *telemetry.Service
}

// Service is the websocket transport.
type Service struct {
	ctx        context.Context
	cancel     context.CancelFunc
	cfg        *Config
	upgrader   websocket.Upgrader
	server     *http.Server
	audience   *broadcaster
	performers *broadcaster
	startErr   error
}

// New constructs the transport service and its two broadcasters.
func New(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	s := &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				// Origin policy is enforced by the cors layer.
				return true
			},
		},
		audience:   newBroadcaster(cfg.Bus, false),
		performers: newBroadcaster(cfg.Bus, true),
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws/audience", s.handleAudience)
	router.HandleFunc("/ws/performer", s.handlePerformer)

	allowed := []string{"*"}
	if cfg.AllowedOrigin != "" {
		allowed = []string{cfg.AllowedOrigin}
	}
	handler := cors.New(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(router)

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start launches the broadcasters and the HTTP listener.
func (s *Service) Start() {
	go s.audience.run(s.ctx)
	go s.performers.run(s.ctx)
	go func() {
		log.WithField("addr", s.cfg.Addr).Info("Websocket transport listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Transport listener failed")
			s.startErr = err
		}
	}()
}

// Stop shuts the listener down and cancels the broadcasters.
func (s *Service) Stop() error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status surfaces a failed listener.
func (s *Service) Status() error {
	return s.startErr
}

// AudienceConnections returns the number of connected audience clients.
func (s *Service) AudienceConnections() int {
	return s.audience.count()
}

// PerformerConnections returns the number of connected performers.
func (s *Service) PerformerConnections() int {
	return s.performers.count()
}

func (s *Service) idleWait() time.Duration {
	return time.Duration(s.cfg.Engine.ConnIdleTimeoutMs) * time.Millisecond
}

// watchDrops publishes a slow-subscriber warning the first time a
// connection's queue overflows and every hundredth eviction after that.
func (s *Service) watchDrops(c *conn) {
	c.onDrop = func(count uint64) {
		if count != 1 && count%100 != 0 {
			return
		}
		log.WithFields(logrus.Fields{
			"connId":  c.id,
			"dropped": count,
		}).Warn("Slow subscriber, dropping queued frames")
		s.cfg.Bus.Publish(&feed.Event{
			Kind: feed.Warning,
			Data: &feed.WarningData{Tag: "slow_subscriber", Message: "connection " + c.id + " dropped queued frames"},
		})
	}
}
