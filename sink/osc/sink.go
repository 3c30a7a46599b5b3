// Package osc forwards per-tick parameter values to an external sound
// engine as OSC messages. The sink runs off a bus subscription so a slow or
// absent receiver can never stall the tick loop; send failures put the sink
// into a degraded mode that retries with a capped backoff.
package osc

import (
	"context"
	"fmt"
	"sort"

	goosc "github.com/hypebeast/go-osc/osc"
	"github.com/sirupsen/logrus"
	"github.com/tutti-live/tutti/config/params"
	"github.com/tutti-live/tutti/engine/bus"
	"github.com/tutti-live/tutti/engine/feed"
	"github.com/tutti-live/tutti/time/mono"
)

var log = logrus.WithField("prefix", "osc")

// addressPrefix is the OSC address namespace for parameter messages.
const addressPrefix = "/performance/"

const (
	initialRetryMs = 500
	maxRetryMs     = 10000
)

// client abstracts the UDP OSC client for tests.
type client interface {
	Send(packet goosc.Packet) error
}

// Config holds the sink dependencies.
type Config struct {
	Host string
	Port int
	Bus  *bus.Bus
	// Definitions supply per-parameter sink addresses. Parameters without
	// one use the default namespace.
	Definitions []*params.ParameterDefinition
}

// Sink subscribes to consensus snapshots and emits one float32 message per
// parameter per tick.
type Sink struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       *Config
	client    client
	addresses map[string]string
	degraded  bool
	retryAt   int64
	retryMs   int64
	lastError error
}

// New constructs the sink with a UDP client for the configured receiver.
func New(ctx context.Context, cfg *Config) *Sink {
	ctx, cancel := context.WithCancel(ctx)
	addresses := make(map[string]string, len(cfg.Definitions))
	for _, def := range cfg.Definitions {
		if def.SinkAddress != "" {
			addresses[def.Name] = def.SinkAddress
		}
	}
	return &Sink{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		client:    goosc.NewClient(cfg.Host, cfg.Port),
		addresses: addresses,
		retryMs:   initialRetryMs,
	}
}

// Start launches the snapshot forwarder.
func (s *Sink) Start() {
	sub := s.cfg.Bus.Subscribe(feed.ConsensusSnapshot, 8)
	go s.run(sub)
	log.WithFields(logrus.Fields{
		"host": s.cfg.Host,
		"port": s.cfg.Port,
	}).Info("OSC sink started")
}

// Stop halts forwarding.
func (s *Sink) Stop() error {
	s.cancel()
	return nil
}

// Status reports the degraded-mode error, if any.
func (s *Sink) Status() error {
	if s.degraded {
		return s.lastError
	}
	return nil
}

func (s *Sink) run(sub *bus.Subscription) {
	defer sub.Unsubscribe()
	for {
		select {
		case ev := <-sub.C():
			s.forward(ev.Data.(*feed.SnapshotData))
		case <-s.ctx.Done():
			return
		}
	}
}

// forward sends every parameter of the snapshot in name order so receivers
// observe a stable message sequence within a tick.
func (s *Sink) forward(data *feed.SnapshotData) {
	now := mono.Now()
	if s.degraded && now < s.retryAt {
		return
	}
	names := make([]string, 0, len(data.Snapshot.Results))
	for name := range data.Snapshot.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		addr, ok := s.addresses[name]
		if !ok {
			addr = addressPrefix + name
		}
		msg := goosc.NewMessage(addr)
		msg.Append(float32(data.Snapshot.Results[name].Value))
		if err := s.client.Send(msg); err != nil {
			s.enterDegraded(now, err)
			return
		}
	}
	if s.degraded {
		log.Info("OSC receiver reachable again")
		s.degraded = false
		s.retryMs = initialRetryMs
	}
}

func (s *Sink) enterDegraded(now int64, err error) {
	if !s.degraded {
		log.WithError(err).Warn("OSC send failed, entering degraded mode")
	}
	s.degraded = true
	s.lastError = fmt.Errorf("osc send to %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	s.retryAt = now + s.retryMs
	s.retryMs *= 2
	if s.retryMs > maxRetryMs {
		s.retryMs = maxRetryMs
	}
}
