// Package loop drives the fixed-cadence consensus tick. Each tick applies
// queued config commands, snapshots the aggregator, and publishes one
// update per parameter plus the combined snapshot. A tick that overruns the
// interval causes the next tick to be skipped so the loop degrades to a
// lower effective rate instead of queueing work.
package loop

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tutti-live/tutti/config/params"
	"github.com/tutti-live/tutti/engine/aggregator"
	"github.com/tutti-live/tutti/engine/bus"
	"github.com/tutti-live/tutti/engine/feed"
	"github.com/tutti-live/tutti/telemetry"
	"github.com/tutti-live/tutti/time/mono"
	"github.com/tutti-live/tutti/time/ticks"
)

var log = logrus.WithField("prefix", "loop")

// Config holds the tick loop dependencies.
type Config struct {
	Engine     *params.EngineConfig
	Aggregator *aggregator.Aggregator
	Bus        *bus.Bus
	Telemetry  *telemetry.Service
}

// Service runs the consensus tick loop. All aggregator computation happens
// on the loop goroutine.
type Service struct {
	ctx          context.Context
	cancel       context.CancelFunc
	cfg          *Config
	ticker       ticks.Ticker
	tick         uint64
	paused       int32
	participants func() int
}

// New constructs the tick loop service.
func New(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{ctx: ctx, cancel: cancel, cfg: cfg}
}

// Start launches the loop at the configured consensus interval.
func (s *Service) Start() {
	s.ticker = ticks.NewTickTicker(time.Now(), s.cfg.Engine.ConsensusIntervalMs)
	go s.run()
	log.WithField("intervalMs", s.cfg.Engine.ConsensusIntervalMs).Info("Consensus loop started")
}

// Stop halts the loop.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status always returns nil; overruns degrade the rate but are not fatal.
func (s *Service) Status() error {
	return nil
}

// SetPaused suspends or resumes tick computation. While paused the loop
// publishes nothing and parameter values stay frozen for subscribers.
func (s *Service) SetPaused(paused bool) {
	if paused {
		atomic.StoreInt32(&s.paused, 1)
	} else {
		atomic.StoreInt32(&s.paused, 0)
	}
}

// SetParticipantSource wires the tracked-client count into snapshots.
// Must be called before Start.
func (s *Service) SetParticipantSource(fn func() int) {
	s.participants = fn
}

// Tick returns the number of completed ticks.
func (s *Service) Tick() uint64 {
	return atomic.LoadUint64(&s.tick)
}

func (s *Service) run() {
	defer s.ticker.Done()
	interval := time.Duration(s.cfg.Engine.ConsensusIntervalMs) * time.Millisecond
	var skipNext bool
	for {
		select {
		case <-s.ticker.C():
			if skipNext {
				skipNext = false
				if s.cfg.Telemetry != nil {
					s.cfg.Telemetry.RecordSkippedTick()
				}
				continue
			}
			if atomic.LoadInt32(&s.paused) == 1 {
				continue
			}
			if s.runOnce() > interval {
				skipNext = true
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// runOnce executes one tick and returns its duration.
func (s *Service) runOnce() time.Duration {
	start := time.Now()
	s.cfg.Aggregator.ApplyQueued()
	snap := s.cfg.Aggregator.Snapshot(mono.Now())
	if s.participants != nil {
		snap.TotalParticipants = s.participants()
	}
	for _, result := range snap.Results {
		s.cfg.Bus.Publish(&feed.Event{
			Kind: feed.ConsensusUpdate,
			Data: &feed.ConsensusUpdateData{Result: result},
		})
	}
	tick := atomic.AddUint64(&s.tick, 1)
	s.cfg.Bus.Publish(&feed.Event{
		Kind: feed.ConsensusSnapshot,
		Data: &feed.SnapshotData{Snapshot: snap, Tick: tick},
	})

	elapsed := time.Since(start)
	if s.cfg.Telemetry != nil {
		s.cfg.Telemetry.RecordTick(float64(elapsed) / float64(time.Millisecond))
	}
	if elapsed > time.Duration(s.cfg.Engine.ConsensusIntervalMs)*time.Millisecond {
		log.WithField("durationMs", elapsed.Milliseconds()).Warn("Tick overran the consensus interval")
		s.cfg.Bus.Publish(&feed.Event{
			Kind: feed.Warning,
			Data: &feed.WarningData{Tag: "tick_overrun", Message: "consensus tick overran its interval"},
		})
	}
	return elapsed
}
