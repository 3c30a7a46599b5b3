// Package telemetry observes the parameter bus and the tick loop, feeds the
// prometheus metrics, and publishes a stats event at 1 Hz for dashboard
// subscribers.
package telemetry

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/paulbellamy/ratecounter"
	"github.com/sirupsen/logrus"
	"github.com/tutti-live/tutti/async"
	"github.com/tutti-live/tutti/engine/bus"
	"github.com/tutti-live/tutti/engine/feed"
	"github.com/tutti-live/tutti/engine/types"
)

var log = logrus.WithField("prefix", "telemetry")

// Service aggregates runtime counters. RecordTick and RecordSkippedTick are
// called by the tick loop; everything else is fed from bus subscriptions.
type Service struct {
	ctx          context.Context
	cancel       context.CancelFunc
	bus          *bus.Bus
	inputRate    *ratecounter.RateCounter
	updateRate   *ratecounter.RateCounter
	lastTickBits uint64
	skipped      uint64
	participants int64
}

// New constructs the telemetry service with one-second rate windows.
func New(ctx context.Context, b *bus.Bus) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:        ctx,
		cancel:     cancel,
		bus:        b,
		inputRate:  ratecounter.NewRateCounter(time.Second),
		updateRate: ratecounter.NewRateCounter(time.Second),
	}
}

// Start subscribes to the bus and launches the 1 Hz stats publisher.
func (s *Service) Start() {
	inputs := s.bus.Subscribe(feed.AudienceInput, 256)
	updates := s.bus.Subscribe(feed.ConsensusUpdate, 256)
	snapshots := s.bus.Subscribe(feed.ConsensusSnapshot, 16)
	overrides := s.bus.Subscribe(feed.PerformerOverride, 16)
	go s.collect(inputs, updates, snapshots, overrides)
	async.RunEvery(s.ctx, time.Second, s.publishStats)
	log.Info("Telemetry started")
}

// Stop halts collection.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status always returns nil.
func (s *Service) Status() error {
	return nil
}

func (s *Service) collect(inputs, updates, snapshots, overrides *bus.Subscription) {
	defer inputs.Unsubscribe()
	defer updates.Unsubscribe()
	defer snapshots.Unsubscribe()
	defer overrides.Unsubscribe()
	for {
		select {
		case <-inputs.C():
			s.inputRate.Incr(1)
			audienceInputsTotal.Inc()
		case <-updates.C():
			s.updateRate.Incr(1)
			consensusUpdatesTotal.Inc()
		case ev := <-snapshots.C():
			data := ev.Data.(*feed.SnapshotData)
			atomic.StoreInt64(&s.participants, int64(data.Snapshot.ActiveParticipants))
			activeParticipants.Set(float64(data.Snapshot.ActiveParticipants))
			for name, result := range data.Snapshot.Results {
				parameterValue.WithLabelValues(name).Set(result.Value)
			}
		case <-overrides.C():
			overridesTotal.Inc()
		case <-s.ctx.Done():
			return
		}
	}
}

// RecordRejection counts one rejected input by reason.
func (s *Service) RecordRejection(reason types.RejectionReason) {
	inputRejectionsTotal.WithLabelValues(string(reason)).Inc()
}

// RecordTick records the duration of one completed tick in milliseconds.
func (s *Service) RecordTick(durationMs float64) {
	tickDuration.Observe(durationMs)
	atomic.StoreUint64(&s.lastTickBits, math.Float64bits(durationMs))
}

// RecordSkippedTick counts one tick skipped after an overrun.
func (s *Service) RecordSkippedTick() {
	atomic.AddUint64(&s.skipped, 1)
	skippedTicksTotal.Inc()
}

// LastTickMs returns the duration of the most recent tick.
func (s *Service) LastTickMs() float64 {
	return math.Float64frombits(atomic.LoadUint64(&s.lastTickBits))
}

// SkippedTicks returns the total number of skipped ticks.
func (s *Service) SkippedTicks() uint64 {
	return atomic.LoadUint64(&s.skipped)
}

func (s *Service) publishStats() {
	busDroppedTotal.Set(float64(s.bus.Dropped()))
	s.bus.Publish(&feed.Event{
		Kind: feed.Stats,
		Data: &feed.StatsData{
			InputsPerSecond:    s.inputRate.Rate(),
			UpdatesPerSecond:   s.updateRate.Rate(),
			Subscribers:        s.bus.SubscriberCounts(),
			LastTickMs:         s.LastTickMs(),
			SkippedTicks:       s.SkippedTicks(),
			ActiveParticipants: int(atomic.LoadInt64(&s.participants)),
		},
	})
}
