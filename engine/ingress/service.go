// Package ingress validates, rate-limits, and admits audience inputs. Every
// accepted input is stamped with a server-assigned monotonic timestamp,
// handed to the aggregator, published individually, and buffered for the
// periodic batch flush. Rejections never disturb the consensus state.
package ingress

import (
	"context"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/kevinms/leakybucket-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tutti-live/tutti/async"
	"github.com/tutti-live/tutti/config/params"
	"github.com/tutti-live/tutti/engine/aggregator"
	"github.com/tutti-live/tutti/engine/bus"
	"github.com/tutti-live/tutti/engine/feed"
	"github.com/tutti-live/tutti/engine/types"
	"github.com/tutti-live/tutti/engine/weighting"
	"github.com/tutti-live/tutti/store/kv"
	"github.com/tutti-live/tutti/time/mono"
)

var log = logrus.WithField("prefix", "ingress")

// errLocationOutOfBounds is returned when a location update falls outside
// the venue rectangle.
var errLocationOutOfBounds = errors.New("location is outside the venue")

// counterRolloverInterval is how often rolling per-client input counters are
// reset and persisted.
const counterRolloverInterval = time.Minute

// rolloverTTL bounds how long persisted rollover counts are retained.
const rolloverTTL = 10 * time.Minute

// Config holds the ingress service dependencies.
type Config struct {
	SessionID  string
	Engine     *params.EngineConfig
	Venue      *params.VenueGeometry
	Aggregator *aggregator.Aggregator
	Bus        *bus.Bus
	Store      kv.Store
}

// Service admits audience inputs. Submit and SetLocation are safe for
// concurrent use by transport readers.
type Service struct {
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     *Config
	defs    map[string]*params.ParameterDefinition
	limiter *leakybucket.Collector
	clients *clientTable
	batch   *batcher
}

// New constructs the ingress service. The leaky bucket drains at one token
// per rate-limit interval with capacity one, so a client gets at most one
// accepted input per interval.
func New(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	defs := make(map[string]*params.ParameterDefinition)
	for _, def := range cfg.Aggregator.Definitions() {
		defs[def.Name] = def
	}
	rate := 1000 / float64(cfg.Engine.InputRateLimitMs)
	return &Service{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		defs:    defs,
		limiter: leakybucket.NewCollector(rate, 1, true /* deleteEmptyBuckets */),
		clients: newClientTable(),
		batch:   newBatcher(cfg.Bus),
	}
}

// Start launches the batch flusher, the idle-client sweeper, and the
// counter rollover loop.
func (s *Service) Start() {
	async.RunEvery(s.ctx, time.Duration(s.cfg.Engine.BatchIntervalMs)*time.Millisecond, s.batch.flush)
	async.RunEvery(s.ctx, time.Duration(s.cfg.Engine.ClientIdleEvictionMs)*time.Millisecond/4, s.evictIdle)
	async.RunEvery(s.ctx, counterRolloverInterval, s.rolloverCounters)
	log.WithField("rateLimitMs", s.cfg.Engine.InputRateLimitMs).Info("Audience ingress started")
}

// Stop flushes the pending batch and halts the background loops.
func (s *Service) Stop() error {
	s.cancel()
	s.batch.flush()
	return nil
}

// Status always returns nil; ingress has no fatal runtime condition.
func (s *Service) Status() error {
	return nil
}

// Submit validates and admits one audience input. The returned reason is
// empty on acceptance. Rate-limited inputs do not count toward the flood
// threshold.
func (s *Service) Submit(clientID, parameter string, value float64) (*types.AudienceInput, types.RejectionReason) {
	if !s.cfg.Engine.AllowAudienceInput {
		return nil, types.RejectClientBlocked
	}
	def, ok := s.defs[parameter]
	if !ok || !def.AudienceControllable {
		return nil, types.RejectInvalidParameter
	}
	if !weighting.Finite(value) || value < 0 || value > 1 {
		return nil, types.RejectInvalidValue
	}

	now := mono.Now()
	var reason types.RejectionReason
	var floodTripped bool
	var loc *types.Location
	s.clients.withState(clientID, func(state *ClientState) {
		if state.AdminBlocked {
			reason = types.RejectClientBlocked
			return
		}
		if state.Blocked {
			if state.BlockedUntil > now {
				reason = types.RejectFloodBlocked
				return
			}
			state.Blocked = false
			state.BlockedUntil = 0
		}
		if s.limiter.Add(clientID, 1) != 1 {
			reason = types.RejectRateLimited
			return
		}
		state.InputCount++
		if state.InputCount > s.cfg.Engine.MaxInputsPerClient {
			state.Blocked = true
			state.BlockedUntil = now + s.cfg.Engine.FloodBlockMs
			floodTripped = true
			reason = types.RejectFloodBlocked
			return
		}
		state.LastInputTime = now
		loc = state.LastLocation
	})
	if floodTripped {
		log.WithField("clientId", clientID).Warn("Client exceeded flood threshold, blocking")
		s.cfg.Bus.Publish(&feed.Event{
			Kind: feed.Warning,
			Data: &feed.WarningData{Tag: "flood_block", Message: "client " + clientID + " blocked for flooding"},
		})
	}
	if reason != "" {
		return nil, reason
	}

	input := &types.AudienceInput{
		ID:        uuid.New().String(),
		ClientID:  clientID,
		SessionID: s.cfg.SessionID,
		Timestamp: now,
		Parameter: parameter,
		Value:     value,
		Location:  loc,
	}
	if err := s.cfg.Aggregator.Add(input); err != nil {
		return nil, types.RejectInvalidParameter
	}
	s.cfg.Bus.Publish(&feed.Event{Kind: feed.AudienceInput, Data: input})
	s.batch.add(input)
	return input, ""
}

// SetLocation records a client's venue position for spatial weighting.
// Out-of-bounds or non-finite coordinates are rejected and the previous
// location kept.
func (s *Service) SetLocation(clientID string, loc types.Location) error {
	if !weighting.Finite(loc.X) || !weighting.Finite(loc.Y) || !s.cfg.Venue.InBounds(loc.X, loc.Y) {
		return errLocationOutOfBounds
	}
	stored := loc
	s.clients.withState(clientID, func(state *ClientState) {
		state.LastLocation = &stored
		state.LastInputTime = mono.Now()
	})
	s.cfg.Bus.Publish(&feed.Event{
		Kind: feed.ParticipantUpdate,
		Data: &feed.ParticipantData{ClientID: clientID, Location: &stored},
	})
	return nil
}

// BlockClient administratively blocks a client until unblocked.
func (s *Service) BlockClient(clientID string) {
	s.clients.withState(clientID, func(state *ClientState) {
		state.AdminBlocked = true
	})
	log.WithField("clientId", clientID).Info("Client blocked")
}

// UnblockClient lifts an administrative block.
func (s *Service) UnblockClient(clientID string) {
	s.clients.withState(clientID, func(state *ClientState) {
		state.AdminBlocked = false
	})
}

// ClientConnected publishes the participant join event.
func (s *Service) ClientConnected(clientID string, performer bool) {
	s.cfg.Bus.Publish(&feed.Event{
		Kind: feed.ParticipantJoin,
		Data: &feed.ParticipantData{ClientID: clientID, Performer: performer},
	})
}

// ClientDisconnected publishes the participant leave event. Rate-limit
// state survives disconnect until idle eviction so reconnecting does not
// reset a client's budget.
func (s *Service) ClientDisconnected(clientID string, performer bool) {
	s.cfg.Bus.Publish(&feed.Event{
		Kind: feed.ParticipantLeave,
		Data: &feed.ParticipantData{ClientID: clientID, Performer: performer},
	})
}

// TrackedClients returns the number of clients with live rate-limit state.
func (s *Service) TrackedClients() int {
	return s.clients.size()
}

// evictIdle drops clients past the idle timeout and publishes a leave event
// for each.
func (s *Service) evictIdle() {
	cutoff := mono.Now() - s.cfg.Engine.ClientIdleEvictionMs
	for _, id := range s.clients.evictIdle(cutoff) {
		s.cfg.Bus.Publish(&feed.Event{
			Kind: feed.ParticipantLeave,
			Data: &feed.ParticipantData{ClientID: id},
		})
	}
}

// rolloverCounters resets the rolling per-client counters and persists the
// pre-reset counts. Persistence is best-effort.
func (s *Service) rolloverCounters() {
	counts := s.clients.resetCounters()
	if len(counts) == 0 || s.cfg.Store == nil {
		return
	}
	data, err := jsoniter.Marshal(counts)
	if err != nil {
		log.WithError(err).Error("Could not encode rollover counts")
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	if err := s.cfg.Store.Set(ctx, "ratelimit:rollover:"+s.cfg.SessionID, data, rolloverTTL); err != nil {
		log.WithError(err).Warn("Could not persist rollover counts")
	}
}
