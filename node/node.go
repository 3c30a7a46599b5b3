// Package node is the main service which launches the performance engine
// and manages the lifecycle of all its associated services at runtime,
// such as ingress, the consensus loop, and the transports, gracefully
// closing them if the process ends.
package node

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/tutti-live/tutti/cmd/engine/flags"
	"github.com/tutti-live/tutti/config/params"
	"github.com/tutti-live/tutti/engine/aggregator"
	"github.com/tutti-live/tutti/engine/bus"
	"github.com/tutti-live/tutti/engine/ingress"
	"github.com/tutti-live/tutti/engine/loop"
	"github.com/tutti-live/tutti/engine/override"
	"github.com/tutti-live/tutti/engine/session"
	"github.com/tutti-live/tutti/monitoring/controlplane"
	"github.com/tutti-live/tutti/monitoring/prometheus"
	"github.com/tutti-live/tutti/runtime"
	"github.com/tutti-live/tutti/runtime/version"
	"github.com/tutti-live/tutti/sink/osc"
	"github.com/tutti-live/tutti/store/kv"
	"github.com/tutti-live/tutti/telemetry"
	"github.com/tutti-live/tutti/transport"
	"github.com/urfave/cli/v2"
)

var log = logrus.WithField("prefix", "node")

// EngineNode handles the lifecycle of the entire system and registers
// services to a service registry.
type EngineNode struct {
	cliCtx   *cli.Context
	ctx      context.Context
	cancel   context.CancelFunc
	services *runtime.ServiceRegistry
	lock     sync.RWMutex
	stop     chan struct{} // Channel to wait for termination notifications.

	cfg       *params.EngineConfig
	bus       *bus.Bus
	store     kv.Store
	overrides *override.Registry
	agg       *aggregator.Aggregator
	session   *session.Service
	loop      *loop.Service
	ingress   *ingress.Service
	telemetry *telemetry.Service
}

// New creates a new node instance, sets up configuration options, and
// registers every required service to the node.
func New(cliCtx *cli.Context) (*EngineNode, error) {
	cfg, defs, venue, err := configure(cliCtx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(cliCtx.Context)
	node := &EngineNode{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		services: runtime.NewServiceRegistry(),
		stop:     make(chan struct{}),
		cfg:      cfg,
		bus:      bus.New(),
		store:    kv.NewMemStore(),
	}

	node.overrides = override.New(defs, node.bus, cfg.AllowPerformerOverride)
	node.agg = aggregator.New(&aggregator.Config{
		Definitions: defs,
		Weighting:   cfg.Weighting,
		Venue:       venue,
		Overrides:   node.overrides,
		Bus:         node.bus,
		MaxHistory:  cfg.MaxHistoryLength,
	})

	if err := node.registerTelemetry(); err != nil {
		return nil, err
	}
	if err := node.registerLoop(); err != nil {
		return nil, err
	}
	if err := node.registerSession(defs, venue); err != nil {
		return nil, err
	}
	if err := node.registerIngress(venue); err != nil {
		return nil, err
	}
	if err := node.registerTransport(); err != nil {
		return nil, err
	}
	if cfg.OSCEnabled {
		if err := node.registerOSCSink(defs); err != nil {
			return nil, err
		}
	}
	if err := node.registerMonitoring(); err != nil {
		return nil, err
	}
	return node, nil
}

// Start every registered service and block until a shutdown signal.
func (n *EngineNode) Start() {
	n.lock.Lock()

	log.WithFields(logrus.Fields{
		"version": version.GetVersion(),
		"session": n.cfg.SessionName,
	}).Info("Starting performance engine")

	n.services.StartAll()

	stop := n.stop
	n.lock.Unlock()

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the performance engine")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (n *EngineNode) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	log.Info("Stopping performance engine")
	n.services.StopAll()
	n.cancel()
	close(n.stop)
}

func (n *EngineNode) registerTelemetry() error {
	n.telemetry = telemetry.New(n.ctx, n.bus)
	return n.services.RegisterService(n.telemetry)
}

func (n *EngineNode) registerLoop() error {
	n.loop = loop.New(n.ctx, &loop.Config{
		Engine:     n.cfg,
		Aggregator: n.agg,
		Bus:        n.bus,
		Telemetry:  n.telemetry,
	})
	return n.services.RegisterService(n.loop)
}

func (n *EngineNode) registerSession(defs []*params.ParameterDefinition, venue *params.VenueGeometry) error {
	n.session = session.New(n.ctx, &session.Config{
		Name:        n.cfg.SessionName,
		Genre:       n.cliCtx.String(flags.GenreFlag.Name),
		Definitions: defs,
		Venue:       venue,
		Bus:         n.bus,
		Store:       n.store,
		Loop:        n.loop,
	})
	n.agg.SetSessionID(n.session.ID())
	return n.services.RegisterService(n.session)
}

func (n *EngineNode) registerIngress(venue *params.VenueGeometry) error {
	n.ingress = ingress.New(n.ctx, &ingress.Config{
		SessionID:  n.session.ID(),
		Engine:     n.cfg,
		Venue:      venue,
		Aggregator: n.agg,
		Bus:        n.bus,
		Store:      n.store,
	})
	n.loop.SetParticipantSource(n.ingress.TrackedClients)
	return n.services.RegisterService(n.ingress)
}

func (n *EngineNode) registerTransport() error {
	svc := transport.New(n.ctx, &transport.Config{
		Addr:          n.cliCtx.String(flags.WSAddrFlag.Name),
		AllowedOrigin: n.cliCtx.String(flags.AllowedOriginFlag.Name),
		Engine:        n.cfg,
		Session:       n.session,
		Ingress:       n.ingress,
		Overrides:     n.overrides,
		Aggregator:    n.agg,
		Bus:           n.bus,
		Telemetry:     n.telemetry,
	})
	return n.services.RegisterService(svc)
}

func (n *EngineNode) registerOSCSink(defs []*params.ParameterDefinition) error {
	sink := osc.New(n.ctx, &osc.Config{
		Host:        n.cfg.OSCHost,
		Port:        n.cfg.OSCPort,
		Bus:         n.bus,
		Definitions: defs,
	})
	return n.services.RegisterService(sink)
}

func (n *EngineNode) registerMonitoring() error {
	var transportSvc *transport.Service
	if err := n.services.FetchService(&transportSvc); err != nil {
		return err
	}
	handlers := controlplane.Handlers(&controlplane.Config{
		Engine:     n.cfg,
		Session:    n.session,
		Aggregator: n.agg,
		Overrides:  n.overrides,
		Transport:  transportSvc,
	})
	svc := prometheus.NewService(
		n.cliCtx.String(flags.MonitoringAddrFlag.Name),
		n.services,
		handlers...,
	)
	return n.services.RegisterService(svc)
}
