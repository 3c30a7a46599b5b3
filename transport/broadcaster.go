package transport

import (
	"context"
	"sync"

	"github.com/tutti-live/tutti/engine/bus"
	"github.com/tutti-live/tutti/engine/feed"
)

// broadcaster fans bus events out to the registered connections of one
// channel. One broadcaster goroutine serves all connections; per-connection
// backpressure is handled by the bounded send queues.
type broadcaster struct {
	mu        sync.Mutex
	conns     map[*conn]struct{}
	bus       *bus.Bus
	snapshots bool // Forward full snapshots in addition to values.
}

func newBroadcaster(b *bus.Bus, snapshots bool) *broadcaster {
	return &broadcaster{
		conns:     make(map[*conn]struct{}),
		bus:       b,
		snapshots: snapshots,
	}
}

func (br *broadcaster) register(c *conn) {
	br.mu.Lock()
	br.conns[c] = struct{}{}
	br.mu.Unlock()
}

func (br *broadcaster) unregister(c *conn) {
	br.mu.Lock()
	delete(br.conns, c)
	br.mu.Unlock()
}

func (br *broadcaster) count() int {
	br.mu.Lock()
	defer br.mu.Unlock()
	return len(br.conns)
}

// each snapshots the connection set and applies fn outside the lock.
func (br *broadcaster) each(fn func(c *conn)) {
	br.mu.Lock()
	conns := make([]*conn, 0, len(br.conns))
	for c := range br.conns {
		conns = append(conns, c)
	}
	br.mu.Unlock()
	for _, c := range conns {
		fn(c)
	}
}

// run forwards snapshots and lifecycle events until the context closes.
func (br *broadcaster) run(ctx context.Context) {
	snapshots := br.bus.Subscribe(feed.ConsensusSnapshot, 16)
	defer snapshots.Unsubscribe()
	cleared := br.bus.Subscribe(feed.PerformerOverrideClear, 16)
	defer cleared.Unsubscribe()
	lifecycle := make([]*bus.Subscription, 0, 4)
	for _, kind := range []feed.EventKind{feed.SessionStart, feed.SessionPause, feed.SessionResume, feed.SessionEnd} {
		sub := br.bus.Subscribe(kind, 8)
		defer sub.Unsubscribe()
		lifecycle = append(lifecycle, sub)
	}

	for {
		select {
		case ev := <-snapshots.C():
			br.forwardSnapshot(ev.Data.(*feed.SnapshotData))
		case ev := <-cleared.C():
			if br.snapshots {
				br.forwardCleared(ev.Data.(*feed.OverrideClearData))
			}
		case ev := <-lifecycle[0].C():
			br.forwardLifecycle(msgSessionStart, ev.Data.(*feed.SessionData))
		case ev := <-lifecycle[1].C():
			br.forwardLifecycle(msgSessionPause, ev.Data.(*feed.SessionData))
		case ev := <-lifecycle[2].C():
			br.forwardLifecycle(msgSessionResume, ev.Data.(*feed.SessionData))
		case ev := <-lifecycle[3].C():
			br.forwardLifecycle(msgSessionEnd, ev.Data.(*feed.SessionData))
		case <-ctx.Done():
			return
		}
	}
}

func (br *broadcaster) forwardSnapshot(data *feed.SnapshotData) {
	values := data.Snapshot.Values()
	br.each(func(c *conn) {
		c.send(msgValues, values, true)
		if br.snapshots {
			c.send(msgSnapshot, data.Snapshot, true)
		}
	})
}

func (br *broadcaster) forwardLifecycle(msgType string, data *feed.SessionData) {
	br.each(func(c *conn) {
		c.send(msgType, &lifecycleData{
			SessionID: data.SessionID,
			Status:    data.Status,
		}, false)
	})
}

func (br *broadcaster) forwardCleared(data *feed.OverrideClearData) {
	br.each(func(c *conn) {
		c.send(msgOverrideCleared, &overrideClearedData{
			Parameter:   data.Parameter,
			PerformerID: data.PerformerID,
			ReplacedBy:  data.ReplacedBy,
			Expired:     data.Expired,
		}, false)
	})
}
