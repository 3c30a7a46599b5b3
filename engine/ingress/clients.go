package ingress

import (
	"hash/fnv"
	"sync"

	"github.com/tutti-live/tutti/engine/types"
)

// ClientState tracks one audience client's rate-limit bookkeeping. States
// are created on first accepted input and evicted after the idle timeout.
type ClientState struct {
	ClientID      string
	LastInputTime int64
	InputCount    int64 // rolling, reset on the rollover interval
	LastLocation  *types.Location
	Blocked       bool
	BlockedUntil  int64
	AdminBlocked  bool
}

const numShards = 16

// clientShard is one lock-striped partition of the client-state map.
type clientShard struct {
	mu      sync.Mutex
	clients map[string]*ClientState
}

// clientTable shards client state by clientId hash so concurrent ingress
// workers do not contend on a global lock.
type clientTable struct {
	shards [numShards]*clientShard
}

func newClientTable() *clientTable {
	t := &clientTable{}
	for i := range t.shards {
		t.shards[i] = &clientShard{clients: make(map[string]*ClientState)}
	}
	return t
}

func (t *clientTable) shardFor(clientID string) *clientShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(clientID))
	return t.shards[h.Sum32()%numShards]
}

// withState runs fn with the client's state under the shard lock, creating
// the state if absent.
func (t *clientTable) withState(clientID string, fn func(state *ClientState)) {
	shard := t.shardFor(clientID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	state, ok := shard.clients[clientID]
	if !ok {
		state = &ClientState{ClientID: clientID}
		shard.clients[clientID] = state
	}
	fn(state)
}

// lookup runs fn with the client's state if present.
func (t *clientTable) lookup(clientID string, fn func(state *ClientState)) bool {
	shard := t.shardFor(clientID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	state, ok := shard.clients[clientID]
	if ok {
		fn(state)
	}
	return ok
}

func (t *clientTable) remove(clientID string) {
	shard := t.shardFor(clientID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.clients, clientID)
}

// size returns the number of tracked clients.
func (t *clientTable) size() int {
	var n int
	for _, shard := range t.shards {
		shard.mu.Lock()
		n += len(shard.clients)
		shard.mu.Unlock()
	}
	return n
}

// evictIdle removes clients idle past the cutoff and returns their ids.
func (t *clientTable) evictIdle(cutoff int64) []string {
	var evicted []string
	for _, shard := range t.shards {
		shard.mu.Lock()
		for id, state := range shard.clients {
			if state.LastInputTime < cutoff {
				delete(shard.clients, id)
				evicted = append(evicted, id)
			}
		}
		shard.mu.Unlock()
	}
	return evicted
}

// resetCounters zeroes every rolling input counter and returns the counts
// prior to reset, keyed by client id.
func (t *clientTable) resetCounters() map[string]int64 {
	counts := make(map[string]int64)
	for _, shard := range t.shards {
		shard.mu.Lock()
		for id, state := range shard.clients {
			if state.InputCount > 0 {
				counts[id] = state.InputCount
				state.InputCount = 0
			}
		}
		shard.mu.Unlock()
	}
	return counts
}
