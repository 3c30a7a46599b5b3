package ingress

import (
	"sync"

	"github.com/tutti-live/tutti/engine/bus"
	"github.com/tutti-live/tutti/engine/feed"
	"github.com/tutti-live/tutti/engine/types"
)

// batcher buffers accepted inputs between flushes. Flushing an empty buffer
// publishes nothing.
type batcher struct {
	mu     sync.Mutex
	inputs []*types.AudienceInput
	bus    *bus.Bus
}

func newBatcher(b *bus.Bus) *batcher {
	return &batcher{bus: b}
}

func (b *batcher) add(input *types.AudienceInput) {
	b.mu.Lock()
	b.inputs = append(b.inputs, input)
	b.mu.Unlock()
}

func (b *batcher) flush() {
	b.mu.Lock()
	inputs := b.inputs
	b.inputs = nil
	b.mu.Unlock()
	if len(inputs) == 0 {
		return
	}
	b.bus.Publish(&feed.Event{
		Kind: feed.AudienceInputBatch,
		Data: &feed.BatchData{Inputs: inputs},
	})
}
