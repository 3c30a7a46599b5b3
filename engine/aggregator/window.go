package aggregator

import (
	"github.com/tutti-live/tutti/engine/types"
)

// window is a sliding window of accepted inputs backed by a ring buffer.
// Pruning advances the start index; no node is ever unlinked, keeping the
// tick hot path allocation-free once the buffer has grown to its working
// size.
type window struct {
	buf   []*types.AudienceInput
	start int
	count int
}

const initialWindowCapacity = 64

func newWindow() *window {
	return &window{buf: make([]*types.AudienceInput, initialWindowCapacity)}
}

func (w *window) add(input *types.AudienceInput) {
	if w.count == len(w.buf) {
		w.grow()
	}
	w.buf[(w.start+w.count)%len(w.buf)] = input
	w.count++
}

func (w *window) grow() {
	next := make([]*types.AudienceInput, 2*len(w.buf))
	for i := 0; i < w.count; i++ {
		next[i] = w.at(i)
	}
	w.buf = next
	w.start = 0
}

// at returns the i-th oldest input.
func (w *window) at(i int) *types.AudienceInput {
	return w.buf[(w.start+i)%len(w.buf)]
}

func (w *window) size() int {
	return w.count
}

// prune drops inputs with timestamps before the cutoff. Inputs are stored in
// acceptance order, so pruning is a pointer move from the oldest end.
func (w *window) prune(cutoff int64) {
	for w.count > 0 {
		oldest := w.buf[w.start]
		if oldest.Timestamp >= cutoff {
			return
		}
		w.buf[w.start] = nil
		w.start = (w.start + 1) % len(w.buf)
		w.count--
	}
}

// values appends the window's input values to dst and returns it.
func (w *window) values(dst []float64) []float64 {
	for i := 0; i < w.count; i++ {
		dst = append(dst, w.at(i).Value)
	}
	return dst
}
