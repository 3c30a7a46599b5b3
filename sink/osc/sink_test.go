package osc

import (
	"context"
	"testing"

	goosc "github.com/hypebeast/go-osc/osc"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutti-live/tutti/config/params"
	"github.com/tutti-live/tutti/engine/bus"
	"github.com/tutti-live/tutti/engine/feed"
	"github.com/tutti-live/tutti/engine/types"
	"github.com/tutti-live/tutti/time/mono"
)

type fakeClient struct {
	sent []*goosc.Message
	err  error
}

func (f *fakeClient) Send(packet goosc.Packet) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, packet.(*goosc.Message))
	return nil
}

func snapshot(values map[string]float64) *feed.SnapshotData {
	results := make(map[string]*types.ConsensusResult, len(values))
	for name, v := range values {
		results[name] = &types.ConsensusResult{Parameter: name, Value: v}
	}
	return &feed.SnapshotData{Snapshot: &types.Snapshot{Results: results}}
}

func testSink(t *testing.T) (*Sink, *fakeClient) {
	t.Helper()
	s := New(context.Background(), &Config{Host: "127.0.0.1", Port: 57120, Bus: bus.New()})
	fake := &fakeClient{}
	s.client = fake
	return s, fake
}

func TestForward_SendsParametersInNameOrder(t *testing.T) {
	s, fake := testSink(t)
	s.forward(snapshot(map[string]float64{"tempo": 0.7, "mood": 0.5}))

	require.Equal(t, 2, len(fake.sent))
	assert.Equal(t, "/performance/mood", fake.sent[0].Address)
	assert.Equal(t, float32(0.5), fake.sent[0].Arguments[0])
	assert.Equal(t, "/performance/tempo", fake.sent[1].Address)
}

func TestForward_UsesConfiguredSinkAddress(t *testing.T) {
	s := New(context.Background(), &Config{
		Host: "127.0.0.1",
		Port: 57120,
		Bus:  bus.New(),
		Definitions: []*params.ParameterDefinition{
			{Name: "mood", SinkAddress: "/synth/mood"},
			{Name: "tempo"},
		},
	})
	fake := &fakeClient{}
	s.client = fake

	s.forward(snapshot(map[string]float64{"mood": 0.5, "tempo": 0.7}))
	require.Equal(t, 2, len(fake.sent))
	assert.Equal(t, "/synth/mood", fake.sent[0].Address)
	assert.Equal(t, "/performance/tempo", fake.sent[1].Address)
}

func TestForward_DegradedModeBacksOff(t *testing.T) {
	s, fake := testSink(t)
	fake.err = errors.New("connection refused")

	s.forward(snapshot(map[string]float64{"mood": 0.5}))
	require.Equal(t, true, s.degraded)
	require.Error(t, s.Status())

	// Inside the retry window snapshots are dropped without a send attempt.
	fake.err = nil
	s.forward(snapshot(map[string]float64{"mood": 0.6}))
	assert.Equal(t, 0, len(fake.sent))

	// Past the retry window the sink recovers.
	s.retryAt = mono.Now() - 1
	s.forward(snapshot(map[string]float64{"mood": 0.6}))
	require.Equal(t, 1, len(fake.sent))
	assert.Equal(t, false, s.degraded)
	require.NoError(t, s.Status())
}

func TestForward_BackoffIsCapped(t *testing.T) {
	s, fake := testSink(t)
	fake.err = errors.New("unreachable")
	for i := 0; i < 10; i++ {
		s.retryAt = mono.Now() - 1
		s.forward(snapshot(map[string]float64{"mood": 0.5}))
	}
	assert.Equal(t, int64(maxRetryMs), s.retryMs)
}
