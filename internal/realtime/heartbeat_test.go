package realtime

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newHeartbeatHub(interval time.Duration) *Hub {
	return NewHub(Options{
		HeartbeatInterval: interval,
		Logger:            zerolog.Nop(),
	})
}

func (s *fakeSink) heartbeats() int {
	return len(s.byType(EventHeartbeat))
}

func TestHeartbeat_EmitsPeriodically(t *testing.T) {
	h := newHeartbeatHub(10 * time.Millisecond)
	sink := &fakeSink{}
	_, err := h.Join("d1", Identity{UserID: "u1"}, sink)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sink.heartbeats() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestHeartbeat_FailureMarksConnectionDead(t *testing.T) {
	h := newHeartbeatHub(10 * time.Millisecond)
	sink := &fakeSink{}
	_, err := h.Join("d1", Identity{UserID: "u1"}, sink)
	require.NoError(t, err)

	sink.setFail(true)

	// The first failed tick marks the connection dead and the emitter stops.
	require.Eventually(t, func() bool {
		return len(h.Snapshot("d1")) == 0
	}, time.Second, 5*time.Millisecond)

	count := sink.heartbeats()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, count, sink.heartbeats())
}

func TestHeartbeat_StopsOnLeave(t *testing.T) {
	h := newHeartbeatHub(10 * time.Millisecond)
	sink := &fakeSink{}
	connID, err := h.Join("d1", Identity{UserID: "u1"}, sink)
	require.NoError(t, err)

	h.Leave("d1", connID)
	count := sink.heartbeats()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, count, sink.heartbeats())
}

func TestHeartbeat_RefreshesLastSeen(t *testing.T) {
	h := newHeartbeatHub(10 * time.Millisecond)
	sink := &fakeSink{}
	connID, err := h.Join("d1", Identity{UserID: "u1"}, sink)
	require.NoError(t, err)

	// Backdate the connection; a delivered heartbeat must reset its
	// staleness clock so the sweep keeps it.
	setLastSeen(h, "d1", connID, time.Now().Add(-time.Hour))
	require.Eventually(t, func() bool {
		return sink.heartbeats() >= 1
	}, time.Second, 5*time.Millisecond)

	removed, _ := h.Sweep(time.Now())
	require.Zero(t, removed)
	require.Len(t, h.Snapshot("d1"), 1)
}
