package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_CollectsSilentConnections(t *testing.T) {
	h := NewHub(Options{
		ConnectionTimeout: 20 * time.Millisecond,
		HeartbeatInterval: time.Hour,
		Logger:            zerolog.Nop(),
	})
	sink := &fakeSink{}
	_, err := h.Join("d1", Identity{UserID: "u1"}, sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup := NewSupervisor(h, 10*time.Millisecond, zerolog.Nop())
	go sup.Run(ctx)

	// The connection goes silent; within a sweep interval past the timeout
	// the channel and its state are gone.
	require.Eventually(t, func() bool {
		return h.ChannelCount() == 0
	}, time.Second, 10*time.Millisecond)
	require.True(t, sink.isClosed())
}

func TestSupervisor_StopsOnContextCancel(t *testing.T) {
	h := NewHub(Options{Logger: zerolog.Nop()})
	sup := NewSupervisor(h, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop after cancel")
	}
}

func TestNewSupervisor_DefaultInterval(t *testing.T) {
	sup := NewSupervisor(NewHub(Options{}), 0, zerolog.Nop())
	require.Equal(t, DefaultSweepInterval, sup.interval)
}
