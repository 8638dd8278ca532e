package realtime

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSweepInterval is how often the supervisor runs a sweep.
const DefaultSweepInterval = 120 * time.Second

// Supervisor periodically sweeps the hub: it expires stale connections,
// republishes presence, and garbage-collects empty document channels. It runs
// independently of any single connection's lifecycle and is the only thing
// guaranteed to free dead-but-unremoved connections.
type Supervisor struct {
	hub      *Hub
	interval time.Duration
	log      zerolog.Logger
}

// NewSupervisor creates a supervisor for the given hub. A non-positive
// interval falls back to DefaultSweepInterval.
func NewSupervisor(hub *Hub, interval time.Duration, log zerolog.Logger) *Supervisor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Supervisor{
		hub:      hub,
		interval: interval,
		log:      log,
	}
}

// Run sweeps on a fixed interval until the context is canceled. It is meant
// to be started as a goroutine from main.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("liveness supervisor started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("liveness supervisor stopped")
			return
		case <-ticker.C:
			conns, channels := s.hub.Sweep(time.Now())
			if conns > 0 || channels > 0 {
				s.log.Info().
					Int("connections", conns).
					Int("channels", channels).
					Msg("swept stale connections")
			}
		}
	}
}
