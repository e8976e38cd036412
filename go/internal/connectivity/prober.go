package connectivity

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober feeds a Guard from periodic pings.
type Prober struct {
	guard    *Guard
	pinger   Pinger
	clock    clockwork.Clock
	interval time.Duration
	timeout  time.Duration
}

// NewProber creates a prober pinging every interval
func NewProber(guard *Guard, pinger Pinger, clock clockwork.Clock, interval time.Duration) *Prober {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	timeout := interval / 2
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Prober{
		guard:    guard,
		pinger:   pinger,
		clock:    clock,
		interval: interval,
		timeout:  timeout,
	}
}

// Probe pings once and records the result.
func (p *Prober) Probe(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(pingCtx)
	if ctx.Err() != nil {
		// shutting down, not a connectivity signal
		return p.guard.Online()
	}
	if err != nil {
		log.Debug().Err(err).Msg("store ping failed")
	}
	p.guard.SetOnline(err == nil)
	return err == nil
}

// Run probes until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.Probe(ctx)
		}
	}
}
