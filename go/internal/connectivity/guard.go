package connectivity

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Guard tracks whether the remote store is reachable and suppresses writes
// while it is not. Skipped writes are dropped, never queued.
type Guard struct {
	mu      sync.RWMutex
	online  bool
	subs    map[chan bool]struct{}
	skipped atomic.Uint64
}

// NewGuard creates a guard with the given initial status
func NewGuard(online bool) *Guard {
	return &Guard{
		online: online,
		subs:   make(map[chan bool]struct{}),
	}
}

// Online reports the current status.
func (g *Guard) Online() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.online
}

// SetOnline records a status signal. Subscribers are only told about
// transitions.
func (g *Guard) SetOnline(online bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.online == online {
		return
	}
	g.online = online

	if online {
		log.Info().Uint64("skipped_writes", g.skipped.Load()).Msg("store connectivity restored")
	} else {
		log.Warn().Msg("store connectivity lost, writes will be skipped")
	}

	for ch := range g.subs {
		select {
		case ch <- online:
		default:
			// keep only the latest status for slow subscribers
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- online:
			default:
			}
		}
	}
}

// Subscribe returns a channel of status transitions and a function that
// unsubscribes and closes it.
func (g *Guard) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)
	g.mu.Lock()
	g.subs[ch] = struct{}{}
	g.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subs, ch)
			close(ch)
			g.mu.Unlock()
		})
	}
}

// Do runs fn when online. While offline fn is not invoked and skipped is
// true.
func (g *Guard) Do(ctx context.Context, op string, fn func(ctx context.Context) error) (skipped bool, err error) {
	if !g.Online() {
		g.skipped.Add(1)
		log.Debug().Str("op", op).Msg("write suppressed while offline")
		return true, nil
	}
	return false, fn(ctx)
}

// Skipped returns how many writes were suppressed so far.
func (g *Guard) Skipped() uint64 {
	return g.skipped.Load()
}
