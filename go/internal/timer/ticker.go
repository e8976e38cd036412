package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Ticker is the cancellable display refresh. It only ever calls onTick; it
// never touches timer state itself.
type Ticker struct {
	clock    clockwork.Clock
	interval time.Duration
	onTick   func()

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewTicker creates a disarmed ticker
func NewTicker(clock clockwork.Clock, interval time.Duration, onTick func()) *Ticker {
	return &Ticker{
		clock:    clock,
		interval: interval,
		onTick:   onTick,
	}
}

// Arm starts ticking. Arming an armed ticker does nothing.
func (t *Ticker) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.loop(t.clock.NewTicker(t.interval), t.stop, t.done)
}

// Disarm stops ticking without waiting for an in-flight tick, so it is safe
// to call from code that onTick may be waiting on.
func (t *Ticker) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop == nil {
		return
	}
	close(t.stop)
	t.stop = nil
}

// Stop disarms and waits for the tick goroutine to exit.
func (t *Ticker) Stop() {
	t.mu.Lock()
	done := t.done
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Armed reports whether the ticker is running.
func (t *Ticker) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

func (t *Ticker) loop(tk clockwork.Ticker, stop <-chan struct{}, done chan struct{}) {
	defer close(done)
	defer tk.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tk.Chan():
			select {
			case <-stop:
				return
			default:
			}
			t.onTick()
		}
	}
}
