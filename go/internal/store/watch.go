package store

import "sync"

// watchHub fans changes out to per-key subscribers. Each subscriber channel
// holds at most one pending change; a newer change replaces an unread one.
type watchHub struct {
	mu     sync.Mutex
	subs   map[string]map[chan Change]struct{}
	closed bool
}

func newWatchHub() *watchHub {
	return &watchHub{subs: make(map[string]map[chan Change]struct{})}
}

func (h *watchHub) add(key string) (chan Change, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	ch := make(chan Change, 1)
	if h.subs[key] == nil {
		h.subs[key] = make(map[chan Change]struct{})
	}
	h.subs[key][ch] = struct{}{}
	return ch, nil
}

func (h *watchHub) remove(key string, ch chan Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subs[key]; ok {
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subs, key)
		}
	}
}

// send delivers c to a single subscriber.
func (h *watchHub) send(ch chan Change, c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subs[c.Key]; ok {
		if _, ok := subs[ch]; ok {
			offerLatest(ch, c)
		}
	}
}

func (h *watchHub) publish(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[c.Key] {
		offerLatest(ch, Change{Key: c.Key, Document: cloneDocument(c.Document)})
	}
}

func (h *watchHub) keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.subs))
	for k := range h.subs {
		keys = append(keys, k)
	}
	return keys
}

func (h *watchHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for key, subs := range h.subs {
		for ch := range subs {
			close(ch)
		}
		delete(h.subs, key)
	}
}

func offerLatest(ch chan Change, c Change) {
	select {
	case ch <- c:
		return
	default:
	}
	// drop the stale pending change
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- c:
	default:
	}
}
