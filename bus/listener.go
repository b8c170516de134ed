package bus

import "sync"

// Listener receives keys published to its Bus and admitted by its Filter.
// Listener is safe for concurrent use, though typically a single goroutine
// selects on Ready and then calls Drain.
type Listener struct {
	filter Filter
	bus    *Bus

	mu      sync.Mutex
	pending []string            // Keys awaiting Drain, in order of first publication.
	queued  map[string]struct{} // Set of |pending|.
	paused  bool
	closed  bool
	readyCh chan struct{} // Buffered signal of non-empty, un-paused |pending|.
}

// Filter of the Listener.
func (l *Listener) Filter() Filter { return l.filter }

// Ready selects when keys may be available to Drain. Ready may select
// spuriously (eg, if the Listener was since paused), in which case Drain
// returns no keys. Ready never selects while the Listener is paused.
func (l *Listener) Ready() <-chan struct{} { return l.readyCh }

// Drain removes and returns all pending keys. If the Listener is paused
// or closed, Drain returns nil and pending keys are retained.
func (l *Listener) Drain() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused || l.closed || len(l.pending) == 0 {
		return nil
	}
	var out = l.pending
	l.pending = nil

	for _, key := range out {
		delete(l.queued, key)
	}
	return out
}

// Pause the Listener. Keys published while paused are retained, but Ready
// will not select and Drain returns nothing until Resume is called.
func (l *Listener) Pause() {
	l.mu.Lock()
	l.paused = true
	l.mu.Unlock()
}

// Resume a paused Listener. If keys were retained while paused, Ready selects.
func (l *Listener) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.paused = false
	if len(l.pending) != 0 && !l.closed {
		l.signal()
	}
}

// Paused returns whether the Listener is paused.
func (l *Listener) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

// Close removes the Listener from its Bus and discards pending keys.
// Close is idempotent.
func (l *Listener) Close() {
	l.bus.mu.Lock()
	var _, registered = l.bus.listeners[l]
	delete(l.bus.listeners, l)
	l.bus.mu.Unlock()

	l.mu.Lock()
	l.closed = true
	l.pending, l.queued = nil, nil
	l.mu.Unlock()

	if registered {
		busListenersActive.Dec()
	}
}

// enqueue is called by Bus.Publish with the Bus mutex held.
func (l *Listener) enqueue(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	} else if _, ok := l.queued[key]; ok {
		return // Already pending.
	}
	l.pending = append(l.pending, key)
	l.queued[key] = struct{}{}

	if !l.paused {
		l.signal()
	}
}

// signal Ready without blocking. |mu| must be held.
func (l *Listener) signal() {
	select {
	case l.readyCh <- struct{}{}:
	default: // Already signaled.
	}
}
