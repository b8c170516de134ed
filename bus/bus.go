// Package bus implements a process-wide broadcast of changed keys. Every
// mutation of a preference store publishes the affected key onto a Bus,
// and each Listener of the Bus receives the keys admitted by its Filter.
//
// A Bus does not buffer or replay: Listeners observe only keys published
// while they are registered. Publish never blocks on a Listener. Instead
// each Listener retains an ordered set of pending keys, which its consumer
// drains at its own pace. A key which is already pending is not queued a
// second time: consumers react to a key by re-reading its current value, so
// a pending key already implies the later publication.
package bus

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Filter selects the keys admitted to a Listener. A Filter is either
// ByKey, admitting exactly one key, or All, admitting every key.
// Filters are comparable, and may be used as map keys.
type Filter struct {
	key string
	all bool
}

// ByKey returns a Filter admitting only |key|.
func ByKey(key string) Filter { return Filter{key: key} }

// All returns a Filter admitting every key.
func All() Filter { return Filter{all: true} }

// Key returns the key of a ByKey Filter. It returns false for the All Filter.
func (f Filter) Key() (string, bool) { return f.key, !f.all }

// IsAll is true if this is the All Filter.
func (f Filter) IsAll() bool { return f.all }

// Admits returns whether the Filter admits |key|.
func (f Filter) Admits(key string) bool { return f.all || f.key == key }

func (f Filter) String() string {
	if f.all {
		return "*"
	}
	return strconv.Quote(f.key)
}

// Bus is a broadcast of changed keys. The zero value is not usable;
// use New. Bus is safe for concurrent use.
type Bus struct {
	mu        sync.Mutex
	listeners map[*Listener]struct{}
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{listeners: make(map[*Listener]struct{})}
}

// Publish |key| to every current Listener whose Filter admits it.
func (b *Bus) Publish(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for l := range b.listeners {
		if l.filter.Admits(key) {
			l.enqueue(key)
		}
	}
	busEventsTotal.Inc()
}

// Listen registers and returns a new Listener of keys admitted by |filter|.
// The caller must Close the Listener once it's no longer needed.
func (b *Bus) Listen(filter Filter) *Listener {
	var l = &Listener{
		filter:  filter,
		bus:     b,
		queued:  make(map[string]struct{}),
		readyCh: make(chan struct{}, 1),
	}

	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()

	busListenersActive.Inc()
	return l
}

// Len returns the number of registered Listeners.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

var (
	busEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prefs_bus_events_total",
		Help: "Cumulative number of keys published to change buses.",
	})
	busListenersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prefs_bus_listeners",
		Help: "Number of listeners currently registered with change buses.",
	})
)
