package prefs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"go.gazette.dev/prefs/bus"
)

// SubscriptionState is the lifecycle state of a Subscription.
type SubscriptionState int

const (
	// Idle Subscriptions have not yet delivered their first value.
	Idle SubscriptionState = iota
	// Primed Subscriptions have delivered their first value, and deliver
	// each distinct subsequent value.
	Primed
	// Cancelled Subscriptions deliver nothing further.
	Cancelled
)

func (s SubscriptionState) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Primed:
		return "PRIMED"
	case Cancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("SubscriptionState(%d)", int(s))
	}
}

// Subscription is a stream of the values of a Preference. Its first value is
// the Preference's Value at Subscribe, and each subsequent value differs
// from the one preceding it. The caller must Cancel the Subscription once
// it's no longer needed.
//
// A Subscription keeps reading changes while its receiver lags. Values read
// but not yet received are retained in order, so that a slow receiver still
// observes each transition (including those to and from the default).
type Subscription[T any] struct {
	pref     *Preference[T]
	listener *bus.Listener
	ch       chan T

	// cursor is the last value read and retained for delivery. It's written
	// by Subscribe before |serve| starts, then only by |serve|, and finally
	// by Cancel after |serve| exits.
	cursor cursor[T]

	mu      sync.Mutex
	state   SubscriptionState
	backlog []T // Values read by |serve| and awaiting delivery to |ch|.
	stopCh chan struct{} // Closed by Cancel to stop |serve|.
	exitCh chan struct{} // Closed by |serve| as it exits.
}

// Subscribe returns a new Subscription to the Preference. The Preference's
// current Value is delivered to the Subscription's channel before Subscribe
// returns.
func (p *Preference[T]) Subscribe() *Subscription[T] {
	var s = &Subscription[T]{
		pref: p,
		// Listen before reading the current Value, such that a mutation which
		// races with Subscribe is always followed by a re-read.
		listener: p.changes.Listen(p.filter),
		ch:       make(chan T, 1),
		state:    Idle,
		stopCh:   make(chan struct{}),
		exitCh:   make(chan struct{}),
	}

	var v = p.Value()
	s.cursor.advance(v, p.adapter.Equal) // Always advances, as |cursor| is unset.
	s.ch <- v

	s.mu.Lock()
	s.state = Primed
	s.mu.Unlock()

	subscriptionsActive.Inc()
	valuesDeliveredTotal.Inc()

	log.WithFields(log.Fields{"key": p.filter.String()}).Debug("subscribed to preference")

	go s.serve()
	return s
}

// C returns the channel of Subscription values. The channel is closed by Cancel.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Preference of the Subscription.
func (s *Subscription[T]) Preference() *Preference[T] { return s.pref }

// State returns the current SubscriptionState.
func (s *Subscription[T]) State() SubscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pause the Subscription. While paused, changes of the Preference are not
// consumed from the change Bus, and no further values are read. On Resume,
// the Subscription re-reads the Preference if it changed while paused, and
// delivers its value if it differs from the last value read.
// Values which were read before Pause may yet be received.
func (s *Subscription[T]) Pause() { s.listener.Pause() }

// Resume a paused Subscription.
func (s *Subscription[T]) Resume() { s.listener.Resume() }

// Paused returns whether the Subscription is paused.
func (s *Subscription[T]) Paused() bool { return s.listener.Paused() }

// Cancel the Subscription. Upon return, no further values will be delivered:
// values which were read but not yet received are discarded, and the
// Subscription's channel is closed. Cancel is idempotent.
func (s *Subscription[T]) Cancel() {
	s.mu.Lock()
	if s.state == Cancelled {
		s.mu.Unlock()
		return
	}
	s.state = Cancelled
	s.mu.Unlock()

	close(s.stopCh)
	s.listener.Close()
	<-s.exitCh

	// |serve| has exited and |ch| has no other senders.
	for drained := false; !drained; {
		select {
		case <-s.ch:
		default:
			drained = true
		}
	}
	close(s.ch)
	s.cursor.reset()

	s.mu.Lock()
	s.backlog = nil
	s.mu.Unlock()

	subscriptionsActive.Dec()
	log.WithFields(log.Fields{"key": s.pref.filter.String()}).Debug("cancelled preference subscription")
}

// serve re-reads the Preference on each change notified by the Listener,
// and retains values which differ from the last one read. Concurrently, it
// delivers retained values to |ch| in the order they were read.
func (s *Subscription[T]) serve() {
	defer close(s.exitCh)

	for {
		// |sendCh| is nil, and blocks forever, if nothing awaits delivery.
		var sendCh chan<- T
		var next T

		s.mu.Lock()
		if len(s.backlog) != 0 {
			sendCh, next = s.ch, s.backlog[0]
		}
		s.mu.Unlock()

		select {
		case <-s.stopCh:
			return
		case sendCh <- next:
			s.mu.Lock()
			var zero T
			s.backlog[0] = zero
			s.backlog = s.backlog[1:]
			s.mu.Unlock()

			valuesDeliveredTotal.Inc()
			continue
		case <-s.listener.Ready():
		}

		if len(s.listener.Drain()) == 0 {
			continue // Paused since Ready was signaled.
		}

		var v = s.pref.Value()
		if !s.cursor.advance(v, s.pref.adapter.Equal) {
			valuesSuppressedTotal.Inc()
			continue
		}

		s.mu.Lock()
		s.backlog = append(s.backlog, v)
		s.mu.Unlock()
	}
}

// pending returns the number of values read but not yet delivered to |ch|.
func (s *Subscription[T]) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backlog)
}

// cursor is the last value read by a Subscription. An unset cursor is
// distinct from every value, including the zero value and the default.
type cursor[T any] struct {
	set   bool
	value T
}

// advance the cursor to |v|, returning true, unless the cursor is set and
// already equal to |v| (in which case false is returned).
func (c *cursor[T]) advance(v T, equal func(a, b T) bool) bool {
	if c.set && equal(c.value, v) {
		return false
	}
	c.set, c.value = true, v
	return true
}

func (c *cursor[T]) reset() { *c = cursor[T]{} }

var (
	subscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prefs_subscriptions",
		Help: "Number of active preference subscriptions.",
	})
	valuesDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prefs_subscription_values_total",
		Help: "Cumulative number of values delivered to preference subscriptions.",
	})
	valuesSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prefs_subscription_suppressed_total",
		Help: "Cumulative number of re-read values suppressed as unchanged.",
	})
)
