package kvstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.gazette.dev/prefs/async"
)

// Instrument wraps a Store with operation metrics. The wrapper implements
// Notifier and Reloader by delegation, as no-ops if the wrapped Store
// doesn't support them.
func Instrument(s Store) Store {
	if _, ok := s.(*instrumented); ok {
		return s
	}
	return &instrumented{Store: s}
}

// Unwrap returns the Store underlying an instrumented Store, or |s| itself.
func Unwrap(s Store) Store {
	if i, ok := s.(*instrumented); ok {
		return i.Store
	}
	return s
}

type instrumented struct {
	Store
}

func (s *instrumented) Get(key string) ([]byte, bool, error) {
	var started = time.Now()
	var value, ok, err = s.Store.Get(key)
	s.observe("get", started, err)
	return value, ok, err
}

func (s *instrumented) Set(ctx context.Context, key string, value []byte) async.OpFuture {
	return s.observeAsync("set", time.Now(), s.Store.Set(ctx, key, value))
}

func (s *instrumented) Remove(ctx context.Context, key string) async.OpFuture {
	return s.observeAsync("remove", time.Now(), s.Store.Remove(ctx, key))
}

func (s *instrumented) Notify(fn func(key string)) {
	if n, ok := s.Store.(Notifier); ok {
		n.Notify(fn)
	}
}

func (s *instrumented) Reload(ctx context.Context) ([]string, error) {
	if r, ok := s.Store.(Reloader); ok {
		var started = time.Now()
		var keys, err = r.Reload(ctx)
		s.observe("reload", started, err)
		return keys, err
	}
	return nil, nil
}

func (s *instrumented) observe(operation string, started time.Time, err error) {
	var status = "success"
	if err != nil {
		status = "error"
	}
	var provider = s.Store.Provider()

	storeOperationTotal.WithLabelValues(provider, operation, status).Inc()
	storeOperationDuration.WithLabelValues(provider, operation, status).Observe(time.Since(started).Seconds())
}

func (s *instrumented) observeAsync(operation string, started time.Time, op async.OpFuture) async.OpFuture {
	if async.IsDone(op) {
		s.observe(operation, started, op.Err())
	} else {
		go func() { s.observe(operation, started, op.Err()) }()
	}
	return op
}

var (
	storeOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prefs_store_operation_duration_seconds",
		Help:    "Duration of store operations in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // 100µs to ~1.6s
	}, []string{"store", "operation", "status"})

	storeOperationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prefs_store_operation_total",
		Help: "Total number of store operations",
	}, []string{"store", "operation", "status"})
)
