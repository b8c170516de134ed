package prefs

import (
	"context"
	"slices"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.gazette.dev/prefs/async"
	"go.gazette.dev/prefs/bus"
	"go.gazette.dev/prefs/kvstore"
)

// Preferences builds Preferences of a Store, which share a change Bus.
// If the Store is a kvstore.Notifier, keys it reports as externally changed
// are also published to the Bus.
type Preferences struct {
	store   kvstore.Store
	changes *bus.Bus
}

// New returns Preferences of the Store. There should be only one Preferences
// of a given Store, as changes made through a Preferences are published only
// to its own Bus.
func New(store kvstore.Store) *Preferences {
	var p = &Preferences{
		store:   store,
		changes: bus.New(),
	}
	if n, ok := store.(kvstore.Notifier); ok {
		n.Notify(p.changes.Publish)
	}
	return p
}

// Store of the Preferences.
func (p *Preferences) Store() kvstore.Store { return p.store }

// Bus of the Preferences, to which every changed key is published.
func (p *Preferences) Bus() *bus.Bus { return p.changes }

// Custom returns a Preference of |key| encoded by |adapter|.
func Custom[T any](p *Preferences, key string, def T, adapter Adapter[T]) *Preference[T] {
	return NewPreference(p.store, p.changes, bus.ByKey(key), def, adapter)
}

// Bool returns a Preference of a bool |key|.
func (p *Preferences) Bool(key string, def bool) *Preference[bool] {
	return Custom(p, key, def, BoolAdapter())
}

// Int returns a Preference of an integer |key|.
func (p *Preferences) Int(key string, def int64) *Preference[int64] {
	return Custom(p, key, def, IntAdapter())
}

// Float returns a Preference of a floating-point |key|.
func (p *Preferences) Float(key string, def float64) *Preference[float64] {
	return Custom(p, key, def, FloatAdapter())
}

// String returns a Preference of a string |key|.
func (p *Preferences) String(key string, def string) *Preference[string] {
	return Custom(p, key, def, StringAdapter())
}

// Bytes returns a Preference of a raw []byte |key|.
func (p *Preferences) Bytes(key string, def []byte) *Preference[[]byte] {
	return Custom(p, key, def, BytesAdapter())
}

// StringSet returns a Preference of a set of strings |key|.
func (p *Preferences) StringSet(key string, def []string) *Preference[[]string] {
	return Custom(p, key, def, StringSetAdapter())
}

// StringList returns a Preference of an ordered list of strings |key|.
func (p *Preferences) StringList(key string, def []string) *Preference[[]string] {
	return Custom(p, key, def, StringListAdapter())
}

// Time returns a Preference of a time.Time |key|.
func (p *Preferences) Time(key string, def time.Time) *Preference[time.Time] {
	return Custom(p, key, def, TimeAdapter())
}

// Keys returns the read-only Preference of all keys of the Store, in
// ascending order. It's notified of every change of the Store. Its default
// (and value, when the Store is empty) is an empty slice.
func (p *Preferences) Keys() *Preference[[]string] {
	return NewPreference[[]string](p.store, p.changes, bus.All(), []string{}, keysAdapter{})
}

// ContainsKey returns whether |key| exists in the Store.
func (p *Preferences) ContainsKey(key string) bool {
	var _, ok, err = p.store.Get(key)
	if err != nil {
		log.WithFields(log.Fields{"key": key, "err": err}).Error("failed to read key")
	}
	return ok
}

// Remove |key| from the Store, publishing it upon completion.
func (p *Preferences) Remove(ctx context.Context, key string) async.OpFuture {
	return publishAfter(p.changes, key, p.store.Remove(ctx, key))
}

// Clear removes every key of the Store. Each key is published as its
// removal completes, and the returned OpFuture resolves when all have.
func (p *Preferences) Clear(ctx context.Context) async.OpFuture {
	var ops []async.OpFuture
	for _, key := range p.store.Keys() {
		ops = append(ops, p.Remove(ctx, key))
	}
	return async.All(ops...)
}

// Reload re-synchronizes a Store which is a kvstore.Reloader with its
// backing medium, publishing each key which changed. It's a no-op for
// other Stores.
func (p *Preferences) Reload(ctx context.Context) error {
	var r, ok = p.store.(kvstore.Reloader)
	if !ok {
		return nil
	}
	var keys, err = r.Reload(ctx)
	for _, key := range keys {
		p.changes.Publish(key)
	}
	return errors.WithMessage(err, "reloading store")
}

// Close the Store.
func (p *Preferences) Close() error { return p.store.Close() }

// keysAdapter reads the keys of a Store. It ignores its key argument.
type keysAdapter struct{}

func (keysAdapter) Get(store kvstore.Store, _ string) ([]string, bool, error) {
	var keys = store.Keys()
	return keys, len(keys) != 0, nil
}

func (keysAdapter) Set(context.Context, kvstore.Store, string, []string) async.OpFuture {
	return async.FinishedOperation(ErrReadOnly)
}

func (keysAdapter) Equal(a, b []string) bool { return slices.Equal(a, b) }
