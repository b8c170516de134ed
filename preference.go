package prefs

import (
	"context"
	"reflect"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.gazette.dev/prefs/async"
	"go.gazette.dev/prefs/bus"
	"go.gazette.dev/prefs/kvstore"
)

// ErrReadOnly is returned by mutations of a Preference having no key,
// such as the Preference of all keys of a Store.
var ErrReadOnly = errors.New("preference has no key and is read-only")

// Preference is a typed, observable view of one key of a Store. Preferences
// are cheap to build and hold no state of their own beyond their
// construction arguments; any number of Preferences of a key may co-exist.
type Preference[T any] struct {
	filter  bus.Filter
	def     T
	adapter Adapter[T]
	store   kvstore.Store
	changes *bus.Bus
}

// NewPreference returns a Preference of |store| keys admitted by |filter|,
// having default value |def| and encoded by |adapter|. Mutations of the
// Preference publish to |changes|, which must be the Bus shared by all
// Preferences of |store|.
//
// A bus.ByKey filter yields a Preference of that key. A bus.All filter
// yields a read-only Preference which is notified of every key change, and
// whose |adapter| is invoked with an empty key.
func NewPreference[T any](store kvstore.Store, changes *bus.Bus, filter bus.Filter, def T, adapter Adapter[T]) *Preference[T] {
	return &Preference[T]{
		filter:  filter,
		def:     def,
		adapter: adapter,
		store:   store,
		changes: changes,
	}
}

// Key returns the key of the Preference, or false if it has none.
func (p *Preference[T]) Key() (string, bool) { return p.filter.Key() }

// Filter returns the bus.Filter of the Preference.
func (p *Preference[T]) Filter() bus.Filter { return p.filter }

// Identity of a Preference: its Filter and value type. Preferences having
// equal Identities are interchangeable views of the Store, regardless of
// their defaults or adapters. Identity is comparable, and may key maps.
type Identity struct {
	Filter bus.Filter
	Type   reflect.Type
}

// Identity returns the Identity of the Preference.
func (p *Preference[T]) Identity() Identity {
	return Identity{Filter: p.filter, Type: reflect.TypeFor[T]()}
}

// Equal returns true if |other| is a view of the same key and value type.
func (p *Preference[T]) Equal(other interface{ Identity() Identity }) bool {
	if other == nil {
		return false
	} else if v := reflect.ValueOf(other); v.Kind() == reflect.Pointer && v.IsNil() {
		return false
	}
	return p.Identity() == other.Identity()
}

// Default returns the default value of the Preference.
func (p *Preference[T]) Default() T { return p.def }

// Value returns the current value of the Preference: its stored value if
// present, and its default otherwise. Value never fails. If the stored
// value cannot be decoded, the error is logged and the default is returned.
func (p *Preference[T]) Value() T {
	var v, err = p.Load()
	if err != nil {
		log.WithFields(log.Fields{
			"key": p.filter.String(),
			"err": err,
		}).Error("failed to read preference (using default)")
	}
	return v
}

// Load is like Value, but returns an error if the stored value could not be
// read or decoded (in which case the default is also returned).
func (p *Preference[T]) Load() (T, error) {
	var key, _ = p.filter.Key()

	if v, ok, err := p.adapter.Get(p.store, key); err != nil {
		return p.def, err
	} else if !ok {
		return p.def, nil
	} else {
		return v, nil
	}
}

// Write |value| to the Store. Upon completion of the Store operation, and
// regardless of its success, the key is published to the change Bus. The
// returned OpFuture resolves after publication, with the Store's error.
// If the Preference has no key, an OpFuture failed with ErrReadOnly is
// returned, and neither the Store nor the Bus are touched.
func (p *Preference[T]) Write(ctx context.Context, value T) async.OpFuture {
	var key, ok = p.filter.Key()
	if !ok {
		return async.FinishedOperation(ErrReadOnly)
	}
	return publishAfter(p.changes, key, p.adapter.Set(ctx, p.store, key, value))
}

// Clear removes the stored value of the Preference, after which its Value is
// its default. It publishes and resolves like Write, and like Write, returns
// ErrReadOnly if the Preference has no key.
func (p *Preference[T]) Clear(ctx context.Context) async.OpFuture {
	var key, ok = p.filter.Key()
	if !ok {
		return async.FinishedOperation(ErrReadOnly)
	}
	return publishAfter(p.changes, key, p.store.Remove(ctx, key))
}

// publishAfter publishes |key| to |changes| once |op| completes, and returns
// an OpFuture which resolves with |op|'s error after publication. An
// already-completed |op| is published synchronously.
func publishAfter(changes *bus.Bus, key string, op async.OpFuture) async.OpFuture {
	if async.IsDone(op) {
		var err = op.Err()
		changes.Publish(key)
		return async.FinishedOperation(err)
	}
	var result = async.NewAsyncOperation()

	go func() {
		var err = op.Err()
		changes.Publish(key)
		result.Resolve(err)
	}()
	return result
}
