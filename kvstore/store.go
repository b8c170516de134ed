// Package kvstore provides an abstraction over the key/value storage backends
// of preferences, a registry of backend constructors keyed on URL scheme, and
// in-memory and callback implementations for testing.
package kvstore

import (
	"context"
	"errors"
	"net/url"

	"go.gazette.dev/prefs/async"
)

// Store is a key/value storage backend of preferences. Values are opaque
// byte strings; typed encodings are the concern of the caller.
//
// Reads of a Store are synchronous and should be cheap: implementations serve
// Get and Keys from local state or a cache wherever they can. Mutations are asynchronous
// and resolve once the backend has applied (and, where applicable, durably
// persisted) the mutation. A Get issued after a mutation's OpFuture resolves
// must reflect the mutation. Implementations must be safe for concurrent use.
type Store interface {
	// Provider returns the name of the storage backend (e.g., "memory", "file", "etcd").
	Provider() string

	// Get returns the value of |key|, and whether it exists.
	Get(key string) (value []byte, ok bool, err error)

	// Keys returns all keys of the Store, in ascending order.
	Keys() []string

	// Set |key| to |value|, which the Store does not retain.
	Set(ctx context.Context, key string, value []byte) async.OpFuture

	// Remove |key|. Removing a key which doesn't exist is not an error.
	Remove(ctx context.Context, key string) async.OpFuture

	// Close the Store, releasing its resources.
	Close() error
}

// Notifier is implemented by Stores which observe mutations made outside of
// this process, such as by another client of a shared database. The
// registered callback is invoked with each key so modified.
type Notifier interface {
	// Notify registers |fn| to be called with each externally changed key.
	// It must be called before the Store's first mutation is observed.
	Notify(fn func(key string))
}

// Reloader is implemented by Stores which may re-synchronize local state
// with their backing medium on demand.
type Reloader interface {
	// Reload the Store, returning the keys which changed as a result.
	Reload(ctx context.Context) ([]string, error)
}

// Constructor is a function that creates a Store instance from a URL.
// Each storage backend provides its own constructor implementation.
type Constructor func(*url.URL) (Store, error)

// ErrClosed is returned by operations of a closed Store.
var ErrClosed = errors.New("store is closed")
