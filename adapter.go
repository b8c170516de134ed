package prefs

import (
	"context"

	"github.com/pkg/errors"
	"go.gazette.dev/prefs/async"
	"go.gazette.dev/prefs/kvstore"
)

// Adapter converts between values of type T and their encoding in a Store.
type Adapter[T any] interface {
	// Get the decoded value of |key|, and whether it exists.
	Get(store kvstore.Store, key string) (T, bool, error)
	// Set |key| to the encoding of |value|.
	Set(ctx context.Context, store kvstore.Store, key string, value T) async.OpFuture
	// Equal returns whether |a| and |b| are the same value. Subscriptions use
	// Equal to suppress repeated deliveries of unchanged values.
	Equal(a, b T) bool
}

// NewAdapter composes encode, decode, and equality functions into an Adapter.
func NewAdapter[T any](
	encode func(T) ([]byte, error),
	decode func([]byte) (T, error),
	equal func(a, b T) bool,
) Adapter[T] {
	return codec[T]{encode: encode, decode: decode, equal: equal}
}

type codec[T any] struct {
	encode func(T) ([]byte, error)
	decode func([]byte) (T, error)
	equal  func(a, b T) bool
}

func (c codec[T]) Get(store kvstore.Store, key string) (out T, _ bool, _ error) {
	var raw, ok, err = store.Get(key)
	if err != nil {
		return out, false, errors.WithMessagef(err, "reading %q", key)
	} else if !ok {
		return out, false, nil
	} else if out, err = c.decode(raw); err != nil {
		return out, false, errors.WithMessagef(err, "decoding %q", key)
	}
	return out, true, nil
}

func (c codec[T]) Set(ctx context.Context, store kvstore.Store, key string, value T) async.OpFuture {
	var raw, err = c.encode(value)
	if err != nil {
		return async.FinishedOperation(errors.WithMessagef(err, "encoding %q", key))
	}
	return store.Set(ctx, key, raw)
}

func (c codec[T]) Equal(a, b T) bool { return c.equal(a, b) }

// equalComparable is an equality function of comparable types.
func equalComparable[T comparable](a, b T) bool { return a == b }
