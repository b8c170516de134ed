// Package storetest provides a conformance test of the kvstore.Store contract,
// for use by the tests of each Store implementation.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.gazette.dev/prefs/kvstore"
)

// Run a conformance test of the kvstore.Store returned by |newStore|. The
// Store must be empty, and is closed by Run.
func Run(t *testing.T, newStore func(t *testing.T) kvstore.Store) {
	t.Run("get-set-remove", func(t *testing.T) {
		var s = newStore(t)
		defer func() { require.NoError(t, s.Close()) }()
		var ctx = context.Background()

		var _, ok, err = s.Get("missing")
		require.NoError(t, err)
		require.False(t, ok)

		var buf = []byte("one")
		require.NoError(t, s.Set(ctx, "a/one", buf).Err())
		buf[0] = 'X' // Store must not retain |buf|.

		value, ok, err := s.Get("a/one")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "one", string(value))

		// Over-write an existing key.
		require.NoError(t, s.Set(ctx, "a/one", []byte("uno")).Err())
		value, _, _ = s.Get("a/one")
		require.Equal(t, "uno", string(value))

		// Empty values are distinct from missing ones.
		require.NoError(t, s.Set(ctx, "empty", []byte{}).Err())
		value, ok, err = s.Get("empty")
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, value, 0)

		require.NoError(t, s.Remove(ctx, "a/one").Err())
		_, ok, err = s.Get("a/one")
		require.NoError(t, err)
		require.False(t, ok)

		// Removal of a missing key succeeds.
		require.NoError(t, s.Remove(ctx, "a/one").Err())
	})

	t.Run("keys", func(t *testing.T) {
		var s = newStore(t)
		defer func() { require.NoError(t, s.Close()) }()
		var ctx = context.Background()

		require.Empty(t, s.Keys())

		for _, key := range []string{"b", "c/d", "a", "c"} {
			require.NoError(t, s.Set(ctx, key, []byte(key)).Err())
		}
		require.Equal(t, []string{"a", "b", "c", "c/d"}, s.Keys())

		require.NoError(t, s.Remove(ctx, "c").Err())
		require.Equal(t, []string{"a", "b", "c/d"}, s.Keys())
	})

	t.Run("binary-values", func(t *testing.T) {
		var s = newStore(t)
		defer func() { require.NoError(t, s.Close()) }()

		var value = []byte{0x00, 0xff, 0x10, 0x00, 0x80}
		require.NoError(t, s.Set(context.Background(), "bin", value).Err())

		var out, ok, err = s.Get("bin")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, value, out)
	})
}
