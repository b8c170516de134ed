package prefs

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.gazette.dev/prefs/async"
	"go.gazette.dev/prefs/kvstore"
)

func TestKeysPreferenceTracksAllKeys(t *testing.T) {
	var ctx = context.Background()
	var p = New(kvstore.NewMemoryStore(nil))

	var keys = p.Keys()
	assert.Equal(t, []string{}, keys.Value())

	var sub = keys.Subscribe()
	defer sub.Cancel()
	assert.Equal(t, []string{}, recv(t, sub))

	require.NoError(t, p.String("b", "").Write(ctx, "1").Err())
	assert.Equal(t, []string{"b"}, recv(t, sub))
	require.NoError(t, p.Int("a", 0).Write(ctx, 2).Err())
	assert.Equal(t, []string{"a", "b"}, recv(t, sub))

	// Re-writing an existing key doesn't change the key set.
	require.NoError(t, p.String("b", "").Write(ctx, "3").Err())
	require.NoError(t, p.Remove(ctx, "a").Err())
	assert.Equal(t, []string{"b"}, recv(t, sub))
}

func TestClearRemovesEveryKey(t *testing.T) {
	var ctx = context.Background()
	var p = New(kvstore.NewMemoryStore(nil))

	var a, b = p.String("a", "A"), p.String("b", "B")
	require.NoError(t, a.Write(ctx, "x").Err())
	require.NoError(t, b.Write(ctx, "y").Err())

	var subA, subB = a.Subscribe(), b.Subscribe()
	defer subA.Cancel()
	defer subB.Cancel()
	assert.Equal(t, "x", recv(t, subA))
	assert.Equal(t, "y", recv(t, subB))

	require.NoError(t, p.Clear(ctx).Err())
	assert.Equal(t, "A", recv(t, subA))
	assert.Equal(t, "B", recv(t, subB))
	assert.Empty(t, p.Store().Keys())

	// Clearing an empty Store is a no-op.
	require.NoError(t, p.Clear(ctx).Err())
}

func TestClearReturnsFirstError(t *testing.T) {
	var mem = kvstore.NewMemoryStore(nil)
	var store = kvstore.Delegate(mem)
	store.RemoveFunc = func(ctx context.Context, key string) async.OpFuture {
		if key == "b" {
			return async.FinishedOperation(errors.New("locked"))
		}
		return mem.Remove(ctx, key)
	}
	var ctx = context.Background()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, mem.Set(ctx, k, []byte(k)).Err())
	}

	var p = New(store)
	assert.EqualError(t, p.Clear(ctx).Err(), "locked")
	assert.Equal(t, []string{"b"}, mem.Keys())
}

func TestExternalChangesAreObserved(t *testing.T) {
	var store = &notifyingStore{MemoryStore: kvstore.NewMemoryStore(nil)}
	var p = New(store)
	require.NotNil(t, store.notify)

	var sub = p.String("theme", "light").Subscribe()
	defer sub.Cancel()
	assert.Equal(t, "light", recv(t, sub))

	// Another process modifies the backing medium.
	require.NoError(t, store.MemoryStore.Set(context.Background(), "theme", []byte("dark")).Err())
	store.notify("theme")
	assert.Equal(t, "dark", recv(t, sub))
}

func TestReloadPublishesChangedKeys(t *testing.T) {
	var store = &notifyingStore{MemoryStore: kvstore.NewMemoryStore(nil)}
	store.reload = func(context.Context) ([]string, error) {
		return []string{"n"}, errors.New("partial")
	}
	var p = New(store)

	var sub = p.Int("n", 0).Subscribe()
	defer sub.Cancel()
	assert.Equal(t, int64(0), recv(t, sub))

	require.NoError(t, IntAdapter().Set(context.Background(), store.MemoryStore, "n", 12).Err())
	assert.EqualError(t, p.Reload(context.Background()), "reloading store: partial")
	assert.Equal(t, int64(12), recv(t, sub))

	// Stores which aren't Reloaders reload trivially.
	assert.NoError(t, New(kvstore.NewMemoryStore(nil)).Reload(context.Background()))
}

func TestCloseClosesStore(t *testing.T) {
	var closed bool
	var p = New(&kvstore.CallbackStore{CloseFunc: func() error { closed = true; return nil }})

	assert.NoError(t, p.Close())
	assert.True(t, closed)
}

func TestTypedConstructors(t *testing.T) {
	var p = New(kvstore.NewMemoryStore(nil))

	assert.Equal(t, true, p.Bool("b", true).Value())
	assert.Equal(t, 1.5, p.Float("f", 1.5).Value())
	assert.Equal(t, []byte("x"), p.Bytes("y", []byte("x")).Value())
	assert.Equal(t, []string{"s"}, p.StringSet("ss", []string{"s"}).Value())
	assert.Equal(t, []string{"l"}, p.StringList("sl", []string{"l"}).Value())
	assert.True(t, p.Time("t", testEpoch).Value().Equal(testEpoch))
}

type notifyingStore struct {
	*kvstore.MemoryStore
	notify func(key string)
	reload func(context.Context) ([]string, error)
}

func (s *notifyingStore) Notify(fn func(key string)) { s.notify = fn }

func (s *notifyingStore) Reload(ctx context.Context) ([]string, error) { return s.reload(ctx) }
