package etcd

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.gazette.dev/prefs/etcdtest"
	"go.gazette.dev/prefs/kvstore"
	"go.gazette.dev/prefs/kvstore/storetest"
)

func TestStoreConformance(t *testing.T) {
	var client = etcdtest.TestClient(t)
	var n int

	storetest.Run(t, func(t *testing.T) kvstore.Store {
		n++
		var s, err = NewStore(context.Background(), client, fmt.Sprintf("/conformance/%d", n))
		require.NoError(t, err)
		return s
	})
}

func TestLoadsExistingKeysOfPrefix(t *testing.T) {
	var client = etcdtest.TestClient(t)
	var ctx = context.Background()

	for k, v := range map[string]string{
		"/app/prefs/one":        "1",
		"/app/prefs/nested/two": "2",
		"/app/prefsx/other":     "x", // Not beneath the prefix.
		"/app/other":            "x",
	} {
		var _, err = client.Put(ctx, k, v)
		require.NoError(t, err)
	}

	var s, err = NewStore(ctx, client, "/app/prefs")
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []string{"nested/two", "one"}, s.Keys())
	value, ok, err := s.Get("nested/two")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", string(value))
	assert.Equal(t, "etcd", s.Provider())
}

func TestMutationsAreVisibleOnResolution(t *testing.T) {
	var client = etcdtest.TestClient(t)
	var ctx = context.Background()

	var s, err = NewStore(ctx, client, "/prefs")
	require.NoError(t, err)
	defer s.Close()

	var op = s.Set(ctx, "k", []byte("v"))
	require.NoError(t, op.Err())
	value, ok, _ := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", string(value))

	resp, err := client.Get(ctx, "/prefs/k")
	require.NoError(t, err)
	require.Len(t, resp.Kvs, 1)
	assert.Equal(t, "v", string(resp.Kvs[0].Value))
	assert.True(t, s.Revision() >= resp.Header.Revision)

	require.NoError(t, s.Remove(ctx, "k").Err())
	_, ok, _ = s.Get("k")
	assert.False(t, ok)
}

func TestExternalChangesAreNotified(t *testing.T) {
	var client = etcdtest.TestClient(t)
	var ctx = context.Background()

	var s, err = NewStore(ctx, client, "/prefs")
	require.NoError(t, err)
	defer s.Close()

	var notified = make(chan string, 16)
	s.Notify(func(key string) { notified <- key })

	// Another client modifies keys of (and outside of) the prefix.
	_, err = client.Put(ctx, "/elsewhere", "x")
	require.NoError(t, err)
	_, err = client.Put(ctx, "/prefs/theme", "dark")
	require.NoError(t, err)

	assert.Equal(t, "theme", expectNotified(t, notified))
	value, _, _ := s.Get("theme")
	assert.Equal(t, "dark", string(value))

	// Re-putting the same value isn't a change.
	_, err = client.Put(ctx, "/prefs/theme", "dark")
	require.NoError(t, err)
	_, err = client.Delete(ctx, "/prefs/theme")
	require.NoError(t, err)

	assert.Equal(t, "theme", expectNotified(t, notified))
	_, ok, _ := s.Get("theme")
	assert.False(t, ok)

	select {
	case key := <-notified:
		t.Fatalf("unexpected notification of %q", key)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClosedStoreRejectsMutations(t *testing.T) {
	var client = etcdtest.TestClient(t)

	var s, err = NewStore(context.Background(), client, "/prefs")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, kvstore.ErrClosed, s.Set(context.Background(), "k", nil).Err())
}

func TestInvalidPrefixesAndURLs(t *testing.T) {
	for _, prefix := range []string{"relative", "/trailing/", "/un//clean"} {
		var _, err = NewStore(context.Background(), nil, prefix)
		assert.Error(t, err, prefix)
	}

	var _, err = New(&url.URL{Scheme: "etcd", Path: "/prefs"})
	assert.EqualError(t, err, `etcd store URL "etcd:///prefs" has no host`)
	_, err = New(&url.URL{Scheme: "etcd", Host: "localhost:2379", RawQuery: "bogus=1"})
	assert.Error(t, err)
}

func expectNotified(t *testing.T, ch <-chan string) string {
	t.Helper()

	select {
	case key := <-ch:
		return key
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
	panic("not reached")
}

func TestMain(m *testing.M) { etcdtest.TestMainWithEtcd(m) }
