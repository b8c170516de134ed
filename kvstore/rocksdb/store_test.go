package rocksdb

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.gazette.dev/prefs/kvstore"
	"go.gazette.dev/prefs/kvstore/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) kvstore.Store {
		var s, err = Open(t.TempDir(), StoreQueryArgs{})
		require.NoError(t, err)
		return s
	})
}

func TestValuesSurviveReopen(t *testing.T) {
	var dir, ctx = t.TempDir(), context.Background()

	var s, err = New(&url.URL{Scheme: "rocksdb", Path: dir, RawQuery: "sync=true"})
	require.NoError(t, err)
	assert.Equal(t, "rocksdb", s.Provider())

	require.NoError(t, s.Set(ctx, "b", []byte("2")).Err())
	require.NoError(t, s.Set(ctx, "a", []byte{}).Err())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, _, err = s.Get("a")
	assert.Equal(t, kvstore.ErrClosed, err)
	assert.Equal(t, kvstore.ErrClosed, s.Remove(ctx, "a").Err())

	s, err = New(&url.URL{Scheme: "rocksdb", Path: dir})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []string{"a", "b"}, s.Keys())
	value, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, value, 0)
}

func TestValueEncoding(t *testing.T) {
	var value, ok, err = decodeValue(encodeValue([]byte("hi")))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hi", string(value))

	_, _, err = decodeValue([]byte{})
	assert.EqualError(t, err, "unexpected value encoding ")
	_, _, err = decodeValue([]byte{0x02, 0x03})
	assert.EqualError(t, err, "unexpected value encoding 0203")
}

func TestURLValidation(t *testing.T) {
	var _, err = New(&url.URL{Scheme: "rocksdb"})
	assert.Error(t, err)
	_, err = New(&url.URL{Scheme: "rocksdb", Path: t.TempDir(), RawQuery: "bogus=1"})
	assert.Error(t, err)
}
