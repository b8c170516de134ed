package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.gazette.dev/prefs/async"
	"go.gazette.dev/prefs/kvstore"
	"go.gazette.dev/prefs/kvstore/storetest"
)

func TestSQLiteConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) kvstore.Store { return newSQLite(t, sqliteURL(t, "")) })
}

func TestSQLiteConformanceWithTinyCache(t *testing.T) {
	storetest.Run(t, func(t *testing.T) kvstore.Store { return newSQLite(t, sqliteURL(t, "cache=1")) })
}

func TestMutationsApplyInOrder(t *testing.T) {
	var s = newSQLite(t, sqliteURL(t, ""))
	defer s.Close()
	var ctx = context.Background()

	var ops []async.OpFuture
	for i := 0; i != 100; i++ {
		ops = append(ops, s.Set(ctx, "counter", []byte(fmt.Sprint(i))))
		if i%10 == 0 {
			ops = append(ops, s.Remove(ctx, "counter"))
		}
	}
	require.NoError(t, async.All(ops...).Err())

	var value, ok, err = s.Get("counter")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "99", string(value))
}

func TestValuesSurviveReopen(t *testing.T) {
	var ep = sqliteURL(t, "table=settings")
	var ctx = context.Background()

	var s = newSQLite(t, ep)
	require.NoError(t, s.Set(ctx, "a", []byte("1")).Err())
	require.NoError(t, s.Set(ctx, "b", []byte("2")).Err())
	require.NoError(t, s.Close())

	s = newSQLite(t, ep)
	defer s.Close()
	assert.Equal(t, []string{"a", "b"}, s.Keys())

	value, _, _ := s.Get("b")
	assert.Equal(t, "2", string(value))
}

func TestReloadReportsChangesOfOtherClients(t *testing.T) {
	var ep = sqliteURL(t, "")
	var ctx = context.Background()

	var s = newSQLite(t, ep)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "same", []byte("x")).Err())
	require.NoError(t, s.Set(ctx, "edit", []byte("x")).Err())
	require.NoError(t, s.Set(ctx, "drop", []byte("x")).Err())
	var _, ok, _ = s.Get("add") // Cached as missing.
	require.False(t, ok)

	var other = newSQLite(t, ep)
	require.NoError(t, other.Set(ctx, "edit", []byte("y")).Err())
	require.NoError(t, other.Remove(ctx, "drop").Err())
	require.NoError(t, other.Set(ctx, "add", []byte("z")).Err())
	require.NoError(t, other.Set(ctx, "uncached", []byte("z")).Err())
	require.NoError(t, other.Close())

	// Cached values are stale until reloaded.
	value, _, _ := s.Get("edit")
	assert.Equal(t, "x", string(value))

	changed, err := s.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"add", "drop", "edit"}, changed)

	value, _, _ = s.Get("edit")
	assert.Equal(t, "y", string(value))
	assert.Equal(t, []string{"add", "edit", "same", "uncached"}, s.Keys())
}

func TestReloadReportsPartialChangesOnError(t *testing.T) {
	var prior = map[string]cached{
		"a": {value: []byte("x"), ok: true},
		"b": {value: []byte("x"), ok: true},
		"c": {value: []byte("x"), ok: true},
		"d": {},
		"e": {value: []byte("x"), ok: true},
	}
	var current = map[string]cached{
		"a": {value: []byte("y"), ok: true}, // Changed.
		"b": {value: []byte("x"), ok: true}, // Unchanged.
		"c": {value: []byte("x"), ok: true}, // Unchanged, but queried after the failure.
	}
	var queried []string

	var changed, err = diffCached(prior, func(key string) (cached, error) {
		queried = append(queried, key)
		if key == "c" {
			return cached{}, errors.New("connection reset")
		}
		return current[key], nil
	})
	assert.EqualError(t, err, "connection reset")
	assert.Equal(t, []string{"a", "b", "c"}, queried)
	assert.Equal(t, []string{"a", "c", "d", "e"}, changed)

	// Without errors, only differing keys are changed.
	current["c"] = cached{value: []byte("x"), ok: true}
	changed, err = diffCached(prior, func(key string) (cached, error) { return current[key], nil })
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "e"}, changed)
}

func TestReloadOfUnqueryableDatabase(t *testing.T) {
	var ctx = context.Background()
	var s = newSQLite(t, sqliteURL(t, ""))
	defer s.Close()

	require.NoError(t, s.Set(ctx, "one", []byte("1")).Err())
	require.NoError(t, s.Set(ctx, "two", []byte("2")).Err())

	var _, err = s.DB.Exec("DROP TABLE prefs")
	require.NoError(t, err)

	changed, err := s.Reload(ctx)
	assert.Error(t, err)
	assert.Equal(t, []string{"one", "two"}, changed)
}

func TestOperationsOfClosedStore(t *testing.T) {
	var s = newSQLite(t, sqliteURL(t, ""))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, kvstore.ErrClosed, s.Set(context.Background(), "a", nil).Err())
	assert.Equal(t, kvstore.ErrClosed, s.Remove(context.Background(), "a").Err())
	assert.Nil(t, s.Keys())
}

func TestSQLiteURLValidation(t *testing.T) {
	var dir = t.TempDir()

	for _, tc := range []struct {
		query, err string
	}{
		{"table=drop%20table", `invalid table name "drop table"`},
		{"cache=-1", "invalid cache size -1"},
		{"bogus=1", ""},
	} {
		var _, err = NewSQLite(&url.URL{Scheme: "sqlite", Path: filepath.Join(dir, "x.db"), RawQuery: tc.query})
		if tc.err != "" {
			assert.EqualError(t, err, tc.err)
		} else {
			assert.Error(t, err)
		}
	}

	var _, err = NewSQLite(&url.URL{Scheme: "sqlite"})
	assert.Error(t, err)
}

func TestPostgresConformance(t *testing.T) {
	var raw = os.Getenv("PREFS_TEST_POSTGRES_URL")
	if raw == "" {
		t.Skip("PREFS_TEST_POSTGRES_URL is not set")
	}
	var n int

	storetest.Run(t, func(t *testing.T) kvstore.Store {
		n++
		var ep, err = url.Parse(raw)
		require.NoError(t, err)

		var q = ep.Query()
		q.Set("table", fmt.Sprintf("prefs_test_%d", n))
		ep.RawQuery = q.Encode()

		s, err := NewPostgres(ep)
		require.NoError(t, err)
		_, err = s.(*Store).DB.Exec(fmt.Sprintf("TRUNCATE prefs_test_%d;", n))
		require.NoError(t, err)
		assert.Equal(t, "postgres", s.Provider())

		return s
	})
}

func sqliteURL(t *testing.T, query string) *url.URL {
	return &url.URL{Scheme: "sqlite", Path: filepath.Join(t.TempDir(), "prefs.db"), RawQuery: query}
}

func newSQLite(t *testing.T, ep *url.URL) *Store {
	var s, err = NewSQLite(ep)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.Provider())
	return s.(*Store)
}
