// Package sqlstore implements a kvstore.Store of a SQL database table,
// having SQLite and Postgres dialects.
package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"sync"

	"github.com/hashicorp/golang-lru"
	_ "github.com/lib/pq"           // Registers "postgres" driver.
	_ "github.com/mattn/go-sqlite3" // Registers "sqlite3" driver.
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.gazette.dev/prefs/async"
	"go.gazette.dev/prefs/kvstore"
)

// StoreQueryArgs contains fields that are parsed from the query arguments
// of sqlite:// and postgres:// store URLs.
type StoreQueryArgs struct {
	// Table holding preferences. Default is "prefs".
	Table string `schema:"table"`
	// Cache is the number of values cached in memory. Default is 1024.
	Cache int `schema:"cache"`
}

// Dialect captures differences of supported SQL databases.
type Dialect struct {
	// Provider name of the dialect, as returned by Store.Provider.
	Provider string
	// BlobType is the column type of binary values.
	BlobType string
}

var (
	// SQLite is the Dialect of github.com/mattn/go-sqlite3.
	SQLite = Dialect{Provider: "sqlite", BlobType: "BLOB"}
	// Postgres is the Dialect of github.com/lib/pq.
	Postgres = Dialect{Provider: "postgres", BlobType: "BYTEA"}
)

// Store is a kvstore.Store of a table of a SQL database, having schema:
//
//	CREATE TABLE prefs (
//	  key   TEXT PRIMARY KEY NOT NULL,
//	  value BLOB NOT NULL
//	);
//
// The table is created if it doesn't exist. Reads are served from a cache of
// recently accessed values (including missing ones), and fall through to
// the database on a miss. Mutations are applied in the order they're issued
// by a single goroutine, which updates the cache after each.
type Store struct {
	DB *sql.DB

	dialect Dialect
	qGet    string
	qKeys   string
	qUpsert string
	qDelete string

	// mu excludes mutations of the cache from database reads which fill it,
	// so that a concurrent fill never caches a superseded value.
	mu    sync.RWMutex
	cache *lru.Cache

	mutations *async.Queue
	closeOnce sync.Once
	closeErr  error
}

// cached is a cache entry of a key's value, or its absence.
type cached struct {
	value []byte
	ok    bool
}

var _ kvstore.Store = &Store{}    // Store is-a kvstore.Store.
var _ kvstore.Reloader = &Store{} // Store is-a kvstore.Reloader.

var tableRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewSQLite builds a Store of a SQLite database from a sqlite:// URL,
// such as "sqlite:///var/lib/app/prefs.db?table=settings".
func NewSQLite(ep *url.URL) (kvstore.Store, error) {
	var args StoreQueryArgs
	if err := kvstore.ParseStoreArgs(ep, &args); err != nil {
		return nil, err
	} else if ep.Path == "" {
		return nil, fmt.Errorf("sqlite store URL %q has no path", ep.String())
	}

	var db, err = sql.Open("sqlite3", ep.Path)
	if err != nil {
		return nil, errors.WithMessage(err, "opening sqlite database")
	}
	// A single connection avoids SQLITE_BUSY errors of concurrent writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err = db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.WithMessagef(err, "executing %q", pragma)
		}
	}

	store, err := NewStore(db, SQLite, args)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgres builds a Store of a Postgres database from a postgres:// URL,
// such as "postgres://user@host/db?sslmode=disable&table=settings".
// Arguments other than those of StoreQueryArgs are passed to the driver.
func NewPostgres(ep *url.URL) (kvstore.Store, error) {
	var q, err = url.ParseQuery(ep.RawQuery)
	if err != nil {
		return nil, err
	}

	// Split our own arguments from those of the driver.
	var ours, dsn = url.Values{}, *ep
	for _, name := range []string{"table", "cache"} {
		if v, ok := q[name]; ok {
			ours[name] = v
			delete(q, name)
		}
	}
	dsn.RawQuery = q.Encode()

	var args StoreQueryArgs
	if err = kvstore.ParseStoreArgs(&url.URL{RawQuery: ours.Encode()}, &args); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn.String())
	if err != nil {
		return nil, errors.WithMessage(err, "opening postgres database")
	}
	store, err := NewStore(db, Postgres, args)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore returns a Store of the |db| having |dialect|, creating its table
// if required. The Store takes ownership of |db|, and closes it on Close.
func NewStore(db *sql.DB, dialect Dialect, args StoreQueryArgs) (*Store, error) {
	if args.Table == "" {
		args.Table = "prefs"
	}
	if args.Cache == 0 {
		args.Cache = 1024
	}

	if !tableRe.MatchString(args.Table) {
		return nil, fmt.Errorf("invalid table name %q", args.Table)
	} else if args.Cache < 0 {
		return nil, fmt.Errorf("invalid cache size %d", args.Cache)
	}

	if _, err := db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key   TEXT PRIMARY KEY NOT NULL,
			value %s NOT NULL
		);`, args.Table, dialect.BlobType)); err != nil {
		return nil, errors.WithMessagef(err, "creating table %s", args.Table)
	}

	var cache, err = lru.New(args.Cache)
	if err != nil {
		panic(err.Error()) // Only errors on size <= 0.
	}

	var s = &Store{
		DB:        db,
		dialect:   dialect,
		qGet:      fmt.Sprintf("SELECT value FROM %s WHERE key = $1;", args.Table),
		qKeys:     fmt.Sprintf("SELECT key FROM %s;", args.Table),
		qUpsert:   fmt.Sprintf("INSERT INTO %s (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = excluded.value;", args.Table),
		qDelete:   fmt.Sprintf("DELETE FROM %s WHERE key = $1;", args.Table),
		cache:     cache,
		mutations: async.NewQueue(128),
	}
	return s, nil
}

func (s *Store) Provider() string { return s.dialect.Provider }

func (s *Store) Get(key string) ([]byte, bool, error) {
	if c, ok := s.cache.Get(key); ok {
		return c.(cached).value, c.(cached).ok, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var c, err = s.query(key)
	if err != nil {
		return nil, false, err
	}
	s.cache.Add(key, c)

	return c.value, c.ok, nil
}

// Keys of the table, in ascending byte order regardless of database collation.
// Keys logs and returns nil if the database cannot be queried.
func (s *Store) Keys() []string {
	var keys, err = s.keys()
	if err != nil {
		log.WithFields(log.Fields{"provider": s.dialect.Provider, "err": err}).
			Error("failed to list store keys")
		return nil
	}
	return keys
}

func (s *Store) Set(ctx context.Context, key string, value []byte) async.OpFuture {
	// Copy into a non-nil slice: nil binds as NULL.
	var v = make([]byte, len(value))
	copy(v, value)

	return s.submit(func() error { return s.apply(ctx, key, v, true) })
}

func (s *Store) Remove(ctx context.Context, key string) async.OpFuture {
	return s.submit(func() error { return s.apply(ctx, key, nil, false) })
}

// Reload discards cached values, returning the previously cached keys whose
// values were changed in the database by other clients. If the database
// cannot be queried, Reload returns the changed keys found thus far together
// with the keys it was unable to verify, and an error.
func (s *Store) Reload(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prior = make(map[string]cached)
	for _, k := range s.cache.Keys() {
		if c, ok := s.cache.Peek(k); ok {
			prior[k.(string)] = c.(cached)
		}
	}
	s.cache.Purge()

	return diffCached(prior, s.query)
}

// diffCached returns the sorted keys of |prior| whose values, as returned by
// |query|, differ from those cached. Upon a |query| error, the failed key and
// all keys not yet queried are returned as changed: they are no longer cached,
// and may have changed.
func diffCached(prior map[string]cached, query func(string) (cached, error)) ([]string, error) {
	var keys = make([]string, 0, len(prior))
	for key := range prior {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var changed []string
	for i, key := range keys {
		var c, err = query(key)
		if err != nil {
			changed = append(changed, keys[i:]...)
			sort.Strings(changed)
			return changed, err
		}
		if p := prior[key]; c.ok != p.ok || !bytes.Equal(c.value, p.value) {
			changed = append(changed, key)
		}
	}
	return changed, nil
}

// Close the Store, waiting for queued mutations to complete before closing
// its database.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.mutations.Close()
		s.closeErr = s.DB.Close()
	})
	return s.closeErr
}

func (s *Store) submit(fn func() error) async.OpFuture {
	var op = s.mutations.Submit(fn)
	if async.IsDone(op) && op.Err() == async.ErrQueueClosed {
		return async.FinishedOperation(kvstore.ErrClosed)
	}
	return op
}

// apply a Set (if |set|) or Remove of |key|. It's called only by |mutations|.
func (s *Store) apply(ctx context.Context, key string, value []byte, set bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if set {
		_, err = s.DB.ExecContext(ctx, s.qUpsert, key, value)
	} else {
		_, err = s.DB.ExecContext(ctx, s.qDelete, key)
	}

	if err != nil {
		// The outcome is uncertain. Force a re-read.
		s.cache.Remove(key)
		return errors.WithMessagef(err, "applying mutation of %q", key)
	}
	s.cache.Add(key, cached{value: value, ok: set})
	return nil
}

func (s *Store) query(key string) (cached, error) {
	var c = cached{ok: true}

	var err = s.DB.QueryRow(s.qGet, key).Scan(&c.value)
	if err == sql.ErrNoRows {
		return cached{}, nil
	} else if err != nil {
		return cached{}, errors.WithMessagef(err, "querying %q", key)
	}
	return c, nil
}

func (s *Store) keys() ([]string, error) {
	var rows, err = s.DB.Query(s.qKeys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err = rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)

	return keys, nil
}
