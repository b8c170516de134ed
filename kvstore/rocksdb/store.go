// Package rocksdb implements a kvstore.Store of an embedded RocksDB database.
package rocksdb

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	rocks "github.com/jgraettinger/gorocksdb"
	"github.com/pkg/errors"
	"go.gazette.dev/prefs/async"
	"go.gazette.dev/prefs/kvstore"
)

// StoreQueryArgs contains fields that are parsed from the query arguments
// of a rocksdb:// store URL.
type StoreQueryArgs struct {
	// Sync each mutation to disk before it resolves.
	Sync bool `schema:"sync"`
}

// Store is a kvstore.Store of a RocksDB database directory. Mutations are
// written synchronously, and are resolved upon return.
type Store struct {
	DB           *rocks.DB
	Options      *rocks.Options
	ReadOptions  *rocks.ReadOptions
	WriteOptions *rocks.WriteOptions

	mu     sync.RWMutex // Excludes Close from other operations.
	closed bool
}

var _ kvstore.Store = &Store{} // Store is-a kvstore.Store.

// New builds a Store from a rocksdb:// URL, such as "rocksdb:///var/lib/app/prefs".
func New(ep *url.URL) (kvstore.Store, error) {
	var args StoreQueryArgs
	if err := kvstore.ParseStoreArgs(ep, &args); err != nil {
		return nil, err
	} else if ep.Path == "" {
		return nil, fmt.Errorf("rocksdb store URL %q has no path", ep.String())
	}
	return Open(ep.Path, args)
}

// Open the RocksDB database of |dir|, creating it if it doesn't exist.
func Open(dir string, args StoreQueryArgs) (*Store, error) {
	var s = &Store{
		Options:      rocks.NewDefaultOptions(),
		ReadOptions:  rocks.NewDefaultReadOptions(),
		WriteOptions: rocks.NewDefaultWriteOptions(),
	}
	s.Options.SetCreateIfMissing(true)
	s.WriteOptions.SetSync(args.Sync)

	var err error
	if s.DB, err = rocks.OpenDb(s.Options, dir); err != nil {
		s.destroyOptions()
		return nil, errors.WithMessagef(err, "opening rocksdb %s", dir)
	}
	return s, nil
}

func (s *Store) Provider() string { return "rocksdb" }

func (s *Store) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, kvstore.ErrClosed
	}
	var slice, err = s.DB.Get(s.ReadOptions, []byte(key))
	if err != nil {
		return nil, false, errors.WithMessagef(err, "getting %q", key)
	}
	defer slice.Free()

	if !slice.Exists() {
		return nil, false, nil
	}
	return decodeValue(slice.Data())
}

func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}
	var it = s.DB.NewIterator(s.ReadOptions)
	defer it.Close()

	var keys []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		var key = it.Key()
		keys = append(keys, string(key.Data()))
		key.Free()
	}
	return keys
}

func (s *Store) Set(_ context.Context, key string, value []byte) async.OpFuture {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return async.FinishedOperation(kvstore.ErrClosed)
	}
	return async.FinishedOperation(errors.WithMessagef(
		s.DB.Put(s.WriteOptions, []byte(key), encodeValue(value)), "putting %q", key))
}

func (s *Store) Remove(_ context.Context, key string) async.OpFuture {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return async.FinishedOperation(kvstore.ErrClosed)
	}
	return async.FinishedOperation(errors.WithMessagef(
		s.DB.Delete(s.WriteOptions, []byte(key)), "deleting %q", key))
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.DB.Close()
		s.destroyOptions()
	}
	return nil
}

func (s *Store) destroyOptions() {
	s.Options.Destroy()
	s.ReadOptions.Destroy()
	s.WriteOptions.Destroy()
}

// Values are stored with a leading version byte, which also distinguishes
// an empty value from a missing one.
const valueVersion = 0x01

func encodeValue(value []byte) []byte {
	return append([]byte{valueVersion}, value...)
}

func decodeValue(b []byte) ([]byte, bool, error) {
	if len(b) == 0 || b[0] != valueVersion {
		return nil, false, fmt.Errorf("unexpected value encoding %x", b)
	}
	return append([]byte(nil), b[1:]...), true, nil
}
