// Package etcd implements a kvstore.Store of an Etcd key prefix, which is
// mirrored locally and kept current by a long-lived Watch.
package etcd

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.etcd.io/etcd/api/v3/mvccpb"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/mirror"
	"go.gazette.dev/prefs/async"
	"go.gazette.dev/prefs/kvstore"
)

// StoreQueryArgs contains fields that are parsed from the query arguments
// of an etcd:// store URL.
type StoreQueryArgs struct {
	// Endpoints are additional, comma-separated Etcd endpoints.
	Endpoints string `schema:"endpoints"`
	// DialTimeoutSeconds bounds the initial connection. Default is 10.
	DialTimeoutSeconds int `schema:"dialTimeout"`
}

// Store is a kvstore.Store of keys beneath an Etcd prefix. Preference key
// "foo" of a Store having prefix "/app/prefs" is Etcd key "/app/prefs/foo".
//
// Get and Keys are served from a local mirror. Set and Remove resolve after
// Etcd has applied the mutation and the mirror reflects it. Changes of keys
// by other Etcd clients are applied to the mirror and notified.
type Store struct {
	client     *clientv3.Client
	ownsClient bool
	prefix     string

	mu       sync.RWMutex
	values   map[string][]byte
	revision int64         // Etcd revision reflected by |values|.
	updateCh chan struct{} // Closed and replaced on each update.
	notify   func(key string)

	mutations *async.Queue
	cancel    context.CancelFunc
	exitCh    chan struct{}
	closeOnce sync.Once
}

var _ kvstore.Store = &Store{}    // Store is-a kvstore.Store.
var _ kvstore.Notifier = &Store{} // Store is-a kvstore.Notifier.

// New builds a Store from an etcd:// URL, such as
// "etcd://localhost:2379/app/prefs". The Store owns its client.
func New(ep *url.URL) (kvstore.Store, error) {
	var args StoreQueryArgs
	if err := kvstore.ParseStoreArgs(ep, &args); err != nil {
		return nil, err
	} else if ep.Host == "" {
		return nil, fmt.Errorf("etcd store URL %q has no host", ep.String())
	}
	if args.DialTimeoutSeconds == 0 {
		args.DialTimeoutSeconds = 10
	}

	var endpoints = []string{"http://" + ep.Host}
	for _, e := range strings.Split(args.Endpoints, ",") {
		if e = strings.TrimSpace(e); e != "" {
			endpoints = append(endpoints, e)
		}
	}

	var client, err = clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: time.Duration(args.DialTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "building etcd client")
	}

	var prefix = ep.Path
	if prefix == "" {
		prefix = "/"
	}
	var ctx, cancel = context.WithTimeout(context.Background(), time.Duration(args.DialTimeoutSeconds)*time.Second)
	defer cancel()

	store, err := NewStore(ctx, client, prefix)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return store.OwnClient(), nil
}

// NewStore loads the keys of |prefix| and returns a Store which watches for
// their changes. |prefix| must be a clean, absolute path.
func NewStore(ctx context.Context, client *clientv3.Client, prefix string) (*Store, error) {
	if c := path.Clean(prefix); c != prefix || !path.IsAbs(prefix) {
		return nil, fmt.Errorf("expected prefix to be a clean absolute path (%q)", prefix)
	}
	var s = &Store{
		client:    client,
		prefix:    strings.TrimSuffix(prefix, "/") + "/",
		updateCh:  make(chan struct{}),
		mutations: async.NewQueue(64),
		exitCh:    make(chan struct{}),
	}

	var values, rev, err = s.load(ctx, client)
	if err != nil {
		s.mutations.Close()
		return nil, errors.WithMessage(err, "loading etcd prefix")
	}
	s.values, s.revision = values, rev

	var watchCtx context.Context
	watchCtx, s.cancel = context.WithCancel(context.Background())
	go s.watch(watchCtx)

	return s, nil
}

// OwnClient transfers ownership of the Store's client, which is closed
// on Close of the Store.
func (s *Store) OwnClient() *Store {
	s.ownsClient = true
	return s
}

func (s *Store) Provider() string { return "etcd" }

func (s *Store) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value, ok = s.values[key]
	return value, ok, nil
}

func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys = make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) Set(ctx context.Context, key string, value []byte) async.OpFuture {
	var v = string(value)

	return s.submit(func() error {
		var resp, err = s.client.Put(ctx, s.prefix+key, v)
		if err != nil {
			return errors.WithMessagef(err, "putting %q", key)
		}
		return s.WaitForRevision(ctx, resp.Header.Revision)
	})
}

func (s *Store) Remove(ctx context.Context, key string) async.OpFuture {
	return s.submit(func() error {
		var resp, err = s.client.Delete(ctx, s.prefix+key)
		if err != nil {
			return errors.WithMessagef(err, "deleting %q", key)
		}
		return s.WaitForRevision(ctx, resp.Header.Revision)
	})
}

// Notify registers |fn| to be called with each key changed by a watched
// Etcd update. Keys mutated through this Store are also notified, once
// the Store's mirror reflects the mutation.
func (s *Store) Notify(fn func(key string)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// Revision returns the Etcd revision reflected by the Store.
func (s *Store) Revision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// WaitForRevision blocks until the Store reflects at least |revision|,
// or until the context is done.
func (s *Store) WaitForRevision(ctx context.Context, revision int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		} else if s.revision >= revision {
			return nil
		}
		var ch = s.updateCh

		s.mu.RUnlock()
		select {
		case <-ch:
		case <-ctx.Done():
		}
		s.mu.RLock()
	}
}

// Close stops the watch of the Store, after completing pending mutations.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mutations.Close()
		s.cancel()
		<-s.exitCh

		if s.ownsClient {
			err = s.client.Close()
		}
	})
	return err
}

func (s *Store) submit(fn func() error) async.OpFuture {
	var op = s.mutations.Submit(fn)
	if async.IsDone(op) && op.Err() == async.ErrQueueClosed {
		return async.FinishedOperation(kvstore.ErrClosed)
	}
	return op
}

// load a snapshot of the prefix at a current revision.
func (s *Store) load(ctx context.Context, client *clientv3.Client) (map[string][]byte, int64, error) {
	// Resolve a current revision, as SyncBase doesn't surface the one it uses.
	var resp, err = client.Get(ctx, s.prefix+"\x00never-a-key")
	if err != nil {
		return nil, 0, err
	}
	var rev = resp.Header.Revision
	var values = make(map[string][]byte)

	var respCh, errCh = mirror.NewSyncer(client, s.prefix, rev).SyncBase(ctx)

	// Read messages across |respCh| and |errCh| until both are closed.
	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil // Finished draining |respCh|.
				continue
			}
			for _, kv := range resp.Kvs {
				values[strings.TrimPrefix(string(kv.Key), s.prefix)] = kv.Value
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil // Finished draining |errCh|.
			} else {
				return nil, 0, err
			}
		}
	}
	return values, rev, nil
}

// watch applies updates of the prefix until |ctx| is cancelled. On a
// non-retryable watch error, the Store is re-loaded and the watch restarted.
func (s *Store) watch(ctx context.Context) {
	defer close(s.exitCh)

	var watchCh clientv3.WatchChan

	for attempt := 0; true; attempt++ {
		if watchCh == nil {
			// Require a leader, so that a watched Etcd partitioned from its
			// majority aborts the watch and we retry against another member.
			// Progress notifications keep the watched revision from being
			// compacted away over long periods without changes.
			watchCh = s.client.Watch(clientv3.WithRequireLeader(ctx), s.prefix,
				clientv3.WithPrefix(),
				clientv3.WithProgressNotify(),
				clientv3.WithRev(s.Revision()+1),
			)
		}

		var resp, ok = <-watchCh
		if !ok || ctx.Err() != nil {
			return // Watch contract implies the context is cancelled.
		}

		var err = resp.Err()
		if err == nil {
			if !resp.IsProgressNotify() {
				s.apply(resp)
			}
			attempt = 0
			continue
		}
		watchCh = nil

		if err == rpctypes.ErrNoLeader {
			log.WithFields(log.Fields{"err": err, "attempt": attempt}).
				Warn("watch failed (will retry)")
		} else {
			// Likely the watched revision was compacted. Re-load from the
			// current revision and notify of keys which changed meanwhile.
			log.WithFields(log.Fields{"err": err, "attempt": attempt, "prefix": s.prefix}).
				Warn("watch failed (will re-load)")

			if err = s.reload(ctx); err != nil && ctx.Err() == nil {
				log.WithFields(log.Fields{"err": err, "attempt": attempt}).
					Error("failed to re-load etcd prefix (will retry)")
			}
		}

		select {
		case <-time.After(backoff(attempt)): // Pass.
		case <-ctx.Done():
			return
		}
	}
}

// apply a WatchResponse to the mirror, and notify each changed key.
func (s *Store) apply(resp clientv3.WatchResponse) {
	var changed []string

	s.mu.Lock()
	for _, ev := range resp.Events {
		var key = strings.TrimPrefix(string(ev.Kv.Key), s.prefix)
		var prior, existed = s.values[key]

		switch ev.Type {
		case mvccpb.PUT:
			s.values[key] = ev.Kv.Value
			if !existed || !bytes.Equal(prior, ev.Kv.Value) {
				changed = append(changed, key)
			}
		case mvccpb.DELETE:
			delete(s.values, key)
			if existed {
				changed = append(changed, key)
			}
		}
	}
	if resp.Header.Revision > s.revision {
		s.revision = resp.Header.Revision
	}
	var notify = s.notify
	s.onUpdate()
	s.mu.Unlock()

	for _, key := range changed {
		if notify != nil {
			notify(key)
		}
	}
}

// reload the mirror from a current revision, and notify each changed key.
func (s *Store) reload(ctx context.Context) error {
	var values, rev, err = s.load(ctx, s.client)
	if err != nil {
		return err
	}
	var changed []string

	s.mu.Lock()
	for key, value := range values {
		if prior, ok := s.values[key]; !ok || !bytes.Equal(prior, value) {
			changed = append(changed, key)
		}
	}
	for key := range s.values {
		if _, ok := values[key]; !ok {
			changed = append(changed, key)
		}
	}
	s.values, s.revision = values, rev
	var notify = s.notify
	s.onUpdate()
	s.mu.Unlock()

	sort.Strings(changed)
	for _, key := range changed {
		if notify != nil {
			notify(key)
		}
	}
	return nil
}

// onUpdate wakes WaitForRevision callers. |mu| must be held.
func (s *Store) onUpdate() {
	close(s.updateCh)
	s.updateCh = make(chan struct{})
}

func backoff(attempt int) time.Duration {
	switch attempt {
	case 0, 1:
		return 0
	case 2:
		return time.Millisecond * 5
	case 3, 4, 5:
		return time.Second * time.Duration(attempt-1)
	default:
		return 5 * time.Second
	}
}
