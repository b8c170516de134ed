// Package fs implements a kvstore.Store persisted as a JSON file.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.gazette.dev/prefs/async"
	"go.gazette.dev/prefs/kvstore"
)

// StoreQueryArgs contains fields that are parsed from the query arguments
// of a file:// store URL.
type StoreQueryArgs struct {
	// Watch the file for changes made by other processes.
	Watch bool `schema:"watch"`
	// Mode is the octal permission mode of a created file. Default is "0600".
	Mode string `schema:"mode"`
}

// Store is a kvstore.Store which holds all keys in memory, and materializes
// them as a JSON-encoded file that is re-written by every mutation.
// Values are encoded as base64 JSON strings.
type Store struct {
	fs   afero.Fs
	path string
	mode os.FileMode

	mu      sync.RWMutex
	content map[string][]byte
	closed  bool
	notify  func(key string)

	watcher *fsnotify.Watcher
	exitCh  chan struct{}
}

var _ kvstore.Store = &Store{}    // Store is-a kvstore.Store.
var _ kvstore.Reloader = &Store{} // Store is-a kvstore.Reloader.
var _ kvstore.Notifier = &Store{} // Store is-a kvstore.Notifier.

// New builds a Store of the OS filesystem from a file:// URL.
func New(ep *url.URL) (kvstore.Store, error) {
	var args StoreQueryArgs
	if err := kvstore.ParseStoreArgs(ep, &args); err != nil {
		return nil, err
	} else if ep.Path == "" {
		return nil, fmt.Errorf("file store URL %q has no path", ep.String())
	}
	return NewStore(afero.NewOsFs(), filepath.FromSlash(ep.Path), args)
}

// NewStore returns a Store of |path| within |fs|, loading its current
// content if the file exists. A watched Store requires that |fs| be the OS
// filesystem.
func NewStore(fs afero.Fs, path string, args StoreQueryArgs) (*Store, error) {
	var s = &Store{
		fs:      fs,
		path:    filepath.Clean(path),
		mode:    0600,
		content: make(map[string][]byte),
	}
	if args.Mode != "" {
		if m, err := strconv.ParseUint(args.Mode, 8, 32); err != nil {
			return nil, errors.WithMessagef(err, "parsing mode %q", args.Mode)
		} else {
			s.mode = os.FileMode(m)
		}
	}

	var err error
	if s.content, err = s.read(); err != nil {
		return nil, err
	}

	if args.Watch {
		if s.watcher, err = fsnotify.NewWatcher(); err != nil {
			return nil, errors.WithMessage(err, "creating watcher")
		}
		// Watch the directory, rather than the file, as the file is replaced
		// with a rename on every write.
		if err = s.watcher.Add(filepath.Dir(s.path)); err != nil {
			_ = s.watcher.Close()
			return nil, errors.WithMessagef(err, "watching %s", filepath.Dir(s.path))
		}
		s.exitCh = make(chan struct{})
		go s.watch()
	}
	return s, nil
}

func (s *Store) Provider() string { return "file" }

func (s *Store) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, kvstore.ErrClosed
	}
	var value, ok = s.content[key]
	return value, ok, nil
}

func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.content)
}

func (s *Store) Set(_ context.Context, key string, value []byte) async.OpFuture {
	return async.FinishedOperation(s.mutate(key, append([]byte(nil), value...), true))
}

func (s *Store) Remove(_ context.Context, key string) async.OpFuture {
	return async.FinishedOperation(s.mutate(key, nil, false))
}

// Notify registers |fn| to be called with each key changed by a watched
// reload. It's not called for keys mutated through the Store itself.
func (s *Store) Notify(fn func(key string)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// Reload re-reads the file, returning keys whose values changed. A missing
// file is an empty Store.
func (s *Store) Reload(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, kvstore.ErrClosed
	}
	var next, err = s.read()
	if err != nil {
		return nil, err
	}

	var changed []string
	for key, value := range next {
		if prior, ok := s.content[key]; !ok || !bytes.Equal(prior, value) {
			changed = append(changed, key)
		}
	}
	for key := range s.content {
		if _, ok := next[key]; !ok {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)

	s.content = next
	return changed, nil
}

// Close the Store, stopping its watch.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.watcher == nil {
		return nil
	}
	var err = s.watcher.Close()
	<-s.exitCh
	return err
}

// mutate applies a mutation of |key| and persists the result. If the
// mutation cannot be persisted, it's rolled back.
func (s *Store) mutate(key string, value []byte, set bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kvstore.ErrClosed
	}
	var prior, existed = s.content[key]

	if set {
		s.content[key] = value
	} else if !existed {
		return nil // Nothing to remove.
	} else {
		delete(s.content, key)
	}

	if err := s.write(); err != nil {
		if existed {
			s.content[key] = prior
		} else {
			delete(s.content, key)
		}
		return err
	}
	return nil
}

func (s *Store) read() (map[string][]byte, error) {
	var content = make(map[string][]byte)

	var f, err = s.fs.Open(s.path)
	if os.IsNotExist(err) {
		return content, nil
	} else if err != nil {
		return nil, errors.WithMessage(err, "opening store file")
	}
	defer f.Close()

	if err = json.NewDecoder(f).Decode(&content); err == io.EOF {
		return content, nil // Empty file.
	} else if err != nil {
		return nil, errors.WithMessagef(err, "decoding %s", s.path)
	}
	return content, nil
}

// write the complete content to a temporary file, and then atomically move
// it to the Store's path. Readers always observe a complete file.
func (s *Store) write() error {
	var f, err = s.fs.OpenFile(s.nextPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, s.mode)
	if err != nil {
		return errors.WithMessage(err, "creating store file")
	}
	var enc = json.NewEncoder(f)
	enc.SetIndent("", "  ")

	if err = enc.Encode(s.content); err != nil {
		_ = f.Close()
		err = errors.WithMessage(err, "encoding store file")
	} else if err = f.Close(); err != nil {
		err = errors.WithMessage(err, "closing store file")
	} else if err = s.fs.Rename(s.nextPath(), s.path); err != nil {
		err = errors.WithMessage(err, "renaming next => current")
	}
	return err
}

func (s *Store) nextPath() string { return s.path + ".next" }

// watch reloads the Store on each change of its file, and notifies each
// changed key. It runs until the watcher is closed.
func (s *Store) watch() {
	defer close(s.exitCh)

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			} else if filepath.Clean(event.Name) != s.path {
				continue
			} else if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			var changed, err = s.Reload(context.Background())
			if err == kvstore.ErrClosed {
				return
			} else if err != nil {
				// Likely a partial write by another process. Wait for the next event.
				log.WithFields(log.Fields{"path": s.path, "err": err}).
					Warn("failed to reload store file (will retry)")
				continue
			}

			s.mu.RLock()
			var notify = s.notify
			s.mu.RUnlock()

			if len(changed) != 0 {
				log.WithFields(log.Fields{"path": s.path, "keys": changed}).
					Debug("reloaded changed store file")
			}
			for _, key := range changed {
				if notify != nil {
					notify(key)
				}
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.WithFields(log.Fields{"path": s.path, "err": err}).Error("store file watcher error")
		}
	}
}

func sortedKeys(m map[string][]byte) []string {
	var keys = make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
