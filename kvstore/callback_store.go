package kvstore

import (
	"context"

	"go.gazette.dev/prefs/async"
)

// CallbackStore implements Store for testing with customizable behavior.
// It allows tests to provide callback functions for each Store method.
type CallbackStore struct {
	ProviderFunc func() string
	GetFunc      func(key string) ([]byte, bool, error)
	KeysFunc     func() []string
	SetFunc      func(ctx context.Context, key string, value []byte) async.OpFuture
	RemoveFunc   func(ctx context.Context, key string) async.OpFuture
	CloseFunc    func() error
}

// Provider returns the provider name, or "callback" if ProviderFunc is nil.
func (c *CallbackStore) Provider() string {
	if c.ProviderFunc != nil {
		return c.ProviderFunc()
	}
	return "callback"
}

// Get calls GetFunc if set, otherwise reports the key doesn't exist.
func (c *CallbackStore) Get(key string) ([]byte, bool, error) {
	if c.GetFunc != nil {
		return c.GetFunc(key)
	}
	return nil, false, nil
}

// Keys calls KeysFunc if set, otherwise returns nil.
func (c *CallbackStore) Keys() []string {
	if c.KeysFunc != nil {
		return c.KeysFunc()
	}
	return nil
}

// Set calls SetFunc if set, otherwise returns a successful OpFuture.
func (c *CallbackStore) Set(ctx context.Context, key string, value []byte) async.OpFuture {
	if c.SetFunc != nil {
		return c.SetFunc(ctx, key, value)
	}
	return async.FinishedOperation(nil)
}

// Remove calls RemoveFunc if set, otherwise returns a successful OpFuture.
func (c *CallbackStore) Remove(ctx context.Context, key string) async.OpFuture {
	if c.RemoveFunc != nil {
		return c.RemoveFunc(ctx, key)
	}
	return async.FinishedOperation(nil)
}

// Close calls CloseFunc if set, otherwise returns nil.
func (c *CallbackStore) Close() error {
	if c.CloseFunc != nil {
		return c.CloseFunc()
	}
	return nil
}

// Delegate returns a CallbackStore which forwards each method to |s|.
// Tests may then override individual callbacks.
func Delegate(s Store) *CallbackStore {
	return &CallbackStore{
		ProviderFunc: s.Provider,
		GetFunc:      s.Get,
		KeysFunc:     s.Keys,
		SetFunc:      s.Set,
		RemoveFunc:   s.Remove,
		CloseFunc:    s.Close,
	}
}
