package kvstore

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/schema"
)

var (
	constructors   = make(map[string]Constructor)
	constructorsMu sync.RWMutex
)

// RegisterProviders registers store constructors for different storage schemes.
// This should be called during initialization to register all available store types.
func RegisterProviders(providers map[string]Constructor) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()

	for scheme, constructor := range providers {
		constructors[scheme] = constructor
	}
}

// GetProviders returns a copy of the currently registered store constructors.
// This is useful for tests that need to preserve and restore providers.
func GetProviders() map[string]Constructor {
	constructorsMu.RLock()
	defer constructorsMu.RUnlock()

	var copy = make(map[string]Constructor, len(constructors))
	for scheme, constructor := range constructors {
		copy[scheme] = constructor
	}
	return copy
}

// Open parses |rawURL| and builds a Store using the Constructor registered
// for its scheme. The returned Store is instrumented (see Instrument).
func Open(rawURL string) (Store, error) {
	var ep, err = url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing store URL: %w", err)
	}

	constructorsMu.RLock()
	var constructor, ok = constructors[ep.Scheme]
	constructorsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported store scheme: %q", ep.Scheme)
	}
	store, err := constructor(ep)
	if err != nil {
		return nil, err
	}
	return Instrument(store), nil
}

// ParseStoreArgs decodes the query arguments of store URL |ep| into |args|,
// a struct having `schema` field tags. Unknown arguments are an error.
func ParseStoreArgs(ep *url.URL, args interface{}) error {
	var decoder = schema.NewDecoder()
	decoder.IgnoreUnknownKeys(false)

	if q, err := url.ParseQuery(ep.RawQuery); err != nil {
		return err
	} else if err = decoder.Decode(args, q); err != nil {
		return fmt.Errorf("parsing store URL arguments: %s", err)
	}
	return nil
}
