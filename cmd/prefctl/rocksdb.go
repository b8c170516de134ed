//go:build rocksdb

package main

import (
	"go.gazette.dev/prefs/kvstore"
	"go.gazette.dev/prefs/kvstore/rocksdb"
)

func registerRocksDB() {
	kvstore.RegisterProviders(map[string]kvstore.Constructor{"rocksdb": rocksdb.New})
}
