//go:build !rocksdb

package main

// registerRocksDB is a no-op for builds without the rocksdb tag, as the
// RocksDB store requires cgo and a system librocksdb.
func registerRocksDB() {}
