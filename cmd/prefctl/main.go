package main

import (
	"go.gazette.dev/prefs/cmd/prefctl/prefctlcmd"
	"go.gazette.dev/prefs/kvstore"
	"go.gazette.dev/prefs/kvstore/etcd"
	"go.gazette.dev/prefs/kvstore/fs"
	"go.gazette.dev/prefs/kvstore/sqlstore"
)

func main() {
	kvstore.RegisterProviders(map[string]kvstore.Constructor{
		"memory":   kvstore.NewMemory,
		"file":     fs.New,
		"sqlite":   sqlstore.NewSQLite,
		"postgres": sqlstore.NewPostgres,
		"etcd":     etcd.New,
	})
	registerRocksDB()

	prefctlcmd.Execute()
}
