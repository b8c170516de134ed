package mainboilerplate

import (
	"context"
	"errors"
	"net/url"

	"go.gazette.dev/prefs/kvstore"
	"go.gazette.dev/prefs/kvstore/etcd"
)

// StoreConfig configures the preferences Store of an application.
type StoreConfig struct {
	URL string `long:"url" env:"URL" description:"URL of the preferences store (eg, file:///path/prefs.json, sqlite:///path/prefs.db, postgres://host/db, etcd://host:2379/prefix, memory://)"`
}

// MustOpen opens the configured Store. An etcd:// URL having no host, such as
// "etcd:///app/prefs", uses a client dialed from |etcdCfg|.
func (c *StoreConfig) MustOpen(etcdCfg *EtcdConfig) kvstore.Store {
	if c.URL == "" {
		Must(errors.New("no store URL was provided"), "failed to open store")
	}
	var ep, err = url.Parse(c.URL)
	Must(err, "failed to parse store URL", "url", c.URL)

	if ep.Scheme != "etcd" || ep.Host != "" {
		var store, err = kvstore.Open(c.URL)
		Must(err, "failed to open store", "url", c.URL)
		return store
	}

	var prefix = ep.Path
	if prefix == "" {
		prefix = "/"
	}
	var client = etcdCfg.MustDial()
	var ctx, cancel = context.WithTimeout(context.Background(), etcdCfg.Timeout)
	defer cancel()

	store, err := etcd.NewStore(ctx, client, prefix)
	Must(err, "failed to open etcd store", "url", c.URL)

	return kvstore.Instrument(store.OwnClient())
}
