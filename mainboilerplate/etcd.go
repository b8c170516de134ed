package mainboilerplate

import (
	"context"
	"crypto/tls"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
	"go.etcd.io/etcd/client/pkg/v3/transport"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"
)

// EtcdConfig configures the application Etcd session.
type EtcdConfig struct {
	Address       string        `long:"address" env:"ADDRESS" default:"http://localhost:2379" description:"Etcd service address endpoint"`
	CertFile      string        `long:"cert-file" env:"CERT_FILE" default:"" description:"Path to the client TLS certificate"`
	CertKeyFile   string        `long:"cert-key-file" env:"CERT_KEY_FILE" default:"" description:"Path to the client TLS private key"`
	TrustedCAFile string        `long:"trusted-ca-file" env:"TRUSTED_CA_FILE" default:"" description:"Path to the trusted CA for client verification of server certificates"`
	Timeout       time.Duration `long:"timeout" env:"TIMEOUT" default:"20s" description:"Bound on dialing and requests of Etcd"`
}

// Config returns the clientv3.Config of the EtcdConfig.
func (c *EtcdConfig) Config() (clientv3.Config, error) {
	var addr, err = url.Parse(c.Address)
	if err != nil {
		return clientv3.Config{}, err
	}
	var tlsConfig *tls.Config

	switch addr.Scheme {
	case "https":
		var info = transport.TLSInfo{
			CertFile:      c.CertFile,
			KeyFile:       c.CertKeyFile,
			TrustedCAFile: c.TrustedCAFile,
		}
		if tlsConfig, err = info.ClientConfig(); err != nil {
			return clientv3.Config{}, err
		}
	case "unix":
		// The Etcd client requires hostname is stripped from unix:// URLs.
		addr.Host = ""
	}

	return clientv3.Config{
		Endpoints:            []string{addr.String()},
		DialTimeout:          c.Timeout,
		DialKeepAliveTime:    c.Timeout / 2,
		DialKeepAliveTimeout: c.Timeout / 2,
		RejectOldCluster:     true,
		TLS:                  tlsConfig,
	}, nil
}

// MustDial builds an Etcd client connection.
func (c *EtcdConfig) MustDial() *clientv3.Client {
	var cfg, err = c.Config()
	Must(err, "failed to build Etcd client config", "address", c.Address)

	// Use a blocking dial, so that a partitioned or mis-configured Etcd
	// fails here rather than on first use.
	var timer = time.AfterFunc(time.Second, func() {
		log.WithField("addr", c.Address).Warn("dialing Etcd is taking a while (is network okay?)")
	})
	defer timer.Stop()

	cfg.DialOptions = []grpc.DialOption{grpc.WithBlock()}
	etcd, err := clientv3.New(cfg)
	Must(err, "failed to build Etcd client", "address", c.Address)

	var ctx, cancel = context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	Must(etcd.Sync(ctx), "initial Etcd endpoint sync failed", "address", c.Address)

	return etcd
}
