// Package etcdtest provides test support for obtaining a client to an Etcd server.
package etcdtest

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// TestClient returns a client of the Etcd test server, or skips the test if
// no `etcd` binary was found. It asserts that the Etcd keyspace is empty
// before returning to the client. In other words, it asserts that the prior
// test cleaned up after itself. Cleanup is registered with |t|.
func TestClient(t testing.TB) *clientv3.Client {
	if _etcdClient == nil {
		t.Skip("etcd binary not found on PATH")
	}

	var resp, err = _etcdClient.Get(context.Background(), "", clientv3.WithPrefix(), clientv3.WithLimit(5))
	if err != nil {
		t.Fatal(err)
	} else if len(resp.Kvs) != 0 {
		t.Fatalf("etcd not empty; did a previous test not clean up?\n%+v", resp)
	}
	t.Cleanup(Cleanup)

	return _etcdClient
}

// Cleanup removes any remaining key/value fixtures in the Etcd store.
func Cleanup() {
	if _etcdClient == nil {
		return
	} else if _, err := _etcdClient.Delete(context.Background(), "", clientv3.WithPrefix()); err != nil {
		log.WithField("err", err).Fatal("failed to clean up etcd")
	}
}

var (
	_cmd        *exec.Cmd
	_etcdClient *clientv3.Client
)

// TestMainWithEtcd is to be called by other packages which require
// functionality of the etcdtest package, before those tests run, as:
//
//	func TestMain(m *testing.M) { etcdtest.TestMainWithEtcd(m) }
//
// This TestMain function is automatically invoked by the `go test`
// tool, providing an opportunity to start the embedded Etcd server
// prior to test invocations. If no `etcd` binary is available, tests
// using TestClient are skipped.
func TestMainWithEtcd(m *testing.M) {
	if _, err := exec.LookPath("etcd"); err != nil {
		log.WithField("err", err).Warn("etcd not found; tests requiring etcd will be skipped")
		os.Exit(m.Run())
	}

	_cmd = exec.Command("etcd",
		"--listen-peer-urls", "unix://peer.sock:0",
		"--listen-client-urls", "unix://client.sock:0",
		"--advertise-client-urls", "unix://client.sock:0",
	)
	_cmd.Env = append(_cmd.Env, "ETCD_LOG_LEVEL=error", "ETCD_LOGGER=zap")
	_cmd.Env = append(_cmd.Env, os.Environ()...)
	log.WithField("args", _cmd.Args).Info("starting etcd")

	var err error
	if _cmd.Dir, err = os.MkdirTemp("", "etcdtest"); err != nil {
		log.WithField("err", err).Fatal("failed to create etcd directory")
	}
	_cmd.Stdout = os.Stdout
	_cmd.Stderr = os.Stderr
	_cmd.SysProcAttr = getSysProcAttr()

	if err = _cmd.Start(); err != nil {
		log.WithField("err", err).Fatal("failed to start etcd")
	}

	os.Exit(func() int {
		// Defer Etcd tear-down.
		defer func() {
			if err = _cmd.Process.Signal(syscall.SIGTERM); err != nil {
				log.WithField("err", err).Fatal("failed to TERM etcd")
			}
			_ = _cmd.Wait()

			if err = os.RemoveAll(_cmd.Dir); err != nil {
				log.WithFields(log.Fields{"dir": _cmd.Dir, "err": err}).
					Fatal("failed to remove etcd directory")
			}
		}()

		var ep = "unix://" + _cmd.Dir + "/client.sock:0"
		log.WithField("endpoint", ep).Info("using test endpoint")

		if _etcdClient, err = clientv3.New(clientv3.Config{
			Endpoints:   []string{ep},
			DialTimeout: 5 * time.Second,
		}); err != nil {
			log.WithField("err", err).Fatal("failed to build etcd client")
		}
		// Verify test client works.
		var ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err = _etcdClient.Get(ctx, "", clientv3.WithPrefix(), clientv3.WithLimit(1)); err != nil {
			log.WithField("err", err).Fatal("etcd test client failed")
		}
		return m.Run()
	}())
}
