//go:build linux

package etcdtest

import "syscall"

// getSysProcAttr delivers SIGTERM to `etcd` should the test process die,
// such as by a test timeout panic, so that `go test` doesn't hang awaiting
// the exit of its child.
func getSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM}
}
