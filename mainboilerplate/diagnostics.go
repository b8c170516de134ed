// Package mainboilerplate contains shared boilerplate for programs of
// preferences. It provides narrowly scoped methods so callers needn't
// buy-in to an all-or-nothing approach.
package mainboilerplate

import (
	log "github.com/sirupsen/logrus"
)

var (
	// Version of the program, set by the linker:
	//   -ldflags "-X go.gazette.dev/prefs/mainboilerplate.Version=..."
	Version = "development"
	// BuildDate of the program, also set by the linker.
	BuildDate = "unknown"
)

// Must panics if |err| is non-nil, supplying |msg| and |extra| as
// formatter and fields of the generated panic.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var f = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		f[extra[i].(string)] = extra[i+1]
	}
	log.WithFields(f).Panic(msg)
}
