// Package prefctlcmd implements the sub-commands of prefctl.
package prefctlcmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jessevdk/go-flags"
	"go.gazette.dev/prefs"
	"go.gazette.dev/prefs/async"
	mbp "go.gazette.dev/prefs/mainboilerplate"
)

const iniFilename = "prefctl.ini"

var (
	baseCfg = new(struct {
		Store mbp.StoreConfig `group:"Store" namespace:"store" env-namespace:"STORE"`
		Etcd  mbp.EtcdConfig  `group:"Etcd" namespace:"etcd" env-namespace:"ETCD"`
		Log   mbp.LogConfig   `group:"Logging" namespace:"log" env-namespace:"LOG"`
	})
	// CommandRegistry of prefctl sub-commands, which register themselves on init.
	CommandRegistry = mbp.NewCommandRegistry()
)

// TypeConfig is common configuration of commands which interpret values.
type TypeConfig struct {
	Type string `long:"type" short:"t" default:"string" choice:"string" choice:"int" choice:"float" choice:"bool" choice:"strings" choice:"set" choice:"time" choice:"raw" description:"Type of the preference value"`
}

// startup initializes logging and returns Preferences of the configured store.
func startup() *prefs.Preferences {
	mbp.InitLog(baseCfg.Log)
	return prefs.New(baseCfg.Store.MustOpen(&baseCfg.Etcd))
}

// Execute parses configuration and runs the selected prefctl sub-command.
func Execute() {
	var parser = flags.NewParser(baseCfg, flags.Default)

	mbp.AddPrintConfigCmd(parser, iniFilename)
	parser.LongDescription = `prefctl is a tool for inspecting and modifying preferences of a store.

	The store is selected by URL with --store.url, and may be a file://, sqlite://,
	postgres://, etcd://, rocksdb:// (if built with rocksdb), or memory:// store.
	See --help pages of each sub-command for documentation and usage examples.
	Optionally configure prefctl with a '` + iniFilename + `' file in the current working directory,
	or with '~/.config/prefs/` + iniFilename + `'. Use the 'print-config' sub-command to inspect
	the tool's current configuration.
	`

	mbp.Must(CommandRegistry.AddCommands("", parser.Command, true), "could not add subcommand")
	mbp.MustParseConfig(parser, iniFilename)
}

// typed is a Preference of a --type, having values in display form.
type typed interface {
	// Format the current value of the preference.
	Format() (string, error)
	// Parse |raw| and write it as the value of the preference.
	Parse(ctx context.Context, raw string) async.OpFuture
	// Watch calls |fn| with each value of the preference until |ctx| is done.
	Watch(ctx context.Context, fn func(string)) error
}

type typedPref[T any] struct {
	pref   *prefs.Preference[T]
	parse  func(string) (T, error)
	format func(T) string
}

func (t typedPref[T]) Format() (string, error) {
	var v, err = t.pref.Load()
	if err != nil {
		return "", err
	}
	return t.format(v), nil
}

func (t typedPref[T]) Parse(ctx context.Context, raw string) async.OpFuture {
	var v, err = t.parse(raw)
	if err != nil {
		return async.FinishedOperation(fmt.Errorf("parsing %q: %w", raw, err))
	}
	return t.pref.Write(ctx, v)
}

func (t typedPref[T]) Watch(ctx context.Context, fn func(string)) error {
	var sub = t.pref.Subscribe()
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-sub.C():
			if !ok {
				return nil
			}
			fn(t.format(v))
		}
	}
}

func newTyped(p *prefs.Preferences, key, typ string) (typed, error) {
	switch typ {
	case "string":
		return typedPref[string]{
			pref:   p.String(key, ""),
			parse:  func(s string) (string, error) { return s, nil },
			format: func(v string) string { return v },
		}, nil
	case "int":
		return typedPref[int64]{
			pref:   p.Int(key, 0),
			parse:  func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) },
			format: func(v int64) string { return strconv.FormatInt(v, 10) },
		}, nil
	case "float":
		return typedPref[float64]{
			pref:   p.Float(key, 0),
			parse:  func(s string) (float64, error) { return strconv.ParseFloat(s, 64) },
			format: func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) },
		}, nil
	case "bool":
		return typedPref[bool]{
			pref:   p.Bool(key, false),
			parse:  strconv.ParseBool,
			format: strconv.FormatBool,
		}, nil
	case "strings":
		return typedPref[[]string]{
			pref:   p.StringList(key, []string{}),
			parse:  splitList,
			format: joinList,
		}, nil
	case "set":
		return typedPref[[]string]{
			pref:   p.StringSet(key, []string{}),
			parse:  splitList,
			format: joinList,
		}, nil
	case "time":
		return typedPref[time.Time]{
			pref:   p.Time(key, time.Time{}),
			parse:  func(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) },
			format: func(v time.Time) string { return v.Format(time.RFC3339Nano) },
		}, nil
	case "raw":
		return typedPref[[]byte]{
			pref:   p.Bytes(key, []byte{}),
			parse:  func(s string) ([]byte, error) { return []byte(s), nil },
			format: formatRaw,
		}, nil
	default:
		return nil, fmt.Errorf("unknown type %q", typ)
	}
}

// splitList parses comma-separated values. The empty string is an empty list.
func splitList(s string) ([]string, error) {
	if s == "" {
		return []string{}, nil
	}
	return strings.Split(s, ","), nil
}

func joinList(v []string) string { return strings.Join(v, ",") }

// formatRaw returns |b| as a string if it's valid UTF-8, or in base64 otherwise.
func formatRaw(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return "base64:" + base64.StdEncoding.EncodeToString(b)
}
