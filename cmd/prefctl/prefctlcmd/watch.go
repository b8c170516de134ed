package prefctlcmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"go.gazette.dev/prefs"
	"golang.org/x/sync/errgroup"
)

type cmdWatch struct {
	TypeConfig
	Keys []string `long:"key" short:"k" description:"Key of a preference to watch. May be repeated"`
	All  bool     `long:"all" description:"Watch the set of keys of the store"`
}

func init() {
	CommandRegistry.AddCommand("", "watch", "Watch preferences for changes", `
Watch prints the current value of each preference, and then prints each
changed value until interrupted. Lines are of the form "KEY<TAB>VALUE".

With --all, the set of keys of the store is watched instead, and each line
is a comma-separated list of the present keys.

>    prefctl watch --key theme --key font.size
>    prefctl watch --all
`, &cmdWatch{})
}

func (cmd *cmdWatch) Execute([]string) error {
	if (len(cmd.Keys) == 0) == !cmd.All {
		return errors.New("expected exactly one of --key or --all")
	}
	var p = startup()
	defer p.Close()

	var ctx, cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return cmd.run(ctx, p, os.Stdout)
}

func (cmd *cmdWatch) run(ctx context.Context, p *prefs.Preferences, w io.Writer) error {
	var mu sync.Mutex
	var emit = func(key, value string) {
		mu.Lock()
		defer mu.Unlock()

		if key == "" {
			_, _ = fmt.Fprintln(w, value)
		} else {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", key, value)
		}
	}

	if cmd.All {
		var sub = p.Keys().Subscribe()
		defer sub.Cancel()

		for {
			select {
			case <-ctx.Done():
				return nil
			case keys := <-sub.C():
				emit("", strings.Join(keys, ","))
			}
		}
	}

	var group, groupCtx = errgroup.WithContext(ctx)
	for _, key := range cmd.Keys {
		var t, err = newTyped(p, key, cmd.Type)
		if err != nil {
			return err
		}
		group.Go(func() error {
			return t.Watch(groupCtx, func(value string) { emit(key, value) })
		})
	}
	return group.Wait()
}
