package prefctlcmd

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.gazette.dev/prefs"
	"go.gazette.dev/prefs/async"
)

type cmdClear struct {
	Keys []string `long:"key" short:"k" description:"Key of a preference to clear. May be repeated"`
	All  bool     `long:"all" description:"Clear all preferences of the store"`
}

func init() {
	CommandRegistry.AddCommand("", "clear", "Clear preferences", `
Clear preferences, removing their keys from the store. Observers of a cleared
preference see its default value.

Exactly one of --key (which may be repeated) or --all is required:

>    prefctl clear --key theme --key font.size
>    prefctl clear --all
`, &cmdClear{})
}

func (cmd *cmdClear) Execute([]string) error {
	if (len(cmd.Keys) == 0) == !cmd.All {
		return errors.New("expected exactly one of --key or --all")
	}
	var p = startup()
	defer p.Close()

	return cmd.run(context.Background(), p)
}

func (cmd *cmdClear) run(ctx context.Context, p *prefs.Preferences) error {
	var op async.OpFuture

	if cmd.All {
		op = p.Clear(ctx)
	} else {
		var ops []async.OpFuture
		for _, key := range cmd.Keys {
			ops = append(ops, p.Remove(ctx, key))
		}
		op = async.All(ops...)
	}

	if err := op.Err(); err != nil {
		return fmt.Errorf("clearing preferences: %w", err)
	}
	log.WithFields(log.Fields{"keys": cmd.Keys, "all": cmd.All}).Info("cleared preferences")
	return nil
}
