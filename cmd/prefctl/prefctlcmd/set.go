package prefctlcmd

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.gazette.dev/prefs"
)

type cmdSet struct {
	TypeConfig
	Key string `long:"key" short:"k" required:"true" description:"Key of the preference"`
}

func init() {
	CommandRegistry.AddCommand("", "set", "Set the value of a preference", `
Set the value of a preference, parsed from the single argument as --type.

Lists and sets of strings are given as comma-separated values, and times
in RFC 3339 format:

>    prefctl set --key theme dark
>    prefctl set --key recent.files --type strings a.txt,b.txt
>    prefctl set --key last.sync --type time 2024-01-02T15:04:05Z
`, &cmdSet{})
}

func (cmd *cmdSet) Execute(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one VALUE argument (got %d)", len(args))
	}
	var p = startup()
	defer p.Close()

	return cmd.run(context.Background(), p, args[0])
}

func (cmd *cmdSet) run(ctx context.Context, p *prefs.Preferences, raw string) error {
	var t, err = newTyped(p, cmd.Key, cmd.Type)
	if err != nil {
		return err
	}
	if err = t.Parse(ctx, raw).Err(); err != nil {
		return fmt.Errorf("setting %q: %w", cmd.Key, err)
	}
	log.WithFields(log.Fields{"key": cmd.Key, "type": cmd.Type}).Info("set preference")
	return nil
}
