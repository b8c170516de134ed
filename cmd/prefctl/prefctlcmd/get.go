package prefctlcmd

import (
	"fmt"
	"io"
	"os"

	"go.gazette.dev/prefs"
)

type cmdGet struct {
	TypeConfig
	Key string `long:"key" short:"k" required:"true" description:"Key of the preference"`
}

func init() {
	CommandRegistry.AddCommand("", "get", "Print the value of a preference", `
Print the value of a preference, as interpreted by --type.

It's an error if the preference is not set, or if its value cannot be
decoded as --type. Use --type=raw to print the value's bytes as-is.

>    prefctl get --key theme
>    prefctl get --key font.size --type int
`, &cmdGet{})
}

func (cmd *cmdGet) Execute([]string) error {
	var p = startup()
	defer p.Close()

	return cmd.run(p, os.Stdout)
}

func (cmd *cmdGet) run(p *prefs.Preferences, w io.Writer) error {
	if !p.ContainsKey(cmd.Key) {
		return fmt.Errorf("preference %q is not set", cmd.Key)
	}
	var t, err = newTyped(p, cmd.Key, cmd.Type)
	if err != nil {
		return err
	}
	value, err := t.Format()
	if err != nil {
		return fmt.Errorf("reading %q: %w", cmd.Key, err)
	}
	_, err = fmt.Fprintln(w, value)
	return err
}
