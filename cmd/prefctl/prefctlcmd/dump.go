package prefctlcmd

import (
	"io"
	"os"

	"go.gazette.dev/prefs"
	"gopkg.in/yaml.v2"
)

type cmdDump struct{}

func init() {
	CommandRegistry.AddCommand("", "dump", "Dump all preferences as YAML", `
Dump writes a YAML mapping of each key of the store to its value. Values
which aren't valid UTF-8 are written as !!binary.
`, &cmdDump{})
}

func (cmd *cmdDump) Execute([]string) error {
	var p = startup()
	defer p.Close()

	return cmd.run(p, os.Stdout)
}

func (cmd *cmdDump) run(p *prefs.Preferences, w io.Writer) error {
	var out = make(map[string]string)

	for _, key := range p.Keys().Value() {
		if value, ok, err := p.Store().Get(key); err != nil {
			return err
		} else if ok {
			out[key] = string(value)
		}
	}

	var b, err = yaml.Marshal(out)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
