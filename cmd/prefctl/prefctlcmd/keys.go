package prefctlcmd

import (
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"go.gazette.dev/prefs"
)

type cmdKeys struct {
	Width int `long:"width" default:"40" description:"Maximum width of previewed values"`
}

func init() {
	CommandRegistry.AddCommand("", "keys", "List keys of the store", `
List the keys of the store, with the size and a preview of each value.
Values which aren't valid UTF-8 are previewed in base64.
`, &cmdKeys{})
}

func (cmd *cmdKeys) Execute([]string) error {
	var p = startup()
	defer p.Close()

	return cmd.run(p, os.Stdout)
}

func (cmd *cmdKeys) run(p *prefs.Preferences, w io.Writer) error {
	var table = tablewriter.NewWriter(w)
	table.SetHeader([]string{"Key", "Size", "Value"})

	for _, key := range p.Keys().Value() {
		var value, ok, err = p.Store().Get(key)
		if err != nil {
			return err
		} else if !ok {
			continue // Removed since listed.
		}
		table.Append([]string{
			key,
			humanize.Bytes(uint64(len(value))),
			preview(formatRaw(value), cmd.Width),
		})
	}
	table.Render()
	return nil
}

// preview truncates |s| to at most |width| runes.
func preview(s string, width int) string {
	var r = []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	} else if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}
