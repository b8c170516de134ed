package mainboilerplate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

// MustParseConfig requires that the Parser parse from the combination of an
// optional INI file, configured environment bindings, and explicit flags.
// An INI file matching |configName| is searched for in:
//   - $PREFS_CONFIG_DIR, if set.
//   - The current working directory.
//   - ~/.config/prefs (under the user's $HOME or %UserProfile% directory).
func MustParseConfig(parser *flags.Parser, configName string) {
	// Allow unknown options while parsing an INI file.
	var origOptions = parser.Options
	parser.Options |= flags.IgnoreUnknown

	var iniParser = flags.NewIniParser(parser)

	var prefixes = []string{
		".",
		filepath.Join(os.Getenv("HOME"), ".config", "prefs"),
		filepath.Join(os.Getenv("UserProfile"), ".config", "prefs"),
	}
	if dir := os.Getenv("PREFS_CONFIG_DIR"); dir != "" {
		prefixes = append([]string{dir}, prefixes...)
	}
	for _, prefix := range prefixes {
		var path = filepath.Join(prefix, configName)

		if err := iniParser.ParseFile(path); err == nil {
			break
		} else if os.IsNotExist(err) {
			// Pass.
		} else {
			fmt.Println(err)
			os.Exit(1)
		}
	}

	// Restore original options for parsing argument flags.
	parser.Options = origOptions
	MustParseArgs(parser)
}

// MustParseArgs parses os.Args with the Parser, which executes the selected
// command. If parsing or the command fails, the process exits with a non-zero
// status after reporting the failure.
func MustParseArgs(parser *flags.Parser) {
	if code := parseArgs(parser, os.Args[1:], os.Stderr); code != 0 {
		os.Exit(code)
	}
}

// parseArgs parses |args| with the Parser, reporting failures to |w|,
// and returns the process exit status. Usage errors have status 2,
// and errors of executed commands have status 1.
func parseArgs(parser *flags.Parser, args []string, w io.Writer) int {
	var _, err = parser.ParseArgs(args)
	if err == nil {
		return 0
	}
	// go-flags has already reported |err| if PrintErrors is set.
	var printed = parser.Options&flags.PrintErrors != 0

	var flagErr, ok = err.(*flags.Error)
	if !ok {
		// |err| was returned by the executed command.
		if !printed {
			fmt.Fprintf(w, "%s: %s\n", parser.Name, err)
		}
		return 1
	}

	switch flagErr.Type {
	case flags.ErrDuplicatedFlag, flags.ErrTag, flags.ErrInvalidTag, flags.ErrShortNameTooLong, flags.ErrMarshal:
		// The configuration struct given to |parser| is malformed.
		panic(err)

	case flags.ErrCommandRequired:
		// Follow "Please specify one command of: ..." with full usage.
		fmt.Fprintln(w)
		parser.WriteHelp(w)
		writeVersion(w)
		return 1

	case flags.ErrHelp:
		if !printed {
			parser.WriteHelp(w)
		}
		writeVersion(w)
		return 0

	default:
		if !printed {
			fmt.Fprintln(w, err)
		}
		return 2
	}
}

func writeVersion(w io.Writer) {
	fmt.Fprintf(w, "\nVersion %s, built at %s.\n", Version, BuildDate)
}

// AddPrintConfigCmd to the Parser. The "print-config" command writes the
// configuration which results from |configName|, environment variables, and
// flags to stdout in INI format. Its output is suitable for use as a
// |configName| file.
func AddPrintConfigCmd(parser *flags.Parser, configName string) {
	addPrintConfigCmd(parser, configName, os.Stdout)
}

func addPrintConfigCmd(parser *flags.Parser, configName string, out io.Writer) {
	parser.AddCommand("print-config", "Print combined configuration and exit", `
Print the combined configuration of `+configName+`, environment variables, and
flags in INI format. Options having default values are included as comments,
unless --omit-defaults is given.
`, &printConfig{parser: parser, out: out})
}

type printConfig struct {
	OmitDefaults bool `long:"omit-defaults" description:"Omit options which have their default values"`

	parser *flags.Parser
	out    io.Writer
}

func (p *printConfig) Execute([]string) error {
	var opts flags.IniOptions = flags.IniIncludeComments
	if !p.OmitDefaults {
		opts |= flags.IniIncludeDefaults | flags.IniCommentDefaults
	}
	flags.NewIniParser(p.parser).Write(p.out, opts)
	return nil
}
