package main

import (
	"context"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"tlog.app/go/tlog"

	"github.com/lowlevel01/ir"
	"github.com/lowlevel01/ir/locfile"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "irtool: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	cmd := newRootCommand(stdin, stdout)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// Main represents the state shared by every command.
type Main struct {
	Stdin  io.Reader
	Stdout io.Writer

	ConfigPath string
	LocsPath   string
	Verbosity  string
}

func newRootCommand(stdin io.Reader, stdout io.Writer) *cobra.Command {
	m := &Main{Stdin: stdin, Stdout: stdout}

	root := &cobra.Command{
		Use:           "irtool",
		Short:         "Inspect and simplify IR expressions",
		Long:          "irtool parses IR expressions, simplifies them and manages location registry files.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if m.Verbosity != "" {
				tlog.SetVerbosity(m.Verbosity)
			}
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)

	flags := root.PersistentFlags()
	flags.StringVarP(&m.ConfigPath, "config", "c", "", "TOML configuration file")
	flags.StringVar(&m.LocsPath, "locs", "", "location registry file")
	flags.StringVarP(&m.Verbosity, "verbose", "v", "", "comma-separated trace topics (simplify, locfile)")

	root.AddCommand(
		newSimplifyCommand(m),
		newGraphCommand(m),
		newDumpCommand(m),
		newPassesCommand(m),
		newLocCommand(m),
	)
	return root
}

// loadConfig reads the configuration file, if one was given.
func (m *Main) loadConfig() (*Config, error) {
	if m.ConfigPath == "" {
		return NewConfig(), nil
	}
	return LoadConfig(m.ConfigPath)
}

// loadLocations reads the registry file. A missing path yields an empty
// registry.
func (m *Main) loadLocations() (*ir.LocationDB, error) {
	if m.LocsPath == "" {
		return ir.NewLocationDB(), nil
	}
	if _, err := os.Stat(m.LocsPath); os.IsNotExist(err) {
		return ir.NewLocationDB(), nil
	}
	return locfile.Load(m.LocsPath)
}

// parser returns a parser resolving location names through db.
func (m *Main) parser(db *ir.LocationDB) *ir.Parser {
	return &ir.Parser{Locations: db}
}
