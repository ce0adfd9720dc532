package main

import (
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/fwbuilder/cmd/fwbuilder/commands"
	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run parses args, executes the selected command and returns the process
// exit code.
func run(args []string, stdout, stderr io.Writer) int {
	cli := &commands.CLI{}
	g := &commands.Global{Out: stdout, Err: stderr, Logger: slog.Default()}

	parser, err := kong.New(cli,
		kong.Name("fwbuilder"),
		kong.Description("Cross-compilation build driver for embedded firmware projects"),
		kong.Vars{"version": version.String()},
		kong.Bind(g),
		kong.Writers(stdout, stderr),
		kong.UsageOnError(),
	)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "fwbuilder: %v\n", err)
		return 1
	}

	ctx, err := parser.Parse(args)
	if err != nil {
		var parseErr *kong.ParseError
		if stdErrors.As(err, &parseErr) {
			_, _ = fmt.Fprintf(stderr, "fwbuilder: error: %v\n", err)
			if parseErr.Context != nil {
				_ = parseErr.Context.PrintUsage(true)
			}
			return parseErr.ExitCode()
		}
		// Failures raised by AfterApply hooks are already classified.
		return errors.NewCLIErrorAdapter(cli.Verbose, g.Logger).WithOutput(stderr).Report(err)
	}

	if err := ctx.Run(g); err != nil {
		return errors.NewCLIErrorAdapter(cli.Verbose, g.Logger).WithOutput(stderr).Report(err)
	}
	return 0
}
