// Package commands implements the fwbuilder subcommands.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/fwbuilder/internal/config"
	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

// Global carries state shared by every subcommand.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
	Err    io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"fwbuilder.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging and full command progress lines"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" default:"withargs" help:"Compile, link and extract the firmware image"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
	Parse   ParseCmd   `cmd:"" help:"Print the parsed project file and the model derived from it"`
	History HistoryCmd `cmd:"" help:"List recorded builds"`
	Watch   WatchCmd   `cmd:"" help:"Rebuild whenever sources or the project file change"`
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply(g *Global) error {
	w := g.Err
	if w == nil {
		w = os.Stderr
	}
	g.Logger = config.LoggingConfig{}.NewLogger(w, c.Verbose)
	slog.SetDefault(g.Logger)
	return nil
}

// loadConfig reads the configuration file. When the default file does not
// exist, a defaulted configuration is derived from projectFile (or
// CMakeLists.txt in the working directory).
func loadConfig(g *Global, root *CLI, projectFile string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	_, statErr := os.Stat(root.Config)
	switch {
	case statErr == nil:
		cfg, err = config.Load(root.Config)
		if err == nil && projectFile != "" {
			// Output paths keep the values resolved from the configuration.
			cfg.Project.File, err = filepath.Abs(projectFile)
		}
	case root.Config == config.DefaultPath && os.IsNotExist(statErr):
		if projectFile == "" {
			projectFile = config.DefaultProjectFile
		}
		g.Logger.Debug("No configuration file; using defaults", slog.String("project", projectFile))
		cfg, err = config.FromProjectFile(projectFile)
	default:
		return nil, errors.ConfigError("configuration file not found").
			WithCause(statErr).
			WithContext("path", root.Config).
			Build()
	}
	if err != nil {
		return nil, err
	}

	g.Logger = cfg.Logging.NewLogger(errWriter(g), root.Verbose)
	slog.SetDefault(g.Logger)
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func outWriter(g *Global) io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

func errWriter(g *Global) io.Writer {
	if g.Err == nil {
		return os.Stderr
	}
	return g.Err
}
