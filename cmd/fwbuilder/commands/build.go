package commands

import (
	"fmt"

	"git.home.luguber.info/inful/fwbuilder/internal/build"
	"git.home.luguber.info/inful/fwbuilder/internal/config"
	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Project  string `arg:"" optional:"" help:"Project file (overrides project.file)" type:"path"`
	LogFile  string `name:"log-file" help:"Build log path (default <build dir>/build.log)" type:"path"`
	Workers  int    `short:"j" help:"Worker pool width (0 = hardware concurrency, min 4)"`
	Channels int    `help:"Persistent shells (0 = one per worker)"`
	Shell    string `help:"Shell dialect: posix or powershell"`
	Clean    bool   `help:"Wipe the build directory first"`
	SkipHex  bool   `name:"skip-hex" help:"Do not extract the Intel HEX image"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root, b.Project)
	if err != nil {
		return err
	}
	b.apply(cfg)

	ctx, stop := signalContext()
	defer stop()

	rep, err := build.Execute(ctx, build.Request{
		Config:  cfg,
		Verbose: root.Verbose,
		LogFile: b.LogFile,
		Console: outWriter(g),
		Logger:  g.Logger,
	})
	if err != nil {
		return err
	}
	return reportError(rep)
}

func (b *BuildCmd) apply(cfg *config.Config) {
	if b.Workers > 0 {
		cfg.Build.Workers = b.Workers
	}
	if b.Channels > 0 {
		cfg.Build.Channels = b.Channels
	}
	if b.Shell != "" {
		cfg.Build.Shell = b.Shell
	}
	if b.Clean {
		cfg.Project.Clean = true
	}
	if b.SkipHex {
		cfg.Output.SkipHex = true
	}
}

// reportError turns a failed report into an error whose exit_code context
// the CLI error adapter mirrors as the process exit code.
func reportError(rep build.Report) error {
	switch {
	case rep.ExitCode == build.ExitOK:
		return nil
	case rep.ExitCode == build.ExitCancelled:
		return errors.RuntimeError("build cancelled").Build()
	case rep.ExitCode < 0:
		return errors.InternalError("build aborted").
			WithContext("stderr", rep.Stderr).
			Build()
	default:
		return errors.BuildError(fmt.Sprintf("build failed with exit code %d", rep.ExitCode)).
			WithContext("exit_code", rep.ExitCode).
			WithContext("command", rep.FailedCommand).
			Build()
	}
}
