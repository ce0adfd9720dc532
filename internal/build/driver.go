package build

import (
	"context"
	stdErrors "errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/fwbuilder/internal/build/queue"
	"git.home.luguber.info/inful/fwbuilder/internal/config"
	"git.home.luguber.info/inful/fwbuilder/internal/eventstore"
	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
	"git.home.luguber.info/inful/fwbuilder/internal/metrics"
	"git.home.luguber.info/inful/fwbuilder/internal/progress"
	"git.home.luguber.info/inful/fwbuilder/internal/project"
	"git.home.luguber.info/inful/fwbuilder/internal/retry"
	"git.home.luguber.info/inful/fwbuilder/internal/shell"
	"git.home.luguber.info/inful/fwbuilder/internal/toolchain"
)

// shutdownTimeout bounds pool and channel teardown after a run.
const shutdownTimeout = 5 * time.Second

// Request contains the inputs of one build.
type Request struct {
	Config  *config.Config
	Verbose bool
	// LogFile overrides the configured build log path.
	LogFile string
	// Console receives status lines when Sink is nil. Defaults to stdout.
	Console io.Writer
	// Sink replaces the console and log file sink, for custom UIs.
	Sink   progress.Sink
	Logger *slog.Logger
}

// Build runs a full build and returns its exit code: 0 on success, the first
// non-zero toolchain exit code, or one of the reserved negative codes.
func Build(ctx context.Context, cfg *config.Config, verbose bool, logFilePath string) int {
	rep, err := Execute(ctx, Request{Config: cfg, Verbose: verbose, LogFile: logFilePath})
	if err != nil {
		return ExitCodeFor(err)
	}
	return rep.ExitCode
}

// ExitCodeFor maps a setup error returned by Execute to a reserved exit code.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.HasCategory(err, errors.CategoryShell):
		return ExitShellStartFailed
	case stdErrors.Is(err, context.Canceled), stdErrors.Is(err, context.DeadlineExceeded):
		return ExitCancelled
	default:
		return ExitInternal
	}
}

// Execute prepares the build directory, generates response files and commands,
// starts the channel and worker pools and runs the scheduler. An error means
// the build never reached the scheduler.
func Execute(ctx context.Context, req Request) (Report, error) {
	cfg := req.Config
	if cfg == nil {
		return Report{}, errors.ConfigError("no configuration given").Build()
	}
	logger := req.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buildID := uuid.NewString()
	logger = logger.With(logfields.BuildID(buildID))
	verbose := req.Verbose || cfg.Build.Verbose

	_, model, err := project.Load(cfg.Project.File, cfg.Project.BaseDir)
	if err != nil {
		return Report{}, err
	}
	if err := model.Validate(); err != nil {
		return Report{}, err
	}

	layout := project.NewLayout(model.BaseDir, model.ProjectDir, cfg.Output.BuildDir)
	if err := layout.Prepare(cfg.Project.Clean); err != nil {
		return Report{}, err
	}

	sink := req.Sink
	if sink == nil {
		logPath := req.LogFile
		if logPath == "" {
			logPath = cfg.Build.LogFile
		}
		logFile, err := progress.OpenLogFile(logPath)
		if err != nil {
			// The log is best effort; build without it.
			logger.Warn("Failed to open build log", logfields.Path(logPath), logfields.Error(err))
		}
		defer func() { _ = logFile.Close() }()
		console := req.Console
		if console == nil {
			console = os.Stdout
		}
		sink = progress.NewConsoleSink(console, logFile)
	}

	plan, err := newPlan(cfg, model, layout)
	if err != nil {
		return Report{}, err
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var prom *metrics.PrometheusRecorder
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheusRecorder(nil)
		recorder = prom
	}

	var emitter *eventstore.Emitter
	if cfg.History.Enabled {
		store, err := eventstore.NewSQLiteStore(cfg.History.DBPath)
		if err != nil {
			logger.Warn("Build history disabled", logfields.Path(cfg.History.DBPath), logfields.Error(err))
		} else {
			defer func() { _ = store.Close() }()
			emitter = eventstore.NewEmitter(store)
		}
	}

	workers := queue.NewPool(cfg.Build.Workers)
	workers.SetRecorder(recorder)
	channels := cfg.Build.Channels
	if channels <= 0 {
		channels = workers.Workers()
	}

	dialect, err := shell.DialectByName(cfg.Build.Shell)
	if err != nil {
		return Report{}, errors.WrapError(err, errors.CategoryConfig, "invalid shell").Build()
	}
	grace, _, _ := cfg.Build.Durations()
	channelPool, err := shell.StartPool(ctx, channels, shell.Options{
		Name:        "channel",
		Dialect:     dialect,
		Dir:         model.ProjectDir,
		GracePeriod: grace,
		Logger:      logger,
	}, retry.FromConfig(cfg.Build), recorder)
	if err != nil {
		logger.Error("Failed to start persistent shell", logfields.Error(err))
		return Report{}, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := channelPool.Close(closeCtx); err != nil {
			logger.Warn("Error closing channel pool", logfields.Error(err))
		}
	}()

	// The token, not ctx, cancels queued compiles; a cancelled pool would
	// leave their futures unsettled.
	workers.Start(context.WithoutCancel(ctx))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if _, err := workers.Shutdown(stopCtx, queue.DropQueued); err != nil {
			logger.Warn("Error stopping worker pool", logfields.Error(err))
		}
	}()

	logger.Info("Starting build",
		slog.String("project", model.Name),
		logfields.Total(len(plan.CompileCommands)),
		slog.Int("workers", workers.Workers()),
		slog.Int("channels", channelPool.Size()),
		slog.String("shell", dialect.Name))

	sched := NewScheduler(channelPool, workers, sink).
		WithRecorder(recorder).
		WithLogger(logger)
	if emitter != nil {
		sched.WithEmitter(emitter)
	}
	rep := sched.Run(ctx, plan, Options{
		Verbose:  verbose,
		BuildID:  buildID,
		Project:  model.Name,
		Workers:  workers.Workers(),
		Channels: channelPool.Size(),
		Shell:    dialect.Name,
	})

	if prom != nil {
		if err := prom.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("Failed to write metrics textfile", logfields.Path(cfg.Metrics.Textfile), logfields.Error(err))
		}
	}
	return rep, nil
}

// newPlan writes the compile response files and builds the command lines.
// The link response file is written by the plan's LinkStep, after compiling.
func newPlan(cfg *config.Config, model *project.Model, layout project.Layout) (Plan, error) {
	tc := toolchain.New(cfg.Toolchain.Dir, cfg.Toolchain.Prefix)
	gen := toolchain.NewGenerator(tc, layout.ObjDir)
	rsp, err := toolchain.NewRspWriter(model, layout.RspDir, cfg.Toolchain.RspEncoding)
	if err != nil {
		return Plan{}, err
	}

	units := toolchain.Units(model.Sources)
	cmds := make([]toolchain.Command, 0, len(units))
	for _, u := range units {
		path, err := rsp.WriteCompile(u)
		if err != nil {
			return Plan{}, err
		}
		cmds = append(cmds, gen.Compile(u, path))
	}

	name := cfg.Output.Name
	elf := layout.Artifact(name + ".elf")
	plan := Plan{
		CompileCommands: cmds,
		LinkStep: func() (string, error) {
			path, err := rsp.WriteLink(gen.Objects())
			if err != nil {
				return "", err
			}
			return gen.LinkCommand(path, elf), nil
		},
		BinCommand: gen.BinCommand(elf, layout.Artifact(name+".bin")),
	}
	if !cfg.Output.SkipHex {
		plan.HexCommand = gen.HexCommand(elf, layout.Artifact(name+".hex"))
	}
	return plan, nil
}
