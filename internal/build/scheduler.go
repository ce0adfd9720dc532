package build

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/fwbuilder/internal/eventstore"
	"git.home.luguber.info/inful/fwbuilder/internal/future"
	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
	"git.home.luguber.info/inful/fwbuilder/internal/metrics"
	"git.home.luguber.info/inful/fwbuilder/internal/progress"
	"git.home.luguber.info/inful/fwbuilder/internal/shell"
	"git.home.luguber.info/inful/fwbuilder/internal/toolchain"
)

// Plan is the work of one build. LinkStep is only called once every compile
// command has succeeded, so a failed compile never produces a link command.
// An empty BinCommand or HexCommand skips that step.
type Plan struct {
	CompileCommands []toolchain.Command
	LinkStep        func() (string, error)
	BinCommand      string
	HexCommand      string
}

// Options tunes one Run.
type Options struct {
	Verbose  bool
	BuildID  string
	Project  string
	Workers  int
	Channels int
	Shell    string
}

// Report is the outcome of a Run.
type Report struct {
	ExitCode       int
	State          State
	Completed      int
	Total          int
	FailedCommand  string
	Stderr         string
	StageDurations map[string]time.Duration
	Start          time.Time
	End            time.Time
}

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration { return r.End.Sub(r.Start) }

// Emitter persists build events. *eventstore.Emitter satisfies it.
type Emitter interface {
	EmitEvent(ctx context.Context, event eventstore.Event) error
}

// Scheduler executes Plans.
type Scheduler struct {
	runner   shell.Runner
	pool     future.Submitter
	sink     progress.Sink
	recorder metrics.Recorder
	emitter  Emitter
	logger   *slog.Logger
}

// NewScheduler runs compile bodies on pool and their commands on runner.
// runner must tolerate as many concurrent callers as pool has workers; a
// shell.Pool sized to the worker count does.
func NewScheduler(runner shell.Runner, pool future.Submitter, sink progress.Sink) *Scheduler {
	if sink == nil {
		sink = progress.Discard
	}
	return &Scheduler{
		runner:   runner,
		pool:     pool,
		sink:     sink,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
}

// WithRecorder sets the metrics recorder.
func (s *Scheduler) WithRecorder(r metrics.Recorder) *Scheduler {
	s.recorder = metrics.OrNoop(r)
	return s
}

// WithEmitter sets the event emitter. Emission failures are logged only.
func (s *Scheduler) WithEmitter(e Emitter) *Scheduler {
	s.emitter = e
	return s
}

// WithLogger sets the logger.
func (s *Scheduler) WithLogger(l *slog.Logger) *Scheduler {
	if l != nil {
		s.logger = l
	}
	return s
}

// failure is the first error of a run. It is assigned once.
type failure struct {
	exitCode int
	command  string
	stderr   string
}

// run is the per-invocation state shared by compile continuations.
type run struct {
	opts      Options
	total     int
	completed atomic.Int64
	first     atomic.Pointer[failure]
	token     *future.CancellationToken
	logger    *slog.Logger
}

// fail records f if no failure was recorded yet, and cancels the remaining
// compiles. It reports whether f became the first failure.
func (r *run) fail(f *failure) bool {
	if !r.first.CompareAndSwap(nil, f) {
		return false
	}
	r.token.Cancel()
	return true
}

// Run executes plan and returns its report. It blocks until every compile
// future has settled and the tail steps have finished.
func (s *Scheduler) Run(ctx context.Context, plan Plan, opts Options) Report {
	rep := Report{
		State:          StateCompiling,
		Total:          len(plan.CompileCommands),
		StageDurations: make(map[string]time.Duration),
		Start:          time.Now(),
	}
	logger := s.logger
	if opts.BuildID != "" {
		logger = logger.With(logfields.BuildID(opts.BuildID))
	}

	if started, err := eventstore.NewBuildStarted(opts.BuildID, eventstore.BuildStartedData{
		Project:  opts.Project,
		Sources:  rep.Total,
		Workers:  opts.Workers,
		Channels: opts.Channels,
		Shell:    opts.Shell,
	}); err == nil {
		s.emit(ctx, logger, started)
	}

	r := &run{opts: opts, total: rep.Total, token: future.NewToken(), logger: logger}
	stop := context.AfterFunc(ctx, func() { r.token.Cancel() })
	defer stop()

	if rep.Total == 0 {
		logger.Error("Build has no compile commands", logfields.Error(ErrEmptyPlan))
		return s.finish(ctx, logger, opts, rep, &failure{exitCode: ExitInternal, stderr: ErrEmptyPlan.Error()})
	}

	s.compile(ctx, plan, r, &rep)
	rep.Completed = int(r.completed.Load())

	if f := r.first.Load(); f != nil {
		return s.finish(ctx, logger, opts, rep, f)
	}
	if ctx.Err() != nil {
		rep.State = StateCancelled
		return s.finish(ctx, logger, opts, rep, nil)
	}

	if f := s.tail(ctx, plan, r, &rep); f != nil {
		return s.finish(ctx, logger, opts, rep, f)
	}
	if ctx.Err() != nil {
		rep.State = StateCancelled
		return s.finish(ctx, logger, opts, rep, nil)
	}
	rep.State = StateDone
	return s.finish(ctx, logger, opts, rep, nil)
}

// compile starts one future per command, all before any is awaited, and
// waits until every future has settled.
func (s *Scheduler) compile(ctx context.Context, plan Plan, r *run, rep *Report) {
	started := time.Now()
	futures := make([]*future.Future[shell.Result], 0, r.total)
	for i, cmd := range plan.CompileCommands {
		f := future.New[shell.Result](s.pool, func(token *future.CancellationToken) (shell.Result, error) {
			if token.Cancelled() {
				return shell.Result{}, future.ErrCancelled
			}
			return s.runner.Run(ctx, cmd.Line), nil
		}, future.WithToken(r.token), future.WithName(fmt.Sprintf("compile-%d", i+1)))
		f.ContinueWith(func(out future.Outcome[shell.Result]) {
			s.onCompiled(ctx, r, i, cmd, out)
		})
		futures = append(futures, f)
	}
	for _, f := range futures {
		// A failed submit faults the future; its continuation records it.
		_ = f.Start()
	}
	future.WaitAll(futures...)

	d := time.Since(started)
	rep.StageDurations[metrics.StageCompile] = d
	s.emitStage(ctx, r.logger, r.opts.BuildID, metrics.StageCompile, r.first.Load() == nil && ctx.Err() == nil, d)
}

// onCompiled runs on whichever worker completed the future. It touches only
// the atomics in r and the sink, which serializes itself.
func (s *Scheduler) onCompiled(ctx context.Context, r *run, i int, cmd toolchain.Command, out future.Outcome[shell.Result]) {
	switch out.State {
	case future.Cancelled:
		r.logger.Debug("Compile skipped", logfields.Index(i+1), logfields.Command(cmd.Line))
		return
	case future.Faulted:
		r.logger.Error("Compile future faulted", logfields.Index(i+1), logfields.Command(cmd.Line), logfields.Error(out.Err))
		if r.fail(&failure{exitCode: ExitInternal, command: cmd.Line, stderr: out.Err.Error()}) {
			s.sink.Report(progress.Event{Status: out.Err.Error()})
		}
		return
	}

	res := out.Value
	if res.Err != nil && ctx.Err() != nil {
		r.logger.Debug("Compile interrupted", logfields.Index(i+1), logfields.Error(res.Err))
		return
	}
	s.recordCommand(ctx, r.logger, r.opts.BuildID, metrics.StageCompile, i+1, res)

	if !res.Succeeded {
		// Results of compiles still running after the first failure are ignored.
		if r.fail(&failure{exitCode: res.ExitCode, command: cmd.Line, stderr: res.Stderr}) {
			r.logger.Error("Compile failed", logfields.Index(i+1), logfields.Command(cmd.Line), logfields.ExitCode(res.ExitCode))
			s.sink.Report(progress.Event{Status: failureText(res)})
		}
		return
	}
	if r.first.Load() != nil {
		return
	}

	n := int(r.completed.Add(1))
	full := fmt.Sprintf("[%d/%d] %s", n, r.total, cmd.Line)
	status := full
	if !r.opts.Verbose {
		status = fmt.Sprintf("[%d/%d] %s", n, r.total, unitName(cmd))
	}
	s.sink.Report(progress.Event{Status: status, Full: full, Success: true})
	if warnings := strings.TrimSpace(res.Stderr); warnings != "" {
		s.sink.Report(progress.Event{Status: warnings})
	}
}

// tail runs link, bin and hex strictly in order on one channel.
func (s *Scheduler) tail(ctx context.Context, plan Plan, r *run, rep *Report) *failure {
	runner, release, err := shell.Pin(ctx, s.runner)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		r.logger.Error("Failed to acquire a channel for linking", logfields.Error(err))
		return &failure{exitCode: ExitInternal, stderr: err.Error()}
	}
	defer release()

	rep.State = StateLinking
	if plan.LinkStep == nil {
		return &failure{exitCode: ExitInternal, stderr: ErrLinkStep.Error()}
	}
	link, err := plan.LinkStep()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrLinkStep, err)
		r.logger.Error("Failed to generate link command", logfields.Error(err))
		s.sink.Report(progress.Event{Status: err.Error()})
		return &failure{exitCode: ExitInternal, stderr: err.Error()}
	}

	steps := []struct {
		state State
		line  string
	}{
		{StateLinking, link},
		{StateExtractingBinary, plan.BinCommand},
		{StateExtractingHex, plan.HexCommand},
	}
	for _, step := range steps {
		if ctx.Err() != nil {
			return nil
		}
		if step.line == "" {
			// Extraction steps may be switched off in the configuration.
			continue
		}
		rep.State = step.state
		stage := step.state.stage()
		res := runner.Run(ctx, step.line)
		rep.StageDurations[stage] = res.Duration
		if res.Err != nil && ctx.Err() != nil {
			return nil
		}
		s.recordCommand(ctx, r.logger, r.opts.BuildID, stage, 0, res)
		s.emitStage(ctx, r.logger, r.opts.BuildID, stage, res.Succeeded, res.Duration)
		if !res.Succeeded {
			r.logger.Error("Build step failed", logfields.Stage(stage), logfields.Command(step.line), logfields.ExitCode(res.ExitCode))
			s.sink.Report(progress.Event{Status: failureText(res)})
			return &failure{exitCode: res.ExitCode, command: step.line, stderr: res.Stderr}
		}
		status := fmt.Sprintf("[%s] ok", stage)
		if r.opts.Verbose {
			status = fmt.Sprintf("[%s] %s", stage, step.line)
		}
		s.sink.Report(progress.Event{
			Status:  status,
			Full:    fmt.Sprintf("[%s] %s", stage, step.line),
			Success: true,
			Repeat:  !r.opts.Verbose,
		})
		if warnings := strings.TrimSpace(res.Stderr); warnings != "" {
			s.sink.Report(progress.Event{Status: warnings})
		}
	}
	return nil
}

func (s *Scheduler) finish(ctx context.Context, logger *slog.Logger, opts Options, rep Report, f *failure) Report {
	rep.End = time.Now()
	outcome := metrics.OutcomeSuccess
	switch {
	case f != nil:
		rep.State = StateFailed
		rep.ExitCode = f.exitCode
		rep.FailedCommand = f.command
		rep.Stderr = f.stderr
		outcome = metrics.OutcomeFailed
		if f.exitCode < 0 {
			outcome = metrics.OutcomeError
		}
	case rep.State == StateCancelled:
		rep.ExitCode = ExitCancelled
		outcome = metrics.OutcomeCancelled
	}
	s.recorder.ObserveBuildDuration(rep.Duration())
	s.recorder.IncBuildOutcome(outcome)

	if finished, err := eventstore.NewBuildFinished(opts.BuildID, eventstore.BuildFinishedData{
		ExitCode:      rep.ExitCode,
		State:         string(rep.State),
		Completed:     rep.Completed,
		Total:         rep.Total,
		FailedCommand: rep.FailedCommand,
		DurationMS:    rep.Duration().Milliseconds(),
	}); err == nil {
		s.emit(ctx, logger, finished)
	}

	logger.Info("Build finished",
		slog.String("state", string(rep.State)),
		logfields.ExitCode(rep.ExitCode),
		slog.Int("completed", rep.Completed),
		logfields.Total(rep.Total),
		logfields.DurationMS(float64(rep.Duration().Milliseconds())))
	return rep
}

func (s *Scheduler) recordCommand(ctx context.Context, logger *slog.Logger, buildID, stage string, index int, res shell.Result) {
	s.recorder.ObserveCommandDuration(stage, res.Duration)
	s.recorder.IncCommandResult(stage, res.Succeeded)
	logger.Debug("Command finished",
		logfields.Stage(stage),
		logfields.Index(index),
		logfields.Command(res.Command),
		logfields.ExitCode(res.ExitCode),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))

	e, err := eventstore.NewCommandCompleted(buildID, eventstore.CommandCompletedData{
		Stage:      stage,
		Index:      index,
		Command:    res.Command,
		ExitCode:   res.ExitCode,
		DurationMS: res.Duration.Milliseconds(),
		Stderr:     res.Stderr,
	})
	if err != nil {
		logger.Warn("Failed to create command event", logfields.Error(err))
		return
	}
	s.emit(ctx, logger, e)
}

func (s *Scheduler) emitStage(ctx context.Context, logger *slog.Logger, buildID, stage string, ok bool, d time.Duration) {
	e, err := eventstore.NewStageCompleted(buildID, stage, ok, d)
	if err != nil {
		logger.Warn("Failed to create stage event", logfields.Error(err))
		return
	}
	s.emit(ctx, logger, e)
}

// emit persists e even after ctx is cancelled, so an interrupted build is
// still recorded.
func (s *Scheduler) emit(ctx context.Context, logger *slog.Logger, e eventstore.Event) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.EmitEvent(context.WithoutCancel(ctx), e); err != nil {
		logger.Warn("Failed to record build event", slog.String("type", e.Type()), logfields.Error(err))
	}
}

// failureText is the progress line for a failed command: its stderr, or a
// synthesized message when it wrote nothing.
func failureText(res shell.Result) string {
	if msg := strings.TrimRight(res.Stderr, "\r\n"); msg != "" {
		return msg
	}
	if res.Err != nil {
		return fmt.Sprintf("%s: %v", res.Command, res.Err)
	}
	return fmt.Sprintf("%s: exit code %d", res.Command, res.ExitCode)
}

func unitName(cmd toolchain.Command) string {
	if cmd.Unit.Source == "" {
		return "ok"
	}
	return filepath.Base(cmd.Unit.Source)
}
