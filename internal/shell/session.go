package shell

import (
	"context"
	stdErrors "errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
)

// DefaultGracePeriod is how long Close waits for the shell to exit after
// stdin is closed before killing it.
const DefaultGracePeriod = 200 * time.Millisecond

const readBufferSize = 32 * 1024

// Options configures a Session.
type Options struct {
	Name        string
	Dialect     Dialect
	Dir         string   // working directory for every command
	Env         []string // nil inherits the process environment
	GracePeriod time.Duration
	// Unfenced disables the stderr fence, attributing all stderr seen before
	// the stdout sentinel to the current command.
	Unfenced bool
	Logger   *slog.Logger
}

type chunk struct {
	stream Stream
	data   []byte
}

// Session is a Channel backed by one long-lived shell process.
type Session struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool // Close called
	dead    bool // output streams ended
	busy    bool
	waiter  chan Result
	settled chan struct{} // closed when the in-flight command's frame is consumed
	current string

	cmd     *exec.Cmd
	stdin   *os.File
	readEnd []*os.File

	exited    chan struct{}
	demuxDone chan struct{}
}

var _ Channel = (*Session)(nil)

// NewSession prepares a session; call Start to launch the shell.
func NewSession(opts Options) *Session {
	if opts.Dialect.Program == "" {
		opts.Dialect = Posix()
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Name == "" {
		opts.Name = opts.Dialect.Name
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		opts:      opts,
		logger:    logger.With(slog.String("channel", opts.Name)),
		exited:    make(chan struct{}),
		demuxDone: make(chan struct{}),
	}
}

// Name returns the session label used in logs.
func (s *Session) Name() string { return s.opts.Name }

// Start launches the shell with its standard streams on pipes owned by the session.
func (s *Session) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return errors.ShellError("shell session already started").WithContext("channel", s.opts.Name).Build()
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return s.startErr(err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW)
		return s.startErr(err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW)
		return s.startErr(err)
	}

	// #nosec G204 -- the shell program comes from the configured dialect
	cmd := exec.Command(s.opts.Dialect.Program, s.opts.Dialect.Args...)
	cmd.Dir = s.opts.Dir
	cmd.Env = s.opts.Env
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW, stderrR, stderrW)
		return s.startErr(err)
	}
	// The child owns these ends now.
	closeAll(stdinR, stdoutW, stderrW)

	s.cmd = cmd
	s.stdin = stdinW
	s.readEnd = []*os.File{stdoutR, stderrR}
	s.started = true

	go func() {
		err := cmd.Wait()
		s.logger.Debug("Shell exited", logfields.Error(err))
		close(s.exited)
	}()

	chunks := make(chan chunk, 16)
	var readers sync.WaitGroup
	readers.Add(2)
	go s.read(stdoutR, Stdout, chunks, &readers)
	go s.read(stderrR, Stderr, chunks, &readers)
	go func() {
		readers.Wait()
		close(chunks)
	}()
	go s.demux(chunks)

	s.logger.Debug("Shell started", slog.String("program", s.opts.Dialect.Program), slog.Int("pid", cmd.Process.Pid))
	return nil
}

func (s *Session) startErr(err error) error {
	return errors.WrapError(err, errors.CategoryShell, "failed to start persistent shell").
		WithContext("channel", s.opts.Name).
		WithContext("program", s.opts.Dialect.Program).
		Build()
}

func (s *Session) read(r io.Reader, stream Stream, out chan<- chunk, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			out <- chunk{stream: stream, data: data}
		}
		if err != nil {
			if !stdErrors.Is(err, io.EOF) && !stdErrors.Is(err, os.ErrClosed) {
				s.logger.Debug("Shell pipe read failed", slog.String("stream", stream.String()), logfields.Error(err))
			}
			return
		}
	}
}

// demux owns the framer and hands each frame to the caller waiting for it.
func (s *Session) demux(chunks <-chan chunk) {
	defer close(s.demuxDone)
	framer := NewFramer(!s.opts.Unfenced)
	for c := range chunks {
		for _, fr := range framer.Feed(c.stream, c.data) {
			s.publish(fr)
		}
	}

	s.mu.Lock()
	s.dead = true
	if s.waiter != nil {
		s.waiter <- failure(s.current, ErrChannelClosed)
	}
	s.settle()
	s.mu.Unlock()
	if framer.Pending() {
		s.logger.Debug("Shell output ended with unframed data")
	}
}

func (s *Session) publish(fr Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiter == nil {
		s.logger.Warn("Dropping frame with no pending command", logfields.ExitCode(fr.ExitCode))
		return
	}
	s.waiter <- Result{
		Command:   s.current,
		Stdout:    fr.Stdout,
		Stderr:    fr.Stderr,
		ExitCode:  fr.ExitCode,
		Succeeded: fr.ExitCode == 0,
	}
	s.settle()
}

// settle marks the session idle. Callers hold s.mu.
func (s *Session) settle() {
	s.waiter = nil
	s.busy = false
	if s.settled != nil {
		close(s.settled)
		s.settled = nil
	}
}

// awaitIdle blocks until no command is in flight or ctx ends.
func (s *Session) awaitIdle(ctx context.Context) error {
	s.mu.Lock()
	if !s.busy {
		s.mu.Unlock()
		return nil
	}
	settled := s.settled
	s.mu.Unlock()
	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Busy reports whether a command is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Alive reports whether the shell is started and still producing output.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.closed && !s.dead
}

// RunCommand writes command and its trailer to the shell and blocks until the
// matching frame arrives. It never queues: if the session is not started, is
// closed, or is busy, it fails immediately with ExitCode -1. If ctx ends first
// the caller gets a failure while the session stays busy until the command's
// frame is consumed.
func (s *Session) RunCommand(ctx context.Context, command string) Result {
	start := time.Now()
	s.mu.Lock()
	switch {
	case !s.started:
		s.mu.Unlock()
		return failure(command, ErrNotStarted)
	case s.closed || s.dead:
		s.mu.Unlock()
		return failure(command, ErrChannelClosed)
	case s.busy:
		s.mu.Unlock()
		s.logger.Error("Command rejected while channel busy", logfields.Command(command))
		return failure(command, ErrChannelBusy)
	}
	waiter := make(chan Result, 1)
	s.busy = true
	s.waiter = waiter
	s.settled = make(chan struct{})
	s.current = command
	stdin := s.stdin
	s.mu.Unlock()

	// Written outside the lock: a full pipe must not stall frame delivery.
	if _, err := io.WriteString(stdin, s.opts.Dialect.Frame(command)); err != nil {
		s.mu.Lock()
		if s.waiter == waiter {
			s.settle()
		}
		s.mu.Unlock()
		s.logger.Warn("Failed to write command to shell", logfields.Command(command), logfields.Error(err))
		select {
		case res := <-waiter:
			return res
		default:
		}
		return failure(command, stdErrors.Join(ErrWriteFailed, err))
	}

	select {
	case res := <-waiter:
		res.Duration = time.Since(start)
		s.logger.Debug("Command finished",
			logfields.Command(command),
			logfields.ExitCode(res.ExitCode),
			logfields.DurationMS(float64(res.Duration.Milliseconds())))
		return res
	case <-ctx.Done():
		res := failure(command, ctx.Err())
		res.Duration = time.Since(start)
		return res
	}
}

// Run implements Runner.
func (s *Session) Run(ctx context.Context, command string) Result {
	return s.RunCommand(ctx, command)
}

// Close closes stdin so the shell exits on its own, kills its process group if
// it is still running after the grace period, and waits for the output
// readers. A caller blocked in RunCommand is woken with ErrChannelClosed.
// Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.closed {
		s.closed = true
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.stdin.Close()

	timer := time.NewTimer(s.opts.GracePeriod)
	defer timer.Stop()
	select {
	case <-s.exited:
	case <-timer.C:
		s.logger.Debug("Shell did not exit within grace period; killing", slog.Duration("grace", s.opts.GracePeriod))
		if err := killProcessTree(s.cmd); err != nil {
			s.logger.Warn("Failed to kill shell", logfields.Error(err))
		}
	}

	var err error
	select {
	case <-s.exited:
	case <-ctx.Done():
		err = ctx.Err()
	}

	// Descendants may still hold the write ends; closing our read ends
	// unblocks the readers regardless.
	drain := time.NewTimer(s.opts.GracePeriod)
	defer drain.Stop()
	select {
	case <-s.demuxDone:
	case <-drain.C:
	case <-ctx.Done():
	}
	closeAll(s.readEnd...)
	select {
	case <-s.demuxDone:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	if err != nil {
		return errors.WrapError(err, errors.CategoryShell, "shell shutdown incomplete").
			WithContext("channel", s.opts.Name).
			Build()
	}
	return nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
