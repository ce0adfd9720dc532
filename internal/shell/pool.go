package shell

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
	"git.home.luguber.info/inful/fwbuilder/internal/metrics"
	"git.home.luguber.info/inful/fwbuilder/internal/retry"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = stdErrors.New("channel pool closed")

// Pool holds a fixed set of started sessions, one per concurrent caller.
// Callers hold a session exclusively between Acquire and Release, so a
// session never sees overlapping commands. A session released while a
// command abandoned by its caller is still running rejoins the idle set only
// once that command's frame is consumed; a session whose shell died is
// replaced by a fresh one.
type Pool struct {
	logger *slog.Logger
	ctx    context.Context // canceled by Close
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions []*Session
	idle     chan *Session
	done     chan struct{}
	once     sync.Once
}

var _ Runner = (*Pool)(nil)

// StartPool launches size sessions. A failed launch is retried per policy;
// when retries are exhausted the sessions already started are closed and a
// shell-category error is returned.
func StartPool(ctx context.Context, size int, opts Options, policy retry.Policy, recorder metrics.Recorder) (*Pool, error) {
	if size <= 0 {
		size = 1
	}
	recorder = metrics.OrNoop(recorder)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := opts.Name
	if base == "" {
		base = "shell"
	}

	poolCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &Pool{
		logger: logger,
		ctx:    poolCtx,
		cancel: cancel,
		idle:   make(chan *Session, size),
		done:   make(chan struct{}),
	}
	for i := range size {
		o := opts
		o.Name = fmt.Sprintf("%s-%d", base, i)
		var s *Session
		err := policy.Do(ctx, func() error {
			s = NewSession(o)
			return s.Start(ctx)
		}, func(attempt int, err error) {
			recorder.IncShellStartRetry()
			logger.Warn("Retrying shell start", slog.String("channel", o.Name), slog.Int("attempt", attempt), logfields.Error(err))
		})
		if err != nil {
			_ = p.Close(context.WithoutCancel(ctx))
			return nil, errors.WrapError(err, errors.CategoryShell, "failed to start persistent shell").
				WithContext("channel", o.Name).
				WithContext("attempts", policy.MaxRetries+1).
				Fatal().
				Build()
		}
		p.sessions = append(p.sessions, s)
		p.idle <- s
	}
	logger.Debug("Channel pool started", slog.Int("size", size), slog.String("dialect", opts.Dialect.Name))
	return p, nil
}

// Size returns the number of sessions.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Acquire blocks until a session is idle, ctx ends, or the pool closes.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	select {
	case <-p.done:
		return nil, ErrPoolClosed
	default:
	}
	select {
	case s := <-p.idle:
		return s, nil
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a session obtained from Acquire. A session that is still
// busy or whose shell has died is recycled in the background.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}
	if s.Busy() || !s.Alive() {
		go p.recycle(s)
		return
	}
	p.putIdle(s)
}

func (p *Pool) putIdle(s *Session) {
	select {
	case p.idle <- s:
	default:
		p.logger.Error("Session released twice", slog.String("channel", s.Name()))
	}
}

// recycle waits for the abandoned command on s to settle, then returns s to
// the idle set, or a replacement if its shell died.
func (p *Pool) recycle(s *Session) {
	if err := s.awaitIdle(p.ctx); err != nil {
		return
	}
	if s.Alive() {
		p.putIdle(s)
		return
	}
	select {
	case <-p.done:
		return
	default:
	}

	p.logger.Warn("Replacing dead shell session", slog.String("channel", s.Name()))
	fresh := NewSession(s.opts)
	if err := fresh.Start(p.ctx); err != nil {
		// Hand back the dead session so callers fail fast instead of waiting.
		p.logger.Error("Failed to replace shell session", slog.String("channel", s.Name()), logfields.Error(err))
		p.putIdle(s)
		return
	}
	_ = s.Close(p.ctx)

	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		_ = fresh.Close(context.Background())
		return
	default:
	}
	for i, old := range p.sessions {
		if old == s {
			p.sessions[i] = fresh
		}
	}
	p.mu.Unlock()
	p.putIdle(fresh)
}

// Run acquires a session, runs command on it and releases it.
func (p *Pool) Run(ctx context.Context, command string) Result {
	s, err := p.Acquire(ctx)
	if err != nil {
		return failure(command, err)
	}
	defer p.Release(s)
	return s.RunCommand(ctx, command)
}

// Close closes every session. Sessions held by callers are closed too; their
// pending commands fail with ErrChannelClosed.
func (p *Pool) Close(ctx context.Context) error {
	var errs []error
	p.once.Do(func() {
		p.mu.Lock()
		close(p.done)
		sessions := append([]*Session(nil), p.sessions...)
		p.mu.Unlock()
		defer p.cancel()
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, s := range sessions {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.Close(ctx); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
	})
	return stdErrors.Join(errs...)
}

// Pin binds a sequence of dependent commands to one channel. For a Pool it
// acquires a session and returns it with a release func; any other Runner is
// returned as is.
func Pin(ctx context.Context, r Runner) (Runner, func(), error) {
	p, ok := r.(*Pool)
	if !ok {
		return r, func() {}, nil
	}
	s, err := p.Acquire(ctx)
	if err != nil {
		return nil, func() {}, err
	}
	return s, func() { p.Release(s) }, nil
}
