package future

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Submitter runs work items on background workers. The build/queue Pool
// satisfies it.
type Submitter interface {
	Submit(item func()) error
}

// Body is the computation a Future runs. It receives the future's token and
// should check it at safe points.
type Body[T any] func(token *CancellationToken) (T, error)

// Outcome is what continuations receive once a Future is terminal. For a
// Faulted or Cancelled future Value is the zero value and Err is set.
type Outcome[T any] struct {
	Value T
	Err   error
	State State
}

// Option configures a Future.
type Option func(*options)

type options struct {
	name  string
	token *CancellationToken
}

// WithName labels the future in log output.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithToken shares a cancellation token with other futures.
func WithToken(token *CancellationToken) Option {
	return func(o *options) { o.token = token }
}

// Future is a handle to one asynchronous computation producing a T.
type Future[T any] struct {
	name  string
	body  Body[T]
	pool  Submitter
	token *CancellationToken

	mu         sync.Mutex
	state      State
	value      T
	err        error
	pending    []func(Outcome[T])
	delivering bool
	isSettled  bool

	terminal chan struct{}
	settled  chan struct{}
}

// New creates a Future in the Created state. The body runs on pool once Start
// is called.
func New[T any](pool Submitter, body Body[T], opts ...Option) *Future[T] {
	if pool == nil {
		panic("future.New: pool is required")
	}
	if body == nil {
		panic("future.New: body is required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.token == nil {
		o.token = NewToken()
	}
	o.token.Acquire()
	return &Future[T]{
		name:     o.name,
		body:     body,
		pool:     pool,
		token:    o.token,
		terminal: make(chan struct{}),
		settled:  make(chan struct{}),
	}
}

// Token returns the cancellation token observed by the future.
func (f *Future[T]) Token() *CancellationToken { return f.token }

// Name returns the label given with WithName.
func (f *Future[T]) Name() string { return f.name }

// State returns the current lifecycle state.
func (f *Future[T]) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// IsReady reports whether the future has reached a terminal state.
func (f *Future[T]) IsReady() bool {
	select {
	case <-f.terminal:
		return true
	default:
		return false
	}
}

// Done returns a channel closed once the future is terminal.
func (f *Future[T]) Done() <-chan struct{} { return f.terminal }

// Settled returns a channel closed once the future is terminal and every
// continuation registered before completion has returned.
func (f *Future[T]) Settled() <-chan struct{} { return f.settled }

// Start schedules the body on the pool. Only the first call has an effect.
func (f *Future[T]) Start() error {
	f.mu.Lock()
	if f.state != Created {
		state := f.state
		f.mu.Unlock()
		slog.Warn("Future started more than once", "future", f.name, "state", state.String())
		return ErrAlreadyStarted
	}
	f.state = Scheduled
	f.mu.Unlock()

	if err := f.pool.Submit(f.run); err != nil {
		var zero T
		f.finish(Faulted, zero, err)
		return err
	}
	return nil
}

// ContinueWith registers fn to run with the outcome once the future is
// terminal. If it already is, fn runs on the calling goroutine, after any
// earlier continuations still being delivered.
func (f *Future[T]) ContinueWith(fn func(Outcome[T])) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	f.pending = append(f.pending, fn)
	terminal := f.state.Terminal()
	f.mu.Unlock()
	if terminal {
		f.deliver()
	}
}

// Get blocks until the future is terminal and returns its value or fault.
func (f *Future[T]) Get() (T, error) {
	<-f.terminal
	return f.result()
}

// GetContext is Get bounded by ctx.
func (f *Future[T]) GetContext(ctx context.Context) (T, error) {
	select {
	case <-f.terminal:
		return f.result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

func (f *Future[T]) run() {
	f.mu.Lock()
	if f.state != Scheduled {
		f.mu.Unlock()
		return
	}
	f.state = Running
	f.mu.Unlock()

	var zero T
	if f.token.Cancelled() {
		f.finish(Cancelled, zero, ErrCancelled)
		return
	}

	value, err := f.invoke()
	switch {
	case err == nil:
		f.finish(Completed, value, nil)
	case errors.Is(err, ErrCancelled):
		f.finish(Cancelled, zero, err)
	default:
		f.finish(Faulted, zero, err)
	}
}

func (f *Future[T]) invoke() (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value, err = zero, &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return f.body(f.token)
}

func (f *Future[T]) finish(state State, value T, err error) {
	f.mu.Lock()
	if f.state.Terminal() {
		f.mu.Unlock()
		return
	}
	f.state = state
	f.value = value
	f.err = err
	f.mu.Unlock()

	close(f.terminal)
	f.token.Release()
	f.deliver()
}

// deliver runs pending continuations in order. Only one goroutine delivers at
// a time; others that find delivery in progress leave their continuation for it.
// The first delivery pass to drain the queue after completion closes settled.
func (f *Future[T]) deliver() {
	f.mu.Lock()
	if f.delivering {
		f.mu.Unlock()
		return
	}
	f.delivering = true
	out := Outcome[T]{Value: f.value, Err: f.err, State: f.state}
	for len(f.pending) > 0 {
		fn := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		f.runContinuation(fn, out)
		f.mu.Lock()
	}
	f.delivering = false
	if !f.isSettled {
		f.isSettled = true
		close(f.settled)
	}
	f.mu.Unlock()
}

func (f *Future[T]) runContinuation(fn func(Outcome[T]), out Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Future continuation panicked", "future", f.name, "panic", r)
		}
	}()
	fn(out)
}

// WaitAll blocks until every future is terminal and its continuations have run.
func WaitAll[T any](futures ...*Future[T]) {
	for _, f := range futures {
		if f != nil {
			<-f.settled
		}
	}
}

// WaitAllContext is WaitAll bounded by ctx.
func WaitAllContext[T any](ctx context.Context, futures ...*Future[T]) error {
	for _, f := range futures {
		if f == nil {
			continue
		}
		select {
		case <-f.settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
