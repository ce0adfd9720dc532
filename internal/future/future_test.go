package future

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inlinePool runs each item on its own goroutine; enough for engine tests
// without importing the real worker pool.
type inlinePool struct {
	submitted atomic.Int32
	fail      error
}

func (p *inlinePool) Submit(item func()) error {
	if p.fail != nil {
		return p.fail
	}
	p.submitted.Add(1)
	go item()
	return nil
}

// manualPool holds items until run is called, so tests control timing.
type manualPool struct {
	mu    sync.Mutex
	items []func()
}

func (p *manualPool) Submit(item func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, item)
	return nil
}

func (p *manualPool) runAll() {
	p.mu.Lock()
	items := p.items
	p.items = nil
	p.mu.Unlock()
	for _, it := range items {
		it()
	}
}

func TestFutureCompletes(t *testing.T) {
	f := New(&inlinePool{}, func(*CancellationToken) (int, error) { return 42, nil })
	require.Equal(t, Created, f.State())
	require.False(t, f.IsReady())

	require.NoError(t, f.Start())
	v, err := f.Get()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, Completed, f.State())
	assert.True(t, f.IsReady())
}

func TestFutureStartTwice(t *testing.T) {
	pool := &inlinePool{}
	f := New(pool, func(*CancellationToken) (int, error) { return 1, nil })
	require.NoError(t, f.Start())
	assert.ErrorIs(t, f.Start(), ErrAlreadyStarted)
	_, _ = f.Get()
	assert.Equal(t, int32(1), pool.submitted.Load(), "body must be submitted once")
}

func TestFutureStateTransitions(t *testing.T) {
	pool := &manualPool{}
	release := make(chan struct{})
	running := make(chan struct{})
	f := New(pool, func(*CancellationToken) (string, error) {
		close(running)
		<-release
		return "ok", nil
	})

	require.NoError(t, f.Start())
	assert.Equal(t, Scheduled, f.State())

	go pool.runAll()
	<-running
	assert.Equal(t, Running, f.State())

	close(release)
	_, err := f.Get()
	require.NoError(t, err)
	assert.Equal(t, Completed, f.State())
}

func TestFutureFaultIsStoredAndReraised(t *testing.T) {
	boom := errors.New("boom")
	f := New(&inlinePool{}, func(*CancellationToken) (int, error) { return 0, boom })

	var got Outcome[int]
	done := make(chan struct{})
	f.ContinueWith(func(o Outcome[int]) {
		got = o
		close(done)
	})
	require.NoError(t, f.Start())

	_, err := f.Get()
	assert.ErrorIs(t, err, boom)
	<-done
	assert.Equal(t, Faulted, got.State)
	assert.ErrorIs(t, got.Err, boom)
}

func TestFuturePanicBecomesFault(t *testing.T) {
	f := New(&inlinePool{}, func(*CancellationToken) (int, error) { panic("kaboom") })
	require.NoError(t, f.Start())
	_, err := f.Get()

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.Equal(t, Faulted, f.State())
}

func TestContinuationsRunInOrderExactlyOnce(t *testing.T) {
	pool := &manualPool{}
	f := New(pool, func(*CancellationToken) (int, error) { return 7, nil })

	var mu sync.Mutex
	var calls []int
	for i := range 5 {
		f.ContinueWith(func(o Outcome[int]) {
			mu.Lock()
			calls = append(calls, i)
			mu.Unlock()
		})
	}
	require.NoError(t, f.Start())
	pool.runAll()
	WaitAll(f)

	// Registered after completion: still runs, after the earlier ones.
	f.ContinueWith(func(o Outcome[int]) {
		mu.Lock()
		calls = append(calls, 5)
		mu.Unlock()
		assert.Equal(t, 7, o.Value)
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, calls)
}

func TestContinuationPanicDoesNotStopOthers(t *testing.T) {
	f := New(&inlinePool{}, func(*CancellationToken) (int, error) { return 1, nil })
	var second atomic.Bool
	f.ContinueWith(func(Outcome[int]) { panic("bad continuation") })
	f.ContinueWith(func(Outcome[int]) { second.Store(true) })
	require.NoError(t, f.Start())
	WaitAll(f)
	assert.True(t, second.Load())
}

func TestCancelledBeforeRunSkipsBody(t *testing.T) {
	pool := &manualPool{}
	tok := NewToken()
	var ran atomic.Bool
	f := New(pool, func(*CancellationToken) (int, error) {
		ran.Store(true)
		return 1, nil
	}, WithToken(tok))

	require.NoError(t, f.Start())
	require.True(t, tok.Cancel())
	require.False(t, tok.Cancel(), "token is set at most once")
	pool.runAll()

	_, err := f.Get()
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, Cancelled, f.State())
	assert.False(t, ran.Load())
}

func TestBodyObservingTokenIsCancelled(t *testing.T) {
	tok := NewToken()
	started := make(chan struct{})
	f := New(&inlinePool{}, func(tk *CancellationToken) (int, error) {
		close(started)
		<-tk.Done()
		return 0, tk.Err()
	}, WithToken(tok))
	require.NoError(t, f.Start())
	<-started
	tok.Cancel()
	_, err := f.Get()
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, Cancelled, f.State())
}

func TestBodyIgnoringTokenCompletes(t *testing.T) {
	tok := NewToken()
	started := make(chan struct{})
	release := make(chan struct{})
	f := New(&inlinePool{}, func(*CancellationToken) (int, error) {
		close(started)
		<-release
		return 9, nil
	}, WithToken(tok))
	require.NoError(t, f.Start())
	<-started
	tok.Cancel()
	close(release)

	v, err := f.Get()
	require.NoError(t, err)
	assert.Equal(t, 9, v)
	assert.Equal(t, Completed, f.State())
}

func TestSubmitFailureFaultsFuture(t *testing.T) {
	closed := errors.New("pool closed")
	f := New(&inlinePool{fail: closed}, func(*CancellationToken) (int, error) { return 1, nil })
	assert.ErrorIs(t, f.Start(), closed)
	_, err := f.Get()
	assert.ErrorIs(t, err, closed)
	assert.Equal(t, Faulted, f.State())
}

func TestTokenObserverCount(t *testing.T) {
	tok := NewToken()
	pool := &manualPool{}
	a := New(pool, func(*CancellationToken) (int, error) { return 1, nil }, WithToken(tok))
	b := New(pool, func(*CancellationToken) (int, error) { return 2, nil }, WithToken(tok))
	assert.Equal(t, 2, tok.Observers())

	require.NoError(t, a.Start())
	require.NoError(t, b.Start())
	pool.runAll()
	WaitAll(a, b)
	assert.Equal(t, 0, tok.Observers())

	var nilTok *CancellationToken
	assert.False(t, nilTok.Cancelled())
	assert.NoError(t, nilTok.Err())
}

func TestGetContextTimesOut(t *testing.T) {
	pool := &manualPool{}
	f := New(pool, func(*CancellationToken) (int, error) { return 1, nil })
	require.NoError(t, f.Start())

	ctx, cancel := contextWithTimeout(t, 10*time.Millisecond)
	defer cancel()
	_, err := f.GetContext(ctx)
	assert.Error(t, err)
	assert.Error(t, WaitAllContext(ctx, f))

	pool.runAll()
	v, err := f.Get()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.True(t, Faulted.Terminal())
	assert.False(t, Running.Terminal())
}
