package future

import (
	"sync"
	"sync/atomic"
)

// CancellationToken is a set-once cancellation flag shared by a group of futures.
// It is never reset. The zero value is not usable; use NewToken. A nil token is
// treated as never cancelled.
type CancellationToken struct {
	cancelled atomic.Bool
	observers atomic.Int32
	once      sync.Once
	done      chan struct{}
}

// NewToken returns an unset token.
func NewToken() *CancellationToken {
	return &CancellationToken{done: make(chan struct{})}
}

// Cancel sets the flag. It reports whether this call was the one that set it.
func (t *CancellationToken) Cancel() bool {
	if t == nil {
		return false
	}
	set := false
	t.once.Do(func() {
		t.cancelled.Store(true)
		close(t.done)
		set = true
	})
	return set
}

// Cancelled reports whether the flag has been set.
func (t *CancellationToken) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// Err returns ErrCancelled once the flag is set, nil before.
func (t *CancellationToken) Err() error {
	if t.Cancelled() {
		return ErrCancelled
	}
	return nil
}

// Done returns a channel closed when the token is cancelled. A nil token
// returns a nil channel, which blocks forever in a select.
func (t *CancellationToken) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.done
}

// Acquire registers an observer of the token.
func (t *CancellationToken) Acquire() {
	if t != nil {
		t.observers.Add(1)
	}
}

// Release drops an observer registered with Acquire.
func (t *CancellationToken) Release() {
	if t != nil {
		t.observers.Add(-1)
	}
}

// Observers returns the number of live observers.
func (t *CancellationToken) Observers() int {
	if t == nil {
		return 0
	}
	return int(t.observers.Load())
}
