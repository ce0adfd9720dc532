// Package future implements deferred computations that run on a worker pool.
//
// A Future is created in the Created state, submitted with Start, and moves
// monotonically through Scheduled and Running to exactly one terminal state:
// Completed, Cancelled or Faulted. Callers block on Get, poll with IsReady, or
// register continuations with ContinueWith. Continuations run exactly once each,
// in registration order, including those registered after completion.
//
// Cancellation is cooperative. Futures sharing a CancellationToken observe it
// when they are about to run and may poll it from their body; a body that never
// polls runs to completion regardless of the token.
package future
