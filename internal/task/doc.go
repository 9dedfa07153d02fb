// Package task tracks the cancellable unit of work each user has in flight.
//
// # Overview
//
// A Registry holds at most one Handle per user. The dispatcher registers a
// handle with TryBegin before it starts waiting for admission, so a stop
// command can abort work that is queued as well as work that is talking to a
// provider.
//
//	h, ctx, err := reg.TryBegin(parent, userID, rank)
//	if err != nil {
//	    return err // task.ErrAlreadyRunning
//	}
//	defer reg.End(h)
//
// # Cancellation
//
// Cancel(userID) cancels the handle's context with ErrCancelled as the cause.
// WasCancelled distinguishes a stop from a parent shutdown. The handle is not
// removed by Cancel; the owner removes it with End once it has unwound, which
// keeps End from racing ahead of a concurrent Cancel for the same user.
package task
