// Package admission implements the single global gate that decides whether a
// new request may start now or must wait.
//
// # Rule
//
// A request from user U is held while any other admitted user V has
// rank(V) >= rank(U). Once no such user remains it is admitted and holds the
// gate until its release function runs.
//
// # Waiting
//
// Waiters block on a sync.Cond. Releases and context cancellation broadcast
// to wake them; an optional recheck interval adds periodic wakeups. Each
// pending request waits on its own goroutine, so the gate never stalls event
// intake or unrelated commands.
package admission
