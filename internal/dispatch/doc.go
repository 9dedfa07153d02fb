// ABOUTME: Package dispatch documentation
// ABOUTME: Describes the lifecycle of an inbound request

// Package dispatch turns inbound chat events into replies.
//
// Each event is parsed into a command. Stop, remember, and bare newchat are
// answered immediately. Everything else becomes a unit of work: the user's
// entry slot is taken, a task handle is registered, the admission gate is
// passed, the conversation is loaded and extended, and the completion gateway
// is called under a cancellable context. A unit ends completed, cancelled, or
// failed. Cancelled units send nothing and record no assistant turn.
package dispatch
