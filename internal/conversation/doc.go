// Package conversation owns each user's rolling conversation context.
//
// # Overview
//
// The Service is the only writer of conversation state. It layers the expiry
// policy and per-user serialization on top of a store.ConversationStore:
//
//	svc := conversation.New(sqliteStore, logger)
//	conv, err := svc.GetOrReset(ctx, userID, time.Now())
//	err = svc.AppendTurn(ctx, userID, store.RoleUser, text)
//
// # Expiry
//
// A conversation expires once now - LastActive exceeds the TTL (one hour by
// default). Expiry is lazy: GetOrReset clears an expired conversation when it
// is next read at the start of a request. LastActive moves only when a turn
// is appended or the conversation is reset, so reading does not extend it.
//
// # Sweeping
//
// Sweep removes idle conversations in the background so the store does not
// grow without bound. It never touches a user whose work is in flight; the
// caller passes a predicate backed by the task registry.
//
// # Concurrency
//
// Each user ID has its own mutex (a sync.Map of *sync.Mutex). Operations on
// different users never contend.
package conversation
