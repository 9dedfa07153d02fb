// ABOUTME: Store interface and data types for vito-gateway persistence
// ABOUTME: Defines Turn and Conversation structs and the ConversationStore interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message within a user's conversation.
type Turn struct {
	Role Role
	Text string
	At   time.Time
}

// Conversation is a user's rolling context. Turns are in append order.
type Conversation struct {
	UserID     string
	Turns      []Turn
	LastActive time.Time
}

// Clone returns a deep copy safe for callers to modify.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Turns = append([]Turn(nil), c.Turns...)
	return &out
}

// ConversationStore persists per-user conversations.
type ConversationStore interface {
	// GetConversation returns the user's conversation or ErrNotFound.
	GetConversation(ctx context.Context, userID string) (*Conversation, error)

	// ResetConversation drops all turns and sets LastActive, creating the
	// conversation if it does not exist.
	ResetConversation(ctx context.Context, userID string, lastActive time.Time) error

	// AppendTurn adds a turn and sets LastActive to turn.At.
	AppendTurn(ctx context.Context, userID string, turn Turn) error

	// DeleteConversation removes the conversation and its turns.
	DeleteConversation(ctx context.Context, userID string) error

	// ListIdleSince returns users whose LastActive is before cutoff.
	ListIdleSince(ctx context.Context, cutoff time.Time) ([]string, error)

	Close() error
}
