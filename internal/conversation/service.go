// ABOUTME: Conversation service owning per-user rolling context with inactivity expiry
// ABOUTME: Serializes mutations per user and writes through to the conversation store

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/vito-gateway/internal/store"
)

// DefaultTTL is how long a conversation survives without activity.
const DefaultTTL = time.Hour

// Service is the single owner of conversation state. Calls for the same user
// are serialized; calls for different users never contend.
type Service struct {
	store  store.ConversationStore
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	locks sync.Map // user ID -> *sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source used for appended turns.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a new conversation Service
func New(st store.ConversationStore, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:  st,
		ttl:    DefaultTTL,
		logger: logger.With("component", "conversation"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured inactivity expiry.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

func (s *Service) lock(userID string) func() {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// GetOrReset returns the user's conversation. If none exists, or the user has
// been inactive for longer than the TTL as of now, the turns are cleared and
// LastActive is set to now first.
func (s *Service) GetOrReset(ctx context.Context, userID string, now time.Time) (*store.Conversation, error) {
	unlock := s.lock(userID)
	defer unlock()

	conv, err := s.store.GetConversation(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// fall through to reset
	case err != nil:
		return nil, fmt.Errorf("loading conversation: %w", err)
	case !s.expired(conv.LastActive, now):
		return conv, nil
	default:
		s.logger.Info("conversation expired", "user_id", userID, "last_active", conv.LastActive, "turns", len(conv.Turns))
	}

	if err := s.store.ResetConversation(ctx, userID, now); err != nil {
		return nil, fmt.Errorf("resetting conversation: %w", err)
	}
	return &store.Conversation{UserID: userID, LastActive: now}, nil
}

// AppendTurn appends a turn for userID and marks the user active.
func (s *Service) AppendTurn(ctx context.Context, userID string, role store.Role, text string) error {
	unlock := s.lock(userID)
	defer unlock()

	turn := store.Turn{Role: role, Text: text, At: s.now()}
	if err := s.store.AppendTurn(ctx, userID, turn); err != nil {
		return fmt.Errorf("appending %s turn: %w", role, err)
	}
	return nil
}

// Reset clears the user's turns unconditionally.
func (s *Service) Reset(ctx context.Context, userID string) error {
	unlock := s.lock(userID)
	defer unlock()

	if err := s.store.ResetConversation(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("resetting conversation: %w", err)
	}
	s.logger.Info("conversation reset", "user_id", userID)
	return nil
}

// History returns a copy of the user's turns without applying expiry.
func (s *Service) History(ctx context.Context, userID string) ([]store.Turn, error) {
	unlock := s.lock(userID)
	defer unlock()

	conv, err := s.store.GetConversation(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	return conv.Turns, nil
}

// Sweep deletes conversations idle past the TTL as of now. Users for which
// inFlight reports true are skipped. It returns the number deleted.
func (s *Service) Sweep(ctx context.Context, now time.Time, inFlight func(userID string) bool) (int, error) {
	candidates, err := s.store.ListIdleSince(ctx, now.Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("listing idle conversations: %w", err)
	}

	removed := 0
	for _, userID := range candidates {
		if inFlight != nil && inFlight(userID) {
			s.logger.Debug("sweep skipped in-flight user", "user_id", userID)
			continue
		}
		ok, err := s.sweepOne(ctx, userID, now)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("swept idle conversations", "removed", removed)
	}
	return removed, nil
}

func (s *Service) sweepOne(ctx context.Context, userID string, now time.Time) (bool, error) {
	unlock := s.lock(userID)
	defer unlock()

	// Activity may have happened since the listing
	conv, err := s.store.GetConversation(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading conversation: %w", err)
	}
	if !s.expired(conv.LastActive, now) {
		return false, nil
	}

	if err := s.store.DeleteConversation(ctx, userID); err != nil {
		return false, fmt.Errorf("deleting conversation: %w", err)
	}
	return true, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration, inFlight func(userID string) bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx, s.now(), inFlight); err != nil && ctx.Err() == nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// expired is strict: exactly TTL of inactivity is still live.
func (s *Service) expired(lastActive, now time.Time) bool {
	return now.Sub(lastActive) > s.ttl
}
