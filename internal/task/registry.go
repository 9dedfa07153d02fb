// ABOUTME: Registry of in-flight units of work, at most one per user
// ABOUTME: Each handle carries a cancel function so stop commands can abort it

package task

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/vito-gateway/internal/priority"
)

// ErrAlreadyRunning is returned by TryBegin when the user already has a handle.
var ErrAlreadyRunning = errors.New("task already running")

// ErrCancelled is the cancellation cause recorded when a handle is stopped.
var ErrCancelled = errors.New("task cancelled")

// Handle is a registered unit of work. Only the registry mutates it.
type Handle struct {
	ID        string
	UserID    string
	Rank      priority.Level
	StartedAt time.Time

	cancel context.CancelCauseFunc
}

// Info is a read-only snapshot of a handle.
type Info struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Rank      priority.Level `json:"rank"`
	StartedAt time.Time      `json:"started_at"`
}

func (h *Handle) info() Info {
	return Info{ID: h.ID, UserID: h.UserID, Rank: h.Rank, StartedAt: h.StartedAt}
}

// Registry tracks the running handle per user.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
	logger  *slog.Logger
	now     func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handles: make(map[string]*Handle),
		logger:  logger.With("component", "task"),
		now:     time.Now,
	}
}

// TryBegin registers a new handle for userID derived from parent. The returned
// context is cancelled when Cancel is called for the user or parent is done.
func (r *Registry) TryBegin(parent context.Context, userID string, rank priority.Level) (*Handle, context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[userID]; exists {
		return nil, nil, ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancelCause(parent)
	h := &Handle{
		ID:        uuid.New().String(),
		UserID:    userID,
		Rank:      rank,
		StartedAt: r.now(),
		cancel:    cancel,
	}
	r.handles[userID] = h

	r.logger.Debug("task registered", "user_id", userID, "task_id", h.ID, "rank", rank.String())
	return h, ctx, nil
}

// Cancel signals the user's running handle. It reports whether a handle was found.
// The handle stays registered until its owner calls End.
func (r *Registry) Cancel(userID string) bool {
	r.mu.Lock()
	h, ok := r.handles[userID]
	r.mu.Unlock()

	if !ok {
		return false
	}

	h.cancel(ErrCancelled)
	r.logger.Info("task cancelled", "user_id", userID, "task_id", h.ID)
	return true
}

// End removes h if it is still the registered handle for its user and releases
// its context. Safe to call more than once.
func (r *Registry) End(h *Handle) {
	if h == nil {
		return
	}

	r.mu.Lock()
	if cur, ok := r.handles[h.UserID]; ok && cur == h {
		delete(r.handles, h.UserID)
	}
	r.mu.Unlock()

	h.cancel(nil)
	r.logger.Debug("task ended", "user_id", h.UserID, "task_id", h.ID)
}

// Running returns the handle info for userID, if any.
func (r *Registry) Running(userID string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[userID]
	if !ok {
		return Info{}, false
	}
	return h.info(), true
}

// IsRunning reports whether userID has a registered handle.
func (r *Registry) IsRunning(userID string) bool {
	_, ok := r.Running(userID)
	return ok
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Snapshot returns all handles ordered by start time.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h.info())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// WasCancelled reports whether ctx ended because its handle was stopped.
func WasCancelled(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrCancelled)
}
