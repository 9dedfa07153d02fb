// ABOUTME: Global priority admission gate shared by all users
// ABOUTME: Requests wait on a condition variable while an equal-or-higher ranked user holds the gate

package admission

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/2389/vito-gateway/internal/priority"
)

// Holder describes a user currently admitted through the gate.
type Holder struct {
	UserID     string         `json:"user_id"`
	Rank       priority.Level `json:"rank"`
	AdmittedAt time.Time      `json:"admitted_at"`
}

// Gate admits a request from user U only while no other admitted user V has
// rank(V) >= rank(U). A higher-ranked user is therefore never held behind a
// lower-ranked one.
type Gate struct {
	mu      sync.Mutex
	cond    *sync.Cond
	holders map[string]Holder
	waiting int

	// recheck, when positive, wakes waiters periodically in addition to the
	// broadcasts sent on release and cancellation.
	recheck time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewGate creates an empty Gate.
func NewGate(recheck time.Duration, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		holders: make(map[string]Holder),
		recheck: recheck,
		logger:  logger.With("component", "admission"),
		now:     time.Now,
	}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Acquire blocks until userID may proceed or ctx is done. onQueued, if non-nil,
// is called at most once, without the gate lock held, the first time the
// request has to wait. The returned release function must be called exactly
// once when the admitted work finishes.
func (g *Gate) Acquire(ctx context.Context, userID string, rank priority.Level, onQueued func()) (release func(), err error) {
	g.mu.Lock()

	if g.blockedLocked(userID, rank) {
		g.waiting++
		stopWake := g.wakeOn(ctx)

		g.mu.Unlock()
		g.logger.Info("request queued", "user_id", userID, "rank", rank.String())
		if onQueued != nil {
			onQueued()
		}
		g.mu.Lock()

		for g.blockedLocked(userID, rank) && ctx.Err() == nil {
			g.cond.Wait()
		}

		g.waiting--
		stopWake()

		if err := ctx.Err(); err != nil {
			g.mu.Unlock()
			return nil, err
		}
	}

	g.holders[userID] = Holder{UserID: userID, Rank: rank, AdmittedAt: g.now()}
	g.mu.Unlock()

	g.logger.Debug("request admitted", "user_id", userID, "rank", rank.String())

	var once sync.Once
	return func() {
		once.Do(func() { g.release(userID) })
	}, nil
}

// blockedLocked must be called with mu held.
func (g *Gate) blockedLocked(userID string, rank priority.Level) bool {
	for id, h := range g.holders {
		if id != userID && h.Rank >= rank {
			return true
		}
	}
	return false
}

// wakeOn broadcasts when ctx is done and, if configured, on every recheck
// tick. The returned function stops both. Must be called with mu held.
func (g *Gate) wakeOn(ctx context.Context) func() {
	broadcast := func() {
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	}
	stopAfter := context.AfterFunc(ctx, broadcast)

	if g.recheck <= 0 {
		return func() { stopAfter() }
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(g.recheck)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				broadcast()
			case <-done:
				return
			}
		}
	}()

	return func() {
		stopAfter()
		close(done)
	}
}

func (g *Gate) release(userID string) {
	g.mu.Lock()
	delete(g.holders, userID)
	g.cond.Broadcast()
	g.mu.Unlock()

	g.logger.Debug("request released", "user_id", userID)
}

// Waiting returns the number of requests currently held at the gate.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiting
}

// Holders returns the admitted users, highest rank first.
func (g *Gate) Holders() []Holder {
	g.mu.Lock()
	out := make([]Holder, 0, len(g.holders))
	for _, h := range g.holders {
		out = append(out, h)
	}
	g.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].AdmittedAt.Before(out[j].AdmittedAt)
	})
	return out
}
