// ABOUTME: Request coordinator: parses intent, arbitrates admission, runs cancellable units of work
// ABOUTME: Every unit ends completed, cancelled, or failed, and always clears its task handle

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/vito-gateway/internal/admission"
	"github.com/2389/vito-gateway/internal/conversation"
	"github.com/2389/vito-gateway/internal/memory"
	"github.com/2389/vito-gateway/internal/metrics"
	"github.com/2389/vito-gateway/internal/priority"
	"github.com/2389/vito-gateway/internal/provider"
	"github.com/2389/vito-gateway/internal/store"
	"github.com/2389/vito-gateway/internal/task"
)

// Responder is the outbound sink for one inbound event.
type Responder interface {
	// Reply answers the triggering message directly.
	Reply(ctx context.Context, text string) error
	// FollowUp sends a plain message to the same channel.
	FollowUp(ctx context.Context, text string) error
}

// Typer is optionally implemented by a Responder to show activity while a
// provider call is outstanding.
type Typer interface {
	Typing(ctx context.Context, on bool)
}

// Event is one inbound request addressed to the assistant.
type Event struct {
	ID                 string
	AuthorID           string
	Text               string // mention already removed
	ReferencedAuthorID string // author of the message this one replies to, if any
	Out                Responder
}

// Completer is the completion gateway as seen by the dispatcher.
type Completer interface {
	Complete(ctx context.Context, route provider.Route, history []store.Turn, system string) (string, error)
}

// Memories is the long-term memory store as seen by the dispatcher.
type Memories interface {
	Get(ctx context.Context, userID string) ([]memory.Item, error)
	Append(ctx context.Context, userID, text string, at time.Time) error
}

// Config tunes dispatcher behavior.
type Config struct {
	Persona    string
	Location   *time.Location // timezone for memory date tags
	SoftLimit  int
	HardLimit  int
	ChunkDelay time.Duration
}

// Dispatcher coordinates requests across users.
type Dispatcher struct {
	cfg      Config
	policy   *priority.Policy
	registry *task.Registry
	gate     *admission.Gate
	convos   *conversation.Service
	memories Memories
	gateway  Completer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	// per-user entry slots keep one user's turns in admission order
	slots sync.Map // user ID -> chan struct{}
	wg    sync.WaitGroup
}

// Deps are the collaborators a Dispatcher needs.
type Deps struct {
	Policy   *priority.Policy
	Registry *task.Registry
	Gate     *admission.Gate
	Convos   *conversation.Service
	Memories Memories
	Gateway  Completer
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// New creates a Dispatcher.
func New(cfg Config, deps Deps) *Dispatcher {
	if cfg.Persona == "" {
		cfg.Persona = DefaultPersona
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SoftLimit <= 0 {
		cfg.SoftLimit = DefaultSoftLimit
	}
	if cfg.HardLimit <= 0 {
		cfg.HardLimit = DefaultHardLimit
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:      cfg,
		policy:   deps.Policy,
		registry: deps.Registry,
		gate:     deps.Gate,
		convos:   deps.Convos,
		memories: deps.Memories,
		gateway:  deps.Gateway,
		metrics:  deps.Metrics,
		logger:   logger.With("component", "dispatch"),
		now:      time.Now,
	}
}

// Dispatch handles ev on its own goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Handle(ctx, ev)
	}()
}

// Wait blocks until every dispatched event has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Handle processes ev to completion.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) {
	cmd := Parse(ev.Text)
	d.metrics.Request(cmd.Kind.String())

	logger := d.logger.With("user_id", ev.AuthorID, "event_id", ev.ID, "command", cmd.Kind.String())
	logger.Info("request received")

	switch cmd.Kind {
	case KindStop:
		d.handleStop(ctx, ev, logger)

	case KindNewChat:
		if cmd.Arg == "" {
			d.handleNewChat(ctx, ev, logger)
			return
		}
		d.runTurn(ctx, ev, cmd.Arg, provider.RouteDefault, true, logger)

	case KindRemember:
		if cmd.Arg == "" {
			d.send(ctx, ev, replyNothingToSave)
			return
		}
		if err := d.memories.Append(ctx, ev.AuthorID, cmd.Arg, d.now().In(d.cfg.Location)); err != nil {
			logger.Error("saving memory", "error", err)
			d.metrics.PersistFailure("memory")
			d.send(ctx, ev, replyMemoryFailed)
			return
		}
		d.send(ctx, ev, replySaved)

	case KindRecall:
		items, err := d.memories.Get(ctx, ev.AuthorID)
		if err != nil {
			logger.Error("reading memory", "error", err)
			d.metrics.PersistFailure("memory")
			d.send(ctx, ev, replyMemoryReadError)
			return
		}
		if len(items) == 0 {
			d.send(ctx, ev, replyNothingSaved)
			return
		}
		d.runTurn(ctx, ev, recallPrompt(items), provider.RouteDefault, false, logger)

	case KindAlternate:
		arg := cmd.Arg
		if arg == "" {
			arg = " "
		}
		d.runTurn(ctx, ev, arg, provider.RouteAlternate, false, logger)

	case KindSearch:
		if cmd.Arg == "" {
			d.send(ctx, ev, replySearchUsage)
			return
		}
		d.runTurn(ctx, ev, searchPrompt(cmd.Arg), provider.RouteDefault, false, logger)

	default:
		if cmd.Arg == "" {
			d.send(ctx, ev, replyEmptyPrompt)
			return
		}
		d.runTurn(ctx, ev, cmd.Arg, provider.RouteDefault, false, logger)
	}
}

// handleStop never starts work and never waits at the gate.
func (d *Dispatcher) handleStop(ctx context.Context, ev Event, logger *slog.Logger) {
	caller := ev.AuthorID
	if d.registry.Cancel(caller) {
		d.metrics.Stop("self")
		d.send(ctx, ev, replyStopped)
		return
	}

	callerRank := d.policy.Rank(caller)
	target := ev.ReferencedAuthorID
	if !callerRank.Privileged() || target == caller {
		d.metrics.Stop("noop")
		d.send(ctx, ev, replyNothingRunning)
		return
	}
	if target == "" {
		d.metrics.Stop("noop")
		d.send(ctx, ev, replyNeedReference)
		return
	}

	if !d.policy.Outranks(caller, target) {
		logger.Info("force stop refused", "target", target, "caller_rank", callerRank.String(), "target_rank", d.policy.Rank(target).String())
		d.metrics.Stop("refused")
		d.send(ctx, ev, replyOutranked(target))
		return
	}
	if !d.registry.Cancel(target) {
		d.metrics.Stop("noop")
		d.send(ctx, ev, replyTargetIdle(target))
		return
	}

	logger.Info("force stopped", "target", target)
	d.metrics.Stop("force")
	d.send(ctx, ev, replyForceStopped(target))
}

// handleNewChat clears the user's context once any earlier turn of theirs
// has finished. It never waits at the gate.
func (d *Dispatcher) handleNewChat(ctx context.Context, ev Event, logger *slog.Logger) {
	leave, err := d.enter(ctx, ev.AuthorID)
	if err != nil {
		logger.Debug("abandoned before entry", "error", err)
		return
	}
	defer leave()

	if d.resetConversation(ctx, ev, logger) {
		d.send(ctx, ev, replyNewChat)
	}
}

func (d *Dispatcher) resetConversation(ctx context.Context, ev Event, logger *slog.Logger) bool {
	if err := d.convos.Reset(ctx, ev.AuthorID); err != nil {
		logger.Error("resetting conversation", "error", err)
		d.metrics.PersistFailure("conversation")
		d.send(ctx, ev, replyResetFailed)
		return false
	}
	return true
}

// runTurn is the plain conversational turn shared by most commands. With
// reset set, the user's context is cleared inside the entry slot so the
// reset and the new message land together.
func (d *Dispatcher) runTurn(ctx context.Context, ev Event, text string, route provider.Route, reset bool, logger *slog.Logger) {
	user := ev.AuthorID
	rank := d.policy.Rank(user)

	leave, err := d.enter(ctx, user)
	if err != nil {
		logger.Debug("abandoned before entry", "error", err)
		return
	}
	defer leave()

	h, taskCtx, err := d.registry.TryBegin(ctx, user, rank)
	if errors.Is(err, task.ErrAlreadyRunning) {
		d.send(ctx, ev, replyAlreadyRunning)
		return
	}
	defer d.registry.End(h)
	logger = logger.With("task_id", h.ID)

	if reset && !d.resetConversation(ctx, ev, logger) {
		d.metrics.Outcome("failed")
		return
	}

	release, err := d.gate.Acquire(taskCtx, user, rank, func() {
		d.metrics.Queued()
		d.send(ctx, ev, replyQueued)
	})
	if err != nil {
		logger.Info("cancelled while queued", "stopped", task.WasCancelled(taskCtx))
		d.metrics.Outcome("cancelled")
		return
	}
	defer release()

	outcome := d.work(ctx, taskCtx, ev, text, route, logger)
	d.metrics.Outcome(outcome)
	logger.Info("unit finished", "outcome", outcome, "duration", time.Since(h.StartedAt))
}

// work runs an admitted unit and returns its terminal state.
func (d *Dispatcher) work(ctx, taskCtx context.Context, ev Event, text string, route provider.Route, logger *slog.Logger) (outcome string) {
	user := ev.AuthorID

	// Writes after a response arrives must land even if a stop races in.
	persistCtx := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in unit of work", "panic", r)
			d.send(ctx, ev, replyInternalError)
			outcome = "failed"
		}
	}()

	conv, err := d.convos.GetOrReset(persistCtx, user, d.now())
	if err != nil {
		logger.Error("loading conversation", "error", err)
		d.metrics.PersistFailure("conversation")
		d.send(ctx, ev, replyHistoryFailed)
		return "failed"
	}
	if err := d.convos.AppendTurn(persistCtx, user, store.RoleUser, text); err != nil {
		logger.Error("recording user turn", "error", err)
		d.metrics.PersistFailure("conversation")
		d.send(ctx, ev, replyHistoryFailed)
		return "failed"
	}
	history := append(conv.Turns, store.Turn{Role: store.RoleUser, Text: text, At: d.now()})

	system := d.systemInstruction(persistCtx, user, logger)

	if typer, ok := ev.Out.(Typer); ok {
		typer.Typing(ctx, true)
		defer typer.Typing(persistCtx, false)
	}

	start := time.Now()
	reply, err := d.gateway.Complete(taskCtx, route, history, system)
	d.metrics.ProviderLatency(route.String(), time.Since(start))

	if err != nil && taskCtx.Err() != nil {
		logger.Info("unit cancelled", "stopped", task.WasCancelled(taskCtx))
		return "cancelled"
	}

	if err != nil {
		reply = d.failureText(err, route, logger)
		if perr := d.convos.AppendTurn(persistCtx, user, store.RoleAssistant, reply); perr != nil {
			logger.Error("recording failure turn", "error", perr)
			d.metrics.PersistFailure("conversation")
		}
		d.emit(ctx, ev, reply)
		return "failed"
	}

	if err := d.convos.AppendTurn(persistCtx, user, store.RoleAssistant, reply); err != nil {
		logger.Error("recording assistant turn", "error", err)
		d.metrics.PersistFailure("conversation")
	}
	d.emit(ctx, ev, reply)
	return "completed"
}

func (d *Dispatcher) failureText(err error, route provider.Route, logger *slog.Logger) string {
	if pe, ok := provider.AsProviderError(err); ok {
		logger.Warn("provider failed", "provider", pe.Provider, "kind", pe.Kind, "status", pe.Status, "error", pe.Err)
		d.metrics.ProviderError(pe.Provider, string(pe.Kind))
		return pe.UserMessage()
	}
	logger.Error("completion failed", "route", route.String(), "error", err)
	d.metrics.ProviderError(route.String(), "unknown")
	return replyInternalError
}

// systemInstruction renders the persona plus the user's memories. A memory
// read failure degrades to the bare persona.
func (d *Dispatcher) systemInstruction(ctx context.Context, user string, logger *slog.Logger) string {
	items, err := d.memories.Get(ctx, user)
	if err != nil {
		logger.Warn("reading memories for system instruction", "error", err)
		d.metrics.PersistFailure("memory")
		return d.cfg.Persona
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = it.String()
	}
	return provider.ComposeSystem(d.cfg.Persona, lines)
}

// enter takes the user's entry slot, waiting behind any earlier request from
// the same user.
func (d *Dispatcher) enter(ctx context.Context, user string) (func(), error) {
	v, _ := d.slots.LoadOrStore(user, make(chan struct{}, 1))
	slot := v.(chan struct{})
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// emit sends text as a reply, splitting it when it exceeds the hard limit.
// The first chunk replies to the request; the rest follow at the paced rate.
func (d *Dispatcher) emit(ctx context.Context, ev Event, text string) {
	chunks := Split(text, d.cfg.SoftLimit, d.cfg.HardLimit)

	limit := rate.Inf
	if d.cfg.ChunkDelay > 0 {
		limit = rate.Every(d.cfg.ChunkDelay)
	}
	pacer := rate.NewLimiter(limit, 1)

	for i, chunk := range chunks {
		if err := pacer.Wait(ctx); err != nil {
			d.logger.Warn("reply abandoned", "user_id", ev.AuthorID, "sent", i, "chunks", len(chunks), "error", err)
			return
		}
		var err error
		if i == 0 {
			err = ev.Out.Reply(ctx, chunk)
		} else {
			err = ev.Out.FollowUp(ctx, chunk)
		}
		if err != nil {
			d.logger.Error("sending reply", "user_id", ev.AuthorID, "chunk", i, "error", err)
			return
		}
	}
}

// send replies with a short text that never needs splitting.
func (d *Dispatcher) send(ctx context.Context, ev Event, text string) {
	if err := ev.Out.Reply(ctx, text); err != nil {
		d.logger.Error("sending reply", "user_id", ev.AuthorID, "error", fmt.Errorf("reply %q: %w", text, err))
	}
}
