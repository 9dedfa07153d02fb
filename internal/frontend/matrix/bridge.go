// ABOUTME: Matrix transport for the dispatcher
// ABOUTME: Turns room messages addressed to the bot into dispatch events and sends replies back

package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/vito-gateway/internal/dedupe"
	"github.com/2389/vito-gateway/internal/dispatch"
)

// Config configures the Matrix connection.
type Config struct {
	Homeserver   string
	UserID       string
	AccessToken  string // takes precedence over Username/Password
	Username     string
	Password     string
	DeviceID     string
	Encryption   bool
	RecoveryKey  string // optional, for cross-signing
	CryptoDir    string
	AllowedRooms []string // empty allows every joined room
	IgnoreUsers  []string // other bots
	Typing       bool
}

// Dispatcher receives addressed events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev dispatch.Event)
}

// ErrNotSyncing is returned by Ready before the sync loop has started.
var ErrNotSyncing = errors.New("matrix sync not running")

const (
	dedupeTTL     = 10 * time.Minute
	dedupeSize    = 10000
	typingTimeout = 30 * time.Second
	// networkTimeout bounds typing and event lookups.
	networkTimeout = 10 * time.Second
	sendTimeout    = 30 * time.Second
)

// Bridge connects a Matrix account to a Dispatcher.
type Bridge struct {
	cfg        Config
	client     *mautrix.Client
	dispatcher Dispatcher
	seen       *dedupe.Cache
	logger     *slog.Logger

	displayName string
	syncing     atomic.Bool

	// ctx outlives individual sync callbacks; dispatched work runs under it.
	ctx context.Context
}

// NewBridge creates a Bridge. Call Login before Run.
func NewBridge(cfg Config, d Dispatcher, logger *slog.Logger) (*Bridge, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	if cfg.DeviceID != "" {
		client.DeviceID = id.DeviceID(cfg.DeviceID)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		cfg:        cfg,
		client:     client,
		dispatcher: d,
		seen:       dedupe.New(dedupeTTL, dedupeSize),
		logger:     logger.With("component", "matrix"),
		ctx:        context.Background(),
	}, nil
}

// Client exposes the underlying mautrix client for crypto setup.
func (b *Bridge) Client() *mautrix.Client {
	return b.client
}

// UserID returns the bot's Matrix ID.
func (b *Bridge) UserID() id.UserID {
	return b.client.UserID
}

// Login authenticates with the access token, or with a password when no
// token is configured, and resolves the bot's display name.
func (b *Bridge) Login(ctx context.Context) error {
	if b.cfg.AccessToken != "" {
		resp, err := b.client.Whoami(ctx)
		if err != nil {
			return fmt.Errorf("validating access token: %w", err)
		}
		b.client.UserID = resp.UserID
		if resp.DeviceID != "" {
			b.client.DeviceID = resp.DeviceID
		}
	} else {
		_, err := b.client.Login(ctx, &mautrix.ReqLogin{
			Type:                     mautrix.AuthTypePassword,
			Identifier:               mautrix.UserIdentifier{Type: mautrix.IdentifierTypeUser, User: b.cfg.Username},
			Password:                 b.cfg.Password,
			DeviceID:                 id.DeviceID(b.cfg.DeviceID),
			InitialDeviceDisplayName: "vito-gateway",
			StoreCredentials:         true,
		})
		if err != nil {
			return fmt.Errorf("password login: %w", err)
		}
	}

	if resp, err := b.client.GetOwnDisplayName(ctx); err != nil {
		b.logger.Warn("could not fetch display name", "error", err)
	} else {
		b.displayName = resp.DisplayName
	}

	b.logger.Info("logged in", "user_id", b.client.UserID.String(), "device_id", b.client.DeviceID.String())
	return nil
}

// EnableCrypto sets up E2EE when configured. It returns nil when encryption
// is off. Call after Login.
func (b *Bridge) EnableCrypto(ctx context.Context) (*Crypto, error) {
	if !b.cfg.Encryption {
		b.logger.Info("encryption disabled")
		return nil, nil
	}
	return SetupCrypto(ctx, b.client, b.cfg.RecoveryKey, b.cfg.CryptoDir, b.logger)
}

// Ready reports whether the sync loop is running.
func (b *Bridge) Ready() error {
	if !b.syncing.Load() {
		return ErrNotSyncing
	}
	return nil
}

// Run syncs until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.ctx = ctx
	defer b.seen.Close()

	syncer, ok := b.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.client.Syncer)
	}
	syncer.OnSync(b.client.DontProcessOldEvents)
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)

	b.logger.Info("starting matrix sync", "homeserver", b.cfg.Homeserver)
	b.syncing.Store(true)
	defer b.syncing.Store(false)

	err := b.client.SyncWithContext(ctx)
	if ctx.Err() != nil {
		b.logger.Info("matrix sync stopped")
		return nil
	}
	return fmt.Errorf("matrix sync failed: %w", err)
}

func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == b.client.UserID || slices.Contains(b.cfg.IgnoreUsers, evt.Sender.String()) {
		return
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}
	if !b.isRoomAllowed(evt.RoomID.String()) {
		b.logger.Debug("ignoring message from non-allowed room", "room", evt.RoomID.String())
		return
	}
	if b.seen.CheckAndMark(evt.ID.String()) {
		b.logger.Debug("duplicate event", "event_id", evt.ID.String())
		return
	}

	replyTo := content.RelatesTo.GetReplyTo()
	content.RemoveReplyFallback()
	text, mentioned := stripMention(content.Body, b.mentionNames())
	mentioned = mentioned || mentionsUser(content, b.client.UserID)
	if !mentioned && replyTo == "" {
		return
	}

	var referenced id.UserID
	if replyTo != "" {
		referenced = b.referencedAuthor(ctx, evt.RoomID, replyTo)
	}
	if !mentioned && referenced != b.client.UserID {
		return
	}

	ev := dispatch.Event{
		ID:       evt.ID.String(),
		AuthorID: evt.Sender.String(),
		Text:     text,
		Out:      &responder{bridge: b, roomID: evt.RoomID, eventID: evt.ID, sender: evt.Sender},
	}
	if referenced != "" {
		ev.ReferencedAuthorID = referenced.String()
	}

	b.logger.Info("received message", "room", evt.RoomID.String(), "sender", evt.Sender.String(), "content", truncate(text, 50))
	b.dispatcher.Dispatch(b.ctx, ev)
}

// referencedAuthor returns the sender of the event this one replies to.
func (b *Bridge) referencedAuthor(ctx context.Context, roomID id.RoomID, replyTo id.EventID) id.UserID {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	ref, err := b.client.GetEvent(ctx, roomID, replyTo)
	if err != nil {
		b.logger.Warn("resolving replied-to event", "event_id", replyTo.String(), "error", err)
		return ""
	}
	return ref.Sender
}

// mentionNames are the plain-text forms a user might type to address the bot.
func (b *Bridge) mentionNames() []string {
	names := []string{b.client.UserID.String()}
	if b.displayName != "" {
		names = append(names, b.displayName)
	}
	return names
}

func (b *Bridge) isRoomAllowed(roomID string) bool {
	return len(b.cfg.AllowedRooms) == 0 || slices.Contains(b.cfg.AllowedRooms, roomID)
}

func (b *Bridge) setTyping(roomID id.RoomID, typing bool) {
	if !b.cfg.Typing {
		return
	}
	var timeout time.Duration
	if typing {
		timeout = typingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
	defer cancel()
	if _, err := b.client.UserTyping(ctx, roomID, typing, timeout); err != nil {
		b.logger.Debug("failed to set typing indicator", "room", roomID.String(), "error", err)
	}
}

func (b *Bridge) send(ctx context.Context, roomID id.RoomID, content *event.MessageEventContent) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if _, err := b.client.SendMessageEvent(ctx, roomID, event.EventMessage, content); err != nil {
		return fmt.Errorf("sending to %s: %w", roomID, err)
	}
	return nil
}

// mentionsUser checks the structured m.mentions metadata.
func mentionsUser(content *event.MessageEventContent, user id.UserID) bool {
	return content.Mentions != nil && slices.Contains(content.Mentions.UserIDs, user)
}

// stripMention removes the first occurrence of any of names from body,
// matching case-insensitively, and trims the separator left behind.
func stripMention(body string, names []string) (string, bool) {
	for _, name := range names {
		if name == "" {
			continue
		}
		if i := indexFold(body, name); i >= 0 {
			rest := body[:i] + body[i+len(name):]
			rest = strings.TrimSpace(rest)
			rest = strings.TrimLeft(rest, ":,")
			return strings.TrimSpace(rest), true
		}
	}
	return strings.TrimSpace(body), false
}

func indexFold(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
