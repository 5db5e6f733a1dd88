// Package matrix is the chat transport for Marv. It wraps a mautrix client,
// normalizes inbound room events into chat.Event values and exposes the
// small outbound surface the dispatcher needs.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/marv/internal/marv/chat"
)

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms is the allowlist of room IDs the bot listens and replies in.
	// Events from any other room are dropped at the transport.
	Rooms []string
	// DB is an optional SQLite connection used to persist the sync token
	// (next_batch) across restarts. When nil, an in-memory store is used
	// and room history will be replayed on every restart.
	DB *sql.DB
}

// EventHandler consumes one normalized inbound event.
type EventHandler func(ctx context.Context, evt chat.Event)

// Client wraps the Matrix client.
type Client struct {
	client  *mautrix.Client
	config  *Config
	stopCh  chan struct{}
	handler EventHandler

	namesMu sync.Mutex
	names   map[id.UserID]string
}

// New creates a new Matrix client.
func New(config *Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}

	c := &Client{
		client: client,
		config: config,
		stopCh: make(chan struct{}),
		names:  make(map[id.UserID]string),
	}

	if config.DB != nil {
		client.Store = newDBSyncStore(config.DB)
		slog.Info("matrix: using persistent sync store")
	} else {
		slog.Warn("matrix: no sync DB configured; history will replay on restart")
	}

	return c, nil
}

// Start begins syncing with the homeserver and delivering normalized
// events to handler. The sync loop reconnects with exponential backoff
// until Stop is called.
func (c *Client) Start(ctx context.Context, handler EventHandler) error {
	c.handler = handler

	syncer := c.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.handleMessage)

	for _, roomID := range c.config.Rooms {
		if err := c.joinRoom(ctx, id.RoomID(roomID)); err != nil {
			return fmt.Errorf("matrix: join room %s: %w", roomID, err)
		}
	}

	// Sync in the background and reconnect with exponential backoff. A
	// transient homeserver error must not leave the bot deaf to the room.
	go func() {
		const (
			backoffMin = 2 * time.Second
			backoffMax = 5 * time.Minute
		)
		backoff := backoffMin
		for {
			err := c.client.Sync()
			if err == nil {
				// A nil return means StopSync was called.
				return
			}
			select {
			case <-c.stopCh:
				return
			default:
			}
			slog.Error("matrix: sync interrupted, reconnecting", "err", err, "backoff", backoff)
			select {
			case <-c.stopCh:
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > backoffMax {
				backoff = backoffMax
			}
		}
	}()

	return nil
}

// Stop stops the Matrix client.
func (c *Client) Stop() {
	close(c.stopCh)
	c.client.StopSync()
}

// Send posts a regular text message to a room.
func (c *Client) Send(roomID, text string) error {
	_, err := c.client.SendText(context.Background(), id.RoomID(roomID), text)
	if err != nil {
		return fmt.Errorf("matrix: send message: %w", err)
	}
	return nil
}

// Notice posts a notice (less intrusive than a regular message).
func (c *Client) Notice(roomID, text string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    text,
	}
	_, err := c.client.SendMessageEvent(context.Background(), id.RoomID(roomID), event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("matrix: send notice: %w", err)
	}
	return nil
}

// Typing toggles the typing indicator. Failures are not worth surfacing.
func (c *Client) Typing(roomID string, on bool) {
	timeout := 30 * time.Second
	if !on {
		timeout = 0
	}
	if _, err := c.client.UserTyping(context.Background(), id.RoomID(roomID), on, timeout); err != nil {
		slog.Debug("matrix: set typing", "room", roomID, "err", err)
	}
}

// UserID returns the bot's own platform identity.
func (c *Client) UserID() string {
	return c.config.UserID
}

// allowedRoom checks the room allowlist.
func (c *Client) allowedRoom(roomID string) bool {
	for _, r := range c.config.Rooms {
		if r == roomID {
			return true
		}
	}
	return false
}

// handleMessage filters and normalizes one raw room event.
func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	// Never react to our own messages; generated replies are recorded by
	// the dispatcher at generation time, not by echo.
	if evt.Sender == id.UserID(c.config.UserID) {
		return
	}

	content := evt.Content.AsMessage()
	if content == nil || content.MsgType != event.MsgText {
		return
	}

	if !c.allowedRoom(evt.RoomID.String()) {
		return
	}

	if c.handler != nil {
		c.handler(ctx, Normalize(evt,
			func(user id.UserID) string { return c.displayName(ctx, user) },
			func(eventID id.EventID) string { return c.replySender(ctx, evt.RoomID, eventID) },
		))
	}
}

// joinRoom attempts to join a room.
func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	if _, err := c.client.JoinRoomByID(ctx, roomID); err != nil {
		// M_FORBIDDEN is what homeservers answer when the bot is already a
		// member. Use mautrix's typed error check instead of string matching.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("matrix: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}

// displayName resolves and caches a user's display name, falling back to
// the localpart of the user ID when the profile lookup fails.
func (c *Client) displayName(ctx context.Context, user id.UserID) string {
	c.namesMu.Lock()
	if name, ok := c.names[user]; ok {
		c.namesMu.Unlock()
		return name
	}
	c.namesMu.Unlock()

	name := user.Localpart()
	if profile, err := c.client.GetProfile(ctx, user); err == nil && profile.DisplayName != "" {
		name = profile.DisplayName
	} else if err != nil {
		slog.Debug("matrix: profile lookup failed", "user", user, "err", err)
	}

	c.namesMu.Lock()
	c.names[user] = name
	c.namesMu.Unlock()
	return name
}

// replySender fetches the event a message replies to and returns its
// sender, or "" when the referenced event cannot be resolved.
func (c *Client) replySender(ctx context.Context, roomID id.RoomID, eventID id.EventID) string {
	src, err := c.client.GetEvent(ctx, roomID, eventID)
	if err != nil {
		slog.Debug("matrix: resolve reply target", "event", eventID, "err", err)
		return ""
	}
	return src.Sender.String()
}
