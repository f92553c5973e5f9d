// Package whatsapp connects to a WhatsApp bridge via WebSocket. The bridge
// (a baileys-style process) handles the actual WhatsApp protocol; this
// channel exchanges JSON frames with it and tracks connection stability so
// the delivery engine can gate broadcast sends.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/natankaway/arenazap/internal/bus"
	"github.com/natankaway/arenazap/internal/channels"
	"github.com/natankaway/arenazap/internal/config"
)

const (
	ackTimeout       = 30 * time.Second
	maxReconnectWait = 30 * time.Second
	recentSendLimit  = 512
)

// DisconnectFunc is invoked (fire-and-forget) when an established bridge
// connection drops.
type DisconnectFunc func(reason string)

// Channel connects to the WhatsApp bridge.
type Channel struct {
	config config.BridgeConfig
	bus    *bus.MessageBus

	mu             sync.Mutex
	conn           *websocket.Conn
	connected      bool
	connectedSince time.Time
	pending        map[string]chan ackFrame
	recentSends    map[string]time.Time
	running        bool

	onDisconnect DisconnectFunc

	ctx    context.Context
	cancel context.CancelFunc

	now func() time.Time
}

// frame is the envelope of every bridge message in both directions.
type frame struct {
	Type string `json:"type"`

	// inbound message fields
	ID        string `json:"id,omitempty"`
	From      string `json:"from,omitempty"`
	Chat      string `json:"chat,omitempty"`
	Content   string `json:"content,omitempty"`
	ButtonID  string `json:"button_id,omitempty"`
	FromMe    bool   `json:"from_me,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`

	// connection status
	State string `json:"state,omitempty"`

	// outbound fields
	Ref         string   `json:"ref,omitempty"`
	To          string   `json:"to,omitempty"`
	Question    string   `json:"question,omitempty"`
	Options     []string `json:"options,omitempty"`
	MultiSelect bool     `json:"multi_select,omitempty"`
	MessageID   string   `json:"message_id,omitempty"`

	Error string `json:"error,omitempty"`
}

type ackFrame struct {
	messageID string
	err       string
}

// New creates a WhatsApp channel from config.
func New(cfg config.BridgeConfig, msgBus *bus.MessageBus) (*Channel, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("whatsapp bridge url is required")
	}
	return &Channel{
		config:      cfg,
		bus:         msgBus,
		pending:     make(map[string]chan ackFrame),
		recentSends: make(map[string]time.Time),
		now:         time.Now,
	}, nil
}

// Name returns the channel identifier.
func (c *Channel) Name() string { return "whatsapp" }

// IsRunning reports whether the channel is processing events.
func (c *Channel) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// OnDisconnect registers a hook invoked when an established connection drops.
func (c *Channel) OnDisconnect(fn DisconnectFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = fn
}

// Start connects to the bridge and begins the listen and dispatch loops.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "bridge_url", c.config.URL)

	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		// Don't fail hard; the reconnect loop will keep trying
		slog.Warn("initial whatsapp bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop()
	go c.dispatchLoop()

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	return nil
}

// Stop gracefully shuts down the channel.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel")

	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.running = false
	return nil
}

// IsConnected reports whether the bridge link is up.
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// IsStable reports whether the link has been up continuously for minUptime.
func (c *Channel) IsStable(minUptime time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.now().Sub(c.connectedSince) >= minUptime
}

// SendText sends a text message and waits for the bridge ack.
func (c *Channel) SendText(ctx context.Context, conversationID, content string) (string, error) {
	return c.sendAcked(ctx, frame{
		Type:    "message",
		To:      conversationID,
		Content: content,
	})
}

// SendPoll sends a poll to a group and waits for the bridge ack.
func (c *Channel) SendPoll(ctx context.Context, groupID string, poll bus.PollPayload) (string, error) {
	return c.sendAcked(ctx, frame{
		Type:        "poll",
		To:          groupID,
		Question:    poll.Question,
		Options:     poll.Options,
		MultiSelect: poll.MultiSelect,
	})
}

// PinMessage pins a previously sent message in a chat.
func (c *Channel) PinMessage(ctx context.Context, chatID, messageID string) error {
	_, err := c.sendAcked(ctx, frame{
		Type:      "pin",
		Chat:      chatID,
		MessageID: messageID,
	})
	return err
}

// sendAcked writes a frame with a fresh ref and blocks until the bridge acks
// it, ctx is done, or the ack timeout elapses.
func (c *Channel) sendAcked(ctx context.Context, f frame) (string, error) {
	f.Ref = uuid.NewString()

	ch := make(chan ackFrame, 1)

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return "", fmt.Errorf("whatsapp bridge not connected")
	}
	c.pending[f.Ref] = ch
	err := c.conn.WriteJSON(f)
	c.mu.Unlock()

	if err != nil {
		c.dropPending(f.Ref)
		return "", fmt.Errorf("send %s frame: %w", f.Type, err)
	}

	select {
	case <-ctx.Done():
		c.dropPending(f.Ref)
		return "", ctx.Err()
	case <-time.After(ackTimeout):
		c.dropPending(f.Ref)
		return "", fmt.Errorf("%s send not acknowledged within %s", f.Type, ackTimeout)
	case ack := <-ch:
		if ack.err != "" {
			return "", fmt.Errorf("bridge rejected %s send: %s", f.Type, ack.err)
		}
		messageID := ack.messageID
		if messageID == "" {
			messageID = f.Ref
		}
		c.rememberSend(messageID)
		return messageID, nil
	}
}

// rememberSend records a message id this process sent, so its FromMe echo
// from the bridge is not mistaken for an operator reply. Only manual human
// messages from the linked phone should read as operator activity.
func (c *Channel) rememberSend(messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.recentSends) >= recentSendLimit {
		oldest, oldestAt := "", time.Time{}
		for id, at := range c.recentSends {
			if oldest == "" || at.Before(oldestAt) {
				oldest, oldestAt = id, at
			}
		}
		delete(c.recentSends, oldest)
	}
	c.recentSends[messageID] = c.now()
}

func (c *Channel) sentByUs(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.recentSends[messageID]
	return ok
}

func (c *Channel) dropPending(ref string) {
	c.mu.Lock()
	delete(c.pending, ref)
	c.mu.Unlock()
}

// connect establishes the WebSocket connection to the bridge.
func (c *Channel) connect() error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.config.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.connectedSince = c.now()
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", c.config.URL)
	return nil
}

// markDisconnected tears down the connection state and fails all pending acks.
func (c *Channel) markDisconnected(reason string) {
	c.mu.Lock()
	wasConnected := c.connected
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	for ref, ch := range c.pending {
		ch <- ackFrame{err: "connection lost"}
		delete(c.pending, ref)
	}
	hook := c.onDisconnect
	c.mu.Unlock()

	if wasConnected && hook != nil {
		go hook(reason)
	}
}

// listenLoop reads bridge frames with automatic reconnection.
func (c *Channel) listenLoop() {
	backoff := time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			slog.Info("attempting whatsapp bridge reconnect", "backoff", backoff)

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}

			if err := c.connect(); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "error", err)
				backoff = min(backoff*2, maxReconnectWait)
				continue
			}

			backoff = time.Second // reset on success
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("whatsapp read error, will reconnect", "error", err)
			c.markDisconnected(err.Error())
			continue
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Warn("invalid whatsapp bridge frame", "error", err)
			continue
		}

		switch f.Type {
		case "message":
			c.handleIncomingMessage(f)
		case "ack":
			c.handleAck(f)
		case "status":
			c.handleStatus(f)
		}
	}
}

// dispatchLoop delivers router replies from the bus to the bridge.
func (c *Channel) dispatchLoop() {
	for {
		msg, ok := c.bus.ConsumeOutbound(c.ctx)
		if !ok {
			return
		}
		if _, err := c.SendText(c.ctx, msg.ConversationID, msg.Content); err != nil {
			slog.Warn("whatsapp outbound send failed",
				"conversation_id", msg.ConversationID, "error", err)
		}
	}
}

func (c *Channel) handleAck(f frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.Ref]
	delete(c.pending, f.Ref)
	c.mu.Unlock()

	if ok {
		ch <- ackFrame{messageID: f.MessageID, err: f.Error}
	}
}

// handleStatus tracks bridge-reported connection lifecycle. The bridge keeps
// the WS link up while the WhatsApp session itself reconnects, so stability
// follows these events too.
func (c *Channel) handleStatus(f frame) {
	switch bus.ConnState(f.State) {
	case bus.ConnOpen:
		c.mu.Lock()
		if !c.connected {
			c.connected = true
		}
		c.connectedSince = c.now()
		c.mu.Unlock()
		slog.Info("whatsapp session open")
	case bus.ConnConnecting:
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		slog.Info("whatsapp session reconnecting")
	case bus.ConnClosed:
		c.mu.Lock()
		wasConnected := c.connected
		c.connected = false
		hook := c.onDisconnect
		c.mu.Unlock()
		slog.Warn("whatsapp session closed")
		if wasConnected && hook != nil {
			go hook("session closed")
		}
	}
}

// handleIncomingMessage publishes a bridge message event to the bus.
func (c *Channel) handleIncomingMessage(f frame) {
	conversationID := f.Chat
	if conversationID == "" {
		conversationID = f.From
	}
	if conversationID == "" {
		return
	}

	// Echoes of our own sends come back marked FromMe; drop them so they
	// never register as operator takeover.
	if f.FromMe && c.sentByUs(f.ID) {
		return
	}

	ts := time.Unix(f.Timestamp, 0)
	if f.Timestamp == 0 {
		ts = c.now()
	}

	slog.Debug("whatsapp message received",
		"conversation_id", conversationID,
		"from_me", f.FromMe,
		"preview", channels.Truncate(f.Content, 50),
	)

	c.bus.PublishInbound(bus.InboundMessage{
		Channel:        c.Name(),
		ConversationID: conversationID,
		SenderID:       f.From,
		MessageID:      f.ID,
		Content:        strings.TrimSpace(f.Content),
		ButtonID:       f.ButtonID,
		FromSelf:       f.FromMe,
		Timestamp:      ts,
	})
}
