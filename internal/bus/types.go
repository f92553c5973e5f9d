package bus

import (
	"context"
	"time"
)

// InboundMessage represents a message event received from the transport bridge.
// FromSelf marks messages the arena's own number sent; operator takeover
// detection relies on it.
type InboundMessage struct {
	Channel        string            `json:"channel"`
	ConversationID string            `json:"conversation_id"`
	SenderID       string            `json:"sender_id,omitempty"`
	MessageID      string            `json:"message_id,omitempty"`
	Content        string            `json:"content"`
	ButtonID       string            `json:"button_id,omitempty"` // interactive reply payload, empty for free text
	FromSelf       bool              `json:"from_self,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage represents a message to be sent through the transport.
type OutboundMessage struct {
	ConversationID string            `json:"conversation_id"`
	Content        string            `json:"content"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// PollPayload is the poll content for a group broadcast send.
type PollPayload struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	MultiSelect bool     `json:"multi_select,omitempty"`
}

// ConnState is the transport connection lifecycle state.
type ConnState string

const (
	ConnConnecting ConnState = "connecting"
	ConnOpen       ConnState = "open"
	ConnClosed     ConnState = "close"
)

// InboundPublisher is the producer side of the bus, implemented by channels.
type InboundPublisher interface {
	PublishInbound(msg InboundMessage)
}

// OutboundPublisher is what the router uses to emit replies.
type OutboundPublisher interface {
	PublishOutbound(msg OutboundMessage)
}

// MessageBus carries inbound events from the transport channel to the router
// and outbound replies back. Buffered so a slow consumer does not stall the
// bridge read loop; a full buffer drops rather than blocking.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

const busBuffer = 256

// NewMessageBus creates a message bus with default buffering.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, busBuffer),
		outbound: make(chan OutboundMessage, busBuffer),
	}
}

// PublishInbound enqueues an inbound message. Never blocks.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	default:
	}
}

// ConsumeInbound blocks until a message is available or ctx is done.
// The second return is false when ctx was cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case msg := <-b.inbound:
		return msg, true
	}
}

// PublishOutbound enqueues an outbound message. Never blocks.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case b.outbound <- msg:
	default:
	}
}

// ConsumeOutbound blocks until an outbound message is available or ctx is done.
func (b *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case msg := <-b.outbound:
		return msg, true
	}
}
