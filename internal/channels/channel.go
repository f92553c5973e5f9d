// Package channels provides the transport abstraction between the WhatsApp
// bridge and the gateway runtime. A channel turns bridge events into bus
// messages and delivers outbound payloads.
package channels

import (
	"context"
	"time"

	"github.com/natankaway/arenazap/internal/bus"
)

// Channel is the lifecycle interface every transport implementation satisfies.
type Channel interface {
	// Name returns the channel identifier (e.g. "whatsapp").
	Name() string

	// Start begins listening for events. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// IsRunning reports whether the channel is processing events.
	IsRunning() bool
}

// Transport is the send-side contract the router and delivery engine use.
type Transport interface {
	// SendText sends a text message and returns the transport message id.
	SendText(ctx context.Context, conversationID, content string) (string, error)

	// SendPoll sends a poll to a group and returns the transport message id.
	SendPoll(ctx context.Context, groupID string, poll bus.PollPayload) (string, error)

	// PinMessage pins a previously sent message in a chat.
	PinMessage(ctx context.Context, chatID, messageID string) error

	// IsConnected reports whether the transport link is currently up.
	IsConnected() bool

	// IsStable reports whether the link has been up for at least minUptime.
	// A freshly reconnected link is not considered ready for broadcast sends.
	IsStable(minUptime time.Duration) bool
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
