// Package delivery executes scheduled broadcast actions against the
// transport: polls into groups, billing reminders to contacts. One delivery
// invocation is in flight process-wide at any time; sends are gated on
// connection stability and retried on a progressive backoff schedule.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/natankaway/arenazap/internal/bus"
	"github.com/natankaway/arenazap/internal/channels"
	"github.com/natankaway/arenazap/internal/config"
	"github.com/natankaway/arenazap/internal/store"
)

// Delivery kinds. Polls tolerate a longer connection wait than reminders.
const (
	KindPoll     = "poll"
	KindReminder = "reminder"
)

// Request is one broadcast delivery invocation.
type Request struct {
	BroadcastID string
	Kind        string
	Target      string // group or contact conversation id

	Poll    *bus.PollPayload // set for KindPoll
	Message string           // set for KindReminder

	Pin bool // pin the sent message afterwards (polls)
}

// Outcome reports how a delivery invocation ended.
type Outcome struct {
	Success   bool
	Attempts  int
	MessageID string
	Err       error
}

const (
	lockRetryDelay    = 500 * time.Millisecond
	connectPollPeriod = time.Second
	preSendDelayBase  = 300 * time.Millisecond
	preSendJitterSpan = 400 * time.Millisecond
)

// Engine serializes and retries broadcast sends.
type Engine struct {
	transport  channels.Transport
	deliveries store.DeliveryStore

	stability    time.Duration
	pollWait     time.Duration
	reminderWait time.Duration
	policy       RetryPolicy

	busy chan struct{} // size-1 semaphore: the process-wide in-flight slot

	sleep  func(context.Context, time.Duration) error
	jitter func() time.Duration
}

// New creates a delivery engine.
func New(transport channels.Transport, deliveries store.DeliveryStore, cfg config.DeliveryConfig) *Engine {
	return &Engine{
		transport:    transport,
		deliveries:   deliveries,
		stability:    cfg.StabilityWindow(),
		pollWait:     cfg.PollWait(),
		reminderWait: cfg.ReminderWait(),
		policy: RetryPolicy{
			MaxAttempts: cfg.Attempts(),
			Backoff:     cfg.Backoff(),
		},
		busy:  make(chan struct{}, 1),
		sleep: sleepCtx,
		jitter: func() time.Duration {
			return preSendDelayBase + time.Duration(rand.Int63n(int64(preSendJitterSpan)))
		},
	}
}

// Deliver runs one broadcast delivery invocation to completion. A concurrent
// caller waits a fixed short delay and retries for the in-flight slot rather
// than running in parallel. The returned Outcome is terminal: Success, or a
// definitive failure after all retry attempts are exhausted.
func (e *Engine) Deliver(ctx context.Context, req Request) Outcome {
	if err := e.acquire(ctx); err != nil {
		return Outcome{Err: err}
	}
	defer e.release()

	waitBound := e.reminderWait
	if req.Kind == KindPoll {
		waitBound = e.pollWait
	}

	var messageID string
	attempts, err := e.policy.Run(ctx, e.sleep, func(attempt int) error {
		if attempt > 1 {
			slog.Info("retrying broadcast delivery",
				"broadcast_id", req.BroadcastID, "attempt", attempt)
		}

		if err := e.waitForStableConnection(ctx, waitBound); err != nil {
			return err
		}

		// Desynchronize simultaneous scheduled triggers.
		if err := e.sleep(ctx, e.jitter()); err != nil {
			return err
		}

		id, err := e.send(ctx, req)
		if err != nil {
			return err
		}
		messageID = id
		return nil
	})

	if err != nil {
		slog.Error("broadcast delivery failed definitively",
			"broadcast_id", req.BroadcastID, "kind", req.Kind, "attempts", attempts, "error", err)
		return Outcome{Attempts: attempts, Err: err}
	}

	// The idempotent sent record lands before any secondary side effect.
	if e.deliveries != nil {
		if err := e.deliveries.RecordSent(ctx, &store.SentDelivery{
			MessageID:   messageID,
			BroadcastID: req.BroadcastID,
			SentAt:      time.Now(),
		}); err != nil {
			slog.Warn("record sent delivery failed", "message_id", messageID, "error", err)
		}
	}

	if req.Pin {
		if err := e.transport.PinMessage(ctx, req.Target, messageID); err != nil {
			// Secondary side effect: never fails the send.
			slog.Warn("pin after send failed",
				"broadcast_id", req.BroadcastID, "message_id", messageID, "error", err)
		}
	}

	slog.Info("broadcast delivered",
		"broadcast_id", req.BroadcastID, "kind", req.Kind, "attempts", attempts, "message_id", messageID)
	return Outcome{Success: true, Attempts: attempts, MessageID: messageID}
}

// acquire takes the process-wide delivery slot, polling at a fixed delay.
func (e *Engine) acquire(ctx context.Context) error {
	for {
		select {
		case e.busy <- struct{}{}:
			return nil
		default:
		}
		if err := e.sleep(ctx, lockRetryDelay); err != nil {
			return fmt.Errorf("waiting for delivery slot: %w", err)
		}
	}
}

func (e *Engine) release() { <-e.busy }

// waitForStableConnection polls until the transport has been connected for
// at least the stability window, or the bound elapses. A freshly reconnected
// transport is not ready.
func (e *Engine) waitForStableConnection(ctx context.Context, bound time.Duration) error {
	deadline := time.Now().Add(bound)
	for {
		if e.transport.IsStable(e.stability) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("transport not stable within %s", bound)
		}
		if err := e.sleep(ctx, connectPollPeriod); err != nil {
			return err
		}
	}
}

func (e *Engine) send(ctx context.Context, req Request) (string, error) {
	switch req.Kind {
	case KindPoll:
		if req.Poll == nil {
			return "", fmt.Errorf("poll delivery without payload")
		}
		return e.transport.SendPoll(ctx, req.Target, *req.Poll)
	case KindReminder:
		return e.transport.SendText(ctx, req.Target, req.Message)
	default:
		return "", fmt.Errorf("unknown delivery kind %q", req.Kind)
	}
}
