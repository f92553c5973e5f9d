// Package router consumes inbound transport events and decides between
// automated and silent handling. Events for the same canonical conversation
// are processed in arrival order; different conversations run concurrently.
package router

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/natankaway/arenazap/internal/bus"
	"github.com/natankaway/arenazap/internal/dialog"
	"github.com/natankaway/arenazap/internal/handoff"
	"github.com/natankaway/arenazap/internal/identity"
	"github.com/natankaway/arenazap/internal/sessions"
	"github.com/natankaway/arenazap/internal/store"
)

const queueDepth = 32

// Router drives the per-conversation dialog state machine.
type Router struct {
	bus      *bus.MessageBus
	resolver *identity.Resolver
	handoffs *handoff.Manager
	sessions *sessions.Manager
	bookings store.BookingStore

	resumeKeyword string

	mu     sync.Mutex
	queues map[string]chan bus.InboundMessage
	wg     sync.WaitGroup
}

// New wires a router from its collaborators.
func New(
	msgBus *bus.MessageBus,
	resolver *identity.Resolver,
	handoffs *handoff.Manager,
	sessionMgr *sessions.Manager,
	bookings store.BookingStore,
	resumeKeyword string,
) *Router {
	return &Router{
		bus:           msgBus,
		resolver:      resolver,
		handoffs:      handoffs,
		sessions:      sessionMgr,
		bookings:      bookings,
		resumeKeyword: strings.ToLower(resumeKeyword),
		queues:        make(map[string]chan bus.InboundMessage),
	}
}

// Run consumes inbound messages until ctx is done. Identity resolution runs
// on the consume loop so the canonical id is fixed before fan-out; the rest
// of each turn runs on a per-conversation worker.
func (r *Router) Run(ctx context.Context) {
	slog.Info("message router started")

	for {
		msg, ok := r.bus.ConsumeInbound(ctx)
		if !ok {
			r.drain()
			return
		}

		canonical := r.resolver.Resolve(ctx, msg.ConversationID, msg.FromSelf)
		r.dispatch(ctx, canonical, msg)
	}
}

// dispatch enqueues a message on its conversation's ordered queue, starting
// a worker when none is running.
func (r *Router) dispatch(ctx context.Context, canonical string, msg bus.InboundMessage) {
	r.mu.Lock()
	q, ok := r.queues[canonical]
	if !ok {
		q = make(chan bus.InboundMessage, queueDepth)
		r.queues[canonical] = q
		r.wg.Add(1)
		go r.worker(ctx, canonical, q)
	}
	// Enqueue under the lock so the worker's empty-check cannot race with a
	// send into a queue it is about to abandon.
	select {
	case q <- msg:
	default:
		slog.Warn("conversation queue full, dropping event", "conversation_id", canonical)
	}
	r.mu.Unlock()
}

// worker drains one conversation's queue in order, exiting when it empties.
func (r *Router) worker(ctx context.Context, canonical string, q chan bus.InboundMessage) {
	defer r.wg.Done()
	for {
		select {
		case msg := <-q:
			r.handle(ctx, canonical, msg)
		default:
			r.mu.Lock()
			if len(q) > 0 {
				r.mu.Unlock()
				continue
			}
			delete(r.queues, canonical)
			r.mu.Unlock()
			return
		}
	}
}

func (r *Router) drain() {
	r.wg.Wait()
}

// handle runs one turn for a conversation.
func (r *Router) handle(ctx context.Context, canonical string, msg bus.InboundMessage) {
	text := strings.ToLower(strings.TrimSpace(msg.Content))

	// The literal resume keyword works from either side, paused or not.
	if text == r.resumeKeyword && r.resumeKeyword != "" {
		r.handleResume(ctx, canonical)
		return
	}

	if msg.FromSelf {
		r.handleOperatorMessage(ctx, canonical)
		return
	}

	// Contact message while paused: stay silent, only bookkeeping.
	if r.handoffs.IsPaused(ctx, canonical) {
		slog.Debug("suppressing automated reply, conversation paused",
			"conversation_id", canonical)
		return
	}

	r.advanceDialog(ctx, canonical, msg)
}

// handleResume reactivates automation. Resuming an already automated
// conversation is a no-op with no duplicate "reactivated" notice.
func (r *Router) handleResume(ctx context.Context, canonical string) {
	if !r.handoffs.Resume(ctx, canonical) {
		return
	}
	r.sessions.Reset(ctx, canonical)
	r.reply(canonical, dialog.ResumedText, dialog.MenuText)
}

// handleOperatorMessage pauses the conversation on the first operator
// message; further operator messages while paused only refresh activity.
func (r *Router) handleOperatorMessage(ctx context.Context, canonical string) {
	if !r.handoffs.Pause(ctx, canonical, "operator takeover") {
		return
	}
	sess := r.sessions.GetOrCreate(ctx, canonical)
	sess.State = sessions.StateWaitingHuman
	r.sessions.Put(ctx, sess)
}

func (r *Router) advanceDialog(ctx context.Context, canonical string, msg bus.InboundMessage) {
	sess := r.sessions.GetOrCreate(ctx, canonical)

	// Reaching here means no live pause, so a waiting-human state left over
	// from an expired takeover rejoins the menu flow instead of staying mute.
	if sess.State == sessions.StateWaitingHuman {
		sess.State = sessions.StateMenu
	}

	res := dialog.Advance(&sess, dialog.Input{Text: msg.Content, ButtonID: msg.ButtonID})

	sess.State = res.State
	r.sessions.Put(ctx, sess)

	if res.Booking != nil {
		if err := r.bookings.Create(ctx, res.Booking); err != nil {
			slog.Error("persist booking failed", "error", err)
		} else {
			slog.Info("trial booking created",
				"booking_id", res.Booking.ID, "unit", res.Booking.Unit)
		}
	}

	if res.Handoff {
		r.handoffs.Pause(ctx, canonical, res.HandoffReason)
	}

	r.reply(canonical, res.Replies...)
}

// reply publishes outbound texts and records activity for the conversation.
func (r *Router) reply(canonical string, texts ...string) {
	for _, t := range texts {
		if t == "" {
			continue
		}
		r.bus.PublishOutbound(bus.OutboundMessage{
			ConversationID: canonical,
			Content:        t,
		})
	}
	if len(texts) > 0 {
		r.resolver.Touch(canonical)
	}
}
