// Package identity reconciles the two alias forms WhatsApp may use for the
// same contact: the phone-derived JID ("...@s.whatsapp.net", canonical) and
// the privacy-preserving LID ("...@lid", shadow). Session and handoff state
// is always keyed by the canonical id; the resolver maps shadow traffic onto
// it when a correlation is known or can be inferred conservatively.
package identity

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/natankaway/arenazap/internal/config"
)

// Alias form suffixes used by the transport.
const (
	canonicalSuffix = "@s.whatsapp.net"
	shadowSuffix    = "@lid"
)

// IsCanonical reports whether id is the phone-derived alias form.
func IsCanonical(id string) bool { return strings.HasSuffix(id, canonicalSuffix) }

// IsShadow reports whether id is the LID alias form.
func IsShadow(id string) bool { return strings.HasSuffix(id, shadowSuffix) }

// PauseView is what the resolver needs from the handoff store: whether a
// conversation is human-controlled, and the ability to copy a live pause
// onto a newly correlated alias.
type PauseView interface {
	IsPaused(ctx context.Context, conversationID string) bool
	InheritPause(ctx context.Context, fromID, toID string)
}

// Resolver owns the bidirectional link index and the activity timestamp map.
// Links are created opportunistically and never deleted explicitly; the
// sweep evicts them once both sides are inactive past the TTL.
type Resolver struct {
	mu            sync.Mutex
	canonToShadow map[string]string
	shadowToCanon map[string]string
	lastSeen      map[string]time.Time

	pauses  PauseView
	window  time.Duration // heuristic correlation lookback
	linkTTL time.Duration

	sweepEvery time.Duration
	now        func() time.Time
}

// New creates a resolver with the configured correlation window and TTLs.
func New(pauses PauseView, cfg config.IdentityConfig) *Resolver {
	return &Resolver{
		canonToShadow: make(map[string]string),
		shadowToCanon: make(map[string]string),
		lastSeen:      make(map[string]time.Time),
		pauses:        pauses,
		window:        cfg.CorrelationWindow(),
		linkTTL:       cfg.LinkTTL(),
		sweepEvery:    cfg.SweepInterval(),
		now:           time.Now,
	}
}

// Touch records activity for a conversation id. Called on every inbound and
// outbound event.
func (r *Resolver) Touch(id string) {
	r.mu.Lock()
	r.lastSeen[id] = r.now()
	r.mu.Unlock()
}

// Resolve maps an observed conversation id (either alias form) to the
// canonical id used for session and handoff lookups. It updates the activity
// map for both the raw and resolved ids, and propagates a live pause across
// an existing or newly created link.
func (r *Resolver) Resolve(ctx context.Context, id string, fromSelf bool) string {
	now := r.now()

	r.mu.Lock()
	r.lastSeen[id] = now

	if !IsShadow(id) {
		shadow, linked := r.canonToShadow[id]
		r.mu.Unlock()
		if linked {
			r.pauses.InheritPause(ctx, id, shadow)
		}
		return id
	}

	if canonical, linked := r.shadowToCanon[id]; linked {
		r.lastSeen[canonical] = now
		r.mu.Unlock()
		r.pauses.InheritPause(ctx, canonical, id)
		return canonical
	}
	r.mu.Unlock()

	if canonical, ok := r.correlate(ctx, id, now); ok {
		return canonical
	}
	// No correlation: the shadow id is its own conversation for now.
	return id
}

// correlate attempts the time-windowed heuristic: canonical ids active inside
// the window, currently paused (evidence a human just replied there) and not
// yet linked. Exactly one candidate creates the link; anything else declines,
// since a wrong merge would leak pause state across unrelated contacts.
func (r *Resolver) correlate(ctx context.Context, shadow string, now time.Time) (string, bool) {
	r.mu.Lock()
	var candidates []string
	for id, seen := range r.lastSeen {
		if !IsCanonical(id) {
			continue
		}
		if now.Sub(seen) > r.window {
			continue
		}
		if _, linked := r.canonToShadow[id]; linked {
			continue
		}
		candidates = append(candidates, id)
	}
	r.mu.Unlock()

	// Pause liveness consults the handoff store; keep it outside the lock.
	live := candidates[:0]
	for _, id := range candidates {
		if r.pauses.IsPaused(ctx, id) {
			live = append(live, id)
		}
	}

	if len(live) != 1 {
		if len(live) > 1 {
			slog.Debug("ambiguous shadow correlation, declining to link",
				"shadow", shadow, "candidates", len(live))
		}
		return "", false
	}

	canonical := live[0]
	r.mu.Lock()
	// Re-check under lock: another event may have taken the candidate.
	if _, taken := r.canonToShadow[canonical]; taken {
		r.mu.Unlock()
		return "", false
	}
	r.canonToShadow[canonical] = shadow
	r.shadowToCanon[shadow] = canonical
	r.lastSeen[canonical] = now
	r.mu.Unlock()

	slog.Info("linked shadow alias", "canonical", canonical, "shadow", shadow)
	r.pauses.InheritPause(ctx, canonical, shadow)
	return canonical, true
}

// Link records an explicit association (e.g. the bridge reported both forms
// for one event).
func (r *Resolver) Link(canonical, shadow string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.canonToShadow[canonical]; taken {
		return
	}
	if _, taken := r.shadowToCanon[shadow]; taken {
		return
	}
	r.canonToShadow[canonical] = shadow
	r.shadowToCanon[shadow] = canonical
}

// Linked returns the shadow currently linked to canonical, if any.
func (r *Resolver) Linked(canonical string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	shadow, ok := r.canonToShadow[canonical]
	return shadow, ok
}

// Sweep evicts identity links whose both sides are inactive beyond the TTL,
// and stale activity timestamps.
func (r *Resolver) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.linkTTL)

	for canonical, shadow := range r.canonToShadow {
		if r.lastSeen[canonical].After(cutoff) || r.lastSeen[shadow].After(cutoff) {
			continue
		}
		delete(r.canonToShadow, canonical)
		delete(r.shadowToCanon, shadow)
	}

	for id, seen := range r.lastSeen {
		if !seen.After(cutoff) {
			delete(r.lastSeen, id)
		}
	}
}

// StartSweeper runs the eviction sweep periodically until ctx is done.
func (r *Resolver) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}
