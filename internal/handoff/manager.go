// Package handoff tracks which conversations a human operator has taken
// over. A live record suppresses all automated replies for that conversation
// except the literal resume keyword. State lives in memory with best-effort
// persistence to the durable cache so a secondary process (e.g. the admin
// API) observes it too.
package handoff

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/natankaway/arenazap/internal/cache"
)

const keyPrefix = "handoff:"

// Record marks a paused (human-controlled) conversation.
type Record struct {
	ConversationID string    `json:"conversation_id"`
	PausedUntil    time.Time `json:"paused_until"`
	Reason         string    `json:"reason,omitempty"`
}

// Manager is the pause/resume state machine.
type Manager struct {
	mu      sync.Mutex
	records map[string]Record

	durable cache.Cache // may be nil
	ttl     time.Duration
	now     func() time.Time
}

// New creates a manager with the given pause TTL. durable may be nil for
// memory-only operation.
func New(durable cache.Cache, ttl time.Duration) *Manager {
	return &Manager{
		records: make(map[string]Record),
		durable: durable,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Pause puts a conversation under human control. Returns true when the pause
// was newly created; a conversation already paused is left untouched, so only
// the first takeover message starts the TTL.
func (m *Manager) Pause(ctx context.Context, conversationID, reason string) bool {
	if _, live := m.Get(ctx, conversationID); live {
		return false
	}

	now := m.now()
	rec := Record{
		ConversationID: conversationID,
		PausedUntil:    now.Add(m.ttl),
		Reason:         reason,
	}
	m.mu.Lock()
	m.records[conversationID] = rec
	m.mu.Unlock()

	m.persist(ctx, rec, m.ttl)
	slog.Info("conversation paused", "conversation_id", conversationID, "reason", reason)
	return true
}

// Resume returns a conversation to automated control. Returns true when a
// live pause was actually removed, false when the conversation was already
// automated (idempotent resume).
func (m *Manager) Resume(ctx context.Context, conversationID string) bool {
	// Get hydrates from the durable cache, so a record written by another
	// process still counts as a live pause here.
	_, live := m.Get(ctx, conversationID)

	m.mu.Lock()
	delete(m.records, conversationID)
	m.mu.Unlock()

	if m.durable != nil && m.durable.IsReady() {
		if err := m.durable.Delete(ctx, keyPrefix+conversationID); err != nil {
			slog.Debug("durable handoff delete failed", "error", err)
		}
	}

	if !live {
		return false
	}
	slog.Info("conversation resumed", "conversation_id", conversationID)
	return true
}

// IsPaused reports whether a live handoff record exists for the conversation.
// Memory is consulted first; the durable cache covers records written by a
// secondary process or a previous run.
func (m *Manager) IsPaused(ctx context.Context, conversationID string) bool {
	_, ok := m.Get(ctx, conversationID)
	return ok
}

// Get returns the live handoff record for a conversation, if any.
func (m *Manager) Get(ctx context.Context, conversationID string) (Record, bool) {
	now := m.now()

	m.mu.Lock()
	rec, ok := m.records[conversationID]
	if ok && !rec.PausedUntil.After(now) {
		delete(m.records, conversationID)
		ok = false
	}
	m.mu.Unlock()

	if ok {
		return rec, true
	}

	if m.durable == nil || !m.durable.IsReady() {
		return Record{}, false
	}
	raw, found, err := m.durable.Get(ctx, keyPrefix+conversationID)
	if err != nil || !found {
		return Record{}, false
	}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, false
	}
	if !rec.PausedUntil.After(now) {
		return Record{}, false
	}

	// Hydrate the memory front for subsequent lookups.
	m.mu.Lock()
	m.records[conversationID] = rec
	m.mu.Unlock()
	return rec, true
}

// InheritPause copies a live pause from one conversation id onto another
// (alias of the same contact), preserving the remaining TTL. No-op when the
// source is not paused or the target already is.
func (m *Manager) InheritPause(ctx context.Context, fromID, toID string) {
	src, ok := m.Get(ctx, fromID)
	if !ok {
		return
	}
	if _, paused := m.Get(ctx, toID); paused {
		return
	}

	rec := Record{
		ConversationID: toID,
		PausedUntil:    src.PausedUntil,
		Reason:         src.Reason,
	}
	m.mu.Lock()
	m.records[toID] = rec
	m.mu.Unlock()

	m.persist(ctx, rec, rec.PausedUntil.Sub(m.now()))
	slog.Debug("pause inherited across alias link", "from", fromID, "to", toID)
}

func (m *Manager) persist(ctx context.Context, rec Record, ttl time.Duration) {
	if m.durable == nil || !m.durable.IsReady() {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := m.durable.Set(ctx, keyPrefix+rec.ConversationID, string(data), ttl); err != nil {
		slog.Debug("durable handoff write failed", "error", err)
	}
}

// Sweep drops expired records from the memory front.
func (m *Manager) Sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.records {
		if !rec.PausedUntil.After(now) {
			delete(m.records, id)
		}
	}
}

// StartSweeper runs Sweep periodically until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}
