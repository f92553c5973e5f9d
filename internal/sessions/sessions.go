// Package sessions tracks each conversation's dialog state and scratch data.
// Sessions are created lazily on first contact, mutated by the router every
// turn, and dropped after an inactivity TTL. Same memory-front /
// durable-cache shape as the handoff store.
package sessions

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/natankaway/arenazap/internal/cache"
)

const keyPrefix = "session:"

// DialogState is the current step of the menu-driven conversation flow.
type DialogState string

// The closed set of dialog states. Anything else normalizes to StateMenu.
const (
	StateMenu           DialogState = "menu"
	StateUnits          DialogState = "units"
	StatePrices         DialogState = "prices"
	StateFAQ            DialogState = "faq"
	StateBookingName    DialogState = "booking_name"
	StateBookingUnit    DialogState = "booking_unit"
	StateBookingSlot    DialogState = "booking_slot"
	StateBookingConfirm DialogState = "booking_confirm"
	StateWaitingHuman   DialogState = "waiting_human"
)

// Valid reports whether s is one of the enumerated states.
func (s DialogState) Valid() bool {
	switch s {
	case StateMenu, StateUnits, StatePrices, StateFAQ,
		StateBookingName, StateBookingUnit, StateBookingSlot, StateBookingConfirm,
		StateWaitingHuman:
		return true
	}
	return false
}

// Normalize maps unknown or stale states to StateMenu.
func Normalize(s DialogState) DialogState {
	if !s.Valid() {
		return StateMenu
	}
	return s
}

// Session is one conversation's dialog state and scratch data.
type Session struct {
	ConversationID string            `json:"conversation_id"`
	State          DialogState       `json:"state"`
	Data           map[string]string `json:"data,omitempty"`
	LastActivity   time.Time         `json:"last_activity"`
}

// Manager owns all live sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]Session

	durable cache.Cache // may be nil
	ttl     time.Duration
	now     func() time.Time
}

// NewManager creates a session manager. durable may be nil.
func NewManager(durable cache.Cache, ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]Session),
		durable:  durable,
		ttl:      ttl,
		now:      time.Now,
	}
}

// GetOrCreate returns the session for a conversation, creating it in
// StateMenu on first contact. The returned value is a copy; call Put to
// store mutations.
func (m *Manager) GetOrCreate(ctx context.Context, conversationID string) Session {
	now := m.now()

	m.mu.Lock()
	sess, ok := m.sessions[conversationID]
	m.mu.Unlock()

	if !ok && m.durable != nil && m.durable.IsReady() {
		if raw, found, err := m.durable.Get(ctx, keyPrefix+conversationID); err == nil && found {
			if err := json.Unmarshal([]byte(raw), &sess); err == nil {
				ok = true
			}
		}
	}

	if !ok {
		sess = Session{
			ConversationID: conversationID,
			State:          StateMenu,
			Data:           make(map[string]string),
		}
	}

	sess.State = Normalize(sess.State)
	if sess.Data == nil {
		sess.Data = make(map[string]string)
	}
	sess.LastActivity = now
	return sess
}

// Put stores a session in memory and best-effort in the durable cache.
func (m *Manager) Put(ctx context.Context, sess Session) {
	sess.State = Normalize(sess.State)
	sess.LastActivity = m.now()

	m.mu.Lock()
	m.sessions[sess.ConversationID] = sess
	m.mu.Unlock()

	if m.durable == nil || !m.durable.IsReady() {
		return
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := m.durable.Set(ctx, keyPrefix+sess.ConversationID, string(data), m.ttl); err != nil {
		slog.Debug("durable session write failed", "error", err)
	}
}

// Reset returns a conversation to the initial dialog state.
func (m *Manager) Reset(ctx context.Context, conversationID string) {
	m.Put(ctx, Session{
		ConversationID: conversationID,
		State:          StateMenu,
		Data:           make(map[string]string),
	})
}

// Delete removes a session entirely.
func (m *Manager) Delete(ctx context.Context, conversationID string) {
	m.mu.Lock()
	delete(m.sessions, conversationID)
	m.mu.Unlock()

	if m.durable != nil && m.durable.IsReady() {
		if err := m.durable.Delete(ctx, keyPrefix+conversationID); err != nil {
			slog.Debug("durable session delete failed", "error", err)
		}
	}
}

// State returns the current state for a conversation without touching
// activity. Used by tests and diagnostics.
func (m *Manager) State(conversationID string) (DialogState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[conversationID]
	if !ok {
		return "", false
	}
	return sess.State, true
}

// Sweep drops sessions inactive beyond the TTL.
func (m *Manager) Sweep() {
	cutoff := m.now().Add(-m.ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		if !sess.LastActivity.After(cutoff) {
			delete(m.sessions, id)
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
