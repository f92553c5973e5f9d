package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStores is an in-memory backend. Used by tests and as the degraded
// fallback when no database is configured. The typed store views all share
// one mutex-guarded state.
type MemoryStores struct {
	mu         sync.Mutex
	bookings   []Booking
	students   []Student
	payments   []Payment
	polls      map[string]PollDefinition
	broadcasts map[string]ScheduledBroadcast
	sent       map[string]SentDelivery
}

// NewMemoryStores creates an empty in-memory backend.
func NewMemoryStores() *MemoryStores {
	return &MemoryStores{
		polls:      make(map[string]PollDefinition),
		broadcasts: make(map[string]ScheduledBroadcast),
		sent:       make(map[string]SentDelivery),
	}
}

// Stores returns the interface container backed by this instance.
func (m *MemoryStores) Stores() *Stores {
	return &Stores{
		Bookings:   (*memBookings)(m),
		Students:   (*memStudents)(m),
		Payments:   (*memPayments)(m),
		Polls:      (*memPolls)(m),
		Broadcasts: (*memBroadcasts)(m),
		Deliveries: (*memDeliveries)(m),
	}
}

// PutPoll seeds a poll definition.
func (m *MemoryStores) PutPoll(p PollDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls[p.ID] = p
}

// PutBroadcast seeds a scheduled broadcast.
func (m *MemoryStores) PutBroadcast(b ScheduledBroadcast) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts[b.ID] = b
}

// Broadcast returns a seeded broadcast by id.
func (m *MemoryStores) Broadcast(id string) (ScheduledBroadcast, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.broadcasts[id]
	return b, ok
}

type memBookings MemoryStores

func (m *memBookings) Create(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings = append(m.bookings, *b)
	return nil
}

func (m *memBookings) List(_ context.Context) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Booking, len(m.bookings))
	copy(out, m.bookings)
	return out, nil
}

type memStudents MemoryStores

func (m *memStudents) Create(_ context.Context, s *Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students = append(m.students, *s)
	return nil
}

func (m *memStudents) List(_ context.Context) ([]Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Student, len(m.students))
	copy(out, m.students)
	return out, nil
}

type memPayments MemoryStores

func (m *memPayments) Create(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, *p)
	return nil
}

func (m *memPayments) ListOverdue(_ context.Context, asOf time.Time) ([]OverduePayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID := make(map[string]Student, len(m.students))
	for _, s := range m.students {
		byID[s.ID] = s
	}

	var out []OverduePayment
	for _, p := range m.payments {
		if p.PaidAt != nil || !p.DueDate.Before(asOf) {
			continue
		}
		op := OverduePayment{Payment: p}
		if s, ok := byID[p.StudentID]; ok {
			op.StudentName = s.Name
			op.StudentPhone = s.Phone
		}
		out = append(out, op)
	}
	return out, nil
}

type memPolls MemoryStores

func (m *memPolls) Get(_ context.Context, id string) (*PollDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polls[id]
	if !ok {
		return nil, fmt.Errorf("poll %s not found", id)
	}
	return &p, nil
}

func (m *memPolls) List(_ context.Context) ([]PollDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PollDefinition, 0, len(m.polls))
	for _, p := range m.polls {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memBroadcasts MemoryStores

func (m *memBroadcasts) ListEnabled(_ context.Context, limit int) ([]ScheduledBroadcast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ScheduledBroadcast, 0, len(m.broadcasts))
	for _, b := range m.broadcasts {
		if b.Enabled {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memBroadcasts) SetLastExecuted(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.broadcasts[id]
	if !ok {
		return fmt.Errorf("broadcast %s not found", id)
	}
	b.LastExecutedAt = &at
	m.broadcasts[id] = b
	return nil
}

type memDeliveries MemoryStores

func (m *memDeliveries) RecordSent(_ context.Context, d *SentDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.sent[d.MessageID]; seen {
		return nil
	}
	m.sent[d.MessageID] = *d
	return nil
}

func (m *memDeliveries) WasSent(_ context.Context, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sent[messageID]
	return ok, nil
}
