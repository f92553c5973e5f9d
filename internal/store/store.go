// Package store defines the durable records the gateway reads and writes:
// students, trial-class bookings, payments, poll definitions, scheduled
// broadcasts and sent-delivery idempotency records. Implementations are
// plain CRUD; the only contract beyond that is idempotent sent-record
// writes.
package store

import (
	"context"
	"time"
)

// Student is an enrolled student.
type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"` // canonical JID, e.g. "5521...@s.whatsapp.net"
	Unit      string    `json:"unit"`
	Plan      string    `json:"plan,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Booking is a trial-class booking created by the dialog flow.
type Booking struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Unit      string    `json:"unit"`
	Slot      string    `json:"slot"`
	Status    string    `json:"status"` // "pending", "confirmed", "cancelled"
	CreatedAt time.Time `json:"created_at"`
}

// Payment is a monthly charge against a student.
type Payment struct {
	ID          string     `json:"id"`
	StudentID   string     `json:"student_id"`
	Description string     `json:"description"`
	AmountCents int64      `json:"amount_cents"`
	DueDate     time.Time  `json:"due_date"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

// OverduePayment is a payment joined with the debtor's contact info,
// consumed by the billing-reminder composer.
type OverduePayment struct {
	Payment
	StudentName  string `json:"student_name"`
	StudentPhone string `json:"student_phone"`
}

// PollDefinition is a reusable poll template for group broadcasts.
type PollDefinition struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	MultiSelect  bool     `json:"multi_select"`
	PinAfterSend bool     `json:"pin_after_send"`
}

// Broadcast kinds.
const (
	BroadcastPoll     = "poll"
	BroadcastReminder = "reminder"
)

// ScheduledBroadcast is a recurring broadcast action. The scheduler reads
// due actions and writes back LastExecutedAt on successful delivery only.
type ScheduledBroadcast struct {
	ID             string     `json:"id"`
	Kind           string     `json:"kind"` // BroadcastPoll or BroadcastReminder
	TargetGroup    string     `json:"target_group"` // group JID for polls; unused for reminders
	PollID         string     `json:"poll_id,omitempty"`
	Schedule       string     `json:"schedule"` // cron expression
	Enabled        bool       `json:"enabled"`
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`
}

// SentDelivery is the idempotency record written after a successful send,
// keyed by the delivery's message identifier.
type SentDelivery struct {
	MessageID   string    `json:"message_id"`
	BroadcastID string    `json:"broadcast_id"`
	SentAt      time.Time `json:"sent_at"`
}

// BookingStore persists trial-class bookings.
type BookingStore interface {
	Create(ctx context.Context, b *Booking) error
	List(ctx context.Context) ([]Booking, error)
}

// StudentStore persists students.
type StudentStore interface {
	Create(ctx context.Context, s *Student) error
	List(ctx context.Context) ([]Student, error)
}

// PaymentStore persists payments and answers the reminder composer.
type PaymentStore interface {
	Create(ctx context.Context, p *Payment) error
	ListOverdue(ctx context.Context, asOf time.Time) ([]OverduePayment, error)
}

// PollStore provides poll definitions for scheduled poll broadcasts.
type PollStore interface {
	Get(ctx context.Context, id string) (*PollDefinition, error)
	List(ctx context.Context) ([]PollDefinition, error)
}

// BroadcastStore provides scheduled broadcast actions.
type BroadcastStore interface {
	ListEnabled(ctx context.Context, limit int) ([]ScheduledBroadcast, error)
	SetLastExecuted(ctx context.Context, id string, at time.Time) error
}

// DeliveryStore persists sent-delivery idempotency records.
// RecordSent must be idempotent: re-recording an already-seen message id
// is a no-op, not an error.
type DeliveryStore interface {
	RecordSent(ctx context.Context, d *SentDelivery) error
	WasSent(ctx context.Context, messageID string) (bool, error)
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Bookings   BookingStore
	Students   StudentStore
	Payments   PaymentStore
	Polls      PollStore
	Broadcasts BroadcastStore
	Deliveries DeliveryStore
}
