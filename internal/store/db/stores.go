package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/natankaway/arenazap/internal/store"
)

// BookingDB implements store.BookingStore.
type BookingDB struct{ c *Conn }

func (s *BookingDB) Create(ctx context.Context, b *store.Booking) error {
	_, err := s.c.db.ExecContext(ctx, s.c.rebind(
		`INSERT INTO bookings (id, name, phone, unit, slot, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`),
		b.ID, b.Name, b.Phone, b.Unit, b.Slot, b.Status, b.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (s *BookingDB) List(ctx context.Context) ([]store.Booking, error) {
	rows, err := s.c.db.QueryContext(ctx,
		`SELECT id, name, phone, unit, slot, status, created_at FROM bookings ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []store.Booking
	for rows.Next() {
		var b store.Booking
		if err := rows.Scan(&b.ID, &b.Name, &b.Phone, &b.Unit, &b.Slot, &b.Status, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// StudentDB implements store.StudentStore.
type StudentDB struct{ c *Conn }

func (s *StudentDB) Create(ctx context.Context, st *store.Student) error {
	_, err := s.c.db.ExecContext(ctx, s.c.rebind(
		`INSERT INTO students (id, name, phone, unit, plan, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`),
		st.ID, st.Name, st.Phone, st.Unit, st.Plan, st.Active, st.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	return nil
}

func (s *StudentDB) List(ctx context.Context) ([]store.Student, error) {
	rows, err := s.c.db.QueryContext(ctx,
		`SELECT id, name, phone, unit, plan, active, created_at FROM students ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var out []store.Student
	for rows.Next() {
		var st store.Student
		if err := rows.Scan(&st.ID, &st.Name, &st.Phone, &st.Unit, &st.Plan, &st.Active, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// PaymentDB implements store.PaymentStore.
type PaymentDB struct{ c *Conn }

func (s *PaymentDB) Create(ctx context.Context, p *store.Payment) error {
	var paidAt sql.NullTime
	if p.PaidAt != nil {
		paidAt = sql.NullTime{Time: p.PaidAt.UTC(), Valid: true}
	}
	_, err := s.c.db.ExecContext(ctx, s.c.rebind(
		`INSERT INTO payments (id, student_id, description, amount_cents, due_date, paid_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`),
		p.ID, p.StudentID, p.Description, p.AmountCents, p.DueDate.UTC(), paidAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *PaymentDB) ListOverdue(ctx context.Context, asOf time.Time) ([]store.OverduePayment, error) {
	rows, err := s.c.db.QueryContext(ctx, s.c.rebind(
		`SELECT p.id, p.student_id, p.description, p.amount_cents, p.due_date,
		        st.name, st.phone
		 FROM payments p
		 JOIN students st ON st.id = p.student_id
		 WHERE p.paid_at IS NULL AND p.due_date < $1
		 ORDER BY p.due_date`),
		asOf.UTC())
	if err != nil {
		return nil, fmt.Errorf("list overdue payments: %w", err)
	}
	defer rows.Close()

	var out []store.OverduePayment
	for rows.Next() {
		var op store.OverduePayment
		if err := rows.Scan(&op.ID, &op.StudentID, &op.Description, &op.AmountCents,
			&op.DueDate, &op.StudentName, &op.StudentPhone); err != nil {
			return nil, fmt.Errorf("scan overdue payment: %w", err)
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// PollDB implements store.PollStore. Options are stored as a JSON array.
type PollDB struct{ c *Conn }

func (s *PollDB) Get(ctx context.Context, id string) (*store.PollDefinition, error) {
	row := s.c.db.QueryRowContext(ctx, s.c.rebind(
		`SELECT id, question, options, multi_select, pin_after_send FROM polls WHERE id = $1`), id)
	return scanPoll(row.Scan)
}

func (s *PollDB) List(ctx context.Context) ([]store.PollDefinition, error) {
	rows, err := s.c.db.QueryContext(ctx,
		`SELECT id, question, options, multi_select, pin_after_send FROM polls ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	defer rows.Close()

	var out []store.PollDefinition
	for rows.Next() {
		p, err := scanPoll(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPoll(scan func(...any) error) (*store.PollDefinition, error) {
	var p store.PollDefinition
	var options string
	if err := scan(&p.ID, &p.Question, &options, &p.MultiSelect, &p.PinAfterSend); err != nil {
		return nil, fmt.Errorf("scan poll: %w", err)
	}
	if err := json.Unmarshal([]byte(options), &p.Options); err != nil {
		return nil, fmt.Errorf("decode poll options: %w", err)
	}
	return &p, nil
}

// BroadcastDB implements store.BroadcastStore.
type BroadcastDB struct{ c *Conn }

func (s *BroadcastDB) ListEnabled(ctx context.Context, limit int) ([]store.ScheduledBroadcast, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.c.db.QueryContext(ctx, s.c.rebind(
		`SELECT id, kind, target_group, poll_id, schedule, enabled, last_executed_at
		 FROM broadcasts WHERE enabled ORDER BY id LIMIT $1`), limit)
	if err != nil {
		return nil, fmt.Errorf("list broadcasts: %w", err)
	}
	defer rows.Close()

	var out []store.ScheduledBroadcast
	for rows.Next() {
		var b store.ScheduledBroadcast
		var pollID sql.NullString
		var last sql.NullTime
		if err := rows.Scan(&b.ID, &b.Kind, &b.TargetGroup, &pollID, &b.Schedule, &b.Enabled, &last); err != nil {
			return nil, fmt.Errorf("scan broadcast: %w", err)
		}
		b.PollID = pollID.String
		if last.Valid {
			t := last.Time
			b.LastExecutedAt = &t
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *BroadcastDB) SetLastExecuted(ctx context.Context, id string, at time.Time) error {
	// Placeholders must appear in argument order so the sqlite rebind keeps
	// positional binding correct.
	res, err := s.c.db.ExecContext(ctx, s.c.rebind(
		`UPDATE broadcasts SET last_executed_at = $1 WHERE id = $2`), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("update broadcast: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("broadcast %s not found", id)
	}
	return nil
}

// DeliveryDB implements store.DeliveryStore.
type DeliveryDB struct{ c *Conn }

func (s *DeliveryDB) RecordSent(ctx context.Context, d *store.SentDelivery) error {
	_, err := s.c.db.ExecContext(ctx, s.c.rebind(
		`INSERT INTO sent_deliveries (message_id, broadcast_id, sent_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (message_id) DO NOTHING`),
		d.MessageID, d.BroadcastID, d.SentAt.UTC())
	if err != nil {
		return fmt.Errorf("record sent delivery: %w", err)
	}
	return nil
}

func (s *DeliveryDB) WasSent(ctx context.Context, messageID string) (bool, error) {
	var one int
	err := s.c.db.QueryRowContext(ctx, s.c.rebind(
		`SELECT 1 FROM sent_deliveries WHERE message_id = $1`), messageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query sent delivery: %w", err)
	}
	return true, nil
}
