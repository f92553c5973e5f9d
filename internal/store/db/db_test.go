package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/natankaway/arenazap/internal/store"
)

func openTestConn(t *testing.T) *Conn {
	t.Helper()
	handle, err := Open(DialectSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { handle.Close() })

	conn := New(handle, DialectSQLite)
	if err := conn.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	return conn
}

func TestRebind(t *testing.T) {
	pg := New(nil, DialectPostgres)
	lite := New(nil, DialectSQLite)

	q := `INSERT INTO t (a, b) VALUES ($1, $2)`
	if got := pg.rebind(q); got != q {
		t.Errorf("postgres rebind changed the query: %q", got)
	}
	if got := lite.rebind(q); got != `INSERT INTO t (a, b) VALUES (?, ?)` {
		t.Errorf("sqlite rebind = %q", got)
	}
}

func TestOpenUnknownDialect(t *testing.T) {
	if _, err := Open("oracle", ""); err == nil {
		t.Error("Open accepted an unknown dialect")
	}
}

func TestBookingRoundTrip(t *testing.T) {
	conn := openTestConn(t)
	stores := conn.Stores()
	ctx := context.Background()

	b := &store.Booking{
		ID:        "bk1",
		Name:      "Ana Souza",
		Phone:     "5521911110000@s.whatsapp.net",
		Unit:      "Copacabana",
		Slot:      "Manhã (7h às 10h)",
		Status:    "pending",
		CreatedAt: time.Now().UTC(),
	}
	if err := stores.Bookings.Create(ctx, b); err != nil {
		t.Fatal(err)
	}

	out, err := stores.Bookings.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d bookings, want 1", len(out))
	}
	if out[0].Name != b.Name || out[0].Unit != b.Unit || out[0].Status != "pending" {
		t.Errorf("booking = %+v", out[0])
	}
}

func TestListOverdue(t *testing.T) {
	conn := openTestConn(t)
	stores := conn.Stores()
	ctx := context.Background()

	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	students := []store.Student{
		{ID: "s1", Name: "Ana", Phone: "p1", Active: true, CreatedAt: due},
		{ID: "s2", Name: "Bruno", Phone: "p2", Active: true, CreatedAt: due},
	}
	for i := range students {
		if err := stores.Students.Create(ctx, &students[i]); err != nil {
			t.Fatal(err)
		}
	}
	paid := due.Add(time.Hour)
	payments := []store.Payment{
		{ID: "p1", StudentID: "s1", Description: "Janeiro", AmountCents: 25000, DueDate: due},
		{ID: "p2", StudentID: "s2", Description: "Janeiro", AmountCents: 25000, DueDate: due, PaidAt: &paid},
		{ID: "p3", StudentID: "s1", Description: "Fevereiro", AmountCents: 25000, DueDate: due.AddDate(0, 1, 0)},
	}
	for i := range payments {
		if err := stores.Payments.Create(ctx, &payments[i]); err != nil {
			t.Fatal(err)
		}
	}

	out, err := stores.Payments.ListOverdue(ctx, due.AddDate(0, 0, 5))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d overdue, want 1", len(out))
	}
	if out[0].ID != "p1" || out[0].StudentName != "Ana" || out[0].StudentPhone != "p1" {
		t.Errorf("overdue = %+v", out[0])
	}
}

func TestPollOptionsRoundTrip(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	_, err := conn.DB().ExecContext(ctx,
		`INSERT INTO polls (id, question, options, multi_select, pin_after_send)
		 VALUES ('p1', 'Joga sábado?', '["Sim","Não","Talvez"]', 0, 1)`)
	if err != nil {
		t.Fatal(err)
	}

	p, err := conn.Stores().Polls.Get(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Options) != 3 || p.Options[2] != "Talvez" {
		t.Errorf("options = %v", p.Options)
	}
	if p.MultiSelect || !p.PinAfterSend {
		t.Errorf("flags = %+v", p)
	}

	if _, err := conn.Stores().Polls.Get(ctx, "missing"); err == nil {
		t.Error("Get of a missing poll did not error")
	}
}

func TestBroadcastLifecycle(t *testing.T) {
	conn := openTestConn(t)
	stores := conn.Stores()
	ctx := context.Background()

	_, err := conn.DB().ExecContext(ctx,
		`INSERT INTO broadcasts (id, kind, target_group, poll_id, schedule, enabled)
		 VALUES ('b1', 'poll', 'group@g.us', 'p1', '0 18 * * 5', 1),
		        ('b2', 'reminder', '', NULL, '0 10 1 * *', 0)`)
	if err != nil {
		t.Fatal(err)
	}

	out, err := stores.Broadcasts.ListEnabled(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != "b1" {
		t.Fatalf("ListEnabled = %+v", out)
	}
	if out[0].LastExecutedAt != nil {
		t.Error("fresh broadcast has LastExecutedAt set")
	}

	at := time.Date(2026, 1, 2, 18, 0, 0, 0, time.UTC)
	if err := stores.Broadcasts.SetLastExecuted(ctx, "b1", at); err != nil {
		t.Fatal(err)
	}

	out, err = stores.Broadcasts.ListEnabled(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].LastExecutedAt == nil || !out[0].LastExecutedAt.Equal(at) {
		t.Errorf("LastExecutedAt = %v, want %v", out[0].LastExecutedAt, at)
	}

	if err := stores.Broadcasts.SetLastExecuted(ctx, "missing", at); err == nil {
		t.Error("SetLastExecuted on a missing broadcast did not error")
	}
}

func TestSentDeliveryIdempotent(t *testing.T) {
	conn := openTestConn(t)
	stores := conn.Stores()
	ctx := context.Background()

	d := &store.SentDelivery{MessageID: "m1", BroadcastID: "b1", SentAt: time.Now().UTC()}
	if err := stores.Deliveries.RecordSent(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := stores.Deliveries.RecordSent(ctx, d); err != nil {
		t.Fatalf("duplicate RecordSent errored: %v", err)
	}

	sent, err := stores.Deliveries.WasSent(ctx, "m1")
	if err != nil || !sent {
		t.Errorf("WasSent = %v, %v", sent, err)
	}
	sent, err = stores.Deliveries.WasSent(ctx, "m2")
	if err != nil || sent {
		t.Errorf("WasSent(unknown) = %v, %v", sent, err)
	}
}
