package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/natankaway/arenazap/internal/config"
	"github.com/natankaway/arenazap/internal/delivery"
	"github.com/natankaway/arenazap/internal/store"
)

type fakeEngine struct {
	mu       sync.Mutex
	requests []delivery.Request
	fail     bool
}

func (f *fakeEngine) Deliver(_ context.Context, req delivery.Request) delivery.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.fail {
		return delivery.Outcome{Attempts: 5, Err: errors.New("send failed")}
	}
	return delivery.Outcome{Success: true, Attempts: 1, MessageID: "m1"}
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeNotifier) Notify(_ context.Context, text string) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
}

func testScheduler(mem *store.MemoryStores, eng *fakeEngine, n *fakeNotifier, at time.Time) *Scheduler {
	s := New(mem.Stores(), eng, n, config.SchedulerConfig{})
	s.now = func() time.Time { return at }
	return s
}

func TestPassExecutesDuePoll(t *testing.T) {
	mem := store.NewMemoryStores()
	mem.PutPoll(store.PollDefinition{
		ID:           "p1",
		Question:     "Joga sábado às 9h?",
		Options:      []string{"Sim", "Não", "Talvez"},
		PinAfterSend: true,
	})
	mem.PutBroadcast(store.ScheduledBroadcast{
		ID:          "b1",
		Kind:        store.BroadcastPoll,
		TargetGroup: "group@g.us",
		PollID:      "p1",
		Schedule:    "0 18 * * 5",
		Enabled:     true,
	})

	eng := &fakeEngine{}
	at := time.Date(2026, 1, 2, 18, 0, 30, 0, time.UTC) // a Friday, 18:00
	s := testScheduler(mem, eng, &fakeNotifier{}, at)

	s.pass(context.Background())

	if len(eng.requests) != 1 {
		t.Fatalf("delivered %d requests, want 1", len(eng.requests))
	}
	req := eng.requests[0]
	if req.Kind != delivery.KindPoll || req.Target != "group@g.us" || !req.Pin {
		t.Errorf("unexpected request: %+v", req)
	}
	if req.Poll == nil || req.Poll.Question != "Joga sábado às 9h?" {
		t.Errorf("poll payload not composed from definition: %+v", req.Poll)
	}

	b, _ := mem.Broadcast("b1")
	if b.LastExecutedAt == nil || !b.LastExecutedAt.Equal(at) {
		t.Errorf("LastExecutedAt = %v, want %v", b.LastExecutedAt, at)
	}
}

func TestPassSkipsNotDue(t *testing.T) {
	mem := store.NewMemoryStores()
	mem.PutBroadcast(store.ScheduledBroadcast{
		ID:       "b1",
		Kind:     store.BroadcastReminder,
		Schedule: "0 10 * * 1",
		Enabled:  true,
	})

	eng := &fakeEngine{}
	at := time.Date(2026, 1, 2, 18, 0, 0, 0, time.UTC) // Friday, not Monday 10:00
	s := testScheduler(mem, eng, &fakeNotifier{}, at)

	s.pass(context.Background())

	if len(eng.requests) != 0 {
		t.Errorf("delivered %d requests, want 0", len(eng.requests))
	}
}

func TestPassSkipsDisabled(t *testing.T) {
	mem := store.NewMemoryStores()
	mem.PutBroadcast(store.ScheduledBroadcast{
		ID:       "b1",
		Kind:     store.BroadcastReminder,
		Schedule: "* * * * *",
		Enabled:  false,
	})

	eng := &fakeEngine{}
	s := testScheduler(mem, eng, &fakeNotifier{}, time.Now())

	s.pass(context.Background())

	if len(eng.requests) != 0 {
		t.Errorf("delivered %d requests for a disabled broadcast", len(eng.requests))
	}
}

func TestPassDoesNotDoubleFireSameMinute(t *testing.T) {
	mem := store.NewMemoryStores()
	mem.PutPoll(store.PollDefinition{ID: "p1", Question: "q", Options: []string{"a", "b"}})
	mem.PutBroadcast(store.ScheduledBroadcast{
		ID:       "b1",
		Kind:     store.BroadcastPoll,
		PollID:   "p1",
		Schedule: "* * * * *",
		Enabled:  true,
	})

	eng := &fakeEngine{}
	at := time.Date(2026, 1, 2, 18, 0, 10, 0, time.UTC)
	s := testScheduler(mem, eng, &fakeNotifier{}, at)

	s.pass(context.Background())
	s.now = func() time.Time { return at.Add(20 * time.Second) } // same minute
	s.pass(context.Background())

	if len(eng.requests) != 1 {
		t.Errorf("delivered %d requests within one minute, want 1", len(eng.requests))
	}
}

func TestFailedDeliveryKeepsLastExecutedAndAlerts(t *testing.T) {
	mem := store.NewMemoryStores()
	mem.PutPoll(store.PollDefinition{ID: "p1", Question: "q", Options: []string{"a", "b"}})
	mem.PutBroadcast(store.ScheduledBroadcast{
		ID:       "b1",
		Kind:     store.BroadcastPoll,
		PollID:   "p1",
		Schedule: "* * * * *",
		Enabled:  true,
	})

	eng := &fakeEngine{fail: true}
	notifier := &fakeNotifier{}
	s := testScheduler(mem, eng, notifier, time.Now())

	s.pass(context.Background())

	b, _ := mem.Broadcast("b1")
	if b.LastExecutedAt != nil {
		t.Errorf("LastExecutedAt advanced on failure: %v", b.LastExecutedAt)
	}
	if len(notifier.texts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(notifier.texts))
	}
	if !strings.Contains(notifier.texts[0], "b1") {
		t.Errorf("alert does not name the broadcast: %q", notifier.texts[0])
	}
}

func TestRemindersOnePerOverduePayment(t *testing.T) {
	mem := store.NewMemoryStores()
	ctx := context.Background()
	stores := mem.Stores()

	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	paid := due.Add(24 * time.Hour)
	students := []store.Student{
		{ID: "s1", Name: "Ana", Phone: "5521911110000@s.whatsapp.net"},
		{ID: "s2", Name: "Bruno", Phone: "5521922220000@s.whatsapp.net"},
		{ID: "s3", Name: "Clara", Phone: "5521933330000@s.whatsapp.net"},
	}
	for i := range students {
		if err := stores.Students.Create(ctx, &students[i]); err != nil {
			t.Fatal(err)
		}
	}
	payments := []store.Payment{
		{ID: "pay1", StudentID: "s1", Description: "Janeiro", AmountCents: 25000, DueDate: due},
		{ID: "pay2", StudentID: "s2", Description: "Janeiro", AmountCents: 25000, DueDate: due, PaidAt: &paid},
		{ID: "pay3", StudentID: "s3", Description: "Dezembro", AmountCents: 18000, DueDate: due.AddDate(0, -1, 0)},
	}
	for i := range payments {
		if err := stores.Payments.Create(ctx, &payments[i]); err != nil {
			t.Fatal(err)
		}
	}
	mem.PutBroadcast(store.ScheduledBroadcast{
		ID:       "b1",
		Kind:     store.BroadcastReminder,
		Schedule: "* * * * *",
		Enabled:  true,
	})

	eng := &fakeEngine{}
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	s := testScheduler(mem, eng, &fakeNotifier{}, at)

	s.pass(ctx)

	if len(eng.requests) != 2 {
		t.Fatalf("delivered %d reminders, want 2 (paid payment excluded)", len(eng.requests))
	}
	targets := map[string]bool{}
	for _, req := range eng.requests {
		if req.Kind != delivery.KindReminder {
			t.Errorf("request kind = %q, want reminder", req.Kind)
		}
		targets[req.Target] = true
	}
	if !targets["5521911110000@s.whatsapp.net"] || !targets["5521933330000@s.whatsapp.net"] {
		t.Errorf("unexpected reminder targets: %v", targets)
	}
	for _, req := range eng.requests {
		if req.Target == "5521911110000@s.whatsapp.net" {
			if !strings.Contains(req.Message, "Ana") || !strings.Contains(req.Message, "R$ 250,00") {
				t.Errorf("reminder text missing name or amount: %q", req.Message)
			}
			if !strings.Contains(req.Message, "10/01/2026") {
				t.Errorf("reminder text missing due date: %q", req.Message)
			}
		}
	}
}

func TestReminderSkipsWhenNothingOverdue(t *testing.T) {
	mem := store.NewMemoryStores()
	mem.PutBroadcast(store.ScheduledBroadcast{
		ID:       "b1",
		Kind:     store.BroadcastReminder,
		Schedule: "* * * * *",
		Enabled:  true,
	})

	eng := &fakeEngine{}
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	s := testScheduler(mem, eng, &fakeNotifier{}, at)

	s.pass(context.Background())

	if len(eng.requests) != 0 {
		t.Errorf("delivered %d reminders with nothing overdue", len(eng.requests))
	}
	b, _ := mem.Broadcast("b1")
	if b.LastExecutedAt == nil {
		t.Error("an empty reminder pass still counts as executed")
	}
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{25000, "R$ 250,00"},
		{18050, "R$ 180,50"},
		{99, "R$ 0,99"},
	}
	for _, tt := range tests {
		if got := formatCents(tt.cents); got != tt.want {
			t.Errorf("formatCents(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}
