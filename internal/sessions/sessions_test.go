package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/natankaway/arenazap/internal/cache"
)

const convID = "5521911110000@s.whatsapp.net"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   DialogState
		want DialogState
	}{
		{StateMenu, StateMenu},
		{StateBookingSlot, StateBookingSlot},
		{StateWaitingHuman, StateWaitingHuman},
		{DialogState("legacy_step"), StateMenu},
		{DialogState(""), StateMenu},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetOrCreateStartsAtMenu(t *testing.T) {
	m := NewManager(nil, 30*time.Minute)

	sess := m.GetOrCreate(context.Background(), convID)
	if sess.State != StateMenu {
		t.Errorf("new session state = %q, want %q", sess.State, StateMenu)
	}
	if sess.Data == nil {
		t.Error("new session has nil data map")
	}
}

func TestPutAndGetRoundTrip(t *testing.T) {
	m := NewManager(nil, 30*time.Minute)
	ctx := context.Background()

	sess := m.GetOrCreate(ctx, convID)
	sess.State = StateBookingName
	sess.Data["name"] = "Ana"
	m.Put(ctx, sess)

	got := m.GetOrCreate(ctx, convID)
	if got.State != StateBookingName {
		t.Errorf("state = %q, want %q", got.State, StateBookingName)
	}
	if got.Data["name"] != "Ana" {
		t.Errorf("data[name] = %q, want Ana", got.Data["name"])
	}
}

func TestPutNormalizesUnknownState(t *testing.T) {
	m := NewManager(nil, 30*time.Minute)
	ctx := context.Background()

	m.Put(ctx, Session{ConversationID: convID, State: DialogState("corrupt")})

	if state, _ := m.State(convID); state != StateMenu {
		t.Errorf("stored state = %q, want %q", state, StateMenu)
	}
}

func TestReset(t *testing.T) {
	m := NewManager(nil, 30*time.Minute)
	ctx := context.Background()

	sess := m.GetOrCreate(ctx, convID)
	sess.State = StateBookingConfirm
	sess.Data["name"] = "Ana"
	m.Put(ctx, sess)

	m.Reset(ctx, convID)

	got := m.GetOrCreate(ctx, convID)
	if got.State != StateMenu || len(got.Data) != 0 {
		t.Errorf("after Reset: state=%q data=%v, want menu and empty data", got.State, got.Data)
	}
}

func TestDurableHydration(t *testing.T) {
	durable := cache.NewMemory()
	ctx := context.Background()

	writer := NewManager(durable, 30*time.Minute)
	sess := writer.GetOrCreate(ctx, convID)
	sess.State = StateFAQ
	writer.Put(ctx, sess)

	reader := NewManager(durable, 30*time.Minute)
	got := reader.GetOrCreate(ctx, convID)
	if got.State != StateFAQ {
		t.Errorf("hydrated state = %q, want %q", got.State, StateFAQ)
	}
}

func TestSweepDropsIdleSessions(t *testing.T) {
	m := NewManager(nil, 30*time.Minute)
	ctx := context.Background()
	base := time.Now()
	m.now = func() time.Time { return base }

	m.Put(ctx, Session{ConversationID: convID, State: StateFAQ})
	m.Put(ctx, Session{ConversationID: "fresh@s.whatsapp.net", State: StateMenu})

	m.now = func() time.Time { return base.Add(31 * time.Minute) }
	// Keep one session active.
	m.Put(ctx, Session{ConversationID: "fresh@s.whatsapp.net", State: StateUnits})
	m.Sweep()

	if _, ok := m.State(convID); ok {
		t.Error("idle session survived the sweep")
	}
	if _, ok := m.State("fresh@s.whatsapp.net"); !ok {
		t.Error("active session was swept")
	}
}
