package dialog

import (
	"strings"
	"testing"

	"github.com/natankaway/arenazap/internal/sessions"
)

func newSession(state sessions.DialogState) *sessions.Session {
	return &sessions.Session{
		ConversationID: "5521911110000@s.whatsapp.net",
		State:          state,
		Data:           map[string]string{},
	}
}

func TestGreetingShowsMenu(t *testing.T) {
	for _, greeting := range []string{"oi", "Oi", "olá", "ola", "menu", "0"} {
		t.Run(greeting, func(t *testing.T) {
			res := Advance(newSession(sessions.StateMenu), Input{Text: greeting})
			if res.State != sessions.StateMenu {
				t.Errorf("state = %q, want menu", res.State)
			}
			if len(res.Replies) != 1 || res.Replies[0] != MenuText {
				t.Errorf("replies = %v, want the menu", res.Replies)
			}
		})
	}
}

func TestMenuOptions(t *testing.T) {
	tests := []struct {
		input string
		state sessions.DialogState
		reply string
	}{
		{"1", sessions.StateUnits, UnitsText},
		{"2", sessions.StatePrices, PricesText},
		{"3", sessions.StateFAQ, FAQText},
		{"4", sessions.StateBookingName, BookingNamePrompt},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res := Advance(newSession(sessions.StateMenu), Input{Text: tt.input})
			if res.State != tt.state {
				t.Errorf("state = %q, want %q", res.State, tt.state)
			}
			if len(res.Replies) == 0 || res.Replies[0] != tt.reply {
				t.Errorf("replies = %v, want %q first", res.Replies, tt.reply)
			}
		})
	}
}

func TestMenuInvalidOptionRePrompts(t *testing.T) {
	res := Advance(newSession(sessions.StateMenu), Input{Text: "99"})
	if res.State != sessions.StateMenu {
		t.Errorf("state = %q, want menu", res.State)
	}
	if len(res.Replies) != 2 || res.Replies[0] != InvalidOptionText || res.Replies[1] != MenuText {
		t.Errorf("replies = %v, want validation then menu", res.Replies)
	}
}

func TestHumanRequest(t *testing.T) {
	for _, input := range []string{"5", "atendente", "humano"} {
		t.Run(input, func(t *testing.T) {
			res := Advance(newSession(sessions.StateMenu), Input{Text: input})
			if !res.Handoff {
				t.Error("Handoff not set")
			}
			if res.State != sessions.StateWaitingHuman {
				t.Errorf("state = %q, want waiting_human", res.State)
			}
			if len(res.Replies) != 1 || res.Replies[0] != HandoffNoticeText {
				t.Errorf("replies = %v, want handoff notice", res.Replies)
			}
		})
	}
}

func TestWaitingHumanStaysSilent(t *testing.T) {
	res := Advance(newSession(sessions.StateWaitingHuman), Input{Text: "alguém aí?"})
	if len(res.Replies) != 0 {
		t.Errorf("replies = %v, want silence while a human handles the chat", res.Replies)
	}
	if res.State != sessions.StateWaitingHuman {
		t.Errorf("state = %q, want waiting_human", res.State)
	}
}

func TestBookingFlowEndToEnd(t *testing.T) {
	sess := newSession(sessions.StateMenu)

	step := func(text string, wantState sessions.DialogState) Result {
		t.Helper()
		res := Advance(sess, Input{Text: text})
		if res.State != wantState {
			t.Fatalf("Advance(%q): state = %q, want %q", text, res.State, wantState)
		}
		sess.State = res.State
		return res
	}

	step("4", sessions.StateBookingName)
	step("Ana Souza", sessions.StateBookingUnit)
	step("1", sessions.StateBookingSlot)
	res := step("2", sessions.StateBookingConfirm)
	if !strings.Contains(res.Replies[0], "Ana Souza") {
		t.Errorf("confirm prompt does not echo the name: %q", res.Replies[0])
	}

	res = step("sim", sessions.StateMenu)
	if res.Booking == nil {
		t.Fatal("confirmed flow produced no booking")
	}
	b := res.Booking
	if b.Name != "Ana Souza" || b.Unit != "Copacabana" || b.Status != "pending" {
		t.Errorf("booking = %+v", b)
	}
	if b.Phone != sess.ConversationID {
		t.Errorf("booking phone = %q, want conversation id", b.Phone)
	}
	if b.ID == "" {
		t.Error("booking id is empty")
	}
}

func TestBookingDeclinedReturnsToMenu(t *testing.T) {
	sess := newSession(sessions.StateBookingConfirm)
	sess.Data["name"] = "Ana"
	sess.Data["unit"] = "Copacabana"
	sess.Data["slot"] = "Sábado 9h"

	res := Advance(sess, Input{Text: "não"})
	if res.State != sessions.StateMenu {
		t.Errorf("state = %q, want menu", res.State)
	}
	if res.Booking != nil {
		t.Error("declined confirmation still produced a booking")
	}
	if len(res.Replies) != 2 || res.Replies[0] != BookingCancelledText {
		t.Errorf("replies = %v, want cancellation then menu", res.Replies)
	}
}

func TestBookingNameValidation(t *testing.T) {
	sess := newSession(sessions.StateBookingName)

	res := Advance(sess, Input{Text: "x"})
	if res.State != sessions.StateBookingName {
		t.Errorf("state = %q, want to stay at name step", res.State)
	}
	if len(res.Replies) != 1 || res.Replies[0] != InvalidNameText {
		t.Errorf("replies = %v, want name validation", res.Replies)
	}
}

func TestBookingInvalidUnitRePrompts(t *testing.T) {
	sess := newSession(sessions.StateBookingUnit)
	sess.Data["name"] = "Ana"

	res := Advance(sess, Input{Text: "7"})
	if res.State != sessions.StateBookingUnit {
		t.Errorf("state = %q, want to stay at unit step", res.State)
	}
	if len(res.Replies) != 2 || res.Replies[0] != InvalidOptionText {
		t.Errorf("replies = %v, want validation then unit prompt", res.Replies)
	}
}

func TestGlobalOverrideFromDeepState(t *testing.T) {
	sess := newSession(sessions.StateBookingSlot)
	sess.Data["name"] = "Ana"
	sess.Data["unit"] = "Copacabana"

	res := Advance(sess, Input{Text: "menu"})
	if res.State != sessions.StateMenu {
		t.Errorf("state = %q, want menu override from booking flow", res.State)
	}
}

func TestInfoScreenRePrompts(t *testing.T) {
	res := Advance(newSession(sessions.StatePrices), Input{Text: "blah"})
	if res.State != sessions.StatePrices {
		t.Errorf("state = %q, want to stay on prices", res.State)
	}
	if len(res.Replies) != 2 || res.Replies[1] != PricesText {
		t.Errorf("replies = %v, want validation then the prices screen again", res.Replies)
	}
}

func TestButtonDispatch(t *testing.T) {
	tests := []struct {
		button string
		state  sessions.DialogState
	}{
		{btnMenu, sessions.StateMenu},
		{btnUnits, sessions.StateUnits},
		{btnPrices, sessions.StatePrices},
		{btnFAQ, sessions.StateFAQ},
		{btnBook, sessions.StateBookingName},
		{btnHuman, sessions.StateWaitingHuman},
	}
	for _, tt := range tests {
		t.Run(tt.button, func(t *testing.T) {
			res := Advance(newSession(sessions.StateMenu), Input{ButtonID: tt.button})
			if res.State != tt.state {
				t.Errorf("state = %q, want %q", res.State, tt.state)
			}
		})
	}
}

func TestConfirmButtonOnlyAtConfirmStep(t *testing.T) {
	// A stray confirm button outside the confirm step falls through to text
	// handling and must not create a booking.
	res := Advance(newSession(sessions.StateMenu), Input{ButtonID: btnConfirmYes, Text: "1"})
	if res.Booking != nil {
		t.Error("confirm button outside the confirm step produced a booking")
	}

	sess := newSession(sessions.StateBookingConfirm)
	sess.Data["name"] = "Ana"
	sess.Data["unit"] = "Copacabana"
	sess.Data["slot"] = "Sábado 9h"
	res = Advance(sess, Input{ButtonID: btnConfirmYes})
	if res.Booking == nil {
		t.Error("confirm button at the confirm step produced no booking")
	}
}

func TestUnknownStateRecoversToMenu(t *testing.T) {
	sess := newSession(sessions.DialogState("corrupt"))
	res := Advance(sess, Input{Text: "qualquer coisa"})
	if res.State != sessions.StateMenu {
		t.Errorf("state = %q, want recovery to menu", res.State)
	}
}
