// Package dialog implements the menu-driven conversation state machine.
// Advance is pure: it maps (session, input) to replies, a new state and
// optional side-effect requests; the router owns all IO. Transitions are
// total: malformed input re-prompts in place and never errors.
package dialog

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/natankaway/arenazap/internal/sessions"
	"github.com/natankaway/arenazap/internal/store"
)

// Input is one user turn. ButtonID carries an interactive reply's embedded
// action id and takes precedence over free text.
type Input struct {
	Text     string
	ButtonID string
}

// Result is the outcome of one turn.
type Result struct {
	Replies []string
	State   sessions.DialogState

	// Booking is set when the confirm step completed and a booking should
	// be persisted.
	Booking *store.Booking

	// Handoff is set when the user asked for a human; the router pauses the
	// conversation.
	Handoff       bool
	HandoffReason string
}

// Button action ids the bridge may embed in interactive replies.
const (
	btnMenu       = "menu"
	btnUnits      = "units"
	btnPrices     = "prices"
	btnFAQ        = "faq"
	btnBook       = "book"
	btnHuman      = "human"
	btnConfirmYes = "confirm_yes"
	btnConfirmNo  = "confirm_no"
)

// Advance runs one turn of the dialog for the given session.
func Advance(sess *sessions.Session, in Input) Result {
	state := sessions.Normalize(sess.State)

	// Button payloads dispatch by action id before any state-specific logic.
	if in.ButtonID != "" {
		if res, ok := dispatchButton(sess, state, in.ButtonID); ok {
			return res
		}
	}

	text := normalizeInput(in.Text)

	// Global command overrides short-circuit state logic.
	switch text {
	case "menu", "0", "oi", "ola", "olá":
		return toMenu()
	case "atendente", "humano":
		return toHuman()
	}

	switch state {
	case sessions.StateMenu:
		return advanceMenu(text)
	case sessions.StateUnits, sessions.StatePrices, sessions.StateFAQ:
		// Informational screens only accept "0" (handled above); anything
		// else gets one validation reply and stays put.
		return rePrompt(state)
	case sessions.StateBookingName:
		return advanceBookingName(sess, in.Text)
	case sessions.StateBookingUnit:
		return advanceBookingUnit(sess, text)
	case sessions.StateBookingSlot:
		return advanceBookingSlot(sess, text)
	case sessions.StateBookingConfirm:
		return advanceBookingConfirm(sess, text)
	case sessions.StateWaitingHuman:
		// A human is (or was) handling this conversation; stay silent.
		return Result{State: sessions.StateWaitingHuman}
	default:
		return toMenu()
	}
}

func dispatchButton(sess *sessions.Session, state sessions.DialogState, id string) (Result, bool) {
	switch id {
	case btnMenu:
		return toMenu(), true
	case btnUnits:
		return Result{Replies: []string{UnitsText}, State: sessions.StateUnits}, true
	case btnPrices:
		return Result{Replies: []string{PricesText}, State: sessions.StatePrices}, true
	case btnFAQ:
		return Result{Replies: []string{FAQText}, State: sessions.StateFAQ}, true
	case btnBook:
		return Result{Replies: []string{BookingNamePrompt}, State: sessions.StateBookingName}, true
	case btnHuman:
		return toHuman(), true
	case btnConfirmYes:
		if state == sessions.StateBookingConfirm {
			return confirmBooking(sess), true
		}
	case btnConfirmNo:
		if state == sessions.StateBookingConfirm {
			return Result{Replies: []string{BookingCancelledText, MenuText}, State: sessions.StateMenu}, true
		}
	}
	// Unknown action ids fall through to free-text handling.
	return Result{}, false
}

func advanceMenu(text string) Result {
	switch text {
	case "1":
		return Result{Replies: []string{UnitsText}, State: sessions.StateUnits}
	case "2":
		return Result{Replies: []string{PricesText}, State: sessions.StatePrices}
	case "3":
		return Result{Replies: []string{FAQText}, State: sessions.StateFAQ}
	case "4":
		return Result{Replies: []string{BookingNamePrompt}, State: sessions.StateBookingName}
	case "5":
		return toHuman()
	default:
		return Result{Replies: []string{InvalidOptionText, MenuText}, State: sessions.StateMenu}
	}
}

func advanceBookingName(sess *sessions.Session, raw string) Result {
	name := strings.TrimSpace(raw)
	if len([]rune(name)) < 2 {
		return Result{Replies: []string{InvalidNameText}, State: sessions.StateBookingName}
	}
	sess.Data["name"] = name
	return Result{Replies: []string{BookingUnitPrompt}, State: sessions.StateBookingUnit}
}

func advanceBookingUnit(sess *sessions.Session, text string) Result {
	unit, ok := unitLabels[text]
	if !ok {
		return Result{Replies: []string{InvalidOptionText, BookingUnitPrompt}, State: sessions.StateBookingUnit}
	}
	sess.Data["unit"] = unit
	return Result{Replies: []string{BookingSlotPrompt}, State: sessions.StateBookingSlot}
}

func advanceBookingSlot(sess *sessions.Session, text string) Result {
	slot, ok := slotLabels[text]
	if !ok {
		return Result{Replies: []string{InvalidOptionText, BookingSlotPrompt}, State: sessions.StateBookingSlot}
	}
	sess.Data["slot"] = slot
	return Result{
		Replies: []string{BookingConfirmPrompt(sess.Data["name"], sess.Data["unit"], slot)},
		State:   sessions.StateBookingConfirm,
	}
}

func advanceBookingConfirm(sess *sessions.Session, text string) Result {
	switch text {
	case "1", "sim", "s":
		return confirmBooking(sess)
	case "2", "nao", "não", "n":
		return Result{Replies: []string{BookingCancelledText, MenuText}, State: sessions.StateMenu}
	default:
		return Result{
			Replies: []string{InvalidOptionText,
				BookingConfirmPrompt(sess.Data["name"], sess.Data["unit"], sess.Data["slot"])},
			State: sessions.StateBookingConfirm,
		}
	}
}

func confirmBooking(sess *sessions.Session) Result {
	booking := &store.Booking{
		ID:        uuid.NewString(),
		Name:      sess.Data["name"],
		Phone:     sess.ConversationID,
		Unit:      sess.Data["unit"],
		Slot:      sess.Data["slot"],
		Status:    "pending",
		CreatedAt: time.Now(),
	}
	return Result{
		Replies: []string{BookingConfirmedText},
		State:   sessions.StateMenu,
		Booking: booking,
	}
}

func toMenu() Result {
	return Result{Replies: []string{MenuText}, State: sessions.StateMenu}
}

func toHuman() Result {
	return Result{
		Replies:       []string{HandoffNoticeText},
		State:         sessions.StateWaitingHuman,
		Handoff:       true,
		HandoffReason: "menu request",
	}
}

func rePrompt(state sessions.DialogState) Result {
	var screen string
	switch state {
	case sessions.StateUnits:
		screen = UnitsText
	case sessions.StatePrices:
		screen = PricesText
	default:
		screen = FAQText
	}
	return Result{Replies: []string{InvalidOptionText, screen}, State: state}
}

// normalizeInput lowercases and strips accents-insensitive whitespace for
// option matching. Free-text fields (the name step) use the raw text.
func normalizeInput(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
