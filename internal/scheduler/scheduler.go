// Package scheduler fires recurring broadcast actions on their cron
// schedules: group polls and billing reminders for overdue payments.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/natankaway/arenazap/internal/alerts"
	"github.com/natankaway/arenazap/internal/bus"
	"github.com/natankaway/arenazap/internal/config"
	"github.com/natankaway/arenazap/internal/delivery"
	"github.com/natankaway/arenazap/internal/store"
)

// Deliverer executes one broadcast delivery to a terminal outcome.
type Deliverer interface {
	Deliver(ctx context.Context, req delivery.Request) delivery.Outcome
}

// Scheduler evaluates cron expressions every tick and hands due broadcasts
// to the delivery engine. LastExecutedAt advances only after a successful
// delivery, so a failed action is picked up again on its next due minute.
type Scheduler struct {
	broadcasts store.BroadcastStore
	polls      store.PollStore
	payments   store.PaymentStore
	engine     Deliverer
	notifier   alerts.Notifier
	tick       time.Duration
	limit      int
	gron       *gronx.Gronx
	now        func() time.Time
}

// New creates a scheduler.
func New(stores *store.Stores, engine Deliverer, notifier alerts.Notifier, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		broadcasts: stores.Broadcasts,
		polls:      stores.Polls,
		payments:   stores.Payments,
		engine:     engine,
		notifier:   notifier,
		tick:       cfg.Tick(),
		limit:      cfg.Limit(),
		gron:       gronx.New(),
		now:        time.Now,
	}
}

// Run ticks until ctx is cancelled. One pass runs at startup so an action
// due on the current minute is not missed while waiting for the first tick.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler started", "tick", s.tick)
	s.pass(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

// pass evaluates every enabled broadcast against the current minute.
func (s *Scheduler) pass(ctx context.Context) {
	items, err := s.broadcasts.ListEnabled(ctx, s.limit)
	if err != nil {
		slog.Error("list scheduled broadcasts failed", "error", err)
		return
	}

	now := s.now()
	for _, b := range items {
		due, err := s.gron.IsDue(b.Schedule, now)
		if err != nil {
			slog.Warn("invalid broadcast schedule",
				"broadcast_id", b.ID, "schedule", b.Schedule, "error", err)
			continue
		}
		if !due || s.executedThisMinute(b, now) {
			continue
		}
		s.execute(ctx, b, now)
	}
}

// executedThisMinute guards against double firing when a pass and the
// startup pass land on the same due minute.
func (s *Scheduler) executedThisMinute(b store.ScheduledBroadcast, now time.Time) bool {
	return b.LastExecutedAt != nil &&
		b.LastExecutedAt.Truncate(time.Minute).Equal(now.Truncate(time.Minute))
}

func (s *Scheduler) execute(ctx context.Context, b store.ScheduledBroadcast, now time.Time) {
	slog.Info("broadcast due", "broadcast_id", b.ID, "kind", b.Kind, "schedule", b.Schedule)

	var err error
	switch b.Kind {
	case store.BroadcastPoll:
		err = s.executePoll(ctx, b, now)
	case store.BroadcastReminder:
		err = s.executeReminders(ctx, b, now)
	default:
		err = fmt.Errorf("unknown broadcast kind %q", b.Kind)
	}

	if err != nil {
		slog.Error("broadcast execution failed", "broadcast_id", b.ID, "error", err)
		s.notifier.Notify(ctx, fmt.Sprintf(
			"ArenaZap: falha ao executar broadcast %s (%s): %v", b.ID, b.Kind, err))
		return
	}
	if err := s.broadcasts.SetLastExecuted(ctx, b.ID, now); err != nil {
		slog.Error("record broadcast execution failed", "broadcast_id", b.ID, "error", err)
	}
}

func (s *Scheduler) executePoll(ctx context.Context, b store.ScheduledBroadcast, _ time.Time) error {
	def, err := s.polls.Get(ctx, b.PollID)
	if err != nil {
		return fmt.Errorf("load poll %s: %w", b.PollID, err)
	}

	out := s.engine.Deliver(ctx, delivery.Request{
		BroadcastID: b.ID,
		Kind:        delivery.KindPoll,
		Target:      b.TargetGroup,
		Poll: &bus.PollPayload{
			Question:    def.Question,
			Options:     def.Options,
			MultiSelect: def.MultiSelect,
		},
		Pin: def.PinAfterSend,
	})
	if !out.Success {
		return fmt.Errorf("deliver poll after %d attempts: %w", out.Attempts, out.Err)
	}
	return nil
}

// executeReminders sends one billing reminder per overdue payment. A single
// recipient failure does not stop the remaining sends; the broadcast as a
// whole fails when any recipient did.
func (s *Scheduler) executeReminders(ctx context.Context, b store.ScheduledBroadcast, now time.Time) error {
	overdue, err := s.payments.ListOverdue(ctx, now)
	if err != nil {
		return fmt.Errorf("list overdue payments: %w", err)
	}
	if len(overdue) == 0 {
		slog.Debug("no overdue payments, reminder skipped", "broadcast_id", b.ID)
		return nil
	}

	var failed int
	for _, p := range overdue {
		out := s.engine.Deliver(ctx, delivery.Request{
			BroadcastID: b.ID,
			Kind:        delivery.KindReminder,
			Target:      p.StudentPhone,
			Message:     reminderText(p),
		})
		if !out.Success {
			failed++
			slog.Warn("billing reminder failed",
				"broadcast_id", b.ID, "student", p.StudentID,
				"attempts", out.Attempts, "error", out.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d reminders failed", failed, len(overdue))
	}
	slog.Info("billing reminders sent", "broadcast_id", b.ID, "count", len(overdue))
	return nil
}

// reminderText composes the pt-BR billing reminder for one overdue payment.
func reminderText(p store.OverduePayment) string {
	return fmt.Sprintf(
		"Olá, %s! 🏖️\n\nIdentificamos que a sua mensalidade (%s) no valor de %s venceu em %s.\n\nPara regularizar, fale com a recepção ou responda esta mensagem. Se o pagamento já foi feito, por favor desconsidere.",
		p.StudentName, p.Description, formatCents(p.AmountCents), p.DueDate.Format("02/01/2006"))
}

// formatCents renders an amount in cents as Brazilian currency, e.g. "R$ 250,00".
func formatCents(cents int64) string {
	return fmt.Sprintf("R$ %d,%02d", cents/100, cents%100)
}
