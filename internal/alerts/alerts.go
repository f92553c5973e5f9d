// Package alerts notifies arena staff about operational events over Telegram.
// Alerting is best effort: every failure is logged and swallowed so an alert
// problem can never break message handling or deliveries.
package alerts

import (
	"context"
	"log/slog"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/natankaway/arenazap/internal/config"
)

// Notifier sends operational alerts to staff.
type Notifier interface {
	// Notify sends a short alert text. Errors are handled internally.
	Notify(ctx context.Context, text string)
}

// Telegram delivers alerts to a staff Telegram chat.
type Telegram struct {
	bot    *telego.Bot
	chatID int64
}

// NewTelegram builds a Telegram notifier from config. Returns a no-op
// notifier when the token or chat id is missing so callers never need a
// nil check.
func NewTelegram(cfg config.AlertsConfig) Notifier {
	if cfg.TelegramToken == "" || cfg.TelegramChatID == 0 {
		slog.Info("telegram alerts disabled, token or chat id not configured")
		return noop{}
	}
	bot, err := telego.NewBot(cfg.TelegramToken)
	if err != nil {
		slog.Warn("telegram alerts disabled", "error", err)
		return noop{}
	}
	return &Telegram{bot: bot, chatID: cfg.TelegramChatID}
}

func (t *Telegram) Notify(ctx context.Context, text string) {
	_, err := t.bot.SendMessage(ctx, tu.Message(tu.ID(t.chatID), text))
	if err != nil {
		slog.Warn("telegram alert failed", "error", err)
	}
}

type noop struct{}

func (noop) Notify(context.Context, string) {}
