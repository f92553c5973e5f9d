package config

import "time"

// Config is the root configuration for the ArenaZap gateway.
type Config struct {
	Bridge    BridgeConfig    `json:"bridge"`
	Handoff   HandoffConfig   `json:"handoff"`
	Identity  IdentityConfig  `json:"identity"`
	Sessions  SessionsConfig  `json:"sessions"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Alerts    AlertsConfig    `json:"alerts,omitempty"`
}

// BridgeConfig configures the WhatsApp bridge connection.
type BridgeConfig struct {
	URL string `json:"url"` // e.g. "ws://localhost:3000/ws"
}

// HandoffConfig configures the human-takeover state machine.
type HandoffConfig struct {
	TTLMinutes    int    `json:"ttl_minutes,omitempty"`    // pause duration (default 30)
	ResumeKeyword string `json:"resume_keyword,omitempty"` // literal keyword that reactivates the bot
}

// TTL returns the pause TTL as a duration.
func (c HandoffConfig) TTL() time.Duration {
	if c.TTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.TTLMinutes) * time.Minute
}

// IdentityConfig configures canonical/shadow alias correlation.
type IdentityConfig struct {
	LinkTTLMinutes       int `json:"link_ttl_minutes,omitempty"`       // inactivity before a link is evicted (default 120)
	CorrelationWindowMin int `json:"correlation_window_min,omitempty"` // heuristic lookback (default 10)
	SweepIntervalMin     int `json:"sweep_interval_min,omitempty"`     // eviction sweep period (default 10)
}

func (c IdentityConfig) LinkTTL() time.Duration {
	if c.LinkTTLMinutes <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.LinkTTLMinutes) * time.Minute
}

func (c IdentityConfig) CorrelationWindow() time.Duration {
	if c.CorrelationWindowMin <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.CorrelationWindowMin) * time.Minute
}

func (c IdentityConfig) SweepInterval() time.Duration {
	if c.SweepIntervalMin <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.SweepIntervalMin) * time.Minute
}

// SessionsConfig configures dialog session retention.
type SessionsConfig struct {
	TTLMinutes int `json:"ttl_minutes,omitempty"` // inactivity before a session is dropped (default 30)
}

func (c SessionsConfig) TTL() time.Duration {
	if c.TTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.TTLMinutes) * time.Minute
}

// DeliveryConfig tunes the broadcast delivery engine.
type DeliveryConfig struct {
	StabilitySeconds    int   `json:"stability_seconds,omitempty"`     // min continuous uptime before sends (default 5)
	PollWaitSeconds     int   `json:"poll_wait_seconds,omitempty"`     // connection wait bound for polls (default 120)
	ReminderWaitSeconds int   `json:"reminder_wait_seconds,omitempty"` // connection wait bound for reminders (default 60)
	MaxAttempts         int   `json:"max_attempts,omitempty"`          // total attempts per delivery (default 5)
	BackoffSeconds      []int `json:"backoff_seconds,omitempty"`       // inter-attempt delays (default 10,20,30,60,120)
}

func (c DeliveryConfig) StabilityWindow() time.Duration {
	if c.StabilitySeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.StabilitySeconds) * time.Second
}

func (c DeliveryConfig) PollWait() time.Duration {
	if c.PollWaitSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.PollWaitSeconds) * time.Second
}

func (c DeliveryConfig) ReminderWait() time.Duration {
	if c.ReminderWaitSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.ReminderWaitSeconds) * time.Second
}

func (c DeliveryConfig) Attempts() int {
	if c.MaxAttempts <= 0 {
		return 5
	}
	return c.MaxAttempts
}

func (c DeliveryConfig) Backoff() []time.Duration {
	secs := c.BackoffSeconds
	if len(secs) == 0 {
		secs = []int{10, 20, 30, 60, 120}
	}
	out := make([]time.Duration, len(secs))
	for i, s := range secs {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

// SchedulerConfig configures the broadcast scheduler tick.
type SchedulerConfig struct {
	Enabled     *bool `json:"enabled,omitempty"`      // default true
	TickSeconds int   `json:"tick_seconds,omitempty"` // due-check period (default 60)
	LookupLimit int   `json:"lookup_limit,omitempty"` // max actions loaded per tick (default 50)
}

func (c SchedulerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c SchedulerConfig) Tick() time.Duration {
	if c.TickSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.TickSeconds) * time.Second
}

func (c SchedulerConfig) Limit() int {
	if c.LookupLimit <= 0 {
		return 50
	}
	return c.LookupLimit
}

// DatabaseConfig selects the storage backend.
// PostgresDSN is never read from config.json; it comes only from env ARENAZAP_POSTGRES_DSN.
type DatabaseConfig struct {
	Mode        string `json:"mode,omitempty"` // "standalone" (sqlite, default) or "managed" (postgres)
	SQLitePath  string `json:"sqlite_path,omitempty"`
	PostgresDSN string `json:"-"` // from env ARENAZAP_POSTGRES_DSN only
}

// IsManagedMode returns true when the gateway should use Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// AlertsConfig configures the staff alert channel.
// TelegramToken is env-only (ARENAZAP_TELEGRAM_TOKEN).
type AlertsConfig struct {
	TelegramToken  string `json:"-"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`
}
