package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			URL: "ws://localhost:3000/ws",
		},
		Handoff: HandoffConfig{
			TTLMinutes:    30,
			ResumeKeyword: "#voltar",
		},
		Identity: IdentityConfig{
			LinkTTLMinutes:       120,
			CorrelationWindowMin: 10,
			SweepIntervalMin:     10,
		},
		Sessions: SessionsConfig{
			TTLMinutes: 30,
		},
		Delivery: DeliveryConfig{
			StabilitySeconds:    5,
			PollWaitSeconds:     120,
			ReminderWaitSeconds: 60,
			MaxAttempts:         5,
			BackoffSeconds:      []int{10, 20, 30, 60, 120},
		},
		Database: DatabaseConfig{
			Mode:       "standalone",
			SQLitePath: "arenazap.db",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values. Secrets are env-only.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("ARENAZAP_BRIDGE_URL", &c.Bridge.URL)
	envStr("ARENAZAP_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("ARENAZAP_TELEGRAM_TOKEN", &c.Alerts.TelegramToken)

	if v := os.Getenv("ARENAZAP_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Alerts.TelegramChatID = id
		}
	}
	if v := os.Getenv("ARENAZAP_DB_MODE"); v != "" {
		c.Database.Mode = v
	}
}
