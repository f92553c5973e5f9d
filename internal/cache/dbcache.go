package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DB is a Cache backed by a kv table in the gateway's database (sqlite in
// standalone mode, Postgres in managed mode). Readiness is probed with a
// short ping and cached so a down database is not re-probed per operation.
type DB struct {
	db      *sql.DB
	dialect string // "sqlite" or "postgres"

	mu         sync.Mutex
	readyUntil time.Time
	lastReady  bool
	loggedDown bool
	now        func() time.Time
}

const readyProbePeriod = 15 * time.Second

// NewDB creates a DB cache. dialect is "sqlite" or "postgres" and only
// affects placeholder style.
func NewDB(db *sql.DB, dialect string) *DB {
	return &DB{db: db, dialect: dialect, now: time.Now}
}

// rebind converts $N placeholders to ? for sqlite.
func (c *DB) rebind(q string) string {
	if c.dialect != "sqlite" {
		return q
	}
	for i := 9; i >= 1; i-- {
		q = strings.ReplaceAll(q, fmt.Sprintf("$%d", i), "?")
	}
	return q
}

// IsReady probes the database, caching the result for a short period.
// The first transition to not-ready is logged once.
func (c *DB) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Before(c.readyUntil) {
		return c.lastReady
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := c.db.PingContext(ctx)

	c.readyUntil = now.Add(readyProbePeriod)
	c.lastReady = err == nil

	if err != nil && !c.loggedDown {
		slog.Warn("durable cache unavailable, operating memory-only", "error", err)
		c.loggedDown = true
	}
	if err == nil {
		c.loggedDown = false
	}
	return c.lastReady
}

func (c *DB) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expiresAt sql.NullTime
	err := c.db.QueryRowContext(ctx,
		c.rebind(`SELECT value, expires_at FROM cache_entries WHERE key = $1`), key).
		Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get: %w", err)
	}
	if expiresAt.Valid && !c.now().Before(expiresAt.Time) {
		_ = c.Delete(ctx, key)
		return "", false, nil
	}
	return value, true, nil
}

func (c *DB) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: c.now().Add(ttl).UTC(), Valid: true}
	}
	_, err := c.db.ExecContext(ctx, c.rebind(
		`INSERT INTO cache_entries (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`),
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *DB) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx,
		c.rebind(`DELETE FROM cache_entries WHERE key = $1`), key)
	if err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

func (c *DB) Expire(ctx context.Context, key string, ttl time.Duration) error {
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: c.now().Add(ttl).UTC(), Valid: true}
	}
	_, err := c.db.ExecContext(ctx,
		c.rebind(`UPDATE cache_entries SET expires_at = $1 WHERE key = $2`),
		expiresAt, key)
	if err != nil {
		return fmt.Errorf("cache expire: %w", err)
	}
	return nil
}

// Sweep removes expired rows. Called periodically by the gateway.
func (c *DB) Sweep(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx,
		c.rebind(`DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`),
		c.now().UTC())
	if err != nil {
		return fmt.Errorf("cache sweep: %w", err)
	}
	return nil
}
