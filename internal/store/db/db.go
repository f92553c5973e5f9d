// Package db implements store interfaces on database/sql. The same SQL
// serves sqlite (standalone mode, modernc driver) and Postgres (managed
// mode, pgx driver); only the placeholder style differs.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/natankaway/arenazap/internal/store"
)

// Dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Open opens a database handle for the given dialect.
// dsn is a file path for sqlite, a connection string for Postgres.
func Open(dialect, dsn string) (*sql.DB, error) {
	switch dialect {
	case DialectSQLite:
		handle, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
		}
		// modernc sqlite serializes writes; a single connection avoids
		// SQLITE_BUSY under concurrent writers.
		handle.SetMaxOpenConns(1)
		return handle, nil
	case DialectPostgres:
		handle, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return handle, nil
	default:
		return nil, fmt.Errorf("unknown database dialect %q", dialect)
	}
}

// Conn wraps a sql.DB with its dialect and builds the typed stores.
type Conn struct {
	db      *sql.DB
	dialect string
}

// New wraps an open handle.
func New(handle *sql.DB, dialect string) *Conn {
	return &Conn{db: handle, dialect: dialect}
}

// DB exposes the underlying handle (shared with the durable cache).
func (c *Conn) DB() *sql.DB { return c.db }

// Dialect returns the dialect this connection was opened with.
func (c *Conn) Dialect() string { return c.dialect }

// Stores returns the interface container backed by this connection.
func (c *Conn) Stores() *store.Stores {
	return &store.Stores{
		Bookings:   &BookingDB{c},
		Students:   &StudentDB{c},
		Payments:   &PaymentDB{c},
		Polls:      &PollDB{c},
		Broadcasts: &BroadcastDB{c},
		Deliveries: &DeliveryDB{c},
	}
}

// rebind converts $N placeholders to ? for sqlite.
func (c *Conn) rebind(q string) string {
	if c.dialect != DialectSQLite {
		return q
	}
	for i := 9; i >= 1; i-- {
		q = strings.ReplaceAll(q, fmt.Sprintf("$%d", i), "?")
	}
	return q
}
