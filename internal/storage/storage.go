// Package storage is the durable half of the bot's state: rows that must
// survive a restart (giveaways, poll contests, scheduled commands, lotto
// counters). Entrant and winner lists are JSON arrays of user-id strings in a
// column; timestamps are integer epoch-milliseconds; a non-null completion
// timestamp marks a row terminal and excludes it from boot reconciliation.
package storage

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

type Storage struct {
	db *sqlx.DB
}

// Open connects to MySQL and prepares the schema.
func Open(dsn string) (*Storage, error) {
	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) Close() error { return s.db.Close() }

func (s *Storage) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS giveaways (
			message_id       VARCHAR(32) PRIMARY KEY,
			guild_id         VARCHAR(32) NOT NULL,
			channel_id       VARCHAR(32) NOT NULL,
			owner_id         VARCHAR(32) NOT NULL,
			prize            TEXT NOT NULL,
			entrants         JSON NOT NULL,
			winners          JSON NOT NULL,
			starts_at        BIGINT NOT NULL,
			ends_at          BIGINT NOT NULL,
			completed_at     BIGINT NULL,
			canceled         BOOLEAN NOT NULL DEFAULT FALSE,
			require_verified BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS polls (
			message_id   VARCHAR(32) PRIMARY KEY,
			guild_id     VARCHAR(32) NOT NULL,
			channel_id   VARCHAR(32) NOT NULL,
			owner_id     VARCHAR(32) NOT NULL,
			question     TEXT NOT NULL,
			options      JSON NOT NULL,
			votes        JSON NOT NULL,
			ends_at      BIGINT NOT NULL,
			completed_at BIGINT NULL,
			canceled     BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS scheduled_commands (
			id           BIGINT AUTO_INCREMENT PRIMARY KEY,
			guild_id     VARCHAR(32) NOT NULL,
			channel_id   VARCHAR(32) NOT NULL,
			creator_id   VARCHAR(32) NOT NULL,
			command      TEXT NOT NULL,
			run_at       BIGINT NOT NULL,
			completed_at BIGINT NULL,
			canceled     BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS lotto_counts (
			guild_id VARCHAR(32) NOT NULL,
			user_id  VARCHAR(32) NOT NULL,
			messages BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (guild_id, user_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("storage: migrate: %w", err)
		}
	}
	return nil
}

// UserIDs is a JSON-array-of-strings column.
type UserIDs []string

func (u UserIDs) Value() (driver.Value, error) { return json.Marshal([]string(u)) }

func (u *UserIDs) Scan(src any) error {
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("storage: cannot scan %T into UserIDs", src)
	}
	return json.Unmarshal(raw, (*[]string)(u))
}

// Millis converts a time to the epoch-milliseconds column format.
func Millis(t time.Time) int64 { return t.UnixMilli() }

// FromMillis converts an epoch-milliseconds column back to a time.
func FromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

func (s *Storage) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}
