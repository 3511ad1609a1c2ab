// Package backup mirrors a learner's persisted keys to a remote libsql (Turso) database.
package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"
)

// Remote stores opaque snapshots of a learner's keys.
type Remote interface {
	// Push replaces the learner's remote snapshot.
	Push(ctx context.Context, learnerID string, values map[string]json.RawMessage) error
	// Pull returns the learner's remote snapshot, or nil if none was pushed.
	Pull(ctx context.Context, learnerID string) (map[string]json.RawMessage, error)
}

// SQLRemote implements Remote on a database/sql handle.
type SQLRemote struct {
	db *sql.DB
}

// OpenTurso connects to a Turso database.
func OpenTurso(databaseURL, authToken string) (*SQLRemote, error) {
	connStr := databaseURL + "?authToken=" + authToken
	db, err := sql.Open("libsql", connStr)
	if err != nil {
		return nil, fmt.Errorf("open backup database: %w", err)
	}

	// Turso closes idle streams aggressively; keep no idle connections.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(0)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping backup database: %w", err)
	}
	return NewSQLRemote(db)
}

// NewSQLRemote prepares the backup table on db.
func NewSQLRemote(db *sql.DB) (*SQLRemote, error) {
	query := `
	CREATE TABLE IF NOT EXISTS learner_backups (
		learner_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		pushed_at INTEGER NOT NULL,
		PRIMARY KEY (learner_id, key)
	)`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("create backup schema: %w", err)
	}
	return &SQLRemote{db: db}, nil
}

// Close closes the database handle.
func (r *SQLRemote) Close() error {
	return r.db.Close()
}

// Push replaces the learner's snapshot in one transaction.
func (r *SQLRemote) Push(ctx context.Context, learnerID string, values map[string]json.RawMessage) error {
	return withStreamRetry(ctx, 2, func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin backup: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM learner_backups WHERE learner_id = ?`, learnerID); err != nil {
			return fmt.Errorf("clear backup: %w", err)
		}
		now := time.Now().Unix()
		for key, value := range values {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO learner_backups (learner_id, key, value, pushed_at) VALUES (?, ?, ?, ?)`,
				learnerID, key, string(value), now,
			); err != nil {
				return fmt.Errorf("write backup %s: %w", key, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit backup: %w", err)
		}
		return nil
	})
}

// Pull reads the learner's snapshot.
func (r *SQLRemote) Pull(ctx context.Context, learnerID string) (map[string]json.RawMessage, error) {
	var out map[string]json.RawMessage
	err := withStreamRetry(ctx, 2, func() error {
		rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM learner_backups WHERE learner_id = ?`, learnerID)
		if err != nil {
			return fmt.Errorf("query backup: %w", err)
		}
		defer func() {
			if closeErr := rows.Close(); closeErr != nil {
				slog.Warn("failed to close backup rows", "error", closeErr)
			}
		}()

		values := make(map[string]json.RawMessage)
		for rows.Next() {
			var key, value string
			if err := rows.Scan(&key, &value); err != nil {
				return fmt.Errorf("scan backup row: %w", err)
			}
			values[key] = json.RawMessage(value)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate backup: %w", err)
		}
		if len(values) > 0 {
			out = values
		}
		return nil
	})
	return out, err
}

// isStreamError reports Turso's "stream not found" error on stale connections.
func isStreamError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "stream not found")
}

func withStreamRetry(ctx context.Context, maxRetries int, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = fn()
		if err == nil || !isStreamError(err) || attempt == maxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return err
}
