package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/dsa-quest/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes key/value writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS learners (
		learner_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS kv (
		learner_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (learner_id, key)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetLearner retrieves a learner by ID.
func (s *SQLiteStore) GetLearner(ctx context.Context, learnerID string) (*domain.Learner, error) {
	query := `
		SELECT learner_id, display_name, last_seen_at, created_at, updated_at
		FROM learners WHERE learner_id = ?`

	var learner domain.Learner
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, learnerID).Scan(
		&learner.LearnerID, &learner.DisplayName, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan learner row: %w", err)
	}

	learner.LastSeenAt = time.Unix(lastSeen, 0)
	learner.CreatedAt = time.Unix(createdAt, 0)
	learner.UpdatedAt = time.Unix(updatedAt, 0)
	return &learner, nil
}

// UpsertLearner creates or updates a learner record.
func (s *SQLiteStore) UpsertLearner(ctx context.Context, learner *domain.Learner) error {
	query := `
	INSERT INTO learners (learner_id, display_name, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(learner_id) DO UPDATE SET
		display_name = excluded.display_name,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	return withBusyRetry(ctx, "upsert learner", func() error {
		_, err := s.db.ExecContext(ctx, query,
			learner.LearnerID, learner.DisplayName, learner.LastSeenAt.Unix(),
			learner.CreatedAt.Unix(), learner.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert learner: %w", err)
		}
		return nil
	})
}

// UpdateLastSeen updates the last_seen_at timestamp for a learner.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, learnerID string, lastSeen time.Time) error {
	query := `UPDATE learners SET last_seen_at = ?, updated_at = ? WHERE learner_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), learnerID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "learner_id", learnerID)
	}
	return nil
}

// Get returns the value stored under key, or nil if the key is unset.
func (s *SQLiteStore) Get(ctx context.Context, learnerID, key string) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE learner_id = ? AND key = ?`, learnerID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return json.RawMessage(value), nil
}

// Set replaces the given keys in a single transaction.
func (s *SQLiteStore) Set(ctx context.Context, learnerID string, values map[string]json.RawMessage) error {
	if len(values) == 0 {
		return nil
	}
	for key, value := range values {
		if !json.Valid(value) {
			return fmt.Errorf("set %s: value is not valid JSON", key)
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return withBusyRetry(ctx, "set keys", func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			return upsertKeys(ctx, tx, learnerID, values)
		})
	})
}

// Merge applies patch to the value under key using SQLite's json_patch.
// An unset key takes the patch as its value.
func (s *SQLiteStore) Merge(ctx context.Context, learnerID, key string, patch json.RawMessage) error {
	if !json.Valid(patch) {
		return fmt.Errorf("merge %s: patch is not valid JSON", key)
	}

	query := `
	INSERT INTO kv (learner_id, key, value, updated_at)
	VALUES (?, ?, json(?), ?)
	ON CONFLICT(learner_id, key) DO UPDATE SET
		value = json_patch(kv.value, excluded.value),
		updated_at = excluded.updated_at`

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return withBusyRetry(ctx, "merge "+key, func() error {
		if _, err := s.db.ExecContext(ctx, query, learnerID, key, string(patch), time.Now().Unix()); err != nil {
			return fmt.Errorf("merge %s: %w", key, err)
		}
		return nil
	})
}

// Snapshot returns every key stored for the learner.
func (s *SQLiteStore) Snapshot(ctx context.Context, learnerID string) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE learner_id = ?`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close snapshot rows", "error", closeErr)
		}
	}()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		out[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot: %w", err)
	}
	return out, nil
}

// Restore replaces the learner's keys with values. Keys missing from values are removed.
func (s *SQLiteStore) Restore(ctx context.Context, learnerID string, values map[string]json.RawMessage) error {
	for key, value := range values {
		if !json.Valid(value) {
			return fmt.Errorf("restore %s: value is not valid JSON", key)
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return withBusyRetry(ctx, "restore", func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE learner_id = ?`, learnerID); err != nil {
				return fmt.Errorf("clear keys: %w", err)
			}
			return upsertKeys(ctx, tx, learnerID, values)
		})
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func upsertKeys(ctx context.Context, tx *sql.Tx, learnerID string, values map[string]json.RawMessage) error {
	query := `
	INSERT INTO kv (learner_id, key, value, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(learner_id, key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	now := time.Now().Unix()
	for key, value := range values {
		if _, err := tx.ExecContext(ctx, query, learnerID, key, string(value), now); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}
