// ABOUTME: SQLite implementation of the ConversationStore interface using modernc.org/sqlite
// ABOUTME: Persists per-user turns and activity timestamps with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// connParams apply to every pooled connection. Writers take the lock at
// BEGIN and wait on each other instead of failing with SQLITE_BUSY.
const connParams = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate"

// SQLiteStore implements ConversationStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. Use ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?"+connParams)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database only lives as long as its single connection
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			user_id     TEXT PRIMARY KEY,
			last_active TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_last_active
			ON conversations(last_active);

		CREATE TABLE IF NOT EXISTS turns (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			role       TEXT NOT NULL,
			text       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES conversations(user_id) ON DELETE CASCADE,
			CHECK (role IN ('user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_turns_user_seq ON turns(user_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetConversation returns the conversation for userID with turns in append order.
func (s *SQLiteStore) GetConversation(ctx context.Context, userID string) (*Conversation, error) {
	var lastActive string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_active FROM conversations WHERE user_id = ?`, userID,
	).Scan(&lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv := &Conversation{UserID: userID}
	conv.LastActive, err = time.Parse(time.RFC3339Nano, lastActive)
	if err != nil {
		return nil, fmt.Errorf("parsing last_active: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, created_at FROM turns WHERE user_id = ? ORDER BY seq ASC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role, text, createdAt string
		if err := rows.Scan(&role, &text, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		at, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing turn created_at: %w", err)
		}
		conv.Turns = append(conv.Turns, Turn{Role: Role(role), Text: text, At: at})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}

	return conv, nil
}

// ResetConversation deletes all turns for userID and upserts its activity time.
func (s *SQLiteStore) ResetConversation(ctx context.Context, userID string, lastActive time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting turns: %w", err)
	}
	if err := upsertActivity(ctx, tx, userID, lastActive); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reset: %w", err)
	}
	return nil
}

// AppendTurn inserts turn and moves the conversation's activity time to turn.At.
func (s *SQLiteStore) AppendTurn(ctx context.Context, userID string, turn Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := upsertActivity(ctx, tx, userID, turn.At); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (user_id, role, text, created_at) VALUES (?, ?, ?, ?)`,
		userID, string(turn.Role), turn.Text, turn.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}
	return nil
}

// DeleteConversation removes the conversation row and its turns.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting turns: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}

// ListIdleSince returns users whose last activity is strictly before cutoff.
func (s *SQLiteStore) ListIdleSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, last_active FROM conversations`)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID, lastActive string
		if err := rows.Scan(&userID, &lastActive); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		at, err := time.Parse(time.RFC3339Nano, lastActive)
		if err != nil {
			s.logger.Warn("unparseable last_active, treating as idle", "user_id", userID, "error", err)
			users = append(users, userID)
			continue
		}
		if at.Before(cutoff) {
			users = append(users, userID)
		}
	}
	return users, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func upsertActivity(ctx context.Context, tx *sql.Tx, userID string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (user_id, last_active) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_active = excluded.last_active
	`, userID, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}
	return nil
}
