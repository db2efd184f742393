package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/abenov/flowgram/internal/domain"
	"github.com/abenov/flowgram/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	closed atomic.Bool
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w: %w", ErrUnavailable, err)
	}

	// WAL for concurrent readers, busy_timeout so writers queue instead of
	// failing, foreign_keys so message appends cannot dangle.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w: %w", ErrUnavailable, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w: %w", ErrUnavailable, err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w: %w", ErrUnavailable, err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY,
		username TEXT,
		first_name TEXT,
		last_name TEXT,
		session_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		text TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users (user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_user_created ON messages(user_id, created_at);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		session_id TEXT UNIQUE NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users (user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their Telegram user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	query := `
		SELECT user_id, username, first_name, last_name, session_id,
		       created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var username, firstName, lastName, sessionID sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&user.UserID, &username, &firstName, &lastName, &sessionID,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.Username = username.String
	user.FirstName = firstName.String
	user.LastName = lastName.String
	user.SessionID = sessionID.String
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record. The upsert and the optional
// sessions-row insert run in one transaction so concurrent callers for the
// same user never observe partial writes. Retries briefly on SQLITE_BUSY.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	if s.closed.Load() {
		return ErrClosed
	}

	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.upsertUserOnce(ctx, user)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("UpsertUser hit SQLITE_BUSY, retrying",
			"user_id", user.UserID,
			"attempt", i+1,
			"delay", delay)
		time.Sleep(delay)
	}

	return fmt.Errorf("upsert user %d: %w", user.UserID, err)
}

func (s *SQLiteStore) upsertUserOnce(ctx context.Context, user *domain.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()

	// An empty field means "not supplied": NULLIF turns it into NULL and
	// COALESCE keeps whatever the row already has. Non-empty values
	// overwrite. created_at is set once and never touched again.
	query := `
	INSERT INTO users (user_id, username, first_name, last_name, session_id, created_at, updated_at)
	VALUES (?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = COALESCE(excluded.username, users.username),
		first_name = COALESCE(excluded.first_name, users.first_name),
		last_name = COALESCE(excluded.last_name, users.last_name),
		session_id = COALESCE(excluded.session_id, users.session_id),
		updated_at = excluded.updated_at`

	_, err = tx.ExecContext(ctx, query,
		user.UserID, user.Username, user.FirstName, user.LastName,
		user.SessionID, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert user row: %w", err)
	}

	if user.SessionID != "" {
		sessionQuery := `
		INSERT INTO sessions (user_id, session_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING`

		if _, err := tx.ExecContext(ctx, sessionQuery, user.UserID, user.SessionID, now); err != nil {
			return fmt.Errorf("record session row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// AppendMessage inserts one inbound message. The foreign key is enforced, so
// appending for a user that was never upserted returns ErrUnknownUser.
func (s *SQLiteStore) AppendMessage(ctx context.Context, userID int64, text string) error {
	if s.closed.Load() {
		return ErrClosed
	}

	query := `INSERT INTO messages (user_id, text, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, userID, text, time.Now().Unix())
	if err != nil {
		if shared.IsSQLiteForeignKeyError(err) {
			return fmt.Errorf("append message for user %d: %w", userID, ErrUnknownUser)
		}
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// GetUserSessionID returns the user's current session token, or "" when the
// user is unknown or has no session yet.
func (s *SQLiteStore) GetUserSessionID(ctx context.Context, userID int64) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}

	query := `SELECT session_id FROM users WHERE user_id = ?`
	row := s.db.QueryRowContext(ctx, query, userID)

	var sessionID sql.NullString
	err := row.Scan(&sessionID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scan session id: %w", err)
	}
	return sessionID.String, nil
}

// GetRecentMessages returns up to limit messages for the user, newest first.
func (s *SQLiteStore) GetRecentMessages(ctx context.Context, userID int64, limit int) ([]domain.Message, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	// Secondary id ordering breaks ties between messages appended within
	// the same second.
	query := `
		SELECT id, user_id, text, created_at
		FROM messages WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close recent messages rows", "error", closeErr)
		}
	}()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var text sql.NullString
		var createdAt int64

		if err := rows.Scan(&msg.ID, &msg.UserID, &text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}

		msg.Text = text.String
		msg.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent messages: %w", err)
	}

	return messages, nil
}

// Close closes the database connection. Safe to call more than once.
func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
