package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/abenov/flowgram/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func countRows(t *testing.T, repo Repository, table string) int {
	t.Helper()
	s, ok := repo.(*SQLiteStore)
	if !ok {
		t.Fatalf("expected *SQLiteStore, got %T", repo)
	}
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s rows: %v", table, err)
	}
	return n
}

func TestUpsertUserIsIdempotent(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := repo.UpsertUser(ctx, &domain.User{UserID: 1, Username: "alice", FirstName: "Alice"}); err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}
	}

	if got := countRows(t, repo, "users"); got != 1 {
		t.Fatalf("expected 1 user row, got %d", got)
	}

	user, err := repo.GetUser(ctx, 1)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user == nil || user.Username != "alice" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestUpsertUserKeepsSessionWhenAbsent(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.UpsertUser(ctx, &domain.User{UserID: 1, Username: "alice", SessionID: "S1"}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	// No session supplied: the stored one must survive.
	if err := repo.UpsertUser(ctx, &domain.User{UserID: 1, Username: "alice2"}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	sessionID, err := repo.GetUserSessionID(ctx, 1)
	if err != nil {
		t.Fatalf("GetUserSessionID failed: %v", err)
	}
	if sessionID != "S1" {
		t.Fatalf("expected session S1 to survive, got %q", sessionID)
	}

	// An explicit new session does overwrite.
	if err := repo.UpsertUser(ctx, &domain.User{UserID: 1, SessionID: "S2"}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	sessionID, err = repo.GetUserSessionID(ctx, 1)
	if err != nil {
		t.Fatalf("GetUserSessionID failed: %v", err)
	}
	if sessionID != "S2" {
		t.Fatalf("expected session S2 after explicit overwrite, got %q", sessionID)
	}
}

func TestUpsertUserRecordsSessionRows(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.UpsertUser(ctx, &domain.User{UserID: 1, SessionID: "S1"}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	if err := repo.UpsertUser(ctx, &domain.User{UserID: 1, SessionID: "S2"}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	// Re-assigning the same token must not duplicate the row.
	if err := repo.UpsertUser(ctx, &domain.User{UserID: 1, SessionID: "S2"}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	if got := countRows(t, repo, "sessions"); got != 2 {
		t.Fatalf("expected 2 session rows, got %d", got)
	}

	s := repo.(*SQLiteStore)
	rows, err := s.db.Query(`SELECT id, user_id, session_id, created_at FROM sessions ORDER BY id`)
	if err != nil {
		t.Fatalf("query sessions: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var tokens []string
	for rows.Next() {
		var sess domain.Session
		var createdAt int64
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.SessionID, &createdAt); err != nil {
			t.Fatalf("scan session row: %v", err)
		}
		if sess.UserID != 1 {
			t.Fatalf("unexpected session owner: %+v", sess)
		}
		tokens = append(tokens, sess.SessionID)
	}
	if len(tokens) != 2 || tokens[0] != "S1" || tokens[1] != "S2" {
		t.Fatalf("expected session history [S1 S2], got %v", tokens)
	}
}

func TestAppendMessageOrdering(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.UpsertUser(ctx, &domain.User{UserID: 1, Username: "alice"}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	for _, text := range []string{"hi", "yo"} {
		if err := repo.AppendMessage(ctx, 1, text); err != nil {
			t.Fatalf("AppendMessage(%q) failed: %v", text, err)
		}
	}

	messages, err := repo.GetRecentMessages(ctx, 1, 10)
	if err != nil {
		t.Fatalf("GetRecentMessages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Text != "yo" || messages[1].Text != "hi" {
		t.Fatalf("expected newest-first [yo hi], got [%s %s]", messages[0].Text, messages[1].Text)
	}

	limited, err := repo.GetRecentMessages(ctx, 1, 1)
	if err != nil {
		t.Fatalf("GetRecentMessages failed: %v", err)
	}
	if len(limited) != 1 || limited[0].Text != "yo" {
		t.Fatalf("expected [yo] with limit 1, got %v", limited)
	}
}

func TestAppendMessageUnknownUser(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)

	err := repo.AppendMessage(context.Background(), 999, "hello")
	if !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestGetUserSessionIDAbsent(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	// Unknown user.
	sessionID, err := repo.GetUserSessionID(ctx, 42)
	if err != nil {
		t.Fatalf("GetUserSessionID failed: %v", err)
	}
	if sessionID != "" {
		t.Fatalf("expected empty session for unknown user, got %q", sessionID)
	}

	// Known user without a session.
	if err := repo.UpsertUser(ctx, &domain.User{UserID: 42, Username: "bob"}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	sessionID, err = repo.GetUserSessionID(ctx, 42)
	if err != nil {
		t.Fatalf("GetUserSessionID failed: %v", err)
	}
	if sessionID != "" {
		t.Fatalf("expected empty session for user without one, got %q", sessionID)
	}
}

func TestGetUserAbsent(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)

	user, err := repo.GetUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user != nil {
		t.Fatalf("expected nil for unknown user, got %+v", user)
	}
}

func TestOperationsAfterClose(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Close is idempotent.
	if err := repo.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if err := repo.UpsertUser(ctx, &domain.User{UserID: 1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from UpsertUser, got %v", err)
	}
	if err := repo.AppendMessage(ctx, 1, "hi"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from AppendMessage, got %v", err)
	}
	if _, err := repo.GetUserSessionID(ctx, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from GetUserSessionID, got %v", err)
	}
	if err := repo.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Ping, got %v", err)
	}
}

func TestConcurrentUpsertsProduceOneRow(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	const n = 10
	names := make(map[string]bool, n)

	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("user-%d", i)
		names[name] = true
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			errCh <- repo.UpsertUser(ctx, &domain.User{UserID: 42, Username: name})
		}(name)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent UpsertUser failed: %v", err)
		}
	}

	if got := countRows(t, repo, "users"); got != 1 {
		t.Fatalf("expected exactly 1 user row, got %d", got)
	}

	user, err := repo.GetUser(ctx, 42)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user == nil || !names[user.Username] {
		t.Fatalf("expected username to be one of the inputs, got %+v", user)
	}
}
