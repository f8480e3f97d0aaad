package auth

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pyr33x/goqtt/pkg/hash"
)

func TestAllowAllGrantsEverything(t *testing.T) {
	var h Hook = AllowAll{}
	ctx := context.Background()

	if err := h.Authenticate(ctx, "client-1", "anyone", "anything"); err != nil {
		t.Errorf("Authenticate() error = %v, want nil", err)
	}
	if err := h.AuthorizePublish(ctx, "client-1", "a/b"); err != nil {
		t.Errorf("AuthorizePublish() error = %v, want nil", err)
	}
	if err := h.AuthorizeSubscribe(ctx, "client-1", "a/#"); err != nil {
		t.Errorf("AuthorizeSubscribe() error = %v, want nil", err)
	}
}

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`CREATE TABLE users (username TEXT PRIMARY KEY, secret TEXT NOT NULL)`); err != nil {
		t.Fatalf("create users table: %v", err)
	}

	h, err := hash.HashPasswd("s3cret", 4)
	if err != nil {
		t.Fatalf("HashPasswd() error = %v", err)
	}
	if _, err := db.Exec(`INSERT INTO users (username, secret) VALUES (?, ?)`, "alice", h); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	return NewSQLStore(db)
}

func TestSQLStoreAuthenticatesValidCredentials(t *testing.T) {
	s := newTestSQLStore(t)
	if err := s.Authenticate(context.Background(), "client-1", "alice", "s3cret"); err != nil {
		t.Errorf("Authenticate() error = %v, want nil for correct password", err)
	}
}

func TestSQLStoreRejectsWrongPassword(t *testing.T) {
	s := newTestSQLStore(t)
	if err := s.Authenticate(context.Background(), "client-1", "alice", "wrong"); err == nil {
		t.Errorf("Authenticate() error = nil, want error for wrong password")
	}
}

func TestSQLStoreRejectsUnknownUser(t *testing.T) {
	s := newTestSQLStore(t)
	if err := s.Authenticate(context.Background(), "client-1", "bob", "whatever"); err == nil {
		t.Errorf("Authenticate() error = nil, want error for unknown user")
	}
}
