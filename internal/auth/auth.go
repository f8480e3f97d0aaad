// Package auth implements the broker's pluggable authentication and
// authorization hook, plus a SQLite-backed default implementation.
package auth

import (
	"context"
	"database/sql"
	"errors"

	h "github.com/pyr33x/goqtt/pkg/hash"
	"github.com/pyr33x/goqtt/pkg/er"
)

// Hook is consulted on CONNECT and on every PUBLISH/SUBSCRIBE, letting a
// deployment plug in its own credential and ACL backend without the
// broker core depending on any particular store.
type Hook interface {
	Authenticate(ctx context.Context, clientID, username, password string) error
	AuthorizePublish(ctx context.Context, clientID, topic string) error
	AuthorizeSubscribe(ctx context.Context, clientID, filter string) error
}

// AllowAll grants every connection, publish, and subscription. It is the
// zero-configuration default and the one used by tests.
type AllowAll struct{}

func (AllowAll) Authenticate(context.Context, string, string, string) error { return nil }
func (AllowAll) AuthorizePublish(context.Context, string, string) error     { return nil }
func (AllowAll) AuthorizeSubscribe(context.Context, string, string) error   { return nil }

// SQLStore authenticates against a username/bcrypt-hash table and grants
// every authorized client full publish/subscribe access; the schema
// leaves room for a future per-topic ACL table without changing the Hook
// interface.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Authenticate(ctx context.Context, clientID, username, password string) error {
	var hash string

	err := s.db.QueryRowContext(ctx, "SELECT secret FROM users WHERE username = ?", username).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &er.Err{Context: "Auth", Message: er.ErrUserNotFound}
		}
		return &er.Err{Context: "Auth", Message: err}
	}

	if !h.VerifyPasswd(hash, password) {
		return &er.Err{Context: "Auth", Message: er.ErrInvalidPassword}
	}

	return nil
}

func (s *SQLStore) AuthorizePublish(context.Context, string, string) error { return nil }

func (s *SQLStore) AuthorizeSubscribe(context.Context, string, string) error { return nil }
