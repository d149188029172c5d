package userkit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// ManagedUser is the capability set the lifecycle engine needs from a
// user record. Implementations must be bun models with an "email" column.
type ManagedUser interface {
	GetID() uuid.UUID
	SetID(id uuid.UUID)
	GetEmail() string
	GetSalt() []byte
	GetPasswordHash() []byte
	// SetCredentials replaces salt and hash together.
	SetCredentials(salt, hash []byte)
	IsEmailConfirmed() bool
	SetEmailConfirmed(confirmed bool)
	IsTwoFactorEnabled() bool
	SetTwoFactorEnabled(enabled bool)
	Claims() Claims
}

// UserFinder narrows a user select query. It is passed untouched to the
// persistence layer, which owns the matching semantics.
type UserFinder func(q *bun.SelectQuery) *bun.SelectQuery

// UserBuilder creates the record persisted by CreateUser.
type UserBuilder[U ManagedUser] func() (U, error)

// PasswordHasher derives and verifies salted password hashes
type PasswordHasher interface {
	SetPassword(password string) (salt, hash []byte, err error)
	ValidatePassword(password string, salt, hash []byte) (bool, error)
}

// TokenCodec builds and validates bearer tokens
type TokenCodec interface {
	Build(claims Claims) (string, error)
	// Validate returns nil for any token that fails validation.
	Validate(token string) Claims
}

// MessageGateway notifies a user about a freshly issued code
type MessageGateway interface {
	SendEmailConfirmationMessage(ctx context.Context, user ManagedUser, code string) error
	SendPasswordRedefinitionMessage(ctx context.Context, user ManagedUser, code string) error
	SendTwoFactorAuthenticationMessage(ctx context.Context, user ManagedUser, code string) error
}

// FindByEmail matches users by their email column
func FindByEmail(email string) UserFinder {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.email = ?", email)
	}
}

// FindByID matches users by primary key
func FindByID(id uuid.UUID) UserFinder {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.id = ?", id)
	}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] USERKIT "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] USERKIT "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] USERKIT "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] USERKIT "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}

// DefaultLogger returns the logger used when none is configured
func DefaultLogger() Logger {
	return defLogger{}
}
