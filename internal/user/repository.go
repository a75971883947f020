package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

type Repository interface {
	CreateUser(ctx context.Context, in NewUser) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByResetTokenHash(ctx context.Context, hash string) (*User, error)

	// UpsertProfile inserts or updates the profile keyed by email.
	UpsertProfile(ctx context.Context, email, firstName, lastName string, isAdmin bool) (*User, error)

	SetResetToken(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error
	// UpdatePassword stores a new hash and drops any pending reset token.
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
}
