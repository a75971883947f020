package user

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID                  uuid.UUID
	Email               string
	FirstName           string
	LastName            string
	IsAdmin             bool
	PasswordHash        *string
	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type NewUser struct {
	Email        string
	FirstName    string
	LastName     string
	IsAdmin      bool
	PasswordHash string
}
