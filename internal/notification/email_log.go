package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/guardportal/booking/internal/db"
)

type EmailType string

const (
	EmailConfirmation    EmailType = "confirmation"
	EmailReminder        EmailType = "reminder"
	EmailWelcome         EmailType = "welcome"
	EmailPasswordReset   EmailType = "password_reset"
	EmailPasswordChanged EmailType = "password_changed"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// EmailLog is one send attempt. Rows are append-only.
type EmailLog struct {
	ID            int64
	AppointmentID *uuid.UUID
	EmailType     EmailType
	SentTo        string
	Status        string
	Error         *string
	SentAt        time.Time
}

type LogRepository interface {
	InsertEmailLog(ctx context.Context, entry EmailLog) error
}

type PgLogRepository struct {
	db db.DBTX
}

func NewPgLogRepository(conn db.DBTX) *PgLogRepository {
	return &PgLogRepository{db: conn}
}

func (r *PgLogRepository) InsertEmailLog(ctx context.Context, entry EmailLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO email_logs (appointment_id, email_type, sent_to, status, error)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.AppointmentID, entry.EmailType, entry.SentTo, entry.Status, entry.Error)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}
