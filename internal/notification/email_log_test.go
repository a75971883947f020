package notification

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgLogRepository_Insert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+email_logs\s+\(appointment_id,\s*email_type,\s*sent_to,\s*status,\s*error\)`).
		WithArgs(&id, EmailConfirmation, "jane@example.com", StatusSent, (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewPgLogRepository(mock)
	err = repo.InsertEmailLog(context.Background(), EmailLog{
		AppointmentID: &id,
		EmailType:     EmailConfirmation,
		SentTo:        "jane@example.com",
		Status:        StatusSent,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
