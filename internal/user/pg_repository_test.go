package user

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgRepository(mock), mock
}

var userCols = []string{
	"id", "email", "first_name", "last_name", "is_admin", "password_hash",
	"reset_token_hash", "reset_token_expires_at", "created_at", "updated_at",
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+users`).
		WithArgs(pgxmock.AnyArg(), "sam@example.com", "Sam", "Lee", false, "hash").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	_, err := repo.CreateUser(context.Background(), NewUser{
		Email: "sam@example.com", FirstName: "Sam", LastName: "Lee", PasswordHash: "hash",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()
	hash := "bcrypt-hash"
	now := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)FROM\s+users\s+WHERE\s+email\s*=\s*\$1`).
		WithArgs("sam@example.com").
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(id, "sam@example.com", "Sam", "Lee", true, &hash, (*string)(nil), (*time.Time)(nil), now, now))

	u, err := repo.GetUserByEmail(context.Background(), "sam@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.True(t, u.IsAdmin)
	require.NotNil(t, u.PasswordHash)
	assert.Equal(t, "bcrypt-hash", *u.PasswordHash)
	assert.Nil(t, u.ResetTokenHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByID_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectQuery(`(?s)FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetUserByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdatePassword_ClearsResetToken(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+password_hash = \$2,\s+reset_token_hash = NULL,\s+reset_token_expires_at = NULL`).
		WithArgs(id, "new-hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.UpdatePassword(context.Background(), id, "new-hash"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetResetToken_UnknownUser(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()
	expires := time.Now().Add(time.Hour)

	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+reset_token_hash = \$2`).
		WithArgs(id, "hash", expires).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, repo.SetResetToken(context.Background(), id, "hash", expires), ErrUserNotFound)
}
