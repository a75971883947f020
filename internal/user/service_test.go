package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardportal/booking/internal/auth"
	"github.com/guardportal/booking/internal/logging"
)

type memRepo struct {
	users     map[uuid.UUID]*User
	byIDCalls int
	failByID  error
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[uuid.UUID]*User{}}
}

func clone(u *User) *User {
	cp := *u
	return &cp
}

func (r *memRepo) CreateUser(_ context.Context, in NewUser) (*User, error) {
	for _, u := range r.users {
		if u.Email == in.Email {
			return nil, ErrEmailTaken
		}
	}
	hash := in.PasswordHash
	u := &User{ID: uuid.New(), Email: in.Email, FirstName: in.FirstName, LastName: in.LastName, IsAdmin: in.IsAdmin, PasswordHash: &hash}
	r.users[u.ID] = u
	return clone(u), nil
}

func (r *memRepo) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.byIDCalls++
	if r.failByID != nil {
		return nil, r.failByID
	}
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return clone(u), nil
}

func (r *memRepo) GetUserByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *memRepo) GetUserByResetTokenHash(_ context.Context, hash string) (*User, error) {
	for _, u := range r.users {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == hash {
			return clone(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *memRepo) UpsertProfile(_ context.Context, email, first, last string, isAdmin bool) (*User, error) {
	for _, u := range r.users {
		if u.Email == email {
			u.FirstName, u.LastName = first, last
			u.IsAdmin = u.IsAdmin || isAdmin
			return clone(u), nil
		}
	}
	u := &User{ID: uuid.New(), Email: email, FirstName: first, LastName: last, IsAdmin: isAdmin}
	r.users[u.ID] = u
	return clone(u), nil
}

func (r *memRepo) SetResetToken(_ context.Context, id uuid.UUID, hash string, expiresAt time.Time) error {
	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.ResetTokenHash, u.ResetTokenExpiresAt = &hash, &expiresAt
	return nil
}

func (r *memRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = &hash
	u.ResetTokenHash, u.ResetTokenExpiresAt = nil, nil
	return nil
}

type fakeNotifier struct {
	welcomed []string
	tokens   map[string]string
	changed  []string
	err      error
}

func (n *fakeNotifier) SendWelcome(_ context.Context, to, _ string) error {
	n.welcomed = append(n.welcomed, to)
	return n.err
}

func (n *fakeNotifier) SendPasswordReset(_ context.Context, to, token string) error {
	if n.tokens == nil {
		n.tokens = map[string]string{}
	}
	n.tokens[to] = token
	return n.err
}

func (n *fakeNotifier) SendPasswordChanged(_ context.Context, to string) error {
	n.changed = append(n.changed, to)
	return n.err
}

func newTestService(t *testing.T) (*Service, *memRepo, *fakeNotifier) {
	t.Helper()
	repo, notifier := newMemRepo(), &fakeNotifier{}
	svc := NewService(repo, notifier, logging.Discard(), []string{"ops@guardportal.com"}, time.Minute)
	return svc, repo, notifier
}

func TestSignup(t *testing.T) {
	svc, _, notifier := newTestService(t)

	u, err := svc.Signup(context.Background(), SignupInput{
		Email: " Sam@Example.com ", Password: "longenough", FirstName: "Sam", LastName: "Lee",
	})
	require.NoError(t, err)

	assert.Equal(t, "sam@example.com", u.Email)
	assert.False(t, u.IsAdmin)
	require.NotNil(t, u.PasswordHash)
	assert.True(t, auth.CheckPassword(*u.PasswordHash, "longenough"))
	assert.Equal(t, []string{"sam@example.com"}, notifier.welcomed)
}

func TestSignup_AdminEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	u, err := svc.Signup(context.Background(), SignupInput{Email: "ops@guardportal.com", Password: "longenough"})
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
}

func TestSignup_Rejections(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupInput{Email: "nope", Password: "longenough"})
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.Signup(ctx, SignupInput{Email: "sam@example.com", Password: "short"})
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = svc.Signup(ctx, SignupInput{Email: "sam@example.com", Password: "longenough"})
	require.NoError(t, err)
	_, err = svc.Signup(ctx, SignupInput{Email: "sam@example.com", Password: "longenough"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignup_WelcomeFailureIgnored(t *testing.T) {
	svc, _, notifier := newTestService(t)
	notifier.err = errors.New("smtp down")

	_, err := svc.Signup(context.Background(), SignupInput{Email: "sam@example.com", Password: "longenough"})
	assert.NoError(t, err)
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.Signup(ctx, SignupInput{Email: "sam@example.com", Password: "longenough"})
	require.NoError(t, err)

	u, err := svc.Login(ctx, "SAM@example.com", "longenough")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)

	_, err = svc.Login(ctx, "sam@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "longenough")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGetUser_Cached(t *testing.T) {
	svc, repo, _ := newTestService(t)
	u, err := repo.UpsertProfile(context.Background(), "sam@example.com", "Sam", "Lee", false)
	require.NoError(t, err)

	_, err = svc.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	_, err = svc.GetUser(context.Background(), u.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.byIDCalls)
}

func TestUpdateProfile(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	u, err := svc.Signup(ctx, SignupInput{Email: "sam@example.com", Password: "longenough", FirstName: "Sam"})
	require.NoError(t, err)

	_, err = svc.GetUser(ctx, u.ID)
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(ctx, u.ID, " Samantha ", "Lee")
	require.NoError(t, err)
	assert.Equal(t, u.ID, updated.ID)
	assert.Equal(t, "Samantha", updated.FirstName)

	fresh, err := svc.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Samantha", fresh.FirstName)
}

func TestPasswordResetFlow(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	ctx := context.Background()
	u, err := svc.Signup(ctx, SignupInput{Email: "sam@example.com", Password: "longenough"})
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(ctx, "sam@example.com"))
	token := notifier.tokens["sam@example.com"]
	require.NotEmpty(t, token)

	stored := repo.users[u.ID]
	require.NotNil(t, stored.ResetTokenHash)
	assert.Equal(t, auth.HashResetToken(token), *stored.ResetTokenHash)
	assert.NotEqual(t, token, *stored.ResetTokenHash)

	require.NoError(t, svc.ResetPassword(ctx, token, "brand-new-pass"))
	assert.Nil(t, repo.users[u.ID].ResetTokenHash)
	assert.Equal(t, []string{"sam@example.com"}, notifier.changed)

	_, err = svc.Login(ctx, "sam@example.com", "brand-new-pass")
	assert.NoError(t, err)

	// consumed tokens cannot be replayed
	assert.ErrorIs(t, svc.ResetPassword(ctx, token, "another-pass"), ErrInvalidResetToken)
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	svc, _, notifier := newTestService(t)

	assert.NoError(t, svc.ForgotPassword(context.Background(), "ghost@example.com"))
	assert.Empty(t, notifier.tokens)
}

func TestResetPassword_Expired(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()
	_, err := svc.Signup(ctx, SignupInput{Email: "sam@example.com", Password: "longenough"})
	require.NoError(t, err)
	require.NoError(t, svc.ForgotPassword(ctx, "sam@example.com"))

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	err = svc.ResetPassword(ctx, notifier.tokens["sam@example.com"], "brand-new-pass")
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestResetPassword_WeakPassword(t *testing.T) {
	svc, _, _ := newTestService(t)

	assert.ErrorIs(t, svc.ResetPassword(context.Background(), "whatever", "short"), ErrWeakPassword)
}
