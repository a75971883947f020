package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/guardportal/booking/internal/auth"
	"github.com/guardportal/booking/internal/logging"
)

const (
	minPasswordLen = 8
	resetTokenTTL  = time.Hour
	cacheSize      = 1024
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidResetToken  = errors.New("reset token is invalid or has expired")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLen)
)

// Notifier sends the account emails.
type Notifier interface {
	SendWelcome(ctx context.Context, to, firstName string) error
	SendPasswordReset(ctx context.Context, to, token string) error
	SendPasswordChanged(ctx context.Context, to string) error
}

type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type Service struct {
	repo        Repository
	notifier    Notifier
	log         logging.Logger
	adminEmails []string
	cache       *expirable.LRU[uuid.UUID, *User]
	now         func() time.Time
}

// NewService wires the account service. Users whose email is listed in
// adminEmails are flagged as admins when created.
func NewService(repo Repository, notifier Notifier, logger logging.Logger, adminEmails []string, cacheTTL time.Duration) *Service {
	return &Service{
		repo:        repo,
		notifier:    notifier,
		log:         logger,
		adminEmails: adminEmails,
		cache:       expirable.NewLRU[uuid.UUID, *User](cacheSize, nil, cacheTTL),
		now:         time.Now,
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (s *Service) isAdminEmail(email string) bool {
	return slices.Contains(s.adminEmails, email)
}

func (s *Service) Signup(ctx context.Context, in SignupInput) (*User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < minPasswordLen {
		return nil, ErrWeakPassword
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.repo.CreateUser(ctx, NewUser{
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		IsAdmin:      s.isAdminEmail(email),
		PasswordHash: hash,
	})
	if err != nil {
		return nil, err
	}

	if err := s.notifier.SendWelcome(ctx, u.Email, u.FirstName); err != nil {
		s.log.Warn(ctx, "user.welcome_email_failed", "user_id", u.ID.String(), "error", err)
	}

	s.log.Info(ctx, "user.signed_up", "user_id", u.ID.String(), "admin", u.IsAdmin)
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u.PasswordHash == nil || !auth.CheckPassword(*u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	s.cache.Add(u.ID, u)
	return u, nil
}

// GetUser loads a user, serving repeated lookups from a short-lived cache.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	if u, ok := s.cache.Get(id); ok {
		return u, nil
	}

	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.Add(id, u)
	return u, nil
}

// UpdateProfile upserts the caller's names, keyed by their email.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, firstName, lastName string) (*User, error) {
	current, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	u, err := s.repo.UpsertProfile(ctx, current.Email,
		strings.TrimSpace(firstName), strings.TrimSpace(lastName), s.isAdminEmail(current.Email))
	if err != nil {
		return nil, err
	}

	s.cache.Remove(id)
	return u, nil
}

// ForgotPassword issues a reset token when the account exists. Unknown
// emails succeed silently.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.log.Debug(ctx, "user.reset_unknown_email")
			return nil
		}
		return fmt.Errorf("load user: %w", err)
	}

	raw, hash, err := auth.GenerateResetToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.repo.SetResetToken(ctx, u.ID, hash, s.now().Add(resetTokenTTL)); err != nil {
		return err
	}

	if err := s.notifier.SendPasswordReset(ctx, u.Email, raw); err != nil {
		s.log.Error(ctx, "user.reset_email_failed", "user_id", u.ID.String(), "error", err)
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if len(password) < minPasswordLen {
		return ErrWeakPassword
	}

	u, err := s.repo.GetUserByResetTokenHash(ctx, auth.HashResetToken(token))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("load user by reset token: %w", err)
	}
	if u.ResetTokenExpiresAt == nil || !s.now().Before(*u.ResetTokenExpiresAt) {
		return ErrInvalidResetToken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, u.ID, hash); err != nil {
		return err
	}
	s.cache.Remove(u.ID)

	if err := s.notifier.SendPasswordChanged(ctx, u.Email); err != nil {
		s.log.Warn(ctx, "user.password_changed_email_failed", "user_id", u.ID.String(), "error", err)
	}
	return nil
}
