package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/guardportal/booking/internal/appointment"
	"github.com/guardportal/booking/internal/auth"
	"github.com/guardportal/booking/internal/logging"
	"github.com/guardportal/booking/internal/user"
)

type fakeAppointments struct {
	book       func(actor appointment.Actor, req appointment.BookingRequest) (*appointment.Appointment, error)
	get        func(actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error)
	update     func(actor appointment.Actor, id uuid.UUID, patch appointment.Patch) (*appointment.Appointment, error)
	adminList  func(actor appointment.Actor, status string) ([]appointment.Appointment, error)
	stats      func(actor appointment.Actor) (*appointment.Stats, error)
	applyAgree func(envelopeID, status string) (*appointment.Appointment, error)
	mine       []appointment.Appointment

	mu           sync.Mutex
	lastActor    appointment.Actor
	lastEnvelope string
	lastStatus   string
}

func (f *fakeAppointments) record(a appointment.Actor) {
	f.mu.Lock()
	f.lastActor = a
	f.mu.Unlock()
}

func (f *fakeAppointments) Book(_ context.Context, actor appointment.Actor, req appointment.BookingRequest) (*appointment.Appointment, error) {
	f.record(actor)
	return f.book(actor, req)
}

func (f *fakeAppointments) GetAppointment(_ context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	f.record(actor)
	return f.get(actor, id)
}

func (f *fakeAppointments) ListMyAppointments(_ context.Context, actor appointment.Actor) ([]appointment.Appointment, error) {
	f.record(actor)
	return f.mine, nil
}

func (f *fakeAppointments) UpdateAppointment(_ context.Context, actor appointment.Actor, id uuid.UUID, patch appointment.Patch) (*appointment.Appointment, error) {
	f.record(actor)
	return f.update(actor, id, patch)
}

func (f *fakeAppointments) AdminListAppointments(_ context.Context, actor appointment.Actor, status string) ([]appointment.Appointment, error) {
	f.record(actor)
	return f.adminList(actor, status)
}

func (f *fakeAppointments) AdminStats(_ context.Context, actor appointment.Actor) (*appointment.Stats, error) {
	f.record(actor)
	return f.stats(actor)
}

func (f *fakeAppointments) ApplyAgreementStatus(_ context.Context, envelopeID, providerStatus string) (*appointment.Appointment, error) {
	f.mu.Lock()
	f.lastEnvelope, f.lastStatus = envelopeID, providerStatus
	f.mu.Unlock()
	return f.applyAgree(envelopeID, providerStatus)
}

type fakeUsers struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*user.User
	byEmail map[string]*user.User
	pw      map[string]string
	resets  []string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byID:    map[uuid.UUID]*user.User{},
		byEmail: map[string]*user.User{},
		pw:      map[string]string{},
	}
}

func (f *fakeUsers) add(email string, admin bool) *user.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &user.User{
		ID:        uuid.New(),
		Email:     email,
		FirstName: "Test",
		IsAdmin:   admin,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.byID[u.ID] = u
	f.byEmail[email] = u
	return u
}

func (f *fakeUsers) Signup(_ context.Context, in user.SignupInput) (*user.User, error) {
	f.mu.Lock()
	_, taken := f.byEmail[in.Email]
	f.mu.Unlock()
	if taken {
		return nil, user.ErrEmailTaken
	}
	if len(in.Password) < 8 {
		return nil, user.ErrWeakPassword
	}
	u := f.add(in.Email, false)
	f.mu.Lock()
	f.pw[in.Email] = in.Password
	u.FirstName, u.LastName = in.FirstName, in.LastName
	f.mu.Unlock()
	return u, nil
}

func (f *fakeUsers) Login(_ context.Context, email, password string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byEmail[email]
	if !ok || f.pw[email] != password {
		return nil, user.ErrInvalidCredentials
	}
	return u, nil
}

func (f *fakeUsers) GetUser(_ context.Context, id uuid.UUID) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id uuid.UUID, firstName, lastName string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	u.FirstName, u.LastName = firstName, lastName
	return u, nil
}

func (f *fakeUsers) ForgotPassword(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, email)
	return nil
}

func (f *fakeUsers) ResetPassword(_ context.Context, token, _ string) error {
	if token != "good-token" {
		return user.ErrInvalidResetToken
	}
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

var errBoom = errors.New("boom")

const testSecret = "test-secret"

type testEnv struct {
	appts  *fakeAppointments
	users  *fakeUsers
	issuer *auth.Issuer
	cfg    RouterConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	issuer := auth.NewIssuer(testSecret, time.Hour)
	appts := &fakeAppointments{}
	users := newFakeUsers()
	return &testEnv{
		appts:  appts,
		users:  users,
		issuer: issuer,
		cfg: RouterConfig{
			Appointments: appts,
			Users:        users,
			Issuer:       issuer,
			Logger:       logging.Discard(),
			CORSOrigins:  []string{"http://localhost:5173"},
			CookieName:   "gp_session",
			AuthRPS:      100,
			AuthBurst:    100,
		},
	}
}

func (e *testEnv) token(t *testing.T, u *user.User) string {
	t.Helper()
	tok, err := e.issuer.MakeToken(u.ID.String(), u.IsAdmin)
	require.NoError(t, err)
	return tok
}

func sampleAppointment(owner uuid.UUID) *appointment.Appointment {
	window := appointment.TimeWindows[0]
	paymentID := "pay_123"
	envelope := "env-1"
	return &appointment.Appointment{
		ID:                 uuid.New(),
		UserID:             owner,
		FullName:           "Jane Doe",
		Email:              "jane@example.com",
		Phone:              "555-123-4567",
		Address:            "1 Main St",
		PreferredDate:      time.Date(2030, 6, 11, 0, 0, 0, 0, time.UTC),
		PreferredTime:      &window,
		Status:             appointment.StatusConfirmed,
		PaymentStatus:      appointment.PaymentPaid,
		PaymentID:          &paymentID,
		PaymentAmountCents: 22500,
		DocusignStatus:     appointment.AgreementSent,
		DocusignEnvelopeID: &envelope,
		CreatedAt:          time.Date(2030, 6, 10, 12, 0, 0, 0, time.UTC),
		UpdatedAt:          time.Date(2030, 6, 10, 12, 0, 1, 0, time.UTC),
	}
}
