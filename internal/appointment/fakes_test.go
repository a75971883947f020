package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guardportal/booking/internal/agreement"
	"github.com/guardportal/booking/internal/events"
	"github.com/guardportal/booking/internal/payment"
	redisclient "github.com/guardportal/booking/internal/redis"
)

type memRepo struct {
	mu     sync.Mutex
	appts  map[uuid.UUID]*Appointment
	order  []uuid.UUID
	events []EventLog
	clock  time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{appts: map[uuid.UUID]*Appointment{}, clock: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (r *memRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *memRepo) CreateAppointment(_ context.Context, in NewAppointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.tick()
	a := &Appointment{
		ID:                 uuid.New(),
		UserID:             in.UserID,
		FullName:           in.FullName,
		Email:              in.Email,
		Phone:              in.Phone,
		Address:            in.Address,
		PreferredDate:      in.PreferredDate,
		PreferredTime:      in.PreferredTime,
		IsReady:            in.IsReady,
		Status:             StatusPending,
		PaymentStatus:      PaymentUnpaid,
		PaymentAmountCents: in.PaymentAmountCents,
		DocusignStatus:     AgreementNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	r.appts[a.ID] = a
	r.order = append(r.order, a.ID)
	cp := *a
	return &cp, nil
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) GetAppointmentByEnvelopeID(_ context.Context, envelopeID string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.appts {
		if a.DocusignEnvelopeID != nil && *a.DocusignEnvelopeID == envelopeID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *memRepo) UpdateAppointment(ctx context.Context, id uuid.UUID, upd Update) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if upd.FullName != nil {
		a.FullName = *upd.FullName
	}
	if upd.Email != nil {
		a.Email = *upd.Email
	}
	if upd.Phone != nil {
		a.Phone = *upd.Phone
	}
	if upd.Address != nil {
		a.Address = *upd.Address
	}
	if upd.PreferredDate != nil {
		a.PreferredDate = *upd.PreferredDate
	}
	if upd.PreferredTime != nil {
		v := *upd.PreferredTime
		a.PreferredTime = &v
	}
	if upd.IsReady != nil {
		a.IsReady = *upd.IsReady
	}
	if upd.Status != nil {
		a.Status = *upd.Status
	}
	if upd.PaymentStatus != nil {
		a.PaymentStatus = *upd.PaymentStatus
	}
	if upd.PaymentID != nil {
		v := *upd.PaymentID
		a.PaymentID = &v
	}
	if upd.DocusignStatus != nil {
		a.DocusignStatus = *upd.DocusignStatus
	}
	if upd.DocusignEnvelopeID != nil {
		v := *upd.DocusignEnvelopeID
		a.DocusignEnvelopeID = &v
	}
	a.UpdatedAt = r.tick()

	cp := *a
	return &cp, nil
}

func (r *memRepo) list(keep func(*Appointment) bool) []Appointment {
	var out []Appointment
	for _, id := range r.order {
		if a := r.appts[id]; keep(a) {
			out = append(out, *a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *memRepo) ListAppointmentsByUser(_ context.Context, userID uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(a *Appointment) bool { return a.UserID == userID }), nil
}

func (r *memRepo) ListAppointments(_ context.Context, status *Status) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(a *Appointment) bool { return status == nil || a.Status == *status }), nil
}

func (r *memRepo) GetStats(_ context.Context) (*Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s Stats
	for _, a := range r.appts {
		s.Total++
		switch a.Status {
		case StatusPending:
			s.Pending++
		case StatusConfirmed:
			s.Confirmed++
		case StatusCompleted:
			s.Completed++
		case StatusCancelled:
			s.Cancelled++
		}
		if a.PaymentStatus == PaymentPaid {
			s.RevenueCents += a.PaymentAmountCents
		}
	}
	return &s, nil
}

func (r *memRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRepo) eventTypes(id uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, ev := range r.events {
		if ev.AppointmentID != nil && *ev.AppointmentID == id {
			out = append(out, ev.EventType)
		}
	}
	return out
}

type fakeLocker struct {
	held map[string]bool
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return redisclient.ErrLockNotAcquired
	}
	l.held[key] = true
	defer delete(l.held, key)
	return fn(ctx)
}

type fakePayments struct {
	err   error
	calls []payment.ChargeRequest
	// runs after the charge is taken, before it is reported
	afterCharge func()
}

func (p *fakePayments) Charge(_ context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	p.calls = append(p.calls, req)
	if p.afterCharge != nil {
		p.afterCharge()
	}
	if p.err != nil {
		return nil, p.err
	}
	return &payment.Charge{PaymentID: "pay_" + req.ReferenceID[:8], Status: "COMPLETED", AmountCents: req.AmountCents}, nil
}

type fakeAgreements struct {
	err   error
	calls []agreement.Request
}

func (a *fakeAgreements) SendAgreement(_ context.Context, req agreement.Request) (*agreement.Envelope, error) {
	a.calls = append(a.calls, req)
	if a.err != nil {
		return nil, a.err
	}
	return &agreement.Envelope{EnvelopeID: "env-" + req.AppointmentID, Status: "sent"}, nil
}

type fakeNotifier struct {
	err  error
	sent []uuid.UUID
}

func (n *fakeNotifier) SendConfirmation(ctx context.Context, appt *Appointment) error {
	if n.err != nil {
		return n.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n.sent = append(n.sent, appt.ID)
	return nil
}

type scheduled struct {
	id    uuid.UUID
	runAt time.Time
}

type fakeReminders struct {
	scheduled []scheduled
	cancelled []uuid.UUID
}

func (f *fakeReminders) ScheduleReminder(_ context.Context, id uuid.UUID, runAt time.Time) error {
	f.scheduled = append(f.scheduled, scheduled{id: id, runAt: runAt})
	return nil
}

func (f *fakeReminders) CancelReminders(_ context.Context, id uuid.UUID) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

type fakePublisher struct {
	published []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, ev events.Event) error {
	p.published = append(p.published, ev)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

var errUpstream = errors.New("upstream unavailable")
