package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/guardportal/booking/internal/agreement"
	"github.com/guardportal/booking/internal/config"
	"github.com/guardportal/booking/internal/events"
	"github.com/guardportal/booking/internal/logging"
	"github.com/guardportal/booking/internal/payment"
	redisclient "github.com/guardportal/booking/internal/redis"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventPaymentCaptured        = "PAYMENT_CAPTURED"
	EventPaymentFailed          = "PAYMENT_FAILED"
	EventAgreementSent          = "AGREEMENT_SENT"
	EventAgreementFailed        = "AGREEMENT_FAILED"
	EventAgreementStatusChanged = "AGREEMENT_STATUS_CHANGED"
	EventConfirmationSent       = "CONFIRMATION_SENT"
	EventReminderScheduled      = "REMINDER_SCHEDULED"
	EventReminderSent           = "REMINDER_SENT"
	EventAppointmentUpdated     = "APPOINTMENT_UPDATED"
)

const BookedMessage = "Appointment booked successfully!"

var (
	ErrForbidden         = errors.New("not allowed to access this appointment")
	ErrPaymentFailed     = errors.New("payment processing failed")
	ErrBookingInProgress = errors.New("a booking for this account is already in progress")
)

type PaymentGateway interface {
	Charge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error)
}

type AgreementSender interface {
	SendAgreement(ctx context.Context, req agreement.Request) (*agreement.Envelope, error)
}

// Notifier sends the booking confirmation and records the attempt in the
// email log.
type Notifier interface {
	SendConfirmation(ctx context.Context, appt *Appointment) error
}

type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, appointmentID uuid.UUID, runAt time.Time) error
	CancelReminders(ctx context.Context, appointmentID uuid.UUID) error
}

type Dependencies struct {
	Repo       Repository
	Locker     redisclient.Locker
	Payments   PaymentGateway
	Agreements AgreementSender
	Notifier   Notifier
	Reminders  ReminderScheduler
	Publisher  events.Publisher
	Logger     logging.Logger
}

type Service struct {
	repo       Repository
	locker     redisclient.Locker
	payments   PaymentGateway
	agreements AgreementSender
	notifier   Notifier
	reminders  ReminderScheduler
	publisher  events.Publisher
	log        logging.Logger

	priceCents   int64
	currency     string
	reminderLead time.Duration
	loc          *time.Location
	// bounds the steps that run after the card has been charged
	settleTimeout time.Duration
	now           func() time.Time
}

func NewService(deps Dependencies, cfg config.Config) *Service {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		repo:          deps.Repo,
		locker:        deps.Locker,
		payments:      deps.Payments,
		agreements:    deps.Agreements,
		notifier:      deps.Notifier,
		reminders:     deps.Reminders,
		publisher:     publisher,
		log:           deps.Logger,
		priceCents:    cfg.Booking.PriceCents,
		currency:      cfg.Booking.Currency,
		reminderLead:  cfg.ReminderLead,
		loc:           cfg.Location(),
		settleTimeout: 60 * time.Second,
		now:           time.Now,
	}
}

// Book runs the booking chain: persist, charge, send agreement, confirm by
// email and schedule the reminder. Only one booking per user runs at a time.
// Steps after the charge are best-effort and never undo the payment.
func (s *Service) Book(ctx context.Context, actor Actor, req BookingRequest) (*Appointment, error) {
	date, err := req.Validate(s.now(), s.loc)
	if err != nil {
		return nil, err
	}

	var booked *Appointment

	err = s.locker.WithLock(ctx, "booking:user:"+actor.UserID.String(), func(lockCtx context.Context) error {
		appt, err := s.book(lockCtx, actor, req, date)
		booked = appt
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingInProgress
		}
		return booked, err
	}

	return booked, nil
}

func (s *Service) book(ctx context.Context, actor Actor, req BookingRequest, date time.Time) (*Appointment, error) {
	email := req.Email
	if actor.Email != "" {
		email = actor.Email
	}
	var preferredTime *string
	if req.PreferredTime != "" {
		preferredTime = &req.PreferredTime
	}

	appt, err := s.repo.CreateAppointment(ctx, NewAppointment{
		UserID:             actor.UserID,
		FullName:           req.FullName,
		Email:              email,
		Phone:              req.Phone,
		Address:            req.Address,
		PreferredDate:      date,
		PreferredTime:      preferredTime,
		IsReady:            req.IsReady,
		PaymentAmountCents: s.priceCents,
	})
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	log := s.log.With("appointment_id", appt.ID.String(), "user_id", actor.UserID.String())
	s.RecordEvent(ctx, appt.ID, EventAppointmentCreated, map[string]any{
		"preferred_date": date.Format(time.DateOnly),
		"amount_cents":   appt.PaymentAmountCents,
	})

	charge, err := s.payments.Charge(ctx, payment.ChargeRequest{
		AmountCents:    s.priceCents,
		Currency:       s.currency,
		SourceID:       req.PaymentSourceID,
		IdempotencyKey: fmt.Sprintf("%s-%d", appt.ID, s.now().UnixMilli()),
		ReferenceID:    appt.ID.String(),
		Note:           "GuardPortal Security Audit - Appointment " + appt.ID.String(),
	})

	// From here on the charge outcome must be recorded even if the caller
	// went away or the lock expired.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settleTimeout)
	defer cancel()

	if err != nil {
		log.Warn(ctx, "booking.payment_failed", "error", err)
		failed := PaymentFailed
		if updated, updErr := s.repo.UpdateAppointment(ctx, appt.ID, Update{PaymentStatus: &failed}); updErr != nil {
			log.Error(ctx, "booking.mark_payment_failed", "error", updErr)
		} else {
			appt = updated
		}
		s.RecordEvent(ctx, appt.ID, EventPaymentFailed, map[string]any{"error": err.Error()})
		return appt, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	paid, confirmed := PaymentPaid, StatusConfirmed
	appt, err = s.repo.UpdateAppointment(ctx, appt.ID, Update{
		PaymentStatus: &paid,
		PaymentID:     &charge.PaymentID,
		Status:        &confirmed,
	})
	if err != nil {
		log.Error(ctx, "booking.record_payment", "payment_id", charge.PaymentID, "error", err)
		return nil, fmt.Errorf("record payment %s: %w", charge.PaymentID, err)
	}
	s.RecordEvent(ctx, appt.ID, EventPaymentCaptured, map[string]any{
		"payment_id":   charge.PaymentID,
		"status":       charge.Status,
		"amount_cents": charge.AmountCents,
	})

	appt = s.sendAgreement(ctx, log, appt)

	if err := s.notifier.SendConfirmation(ctx, appt); err != nil {
		log.Error(ctx, "booking.confirmation_failed", "error", err)
	} else {
		s.RecordEvent(ctx, appt.ID, EventConfirmationSent, map[string]any{"sent_to": appt.Email})
	}

	s.scheduleReminder(ctx, log, appt)

	log.Info(ctx, "booking.completed", "payment_id", charge.PaymentID)
	return appt, nil
}

func (s *Service) sendAgreement(ctx context.Context, log logging.Logger, appt *Appointment) *Appointment {
	env, err := s.agreements.SendAgreement(ctx, agreement.Request{
		AppointmentID:  appt.ID.String(),
		RecipientEmail: appt.Email,
		RecipientName:  appt.FullName,
	})
	if err != nil {
		log.Error(ctx, "booking.agreement_failed", "error", err)
		s.RecordEvent(ctx, appt.ID, EventAgreementFailed, map[string]any{"error": err.Error()})
		return appt
	}

	sent := AgreementSent
	updated, err := s.repo.UpdateAppointment(ctx, appt.ID, Update{
		DocusignStatus:     &sent,
		DocusignEnvelopeID: &env.EnvelopeID,
	})
	if err != nil {
		log.Error(ctx, "booking.record_agreement", "envelope_id", env.EnvelopeID, "error", err)
		return appt
	}
	s.RecordEvent(ctx, appt.ID, EventAgreementSent, map[string]any{"envelope_id": env.EnvelopeID})
	return updated
}

// scheduleReminder queues the reminder email ahead of the visit. Nothing is
// queued once that moment has passed.
func (s *Service) scheduleReminder(ctx context.Context, log logging.Logger, appt *Appointment) {
	runAt := appt.StartsAt(s.loc).Add(-s.reminderLead)
	if !runAt.After(s.now()) {
		log.Debug(ctx, "booking.reminder_skipped", "run_at", runAt)
		return
	}

	if err := s.reminders.ScheduleReminder(ctx, appt.ID, runAt); err != nil {
		log.Error(ctx, "booking.reminder_schedule_failed", "error", err)
		return
	}
	s.RecordEvent(ctx, appt.ID, EventReminderScheduled, map[string]any{"run_at": runAt})
}

// GetAppointment returns an appointment visible to actor.
func (s *Service) GetAppointment(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if !actor.canAccess(appt) {
		return nil, ErrForbidden
	}
	return appt, nil
}

func (s *Service) ListMyAppointments(ctx context.Context, actor Actor) ([]Appointment, error) {
	appts, err := s.repo.ListAppointmentsByUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// UpdateAppointment applies a partial update. Owners may edit contact and
// scheduling fields and cancel; any other status change requires an admin.
func (s *Service) UpdateAppointment(ctx context.Context, actor Actor, id uuid.UUID, patch Patch) (*Appointment, error) {
	current, err := s.GetAppointment(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if patch.Status != nil && *patch.Status != StatusCancelled && !actor.IsAdmin {
		return nil, ErrForbidden
	}

	upd, err := patch.toUpdate(s.now(), s.loc)
	if err != nil {
		return nil, err
	}
	if upd.IsEmpty() {
		return current, nil
	}

	updated, err := s.repo.UpdateAppointment(ctx, id, upd)
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	log := s.log.With("appointment_id", id.String(), "actor_id", actor.UserID.String())
	s.RecordEvent(ctx, id, EventAppointmentUpdated, map[string]any{
		"actor_id": actor.UserID.String(),
		"admin":    actor.IsAdmin,
		"fields":   changedFields(upd),
	})

	rescheduled := upd.PreferredDate != nil || upd.PreferredTime != nil
	switch {
	case updated.Status == StatusCancelled && current.Status != StatusCancelled:
		if err := s.reminders.CancelReminders(ctx, id); err != nil {
			log.Error(ctx, "appointment.cancel_reminders", "error", err)
		}
	case rescheduled && updated.Status == StatusConfirmed:
		if err := s.reminders.CancelReminders(ctx, id); err != nil {
			log.Error(ctx, "appointment.cancel_reminders", "error", err)
		}
		s.scheduleReminder(ctx, log, updated)
	}

	return updated, nil
}

func changedFields(upd Update) []string {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(upd.FullName != nil, "fullName")
	add(upd.Email != nil, "email")
	add(upd.Phone != nil, "phone")
	add(upd.Address != nil, "address")
	add(upd.PreferredDate != nil, "preferredDate")
	add(upd.PreferredTime != nil, "preferredTime")
	add(upd.IsReady != nil, "isReady")
	add(upd.Status != nil, "status")
	return fields
}

// AdminListAppointments lists every appointment, optionally filtered by status.
func (s *Service) AdminListAppointments(ctx context.Context, actor Actor, status string) ([]Appointment, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}

	var filter *Status
	if status != "" {
		st := Status(status)
		if !st.Valid() {
			return nil, &ValidationError{Fields: map[string]string{"status": "unknown status"}}
		}
		filter = &st
	}

	appts, err := s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("admin list appointments: %w", err)
	}
	return appts, nil
}

func (s *Service) AdminStats(ctx context.Context, actor Actor) (*Stats, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin stats: %w", err)
	}
	return stats, nil
}

// ApplyAgreementStatus records an envelope status reported by the DocuSign
// webhook. Re-delivering a status the appointment already has is a no-op.
func (s *Service) ApplyAgreementStatus(ctx context.Context, envelopeID, providerStatus string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByEnvelopeID(ctx, envelopeID)
	if err != nil {
		return nil, fmt.Errorf("find appointment by envelope %s: %w", envelopeID, err)
	}

	status := MapAgreementStatus(providerStatus)
	if appt.DocusignStatus == status {
		return appt, nil
	}

	updated, err := s.repo.UpdateAppointment(ctx, appt.ID, Update{DocusignStatus: &status})
	if err != nil {
		return nil, fmt.Errorf("update agreement status: %w", err)
	}

	s.RecordEvent(ctx, appt.ID, EventAgreementStatusChanged, map[string]any{
		"envelope_id":     envelopeID,
		"provider_status": providerStatus,
		"from":            appt.DocusignStatus,
		"to":              status,
	})
	return updated, nil
}

// RecordEvent appends to the appointment event log and publishes the event.
// Failures are logged and never surface to the caller.
func (s *Service) RecordEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error(ctx, "event.marshal_failed", "event_type", eventType, "error", err)
		data = nil
	}

	apptID := appointmentID
	now := s.now()

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     now,
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error(ctx, "event.insert_failed", "event_type", eventType, "appointment_id", appointmentID.String(), "error", err)
	}

	if err := s.publisher.Publish(ctx, events.Event{
		Type:          eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		OccurredAt:    now,
	}); err != nil {
		s.log.Warn(ctx, "event.publish_failed", "event_type", eventType, "appointment_id", appointmentID.String(), "error", err)
	}
}
