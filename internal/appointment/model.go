package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
	PaymentFailed PaymentStatus = "failed"
)

type AgreementStatus string

const (
	AgreementNone     AgreementStatus = "none"
	AgreementSent     AgreementStatus = "sent"
	AgreementSigned   AgreementStatus = "signed"
	AgreementDeclined AgreementStatus = "declined"
)

// MapAgreementStatus translates an envelope status reported by DocuSign.
func MapAgreementStatus(providerStatus string) AgreementStatus {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "completed":
		return AgreementSigned
	case "declined":
		return AgreementDeclined
	default:
		return AgreementSent
	}
}

// TimeWindows are the visit windows offered on the booking form.
var TimeWindows = []string{
	"9:00 AM - 11:00 AM",
	"11:00 AM - 1:00 PM",
	"1:00 PM - 3:00 PM",
	"3:00 PM - 5:00 PM",
}

type Appointment struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	FullName           string
	Email              string
	Phone              string
	Address            string
	PreferredDate      time.Time // date only, midnight UTC
	PreferredTime      *string
	IsReady            bool
	Status             Status
	PaymentStatus      PaymentStatus
	PaymentID          *string
	PaymentAmountCents int64
	DocusignStatus     AgreementStatus
	DocusignEnvelopeID *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PaymentAmount is the booked amount in dollars.
func (a *Appointment) PaymentAmount() decimal.Decimal {
	return decimal.New(a.PaymentAmountCents, -2)
}

// StartsAt returns the start of the visit in loc. Appointments without a
// window start at the beginning of the first one.
func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	window := TimeWindows[0]
	if a.PreferredTime != nil && *a.PreferredTime != "" {
		window = *a.PreferredTime
	}

	y, m, d := a.PreferredDate.Date()
	hour, minute, err := windowStart(window)
	if err != nil {
		hour, minute = 9, 0
	}
	return time.Date(y, m, d, hour, minute, 0, 0, loc)
}

func windowStart(window string) (int, int, error) {
	start, _, _ := strings.Cut(window, "-")
	t, err := time.Parse("3:04 PM", strings.TrimSpace(start))
	if err != nil {
		return 0, 0, fmt.Errorf("parse window %q: %w", window, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NewAppointment is the row written when a booking is accepted.
type NewAppointment struct {
	UserID             uuid.UUID
	FullName           string
	Email              string
	Phone              string
	Address            string
	PreferredDate      time.Time
	PreferredTime      *string
	IsReady            bool
	PaymentAmountCents int64
}

// Update is a partial update. Nil fields are left untouched.
type Update struct {
	FullName           *string
	Email              *string
	Phone              *string
	Address            *string
	PreferredDate      *time.Time
	PreferredTime      *string
	IsReady            *bool
	Status             *Status
	PaymentStatus      *PaymentStatus
	PaymentID          *string
	DocusignStatus     *AgreementStatus
	DocusignEnvelopeID *string
}

func (u Update) IsEmpty() bool {
	return u == Update{}
}

type Stats struct {
	Total        int64
	Pending      int64
	Confirmed    int64
	Completed    int64
	Cancelled    int64
	RevenueCents int64
}

// Revenue is the sum of payment amounts over paid appointments, in dollars.
func (s *Stats) Revenue() decimal.Decimal {
	return decimal.New(s.RevenueCents, -2)
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID  uuid.UUID
	Email   string
	IsAdmin bool
}

func (a Actor) canAccess(appt *Appointment) bool {
	return a.IsAdmin || appt.UserID == a.UserID
}
