package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

// Repository contains all DB interactions needed by the service.
type Repository interface {
	CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Webhook lookup, backed by a unique index on docusign_envelope_id
	GetAppointmentByEnvelopeID(ctx context.Context, envelopeID string) (*Appointment, error)
	UpdateAppointment(ctx context.Context, id uuid.UUID, upd Update) (*Appointment, error)

	// Listings are newest first
	ListAppointmentsByUser(ctx context.Context, userID uuid.UUID) ([]Appointment, error)
	ListAppointments(ctx context.Context, status *Status) ([]Appointment, error)

	GetStats(ctx context.Context) (*Stats, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
