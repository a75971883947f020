package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/guardportal/booking/internal/db"
)

const appointmentColumns = `id, user_id, full_name, email, phone, address, preferred_date, preferred_time,
		is_ready, status, payment_status, payment_id, payment_amount_cents,
		docusign_status, docusign_envelope_id, created_at, updated_at`

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.FullName,
		&a.Email,
		&a.Phone,
		&a.Address,
		&a.PreferredDate,
		&a.PreferredTime,
		&a.IsReady,
		&a.Status,
		&a.PaymentStatus,
		&a.PaymentID,
		&a.PaymentAmountCents,
		&a.DocusignStatus,
		&a.DocusignEnvelopeID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error) {
	id := uuid.New()

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, user_id, full_name, email, phone, address, preferred_date,
			preferred_time, is_ready, status, payment_status, payment_amount_cents, docusign_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', 'unpaid', $10, 'none')
		RETURNING `+appointmentColumns,
		id, in.UserID, in.FullName, in.Email, in.Phone, in.Address, in.PreferredDate,
		in.PreferredTime, in.IsReady, in.PaymentAmountCents)

	a, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return a, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByEnvelopeID(ctx context.Context, envelopeID string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE docusign_envelope_id = $1
	`, envelopeID)
	return scanAppointment(row)
}

// UpdateAppointment applies the non-nil fields of upd in a single
// UPDATE ... RETURNING, so concurrent writers resolve last-writer-wins.
func (r *PgRepository) UpdateAppointment(ctx context.Context, id uuid.UUID, upd Update) (*Appointment, error) {
	if upd.IsEmpty() {
		return r.GetAppointmentByID(ctx, id)
	}

	sets := make([]string, 0, 12)
	args := []any{id}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.FullName != nil {
		set("full_name", *upd.FullName)
	}
	if upd.Email != nil {
		set("email", *upd.Email)
	}
	if upd.Phone != nil {
		set("phone", *upd.Phone)
	}
	if upd.Address != nil {
		set("address", *upd.Address)
	}
	if upd.PreferredDate != nil {
		set("preferred_date", *upd.PreferredDate)
	}
	if upd.PreferredTime != nil {
		set("preferred_time", *upd.PreferredTime)
	}
	if upd.IsReady != nil {
		set("is_ready", *upd.IsReady)
	}
	if upd.Status != nil {
		set("status", *upd.Status)
	}
	if upd.PaymentStatus != nil {
		set("payment_status", *upd.PaymentStatus)
	}
	if upd.PaymentID != nil {
		set("payment_id", *upd.PaymentID)
	}
	if upd.DocusignStatus != nil {
		set("docusign_status", *upd.DocusignStatus)
	}
	if upd.DocusignEnvelopeID != nil {
		set("docusign_envelope_id", *upd.DocusignEnvelopeID)
	}

	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET `+strings.Join(sets, ", ")+`,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		args...)

	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByUser(ctx context.Context, userID uuid.UUID) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by user: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointments(ctx context.Context, status *Status) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
	`, status)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats

	err := r.db.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'confirmed'),
			count(*) FILTER (WHERE status = 'completed'),
			count(*) FILTER (WHERE status = 'cancelled'),
			COALESCE(sum(payment_amount_cents) FILTER (WHERE payment_status = 'paid'), 0)::bigint
		FROM appointments
	`).Scan(&s.Total, &s.Pending, &s.Confirmed, &s.Completed, &s.Cancelled, &s.RevenueCents)
	if err != nil {
		return nil, fmt.Errorf("appointment stats: %w", err)
	}

	return &s, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert appointment event: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
