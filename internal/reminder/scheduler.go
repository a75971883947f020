package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/guardportal/booking/internal/logging"
)

// Scheduler queues and cancels reminder emails for appointments.
type Scheduler struct {
	repo Repository
	log  logging.Logger
}

func NewScheduler(repo Repository, logger logging.Logger) *Scheduler {
	return &Scheduler{repo: repo, log: logger}
}

func (s *Scheduler) ScheduleReminder(ctx context.Context, appointmentID uuid.UUID, runAt time.Time) error {
	job, err := s.repo.Enqueue(ctx, KindReminderEmail, appointmentID, runAt)
	if err != nil {
		return err
	}
	s.log.Debug(ctx, "reminder.scheduled", "job_id", job.ID.String(), "appointment_id", appointmentID.String(), "run_at", runAt)
	return nil
}

func (s *Scheduler) CancelReminders(ctx context.Context, appointmentID uuid.UUID) error {
	n, err := s.repo.CancelPending(ctx, appointmentID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info(ctx, "reminder.cancelled", "appointment_id", appointmentID.String(), "jobs", n)
	}
	return nil
}
