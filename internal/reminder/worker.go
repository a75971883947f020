package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/guardportal/booking/internal/appointment"
	"github.com/guardportal/booking/internal/logging"
)

type AppointmentStore interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

type Sender interface {
	SendReminder(ctx context.Context, appt *appointment.Appointment) error
}

type EventRecorder interface {
	RecordEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any)
}

type WorkerOptions struct {
	MaxAttempts int
	RetryDelay  time.Duration
	BatchSize   int
	// running jobs locked for longer than this are assumed abandoned
	StaleAfter time.Duration
	// JobTimeout bounds a single delivery, independent of the caller's context.
	JobTimeout time.Duration
	// Location resolves appointment windows to instants.
	Location *time.Location
}

type Worker struct {
	jobs   Repository
	appts  AppointmentStore
	sender Sender
	events EventRecorder
	log    logging.Logger
	opts   WorkerOptions
	now    func() time.Time
}

func NewWorker(jobs Repository, appts AppointmentStore, sender Sender, events EventRecorder, logger logging.Logger, opts WorkerOptions) *Worker {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 10 * time.Minute
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Worker{
		jobs:   jobs,
		appts:  appts,
		sender: sender,
		events: events,
		log:    logger,
		opts:   opts,
		now:    time.Now,
	}
}

type RunResult struct {
	Claimed int
	Sent    int
	Skipped int
	Retried int
	Failed  int
}

// RunOnce delivers every reminder due now. A job that has started runs to
// completion under its own timeout; once ctx is done the remaining claimed
// jobs are released for the next run.
func (w *Worker) RunOnce(ctx context.Context) (RunResult, error) {
	var res RunResult
	now := w.now()

	requeued, err := w.jobs.RequeueStale(ctx, now.Add(-w.opts.StaleAfter))
	if err != nil {
		return res, err
	}
	if requeued > 0 {
		w.log.Warn(ctx, "reminder.requeued_stale", "jobs", requeued)
	}

	jobs, err := w.jobs.ClaimDue(ctx, now, w.opts.BatchSize)
	if err != nil {
		return res, err
	}
	res.Claimed = len(jobs)

	for i, job := range jobs {
		if ctx.Err() != nil {
			w.release(ctx, jobs[i:])
			return res, ctx.Err()
		}
		switch outcome := w.runJob(ctx, job); outcome {
		case JobDone:
			res.Sent++
		case JobSkipped:
			res.Skipped++
		case JobPending:
			res.Retried++
		case JobFailed:
			res.Failed++
		}
	}

	return res, nil
}

func (w *Worker) runJob(ctx context.Context, job Job) JobStatus {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.JobTimeout)
	defer cancel()
	return w.process(jobCtx, job)
}

func (w *Worker) release(ctx context.Context, jobs []Job) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, job := range jobs {
		if err := w.jobs.Release(releaseCtx, job.ID); err != nil {
			w.log.Error(releaseCtx, "reminder.release_failed", "job_id", job.ID.String(), "error", err)
		}
	}
	w.log.Warn(releaseCtx, "reminder.released", "jobs", len(jobs))
}

func (w *Worker) process(ctx context.Context, job Job) JobStatus {
	log := w.log.With("job_id", job.ID.String(), "appointment_id", job.AppointmentID.String(), "attempt", job.Attempts)

	appt, err := w.appts.GetAppointmentByID(ctx, job.AppointmentID)
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			return w.finish(ctx, log, job, JobSkipped, "appointment not found")
		}
		return w.retryOrFail(ctx, log, job, fmt.Errorf("load appointment: %w", err))
	}

	if appt.Status != appointment.StatusConfirmed {
		return w.finish(ctx, log, job, JobSkipped, "appointment is "+string(appt.Status))
	}
	if !appt.StartsAt(w.opts.Location).After(w.now()) {
		return w.finish(ctx, log, job, JobSkipped, "appointment already started")
	}

	if err := w.sender.SendReminder(ctx, appt); err != nil {
		return w.retryOrFail(ctx, log, job, err)
	}

	w.events.RecordEvent(ctx, appt.ID, appointment.EventReminderSent, map[string]any{
		"job_id":   job.ID.String(),
		"attempts": job.Attempts,
		"sent_to":  appt.Email,
	})
	log.Info(ctx, "reminder.sent")
	return w.finish(ctx, log, job, JobDone, "")
}

func (w *Worker) finish(ctx context.Context, log logging.Logger, job Job, status JobStatus, reason string) JobStatus {
	var lastErr *string
	if reason != "" {
		lastErr = &reason
		log.Info(ctx, "reminder.skipped", "reason", reason)
	}
	if err := w.jobs.Finish(ctx, job.ID, status, lastErr); err != nil {
		log.Error(ctx, "reminder.finish_failed", "status", string(status), "error", err)
	}
	return status
}

func (w *Worker) retryOrFail(ctx context.Context, log logging.Logger, job Job, cause error) JobStatus {
	msg := cause.Error()

	if job.Attempts >= w.opts.MaxAttempts {
		log.Error(ctx, "reminder.failed", "error", cause)
		if err := w.jobs.Finish(ctx, job.ID, JobFailed, &msg); err != nil {
			log.Error(ctx, "reminder.finish_failed", "status", string(JobFailed), "error", err)
		}
		return JobFailed
	}

	next := w.now().Add(w.opts.RetryDelay)
	log.Warn(ctx, "reminder.retry_scheduled", "error", cause, "run_at", next)
	if err := w.jobs.Retry(ctx, job.ID, next, msg); err != nil {
		log.Error(ctx, "reminder.retry_failed", "error", err)
	}
	return JobPending
}
