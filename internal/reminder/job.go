// Package reminder persists reminder emails as scheduled jobs and runs the
// worker that delivers them once due.
package reminder

import (
	"time"

	"github.com/google/uuid"
)

const KindReminderEmail = "reminder_email"

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobSkipped   JobStatus = "skipped"
	JobCancelled JobStatus = "cancelled"
	JobFailed    JobStatus = "failed"
)

type Job struct {
	ID            uuid.UUID
	Kind          string
	AppointmentID uuid.UUID
	RunAt         time.Time
	Status        JobStatus
	Attempts      int
	LastError     *string
	LockedAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
