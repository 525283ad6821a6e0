package domain

import "time"

type TaskStatus string

const (
	TaskPending TaskStatus = "PENDING"
	TaskRunning TaskStatus = "RUNNING"
	TaskDone    TaskStatus = "DONE"
	TaskFailed  TaskStatus = "FAILED"
)

func (s TaskStatus) Terminal() bool { return s == TaskDone || s == TaskFailed }

// Progress of one server-side unit of work, keyed by task ID.
// A task exclusively owns its record; stores hand out copies.
type Progress struct {
	TaskID       string
	Status       TaskStatus
	Percent      int
	Message      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExpiresAt    time.Time
	Acknowledged bool
}

// Expired reports whether the record is past its retention deadline.
func (p Progress) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}
