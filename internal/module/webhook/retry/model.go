// Package retry re-delivers failed collaborator dispatches with bounded,
// linearly increasing backoff. Tasks are durable and claimed with a lease
// so several instances may run schedulers against one database.
package retry

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a retry task.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
)

// Task is one collaborator dispatch awaiting re-delivery.
type Task struct {
	ID            uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	Kind          string          `json:"kind" gorm:"size:64;not null;index"`
	OrderID       string          `json:"order_id" gorm:"size:255;not null;index"`
	Payload       json.RawMessage `json:"payload" gorm:"type:jsonb;serializer:json;not null"`
	Attempts      int             `json:"attempts" gorm:"not null;default:0"`
	MaxAttempts   int             `json:"max_attempts" gorm:"not null"`
	NextAttemptAt time.Time       `json:"next_attempt_at" gorm:"not null;index"`
	Status        Status          `json:"status" gorm:"size:16;not null;index"`
	LeaseUntil    *time.Time      `json:"lease_until,omitempty"`
	LastError     string          `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName returns the table name for Task.
func (Task) TableName() string {
	return "retry_tasks"
}

// Remaining returns how many attempts are left.
func (t *Task) Remaining() int {
	if n := t.MaxAttempts - t.Attempts; n > 0 {
		return n
	}
	return 0
}

// DeadLetter is a task that exhausted its attempts. It keeps the payload so
// an operator can inspect or requeue it.
type DeadLetter struct {
	ID         uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	Kind       string          `json:"kind" gorm:"size:64;not null;index"`
	OrderID    string          `json:"order_id" gorm:"size:255;not null;index"`
	Payload    json.RawMessage `json:"payload" gorm:"type:jsonb;serializer:json;not null"`
	Attempts   int             `json:"attempts" gorm:"not null"`
	LastError  string          `json:"last_error" gorm:"type:text"`
	FailedAt   time.Time       `json:"failed_at" gorm:"not null;index"`
	RequeuedAt *time.Time      `json:"requeued_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TableName returns the table name for DeadLetter.
func (DeadLetter) TableName() string {
	return "retry_dead_letters"
}

// DeadLetterFilter narrows ListDeadLetters.
type DeadLetterFilter struct {
	Kind    string
	OrderID string
	Limit   int
	Offset  int
}

// ScheduleRequest describes a failed dispatch to be retried.
type ScheduleRequest struct {
	Kind    string
	OrderID string
	Payload any
	// MaxAttempts overrides the scheduler default when positive. It counts
	// every delivery, including AttemptsMade.
	MaxAttempts int
	// AttemptsMade is the number of deliveries that already failed before
	// the task was scheduled.
	AttemptsMade int
	LastError    string
}
