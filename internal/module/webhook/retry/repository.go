package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrTaskNotFound is returned when a task no longer exists, usually
	// because it was cancelled while running.
	ErrTaskNotFound = errors.New("retry task not found")
	// ErrDeadLetterNotFound is returned when a dead letter does not exist.
	ErrDeadLetterNotFound = errors.New("dead letter not found")
	// ErrAlreadyRequeued is returned when a dead letter was requeued before.
	ErrAlreadyRequeued = errors.New("dead letter already requeued")
)

// Repository defines the interface for retry task data access.
type Repository interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id uuid.UUID) (*Task, error)
	ListByOrder(ctx context.Context, orderID string) ([]*Task, error)
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*Task, error)
	Reschedule(ctx context.Context, task *Task) error
	Complete(ctx context.Context, id uuid.UUID) error
	MoveToDeadLetter(ctx context.Context, task *Task, failedAt time.Time) (*DeadLetter, error)
	DeleteByOrder(ctx context.Context, orderID string, kinds ...string) (int64, error)
	RecoverExpiredLeases(ctx context.Context, now time.Time) (int64, error)
	CountPending(ctx context.Context) (int64, error)

	ListDeadLetters(ctx context.Context, filter *DeadLetterFilter) ([]*DeadLetter, error)
	GetDeadLetter(ctx context.Context, id uuid.UUID) (*DeadLetter, error)
	Requeue(ctx context.Context, id uuid.UUID, task *Task, now time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new retry task repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, task *Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create retry task: %w", err)
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	var task Task
	err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("get retry task: %w", err)
	}
	return &task, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID string) ([]*Task, error) {
	var tasks []*Task
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("next_attempt_at ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list retry tasks: %w", err)
	}
	return tasks, nil
}

// ClaimDue leases up to limit due tasks, including running tasks whose
// lease expired because their scheduler died. Each task is claimed with a
// conditional update so two schedulers never run the same attempt.
func (r *repository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*Task, error) {
	var candidates []*Task
	err := r.db.WithContext(ctx).
		Where("(status = ? AND next_attempt_at <= ?) OR (status = ? AND lease_until < ?)",
			StatusPending, now, StatusRunning, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("list due retry tasks: %w", err)
	}

	leaseUntil := now.Add(lease)
	claimed := make([]*Task, 0, len(candidates))
	for _, task := range candidates {
		query := r.db.WithContext(ctx).Model(&Task{})
		if task.Status == StatusRunning {
			query = query.Where("id = ? AND status = ? AND lease_until < ?", task.ID, StatusRunning, now)
		} else {
			query = query.Where("id = ? AND status = ?", task.ID, StatusPending)
		}
		result := query.
			Updates(map[string]any{
				"status":      StatusRunning,
				"lease_until": leaseUntil,
			})
		if result.Error != nil {
			return claimed, fmt.Errorf("claim retry task: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			continue
		}
		task.Status = StatusRunning
		task.LeaseUntil = &leaseUntil
		claimed = append(claimed, task)
	}
	return claimed, nil
}

// Reschedule releases the lease and stores the next attempt time.
func (r *repository) Reschedule(ctx context.Context, task *Task) error {
	result := r.db.WithContext(ctx).
		Model(&Task{}).
		Where("id = ? AND status = ?", task.ID, StatusRunning).
		Updates(map[string]any{
			"status":          StatusPending,
			"attempts":        task.Attempts,
			"next_attempt_at": task.NextAttemptAt,
			"last_error":      task.LastError,
			"lease_until":     nil,
		})
	if result.Error != nil {
		return fmt.Errorf("reschedule retry task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *repository) Complete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&Task{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("delete retry task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// MoveToDeadLetter deletes the task and records it as a dead letter in one
// transaction. A task cancelled concurrently yields ErrTaskNotFound.
func (r *repository) MoveToDeadLetter(ctx context.Context, task *Task, failedAt time.Time) (*DeadLetter, error) {
	dl := &DeadLetter{
		ID:        task.ID,
		Kind:      task.Kind,
		OrderID:   task.OrderID,
		Payload:   task.Payload,
		Attempts:  task.Attempts,
		LastError: task.LastError,
		FailedAt:  failedAt,
		CreatedAt: task.CreatedAt,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&Task{}, "id = ?", task.ID)
		if result.Error != nil {
			return fmt.Errorf("delete retry task: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrTaskNotFound
		}
		if err := tx.Create(dl).Error; err != nil {
			return fmt.Errorf("create dead letter: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dl, nil
}

func (r *repository) DeleteByOrder(ctx context.Context, orderID string, kinds ...string) (int64, error) {
	query := r.db.WithContext(ctx).Where("order_id = ?", orderID)
	if len(kinds) > 0 {
		query = query.Where("kind IN ?", kinds)
	}
	result := query.Delete(&Task{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete retry tasks by order: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// RecoverExpiredLeases returns tasks whose runner died to the pending pool.
func (r *repository) RecoverExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&Task{}).
		Where("status = ? AND lease_until < ?", StatusRunning, now).
		Updates(map[string]any{
			"status":      StatusPending,
			"lease_until": nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("recover expired leases: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *repository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Task{}).Where("status = ?", StatusPending).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count pending retry tasks: %w", err)
	}
	return count, nil
}

func (r *repository) ListDeadLetters(ctx context.Context, filter *DeadLetterFilter) ([]*DeadLetter, error) {
	var letters []*DeadLetter
	query := r.db.WithContext(ctx)

	if filter != nil {
		if filter.Kind != "" {
			query = query.Where("kind = ?", filter.Kind)
		}
		if filter.OrderID != "" {
			query = query.Where("order_id = ?", filter.OrderID)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			query = query.Offset(filter.Offset)
		}
	}

	if err := query.Order("failed_at DESC").Find(&letters).Error; err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return letters, nil
}

func (r *repository) GetDeadLetter(ctx context.Context, id uuid.UUID) (*DeadLetter, error) {
	var dl DeadLetter
	err := r.db.WithContext(ctx).First(&dl, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeadLetterNotFound
		}
		return nil, fmt.Errorf("get dead letter: %w", err)
	}
	return &dl, nil
}

// Requeue creates task from dead letter id and marks the letter requeued.
func (r *repository) Requeue(ctx context.Context, id uuid.UUID, task *Task, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&DeadLetter{}).
			Where("id = ? AND requeued_at IS NULL", id).
			Update("requeued_at", now)
		if result.Error != nil {
			return fmt.Errorf("mark dead letter requeued: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&DeadLetter{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return fmt.Errorf("count dead letters: %w", err)
			}
			if count == 0 {
				return ErrDeadLetterNotFound
			}
			return ErrAlreadyRequeued
		}
		if err := tx.Create(task).Error; err != nil {
			return fmt.Errorf("create retry task: %w", err)
		}
		return nil
	})
}
