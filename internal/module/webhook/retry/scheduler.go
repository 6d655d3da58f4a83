package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tradelane/payhook/internal/shared/metrics"
)

// Executor performs one delivery attempt for a task.
type Executor func(ctx context.Context, task *Task) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The task is dead-lettered
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Config contains scheduler configuration.
type Config struct {
	MaxAttempts    int           `json:"max_attempts" yaml:"max_attempts"`
	BaseDelay      time.Duration `json:"base_delay" yaml:"base_delay"`
	AttemptTimeout time.Duration `json:"attempt_timeout" yaml:"attempt_timeout"`
	PollInterval   time.Duration `json:"poll_interval" yaml:"poll_interval"`
	Lease          time.Duration `json:"lease" yaml:"lease"`
	BatchSize      int           `json:"batch_size" yaml:"batch_size"`
	MaxConcurrent  int           `json:"max_concurrent" yaml:"max_concurrent"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:    3,
		BaseDelay:      10 * time.Second,
		AttemptTimeout: 10 * time.Second,
		PollInterval:   time.Second,
		Lease:          time.Minute,
		BatchSize:      50,
		MaxConcurrent:  10,
	}
}

// Scheduler runs due retry tasks through executors registered per kind.
type Scheduler struct {
	mu sync.RWMutex

	repo      Repository
	executors map[string]Executor
	logger    *zap.Logger
	metrics   *metrics.Metrics
	config    *Config
	now       func() time.Time

	semaphore chan struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a new retry scheduler. m may be nil.
func NewScheduler(repo Repository, logger *zap.Logger, m *metrics.Metrics, config *Config) *Scheduler {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.Lease <= 0 {
		config.Lease = defaults.Lease
	}
	// A lease must outlive one attempt; expired leases are reclaimed by any instance.
	if config.AttemptTimeout > 0 && config.Lease <= config.AttemptTimeout {
		config.Lease = 2 * config.AttemptTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		repo:      repo,
		executors: make(map[string]Executor),
		logger:    logger.Named("retry-scheduler"),
		metrics:   m,
		config:    config,
		now:       time.Now,
		semaphore: make(chan struct{}, config.MaxConcurrent),
		stopCh:    make(chan struct{}),
	}
}

// SetClock replaces the scheduler's time source.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Scheduler) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now().UTC()
}

// RegisterExecutor registers the executor for a task kind.
func (s *Scheduler) RegisterExecutor(kind string, executor Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executors[kind] = executor
	s.logger.Debug("registered executor", zap.String("kind", kind))
}

// MaxAttempts returns the default attempt budget.
func (s *Scheduler) MaxAttempts() int {
	return s.config.MaxAttempts
}

// Delay returns the wait after the given failed attempt: attempt x base delay.
func (s *Scheduler) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * s.config.BaseDelay
}

// Schedule persists a failed dispatch. The next attempt is due
// Delay(req.AttemptsMade) from now. A request whose budget is already spent
// goes straight to the dead letters.
func (s *Scheduler) Schedule(ctx context.Context, req ScheduleRequest) (*Task, error) {
	payload, err := encodePayload(req.Payload)
	if err != nil {
		return nil, err
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.config.MaxAttempts
	}

	now := s.clock()
	task := &Task{
		ID:            uuid.New(),
		Kind:          req.Kind,
		OrderID:       req.OrderID,
		Payload:       payload,
		Attempts:      req.AttemptsMade,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: now.Add(s.Delay(req.AttemptsMade)),
		Status:        StatusPending,
		LastError:     req.LastError,
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, err
	}
	if task.Attempts >= task.MaxAttempts {
		s.deadLetter(ctx, task)
		return task, nil
	}

	s.logger.Info("retry scheduled",
		zap.String("task_id", task.ID.String()),
		zap.String("kind", task.Kind),
		zap.String("order_id", task.OrderID),
		zap.Int("remaining", task.Remaining()),
		zap.Time("next_attempt_at", task.NextAttemptAt))
	s.refreshPending(ctx)

	return task, nil
}

func encodePayload(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	case nil:
		return json.RawMessage("{}"), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode retry payload: %w", err)
	}
	return data, nil
}

// Start recovers expired leases and begins polling for due tasks.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("starting retry scheduler",
		zap.Int("max_attempts", s.config.MaxAttempts),
		zap.Duration("base_delay", s.config.BaseDelay),
		zap.Duration("poll_interval", s.config.PollInterval))

	recovered, err := s.repo.RecoverExpiredLeases(ctx, s.clock())
	if err != nil {
		return fmt.Errorf("recover expired leases: %w", err)
	}
	if recovered > 0 {
		s.logger.Info("recovered retry tasks with expired leases", zap.Int64("count", recovered))
	}
	s.refreshPending(ctx)

	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.config.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				if _, err := s.RunDue(runCtx); err != nil {
					s.logger.Error("run due retry tasks", zap.Error(err))
				}
			}
		}
	}()

	return nil
}

// Stop stops polling and waits for in-flight attempts.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping retry scheduler")
		close(s.stopCh)
	})
	s.wg.Wait()
	s.logger.Info("retry scheduler stopped")
}

// RunDue claims the tasks due now and runs them, returning how many ran.
func (s *Scheduler) RunDue(ctx context.Context) (int, error) {
	tasks, err := s.repo.ClaimDue(ctx, s.clock(), s.config.Lease, s.config.BatchSize)
	if err != nil && len(tasks) == 0 {
		return 0, err
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		select {
		case <-ctx.Done():
			wg.Wait()
			return 0, ctx.Err()
		case s.semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(task *Task) {
			defer wg.Done()
			defer func() { <-s.semaphore }()
			s.runTask(ctx, task)
		}(task)
	}
	wg.Wait()

	if len(tasks) > 0 {
		s.refreshPending(ctx)
	}
	return len(tasks), err
}

func (s *Scheduler) runTask(ctx context.Context, task *Task) {
	s.mu.RLock()
	executor, ok := s.executors[task.Kind]
	s.mu.RUnlock()

	task.Attempts++

	var err error
	if !ok {
		err = Permanent(fmt.Errorf("no executor registered for kind %q", task.Kind))
	} else {
		attemptCtx := ctx
		if s.config.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, s.config.AttemptTimeout)
			defer cancel()
		}
		err = executor(attemptCtx, task)
	}

	s.metrics.RecordRetryAttempt(task.Kind, err == nil)

	if err == nil {
		if cerr := s.repo.Complete(ctx, task.ID); cerr != nil && !errors.Is(cerr, ErrTaskNotFound) {
			s.logger.Error("failed to delete completed retry task",
				zap.String("task_id", task.ID.String()),
				zap.Error(cerr))
			return
		}
		s.logger.Info("retry succeeded",
			zap.String("task_id", task.ID.String()),
			zap.String("kind", task.Kind),
			zap.String("order_id", task.OrderID),
			zap.Int("attempt", task.Attempts))
		return
	}

	task.LastError = err.Error()
	if task.Attempts >= task.MaxAttempts || IsPermanent(err) {
		s.deadLetter(ctx, task)
		return
	}

	task.NextAttemptAt = s.clock().Add(s.Delay(task.Attempts))
	if rerr := s.repo.Reschedule(ctx, task); rerr != nil {
		if errors.Is(rerr, ErrTaskNotFound) {
			s.logger.Debug("retry task cancelled while running", zap.String("task_id", task.ID.String()))
			return
		}
		s.logger.Error("failed to reschedule retry task",
			zap.String("task_id", task.ID.String()),
			zap.Error(rerr))
		return
	}

	s.logger.Warn("retry attempt failed",
		zap.String("task_id", task.ID.String()),
		zap.String("kind", task.Kind),
		zap.String("order_id", task.OrderID),
		zap.Int("attempt", task.Attempts),
		zap.Int("remaining", task.Remaining()),
		zap.Time("next_attempt_at", task.NextAttemptAt),
		zap.Error(err))
}

func (s *Scheduler) deadLetter(ctx context.Context, task *Task) {
	dl, err := s.repo.MoveToDeadLetter(ctx, task, s.clock())
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			s.logger.Debug("retry task cancelled while running", zap.String("task_id", task.ID.String()))
			return
		}
		// The lease expires and the task is picked up again.
		s.logger.Error("failed to dead-letter retry task",
			zap.String("task_id", task.ID.String()),
			zap.Error(err))
		return
	}

	s.metrics.RecordDeadLetter(dl.Kind)
	s.logger.Error("retry task exhausted, moved to dead letters",
		zap.String("task_id", dl.ID.String()),
		zap.String("kind", dl.Kind),
		zap.String("order_id", dl.OrderID),
		zap.Int("attempts", dl.Attempts),
		zap.String("last_error", dl.LastError))
}

// CancelByOrder drops the retry tasks of an order, optionally only those of
// the given kinds.
func (s *Scheduler) CancelByOrder(ctx context.Context, orderID string, kinds ...string) (int64, error) {
	n, err := s.repo.DeleteByOrder(ctx, orderID, kinds...)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("retry tasks cancelled",
			zap.String("order_id", orderID),
			zap.Strings("kinds", kinds),
			zap.Int64("count", n))
		s.refreshPending(ctx)
	}
	return n, nil
}

// Pending lists the retry tasks of an order.
func (s *Scheduler) Pending(ctx context.Context, orderID string) ([]*Task, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

// ListDeadLetters lists exhausted tasks.
func (s *Scheduler) ListDeadLetters(ctx context.Context, filter *DeadLetterFilter) ([]*DeadLetter, error) {
	return s.repo.ListDeadLetters(ctx, filter)
}

// Requeue turns a dead letter back into a task due immediately, with a
// fresh attempt budget.
func (s *Scheduler) Requeue(ctx context.Context, id uuid.UUID) (*Task, error) {
	dl, err := s.repo.GetDeadLetter(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	task := &Task{
		ID:            uuid.New(),
		Kind:          dl.Kind,
		OrderID:       dl.OrderID,
		Payload:       dl.Payload,
		MaxAttempts:   s.config.MaxAttempts,
		NextAttemptAt: now,
		Status:        StatusPending,
		LastError:     dl.LastError,
	}
	if err := s.repo.Requeue(ctx, id, task, now); err != nil {
		return nil, err
	}

	s.logger.Info("dead letter requeued",
		zap.String("dead_letter_id", id.String()),
		zap.String("task_id", task.ID.String()),
		zap.String("kind", task.Kind),
		zap.String("order_id", task.OrderID))
	s.refreshPending(ctx)

	return task, nil
}

func (s *Scheduler) refreshPending(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	n, err := s.repo.CountPending(ctx)
	if err != nil {
		s.logger.Debug("count pending retry tasks", zap.Error(err))
		return
	}
	s.metrics.SetRetryPending(n)
}
