package webhook

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
)

// ProjectionStore persists the per-order payment projection. Writes are
// conditional on the version read, so concurrent writers cannot lose updates.
type ProjectionStore interface {
	Get(ctx context.Context, orderID string) (*PaymentProjection, error)
	// Create inserts a first projection; ErrVersionConflict if one exists.
	Create(ctx context.Context, p *PaymentProjection) error
	// CompareAndSwap stores p if the stored version still equals
	// expectedVersion, and bumps p.Version.
	CompareAndSwap(ctx context.Context, p *PaymentProjection, expectedVersion int64) error
}

type gormProjectionStore struct {
	db *gorm.DB
}

// NewGormProjectionStore creates a gorm-backed projection store.
func NewGormProjectionStore(db *gorm.DB) ProjectionStore {
	return &gormProjectionStore{db: db}
}

func (s *gormProjectionStore) Get(ctx context.Context, orderID string) (*PaymentProjection, error) {
	var p PaymentProjection
	err := s.db.WithContext(ctx).First(&p, "order_id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProjectionNotFound
		}
		return nil, fmt.Errorf("get projection: %w", err)
	}
	return &p, nil
}

func (s *gormProjectionStore) Create(ctx context.Context, p *PaymentProjection) error {
	p.Version = 1
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(p)
	if result.Error != nil {
		return fmt.Errorf("create projection: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (s *gormProjectionStore) CompareAndSwap(ctx context.Context, p *PaymentProjection, expectedVersion int64) error {
	result := s.db.WithContext(ctx).
		Model(&PaymentProjection{}).
		Where("order_id = ? AND version = ?", p.OrderID, expectedVersion).
		Updates(map[string]any{
			"status":         p.Status,
			"provider":       p.Provider,
			"last_event_id":  p.LastEventID,
			"last_event_at":  p.LastEventAt,
			"transaction_id": p.TransactionID,
			"amount":         p.Amount,
			"currency":       p.Currency,
			"version":        expectedVersion + 1,
		})
	if result.Error != nil {
		return fmt.Errorf("update projection: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	p.Version = expectedVersion + 1
	return nil
}
