package webhook

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
)

// IdempotencyStore records which provider events were already processed.
// CheckAndMark is atomic: of any number of concurrent callers with the same
// key, exactly one observes firstTime.
type IdempotencyStore interface {
	CheckAndMark(ctx context.Context, p domain.Provider, eventID string, status domain.Status) (firstTime bool, err error)
	// Release forgets a key so a provider redelivery is processed again.
	Release(ctx context.Context, p domain.Provider, eventID string) error
}

type gormIdempotencyStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormIdempotencyStore creates a PostgreSQL-backed store.
func NewGormIdempotencyStore(db *gorm.DB) IdempotencyStore {
	return &gormIdempotencyStore{db: db, now: time.Now}
}

func (s *gormIdempotencyStore) CheckAndMark(ctx context.Context, p domain.Provider, eventID string, status domain.Status) (bool, error) {
	rec := &IdempotencyRecord{
		Provider:        p,
		ProviderEventID: eventID,
		AppliedStatus:   status,
		FirstSeenAt:     s.now().UTC(),
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if result.Error != nil {
		return false, fmt.Errorf("mark idempotency key %s: %w", domain.IdempotencyKey(p, eventID), result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *gormIdempotencyStore) Release(ctx context.Context, p domain.Provider, eventID string) error {
	err := s.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", p, eventID).
		Delete(&IdempotencyRecord{}).Error
	if err != nil {
		return fmt.Errorf("release idempotency key %s: %w", domain.IdempotencyKey(p, eventID), err)
	}
	return nil
}
