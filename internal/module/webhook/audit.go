package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuditLog records security and consistency events.
type AuditLog interface {
	Record(ctx context.Context, entry *AuditEntry) error
}

type gormAuditLog struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewGormAuditLog creates an append-only audit log table writer. Entries
// that cannot be stored are written to logger instead.
func NewGormAuditLog(db *gorm.DB, logger *zap.Logger) AuditLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &gormAuditLog{db: db, logger: logger.Named("audit"), now: time.Now}
}

func (a *gormAuditLog) Record(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.now().UTC()
	}

	if err := a.db.WithContext(ctx).Create(entry).Error; err != nil {
		a.logger.Error("audit entry not stored",
			zap.String("kind", string(entry.Kind)),
			zap.String("provider", string(entry.Provider)),
			zap.String("order_id", entry.OrderID),
			zap.String("event_id", entry.EventID),
			zap.String("message", entry.Message),
			zap.Any("details", entry.Details),
			zap.Error(err))
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}
