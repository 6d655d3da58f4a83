package webhook

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
)

// IdempotencyRecord marks a (provider, providerEventId) pair as processed.
type IdempotencyRecord struct {
	Provider        domain.Provider `gorm:"primaryKey;size:32"`
	ProviderEventID string          `gorm:"primaryKey;size:255"`
	AppliedStatus   domain.Status   `gorm:"size:16;not null"`
	FirstSeenAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for IdempotencyRecord.
func (IdempotencyRecord) TableName() string {
	return "webhook_idempotency_keys"
}

// PaymentProjection is the current canonical status of one order.
type PaymentProjection struct {
	OrderID       string          `json:"orderId" gorm:"primaryKey;size:255"`
	Status        domain.Status   `json:"status" gorm:"size:16;not null"`
	Provider      domain.Provider `json:"provider" gorm:"size:32;not null"`
	LastEventID   string          `json:"lastEventId" gorm:"size:255"`
	LastEventAt   time.Time       `json:"lastEventAt" gorm:"not null"`
	TransactionID string          `json:"transactionId,omitempty" gorm:"size:255"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:numeric(20,6);not null;default:0"`
	Currency      string          `json:"currency" gorm:"size:3"`
	Version       int64           `json:"version" gorm:"not null;default:0"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// TableName returns the table name for PaymentProjection.
func (PaymentProjection) TableName() string {
	return "payment_projections"
}

// AuditKind classifies audit entries.
type AuditKind string

const (
	AuditKindSecurity    AuditKind = "security"
	AuditKindConsistency AuditKind = "consistency"
	AuditKindDispatch    AuditKind = "dispatch"
	AuditKindOperator    AuditKind = "operator"
)

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	ID        uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	Kind      AuditKind         `json:"kind" gorm:"size:16;not null;index"`
	Provider  domain.Provider   `json:"provider" gorm:"size:32;index"`
	OrderID   string            `json:"orderId,omitempty" gorm:"size:255;index"`
	EventID   string            `json:"eventId,omitempty" gorm:"size:255"`
	Message   string            `json:"message" gorm:"type:text;not null"`
	Details   map[string]string `json:"details,omitempty" gorm:"type:jsonb;serializer:json"`
	CreatedAt time.Time         `json:"createdAt" gorm:"not null;index"`
}

// TableName returns the table name for AuditEntry.
func (AuditEntry) TableName() string {
	return "webhook_audit_log"
}
