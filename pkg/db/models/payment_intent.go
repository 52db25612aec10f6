package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/localtable/localtable-backend/pkg/enums"
)

// PaymentIntent is one payment attempt for an order. An order may accumulate
// several rows through retried checkouts; consumers select the most recently
// created row that carries a provider intent id.
type PaymentIntent struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID               uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	AmountCents           int64               `gorm:"column:amount_cents;not null"`
	ServiceFeeCents       int64               `gorm:"column:service_fee_cents;not null;default:0"`
	Currency              enums.Currency      `gorm:"column:currency;not null;default:'usd'"`
	Status                enums.PaymentStatus `gorm:"column:status;type:payment_status_enum;not null;default:'pending'"`
	ProviderIntentID      *string             `gorm:"column:provider_intent_id;index"`
	ProviderTransactionID *string             `gorm:"column:provider_transaction_id"`
	FailureReason         *string             `gorm:"column:failure_reason"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	AuthorizedAt          *time.Time          `gorm:"column:authorized_at"`
	CapturedAt            *time.Time          `gorm:"column:captured_at"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
