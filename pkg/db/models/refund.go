package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/localtable/localtable-backend/pkg/enums"
)

// Refund records the single effective refund for a payment intent. The unique
// index on (order_id, payment_intent_id) is the duplicate-prevention backstop
// when two resolvers race past the read-side idempotency checks.
type Refund struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentIntentID uuid.UUID          `gorm:"column:payment_intent_id;type:uuid;not null;uniqueIndex:ux_refunds_order_intent"`
	OrderID         uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_refunds_order_intent"`
	AmountCents     int64              `gorm:"column:amount_cents;not null"`
	Reason          *string            `gorm:"column:reason"`
	Status          enums.RefundStatus `gorm:"column:status;type:refund_status_enum;not null;default:'pending'"`
	ProviderRefundID string            `gorm:"column:provider_refund_id;not null"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	CompletedAt     *time.Time         `gorm:"column:completed_at"`
}
