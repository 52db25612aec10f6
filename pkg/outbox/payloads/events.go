package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/localtable/localtable-backend/pkg/enums"
)

// PaymentAuthorizedEvent signals that a hold was placed on the customer's card.
type PaymentAuthorizedEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	PaymentIntentID  uuid.UUID `json:"payment_intent_id"`
	ProviderIntentID string    `json:"provider_intent_id"`
	AmountCents      int64     `json:"amount_cents"`
	ServiceFeeCents  int64     `json:"service_fee_cents"`
	Currency         string    `json:"currency"`
	AuthorizedAt     time.Time `json:"authorized_at"`
}

// PaymentFailedEvent reports a terminal payment failure for an order.
type PaymentFailedEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	PaymentIntentID uuid.UUID `json:"payment_intent_id"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	FailedAt        time.Time `json:"failed_at"`
}

// RefundIssuedEvent reports that a refund or void was applied to an order.
type RefundIssuedEvent struct {
	OrderID         uuid.UUID          `json:"order_id"`
	PaymentIntentID uuid.UUID          `json:"payment_intent_id"`
	RefundID        *uuid.UUID         `json:"refund_id,omitempty"`
	Action          enums.RefundAction `json:"action"`
	AmountCents     int64              `json:"amount_cents"`
	Reason          string             `json:"reason,omitempty"`
	IssuedAt        time.Time          `json:"issued_at"`
}
