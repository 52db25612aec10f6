package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/localtable/localtable-backend/api/responses"
	"github.com/localtable/localtable-backend/api/validators"
	paymentsvc "github.com/localtable/localtable-backend/internal/payments"
	"github.com/localtable/localtable-backend/pkg/db/models"
	pkgerrors "github.com/localtable/localtable-backend/pkg/errors"
	"github.com/localtable/localtable-backend/pkg/logger"
)

type paymentsService interface {
	Resolve(ctx context.Context, orderID uuid.UUID, reason string) (*paymentsvc.Resolution, error)
	CaptureByOrderID(ctx context.Context, orderID uuid.UUID) (bool, error)
	CancelByOrderID(ctx context.Context, orderID uuid.UUID) (bool, error)
	ListIntentsByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentIntent, error)
}

// RefundOrder runs the refund/void decision flow for an order.
func RefundOrder(svc paymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		orderID, err := orderIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resolution, err := svc.Resolve(r.Context(), orderID, validators.SanitizeString(payload.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, refundResponse{
			Action:   string(resolution.Action),
			RefundID: resolution.RefundID,
			Message:  resolution.Message,
		})
	}
}

// CaptureOrder settles the most recent capturable intent for an order.
func CaptureOrder(svc paymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		orderID, err := orderIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		captured, err := svc.CaptureByOrderID(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]bool{"captured": captured})
	}
}

// CancelOrderPayment voids the order's payment before capture.
func CancelOrderPayment(svc paymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		orderID, err := orderIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cancelled, err := svc.CancelByOrderID(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]bool{"cancelled": cancelled})
	}
}

// AdminOrderPayments lists every payment attempt recorded for an order.
func AdminOrderPayments(svc paymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		orderID, err := orderIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intents, err := svc.ListIntentsByOrderID(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(intents) > limit {
			intents = intents[:limit]
		}

		out := make([]paymentIntentResponse, 0, len(intents))
		for _, intent := range intents {
			out = append(out, newPaymentIntentResponse(intent))
		}
		responses.WriteSuccess(w, map[string]any{"payment_intents": out})
	}
}

type refundRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type refundResponse struct {
	Action   string     `json:"action"`
	RefundID *uuid.UUID `json:"refund_id,omitempty"`
	Message  string     `json:"message,omitempty"`
}

type paymentIntentResponse struct {
	ID                    uuid.UUID  `json:"id"`
	OrderID               uuid.UUID  `json:"order_id"`
	AmountCents           int64      `json:"amount_cents"`
	ServiceFeeCents       int64      `json:"service_fee_cents"`
	Currency              string     `json:"currency"`
	Status                string     `json:"status"`
	ProviderIntentID      *string    `json:"provider_intent_id,omitempty"`
	ProviderTransactionID *string    `json:"provider_transaction_id,omitempty"`
	FailureReason         *string    `json:"failure_reason,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	AuthorizedAt          *time.Time `json:"authorized_at,omitempty"`
	CapturedAt            *time.Time `json:"captured_at,omitempty"`
}

func newPaymentIntentResponse(intent models.PaymentIntent) paymentIntentResponse {
	return paymentIntentResponse{
		ID:                    intent.ID,
		OrderID:               intent.OrderID,
		AmountCents:           intent.AmountCents,
		ServiceFeeCents:       intent.ServiceFeeCents,
		Currency:              string(intent.Currency),
		Status:                string(intent.Status),
		ProviderIntentID:      intent.ProviderIntentID,
		ProviderTransactionID: intent.ProviderTransactionID,
		FailureReason:         intent.FailureReason,
		CreatedAt:             intent.CreatedAt,
		AuthorizedAt:          intent.AuthorizedAt,
		CapturedAt:            intent.CapturedAt,
	}
}

func orderIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "orderId")
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id must be a UUID")
	}
	return orderID, nil
}
