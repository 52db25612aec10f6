package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/localtable/localtable-backend/api/responses"
	"github.com/localtable/localtable-backend/api/validators"
	checkoutsvc "github.com/localtable/localtable-backend/internal/checkout"
	pkgerrors "github.com/localtable/localtable-backend/pkg/errors"
	"github.com/localtable/localtable-backend/pkg/logger"
)

type checkoutService interface {
	BuildSession(ctx context.Context, input checkoutsvc.SessionInput) (*checkoutsvc.SessionResult, error)
}

// Checkout opens a destination-payment session for an order.
func Checkout(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.BuildSession(r.Context(), checkoutsvc.SessionInput{
			OrderID:     payload.OrderID,
			VendorID:    payload.VendorID,
			Amount:      payload.Amount,
			ServiceFee:  payload.ServiceFee,
			Description: validators.SanitizeString(payload.Description, 200),
			SuccessURL:  payload.SuccessURL,
			CancelURL:   payload.CancelURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			SessionID:        result.SessionID,
			CheckoutURL:      result.URL,
			PaymentIntentID:  result.Intent.ID,
			ProviderIntentID: deref(result.Intent.ProviderIntentID),
			AmountCents:      result.Intent.AmountCents,
			ServiceFeeCents:  result.Intent.ServiceFeeCents,
			Currency:         string(result.Intent.Currency),
			Status:           string(result.Intent.Status),
		})
	}
}

type checkoutRequest struct {
	OrderID     uuid.UUID       `json:"order_id" validate:"required"`
	VendorID    uuid.UUID       `json:"vendor_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	ServiceFee  decimal.Decimal `json:"service_fee"`
	Description string          `json:"description,omitempty"`
	SuccessURL  string          `json:"success_url" validate:"required,url"`
	CancelURL   string          `json:"cancel_url" validate:"required,url"`
}

type checkoutResponse struct {
	SessionID        string    `json:"session_id"`
	CheckoutURL      string    `json:"checkout_url"`
	PaymentIntentID  uuid.UUID `json:"payment_intent_id"`
	ProviderIntentID string    `json:"provider_intent_id"`
	AmountCents      int64     `json:"amount_cents"`
	ServiceFeeCents  int64     `json:"service_fee_cents"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
