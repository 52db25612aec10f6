package checkout

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/localtable/localtable-backend/internal/processor"
	"github.com/localtable/localtable-backend/internal/vendoraccounts"
	"github.com/localtable/localtable-backend/pkg/config"
	"github.com/localtable/localtable-backend/pkg/db/models"
	"github.com/localtable/localtable-backend/pkg/enums"
	pkgerrors "github.com/localtable/localtable-backend/pkg/errors"
	"github.com/localtable/localtable-backend/pkg/logger"
	"github.com/localtable/localtable-backend/pkg/metrics"
	"github.com/localtable/localtable-backend/pkg/money"
)

type accountLookup interface {
	FindByVendorID(ctx context.Context, vendorID uuid.UUID) (*models.VendorAccount, error)
}

type sessionCreator interface {
	CreateCheckoutSession(ctx context.Context, params processor.CheckoutSessionParams) (*processor.CheckoutSession, error)
}

type intentWriter interface {
	CreateIntent(ctx context.Context, intent *models.PaymentIntent) error
}

// SessionInput describes one checkout attempt for an order.
type SessionInput struct {
	OrderID     uuid.UUID
	VendorID    uuid.UUID
	Amount      decimal.Decimal
	ServiceFee  decimal.Decimal
	Description string
	SuccessURL  string
	CancelURL   string
}

// SessionResult carries the processor session and the persisted intent.
type SessionResult struct {
	SessionID string
	URL       string
	Intent    *models.PaymentIntent
}

// Service builds destination-payment checkout sessions.
type Service struct {
	accounts  accountLookup
	processor sessionCreator
	intents   intentWriter
	payments  config.PaymentsConfig
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
}

// ServiceParams wires the checkout service dependencies.
type ServiceParams struct {
	Accounts  accountLookup
	Processor sessionCreator
	Intents   intentWriter
	Payments  config.PaymentsConfig
	Metrics   *metrics.PaymentMetrics
	Logger    *logger.Logger
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Accounts == nil {
		return nil, errors.New("vendor account lookup is required")
	}
	if params.Processor == nil {
		return nil, errors.New("processor client is required")
	}
	if params.Intents == nil {
		return nil, errors.New("intent writer is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		accounts:  params.Accounts,
		processor: params.Processor,
		intents:   params.Intents,
		payments:  params.Payments,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// BuildSession verifies vendor readiness, opens the processor session, and
// persists a pending payment intent. A processor failure leaves no local
// state behind, so callers can retry safely.
func (s *Service) BuildSession(ctx context.Context, input SessionInput) (*SessionResult, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())
	ctx = s.logg.WithVendorID(ctx, input.VendorID.String())

	account, err := s.accounts.FindByVendorID(ctx, input.VendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load vendor account")
	}
	if !vendoraccounts.AccountIsReady(account) {
		s.metrics.IncCheckoutSession("vendor_not_ready")
		return nil, pkgerrors.New(pkgerrors.CodeVendorNotReady, "vendor cannot accept payments until onboarding completes")
	}

	amountCents := money.ToMinorUnits(input.Amount)
	feeCents := money.ToMinorUnits(input.ServiceFee)
	if feeCents >= amountCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service fee must be below the order amount")
	}

	currency := s.payments.Currency
	if currency == "" {
		currency = string(enums.CurrencyUSD)
	}

	session, err := s.processor.CreateCheckoutSession(ctx, processor.CheckoutSessionParams{
		ReferenceID:          input.OrderID.String(),
		AmountCents:          amountCents,
		ServiceFeeCents:      feeCents,
		Currency:             currency,
		Description:          input.Description,
		DestinationAccountID: *account.ProviderAccountID,
		SuccessURL:           input.SuccessURL,
		CancelURL:            input.CancelURL,
	})
	if err != nil {
		s.metrics.IncCheckoutSession("processor_error")
		return nil, err
	}

	providerIntentID := session.PaymentIntentID
	if providerIntentID == "" {
		// The processor materializes the intent lazily; the session id
		// identifies the payment until the session-completed webhook swaps
		// in the intent id.
		providerIntentID = session.ID
	}

	intent := &models.PaymentIntent{
		OrderID:          input.OrderID,
		AmountCents:      amountCents,
		ServiceFeeCents:  feeCents,
		Currency:         enums.Currency(currency),
		Status:           enums.PaymentStatusPending,
		ProviderIntentID: &providerIntentID,
	}
	if err := s.intents.CreateIntent(ctx, intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment intent")
	}

	s.metrics.IncCheckoutSession("created")
	s.logg.Info(s.logg.WithField(ctx, "provider_intent_id", providerIntentID), "checkout session created")
	return &SessionResult{
		SessionID: session.ID,
		URL:       session.URL,
		Intent:    intent,
	}, nil
}

func validateInput(input SessionInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.VendorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.ServiceFee.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "service fee cannot be negative")
	}
	if strings.TrimSpace(input.SuccessURL) == "" || strings.TrimSpace(input.CancelURL) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "success and cancel URLs are required")
	}
	return nil
}
