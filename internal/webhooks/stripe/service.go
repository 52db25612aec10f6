package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/localtable/localtable-backend/internal/payments"
	"github.com/localtable/localtable-backend/internal/processor"
	"github.com/localtable/localtable-backend/pkg/enums"
	pkgerrors "github.com/localtable/localtable-backend/pkg/errors"
	"github.com/localtable/localtable-backend/pkg/logger"
	"github.com/localtable/localtable-backend/pkg/metrics"
	"github.com/localtable/localtable-backend/pkg/outbox"
	"github.com/localtable/localtable-backend/pkg/outbox/payloads"
)

type accountReconciler interface {
	ApplyProviderAccountUpdate(ctx context.Context, acct *processor.Account) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	PaymentsRepo      payments.Repository
	Accounts          accountReconciler
	Outbox            outboxPublisher
	TransactionRunner txRunner
	Metrics           *metrics.PaymentMetrics
	Logger            *logger.Logger
}

// Service reconciles processor webhook events into local payment state.
// Provider notifications are the source of truth for intent status; local
// rows are overwritten with whatever the processor reports.
type Service struct {
	repo     payments.Repository
	accounts accountReconciler
	outbox   outboxPublisher
	txRunner txRunner
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.PaymentsRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repo required")
	}
	if params.Accounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "account reconciler required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		repo:     params.PaymentsRepo,
		accounts: params.Accounts,
		outbox:   params.Outbox,
		txRunner: params.TransactionRunner,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		return s.applySessionEvent(ctx, event)
	case stripe.EventTypePaymentIntentAmountCapturableUpdated:
		return s.applyIntentEvent(ctx, event, enums.PaymentStatusAuthorized)
	case stripe.EventTypePaymentIntentSucceeded:
		return s.applyIntentEvent(ctx, event, enums.PaymentStatusCaptured)
	case stripe.EventTypePaymentIntentPaymentFailed:
		return s.applyIntentEvent(ctx, event, enums.PaymentStatusFailed)
	case stripe.EventTypePaymentIntentCanceled:
		return s.applyIntentEvent(ctx, event, enums.PaymentStatusCancelled)
	case stripe.EventTypeAccountUpdated:
		return s.applyAccountEvent(ctx, event)
	default:
		s.metrics.IncWebhookEvent(string(event.Type), "ignored")
		return nil
	}
}

func (s *Service) applyIntentEvent(ctx context.Context, event *stripe.Event, status enums.PaymentStatus) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	if pi.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing from event")
	}

	var failureReason *string
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		msg := pi.LastPaymentError.Msg
		failureReason = &msg
	}

	applied, err := s.ApplyProviderUpdate(ctx, pi.ID, status, failureReason)
	if err != nil {
		s.metrics.IncWebhookEvent(string(event.Type), "error")
		return err
	}
	if !applied {
		s.metrics.IncWebhookEvent(string(event.Type), "discarded")
		return nil
	}
	s.metrics.IncWebhookEvent(string(event.Type), "applied")
	return nil
}

func (s *Service) applySessionEvent(ctx context.Context, event *stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
	}
	if sess.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing from event")
	}
	if sess.PaymentIntent == nil || sess.PaymentIntent.ID == "" {
		s.metrics.IncWebhookEvent(string(event.Type), "ignored")
		return nil
	}

	bound, err := s.BindProviderIntent(ctx, sess.ID, sess.PaymentIntent.ID)
	if err != nil {
		s.metrics.IncWebhookEvent(string(event.Type), "error")
		return err
	}
	if !bound {
		s.metrics.IncWebhookEvent(string(event.Type), "discarded")
		return nil
	}
	s.metrics.IncWebhookEvent(string(event.Type), "applied")
	return nil
}

// BindProviderIntent replaces the checkout session id stored at session
// creation with the payment intent id the provider materialized afterwards,
// so later intent events find the row by its real provider id. Returns whether
// a row was rebound; replays and unknown sessions report false.
func (s *Service) BindProviderIntent(ctx context.Context, sessionID, providerIntentID string) (bool, error) {
	intent, err := s.repo.FindIntentByProviderIntentID(ctx, sessionID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load intent for session binding")
	}
	if intent == nil {
		bound, err := s.repo.FindIntentByProviderIntentID(ctx, providerIntentID)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load intent for session binding")
		}
		if bound == nil {
			s.logg.Warn(s.logg.WithField(ctx, "session_id", sessionID), "session completion for unknown checkout discarded")
		}
		return false, nil
	}

	ctx = s.logg.WithOrderID(ctx, intent.OrderID.String())
	intent.ProviderIntentID = &providerIntentID
	intent.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveIntent(ctx, intent); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist provider intent binding")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]interface{}{
		"session_id":         sessionID,
		"provider_intent_id": providerIntentID,
	}), "provider intent bound to checkout session")
	return true, nil
}

// ApplyProviderUpdate overwrites the local intent with the provider-reported
// status. Updates for unknown provider intent ids are logged and dropped so
// the provider does not retry them forever. Returns whether a row was updated.
func (s *Service) ApplyProviderUpdate(ctx context.Context, providerIntentID string, status enums.PaymentStatus, failureReason *string) (bool, error) {
	intent, err := s.repo.FindIntentByProviderIntentID(ctx, providerIntentID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load intent for provider update")
	}
	if intent == nil {
		s.logg.Warn(s.logg.WithField(ctx, "provider_intent_id", providerIntentID), "webhook for unknown payment intent discarded")
		return false, nil
	}

	ctx = s.logg.WithOrderID(ctx, intent.OrderID.String())
	previous := intent.Status

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		now := time.Now().UTC()
		intent.Status = status
		if status == enums.PaymentStatusAuthorized && previous != enums.PaymentStatusAuthorized && intent.AuthorizedAt == nil {
			intent.AuthorizedAt = &now
		}
		if status == enums.PaymentStatusCaptured && intent.CapturedAt == nil {
			intent.CapturedAt = &now
		}
		if failureReason != nil {
			intent.FailureReason = failureReason
		}
		if err := repo.SaveIntent(ctx, intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist provider update")
		}

		switch status {
		case enums.PaymentStatusAuthorized:
			return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentAuthorized,
				AggregateType: enums.AggregatePaymentIntent,
				AggregateID:   intent.ID,
				Data: payloads.PaymentAuthorizedEvent{
					OrderID:          intent.OrderID,
					PaymentIntentID:  intent.ID,
					ProviderIntentID: providerIntentID,
					AmountCents:      intent.AmountCents,
					ServiceFeeCents:  intent.ServiceFeeCents,
					Currency:         string(intent.Currency),
					AuthorizedAt:     now,
				},
			})
		case enums.PaymentStatusFailed:
			reason := ""
			if intent.FailureReason != nil {
				reason = *intent.FailureReason
			}
			return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentFailed,
				AggregateType: enums.AggregatePaymentIntent,
				AggregateID:   intent.ID,
				Data: payloads.PaymentFailedEvent{
					OrderID:         intent.OrderID,
					PaymentIntentID: intent.ID,
					FailureReason:   reason,
					FailedAt:        now,
				},
			})
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]interface{}{
		"provider_intent_id": providerIntentID,
		"from_status":        string(previous),
		"to_status":          string(status),
	}), "provider update applied")
	return true, nil
}

func (s *Service) applyAccountEvent(ctx context.Context, event *stripe.Event) error {
	var acct stripe.Account
	if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode account event")
	}

	applied, err := s.accounts.ApplyProviderAccountUpdate(ctx, &processor.Account{
		ID:               acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	})
	if err != nil {
		s.metrics.IncWebhookEvent(string(event.Type), "error")
		return err
	}
	if !applied {
		s.metrics.IncWebhookEvent(string(event.Type), "discarded")
		return nil
	}
	s.metrics.IncWebhookEvent(string(event.Type), "applied")
	return nil
}
