package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/localtable/localtable-backend/internal/processor"
	dbpkg "github.com/localtable/localtable-backend/pkg/db"
	"github.com/localtable/localtable-backend/pkg/db/models"
	"github.com/localtable/localtable-backend/pkg/enums"
	pkgerrors "github.com/localtable/localtable-backend/pkg/errors"
	"github.com/localtable/localtable-backend/pkg/logger"
	"github.com/localtable/localtable-backend/pkg/metrics"
	"github.com/localtable/localtable-backend/pkg/outbox"
	"github.com/localtable/localtable-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type oracleClient interface {
	GetStatus(ctx context.Context, orderID uuid.UUID) (enums.OrderStatus, error)
}

type processorClient interface {
	Capture(ctx context.Context, providerIntentID string) (*processor.Capture, error)
	Cancel(ctx context.Context, providerIntentID string) error
	Refund(ctx context.Context, params processor.RefundParams) (*processor.Refund, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Resolution is the structured outcome of a refund/void request. Policy
// rejections and idempotent replays are answers, not errors.
type Resolution struct {
	Action   enums.RefundAction
	RefundID *uuid.UUID
	Message  string
}

// Service implements capture, cancel, and the refund/void decision flow.
type Service struct {
	tx        txRunner
	repo      Repository
	oracle    oracleClient
	processor processorClient
	outbox    outboxPublisher
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
}

// ServiceParams wires the payment service dependencies.
type ServiceParams struct {
	Tx        txRunner
	Repo      Repository
	Oracle    oracleClient
	Processor processorClient
	Outbox    outboxPublisher
	Metrics   *metrics.PaymentMetrics
	Logger    *logger.Logger
}

// NewService builds the payment service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, errors.New("tx runner is required")
	}
	if params.Repo == nil {
		return nil, errors.New("payments repository is required")
	}
	if params.Oracle == nil {
		return nil, errors.New("order status client is required")
	}
	if params.Processor == nil {
		return nil, errors.New("processor client is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox publisher is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		tx:        params.Tx,
		repo:      params.Repo,
		oracle:    params.Oracle,
		processor: params.Processor,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// errRefundRaced marks a lost insert race on the refund unique constraint.
var errRefundRaced = errors.New("refund already recorded by a concurrent request")

// RefundIdempotencyKey derives the processor idempotency key for an order's
// refund. The key depends only on (orderID, providerIntentID) so retried and
// concurrent calls collapse into one processor-side effect.
func RefundIdempotencyKey(orderID uuid.UUID, providerIntentID string) string {
	return fmt.Sprintf("refund-%s-%s", orderID, providerIntentID)
}

// Resolve decides whether the order's money is refunded, voided, or left
// alone. Every state check happens immediately before the action it guards.
func (s *Service) Resolve(ctx context.Context, orderID uuid.UUID, reason string) (*Resolution, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	intent, err := s.repo.FindLatestWithProviderIntent(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment intent")
	}
	if intent == nil {
		return s.resolution(enums.RefundActionNotFound, nil, "no payment intent with a provider id for this order"), nil
	}

	// Advisory policy gate. Only transport failures fall through to the
	// intent-status checks below; a definitive answer — an order outside the
	// allowed states, or no such order at all — short-circuits with zero
	// processor calls.
	orderStatus, oracleErr := s.oracle.GetStatus(ctx, orderID)
	if oracleErr != nil {
		if coded := pkgerrors.As(oracleErr); coded != nil && coded.Code() == pkgerrors.CodeNotFound {
			return s.resolution(enums.RefundActionNotRefundable, nil, "order unknown to the status oracle"), nil
		}
		s.logg.Warn(s.logg.WithField(ctx, "error", oracleErr.Error()), "order status oracle unavailable, falling back to intent status")
	} else if orderStatus != enums.OrderStatusCompleted && orderStatus != enums.OrderStatusCancelled {
		return s.resolution(enums.RefundActionNotRefundable, nil, fmt.Sprintf("order status %s does not permit refunds", orderStatus)), nil
	}

	if intent.Status == enums.PaymentStatusRefunded {
		refund, err := s.repo.FindRefund(ctx, orderID, intent.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load refund record")
		}
		var refundID *uuid.UUID
		if refund != nil {
			refundID = &refund.ID
		}
		return s.resolution(enums.RefundActionAlreadyRefunded, refundID, "payment already refunded"), nil
	}

	if intent.Status != enums.PaymentStatusCaptured && intent.Status != enums.PaymentStatusAuthorized {
		return s.resolution(enums.RefundActionNotRefundable, nil, fmt.Sprintf("payment status %s is not refundable", intent.Status)), nil
	}

	existing, err := s.repo.FindRefund(ctx, orderID, intent.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load refund record")
	}
	if existing != nil {
		if existing.Status == enums.RefundStatusCompleted {
			return s.resolution(enums.RefundActionRefunded, &existing.ID, "refund already completed"), nil
		}
		return s.resolution(enums.RefundActionRefundPending, &existing.ID, "refund already pending"), nil
	}

	if intent.Status == enums.PaymentStatusAuthorized {
		return s.voidAuthorization(ctx, intent, reason)
	}
	return s.refundCapture(ctx, intent, reason)
}

// voidAuthorization releases an uncaptured hold instead of moving money back.
func (s *Service) voidAuthorization(ctx context.Context, intent *models.PaymentIntent, reason string) (*Resolution, error) {
	if err := s.processor.Cancel(ctx, *intent.ProviderIntentID); err != nil {
		return s.recordProcessorFailure(ctx, intent, err)
	}

	now := time.Now().UTC()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		intent.Status = enums.PaymentStatusCancelled
		intent.UpdatedAt = now
		if err := repo.SaveIntent(ctx, intent); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundIssued,
			AggregateType: enums.AggregateRefund,
			AggregateID:   intent.ID,
			Version:       1,
			Data: payloads.RefundIssuedEvent{
				OrderID:         intent.OrderID,
				PaymentIntentID: intent.ID,
				Action:          enums.RefundActionVoided,
				AmountCents:     intent.AmountCents,
				Reason:          reason,
				IssuedAt:        now,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist void result")
	}

	s.metrics.IncRefundResolution(string(enums.RefundActionVoided))
	s.logg.Info(ctx, "authorization voided")
	return s.resolution(enums.RefundActionVoided, nil, "authorization voided before capture"), nil
}

// refundCapture issues a full refund with transfer and fee reversal.
func (s *Service) refundCapture(ctx context.Context, intent *models.PaymentIntent, reason string) (*Resolution, error) {
	providerRefund, err := s.processor.Refund(ctx, processor.RefundParams{
		ProviderIntentID:     *intent.ProviderIntentID,
		AmountCents:          intent.AmountCents,
		Reason:               reason,
		IdempotencyKey:       RefundIdempotencyKey(intent.OrderID, *intent.ProviderIntentID),
		ReverseTransfer:      true,
		RefundApplicationFee: true,
	})
	if err != nil {
		return s.recordProcessorFailure(ctx, intent, err)
	}

	now := time.Now().UTC()
	refund := &models.Refund{
		PaymentIntentID:  intent.ID,
		OrderID:          intent.OrderID,
		AmountCents:      intent.AmountCents,
		Status:           enums.RefundStatusPending,
		ProviderRefundID: providerRefund.ID,
	}
	if reason != "" {
		refund.Reason = &reason
	}
	if providerRefund.Completed {
		refund.Status = enums.RefundStatusCompleted
		refund.CompletedAt = &now
	}

	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateRefund(ctx, refund); err != nil {
			// The failed insert poisons the transaction, so the winner's row
			// can only be re-read after rollback.
			if dbpkg.IsUniqueViolation(err, "ux_refunds_order_intent") {
				return errRefundRaced
			}
			return err
		}
		if providerRefund.Completed {
			intent.Status = enums.PaymentStatusRefunded
			intent.UpdatedAt = now
			if err := repo.SaveIntent(ctx, intent); err != nil {
				return err
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundIssued,
			AggregateType: enums.AggregateRefund,
			AggregateID:   refund.ID,
			Version:       1,
			Data: payloads.RefundIssuedEvent{
				OrderID:         intent.OrderID,
				PaymentIntentID: intent.ID,
				RefundID:        &refund.ID,
				Action:          refundAction(refund.Status),
				AmountCents:     intent.AmountCents,
				Reason:          reason,
				IssuedAt:        now,
			},
		})
	})
	if errors.Is(txErr, errRefundRaced) {
		winner, err := s.repo.FindRefund(ctx, intent.OrderID, intent.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load raced refund record")
		}
		if winner == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "raced refund record missing after rollback")
		}
		action := refundAction(winner.Status)
		s.metrics.IncRefundResolution(string(action))
		return s.resolution(action, &winner.ID, "refund already recorded by a concurrent request"), nil
	}
	if txErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, txErr, "persist refund result")
	}

	action := refundAction(refund.Status)
	s.metrics.IncRefundResolution(string(action))
	s.logg.Info(s.logg.WithField(ctx, "refund_id", refund.ID.String()), "refund issued")
	return s.resolution(action, &refund.ID, "refund issued"), nil
}

func refundAction(status enums.RefundStatus) enums.RefundAction {
	if status == enums.RefundStatusCompleted {
		return enums.RefundActionRefunded
	}
	return enums.RefundActionRefundPending
}

// recordProcessorFailure stores the failure reason for operators and maps the
// processor error into a refund_failed outcome rather than an exception.
func (s *Service) recordProcessorFailure(ctx context.Context, intent *models.PaymentIntent, cause error) (*Resolution, error) {
	msg := cause.Error()
	intent.FailureReason = &msg
	if err := s.repo.SaveIntent(ctx, intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist processor failure")
	}
	s.metrics.IncRefundResolution(string(enums.RefundActionRefundFailed))
	s.logg.Error(ctx, "processor refund call failed", cause)
	return s.resolution(enums.RefundActionRefundFailed, nil, msg), nil
}

// CancelByOrderID voids the latest intent before capture. It reports true on
// success or when the intent is already cancelled, false when nothing can be
// cancelled.
func (s *Service) CancelByOrderID(ctx context.Context, orderID uuid.UUID) (bool, error) {
	if orderID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	intent, err := s.repo.FindLatestWithProviderIntent(ctx, orderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment intent")
	}
	if intent == nil {
		return false, nil
	}
	switch intent.Status {
	case enums.PaymentStatusCancelled:
		return true, nil
	case enums.PaymentStatusCaptured, enums.PaymentStatusRefunded:
		return false, nil
	}

	if err := s.processor.Cancel(ctx, *intent.ProviderIntentID); err != nil {
		msg := err.Error()
		intent.FailureReason = &msg
		if saveErr := s.repo.SaveIntent(ctx, intent); saveErr != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, saveErr, "persist processor failure")
		}
		return false, err
	}

	intent.Status = enums.PaymentStatusCancelled
	intent.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveIntent(ctx, intent); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist cancellation")
	}
	s.logg.Info(ctx, "payment authorization cancelled")
	return true, nil
}

// CaptureByOrderID settles the most recent capturable intent. A missing
// capturable intent is a normal no-op, not a failure.
func (s *Service) CaptureByOrderID(ctx context.Context, orderID uuid.UUID) (bool, error) {
	if orderID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	intent, err := s.repo.FindLatestCapturable(ctx, orderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment intent")
	}
	if intent == nil {
		return false, nil
	}

	capture, err := s.processor.Capture(ctx, *intent.ProviderIntentID)
	if err != nil {
		msg := err.Error()
		intent.FailureReason = &msg
		if saveErr := s.repo.SaveIntent(ctx, intent); saveErr != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, saveErr, "persist processor failure")
		}
		return false, err
	}

	now := time.Now().UTC()
	intent.Status = enums.PaymentStatusCaptured
	intent.CapturedAt = &now
	intent.UpdatedAt = now
	if capture.TransactionID != "" {
		intent.ProviderTransactionID = &capture.TransactionID
	}
	if err := s.repo.SaveIntent(ctx, intent); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist capture")
	}
	s.logg.Info(ctx, "payment captured")
	return true, nil
}

// ListIntentsByOrderID exposes the order's payment attempts for operators.
func (s *Service) ListIntentsByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentIntent, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	intents, err := s.repo.ListIntentsByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payment intents")
	}
	return intents, nil
}

func (s *Service) resolution(action enums.RefundAction, refundID *uuid.UUID, message string) *Resolution {
	return &Resolution{Action: action, RefundID: refundID, Message: message}
}
