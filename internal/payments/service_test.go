package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/localtable/localtable-backend/internal/processor"
	"github.com/localtable/localtable-backend/pkg/db/models"
	"github.com/localtable/localtable-backend/pkg/enums"
	pkgerrors "github.com/localtable/localtable-backend/pkg/errors"
	"github.com/localtable/localtable-backend/pkg/logger"
	"github.com/localtable/localtable-backend/pkg/outbox"
)

func TestResolveNotFound(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.Resolve(context.Background(), uuid.New(), "customer request")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Action != enums.RefundActionNotFound {
		t.Fatalf("expected not_found, got %s", res.Action)
	}
	if env.proc.refundCalls != 0 || env.proc.cancelCalls != 0 {
		t.Fatalf("no processor calls expected")
	}
}

func TestResolvePolicyGateIssuesZeroProcessorCalls(t *testing.T) {
	env := newTestEnv(t)
	intent := env.seedIntent(enums.PaymentStatusCaptured)
	env.oracle.status = enums.OrderStatusPreparing

	res, err := env.svc.Resolve(context.Background(), intent.OrderID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Action != enums.RefundActionNotRefundable {
		t.Fatalf("expected not_refundable, got %s", res.Action)
	}
	if env.proc.refundCalls != 0 || env.proc.cancelCalls != 0 {
		t.Fatalf("policy rejection must not reach the processor")
	}
}

func TestResolveEligibilityGateBeatsOracle(t *testing.T) {
	env := newTestEnv(t)
	intent := env.seedIntent(enums.PaymentStatusPending)
	env.oracle.status = enums.OrderStatusCompleted

	res, err := env.svc.Resolve(context.Background(), intent.OrderID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Action != enums.RefundActionNotRefundable {
		t.Fatalf("expected not_refundable for pending intent, got %s", res.Action)
	}
	if env.proc.refundCalls != 0 {
		t.Fatalf("ineligible intent must not reach the processor")
	}
}

func TestResolveIdempotentRefund(t *testing.T) {
	env := newTestEnv(t)
	intent := env.seedIntent(enums.PaymentStatusCaptured)
	env.oracle.status = enums.OrderStatusCancelled
	env.proc.refund = &processor.Refund{ID: "re_1", Completed: true}

	first, err := env.svc.Resolve(context.Background(), intent.OrderID, "order cancelled")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Action != enums.RefundActionRefunded {
		t.Fatalf("expected refunded, got %s", first.Action)
	}
	if first.RefundID == nil {
		t.Fatalf("expected refund id")
	}
	if len(env.repo.refunds) != 1 {
		t.Fatalf("expected one refund record, got %d", len(env.repo.refunds))
	}
	if env.repo.intents[0].Status != enums.PaymentStatusRefunded {
		t.Fatalf("intent not marked refunded")
	}

	second, err := env.svc.Resolve(context.Background(), intent.OrderID, "order cancelled")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Action != enums.RefundActionAlreadyRefunded {
		t.Fatalf("expected already_refunded, got %s", second.Action)
	}
	if second.RefundID == nil || *second.RefundID != *first.RefundID {
		t.Fatalf("expected the same refund id on replay")
	}
	if env.proc.refundCalls != 1 {
		t.Fatalf("expected exactly one processor refund, got %d", env.proc.refundCalls)
	}
	if len(env.repo.refunds) != 1 {
		t.Fatalf("replay must not create a second refund record")
	}
	wantKey := RefundIdempotencyKey(intent.OrderID, *intent.ProviderIntentID)
	if env.proc.lastKey != wantKey {
		t.Fatalf("unexpected idempotency key %q, want %q", env.proc.lastKey, wantKey)
	}
}

func TestResolveExistingPendingRefundShortCircuits(t *testing.T) {
	env := newTestEnv(t)
	intent := env.seedIntent(enums.PaymentStatusCaptured)
	env.oracle.status = enums.OrderStatusCompleted
	existing := models.Refund{
		ID:              uuid.New(),
		PaymentIntentID: intent.ID,
		OrderID:         intent.OrderID,
		AmountCents:     intent.AmountCents,
		Status:          enums.RefundStatusPending,
	}
	env.repo.refunds = append(env.repo.refunds, existing)

	res, err := env.svc.Resolve(context.Background(), intent.OrderID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Action != enums.RefundActionRefundPending {
		t.Fatalf("expected refund_pending, got %s", res.Action)
	}
	if res.RefundID == nil || *res.RefundID != existing.ID {
		t.Fatalf("expected existing refund id")
	}
	if env.proc.refundCalls != 0 {
		t.Fatalf("existing refund must not trigger a new processor call")
	}
}

func TestResolveOracleUnreachableFallsBackToIntentStatus(t *testing.T) {
	env := newTestEnv(t)
	intent := env.seedIntent(enums.PaymentStatusCaptured)
	env.oracle.err = errors.New("dial tcp: connection refused")
	env.proc.refund = &processor.Refund{ID: "re_2", Completed: true}

	res, err := env.svc.Resolve(context.Background(), intent.OrderID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Action != enums.RefundActionRefunded {
		t.Fatalf("expected refund despite oracle outage, got %s", res.Action)
	}
	if env.proc.refundCalls != 1 {
		t.Fatalf("expected one processor refund, got %d", env.proc.refundCalls)
	}
}

func TestResolveConcurrentRaceCollapsesToOneRefund(t *testing.T) {
	env := newTestEnv(t)
	intent := env.seedIntent(enums.PaymentStatusCaptured)
	env.oracle.status = enums.OrderStatusCompleted
	env.proc.refund = &processor.Refund{ID: "re_3", Completed: true}

	// Simulate a second resolver whose read-side checks ran before the first
	// writer committed: its reads see no refund, its insert hits the unique
	// constraint.
	winner := models.Refund{
		ID:              uuid.New(),
		PaymentIntentID: intent.ID,
		OrderID:         intent.OrderID,
		AmountCents:     intent.AmountCents,
		Status:          enums.RefundStatusCompleted,
	}
	env.repo.hiddenRefund = &winner

	res, err := env.svc.Resolve(context.Background(), intent.OrderID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Action != enums.RefundActionRefunded {
		t.Fatalf("expected refunded from the surviving record, got %s", res.Action)
	}
	if res.RefundID == nil || *res.RefundID != winner.ID {
		t.Fatalf("expected the winner's refund id")
	}
	if len(env.repo.refunds) != 1 {
		t.Fatalf("race must leave exactly one refund record, got %d", len(env.repo.refunds))
	}
}

func TestResolveOracleUnknownOrderIsNotRefundable(t *testing.T) {
	env := newTestEnv(t)
	intent := env.seedIntent(enums.PaymentStatusCaptured)
	env.oracle.err = pkgerrors.New(pkgerrors.CodeNotFound, "order not found")

	res, err := env.svc.Resolve(context.Background(), intent.OrderID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Action != enums.RefundActionNotRefundable {
		t.Fatalf("unknown order must not fail open, got %s", res.Action)
	}
	if env.proc.refundCalls != 0 || env.proc.cancelCalls != 0 {
		t.Fatalf("unknown order must not reach the processor")
	}
}

func TestResolveRacedRefundReReadsAfterRollback(t *testing.T) {
	env := newTestEnv(t)
	intent := env.seedIntent(enums.PaymentStatusCaptured)
	env.oracle.status = enums.OrderStatusCompleted
	env.proc.refund = &processor.Refund{ID: "re_4", Completed: true}

	// Model Postgres transaction scoping: after the insert hits the unique
	// constraint, every later statement in the same transaction fails until
	// rollback. The winner's row must be re-read outside the transaction.
	winner := models.Refund{
		ID:              uuid.New(),
		PaymentIntentID: intent.ID,
		OrderID:         intent.OrderID,
		AmountCents:     intent.AmountCents,
		Status:          enums.RefundStatusPending,
	}
	env.repo.hiddenRefund = &winner
	env.repo.txAborts = true

	res, err := env.svc.Resolve(context.Background(), intent.OrderID, "")
	if err != nil {
		t.Fatalf("raced caller must get the winner's resolution: %v", err)
	}
	if res.Action != enums.RefundActionRefundPending {
		t.Fatalf("expected refund_pending from the surviving record, got %s", res.Action)
	}
	if res.RefundID == nil || *res.RefundID != winner.ID {
		t.Fatalf("expected the winner's refund id")
	}
	if len(env.repo.refunds) != 1 {
		t.Fatalf("race must leave exactly one refund record, got %d", len(env.repo.refunds))
	}
}

func TestResolveVoidsAuthorizedIntent(t *testing.T) {
	env := newTestEnv(t)
	intent := env.seedIntent(enums.PaymentStatusAuthorized)
	env.oracle.status = enums.OrderStatusCancelled

	res, err := env.svc.Resolve(context.Background(), intent.OrderID, "buyer cancelled")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Action != enums.RefundActionVoided {
		t.Fatalf("expected voided, got %s", res.Action)
	}
	if env.proc.cancelCalls != 1 || env.proc.refundCalls != 0 {
		t.Fatalf("void must cancel the hold, not refund")
	}
	if env.repo.intents[0].Status != enums.PaymentStatusCancelled {
		t.Fatalf("intent not cancelled after void")
	}
	if len(env.repo.refunds) != 0 {
		t.Fatalf("void must not create a refund record")
	}
}

func TestResolveProcessorFailurePersistsReason(t *testing.T) {
	env := newTestEnv(t)
	intent := env.seedIntent(enums.PaymentStatusCaptured)
	env.oracle.status = enums.OrderStatusCompleted
	env.proc.refundErr = errors.New("processor unavailable")

	res, err := env.svc.Resolve(context.Background(), intent.OrderID, "")
	if err != nil {
		t.Fatalf("expected structured outcome, got error %v", err)
	}
	if res.Action != enums.RefundActionRefundFailed {
		t.Fatalf("expected refund_failed, got %s", res.Action)
	}
	if env.repo.intents[0].FailureReason == nil || *env.repo.intents[0].FailureReason == "" {
		t.Fatalf("failure reason not persisted")
	}
	if len(env.repo.refunds) != 0 {
		t.Fatalf("failed refund must not create a refund record")
	}
}

func TestCancelByOrderIDVoidsAuthorization(t *testing.T) {
	env := newTestEnv(t)
	intent := env.seedIntent(enums.PaymentStatusAuthorized)

	ok, err := env.svc.CancelByOrderID(context.Background(), intent.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected cancellation to succeed")
	}
	if env.repo.intents[0].Status != enums.PaymentStatusCancelled {
		t.Fatalf("intent not cancelled")
	}
}

func TestCancelByOrderIDIdempotentWhenCancelled(t *testing.T) {
	env := newTestEnv(t)
	intent := env.seedIntent(enums.PaymentStatusCancelled)

	ok, err := env.svc.CancelByOrderID(context.Background(), intent.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("cancelled intent should report true")
	}
	if env.proc.cancelCalls != 0 {
		t.Fatalf("already cancelled must not call the processor")
	}
}

func TestCancelByOrderIDRejectsCaptured(t *testing.T) {
	env := newTestEnv(t)
	intent := env.seedIntent(enums.PaymentStatusCaptured)

	ok, err := env.svc.CancelByOrderID(context.Background(), intent.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("captured intent must not be cancellable")
	}
	if env.repo.intents[0].Status != enums.PaymentStatusCaptured {
		t.Fatalf("status must remain captured")
	}
	if env.proc.cancelCalls != 0 {
		t.Fatalf("no processor call expected")
	}
}

func TestCaptureByOrderIDNoCapturableIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	intent := env.seedIntent(enums.PaymentStatusRefunded)

	ok, err := env.svc.CaptureByOrderID(context.Background(), intent.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected no-op capture")
	}
	if env.proc.captureCalls != 0 {
		t.Fatalf("no processor call expected")
	}
}

func TestCaptureByOrderIDSettlesIntent(t *testing.T) {
	env := newTestEnv(t)
	intent := env.seedIntent(enums.PaymentStatusAuthorized)
	env.proc.capture = &processor.Capture{TransactionID: "ch_1"}

	ok, err := env.svc.CaptureByOrderID(context.Background(), intent.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected capture to succeed")
	}
	got := env.repo.intents[0]
	if got.Status != enums.PaymentStatusCaptured || got.CapturedAt == nil {
		t.Fatalf("capture not persisted: %+v", got)
	}
	if got.ProviderTransactionID == nil || *got.ProviderTransactionID != "ch_1" {
		t.Fatalf("transaction id not persisted")
	}
}

type testEnv struct {
	svc    *Service
	repo   *stubPaymentsRepo
	oracle *stubOracle
	proc   *stubProcessor
	events *stubOutbox
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := &stubPaymentsRepo{}
	oracle := &stubOracle{status: enums.OrderStatusCompleted}
	proc := &stubProcessor{refund: &processor.Refund{ID: "re_default", Completed: true}}
	events := &stubOutbox{}
	svc, err := NewService(ServiceParams{
		Tx:        stubTxRunner{},
		Repo:      repo,
		Oracle:    oracle,
		Processor: proc,
		Outbox:    events,
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &testEnv{svc: svc, repo: repo, oracle: oracle, proc: proc, events: events}
}

func (e *testEnv) seedIntent(status enums.PaymentStatus) models.PaymentIntent {
	providerID := "pi_" + uuid.NewString()[:8]
	intent := models.PaymentIntent{
		ID:               uuid.New(),
		OrderID:          uuid.New(),
		AmountCents:      2500,
		ServiceFeeCents:  250,
		Currency:         enums.CurrencyUSD,
		Status:           status,
		ProviderIntentID: &providerID,
	}
	e.repo.intents = append(e.repo.intents, intent)
	return intent
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubPaymentsRepo struct {
	intents []models.PaymentIntent
	refunds []models.Refund

	// hiddenRefund simulates a concurrent writer: reads miss it, but any
	// insert for the same pair fails with a unique violation, after which the
	// record becomes visible.
	hiddenRefund *models.Refund

	// txAborts makes transaction-scoped reads fail after a failed statement,
	// like a real Postgres transaction does.
	txAborts bool
}

func (r *stubPaymentsRepo) WithTx(tx *gorm.DB) Repository {
	if r.txAborts {
		return &stubTxRepo{stubPaymentsRepo: r}
	}
	return r
}

type stubTxRepo struct {
	*stubPaymentsRepo
	aborted bool
}

func (r *stubTxRepo) CreateRefund(ctx context.Context, refund *models.Refund) error {
	err := r.stubPaymentsRepo.CreateRefund(ctx, refund)
	if err != nil {
		r.aborted = true
	}
	return err
}

func (r *stubTxRepo) FindRefund(ctx context.Context, orderID, paymentIntentID uuid.UUID) (*models.Refund, error) {
	if r.aborted {
		return nil, errors.New("ERROR: current transaction is aborted, commands ignored until end of transaction block (SQLSTATE 25P02)")
	}
	return r.stubPaymentsRepo.FindRefund(ctx, orderID, paymentIntentID)
}

func (r *stubTxRepo) SaveIntent(ctx context.Context, intent *models.PaymentIntent) error {
	if r.aborted {
		return errors.New("ERROR: current transaction is aborted, commands ignored until end of transaction block (SQLSTATE 25P02)")
	}
	return r.stubPaymentsRepo.SaveIntent(ctx, intent)
}

func (r *stubPaymentsRepo) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	r.intents = append(r.intents, *intent)
	return nil
}

func (r *stubPaymentsRepo) SaveIntent(ctx context.Context, intent *models.PaymentIntent) error {
	for i := range r.intents {
		if r.intents[i].ID == intent.ID {
			r.intents[i] = *intent
			return nil
		}
	}
	r.intents = append(r.intents, *intent)
	return nil
}

func (r *stubPaymentsRepo) FindIntentByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	for i := range r.intents {
		if r.intents[i].ID == id {
			found := r.intents[i]
			return &found, nil
		}
	}
	return nil, nil
}

func (r *stubPaymentsRepo) FindLatestWithProviderIntent(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error) {
	for i := len(r.intents) - 1; i >= 0; i-- {
		if r.intents[i].OrderID == orderID && r.intents[i].ProviderIntentID != nil {
			found := r.intents[i]
			return &found, nil
		}
	}
	return nil, nil
}

func (r *stubPaymentsRepo) FindLatestCapturable(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error) {
	for i := len(r.intents) - 1; i >= 0; i-- {
		intent := r.intents[i]
		if intent.OrderID != orderID || intent.ProviderIntentID == nil {
			continue
		}
		if intent.Status == enums.PaymentStatusPending || intent.Status == enums.PaymentStatusAuthorized {
			found := intent
			return &found, nil
		}
	}
	return nil, nil
}

func (r *stubPaymentsRepo) FindIntentByProviderIntentID(ctx context.Context, providerIntentID string) (*models.PaymentIntent, error) {
	for i := range r.intents {
		if r.intents[i].ProviderIntentID != nil && *r.intents[i].ProviderIntentID == providerIntentID {
			found := r.intents[i]
			return &found, nil
		}
	}
	return nil, nil
}

func (r *stubPaymentsRepo) ListIntentsByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentIntent, error) {
	var out []models.PaymentIntent
	for i := range r.intents {
		if r.intents[i].OrderID == orderID {
			out = append(out, r.intents[i])
		}
	}
	return out, nil
}

func (r *stubPaymentsRepo) CreateRefund(ctx context.Context, refund *models.Refund) error {
	if r.hiddenRefund != nil && r.hiddenRefund.OrderID == refund.OrderID && r.hiddenRefund.PaymentIntentID == refund.PaymentIntentID {
		r.refunds = append(r.refunds, *r.hiddenRefund)
		r.hiddenRefund = nil
		return errors.New(`duplicate key value violates unique constraint "ux_refunds_order_intent"`)
	}
	for i := range r.refunds {
		if r.refunds[i].OrderID == refund.OrderID && r.refunds[i].PaymentIntentID == refund.PaymentIntentID {
			return errors.New(`duplicate key value violates unique constraint "ux_refunds_order_intent"`)
		}
	}
	if refund.ID == uuid.Nil {
		refund.ID = uuid.New()
	}
	r.refunds = append(r.refunds, *refund)
	return nil
}

func (r *stubPaymentsRepo) FindRefund(ctx context.Context, orderID, paymentIntentID uuid.UUID) (*models.Refund, error) {
	for i := range r.refunds {
		if r.refunds[i].OrderID == orderID && r.refunds[i].PaymentIntentID == paymentIntentID {
			found := r.refunds[i]
			return &found, nil
		}
	}
	return nil, nil
}

type stubOracle struct {
	status enums.OrderStatus
	err    error
}

func (o *stubOracle) GetStatus(ctx context.Context, orderID uuid.UUID) (enums.OrderStatus, error) {
	if o.err != nil {
		return "", o.err
	}
	return o.status, nil
}

type stubProcessor struct {
	refund    *processor.Refund
	refundErr error
	capture   *processor.Capture
	cancelErr error

	refundCalls  int
	cancelCalls  int
	captureCalls int
	lastKey      string
}

func (p *stubProcessor) Capture(ctx context.Context, providerIntentID string) (*processor.Capture, error) {
	p.captureCalls++
	if p.capture != nil {
		return p.capture, nil
	}
	return &processor.Capture{}, nil
}

func (p *stubProcessor) Cancel(ctx context.Context, providerIntentID string) error {
	p.cancelCalls++
	return p.cancelErr
}

func (p *stubProcessor) Refund(ctx context.Context, params processor.RefundParams) (*processor.Refund, error) {
	p.refundCalls++
	p.lastKey = params.IdempotencyKey
	if p.refundErr != nil {
		return nil, p.refundErr
	}
	return p.refund, nil
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (o *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	o.events = append(o.events, event)
	return nil
}
