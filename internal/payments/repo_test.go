package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/localtable/localtable-backend/pkg/db/models"
	"github.com/localtable/localtable-backend/pkg/enums"
)

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	paymentIntents := `
CREATE TABLE IF NOT EXISTS payment_intents (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  service_fee_cents INTEGER NOT NULL DEFAULT 0,
  currency TEXT NOT NULL DEFAULT 'usd',
  status TEXT NOT NULL DEFAULT 'pending',
  provider_intent_id TEXT,
  provider_transaction_id TEXT,
  failure_reason TEXT,
  created_at DATETIME,
  authorized_at DATETIME,
  captured_at DATETIME,
  updated_at DATETIME
);`
	refunds := `
CREATE TABLE IF NOT EXISTS refunds (
  id TEXT PRIMARY KEY,
  payment_intent_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  reason TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  provider_refund_id TEXT NOT NULL,
  created_at DATETIME,
  completed_at DATETIME,
  UNIQUE (order_id, payment_intent_id)
);`
	require.NoError(t, db.Exec(paymentIntents).Error)
	require.NoError(t, db.Exec(refunds).Error)
	return db
}

func createIntent(t *testing.T, db *gorm.DB, orderID uuid.UUID, status enums.PaymentStatus, providerIntentID *string, created time.Time) *models.PaymentIntent {
	t.Helper()

	intent := &models.PaymentIntent{
		ID:               uuid.New(),
		OrderID:          orderID,
		AmountCents:      2500,
		ServiceFeeCents:  250,
		Currency:         enums.CurrencyUSD,
		Status:           status,
		ProviderIntentID: providerIntentID,
		CreatedAt:        created,
	}
	require.NoError(t, db.Create(intent).Error)
	return intent
}

func strPtr(s string) *string {
	return &s
}

func TestFindLatestWithProviderIntentPrefersNewest(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	orderID := uuid.New()

	base := time.Now().Add(-time.Hour)
	createIntent(t, db, orderID, enums.PaymentStatusFailed, strPtr("pi_old"), base)
	newest := createIntent(t, db, orderID, enums.PaymentStatusPending, strPtr("pi_new"), base.Add(10*time.Minute))
	createIntent(t, db, orderID, enums.PaymentStatusPending, nil, base.Add(20*time.Minute))

	found, err := repo.FindLatestWithProviderIntent(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, newest.ID, found.ID)
	require.NotNil(t, found.ProviderIntentID)
	assert.Equal(t, "pi_new", *found.ProviderIntentID)
}

func TestFindLatestWithProviderIntentNoneReturnsNil(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)

	found, err := repo.FindLatestWithProviderIntent(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFindLatestCapturableSkipsTerminalRows(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	orderID := uuid.New()

	base := time.Now().Add(-time.Hour)
	authorized := createIntent(t, db, orderID, enums.PaymentStatusAuthorized, strPtr("pi_auth"), base)
	createIntent(t, db, orderID, enums.PaymentStatusCaptured, strPtr("pi_captured"), base.Add(10*time.Minute))
	createIntent(t, db, orderID, enums.PaymentStatusFailed, strPtr("pi_failed"), base.Add(20*time.Minute))

	found, err := repo.FindLatestCapturable(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, authorized.ID, found.ID)
}

func TestFindIntentByProviderIntentID(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	intent := createIntent(t, db, uuid.New(), enums.PaymentStatusPending, strPtr("pi_lookup"), time.Now())

	found, err := repo.FindIntentByProviderIntentID(ctx, "pi_lookup")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, intent.ID, found.ID)

	missing, err := repo.FindIntentByProviderIntentID(ctx, "pi_unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateRefundDuplicateRejected(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orderID := uuid.New()
	intent := createIntent(t, db, orderID, enums.PaymentStatusCaptured, strPtr("pi_refund"), time.Now())

	first := &models.Refund{
		ID:               uuid.New(),
		PaymentIntentID:  intent.ID,
		OrderID:          orderID,
		AmountCents:      2500,
		Status:           enums.RefundStatusPending,
		ProviderRefundID: "re_first",
	}
	require.NoError(t, repo.CreateRefund(ctx, first))

	dup := &models.Refund{
		ID:               uuid.New(),
		PaymentIntentID:  intent.ID,
		OrderID:          orderID,
		AmountCents:      2500,
		Status:           enums.RefundStatusPending,
		ProviderRefundID: "re_second",
	}
	require.Error(t, repo.CreateRefund(ctx, dup))

	found, err := repo.FindRefund(ctx, orderID, intent.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, "re_first", found.ProviderRefundID)
}

func TestListIntentsByOrderIDNewestFirst(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	orderID := uuid.New()

	base := time.Now().Add(-time.Hour)
	oldest := createIntent(t, db, orderID, enums.PaymentStatusFailed, strPtr("pi_a"), base)
	newest := createIntent(t, db, orderID, enums.PaymentStatusCaptured, strPtr("pi_b"), base.Add(30*time.Minute))
	createIntent(t, db, uuid.New(), enums.PaymentStatusPending, strPtr("pi_other"), base)

	intents, err := repo.ListIntentsByOrderID(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, intents, 2)
	assert.Equal(t, newest.ID, intents[0].ID)
	assert.Equal(t, oldest.ID, intents[1].ID)
}
