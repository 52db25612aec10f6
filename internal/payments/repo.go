package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/localtable/localtable-backend/pkg/db/models"
	"github.com/localtable/localtable-backend/pkg/enums"
)

// Repository handles payment intent and refund persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIntent(ctx context.Context, intent *models.PaymentIntent) error
	SaveIntent(ctx context.Context, intent *models.PaymentIntent) error
	FindIntentByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	FindLatestWithProviderIntent(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error)
	FindLatestCapturable(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error)
	FindIntentByProviderIntentID(ctx context.Context, providerIntentID string) (*models.PaymentIntent, error)
	ListIntentsByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentIntent, error)
	CreateRefund(ctx context.Context, refund *models.Refund) error
	FindRefund(ctx context.Context, orderID, paymentIntentID uuid.UUID) (*models.Refund, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) SaveIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Save(intent).Error
}

func (r *repository) FindIntentByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindLatestWithProviderIntent(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Where("provider_intent_id IS NOT NULL").
		Order("created_at DESC").
		First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindLatestCapturable(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Where("provider_intent_id IS NOT NULL").
		Where("status IN ?", []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusAuthorized}).
		Order("created_at DESC").
		First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindIntentByProviderIntentID(ctx context.Context, providerIntentID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).
		Where("provider_intent_id = ?", providerIntentID).
		First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

func (r *repository) ListIntentsByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}

func (r *repository) CreateRefund(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *repository) FindRefund(ctx context.Context, orderID, paymentIntentID uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND payment_intent_id = ?", orderID, paymentIntentID).
		First(&refund).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refund, nil
}
