package vendoraccounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/localtable/localtable-backend/pkg/db/models"
	"github.com/localtable/localtable-backend/pkg/enums"
)

// Repository handles vendor account persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account *models.VendorAccount) error
	Save(ctx context.Context, account *models.VendorAccount) error
	FindByVendorID(ctx context.Context, vendorID uuid.UUID) (*models.VendorAccount, error)
	FindByProviderAccountID(ctx context.Context, providerAccountID string) (*models.VendorAccount, error)
	UpdateOnboardingStatus(ctx context.Context, id uuid.UUID, status enums.OnboardingStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a vendor account repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, account *models.VendorAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) Save(ctx context.Context, account *models.VendorAccount) error {
	return r.db.WithContext(ctx).Save(account).Error
}

func (r *repository) FindByVendorID(ctx context.Context, vendorID uuid.UUID) (*models.VendorAccount, error) {
	var account models.VendorAccount
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at DESC").
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindByProviderAccountID(ctx context.Context, providerAccountID string) (*models.VendorAccount, error) {
	var account models.VendorAccount
	if err := r.db.WithContext(ctx).
		Where("provider_account_id = ?", providerAccountID).
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repository) UpdateOnboardingStatus(ctx context.Context, id uuid.UUID, status enums.OnboardingStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.VendorAccount{}).
		Where("id = ?", id).
		Update("onboarding_status", status).Error
}
