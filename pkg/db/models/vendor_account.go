package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/localtable/localtable-backend/pkg/enums"
)

// VendorAccount tracks a vendor's connected payment account and onboarding state.
// The provider account id is assigned once by the processor and never changes;
// onboarding status only moves by reconciling against the processor.
type VendorAccount struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID          uuid.UUID              `gorm:"column:vendor_id;type:uuid;not null;index"`
	OwnerUserID       uuid.UUID              `gorm:"column:owner_user_id;type:uuid;not null;uniqueIndex:ux_vendor_accounts_owner"`
	ProviderAccountID *string                `gorm:"column:provider_account_id;uniqueIndex:ux_vendor_accounts_provider"`
	OnboardingStatus  enums.OnboardingStatus `gorm:"column:onboarding_status;type:onboarding_status_enum;not null;default:'pending'"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
