package vendoraccounts

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/localtable/localtable-backend/internal/processor"
	"github.com/localtable/localtable-backend/pkg/config"
	"github.com/localtable/localtable-backend/pkg/db/models"
	"github.com/localtable/localtable-backend/pkg/enums"
	pkgerrors "github.com/localtable/localtable-backend/pkg/errors"
	"github.com/localtable/localtable-backend/pkg/logger"
	"github.com/localtable/localtable-backend/pkg/vendordirectory"
)

type directoryClient interface {
	GetVendor(ctx context.Context, vendorID uuid.UUID) (*vendordirectory.Vendor, error)
}

type accountClient interface {
	CreateAccount(ctx context.Context, ownerEmail string) (*processor.Account, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (*processor.OnboardingLink, error)
	GetAccount(ctx context.Context, accountID string) (*processor.Account, error)
}

// Service manages vendor connected accounts and onboarding state.
type Service struct {
	repo      Repository
	directory directoryClient
	processor accountClient
	payments  config.PaymentsConfig
	logg      *logger.Logger
}

// ServiceParams wires the vendor account service dependencies.
type ServiceParams struct {
	Repository Repository
	Directory  directoryClient
	Processor  accountClient
	Payments   config.PaymentsConfig
	Logger     *logger.Logger
}

// NewService builds the vendor account service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, errors.New("vendor account repository is required")
	}
	if params.Directory == nil {
		return nil, errors.New("vendor directory client is required")
	}
	if params.Processor == nil {
		return nil, errors.New("processor client is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		repo:      params.Repository,
		directory: params.Directory,
		processor: params.Processor,
		payments:  params.Payments,
		logg:      params.Logger,
	}, nil
}

// GetOrCreateAccount returns the vendor's account row, provisioning a
// connected account at the processor on first use.
func (s *Service) GetOrCreateAccount(ctx context.Context, vendorID uuid.UUID) (*models.VendorAccount, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}

	existing, err := s.repo.FindByVendorID(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load vendor account")
	}
	if existing != nil {
		return existing, nil
	}

	vendor, err := s.directory.GetVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}

	acct, err := s.processor.CreateAccount(ctx, vendor.OwnerEmail)
	if err != nil {
		return nil, err
	}

	account := &models.VendorAccount{
		VendorID:          vendorID,
		OwnerUserID:       vendor.OwnerUserID,
		ProviderAccountID: &acct.ID,
		OnboardingStatus:  DeriveOnboardingStatus(acct),
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist vendor account")
	}

	logCtx := s.logg.WithVendorID(ctx, vendorID.String())
	s.logg.Info(logCtx, "vendor connected account created")
	return account, nil
}

// CreateOnboardingLink returns a hosted onboarding URL for the vendor,
// provisioning the account first when needed.
func (s *Service) CreateOnboardingLink(ctx context.Context, vendorID uuid.UUID) (string, error) {
	account, err := s.GetOrCreateAccount(ctx, vendorID)
	if err != nil {
		return "", err
	}
	if account.ProviderAccountID == nil || *account.ProviderAccountID == "" {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "vendor account has no provider account")
	}

	link, err := s.processor.CreateOnboardingLink(ctx, *account.ProviderAccountID, s.payments.OnboardingRefreshURL, s.payments.OnboardingReturnURL)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

// RefreshOnboardingStatus re-reads processor account flags and reconciles the
// stored onboarding status.
func (s *Service) RefreshOnboardingStatus(ctx context.Context, vendorID uuid.UUID) (*models.VendorAccount, error) {
	account, err := s.repo.FindByVendorID(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load vendor account")
	}
	if account == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor account not found")
	}
	if account.ProviderAccountID == nil || *account.ProviderAccountID == "" {
		return account, nil
	}

	acct, err := s.processor.GetAccount(ctx, *account.ProviderAccountID)
	if err != nil {
		return nil, err
	}

	derived := DeriveOnboardingStatus(acct)
	if derived == account.OnboardingStatus {
		return account, nil
	}

	if err := s.repo.UpdateOnboardingStatus(ctx, account.ID, derived); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update onboarding status")
	}
	account.OnboardingStatus = derived

	logCtx := s.logg.WithVendorID(ctx, vendorID.String())
	s.logg.Info(s.logg.WithField(logCtx, "onboarding_status", string(derived)), "vendor onboarding status reconciled")
	return account, nil
}

// ApplyProviderAccountUpdate reconciles onboarding status from a processor
// account webhook. Unknown provider accounts are ignored.
func (s *Service) ApplyProviderAccountUpdate(ctx context.Context, acct *processor.Account) (bool, error) {
	if acct == nil || acct.ID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "provider account required")
	}

	account, err := s.repo.FindByProviderAccountID(ctx, acct.ID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load vendor account by provider id")
	}
	if account == nil {
		return false, nil
	}

	derived := DeriveOnboardingStatus(acct)
	if derived == account.OnboardingStatus {
		return false, nil
	}
	if err := s.repo.UpdateOnboardingStatus(ctx, account.ID, derived); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update onboarding status")
	}
	return true, nil
}

// IsPaymentReady reports whether the vendor can receive destination payments.
func (s *Service) IsPaymentReady(ctx context.Context, vendorID uuid.UUID) (bool, error) {
	account, err := s.repo.FindByVendorID(ctx, vendorID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load vendor account")
	}
	return AccountIsReady(account), nil
}

// AccountIsReady applies the readiness rule: a provider account must exist and
// onboarding must be complete.
func AccountIsReady(account *models.VendorAccount) bool {
	if account == nil {
		return false
	}
	if account.ProviderAccountID == nil || *account.ProviderAccountID == "" {
		return false
	}
	return account.OnboardingStatus == enums.OnboardingStatusComplete
}

// DeriveOnboardingStatus maps processor account flags onto the onboarding
// lifecycle. Charges and payouts both enabled means complete; details
// submitted without full capability means restricted; anything else is still
// pending.
func DeriveOnboardingStatus(acct *processor.Account) enums.OnboardingStatus {
	if acct == nil {
		return enums.OnboardingStatusPending
	}
	if acct.ChargesEnabled && acct.PayoutsEnabled {
		return enums.OnboardingStatusComplete
	}
	if acct.DetailsSubmitted {
		return enums.OnboardingStatusRestricted
	}
	return enums.OnboardingStatusPending
}
