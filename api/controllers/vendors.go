package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/localtable/localtable-backend/api/responses"
	"github.com/localtable/localtable-backend/pkg/db/models"
	pkgerrors "github.com/localtable/localtable-backend/pkg/errors"
	"github.com/localtable/localtable-backend/pkg/logger"
)

type vendorAccountService interface {
	GetOrCreateAccount(ctx context.Context, vendorID uuid.UUID) (*models.VendorAccount, error)
	CreateOnboardingLink(ctx context.Context, vendorID uuid.UUID) (string, error)
	RefreshOnboardingStatus(ctx context.Context, vendorID uuid.UUID) (*models.VendorAccount, error)
	IsPaymentReady(ctx context.Context, vendorID uuid.UUID) (bool, error)
}

// VendorAccountCreate provisions (or returns) the vendor's connected account.
func VendorAccountCreate(svc vendorAccountService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vendor account service unavailable"))
			return
		}

		vendorID, err := vendorIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.GetOrCreateAccount(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newVendorAccountResponse(account))
	}
}

// VendorOnboardingLink sends the vendor to the processor's hosted onboarding.
func VendorOnboardingLink(svc vendorAccountService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vendor account service unavailable"))
			return
		}

		vendorID, err := vendorIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		url, err := svc.CreateOnboardingLink(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"onboarding_url": url})
	}
}

// VendorOnboardingRefresh re-reads onboarding state from the processor.
func VendorOnboardingRefresh(svc vendorAccountService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vendor account service unavailable"))
			return
		}

		vendorID, err := vendorIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.RefreshOnboardingStatus(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newVendorAccountResponse(account))
	}
}

// VendorPaymentReadiness reports whether checkout may proceed for the vendor.
func VendorPaymentReadiness(svc vendorAccountService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vendor account service unavailable"))
			return
		}

		vendorID, err := vendorIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ready, err := svc.IsPaymentReady(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]bool{"payment_ready": ready})
	}
}

type vendorAccountResponse struct {
	VendorID          uuid.UUID `json:"vendor_id"`
	ProviderAccountID string    `json:"provider_account_id,omitempty"`
	OnboardingStatus  string    `json:"onboarding_status"`
}

func newVendorAccountResponse(account *models.VendorAccount) vendorAccountResponse {
	resp := vendorAccountResponse{
		VendorID:         account.VendorID,
		OnboardingStatus: string(account.OnboardingStatus),
	}
	if account.ProviderAccountID != nil {
		resp.ProviderAccountID = *account.ProviderAccountID
	}
	return resp
}

func vendorIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "vendorId")
	vendorID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id must be a UUID")
	}
	return vendorID, nil
}
