package enums

import "fmt"

// OnboardingStatus reflects how far a vendor has progressed with the
// payment processor's connected-account onboarding.
type OnboardingStatus string

const (
	OnboardingStatusPending    OnboardingStatus = "pending"
	OnboardingStatusRestricted OnboardingStatus = "restricted"
	OnboardingStatusComplete   OnboardingStatus = "complete"
)

var validOnboardingStatuses = []OnboardingStatus{
	OnboardingStatusPending,
	OnboardingStatusRestricted,
	OnboardingStatusComplete,
}

// String implements fmt.Stringer.
func (o OnboardingStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OnboardingStatus.
func (o OnboardingStatus) IsValid() bool {
	for _, candidate := range validOnboardingStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOnboardingStatus converts raw input into an OnboardingStatus.
func ParseOnboardingStatus(value string) (OnboardingStatus, error) {
	for _, candidate := range validOnboardingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid onboarding status %q", value)
}
