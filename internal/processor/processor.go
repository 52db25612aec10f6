package processor

import "context"

// Account is the processor-side view of a vendor's connected account.
type Account struct {
	ID               string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// OnboardingLink points a vendor at the processor's hosted onboarding flow.
type OnboardingLink struct {
	URL string
}

// CheckoutSessionParams configures a destination payment: the customer is
// charged the full amount, the platform retains the service fee, and the
// remainder is transferred to the vendor's connected account.
type CheckoutSessionParams struct {
	ReferenceID          string
	AmountCents          int64
	ServiceFeeCents      int64
	Currency             string
	Description          string
	DestinationAccountID string
	SuccessURL           string
	CancelURL            string
}

// CheckoutSession is the processor-side session created for an order.
type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
}

// Capture reports the result of capturing an authorized payment.
type Capture struct {
	TransactionID string
}

// RefundParams configures a refund against a provider payment intent. The
// idempotency key collapses concurrent or retried calls into one
// processor-side effect.
type RefundParams struct {
	ProviderIntentID     string
	AmountCents          int64
	Reason               string
	IdempotencyKey       string
	ReverseTransfer      bool
	RefundApplicationFee bool
}

// Refund is the processor's answer to a refund request.
type Refund struct {
	ID        string
	Completed bool
}

// Client is the narrow capability surface this subsystem needs from the
// external payment processor. Implementations classify failures as
// errors.CodeDependency (transport, safe to retry) or errors.CodeProcessor
// (processor-side rejection).
type Client interface {
	CreateAccount(ctx context.Context, ownerEmail string) (*Account, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (*OnboardingLink, error)
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)
	Capture(ctx context.Context, providerIntentID string) (*Capture, error)
	Cancel(ctx context.Context, providerIntentID string) error
	Refund(ctx context.Context, params RefundParams) (*Refund, error)
}
