package stripe

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/accountlink"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"

	"github.com/localtable/localtable-backend/internal/processor"
	pkgerrors "github.com/localtable/localtable-backend/pkg/errors"
	"github.com/localtable/localtable-backend/pkg/metrics"
)

// Processor adapts the Stripe API to the processor.Client capability surface.
type Processor struct {
	client  *Client
	metrics *metrics.PaymentMetrics
}

// ProcessorOption configures optional processor behavior.
type ProcessorOption func(*Processor)

// WithMetrics records per-operation call latencies.
func WithMetrics(m *metrics.PaymentMetrics) ProcessorOption {
	return func(p *Processor) {
		p.metrics = m
	}
}

// NewProcessor wraps an initialized Stripe client.
func NewProcessor(client *Client, opts ...ProcessorOption) (*Processor, error) {
	if client == nil {
		return nil, errors.New("stripe client is required")
	}
	p := &Processor{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

func (p *Processor) observe(operation string, start time.Time) {
	if p.metrics != nil {
		p.metrics.ObserveProcessorCall(operation, time.Since(start))
	}
}

var _ processor.Client = (*Processor)(nil)

// CreateAccount provisions an express connected account for a vendor.
func (p *Processor) CreateAccount(ctx context.Context, ownerEmail string) (*processor.Account, error) {
	defer p.observe("create_account", time.Now())

	params := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if trimmed := strings.TrimSpace(ownerEmail); trimmed != "" {
		params.Email = stripe.String(trimmed)
	}
	params.Context = ctx

	acct, err := account.New(params)
	if err != nil {
		return nil, classify(err, "create connected account")
	}
	return mapAccount(acct), nil
}

// CreateOnboardingLink builds a hosted onboarding URL for a connected account.
func (p *Processor) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (*processor.OnboardingLink, error) {
	defer p.observe("create_onboarding_link", time.Now())

	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := accountlink.New(params)
	if err != nil {
		return nil, classify(err, "create onboarding link")
	}
	return &processor.OnboardingLink{URL: link.URL}, nil
}

// GetAccount fetches the current processor-side account flags.
func (p *Processor) GetAccount(ctx context.Context, accountID string) (*processor.Account, error) {
	defer p.observe("fetch_account", time.Now())

	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := account.GetByID(accountID, params)
	if err != nil {
		return nil, classify(err, "fetch connected account")
	}
	return mapAccount(acct), nil
}

// CreateCheckoutSession opens a destination-payment session: the full amount
// is charged to the customer, the service fee stays on the platform account,
// and the remainder transfers to the vendor's connected account.
func (p *Processor) CreateCheckoutSession(ctx context.Context, in processor.CheckoutSessionParams) (*processor.CheckoutSession, error) {
	defer p.observe("create_checkout_session", time.Now())

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(in.ReferenceID),
		SuccessURL:        stripe.String(in.SuccessURL),
		CancelURL:         stripe.String(in.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(in.Currency),
					UnitAmount: stripe.Int64(in.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(in.Description),
					},
				},
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(in.ServiceFeeCents),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(in.DestinationAccountID),
			},
		},
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, classify(err, "create checkout session")
	}

	out := &processor.CheckoutSession{
		ID:  sess.ID,
		URL: sess.URL,
	}
	if sess.PaymentIntent != nil {
		out.PaymentIntentID = sess.PaymentIntent.ID
	}
	return out, nil
}

// Capture settles an authorized payment intent.
func (p *Processor) Capture(ctx context.Context, providerIntentID string) (*processor.Capture, error) {
	defer p.observe("capture", time.Now())

	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx

	intent, err := paymentintent.Capture(providerIntentID, params)
	if err != nil {
		return nil, classify(err, "capture payment intent")
	}

	capture := &processor.Capture{}
	if intent.LatestCharge != nil {
		capture.TransactionID = intent.LatestCharge.ID
	}
	return capture, nil
}

// Cancel voids an uncaptured payment intent.
func (p *Processor) Cancel(ctx context.Context, providerIntentID string) error {
	defer p.observe("cancel", time.Now())

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := paymentintent.Cancel(providerIntentID, params); err != nil {
		return classify(err, "cancel payment intent")
	}
	return nil
}

// Refund issues a refund with the caller's idempotency key so retried calls
// collapse into a single processor-side effect.
func (p *Processor) Refund(ctx context.Context, in processor.RefundParams) (*processor.Refund, error) {
	defer p.observe("refund", time.Now())

	params := &stripe.RefundParams{
		PaymentIntent:        stripe.String(in.ProviderIntentID),
		Amount:               stripe.Int64(in.AmountCents),
		ReverseTransfer:      stripe.Bool(in.ReverseTransfer),
		RefundApplicationFee: stripe.Bool(in.RefundApplicationFee),
	}
	if in.Reason != "" {
		params.AddMetadata("reason", in.Reason)
	}
	if in.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(in.IdempotencyKey)
	}
	params.Context = ctx

	ref, err := refund.New(params)
	if err != nil {
		return nil, classify(err, "create refund")
	}

	return &processor.Refund{
		ID:        ref.ID,
		Completed: ref.Status == stripe.RefundStatusSucceeded,
	}, nil
}

func mapAccount(acct *stripe.Account) *processor.Account {
	if acct == nil {
		return nil
	}
	return &processor.Account{
		ID:               acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}
}

// classify splits Stripe failures into processor rejections (the API answered
// with an error object) and transport faults (it did not answer at all).
func classify(err error, msg string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return pkgerrors.Wrap(pkgerrors.CodeProcessor, err, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
