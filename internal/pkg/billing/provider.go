package billing

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
)

// CheckoutSessionRequest describes a single-item subscription checkout.
type CheckoutSessionRequest struct {
	PriceID          string
	CorrelationToken string
	SuccessURL       string
	CancelURL        string
}

// CheckoutSession is the processor-hosted session the caller is sent to.
type CheckoutSession struct {
	ID  string
	URL string
}

// CheckoutProvider creates hosted checkout sessions at the payment processor.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
}

// StripeProviderConfig configures the Stripe API client.
type StripeProviderConfig struct {
	SecretKey string
	// APIURL overrides the Stripe API base, used against test servers.
	APIURL     string
	HTTPClient *http.Client
}

// StripeProvider implements CheckoutProvider with the Stripe Checkout API.
// Calls are never retried by the client.
type StripeProvider struct {
	client session.Client
}

func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
	}
	if u := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"); u != "" {
		backendCfg.URL = stripe.String(u)
	}

	return &StripeProvider{
		client: session.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: key,
		},
	}, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.CorrelationToken),
	}
	params.Context = ctx

	sess, err := p.client.New(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}
