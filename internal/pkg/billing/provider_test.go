package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStripeProviderRequiresKey(t *testing.T) {
	_, err := NewStripeProvider(StripeProviderConfig{SecretKey: "  "})
	assert.Error(t, err)
}

func TestStripeProviderCreateCheckoutSession(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_123","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_123"}`))
	}))
	defer srv.Close()

	p, err := NewStripeProvider(StripeProviderConfig{SecretKey: "sk_test_123", APIURL: srv.URL})
	require.NoError(t, err)

	sess, err := p.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		PriceID:          "price_basic",
		CorrelationToken: "tok_abc",
		SuccessURL:       "https://overseer-bot.net/guilds",
		CancelURL:        "https://overseer-bot.net",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", sess.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_123", sess.URL)

	assert.Equal(t, "subscription", form.Get("mode"))
	assert.Equal(t, "card", form.Get("payment_method_types[0]"))
	assert.Equal(t, "price_basic", form.Get("line_items[0][price]"))
	assert.Equal(t, "1", form.Get("line_items[0][quantity]"))
	assert.Equal(t, "tok_abc", form.Get("client_reference_id"))
	assert.Equal(t, "https://overseer-bot.net/guilds", form.Get("success_url"))
	assert.Equal(t, "https://overseer-bot.net", form.Get("cancel_url"))
}

func TestStripeProviderSurfacesAPIError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such price: 'price_gone'"}}`))
	}))
	defer srv.Close()

	p, err := NewStripeProvider(StripeProviderConfig{SecretKey: "sk_test_123", APIURL: srv.URL})
	require.NoError(t, err)

	_, err = p.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{PriceID: "price_gone", CorrelationToken: "tok"})
	require.Error(t, err)

	wrapped := &ProcessorError{Op: "create checkout session", Err: err}
	assert.Equal(t, "create checkout session: No such price: 'price_gone'", wrapped.Error())
	assert.Equal(t, 1, calls, "processor calls must not be retried")
}
