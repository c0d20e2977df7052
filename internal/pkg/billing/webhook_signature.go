package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeSignatureHeader carries the processor's webhook signature.
const StripeSignatureHeader = "Stripe-Signature"

// ParseStripeWebhook verifies the signature over the exact raw body and only
// then decodes it. Errors wrap ErrSignatureInvalid or ErrPayloadMalformed.
func ParseStripeWebhook(payload []byte, signatureHeader, webhookSecret string) (*Envelope, error) {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return nil, ErrSignatureInvalid
	}

	event, err := webhook.ConstructEventWithOptions(payload, sig, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}

	return decodeEvent(event, payload)
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func decodeEvent(event stripe.Event, payload []byte) (*Envelope, error) {
	eventType := strings.TrimSpace(string(event.Type))
	if eventType == "" {
		return nil, fmt.Errorf("%w: event type is missing", ErrPayloadMalformed)
	}

	env := &Envelope{
		ID:   strings.TrimSpace(event.ID),
		Type: eventType,
	}
	if env.ID == "" {
		sum := sha256.Sum256(payload)
		env.ID = "hash:" + hex.EncodeToString(sum[:])
	}

	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := unmarshalObject(raw, &sess); err != nil {
			return nil, err
		}
		env.Payload = CheckoutCompleted{
			SessionID:        strings.TrimSpace(sess.ID),
			PaymentStatus:    strings.TrimSpace(string(sess.PaymentStatus)),
			CorrelationToken: strings.TrimSpace(sess.ClientReferenceID),
			CustomerID:       customerID(sess.Customer),
		}

	case stripe.EventTypeCustomerSubscriptionCreated, stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := unmarshalObject(raw, &sub); err != nil {
			return nil, err
		}
		env.Payload = SubscriptionChanged{
			Created:        event.Type == stripe.EventTypeCustomerSubscriptionCreated,
			SubscriptionID: strings.TrimSpace(sub.ID),
			CustomerID:     customerID(sub.Customer),
			PriceIDs:       subscriptionPriceIDs(&sub),
		}

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := unmarshalObject(raw, &sub); err != nil {
			return nil, err
		}
		env.Payload = SubscriptionDeleted{
			SubscriptionID: strings.TrimSpace(sub.ID),
			CustomerID:     customerID(sub.Customer),
		}

	default:
		env.Payload = Unrecognized{}
	}

	return env, nil
}

func unmarshalObject(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: event data object is missing", ErrPayloadMalformed)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}
	return nil
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.ID)
}

// subscriptionPriceIDs keeps item order; empty prices are kept as "" so the
// first item stays first.
func subscriptionPriceIDs(sub *stripe.Subscription) []string {
	if sub.Items == nil {
		return nil
	}
	out := make([]string, 0, len(sub.Items.Data))
	for _, item := range sub.Items.Data {
		if item == nil || item.Price == nil {
			out = append(out, "")
			continue
		}
		out = append(out, strings.TrimSpace(item.Price.ID))
	}
	return out
}
