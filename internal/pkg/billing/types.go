package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Snowflake is a Discord identifier. Bots send them either as JSON strings or
// as bare numbers; both decode to the same string form.
type Snowflake string

func (s *Snowflake) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Snowflake(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("snowflake must be a string or integer: %w", err)
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("snowflake must be an integer: %w", err)
	}
	*s = Snowflake(n.String())
	return nil
}

// CheckoutInput is a request to start a hosted checkout for one price.
type CheckoutInput struct {
	UserID  Snowflake `json:"user_id" validate:"required"`
	GuildID Snowflake `json:"guild_id" validate:"required"`
	PriceID string    `json:"price" validate:"required"`
}

// Outcome is the result of reconciling one webhook delivery. Every outcome
// other than OutcomeApplied is acknowledged without a ledger mutation.
type Outcome string

const (
	OutcomeApplied            Outcome = "applied"
	OutcomeDuplicate          Outcome = "duplicate"
	OutcomeIgnored            Outcome = "ignored"
	OutcomeUnpaid             Outcome = "unpaid_session"
	OutcomeMissingCorrelation Outcome = "missing_correlation"
	OutcomeMissingCustomer    Outcome = "missing_customer"
	OutcomeOrphan             Outcome = "orphan_correlation"
	OutcomeUnknownTier        Outcome = "unknown_tier"
	OutcomeNoItems            Outcome = "no_items"
	OutcomeNoMatch            Outcome = "no_matching_patron"
)

// SoftReject reports whether the outcome is a recognized, non-retryable
// acknowledgement that changed nothing.
func (o Outcome) SoftReject() bool {
	switch o {
	case OutcomeUnpaid, OutcomeMissingCorrelation, OutcomeMissingCustomer,
		OutcomeOrphan, OutcomeUnknownTier, OutcomeNoItems:
		return true
	default:
		return false
	}
}

// Envelope is a verified processor event.
type Envelope struct {
	ID      string
	Type    string
	Payload Payload
}

// Payload is the closed set of event kinds the reconciler understands.
type Payload interface {
	isPayload()
}

// CheckoutCompleted is checkout.session.completed.
type CheckoutCompleted struct {
	SessionID        string
	PaymentStatus    string
	CorrelationToken string
	CustomerID       string
}

// SubscriptionChanged is customer.subscription.created or .updated.
type SubscriptionChanged struct {
	Created        bool
	SubscriptionID string
	CustomerID     string
	PriceIDs       []string
}

// SubscriptionDeleted is customer.subscription.deleted.
type SubscriptionDeleted struct {
	SubscriptionID string
	CustomerID     string
}

// Unrecognized is any other event type. It is acknowledged as a no-op.
type Unrecognized struct{}

func (CheckoutCompleted) isPayload()   {}
func (SubscriptionChanged) isPayload() {}
func (SubscriptionDeleted) isPayload() {}
func (Unrecognized) isPayload()        {}
