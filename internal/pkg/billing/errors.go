package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
)

var (
	// ErrInvalidPrice is returned when a checkout names a price outside the tier catalog.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrSignatureInvalid is returned when a webhook signature does not match the payload.
	ErrSignatureInvalid = errors.New("invalid webhook signature")
	// ErrPayloadMalformed is returned when a signed webhook body is not a recognizable event.
	ErrPayloadMalformed = errors.New("malformed webhook payload")
	// ErrCorrelationNotFound is returned by repositories when no pending correlation has the token.
	ErrCorrelationNotFound = errors.New("pending correlation not found")
)

// ValidationError lists request fields that are missing or invalid.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing or invalid field(s): " + strings.Join(e.Fields, ", ")
}

// ProcessorError wraps a failed call to the payment processor API.
type ProcessorError struct {
	Op  string
	Err error
}

func (e *ProcessorError) Error() string {
	var stripeErr *stripe.Error
	if errors.As(e.Err, &stripeErr) && stripeErr.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Op, stripeErr.Msg)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProcessorError) Unwrap() error {
	return e.Err
}

// StoreError wraps a failed store operation. It is the only error class a
// webhook sender should retry.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err carries a StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
