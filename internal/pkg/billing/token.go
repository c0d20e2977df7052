package billing

import (
	"crypto/rand"
	"encoding/base64"
)

const correlationTokenBytes = 16

// TokenSource produces correlation tokens. Implementations must be unguessable
// and unique with overwhelming probability.
type TokenSource func() (string, error)

// NewCorrelationToken returns 16 random bytes from crypto/rand, base64url encoded.
func NewCorrelationToken() (string, error) {
	b := make([]byte, correlationTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
