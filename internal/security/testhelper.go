package security

import "time"

// testSecret is for unit tests only. Do not use in production.
const testSecret = "test-secret-test-secret-test-secret!"

// NewTestTokenProvider returns a TokenProvider using the embedded test secret and the given TTL.
// For unit tests only. Callers must not use in production.
func NewTestTokenProvider(ttl time.Duration) *TokenProvider {
	return NewTokenProvider([]byte(testSecret), "test-issuer", "test-audience", ttl)
}

// NewTestTokenProviderAt is NewTestTokenProvider with a fixed clock, for issuing already-expired tokens.
func NewTestTokenProviderAt(ttl time.Duration, now func() time.Time) *TokenProvider {
	p := NewTestTokenProvider(ttl)
	p.now = now
	return p
}
