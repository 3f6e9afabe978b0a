package middleware

import "context"

type contextKey struct{ name string }

var (
	identityKey     = contextKey{"identity"}
	identitySinkKey = contextKey{"identity_sink"}
)

// Identity is the authenticated caller attached to the request context by the Gate.
type Identity struct {
	UserID    string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Name      string `json:"name"`
	SessionID string `json:"sessionId"`
}

// WithIdentity returns a context carrying id. Handlers read it via IdentityFromContext.
// If an outer middleware installed a sink, id is also copied there.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if sink, ok := ctx.Value(identitySinkKey).(*Identity); ok && sink != nil {
		*sink = id
	}
	return context.WithValue(ctx, identityKey, id)
}

// withIdentitySink lets an outer middleware observe the identity attached further down the chain.
func withIdentitySink(ctx context.Context, sink *Identity) context.Context {
	return context.WithValue(ctx, identitySinkKey, sink)
}

// IdentityFromContext returns the identity set by the Gate and true, or the zero value and false.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(identityKey).(Identity)
	return v, ok
}

// GetUserID returns the user id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.UserID == "" {
		return "", false
	}
	return id.UserID, true
}

// GetSessionID returns the session id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.SessionID == "" {
		return "", false
	}
	return id.SessionID, true
}
