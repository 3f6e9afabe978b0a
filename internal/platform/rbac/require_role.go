// Package rbac gates handlers on the role carried by the authenticated identity.
package rbac

import (
	"net/http"
	"strings"

	"sqabi/backend/internal/platform/httpjson"
	"sqabi/backend/internal/server/middleware"
)

const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// HasRole reports whether role matches one of allowed, case-insensitively.
func HasRole(role string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(role, a) {
			return true
		}
	}
	return false
}

// RequireRole returns middleware that lets the request through only when the Gate attached an identity
// whose role is one of roles. Missing identity is 401; a role outside the set is 403.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := middleware.IdentityFromContext(r.Context())
			if !ok || id.UserID == "" {
				httpjson.WriteError(w, http.StatusUnauthorized, middleware.CodeUnauthorized, "Autenticação necessária")
				return
			}
			if !HasRole(id.Role, roles...) {
				httpjson.WriteError(w, http.StatusForbidden, "forbidden", "Permissão insuficiente")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
