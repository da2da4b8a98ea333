package middleware

import (
	"context"
	"net/http"

	"github.com/craftyard/craftyard/internal/api/response"
	"github.com/craftyard/craftyard/internal/model"
)

// GetPrincipal extracts the Principal from the request context.
func GetPrincipal(ctx context.Context) *Principal {
	principal, _ := ctx.Value(PrincipalKey).(*Principal)
	return principal
}

// IsAdmin checks if the principal holds the admin role.
func IsAdmin(p *Principal) bool {
	return p != nil && p.Role == model.RoleAdmin
}

// RequireAdmin returns middleware that rejects non-admin callers. User,
// key and fleet management stay admin-only regardless of per-server grants.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsAdmin(GetPrincipal(r.Context())) {
				response.WriteError(w, http.StatusForbidden, "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
