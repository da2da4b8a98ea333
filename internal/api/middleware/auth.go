package middleware

import (
	"context"
	"net/http"

	"github.com/craftyard/craftyard/internal/api/response"
	"github.com/craftyard/craftyard/internal/model"
)

type contextKey string

// PrincipalKey is the context key under which Auth stores the caller.
const PrincipalKey contextKey = "principal"

// Principal is the authenticated operator behind the current request.
type Principal struct {
	ID   string
	Name string
	Role string
}

// User converts the principal into the model the services consume.
func (p *Principal) User() *model.User {
	return &model.User{ID: p.ID, Name: p.Name, Role: p.Role}
}

// Authenticator resolves a raw API key to its owner.
type Authenticator interface {
	Authenticate(ctx context.Context, rawKey string) (*model.User, error)
}

// Auth returns a middleware that resolves the X-API-Key header to a
// Principal. Browsers cannot set headers on WebSocket upgrades, so a `token`
// query parameter is accepted as a fallback.
func Auth(keys Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("token")
			}
			if key == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			user, err := keys.Authenticate(r.Context(), key)
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			principal := &Principal{ID: user.ID, Name: user.Name, Role: user.Role}
			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
