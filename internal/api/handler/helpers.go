package handler

import (
	"net/http"

	mw "github.com/craftyard/craftyard/internal/api/middleware"
	"github.com/craftyard/craftyard/internal/api/response"
	"github.com/craftyard/craftyard/internal/core"
)

// authorize verifies the caller holds the capability on the given server.
// Writes the error reply and returns false when access is denied.
func authorize(w http.ResponseWriter, r *http.Request, perms *core.PermissionService, serverID, capability string) bool {
	principal := mw.GetPrincipal(r.Context())
	if principal == nil {
		response.WriteError(w, http.StatusUnauthorized, "missing API key")
		return false
	}
	if err := perms.Require(r.Context(), principal.User(), serverID, capability); err != nil {
		response.WriteServiceError(w, err)
		return false
	}
	return true
}
