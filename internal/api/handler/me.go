package handler

import (
	"net/http"

	mw "github.com/craftyard/craftyard/internal/api/middleware"
	"github.com/craftyard/craftyard/internal/api/response"
	"github.com/craftyard/craftyard/internal/core"
	"github.com/craftyard/craftyard/internal/model"
)

// Me reports who the caller is and what they can reach.
type Me struct {
	perms *core.PermissionService
}

func NewMe(perms *core.PermissionService) *Me {
	return &Me{perms: perms}
}

func (h *Me) Get(w http.ResponseWriter, r *http.Request) {
	principal := mw.GetPrincipal(r.Context())
	if principal == nil {
		response.WriteError(w, http.StatusUnauthorized, "missing API key")
		return
	}

	ids, all, err := h.perms.AccessibleServers(r.Context(), principal.User(), model.CapabilityView)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{
		"id":          principal.ID,
		"name":        principal.Name,
		"role":        principal.Role,
		"all_servers": all,
		"server_ids":  ids,
	})
}
