package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/craftyard/craftyard/internal/api/request"
	"github.com/craftyard/craftyard/internal/api/response"
	"github.com/craftyard/craftyard/internal/core"
	"github.com/craftyard/craftyard/internal/model"
)

type Permission struct {
	svc *core.PermissionService
}

func NewPermission(svc *core.PermissionService) *Permission {
	return &Permission{svc: svc}
}

// ListForServer returns every grant on one server.
func (h *Permission) ListForServer(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !authorize(w, r, h.svc, id, model.CapabilityManage) {
		return
	}

	grants, err := h.svc.PermissionsFor(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if grants == nil {
		grants = []model.Grant{}
	}

	response.WriteJSON(w, http.StatusOK, grants)
}

// Grant replaces a user's capability set on one server.
func (h *Permission) Grant(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.GrantPermission
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !authorize(w, r, h.svc, id, model.CapabilityManage) {
		return
	}

	grant, err := h.svc.Grant(r.Context(), req.UserID, id, req.Capabilities)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, grant)
}

// Revoke removes a user's grant on one server.
func (h *Permission) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := request.RequireID(chi.URLParam(r, "userID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !authorize(w, r, h.svc, id, model.CapabilityManage) {
		return
	}

	if err := h.svc.Revoke(r.Context(), userID, id); err != nil {
		response.WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
