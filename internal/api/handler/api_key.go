package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/craftyard/craftyard/internal/api/request"
	"github.com/craftyard/craftyard/internal/api/response"
	"github.com/craftyard/craftyard/internal/core"
	"github.com/craftyard/craftyard/internal/model"
)

// APIKey handles API key management endpoints.
type APIKey struct {
	svc *core.APIKeyService
}

// NewAPIKey creates a new APIKey handler.
func NewAPIKey(svc *core.APIKeyService) *APIKey {
	return &APIKey{svc: svc}
}

// Create issues a new API key for a user. The raw key is returned once in
// the response and never stored.
func (h *APIKey) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateAPIKey
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, rawKey, err := h.svc.Issue(r.Context(), req.UserID, req.Name)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	// Build the response with the raw key included (shown only once).
	resp := map[string]any{
		"id":         key.ID,
		"user_id":    key.UserID,
		"name":       key.Name,
		"key":        rawKey,
		"key_prefix": key.KeyPrefix,
		"created_at": key.CreatedAt,
	}
	response.WriteJSON(w, http.StatusCreated, resp)
}

// ListByUser lists a user's keys, revoked ones included.
func (h *APIKey) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	keys, err := h.svc.ListByUser(r.Context(), userID)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if keys == nil {
		keys = []model.APIKey{}
	}

	response.WriteJSON(w, http.StatusOK, keys)
}

// Revoke soft-deletes an API key by setting revoked_at.
func (h *APIKey) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Revoke(r.Context(), id); err != nil {
		response.WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
