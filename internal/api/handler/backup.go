package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/craftyard/craftyard/internal/api/request"
	"github.com/craftyard/craftyard/internal/api/response"
	"github.com/craftyard/craftyard/internal/core"
	"github.com/craftyard/craftyard/internal/model"
)

type Backup struct {
	svc   *core.BackupService
	perms *core.PermissionService
}

func NewBackup(svc *core.BackupService, perms *core.PermissionService) *Backup {
	return &Backup{svc: svc, perms: perms}
}

// List godoc
//
//	@Summary		List a server's backups
//	@Tags			Backups
//	@Security		ApiKeyAuth
//	@Param			id path string true "Server ID"
//	@Success		200 {array} model.Backup
//	@Failure		403 {object} response.ErrorResponse
//	@Router			/servers/{id}/backups [get]
func (h *Backup) List(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !authorize(w, r, h.perms, id, model.CapabilityBackups) {
		return
	}

	backups, err := h.svc.List(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	response.WriteJSON(w, http.StatusOK, backups)
}

// Create godoc
//
//	@Summary		Back up a server
//	@Description	Archives the server's data directory to object storage. The
//	@Description	server may be running; a consistent world is only guaranteed
//	@Description	when it is stopped.
//	@Tags			Backups
//	@Security		ApiKeyAuth
//	@Param			id path string true "Server ID"
//	@Success		201 {object} model.Backup
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/servers/{id}/backups [post]
func (h *Backup) Create(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !authorize(w, r, h.perms, id, model.CapabilityBackups) {
		return
	}

	backup, err := h.svc.Create(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, backup)
}

// Restore godoc
//
//	@Summary		Restore a backup
//	@Description	Unpacks the archive into the server's container. The server
//	@Description	must be stopped first.
//	@Tags			Backups
//	@Security		ApiKeyAuth
//	@Param			id path string true "Server ID"
//	@Param			backupID path string true "Backup ID"
//	@Success		202
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Router			/servers/{id}/backups/{backupID}/restore [post]
func (h *Backup) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	backupID, err := request.RequireID(chi.URLParam(r, "backupID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !authorize(w, r, h.perms, id, model.CapabilityBackups) {
		return
	}

	if err := h.svc.Restore(r.Context(), id, backupID); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Delete godoc
//
//	@Summary		Delete a backup
//	@Tags			Backups
//	@Security		ApiKeyAuth
//	@Param			id path string true "Server ID"
//	@Param			backupID path string true "Backup ID"
//	@Success		204
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/servers/{id}/backups/{backupID} [delete]
func (h *Backup) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	backupID, err := request.RequireID(chi.URLParam(r, "backupID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !authorize(w, r, h.perms, id, model.CapabilityBackups) {
		return
	}

	if err := h.svc.Delete(r.Context(), id, backupID); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
