package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/craftyard/craftyard/internal/api/middleware"
	"github.com/craftyard/craftyard/internal/api/request"
	"github.com/craftyard/craftyard/internal/api/response"
	"github.com/craftyard/craftyard/internal/core"
	"github.com/craftyard/craftyard/internal/model"
)

type Server struct {
	svc     *core.ServerService
	perms   *core.PermissionService
	backups *core.BackupService
}

func NewServer(svc *core.ServerService, perms *core.PermissionService, backups *core.BackupService) *Server {
	return &Server{svc: svc, perms: perms, backups: backups}
}

// List godoc
//
//	@Summary		List servers visible to the caller
//	@Tags			Servers
//	@Security		ApiKeyAuth
//	@Success		200 {array} model.ServerInstance
//	@Failure		500 {object} response.ErrorResponse
//	@Router			/servers [get]
func (h *Server) List(w http.ResponseWriter, r *http.Request) {
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

	var servers []model.ServerInstance
	if all {
		servers, err = h.svc.List(r.Context())
	} else {
		servers, err = h.svc.ListByIDs(r.Context(), ids)
	}
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if servers == nil {
		servers = []model.ServerInstance{}
	}

	response.WriteJSON(w, http.StatusOK, servers)
}

// Create godoc
//
//	@Summary		Provision a server
//	@Description	Creates the record, allocates ports, pulls the image and creates the container. Returns the stopped instance; start it separately.
//	@Tags			Servers
//	@Security		ApiKeyAuth
//	@Param			body body request.CreateServer true "Server definition"
//	@Success		201 {object} model.ServerInstance
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		507 {object} response.ErrorResponse
//	@Router			/servers [post]
func (h *Server) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateServer
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	inst, err := h.svc.Provision(r.Context(), core.ProvisionParams{
		Name:        req.Name,
		Description: req.Description,
		Flavor:      req.Flavor,
		Version:     req.Version,
		MemoryMB:    req.MemoryMB,
		GamePort:    req.GamePort,
		RconPort:    req.RconPort,
		QueryPort:   req.QueryPort,
	})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, inst)
}

// Get godoc
//
//	@Summary	Get one server
//	@Tags		Servers
//	@Security	ApiKeyAuth
//	@Param		id path string true "Server ID"
//	@Success	200 {object} model.ServerInstance
//	@Failure	404 {object} response.ErrorResponse
//	@Router		/servers/{id} [get]
func (h *Server) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !authorize(w, r, h.perms, id, model.CapabilityView) {
		return
	}

	inst, err := h.svc.Get(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, inst)
}

// Update godoc
//
//	@Summary		Update a stopped server
//	@Description	Renames and resizes. A memory change replaces the container; the data volume carries over.
//	@Tags			Servers
//	@Security		ApiKeyAuth
//	@Param			id path string true "Server ID"
//	@Param			body body request.UpdateServer true "Fields to change"
//	@Success		200 {object} model.ServerInstance
//	@Failure		409 {object} response.ErrorResponse
//	@Router			/servers/{id} [put]
func (h *Server) Update(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.UpdateServer
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !authorize(w, r, h.perms, id, model.CapabilityManage) {
		return
	}

	inst, err := h.svc.Update(r.Context(), id, core.UpdateParams{
		Name:        req.Name,
		Description: req.Description,
		MemoryMB:    req.MemoryMB,
	})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, inst)
}

// Delete godoc
//
//	@Summary		Delete a stopped server
//	@Description	Purges archived backups, then removes the container, the data volume and the record.
//	@Tags			Servers
//	@Security		ApiKeyAuth
//	@Param			id path string true "Server ID"
//	@Success		204
//	@Failure		409 {object} response.ErrorResponse
//	@Router			/servers/{id} [delete]
func (h *Server) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Refuse early so backups are not purged for a server that cannot be
	// deleted anyway.
	inst, err := h.svc.Get(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if inst.Status != model.StatusStopped && inst.Status != model.StatusError {
		response.WriteError(w, http.StatusConflict, "server must be stopped before deletion")
		return
	}

	if err := h.backups.PurgeServer(r.Context(), id); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		response.WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Start godoc
//
//	@Summary	Start a server
//	@Tags		Servers
//	@Security	ApiKeyAuth
//	@Param		id path string true "Server ID"
//	@Success	202
//	@Failure	409 {object} response.ErrorResponse
//	@Router		/servers/{id}/start [post]
func (h *Server) Start(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.Start)
}

// Stop godoc
//
//	@Summary	Stop a server
//	@Tags		Servers
//	@Security	ApiKeyAuth
//	@Param		id path string true "Server ID"
//	@Success	202
//	@Failure	409 {object} response.ErrorResponse
//	@Router		/servers/{id}/stop [post]
func (h *Server) Stop(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.Stop)
}

// Restart godoc
//
//	@Summary	Restart a running server
//	@Tags		Servers
//	@Security	ApiKeyAuth
//	@Param		id path string true "Server ID"
//	@Success	202
//	@Failure	409 {object} response.ErrorResponse
//	@Router		/servers/{id}/restart [post]
func (h *Server) Restart(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.Restart)
}

func (h *Server) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !authorize(w, r, h.perms, id, model.CapabilityStartStop) {
		return
	}

	if err := op(r.Context(), id); err != nil {
		response.WriteServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Stats godoc
//
//	@Summary		Live server stats
//	@Description	Combines container CPU and memory with player counts from the query port. Sources degrade to zero values when unreachable.
//	@Tags			Servers
//	@Security		ApiKeyAuth
//	@Param			id path string true "Server ID"
//	@Success		200 {object} model.ServerStats
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/servers/{id}/stats [get]
func (h *Server) Stats(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !authorize(w, r, h.perms, id, model.CapabilityView) {
		return
	}

	stats, err := h.svc.Stats(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, stats)
}
