package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/craftyard/craftyard/internal/api/request"
	"github.com/craftyard/craftyard/internal/api/response"
	"github.com/craftyard/craftyard/internal/core"
	"github.com/craftyard/craftyard/internal/model"
)

type Console struct {
	svc   *core.ConsoleService
	perms *core.PermissionService
}

func NewConsole(svc *core.ConsoleService, perms *core.PermissionService) *Console {
	return &Console{svc: svc, perms: perms}
}

// Command godoc
//
//	@Summary		Run a console command
//	@Description	Executes one command over the admin port and returns its output.
//	@Tags			Console
//	@Security		ApiKeyAuth
//	@Param			id path string true "Server ID"
//	@Param			body body request.ConsoleCommand true "Command"
//	@Success		200 {object} map[string]string
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		502 {object} response.ErrorResponse
//	@Router			/servers/{id}/console/command [post]
func (h *Console) Command(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.ConsoleCommand
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !authorize(w, r, h.perms, id, model.CapabilityConsole) {
		return
	}

	output, err := h.svc.Execute(r.Context(), id, req.Command)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{"output": output})
}

// Players lists who is online. Degrades to an empty list when the server
// does not answer.
func (h *Console) Players(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !authorize(w, r, h.perms, id, model.CapabilityView) {
		return
	}

	players, err := h.svc.Players(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, players)
}

// Say broadcasts a chat message. Delivery is best effort; the reply reports
// whether the server took it.
func (h *Console) Say(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.ConsoleSay
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !authorize(w, r, h.perms, id, model.CapabilityConsole) {
		return
	}

	delivered, err := h.svc.Say(r.Context(), id, req.Message)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]bool{"delivered": delivered})
}

// Stop asks the server to save and shut down via its own console. The
// container keeps running until the process exits; the reconciler settles
// the record afterwards.
func (h *Console) Stop(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !authorize(w, r, h.perms, id, model.CapabilityStartStop) {
		return
	}

	delivered, err := h.svc.StopGracefully(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusAccepted, map[string]bool{"delivered": delivered})
}
