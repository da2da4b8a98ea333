package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/craftyard/craftyard/internal/api/request"
	"github.com/craftyard/craftyard/internal/api/response"
	"github.com/craftyard/craftyard/internal/core"
	"github.com/craftyard/craftyard/internal/hub"
	"github.com/craftyard/craftyard/internal/model"
)

type WS struct {
	hub   *hub.Hub
	svc   *core.ServerService
	perms *core.PermissionService
}

func NewWS(h *hub.Hub, svc *core.ServerService, perms *core.PermissionService) *WS {
	return &WS{hub: h, svc: svc, perms: perms}
}

// wsConn adapts a websocket to the hub's subscriber interface. Events go
// out as JSON text frames.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Send(ctx context.Context, event model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// Subscribe upgrades to WebSocket and attaches the client to one of the
// server's event channels until it disconnects. Clients authenticate with
// the token query param; browsers cannot set headers on WebSocket upgrades.
func (h *WS) Subscribe(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = model.ChannelDefault
	}
	if !model.ValidChannel(channel) {
		response.WriteError(w, http.StatusBadRequest, "unknown channel: "+channel)
		return
	}

	if !authorize(w, r, h.perms, id, model.CapabilityView) {
		return
	}

	srv, err := h.svc.Get(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Origin differs from Host when proxied through a frontend.
	})
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.CloseNow()

	var containerID string
	if srv.ContainerID != nil {
		containerID = *srv.ContainerID
	}

	conn := &wsConn{ws: ws}
	h.hub.Subscribe(id, channel, containerID, conn)
	defer h.hub.Unsubscribe(id, channel, conn)

	// Subscribers only receive. Reading answers pings and notices closure;
	// anything the client sends is discarded.
	for {
		if _, _, err := ws.Read(r.Context()); err != nil {
			break
		}
	}

	ws.Close(websocket.StatusNormalClosure, "")
}
