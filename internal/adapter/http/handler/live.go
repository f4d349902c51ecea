package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
	ws "github.com/Temutjin2k/hust-run/pkg/wsHub"
)

// Live streams session events over a websocket. The session id is the hub topic.
type Live struct {
	hub      *ws.ConnectionHub
	sessions SessionService
	upgrader websocket.Upgrader
	l        logger.Logger
}

func NewLive(hub *ws.ConnectionHub, sessions SessionService, l logger.Logger) *Live {
	return &Live{
		hub:      hub,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		l: l,
	}
}

func (h *Live) Subscribe(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := wrap.WithSessionID(wrap.WithAction(r.Context(), types.ActionLiveSubscribe), id)

	status, err := h.sessions.Status(id)
	if err != nil {
		errResponse(w, err)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Warn(ctx, "websocket upgrade failed", "error", err.Error())
		return
	}

	conn := ws.NewConn(ctx, id, wsConn)
	if err := h.hub.Add(conn); err != nil {
		h.l.Error(ctx, "failed to register websocket", err)
		conn.Close()
		return
	}
	defer h.hub.Delete(conn.ID())

	if err := conn.Send(map[string]any{
		"type":       "snapshot",
		"session_id": id,
		"state":      status.State.String(),
		"index":      status.CurrentIndex,
		"total":      status.TotalWaypoints,
	}); err != nil {
		return
	}

	h.l.Debug(ctx, "websocket subscribed", "conn_id", conn.ID().String())
	if err := conn.Listen(nil); err != nil {
		h.l.Debug(ctx, "websocket closed", "conn_id", conn.ID().String(), "reason", err.Error())
	}
}
