package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-notify-backend/internal/http/middleware"
	"github.com/tbourn/go-notify-backend/internal/realtime"
)

// WSHandler upgrades GET /ws to a realtime session.
//
// The token travels as a query parameter because browsers cannot set headers
// on a WebSocket handshake; an Authorization header is honoured as a
// fallback. A missing or invalid token still upgrades: the session stays
// open as anonymous and only joins the public group.
type WSHandler struct {
	base     context.Context
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	cfg      realtime.TransportConfig
}

// NewWSHandler binds sessions to base, which is cancelled on shutdown.
func NewWSHandler(base context.Context, hub *realtime.Hub, allowedOrigins []string, cfg realtime.TransportConfig) *WSHandler {
	return &WSHandler{
		base:     base,
		hub:      hub,
		upgrader: realtime.NewUpgrader(allowedOrigins),
		cfg:      cfg,
	}
}

// Serve godoc
// @ID          notificationsSocket
// @Summary     Open the realtime notification stream
// @Description Upgrades to a WebSocket. On connect the server sends the unread count and the newest unread notifications, then pushes new notifications as they are dispatched. Clients may send mark_as_read, mark_all_as_read, get_unread_count, get_notifications and ping frames.
// @Tags        Realtime
// @Param       token  query  string  false  "Access token (JWT)"
// @Success     101    {string} string "Switching Protocols"
// @Failure     400    {string} string "Not a WebSocket handshake"
// @Failure     403    {string} string "Origin not allowed"
// @Router      /ws [get]
func (h *WSHandler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = middleware.BearerToken(c.GetHeader("Authorization"))
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the error response.
		middleware.LoggerFrom(c).Debug().Err(err).Msg("websocket upgrade rejected")
		return
	}

	realtime.Serve(h.base, h.hub, conn, realtime.HandshakeParams{
		Token:      token,
		RemoteAddr: c.ClientIP(),
	}, h.cfg)
}
