package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/classpoint/classroom-system/internal/api/metrics"
	"github.com/classpoint/classroom-system/internal/api/middleware"
	"github.com/classpoint/classroom-system/internal/core/domain"
	"github.com/classpoint/classroom-system/internal/core/ports"
)

const maxMessageSize = 16 * 1024

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	// The session token authenticates the socket; cross-origin pages are fine.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP requests to websocket connections and pumps inbound
// envelopes into the router.
type Handler struct {
	router    *Router
	hub       *Hub
	registry  ports.Registry
	jwtSecret string
	logger    zerolog.Logger
}

func NewHandler(router *Router, hub *Hub, registry ports.Registry, jwtSecret string, logger zerolog.Logger) *Handler {
	return &Handler{
		router:    router,
		hub:       hub,
		registry:  registry,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

// Serve handles GET /ws. A valid session token binds the socket to that user;
// without one the connection runs as a guest keyed by network address.
func (h *Handler) Serve(c echo.Context) error {
	sess := h.resolveSession(c)

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		return nil
	}

	client := newClient(conn, conn.RemoteAddr().String(), sess, h.logger)
	h.hub.register(client)
	metrics.ActiveConnections.Inc()
	h.logger.Info().
		Str("client_id", client.ID).
		Str("email", sess.Email).
		Msg("websocket connected")

	go client.writeLoop()
	h.readLoop(c, client)

	last := h.hub.unregister(client)
	client.Close()
	if last {
		// Membership and the cached user entry live only as long as the last
		// connection; a second tab keeps both alive.
		h.registry.Leave(client.Session())
		h.registry.EvictUser(client.Session().Email)
	}
	metrics.ActiveConnections.Dec()
	h.logger.Info().
		Str("client_id", client.ID).
		Str("email", sess.Email).
		Msg("websocket disconnected")
	return nil
}

func (h *Handler) readLoop(c echo.Context, client *Client) {
	client.conn.SetReadLimit(maxMessageSize)
	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			client.Send(eventMessage, "Malformed event.")
			continue
		}
		h.router.Handle(c.Request().Context(), client, env)
	}
}

// resolveSession authenticates the handshake. Token validation failures fall
// back to a guest identity rather than refusing the connection; the permission
// gate and rate limiter keep guests contained.
func (h *Handler) resolveSession(c echo.Context) domain.Session {
	claims, err := middleware.ParseSessionToken(c.Request(), h.jwtSecret)
	if err != nil {
		guest := domain.GuestUser(c.RealIP())
		// Registered so the permission gate and registry resolve the guest
		// rank instead of missing hydration.
		h.registry.PutUser(guest)
		return domain.Session{UserID: guest.ID, Email: guest.Email, DisplayName: guest.DisplayName}
	}
	userID, _ := claims["user_id"].(string)
	email, _ := claims["email"].(string)
	displayName, _ := claims["display_name"].(string)
	return domain.Session{UserID: userID, Email: email, DisplayName: displayName}
}
