package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/gurkanbulca/taskassign/internal/middleware"
	"github.com/gurkanbulca/taskassign/internal/notify"
)

// upgradeWS authenticates the ?token= query parameter before the upgrade;
// browsers cannot set headers on WebSocket requests.
func upgradeWS(authn *middleware.Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		s, err := authn.Identify(c.Query("token"))
		if err != nil {
			return err
		}
		c.Locals(middleware.LocalsSession, s)
		return c.Next()
	}
}

// streamInvalidations subscribes the connection to the hub and holds it open
// until the peer goes away. Incoming messages are ignored.
func streamInvalidations(hub *notify.Hub, logger *slog.Logger) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		s, ok := conn.Locals(middleware.LocalsSession).(middleware.Session)
		if !ok {
			_ = conn.Close()
			return
		}

		client := &notify.Client{
			ID:        uuid.NewString(),
			UserID:    s.UserID,
			Role:      s.Role,
			Conn:      conn,
			ExpiresAt: s.ExpiresAt,
		}
		if !hub.Register(context.Background(), client) {
			_ = conn.Close()
			return
		}
		defer hub.Unregister(client)

		// the subscription lives no longer than the token that opened it
		if !s.ExpiresAt.IsZero() {
			_ = conn.SetReadDeadline(s.ExpiresAt)
		}

		logger.Debug("websocket subscribed", "client", client.ID, "user", s.UserID)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if s.Expired(time.Now()) {
					logger.Debug("websocket session expired", "client", client.ID, "user", s.UserID)
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session expired"),
						time.Now().Add(time.Second))
					return
				}
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("websocket closed", "client", client.ID, "error", err)
				}
				return
			}
		}
	}
}
