package handler

import (
	"context"
	"os"

	"tripchat-be/internal/pkg/logger"
	"tripchat-be/internal/service"
	internalWS "tripchat-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ChatStreamHandler upgrades authenticated clients to the websocket stream
// that carries chat_message and messages_read events.
type ChatStreamHandler struct {
	chatService service.IChatService
	hub         *internalWS.Hub
	logger      logger.ILogger
}

func NewChatStreamHandler(chatService service.IChatService, hub *internalWS.Hub, log logger.ILogger) *ChatStreamHandler {
	return &ChatStreamHandler{
		chatService: chatService,
		hub:         hub,
		logger:      log,
	}
}

// ServeWs handles websocket requests from the peer.
func (h *ChatStreamHandler) ServeWs(c *fiber.Ctx) error {
	// 1. Get Token source
	// Priority 1: Query Param (Browser standard)
	tokenStr := c.Query("token")

	// Priority 2: Authorization Header (Tooling/Non-browser standard)
	if tokenStr == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}

	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token (Query 'token' or Header 'Authorization')"})
	}

	// 2. Parse JWT with the same secret the REST middleware uses
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.ErrUnauthorized
		}
		return []byte(os.Getenv("JWT_SECRET")), nil
	})

	if err != nil || !token.Valid {
		h.logger.Warn("ChatStreamHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	// 3. Extract UserID from claims
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token claims"})
	}

	userIDStr, ok := claims["user_id"].(string)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token missing user_id"})
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user ID format in token"})
	}

	// Upgrade via Fiber WebSocket middleware
	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("ChatStreamHandler", "Starting WebSocket session", map[string]interface{}{"user_id": userID})
			internalWS.ServeWs(h.hub, conn, userID, h.onInbound)
			h.logger.Info("ChatStreamHandler", "WebSocket session ended", map[string]interface{}{"user_id": userID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

// onInbound handles frames clients push upstream over the socket. Only read
// receipts for now; sends stay on the REST path.
func (h *ChatStreamHandler) onInbound(userID uuid.UUID, frame internalWS.InboundFrame) {
	if frame.Type != "mark_read" || frame.RoomID == uuid.Nil {
		return
	}
	if _, err := h.chatService.MarkRead(context.Background(), userID, frame.RoomID); err != nil {
		h.logger.Warn("ChatStreamHandler", "Socket mark_read failed", map[string]interface{}{
			"user_id": userID, "room_id": frame.RoomID, "error": err.Error(),
		})
	}
}

// RegisterRoutes registers the stream endpoint.
func (h *ChatStreamHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ws", h.ServeWs)
}
