package controller

import (
	"time"

	"tripchat-be/internal/dto"
	"tripchat-be/internal/pkg/serverutils"
	"tripchat-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	ResolveRoom(ctx *fiber.Ctx) error
	ListRooms(ctx *fiber.Ctx) error
	ListMessages(ctx *fiber.Ctx) error
	AppendMessage(ctx *fiber.Ctx) error
	MarkRead(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
}

func NewChatController(chatService service.IChatService) IChatController {
	return &chatController{
		chatService: chatService,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Get("rooms", c.roomsEntry)
	h.Get("rooms/:id/messages", c.ListMessages)
	h.Post("rooms/:id/messages", c.AppendMessage)
	h.Patch("rooms/:id/read", c.MarkRead)
}

// roomsEntry doubles as list and resolve: GET /rooms?with=<user> resolves
// (or creates) the pair room, GET /rooms lists the caller's inbox.
func (c *chatController) roomsEntry(ctx *fiber.Ctx) error {
	if ctx.Query("with", "") != "" {
		return c.ResolveRoom(ctx)
	}
	return c.ListRooms(ctx)
}

func (c *chatController) ResolveRoom(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	otherId, err := uuid.Parse(ctx.Query("with"))
	if err != nil {
		return serverutils.BadRequestError("Invalid partner id")
	}

	res, err := c.chatService.ResolveRoom(ctx.Context(), userId, otherId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success resolve room", res))
}

func (c *chatController) ListRooms(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	res, err := c.chatService.ListRooms(ctx.Context(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list rooms", res))
}

func (c *chatController) ListMessages(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	roomId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return serverutils.BadRequestError("Invalid room id")
	}

	// Optional poll cursor: return only messages strictly newer than this.
	var since *time.Time
	if raw := ctx.Query("since", ""); raw != "" {
		t, parseErr := time.Parse(time.RFC3339Nano, raw)
		if parseErr != nil {
			return serverutils.BadRequestError("Invalid since cursor, expected RFC3339")
		}
		since = &t
	}

	res, err := c.chatService.ListMessages(ctx.Context(), userId, roomId, since)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list messages", res))
}

func (c *chatController) AppendMessage(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	roomId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return serverutils.BadRequestError("Invalid room id")
	}

	var req dto.AppendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.AppendMessage(ctx.Context(), userId, roomId, &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success append message", res))
}

func (c *chatController) MarkRead(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	roomId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return serverutils.BadRequestError("Invalid room id")
	}

	res, err := c.chatService.MarkRead(ctx.Context(), userId, roomId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success mark read", res))
}
