package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tripchat-be/internal/dto"
	"tripchat-be/internal/entity"
	"tripchat-be/internal/pkg/logger"
	"tripchat-be/internal/pkg/serverutils"
	"tripchat-be/internal/repository/specification"
	"tripchat-be/internal/repository/unitofwork"
	"tripchat-be/pkg/events"
	pktNats "tripchat-be/pkg/nats"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type IChatService interface {
	ResolveRoom(ctx context.Context, userId, otherId uuid.UUID) (*dto.RoomResponse, error)
	ListRooms(ctx context.Context, userId uuid.UUID) ([]*dto.RoomResponse, error)
	ListMessages(ctx context.Context, userId, roomId uuid.UUID, since *time.Time) ([]*dto.MessageResponse, error)
	AppendMessage(ctx context.Context, userId, roomId uuid.UUID, req *dto.AppendMessageRequest) (*dto.MessageResponse, error)
	MarkRead(ctx context.Context, userId, roomId uuid.UUID) (*dto.MarkReadResponse, error)
}

type chatService struct {
	uowFactory       unitofwork.RepositoryFactory
	publisherService IPublisherService
	eventPublisher   *pktNats.Publisher
	rdb              *redis.Client
	logger           logger.ILogger
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	publisherService IPublisherService,
	eventPublisher *pktNats.Publisher,
	rdb *redis.Client,
	log logger.ILogger,
) IChatService {
	return &chatService{
		uowFactory:       uowFactory,
		publisherService: publisherService,
		eventPublisher:   eventPublisher,
		rdb:              rdb,
		logger:           log,
	}
}

// UnreadKey is the Redis counter for one user's unread messages in one room.
// The consumer increments it on append and resets it on read; ListRooms reads
// it with a DB fallback.
func UnreadKey(roomId, userId uuid.UUID) string {
	return fmt.Sprintf("chat:unread:%s:%s", roomId, userId)
}

func (c *chatService) ResolveRoom(ctx context.Context, userId, otherId uuid.UUID) (*dto.RoomResponse, error) {
	if otherId == uuid.Nil {
		return nil, serverutils.BadRequestError("Partner id is required")
	}
	if otherId == userId {
		return nil, serverutils.BadRequestError("Cannot open a room with yourself")
	}

	uow := c.uowFactory.NewUnitOfWork(ctx)
	room, created, err := uow.RoomRepository().GetOrCreate(ctx, userId, otherId)
	if err != nil {
		return nil, err
	}

	if created && c.eventPublisher != nil {
		evt := events.ChatRoomCreated{
			RoomID:       room.Id,
			ParticipantA: room.ParticipantA,
			ParticipantB: room.ParticipantB,
			OccurredAt:   time.Now(),
		}
		// Auxiliary; a lost event never fails the request
		if err := c.eventPublisher.Publish(ctx, evt); err != nil {
			c.logger.Warn("ChatService", "Failed to publish CHAT_ROOM_CREATED", map[string]interface{}{"error": err.Error()})
		}
	}

	return c.roomToResponse(ctx, room, userId), nil
}

func (c *chatService) ListRooms(ctx context.Context, userId uuid.UUID) ([]*dto.RoomResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	rooms, err := uow.RoomRepository().FindAll(ctx,
		specification.ByParticipant{UserID: userId},
		specification.OrderBy{Field: "last_message_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.RoomResponse, len(rooms))
	for i, room := range rooms {
		res[i] = c.roomToResponse(ctx, room, userId)
	}
	return res, nil
}

func (c *chatService) ListMessages(ctx context.Context, userId, roomId uuid.UUID, since *time.Time) ([]*dto.MessageResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	if _, err := c.memberRoom(ctx, uow, roomId, userId); err != nil {
		return nil, err
	}

	specs := []specification.Specification{
		specification.ByRoomID{RoomID: roomId},
		// id breaks created_at ties so equal-timestamp rows page the same
		// way on every request.
		specification.OrderBy{Field: "created_at", Desc: false},
		specification.OrderBy{Field: "id", Desc: false},
	}
	if since != nil {
		specs = append(specs, specification.SinceCreatedAt{Since: *since})
	}

	messages, err := uow.MessageRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.MessageResponse, len(messages))
	for i, m := range messages {
		res[i] = messageToResponse(m)
	}
	return res, nil
}

func (c *chatService) AppendMessage(ctx context.Context, userId, roomId uuid.UUID, req *dto.AppendMessageRequest) (*dto.MessageResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	room, err := c.memberRoom(ctx, uow, roomId, userId)
	if err != nil {
		return nil, err
	}

	msg := entity.Message{
		Id:          uuid.New(),
		RoomId:      roomId,
		SenderId:    userId,
		Body:        req.Body,
		ClientToken: req.ClientToken,
		CreatedAt:   time.Now(),
	}
	// Create is token-idempotent: a retried send comes back with the
	// originally persisted id and created_at.
	created, err := uow.MessageRepository().Create(ctx, &msg)
	if err != nil {
		return nil, err
	}
	if !created {
		// Replay of a send that already landed. The fan-out (summary,
		// unread counter, websocket, events) ran on the first attempt;
		// running it again would double-count and double-notify.
		return messageToResponse(&msg), nil
	}

	recipient := room.Partner(userId)

	// Queue the fan-out work: room summary, unread counter, websocket push.
	queued := dto.PublishChatMessage{
		MessageId:   msg.Id,
		RoomId:      roomId,
		SenderId:    userId,
		RecipientId: recipient,
		Body:        msg.Body,
		ClientToken: msg.ClientToken,
		CreatedAt:   msg.CreatedAt,
	}
	if err := c.publishQueued(ctx, dto.ChatQueueKindMessage, queued); err != nil {
		return nil, err
	}

	if c.eventPublisher != nil {
		evt := events.ChatMessageAppended{
			MessageID:   msg.Id,
			RoomID:      roomId,
			SenderID:    userId,
			RecipientID: recipient,
			Body:        msg.Body,
			ClientToken: msg.ClientToken,
			CreatedAt:   msg.CreatedAt,
		}
		if err := c.eventPublisher.Publish(ctx, evt); err != nil {
			c.logger.Warn("ChatService", "Failed to publish CHAT_MESSAGE_APPENDED", map[string]interface{}{"error": err.Error()})
		}

		// Realtime path for subscribed chat clients.
		if err := c.eventPublisher.PublishRoom(roomId.String(), messageToResponse(&msg)); err != nil {
			c.logger.Warn("ChatService", "Failed to publish room message", map[string]interface{}{
				"room_id": roomId, "error": err.Error(),
			})
		}
	}

	return messageToResponse(&msg), nil
}

func (c *chatService) MarkRead(ctx context.Context, userId, roomId uuid.UUID) (*dto.MarkReadResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	room, err := c.memberRoom(ctx, uow, roomId, userId)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updated, err := uow.MessageRepository().MarkRead(ctx, roomId, userId, now)
	if err != nil {
		return nil, err
	}

	queued := dto.PublishChatRead{
		RoomId:    roomId,
		ReaderId:  userId,
		PartnerId: room.Partner(userId),
		ReadAt:    now,
		Updated:   updated,
	}
	if err := c.publishQueued(ctx, dto.ChatQueueKindRead, queued); err != nil {
		return nil, err
	}

	if updated > 0 && c.eventPublisher != nil {
		evt := events.ChatMessagesRead{
			RoomID:     roomId,
			ReaderID:   userId,
			Count:      updated,
			OccurredAt: now,
		}
		if err := c.eventPublisher.Publish(ctx, evt); err != nil {
			c.logger.Warn("ChatService", "Failed to publish CHAT_MESSAGES_READ", map[string]interface{}{"error": err.Error()})
		}
	}

	return &dto.MarkReadResponse{Updated: updated}, nil
}

func (c *chatService) publishQueued(ctx context.Context, kind string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	envJson, err := json.Marshal(dto.ChatQueueEnvelope{Kind: kind, Payload: raw})
	if err != nil {
		return err
	}
	return c.publisherService.Publish(ctx, envJson)
}

// memberRoom loads a room and verifies the caller belongs to it. A foreign
// room reads as not found on purpose, so room ids cannot be probed.
func (c *chatService) memberRoom(ctx context.Context, uow unitofwork.UnitOfWork, roomId, userId uuid.UUID) (*entity.Room, error) {
	room, err := uow.RoomRepository().FindOne(ctx, specification.ByID{ID: roomId})
	if err != nil {
		return nil, err
	}
	if room == nil || !room.HasParticipant(userId) {
		return nil, serverutils.NotFoundError("Room not found")
	}
	return room, nil
}

func (c *chatService) roomToResponse(ctx context.Context, room *entity.Room, userId uuid.UUID) *dto.RoomResponse {
	return &dto.RoomResponse{
		Id:              room.Id,
		ParticipantA:    room.ParticipantA,
		ParticipantB:    room.ParticipantB,
		LastMessageText: room.LastMessageText,
		LastMessageAt:   room.LastMessageAt,
		UnreadCount:     c.unreadCount(ctx, room.Id, userId),
		CreatedAt:       room.CreatedAt,
	}
}

// unreadCount prefers the Redis counter and falls back to a DB count,
// backfilling the cache on a miss.
func (c *chatService) unreadCount(ctx context.Context, roomId, userId uuid.UUID) int64 {
	if c.rdb != nil {
		val, err := c.rdb.Get(ctx, UnreadKey(roomId, userId)).Result()
		if err == nil {
			if n, parseErr := strconv.ParseInt(val, 10, 64); parseErr == nil {
				return n
			}
		}
	}

	uow := c.uowFactory.NewUnitOfWork(ctx)
	n, err := uow.MessageRepository().Count(ctx,
		specification.UnreadForReader{RoomID: roomId, ReaderID: userId},
	)
	if err != nil {
		c.logger.Warn("ChatService", "Unread count query failed", map[string]interface{}{
			"room_id": roomId, "error": err.Error(),
		})
		return 0
	}
	if c.rdb != nil {
		c.rdb.Set(ctx, UnreadKey(roomId, userId), n, 24*time.Hour)
	}
	return n
}

func messageToResponse(m *entity.Message) *dto.MessageResponse {
	return &dto.MessageResponse{
		Id:          m.Id,
		RoomId:      m.RoomId,
		SenderId:    m.SenderId,
		Body:        m.Body,
		ClientToken: m.ClientToken,
		CreatedAt:   m.CreatedAt,
		ReadAt:      m.ReadAt,
	}
}
