package service

import (
	"context"
	"encoding/json"

	"tripchat-be/internal/dto"
	"tripchat-be/internal/pkg/logger"
	"tripchat-be/internal/repository/unitofwork"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ChatDelivery pushes realtime updates to connected devices. Implemented by
// the websocket hub.
type ChatDelivery interface {
	Send(userID uuid.UUID, eventType string, payload interface{})
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService drains the chat fan-out queue: after a message is
// persisted it refreshes the room summary, bumps the recipient's unread
// counter and pushes the message over websocket; after a read receipt it
// resets the counter and notifies the sender's devices.
type consumerService struct {
	pubSub     *gochannel.GoChannel
	topicName  string
	uowFactory unitofwork.RepositoryFactory
	rdb        *redis.Client
	delivery   ChatDelivery
	logger     logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	rdb *redis.Client,
	delivery ChatDelivery,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:     pubSub,
		topicName:  topicName,
		uowFactory: uowFactory,
		rdb:        rdb,
		delivery:   delivery,
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var envelope dto.ChatQueueEnvelope
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
		cs.logger.Error("ConsumerService", "Failed to unmarshal queue envelope", map[string]interface{}{"error": err.Error()})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	switch envelope.Kind {
	case dto.ChatQueueKindMessage:
		cs.handleMessageAppended(ctx, msg, envelope.Payload)
	case dto.ChatQueueKindRead:
		cs.handleMessagesRead(ctx, msg, envelope.Payload)
	default:
		cs.logger.Warn("ConsumerService", "Unknown queue kind", map[string]interface{}{"kind": envelope.Kind})
		msg.Ack()
	}
}

func (cs *consumerService) handleMessageAppended(ctx context.Context, msg *message.Message, raw json.RawMessage) {
	var payload dto.PublishChatMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		cs.logger.Error("ConsumerService", "Bad message payload", map[string]interface{}{"error": err.Error()})
		msg.Ack()
		return
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)

	// Room summary drives the inbox ordering and preview text.
	if err := uow.RoomRepository().UpdateSummary(ctx, payload.RoomId, payload.Body, payload.CreatedAt); err != nil {
		cs.logger.Error("ConsumerService", "Failed to update room summary", map[string]interface{}{
			"room_id": payload.RoomId, "error": err.Error(),
		})
		msg.Nack() // Retriable
		return
	}

	// Unread counter for the recipient's inbox badge. Best effort; the DB
	// count remains the source of truth.
	if cs.rdb != nil {
		if err := cs.rdb.Incr(ctx, UnreadKey(payload.RoomId, payload.RecipientId)).Err(); err != nil {
			cs.logger.Warn("ConsumerService", "Failed to bump unread counter", map[string]interface{}{
				"room_id": payload.RoomId, "error": err.Error(),
			})
		}
	}

	if cs.delivery != nil {
		cs.delivery.Send(payload.RecipientId, "chat_message", dto.MessageResponse{
			Id:          payload.MessageId,
			RoomId:      payload.RoomId,
			SenderId:    payload.SenderId,
			Body:        payload.Body,
			ClientToken: payload.ClientToken,
			CreatedAt:   payload.CreatedAt,
		})
	}

	msg.Ack()
}

func (cs *consumerService) handleMessagesRead(ctx context.Context, msg *message.Message, raw json.RawMessage) {
	var payload dto.PublishChatRead
	if err := json.Unmarshal(raw, &payload); err != nil {
		cs.logger.Error("ConsumerService", "Bad read payload", map[string]interface{}{"error": err.Error()})
		msg.Ack()
		return
	}

	if cs.rdb != nil {
		if err := cs.rdb.Del(ctx, UnreadKey(payload.RoomId, payload.ReaderId)).Err(); err != nil {
			cs.logger.Warn("ConsumerService", "Failed to reset unread counter", map[string]interface{}{
				"room_id": payload.RoomId, "error": err.Error(),
			})
		}
	}

	// Let the partner's devices flip their sent-message ticks.
	if cs.delivery != nil && payload.Updated > 0 {
		cs.delivery.Send(payload.PartnerId, "messages_read", payload)
	}

	msg.Ack()
}
