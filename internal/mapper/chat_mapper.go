package mapper

import (
	"time"

	"tripchat-be/internal/entity"
	"tripchat-be/internal/model"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Room Mappers

func (m *ChatMapper) RoomToEntity(r *model.Room) *entity.Room {
	if r == nil {
		return nil
	}

	var updatedAt *time.Time
	if !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt
		updatedAt = &t
	}

	return &entity.Room{
		Id:              r.Id,
		ParticipantA:    r.ParticipantA,
		ParticipantB:    r.ParticipantB,
		LastMessageText: r.LastMessageText,
		LastMessageAt:   r.LastMessageAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       updatedAt,
	}
}

func (m *ChatMapper) RoomToModel(r *entity.Room) *model.Room {
	if r == nil {
		return nil
	}

	var updatedAt time.Time
	if r.UpdatedAt != nil {
		updatedAt = *r.UpdatedAt
	}

	return &model.Room{
		Id:              r.Id,
		ParticipantA:    r.ParticipantA,
		ParticipantB:    r.ParticipantB,
		LastMessageText: r.LastMessageText,
		LastMessageAt:   r.LastMessageAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       updatedAt,
	}
}

// Message Mappers

func (m *ChatMapper) MessageToEntity(msg *model.Message) *entity.Message {
	if msg == nil {
		return nil
	}

	return &entity.Message{
		Id:          msg.Id,
		RoomId:      msg.RoomId,
		SenderId:    msg.SenderId,
		Body:        msg.Body,
		ClientToken: msg.ClientToken,
		CreatedAt:   msg.CreatedAt,
		ReadAt:      msg.ReadAt,
	}
}

func (m *ChatMapper) MessageToModel(msg *entity.Message) *model.Message {
	if msg == nil {
		return nil
	}

	return &model.Message{
		Id:          msg.Id,
		RoomId:      msg.RoomId,
		SenderId:    msg.SenderId,
		Body:        msg.Body,
		ClientToken: msg.ClientToken,
		CreatedAt:   msg.CreatedAt,
		ReadAt:      msg.ReadAt,
	}
}
