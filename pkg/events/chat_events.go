package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeChatRoomCreated     = "CHAT_ROOM_CREATED"
	TypeChatMessageAppended = "CHAT_MESSAGE_APPENDED"
	TypeChatMessagesRead    = "CHAT_MESSAGES_READ"
)

// ChatMessageAppended is emitted every time a message is persisted.
// The notification dispatcher and the realtime fan-out both consume it.
type ChatMessageAppended struct {
	MessageID   uuid.UUID
	RoomID      uuid.UUID
	SenderID    uuid.UUID
	RecipientID uuid.UUID
	Body        string
	ClientToken uuid.UUID
	CreatedAt   time.Time
}

func (e ChatMessageAppended) EventType() string {
	return TypeChatMessageAppended
}

func (e ChatMessageAppended) Payload() map[string]interface{} {
	return map[string]interface{}{
		"message_id":   e.MessageID.String(),
		"room_id":      e.RoomID.String(),
		"sender_id":    e.SenderID.String(),
		"user_id":      e.RecipientID.String(), // recipient, convention key for SELF targeting
		"body":         e.Body,
		"client_token": e.ClientToken.String(),
		"created_at":   e.CreatedAt.Format(time.RFC3339Nano),
	}
}

func (e ChatMessageAppended) Timestamp() time.Time {
	return e.CreatedAt
}

// ChatRoomCreated is emitted on first contact between two travelers/guides.
type ChatRoomCreated struct {
	RoomID       uuid.UUID
	ParticipantA uuid.UUID
	ParticipantB uuid.UUID
	OccurredAt   time.Time
}

func (e ChatRoomCreated) EventType() string {
	return TypeChatRoomCreated
}

func (e ChatRoomCreated) Payload() map[string]interface{} {
	return map[string]interface{}{
		"room_id":       e.RoomID.String(),
		"participant_a": e.ParticipantA.String(),
		"participant_b": e.ParticipantB.String(),
	}
}

func (e ChatRoomCreated) Timestamp() time.Time {
	return e.OccurredAt
}

// ChatMessagesRead is emitted when a reader drains a room.
type ChatMessagesRead struct {
	RoomID     uuid.UUID
	ReaderID   uuid.UUID
	Count      int64
	OccurredAt time.Time
}

func (e ChatMessagesRead) EventType() string {
	return TypeChatMessagesRead
}

func (e ChatMessagesRead) Payload() map[string]interface{} {
	return map[string]interface{}{
		"room_id":   e.RoomID.String(),
		"reader_id": e.ReaderID.String(),
		"count":     e.Count,
	}
}

func (e ChatMessagesRead) Timestamp() time.Time {
	return e.OccurredAt
}
