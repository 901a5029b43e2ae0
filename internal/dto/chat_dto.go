package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type RoomResponse struct {
	Id              uuid.UUID  `json:"id"`
	ParticipantA    uuid.UUID  `json:"participant_a"`
	ParticipantB    uuid.UUID  `json:"participant_b"`
	LastMessageText string     `json:"last_message_text"`
	LastMessageAt   *time.Time `json:"last_message_at"`
	UnreadCount     int64      `json:"unread_count"`
	CreatedAt       time.Time  `json:"created_at"`
}

type MessageResponse struct {
	Id          uuid.UUID  `json:"id"`
	RoomId      uuid.UUID  `json:"room_id"`
	SenderId    uuid.UUID  `json:"sender_id"`
	Body        string     `json:"body"`
	ClientToken uuid.UUID  `json:"client_token"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at"`
}

type AppendMessageRequest struct {
	Body        string    `json:"body" validate:"required,max=4000"`
	ClientToken uuid.UUID `json:"client_token" validate:"required"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

const (
	ChatQueueKindMessage = "message_appended"
	ChatQueueKindRead    = "messages_read"
)

// ChatQueueEnvelope wraps the two fan-out payload kinds sharing one topic.
type ChatQueueEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// PublishChatMessage is the internal queue payload emitted after a message is
// persisted; the consumer fans it out and refreshes room bookkeeping.
type PublishChatMessage struct {
	MessageId   uuid.UUID `json:"message_id"`
	RoomId      uuid.UUID `json:"room_id"`
	SenderId    uuid.UUID `json:"sender_id"`
	RecipientId uuid.UUID `json:"recipient_id"`
	Body        string    `json:"body"`
	ClientToken uuid.UUID `json:"client_token"`
	CreatedAt   time.Time `json:"created_at"`
}

// PublishChatRead is the internal queue payload emitted after a read receipt.
type PublishChatRead struct {
	RoomId    uuid.UUID `json:"room_id"`
	ReaderId  uuid.UUID `json:"reader_id"`
	PartnerId uuid.UUID `json:"partner_id"`
	ReadAt    time.Time `json:"read_at"`
	Updated   int64     `json:"updated"`
}
