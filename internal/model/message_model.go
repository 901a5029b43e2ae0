package model

import (
	"time"

	"github.com/google/uuid"
)

// Message belongs to exactly one room for its lifetime. ClientToken is the
// client-generated idempotency token; the unique index on (room, token) is
// what makes send retries safe.
type Message struct {
	Id          uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RoomId      uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:ux_chat_messages_token,priority:1"`
	SenderId    uuid.UUID  `gorm:"type:uuid;not null;index"`
	Body        string     `gorm:"type:text;not null"`
	ClientToken uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:ux_chat_messages_token,priority:2"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index"`
	ReadAt      *time.Time `gorm:"index"`
}

func (Message) TableName() string {
	return "chat_messages"
}
