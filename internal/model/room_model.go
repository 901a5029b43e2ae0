package model

import (
	"time"

	"github.com/google/uuid"
)

// Room is the conversation context between exactly two participants.
// The pair is stored normalized (smaller UUID in ParticipantA) so the
// unique index makes (A,B) and (B,A) the same row.
type Room struct {
	Id              uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ParticipantA    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:ux_chat_rooms_pair,priority:1;index"`
	ParticipantB    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:ux_chat_rooms_pair,priority:2;index"`
	LastMessageText string     `gorm:"type:text"`
	LastMessageAt   *time.Time `gorm:"index"`
	CreatedAt       time.Time  `gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime"`
}

func (Room) TableName() string {
	return "chat_rooms"
}
