package entity

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	Id              uuid.UUID
	ParticipantA    uuid.UUID
	ParticipantB    uuid.UUID
	LastMessageText string
	LastMessageAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

// Partner returns the other participant of the room.
func (r *Room) Partner(userId uuid.UUID) uuid.UUID {
	if r.ParticipantA == userId {
		return r.ParticipantB
	}
	return r.ParticipantA
}

// HasParticipant reports whether userId belongs to this room.
func (r *Room) HasParticipant(userId uuid.UUID) bool {
	return r.ParticipantA == userId || r.ParticipantB == userId
}
