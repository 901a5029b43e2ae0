package specification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ByRoomID scopes a query to one room.
type ByRoomID struct {
	RoomID uuid.UUID
}

func (s ByRoomID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("room_id = ?", s.RoomID)
}

// ByParticipant matches rooms containing the given user on either side.
type ByParticipant struct {
	UserID uuid.UUID
}

func (s ByParticipant) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("participant_a = ? OR participant_b = ?", s.UserID, s.UserID)
}

// ByPair matches the room for a normalized participant pair.
// Callers must pass the pair already ordered (A < B).
type ByPair struct {
	ParticipantA uuid.UUID
	ParticipantB uuid.UUID
}

func (s ByPair) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("participant_a = ? AND participant_b = ?", s.ParticipantA, s.ParticipantB)
}

// SinceCreatedAt is the poll cursor: strictly newer than the high-water mark.
type SinceCreatedAt struct {
	Since time.Time
}

func (s SinceCreatedAt) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("created_at > ?", s.Since)
}

// ByClientToken matches a message by its idempotency token within a room.
type ByClientToken struct {
	RoomID uuid.UUID
	Token  uuid.UUID
}

func (s ByClientToken) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("room_id = ? AND client_token = ?", s.RoomID, s.Token)
}

// UnreadForReader matches messages the reader has not seen yet, i.e. partner
// messages with a null read_at.
type UnreadForReader struct {
	RoomID   uuid.UUID
	ReaderID uuid.UUID
}

func (s UnreadForReader) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("room_id = ? AND sender_id <> ? AND read_at IS NULL", s.RoomID, s.ReaderID)
}
