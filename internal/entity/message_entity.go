package entity

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	Id          uuid.UUID
	RoomId      uuid.UUID
	SenderId    uuid.UUID
	Body        string
	ClientToken uuid.UUID
	CreatedAt   time.Time
	ReadAt      *time.Time
}
