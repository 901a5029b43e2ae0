package contract

import (
	"context"
	"time"

	"tripchat-be/internal/entity"
	"tripchat-be/internal/repository/specification"

	"github.com/google/uuid"
)

type RoomRepository interface {
	// GetOrCreate resolves the single room for an unordered participant pair,
	// creating it on first contact. A concurrent create from the other device
	// is absorbed (conflict means the room exists) and reports created=false.
	GetOrCreate(ctx context.Context, userA, userB uuid.UUID) (room *entity.Room, created bool, err error)
	UpdateSummary(ctx context.Context, roomId uuid.UUID, text string, at time.Time) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Room, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Room, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
