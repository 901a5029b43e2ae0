package contract

import (
	"context"
	"time"

	"tripchat-be/internal/entity"
	"tripchat-be/internal/repository/specification"

	"github.com/google/uuid"
)

type MessageRepository interface {
	// Create persists a message. If the (room, client_token) pair already
	// exists the original row is returned instead, so send retries never
	// produce duplicates. created reports whether a new row was written;
	// callers must not repeat side effects for a replay.
	Create(ctx context.Context, message *entity.Message) (created bool, err error)
	// MarkRead stamps read_at on every unread partner message in the room.
	// Already-read rows are untouched, so the call is idempotent and read_at
	// never regresses. Returns the number of rows updated.
	MarkRead(ctx context.Context, roomId, readerId uuid.UUID, at time.Time) (int64, error)
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Message, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Message, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
