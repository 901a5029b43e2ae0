package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the uniform adapter over a chat backend. Every backend implements
// the same four operations; callers never branch on which backend they hold.
type Store interface {
	// GetOrCreateRoom resolves the single room for an unordered pair.
	// "Room already exists" is success, not an error.
	GetOrCreateRoom(ctx context.Context, userA, userB uuid.UUID) (*Room, error)

	// ListMessages returns messages strictly newer than since, ascending by
	// (created_at, id). Safe to call repeatedly with an advancing cursor.
	ListMessages(ctx context.Context, roomID uuid.UUID, since time.Time) ([]Message, error)

	// AppendMessage persists a message and returns the server-assigned id and
	// created_at. Calling it again with the same clientToken returns the
	// original message instead of appending a duplicate.
	AppendMessage(ctx context.Context, roomID, senderID uuid.UUID, body string, clientToken uuid.UUID) (*Message, error)

	// MarkRead stamps every unread partner message in the room. Marking
	// already-read messages is a no-op, not an error.
	MarkRead(ctx context.Context, roomID, readerID uuid.UUID) error
}

// PushStore is a Store that can additionally deliver new messages as they
// arrive. onError fires when the subscription dies after a successful start;
// the returned unsubscribe is safe to call after teardown.
type PushStore interface {
	Store

	Subscribe(ctx context.Context, roomID uuid.UUID, onBatch func([]Message), onError func(error)) (func(), error)
}
