package chat

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Room is the conversation context between exactly two participants.
// At most one room exists per unordered pair; rooms are never deleted.
type Room struct {
	ID              uuid.UUID  `json:"id"`
	ParticipantA    uuid.UUID  `json:"participant_a"`
	ParticipantB    uuid.UUID  `json:"participant_b"`
	LastMessageText string     `json:"last_message_text"`
	LastMessageAt   *time.Time `json:"last_message_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Partner returns the other participant of the room.
func (r *Room) Partner(userID uuid.UUID) uuid.UUID {
	if r.ParticipantA == userID {
		return r.ParticipantB
	}
	return r.ParticipantA
}

// Message is one chat message as known by a backend. The same logical
// message resolves to the same ID whether learned via push, poll or the
// send acknowledgement; ClientToken ties it back to an optimistic echo.
type Message struct {
	ID          uuid.UUID  `json:"id"`
	RoomID      uuid.UUID  `json:"room_id"`
	SenderID    uuid.UUID  `json:"sender_id"`
	Body        string     `json:"body"`
	ClientToken uuid.UUID  `json:"client_token"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at"`
}

// DeliveryState tracks the lifecycle of a timeline entry.
type DeliveryState string

const (
	// StateDelivered means the backend acknowledged the message.
	StateDelivered DeliveryState = "delivered"
	// StateSending is an optimistic echo awaiting acknowledgement.
	StateSending DeliveryState = "sending"
	// StateFailed is an echo whose append failed; it stays visible and can
	// be retried with the same client token.
	StateFailed DeliveryState = "failed"
)

// Entry is one element of the merged timeline exposed to the UI.
type Entry struct {
	Message
	State  DeliveryState `json:"state"`
	IsMine bool          `json:"is_mine"`

	// localAt orders not-yet-acknowledged echoes; for delivered entries the
	// server CreatedAt wins.
	localAt time.Time
}

var (
	// ErrRetryable marks failures the caller may retry (store unreachable,
	// transient backend errors).
	ErrRetryable = errors.New("retryable chat error")

	// ErrNotFound is returned by stores when a room or message is unknown.
	ErrNotFound = errors.New("not found")

	// ErrNoTransport means neither push nor poll could be initialized.
	ErrNoTransport = errors.New("no chat transport available")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("chat session closed")

	// ErrSendDisabled is returned when the session is permanently degraded.
	ErrSendDisabled = errors.New("sending disabled: no transport reachable")

	// ErrSameParticipant rejects a conversation of a user with themselves.
	ErrSameParticipant = errors.New("participants must differ")

	// ErrInvalidParticipant rejects nil user identifiers.
	ErrInvalidParticipant = errors.New("invalid participant id")
)
