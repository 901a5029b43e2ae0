package chat

import (
	"context"
	"time"

	"tripchat-be/internal/pkg/logger"

	"github.com/google/uuid"
)

// Kind identifies how new messages are learned.
type Kind string

const (
	KindPush Kind = "push"
	KindPoll Kind = "poll"
)

// Transport is one connected path to a chat backend for a single room.
type Transport interface {
	Kind() Kind
	Connect(ctx context.Context) error
	Disconnect()
	History(ctx context.Context, since time.Time) ([]Message, error)
	Send(ctx context.Context, senderID uuid.UUID, body string, clientToken uuid.UUID) (*Message, error)
	MarkRead(ctx context.Context, readerID uuid.UUID) error
}

// pollTransport learns new messages by re-calling ListMessages with an
// advancing cursor. It is stateless; the session owns the ticker.
type pollTransport struct {
	store  Store
	roomID uuid.UUID
}

func (t *pollTransport) Kind() Kind { return KindPoll }

func (t *pollTransport) Connect(ctx context.Context) error { return nil }

func (t *pollTransport) Disconnect() {}

func (t *pollTransport) History(ctx context.Context, since time.Time) ([]Message, error) {
	return t.store.ListMessages(ctx, t.roomID, since)
}

func (t *pollTransport) Send(ctx context.Context, senderID uuid.UUID, body string, clientToken uuid.UUID) (*Message, error) {
	return t.store.AppendMessage(ctx, t.roomID, senderID, body, clientToken)
}

func (t *pollTransport) MarkRead(ctx context.Context, readerID uuid.UUID) error {
	return t.store.MarkRead(ctx, t.roomID, readerID)
}

// pushTransport subscribes to the backend's realtime channel. History and
// Send still go through the store's request path.
type pushTransport struct {
	store   PushStore
	roomID  uuid.UUID
	onBatch func([]Message)
	onError func(error)
	unsub   func()
}

func (t *pushTransport) Kind() Kind { return KindPush }

func (t *pushTransport) Connect(ctx context.Context) error {
	unsub, err := t.store.Subscribe(ctx, t.roomID, t.onBatch, t.onError)
	if err != nil {
		return err
	}
	t.unsub = unsub
	return nil
}

func (t *pushTransport) Disconnect() {
	if t.unsub != nil {
		t.unsub()
		t.unsub = nil
	}
}

func (t *pushTransport) History(ctx context.Context, since time.Time) ([]Message, error) {
	return t.store.ListMessages(ctx, t.roomID, since)
}

func (t *pushTransport) Send(ctx context.Context, senderID uuid.UUID, body string, clientToken uuid.UUID) (*Message, error) {
	return t.store.AppendMessage(ctx, t.roomID, senderID, body, clientToken)
}

func (t *pushTransport) MarkRead(ctx context.Context, readerID uuid.UUID) error {
	return t.store.MarkRead(ctx, t.roomID, readerID)
}

// Selector picks the transport for a session: push when configured and its
// subscription comes up, poll otherwise. The choice is made once per session;
// only a hard push failure re-selects (downgrade, never upgrade).
type Selector struct {
	push        PushStore // nil when the deployment has no realtime backend
	poll        Store
	pushEnabled bool
	logger      logger.ILogger
}

func NewSelector(poll Store, push PushStore, pushEnabled bool, log logger.ILogger) *Selector {
	return &Selector{
		push:        push,
		poll:        poll,
		pushEnabled: pushEnabled,
		logger:      log,
	}
}

// Select returns a connected transport. Push initialization failure is not
// fatal; it falls back to poll. ErrNoTransport means both paths are dead.
func (s *Selector) Select(ctx context.Context, roomID uuid.UUID, onBatch func([]Message), onError func(error)) (Transport, error) {
	if s.pushEnabled && s.push != nil {
		t := &pushTransport{store: s.push, roomID: roomID, onBatch: onBatch, onError: onError}
		err := t.Connect(ctx)
		if err == nil {
			return t, nil
		}
		s.logger.Warn("TransportSelector", "Push connect failed, falling back to poll", map[string]interface{}{
			"room_id": roomID, "error": err.Error(),
		})
	}
	return s.Fallback(ctx, roomID)
}

// Fallback returns a connected poll transport, used both for initial
// selection without push and for mid-session downgrades.
func (s *Selector) Fallback(ctx context.Context, roomID uuid.UUID) (Transport, error) {
	if s.poll == nil {
		return nil, ErrNoTransport
	}
	t := &pollTransport{store: s.poll, roomID: roomID}
	if err := t.Connect(ctx); err != nil {
		return nil, ErrNoTransport
	}
	return t, nil
}
