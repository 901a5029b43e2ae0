package service

import (
	"context"
	"testing"
	"time"

	"tripchat-be/internal/dto"
	"tripchat-be/internal/entity"
	"tripchat-be/internal/repository/contract"
	"tripchat-be/internal/repository/specification"
	"tripchat-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

type testLogger struct{}

func (testLogger) Debug(module, message string, details map[string]interface{}) {}
func (testLogger) Info(module, message string, details map[string]interface{})  {}
func (testLogger) Warn(module, message string, details map[string]interface{})  {}
func (testLogger) Error(module, message string, details map[string]interface{}) {}
func (testLogger) Sync() error                                                  { return nil }

// fakeRoomRepo serves one fixed room.
type fakeRoomRepo struct {
	room *entity.Room
}

func (f *fakeRoomRepo) GetOrCreate(ctx context.Context, userA, userB uuid.UUID) (*entity.Room, bool, error) {
	return f.room, false, nil
}

func (f *fakeRoomRepo) UpdateSummary(ctx context.Context, roomId uuid.UUID, text string, at time.Time) error {
	return nil
}

func (f *fakeRoomRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Room, error) {
	return f.room, nil
}

func (f *fakeRoomRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Room, error) {
	return []*entity.Room{f.room}, nil
}

func (f *fakeRoomRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	return 1, nil
}

// fakeMessageRepo keeps messages in a slice with token-idempotent Create.
type fakeMessageRepo struct {
	messages []*entity.Message
}

func (f *fakeMessageRepo) Create(ctx context.Context, message *entity.Message) (bool, error) {
	for _, m := range f.messages {
		if m.RoomId == message.RoomId && m.ClientToken == message.ClientToken {
			*message = *m
			return false, nil
		}
	}
	cp := *message
	f.messages = append(f.messages, &cp)
	return true, nil
}

func (f *fakeMessageRepo) MarkRead(ctx context.Context, roomId, readerId uuid.UUID, at time.Time) (int64, error) {
	var n int64
	for _, m := range f.messages {
		if m.RoomId == roomId && m.SenderId != readerId && m.ReadAt == nil {
			t := at
			m.ReadAt = &t
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Message, error) {
	return nil, nil
}

func (f *fakeMessageRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Message, error) {
	return f.messages, nil
}

func (f *fakeMessageRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	return int64(len(f.messages)), nil
}

type fakeUow struct {
	rooms    contract.RoomRepository
	messages contract.MessageRepository
}

func (f *fakeUow) Begin(ctx context.Context) error               { return nil }
func (f *fakeUow) Commit() error                                 { return nil }
func (f *fakeUow) Rollback() error                               { return nil }
func (f *fakeUow) RoomRepository() contract.RoomRepository       { return f.rooms }
func (f *fakeUow) MessageRepository() contract.MessageRepository { return f.messages }

type fakeUowFactory struct {
	uow *fakeUow
}

func (f *fakeUowFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return f.uow
}

// countingPublisher records every envelope handed to the fan-out queue.
type countingPublisher struct {
	published [][]byte
}

func (p *countingPublisher) Publish(ctx context.Context, payload []byte) error {
	p.published = append(p.published, payload)
	return nil
}

func TestAppendMessageReplaySkipsFanOut(t *testing.T) {
	traveler, guide := uuid.New(), uuid.New()
	room := &entity.Room{
		Id:           uuid.New(),
		ParticipantA: traveler,
		ParticipantB: guide,
		CreatedAt:    time.Now(),
	}
	msgRepo := &fakeMessageRepo{}
	factory := &fakeUowFactory{uow: &fakeUow{
		rooms:    &fakeRoomRepo{room: room},
		messages: msgRepo,
	}}
	pub := &countingPublisher{}
	svc := NewChatService(factory, pub, nil, nil, testLogger{})

	req := &dto.AppendMessageRequest{Body: "see you at noon", ClientToken: uuid.New()}

	first, err := svc.AppendMessage(context.Background(), traveler, room.Id, req)
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("published = %d envelopes, want 1", len(pub.published))
	}

	// The client retries the same token after a lost response. The original
	// row comes back and nothing is queued again: no second unread
	// increment, websocket push or notification.
	retry, err := svc.AppendMessage(context.Background(), traveler, room.Id, req)
	if err != nil {
		t.Fatalf("AppendMessage retry: %v", err)
	}
	if retry.Id != first.Id {
		t.Errorf("retry id = %s, want original %s", retry.Id, first.Id)
	}
	if len(pub.published) != 1 {
		t.Errorf("published = %d envelopes after replay, want still 1", len(pub.published))
	}
	if len(msgRepo.messages) != 1 {
		t.Errorf("stored = %d messages, want 1", len(msgRepo.messages))
	}
}
