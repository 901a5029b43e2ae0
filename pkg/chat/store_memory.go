package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// MemoryStore is a complete in-process backend implementing PushStore. It
// backs unit tests and offline development, and doubles as the reference
// semantics for the adapters: room-per-pair uniqueness, token-idempotent
// appends, forward-only read receipts, subscription fan-out.
type MemoryStore struct {
	mu       sync.Mutex
	rooms    *cache.Cache // pair key -> Room
	byRoomID map[uuid.UUID]*Room
	messages map[uuid.UUID][]Message
	subs     map[uuid.UUID]map[int]func([]Message)
	errSubs  map[uuid.UUID]map[int]func(error)
	nextSub  int
	lastTick time.Time

	// Failure injection for tests.
	appendErr    error
	listErr      error
	subscribeErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    cache.New(cache.NoExpiration, 0),
		byRoomID: make(map[uuid.UUID]*Room),
		messages: make(map[uuid.UUID][]Message),
		subs:     make(map[uuid.UUID]map[int]func([]Message)),
		errSubs:  make(map[uuid.UUID]map[int]func(error)),
	}
}

// now returns a strictly increasing timestamp so created_at is a total
// per-room order even when appends land within the same clock tick.
func (s *MemoryStore) now() time.Time {
	t := time.Now().UTC()
	if !t.After(s.lastTick) {
		t = s.lastTick.Add(time.Microsecond)
	}
	s.lastTick = t
	return t
}

func (s *MemoryStore) GetOrCreateRoom(ctx context.Context, userA, userB uuid.UUID) (*Room, error) {
	if userA == uuid.Nil || userB == uuid.Nil {
		return nil, ErrInvalidParticipant
	}
	if userA == userB {
		return nil, ErrSameParticipant
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(userA, userB)
	if x, found := s.rooms.Get(key); found {
		room := x.(Room)
		return &room, nil
	}

	a, b := userA, userB
	if a.String() > b.String() {
		a, b = b, a
	}
	room := Room{
		ID:           uuid.New(),
		ParticipantA: a,
		ParticipantB: b,
		CreatedAt:    s.now(),
	}
	s.rooms.Set(key, room, cache.NoExpiration)
	stored := room
	s.byRoomID[room.ID] = &stored
	return &room, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, roomID uuid.UUID, since time.Time) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listErr != nil {
		return nil, s.listErr
	}
	if _, ok := s.byRoomID[roomID]; !ok {
		return nil, ErrNotFound
	}

	var out []Message
	for _, m := range s.messages[roomID] {
		if m.CreatedAt.After(since) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, roomID, senderID uuid.UUID, body string, clientToken uuid.UUID) (*Message, error) {
	s.mu.Lock()

	if s.appendErr != nil {
		err := s.appendErr
		s.mu.Unlock()
		return nil, err
	}
	room, ok := s.byRoomID[roomID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	// Token-idempotent: a retry of an already-persisted send returns the
	// original row, same id and created_at.
	for _, m := range s.messages[roomID] {
		if m.ClientToken == clientToken {
			s.mu.Unlock()
			return &m, nil
		}
	}

	msg := Message{
		ID:          uuid.New(),
		RoomID:      roomID,
		SenderID:    senderID,
		Body:        body,
		ClientToken: clientToken,
		CreatedAt:   s.now(),
	}
	s.messages[roomID] = append(s.messages[roomID], msg)

	room.LastMessageText = body
	at := msg.CreatedAt
	room.LastMessageAt = &at
	s.rooms.Set(pairKey(room.ParticipantA, room.ParticipantB), *room, cache.NoExpiration)

	handlers := make([]func([]Message), 0, len(s.subs[roomID]))
	for _, fn := range s.subs[roomID] {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()

	// Fan out after releasing the lock; subscribers merge into their own
	// sessions and may call back into the store.
	for _, fn := range handlers {
		fn([]Message{msg})
	}
	return &msg, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, roomID, readerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byRoomID[roomID]; !ok {
		return ErrNotFound
	}

	at := s.now()
	msgs := s.messages[roomID]
	for i := range msgs {
		if msgs[i].SenderID != readerID && msgs[i].ReadAt == nil {
			stamp := at
			msgs[i].ReadAt = &stamp
		}
	}
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, roomID uuid.UUID, onBatch func([]Message), onError func(error)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}

	id := s.nextSub
	s.nextSub++
	if s.subs[roomID] == nil {
		s.subs[roomID] = make(map[int]func([]Message))
		s.errSubs[roomID] = make(map[int]func(error))
	}
	s.subs[roomID][id] = onBatch
	s.errSubs[roomID][id] = onError

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[roomID], id)
		delete(s.errSubs[roomID], id)
	}, nil
}

// Test hooks.

// SetAppendError makes subsequent AppendMessage calls fail with err.
func (s *MemoryStore) SetAppendError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendErr = err
}

// SetListError makes subsequent ListMessages calls fail with err.
func (s *MemoryStore) SetListError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

// SetSubscribeError makes subsequent Subscribe calls fail with err.
func (s *MemoryStore) SetSubscribeError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribeErr = err
}

// FailSubscriptions simulates a realtime outage: every live subscription on
// the room receives err and is dropped.
func (s *MemoryStore) FailSubscriptions(roomID uuid.UUID, err error) {
	s.mu.Lock()
	handlers := make([]func(error), 0, len(s.errSubs[roomID]))
	for _, fn := range s.errSubs[roomID] {
		handlers = append(handlers, fn)
	}
	s.subs[roomID] = make(map[int]func([]Message))
	s.errSubs[roomID] = make(map[int]func(error))
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(err)
	}
}
