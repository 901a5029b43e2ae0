package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testConfig() Config {
	return Config{
		PushEnabled:      true,
		PollInterval:     10 * time.Millisecond,
		DegradeThreshold: 3,
	}
}

func openTestSession(t *testing.T, store *MemoryStore, cfg Config) (*Session, uuid.UUID, uuid.UUID) {
	t.Helper()
	self, other := uuid.New(), uuid.New()
	eng := NewEngine(self, store, store, cfg, nopLogger{})
	s, err := eng.OpenSession(context.Background(), other)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	t.Cleanup(s.Close)
	return s, self, other
}

func entryByBody(entries []Entry, body string) (Entry, bool) {
	for _, e := range entries {
		if e.Body == body {
			return e, true
		}
	}
	return Entry{}, false
}

func TestSessionOpenLoadsHistory(t *testing.T) {
	store := NewMemoryStore()
	self, other := uuid.New(), uuid.New()
	room, _ := store.GetOrCreateRoom(context.Background(), self, other)
	store.AppendMessage(context.Background(), room.ID, other, "earlier", uuid.New())

	eng := NewEngine(self, store, store, testConfig(), nopLogger{})
	s, err := eng.OpenSession(context.Background(), other)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	defer s.Close()

	if s.Status() != StatusReady {
		t.Fatalf("Status = %s, want ready", s.Status())
	}
	if s.Room() == nil || s.Room().ID != room.ID {
		t.Fatal("session resolved a different room")
	}
	if _, ok := entryByBody(s.Entries(), "earlier"); !ok {
		t.Error("pre-existing message missing from timeline")
	}
}

func TestSessionSendEchoThenDelivered(t *testing.T) {
	store := NewMemoryStore()
	s, _, _ := openTestSession(t, store, testConfig())

	token, err := s.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if token == uuid.Nil {
		t.Fatal("Send returned nil token")
	}

	// The optimistic echo is visible immediately.
	e, ok := entryByBody(s.Entries(), "hello")
	if !ok {
		t.Fatal("echo not on timeline")
	}
	if !e.IsMine {
		t.Error("echo not marked as mine")
	}

	waitFor(t, time.Second, "delivery ack", func() bool {
		e, ok := entryByBody(s.Entries(), "hello")
		return ok && e.State == StateDelivered
	})

	// Exactly one entry for the send, ack reconciled in place.
	count := 0
	for _, e := range s.Entries() {
		if e.Body == "hello" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("message appears %d times, want 1", count)
	}
}

func TestSessionReceivesPartnerMessagesViaPush(t *testing.T) {
	store := NewMemoryStore()
	s, _, other := openTestSession(t, store, testConfig())
	room := s.Room()

	store.AppendMessage(context.Background(), room.ID, other, "incoming", uuid.New())

	waitFor(t, time.Second, "push delivery", func() bool {
		e, ok := entryByBody(s.Entries(), "incoming")
		return ok && !e.IsMine && e.State == StateDelivered
	})
}

func TestSessionSendFailureAndRetry(t *testing.T) {
	store := NewMemoryStore()
	s, _, _ := openTestSession(t, store, testConfig())

	store.SetAppendError(errors.New("backend down"))
	token, err := s.Send(context.Background(), "flaky")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitFor(t, time.Second, "failure flag", func() bool {
		e, ok := entryByBody(s.Entries(), "flaky")
		return ok && e.State == StateFailed
	})

	// Backend recovers; retry reuses the original token.
	store.SetAppendError(nil)
	if err := s.Retry(context.Background(), token); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	waitFor(t, time.Second, "retry delivery", func() bool {
		e, ok := entryByBody(s.Entries(), "flaky")
		return ok && e.State == StateDelivered
	})

	// Retrying a delivered message is rejected.
	if err := s.Retry(context.Background(), token); !errors.Is(err, ErrNotFound) {
		t.Errorf("Retry of delivered err = %v, want ErrNotFound", err)
	}
}

func TestSessionDowngradesToPollOnPushFailure(t *testing.T) {
	store := NewMemoryStore()
	s, _, other := openTestSession(t, store, testConfig())
	room := s.Room()

	store.FailSubscriptions(room.ID, errors.New("stream lost"))

	waitFor(t, time.Second, "fallback to poll", func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.active != nil && s.active.Kind() == KindPoll
	})
	if s.Status() != StatusReady {
		t.Fatalf("Status = %s, want ready after downgrade", s.Status())
	}

	// New partner messages keep arriving through the poll window.
	store.AppendMessage(context.Background(), room.ID, other, "after downgrade", uuid.New())
	waitFor(t, time.Second, "poll delivery", func() bool {
		_, ok := entryByBody(s.Entries(), "after downgrade")
		return ok
	})

	// Sending still works.
	if _, err := s.Send(context.Background(), "still sending"); err != nil {
		t.Errorf("Send after downgrade: %v", err)
	}
}

func TestSessionDegradesAfterConsecutivePollFailures(t *testing.T) {
	store := NewMemoryStore()
	cfg := testConfig()
	cfg.PushEnabled = false
	s, _, other := openTestSession(t, store, cfg)
	room := s.Room()

	store.SetListError(errors.New("backend down"))
	waitFor(t, time.Second, "degraded status", func() bool {
		return s.Status() == StatusDegraded
	})

	// Still degraded, sending stays possible (the append path is separate).
	if !s.SendEnabled() {
		t.Error("SendEnabled = false, want true while poll-degraded")
	}

	// One successful poll heals the session.
	store.SetListError(nil)
	waitFor(t, time.Second, "recovery", func() bool {
		return s.Status() == StatusReady
	})

	store.AppendMessage(context.Background(), room.ID, other, "after recovery", uuid.New())
	waitFor(t, time.Second, "post-recovery delivery", func() bool {
		_, ok := entryByBody(s.Entries(), "after recovery")
		return ok
	})
}

func TestSessionPermanentDegradedDisablesSend(t *testing.T) {
	store := NewMemoryStore()
	self, other := uuid.New(), uuid.New()

	// Push works at open, but there is no poll fallback behind it.
	sel := NewSelector(nil, store, true, nopLogger{})
	s := &Session{
		status:   StatusIdle,
		timeline: NewTimeline(self),
		selector: sel,
		cfg:      testConfig().withDefaults(),
		log:      nopLogger{},
		selfID:   self,
		updates:  make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
	if err := s.open(context.Background(), NewResolver(store, nopLogger{}), other); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	store.FailSubscriptions(s.Room().ID, errors.New("stream lost"))

	waitFor(t, time.Second, "permanent degraded", func() bool {
		return s.Status() == StatusDegraded && !s.SendEnabled()
	})

	if _, err := s.Send(context.Background(), "nope"); !errors.Is(err, ErrSendDisabled) {
		t.Errorf("Send err = %v, want ErrSendDisabled", err)
	}
}

func TestSessionCloseDiscardsLateWork(t *testing.T) {
	store := NewMemoryStore()
	s, _, other := openTestSession(t, store, testConfig())
	room := s.Room()

	before := len(s.Entries())
	s.Close()
	s.Close() // idempotent

	if s.Status() != StatusClosed {
		t.Fatalf("Status = %s, want closed", s.Status())
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done channel not closed")
	}

	// A batch from a subscription torn down after Close must be discarded.
	s.handlePushBatch(0, []Message{{
		ID:        uuid.New(),
		RoomID:    room.ID,
		SenderID:  other,
		Body:      "late",
		CreatedAt: time.Now().UTC(),
	}})
	if len(s.Entries()) != before {
		t.Error("late batch merged into a closed session")
	}

	if _, err := s.Send(context.Background(), "x"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Send err = %v, want ErrSessionClosed", err)
	}
	if err := s.MarkRead(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("MarkRead err = %v, want ErrSessionClosed", err)
	}
}

func TestSessionMarkRead(t *testing.T) {
	store := NewMemoryStore()
	s, _, other := openTestSession(t, store, testConfig())
	room := s.Room()

	store.AppendMessage(context.Background(), room.ID, other, "unread", uuid.New())
	waitFor(t, time.Second, "delivery", func() bool {
		_, ok := entryByBody(s.Entries(), "unread")
		return ok
	})

	if err := s.MarkRead(context.Background()); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	// Local timeline flips immediately.
	e, _ := entryByBody(s.Entries(), "unread")
	if e.ReadAt == nil {
		t.Error("partner entry not stamped locally")
	}

	// And the backend was updated.
	msgs, _ := store.ListMessages(context.Background(), room.ID, time.Time{})
	for _, m := range msgs {
		if m.SenderID == other && m.ReadAt == nil {
			t.Error("backend row not stamped")
		}
	}
}

// gatedStore parks the next AppendMessage until released, so a test can
// change the session's transport while a send is in flight.
type gatedStore struct {
	*MemoryStore
	armed   chan struct{} // drained by the one append that parks
	parked  chan struct{}
	release chan error
}

func (g *gatedStore) AppendMessage(ctx context.Context, roomID, senderID uuid.UUID, body string, token uuid.UUID) (*Message, error) {
	select {
	case <-g.armed:
		g.parked <- struct{}{}
		if err := <-g.release; err != nil {
			return nil, err
		}
	default:
	}
	return g.MemoryStore.AppendMessage(ctx, roomID, senderID, body, token)
}

func TestSessionSendFailureAcrossDowngradeFlagsEcho(t *testing.T) {
	store := NewMemoryStore()
	gated := &gatedStore{
		MemoryStore: store,
		armed:       make(chan struct{}, 1),
		parked:      make(chan struct{}),
		release:     make(chan error),
	}
	gated.armed <- struct{}{}

	self, other := uuid.New(), uuid.New()
	eng := NewEngine(self, gated, gated, testConfig(), nopLogger{})
	s, err := eng.OpenSession(context.Background(), other)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	defer s.Close()

	token, err := s.Send(context.Background(), "stuck")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-gated.parked

	// Kill the push stream while the send is still in flight; the session
	// falls back to polling.
	store.FailSubscriptions(s.Room().ID, errors.New("stream lost"))
	waitFor(t, time.Second, "fallback to poll", func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.active != nil && s.active.Kind() == KindPoll
	})

	// Now the parked send fails. The echo must flip to failed even though
	// the transport changed underneath it.
	gated.release <- errors.New("connection reset")
	waitFor(t, time.Second, "failure flag", func() bool {
		e, ok := entryByBody(s.Entries(), "stuck")
		return ok && e.State == StateFailed
	})

	// And the original token is still retryable.
	if err := s.Retry(context.Background(), token); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	waitFor(t, time.Second, "retry delivery", func() bool {
		e, ok := entryByBody(s.Entries(), "stuck")
		return ok && e.State == StateDelivered
	})
}
