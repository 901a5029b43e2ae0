package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestSelectorPrefersPush(t *testing.T) {
	store := NewMemoryStore()
	sel := NewSelector(store, store, true, nopLogger{})

	a, b := uuid.New(), uuid.New()
	room, _ := store.GetOrCreateRoom(context.Background(), a, b)

	tr, err := sel.Select(context.Background(), room.ID, func([]Message) {}, func(error) {})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	defer tr.Disconnect()

	if tr.Kind() != KindPush {
		t.Errorf("Kind = %s, want push", tr.Kind())
	}
}

func TestSelectorPushDisabledUsesPoll(t *testing.T) {
	store := NewMemoryStore()
	sel := NewSelector(store, store, false, nopLogger{})

	tr, err := sel.Select(context.Background(), uuid.New(), func([]Message) {}, func(error) {})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if tr.Kind() != KindPoll {
		t.Errorf("Kind = %s, want poll", tr.Kind())
	}
}

func TestSelectorFallsBackWhenSubscribeFails(t *testing.T) {
	store := NewMemoryStore()
	store.SetSubscribeError(errors.New("realtime down"))
	sel := NewSelector(store, store, true, nopLogger{})

	tr, err := sel.Select(context.Background(), uuid.New(), func([]Message) {}, func(error) {})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if tr.Kind() != KindPoll {
		t.Errorf("Kind = %s, want poll after push failure", tr.Kind())
	}
}

func TestSelectorNoTransport(t *testing.T) {
	store := NewMemoryStore()
	store.SetSubscribeError(errors.New("realtime down"))
	sel := NewSelector(nil, store, true, nopLogger{})

	_, err := sel.Select(context.Background(), uuid.New(), func([]Message) {}, func(error) {})
	if !errors.Is(err, ErrNoTransport) {
		t.Errorf("Select err = %v, want ErrNoTransport", err)
	}

	if _, err := sel.Fallback(context.Background(), uuid.New()); !errors.Is(err, ErrNoTransport) {
		t.Errorf("Fallback err = %v, want ErrNoTransport", err)
	}
}
