package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func writeEnvelope(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": message,
		"data":    data,
	})
}

func TestRESTStoreGetOrCreateRoom(t *testing.T) {
	self, other := uuid.New(), uuid.New()
	room := Room{ID: uuid.New(), ParticipantA: self, ParticipantB: other, CreatedAt: time.Now().UTC()}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/v1/rooms" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("with"); got != other.String() {
			t.Errorf("with = %s, want %s", got, other)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("auth header = %q", got)
		}
		writeEnvelope(w, http.StatusOK, "Success resolve room", room)
	}))
	defer srv.Close()

	store := NewRESTStore(srv.URL, "sekrit", self)
	got, err := store.GetOrCreateRoom(context.Background(), self, other)
	if err != nil {
		t.Fatalf("GetOrCreateRoom: %v", err)
	}
	if got.ID != room.ID {
		t.Errorf("room id = %s, want %s", got.ID, room.ID)
	}
}

func TestRESTStoreListMessagesSinceCursor(t *testing.T) {
	self := uuid.New()
	roomID := uuid.New()
	since := time.Now().UTC().Truncate(time.Millisecond)
	msg := Message{ID: uuid.New(), RoomID: roomID, SenderID: self, Body: "hi", CreatedAt: since.Add(time.Second)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("path = %s", r.URL.Path)
		}
		raw := r.URL.Query().Get("since")
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil || !parsed.Equal(since) {
			t.Errorf("since = %q, want %s", raw, since.Format(time.RFC3339Nano))
		}
		writeEnvelope(w, http.StatusOK, "Success list messages", []Message{msg})
	}))
	defer srv.Close()

	store := NewRESTStore(srv.URL, "tok", self)
	msgs, err := store.ListMessages(context.Background(), roomID, since)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != msg.ID {
		t.Fatalf("got %d messages, want the fixture", len(msgs))
	}
}

func TestRESTStoreAppendMessageSendsToken(t *testing.T) {
	self := uuid.New()
	roomID := uuid.New()
	token := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var body struct {
			Body        string    `json:"body"`
			ClientToken uuid.UUID `json:"client_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.ClientToken != token {
			t.Errorf("client_token = %s, want %s", body.ClientToken, token)
		}
		writeEnvelope(w, http.StatusCreated, "Success append message", Message{
			ID:          uuid.New(),
			RoomID:      roomID,
			SenderID:    self,
			Body:        body.Body,
			ClientToken: body.ClientToken,
			CreatedAt:   time.Now().UTC(),
		})
	}))
	defer srv.Close()

	store := NewRESTStore(srv.URL, "tok", self)
	msg, err := store.AppendMessage(context.Background(), roomID, self, "hello", token)
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if msg.ClientToken != token {
		t.Errorf("echoed token = %s, want %s", msg.ClientToken, token)
	}
}

func TestRESTStoreErrorMapping(t *testing.T) {
	self := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.RawQuery, "with"):
			writeEnvelope(w, http.StatusNotFound, "Room not found", nil)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	store := NewRESTStore(srv.URL, "tok", self)

	if _, err := store.GetOrCreateRoom(context.Background(), self, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("404 err = %v, want ErrNotFound", err)
	}
	if _, err := store.ListMessages(context.Background(), uuid.New(), time.Time{}); !errors.Is(err, ErrRetryable) {
		t.Errorf("500 err = %v, want ErrRetryable", err)
	}

	// A dead server is a retryable network failure.
	srv.Close()
	if _, err := store.ListMessages(context.Background(), uuid.New(), time.Time{}); !errors.Is(err, ErrRetryable) {
		t.Errorf("network err = %v, want ErrRetryable", err)
	}
}

func TestRESTStoreSurfacesBackendMessage(t *testing.T) {
	self := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnprocessableEntity, "Body is required", nil)
	}))
	defer srv.Close()

	store := NewRESTStore(srv.URL, "tok", self)
	_, err := store.AppendMessage(context.Background(), uuid.New(), self, "", uuid.New())
	if err == nil || !strings.Contains(err.Error(), "Body is required") {
		t.Errorf("err = %v, want backend message surfaced", err)
	}
	if errors.Is(err, ErrRetryable) {
		t.Error("422 must not be retryable")
	}
}
