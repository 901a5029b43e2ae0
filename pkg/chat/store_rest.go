package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// RESTStore is the poll-only adapter: a thin JSON client of the chat backend
// (GET room-by-participant, GET messages-since-cursor, POST message, PATCH
// read). It is authenticated as one user; bearerToken identifies them.
type RESTStore struct {
	baseURL     string
	bearerToken string
	selfID      uuid.UUID
	client      *http.Client
}

func NewRESTStore(baseURL, bearerToken string, selfID uuid.UUID) *RESTStore {
	return &RESTStore{
		baseURL:     baseURL,
		bearerToken: bearerToken,
		selfID:      selfID,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

// envelope mirrors the backend's {message, data} response shape.
type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *RESTStore) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.bearerToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// Network failure: the caller may retry with the same cursor/token.
		return fmt.Errorf("%w: %v", ErrRetryable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrRetryable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fallthrough to decode below
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: backend returned %d", ErrRetryable, resp.StatusCode)
	default:
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			return fmt.Errorf("chat backend: %s (status %d)", env.Message, resp.StatusCode)
		}
		return fmt.Errorf("chat backend: unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func (s *RESTStore) GetOrCreateRoom(ctx context.Context, userA, userB uuid.UUID) (*Room, error) {
	// The backend derives "me" from the bearer token; we only name the other
	// side of the pair.
	other := userA
	if other == s.selfID {
		other = userB
	}

	var room Room
	path := "/api/chat/v1/rooms?with=" + url.QueryEscape(other.String())
	if err := s.doJSON(ctx, http.MethodGet, path, nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *RESTStore) ListMessages(ctx context.Context, roomID uuid.UUID, since time.Time) ([]Message, error) {
	path := fmt.Sprintf("/api/chat/v1/rooms/%s/messages", roomID)
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.Format(time.RFC3339Nano))
	}

	var messages []Message
	if err := s.doJSON(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *RESTStore) AppendMessage(ctx context.Context, roomID, senderID uuid.UUID, body string, clientToken uuid.UUID) (*Message, error) {
	payload := map[string]interface{}{
		"body":         body,
		"client_token": clientToken,
	}

	var msg Message
	path := fmt.Sprintf("/api/chat/v1/rooms/%s/messages", roomID)
	if err := s.doJSON(ctx, http.MethodPost, path, payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *RESTStore) MarkRead(ctx context.Context, roomID, readerID uuid.UUID) error {
	path := fmt.Sprintf("/api/chat/v1/rooms/%s/read", roomID)
	return s.doJSON(ctx, http.MethodPatch, path, nil, nil)
}
