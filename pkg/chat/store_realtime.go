package chat

import (
	"context"
	"encoding/json"
	"fmt"

	pktNats "tripchat-be/pkg/nats"

	"github.com/google/uuid"
)

// RealtimeStore is the push-capable adapter. Request/response operations ride
// on the same REST surface as the poll store; what makes it "push" is the
// per-room NATS subscription delivering new messages as they are appended.
type RealtimeStore struct {
	*RESTStore
	sub *pktNats.Subscriber
}

func NewRealtimeStore(rest *RESTStore, sub *pktNats.Subscriber) *RealtimeStore {
	return &RealtimeStore{
		RESTStore: rest,
		sub:       sub,
	}
}

func (s *RealtimeStore) Subscribe(ctx context.Context, roomID uuid.UUID, onBatch func([]Message), onError func(error)) (func(), error) {
	if s.sub == nil {
		return nil, fmt.Errorf("%w: realtime backend not configured", ErrNoTransport)
	}

	unsub, err := s.sub.SubscribeRoom(roomID.String(), func(data []byte) {
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			onError(fmt.Errorf("decode room payload: %w", err))
			return
		}
		onBatch([]Message{msg})
	})
	if err != nil {
		return nil, err
	}

	// A closed connection (reconnect budget exhausted) is a hard transport
	// failure; the session reacts by downgrading to poll.
	s.sub.ConnClosedHandler(func(cause error) {
		if cause == nil {
			cause = fmt.Errorf("realtime connection closed")
		}
		onError(cause)
	})

	return unsub, nil
}
