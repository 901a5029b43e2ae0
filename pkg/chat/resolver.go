package chat

import (
	"context"
	"fmt"
	"time"

	"tripchat-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Resolver finds or creates the one room between two participants.
// Creation is optimistic: the store treats a concurrent create from the other
// device as "already exists" and hands back the surviving room, so both sides
// always converge on the same room id.
type Resolver struct {
	store  Store
	cache  *cache.Cache
	logger logger.ILogger
}

func NewResolver(store Store, log logger.ILogger) *Resolver {
	// Resolved pairs barely change; cache them so reopening a conversation
	// skips the round trip.
	c := cache.New(1*time.Hour, 10*time.Minute)
	return &Resolver{
		store:  store,
		cache:  c,
		logger: log,
	}
}

func pairKey(userA, userB uuid.UUID) string {
	a, b := userA.String(), userB.String()
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

func (r *Resolver) Resolve(ctx context.Context, userA, userB uuid.UUID) (*Room, error) {
	if userA == uuid.Nil || userB == uuid.Nil {
		return nil, ErrInvalidParticipant
	}
	if userA == userB {
		return nil, ErrSameParticipant
	}

	key := pairKey(userA, userB)
	if x, found := r.cache.Get(key); found {
		room := x.(Room)
		return &room, nil
	}

	room, err := r.store.GetOrCreateRoom(ctx, userA, userB)
	if err != nil {
		// Store unreachable: retryable, the caller decides retry or abort.
		return nil, fmt.Errorf("resolve room: %w", err)
	}

	r.cache.Set(key, *room, cache.DefaultExpiration)
	r.logger.Debug("Resolver", "Room resolved", map[string]interface{}{
		"room_id": room.ID, "pair": key,
	})
	return room, nil
}

// Forget drops a cached pair (used by tests and after auth changes).
func (r *Resolver) Forget(userA, userB uuid.UUID) {
	r.cache.Delete(pairKey(userA, userB))
}
