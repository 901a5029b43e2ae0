package chat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tripchat-be/internal/pkg/logger"
)

// Config tunes session behavior. Zero values are replaced with defaults.
type Config struct {
	// PushEnabled allows realtime subscriptions when the store supports
	// them. When false every session polls.
	PushEnabled bool

	// PollInterval is the wait between poll round-trips.
	PollInterval time.Duration

	// DegradeThreshold is the number of consecutive poll failures before a
	// session reports itself degraded.
	DegradeThreshold int
}

const (
	defaultPollInterval     = 3 * time.Second
	defaultDegradeThreshold = 3
)

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.DegradeThreshold <= 0 {
		c.DegradeThreshold = defaultDegradeThreshold
	}
	return c
}

// Engine is the entry point of the chat client: it resolves rooms and opens
// sessions against a Store. One Engine serves one authenticated user.
type Engine struct {
	selfID   uuid.UUID
	resolver *Resolver
	selector *Selector
	cfg      Config
	log      logger.ILogger
}

// NewEngine builds an engine for the given user. push may be nil; sessions
// then always poll. store must not be nil.
func NewEngine(selfID uuid.UUID, store Store, push PushStore, cfg Config, log logger.ILogger) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		selfID:   selfID,
		resolver: NewResolver(store, log),
		selector: NewSelector(store, push, cfg.PushEnabled, log),
		cfg:      cfg,
		log:      log,
	}
}

// OpenSession resolves (or creates) the room shared with otherID and brings
// up a live session on it. The returned session is Ready, or Degraded when
// no transport could be established.
func (e *Engine) OpenSession(ctx context.Context, otherID uuid.UUID) (*Session, error) {
	s := &Session{
		status:      StatusIdle,
		timeline:    NewTimeline(e.selfID),
		selector:    e.selector,
		cfg:         e.cfg,
		log:         e.log,
		selfID:      e.selfID,
		sendEnabled: false,
		updates:     make(chan struct{}, 1),
		closed:      make(chan struct{}),
	}
	if err := s.open(ctx, e.resolver, otherID); err != nil {
		return nil, err
	}
	return s, nil
}

// Forget drops the cached room for otherID, forcing the next OpenSession to
// hit the store again.
func (e *Engine) Forget(otherID uuid.UUID) {
	e.resolver.Forget(e.selfID, otherID)
}
