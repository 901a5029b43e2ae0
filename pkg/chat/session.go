package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripchat-be/internal/pkg/logger"
)

// Status is the lifecycle state of a chat session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusResolving  Status = "resolving"
	StatusConnecting Status = "connecting"
	StatusReady      Status = "ready"
	StatusDegraded   Status = "degraded"
	StatusClosed     Status = "closed"
)

// Session owns one open conversation: a resolved room, an active transport,
// and the merged timeline. All exported methods are safe for concurrent use.
//
// Transport degradation is transparent to callers: when the push channel
// fails the session falls back to polling from the same high-water mark and
// keeps going. Only when no transport at all is usable does it park in
// Degraded with sending disabled.
type Session struct {
	mu       sync.Mutex
	status   Status
	room     *Room
	timeline *Timeline
	selector *Selector
	active   Transport
	cfg      Config
	log      logger.ILogger

	selfID uuid.UUID

	// epoch is bumped on every transport change and on Close. Push batches
	// and poll results capture the epoch they were started under and are
	// discarded if it moved on. Send outcomes are exempt: the echo's fate
	// must be recorded even if the transport changed mid-flight.
	epoch int

	pollCancel   context.CancelFunc
	pollFailures int
	polling      bool // a poll round-trip is in flight

	sendEnabled bool

	updates chan struct{}
	closed  chan struct{}
}

// notify signals observers that the timeline or status changed. The channel
// is buffered at 1 so bursts coalesce into a single wakeup.
func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// Updates returns a channel that receives a signal whenever the timeline or
// session status changes. Signals coalesce; consumers should re-read
// Entries and Status on each wakeup.
func (s *Session) Updates() <-chan struct{} { return s.updates }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Room returns the resolved room, or nil before resolution completes.
func (s *Session) Room() *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return nil
	}
	r := *s.room
	return &r
}

// Entries returns a snapshot of the merged timeline in display order.
func (s *Session) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Entries()
}

// SendEnabled reports whether Send currently accepts new messages. It is
// false only after Close or in the terminal no-transport state.
func (s *Session) SendEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendEnabled
}

// open resolves the room and brings up a transport. Called once by
// Engine.OpenSession.
func (s *Session) open(ctx context.Context, resolver *Resolver, otherID uuid.UUID) error {
	s.mu.Lock()
	s.status = StatusResolving
	s.mu.Unlock()
	s.notify()

	room, err := resolver.Resolve(ctx, s.selfID, otherID)
	if err != nil {
		s.mu.Lock()
		s.status = StatusClosed
		s.sendEnabled = false
		close(s.closed)
		s.mu.Unlock()
		s.notify()
		return fmt.Errorf("open session: %w", err)
	}

	s.mu.Lock()
	s.room = room
	s.status = StatusConnecting
	epoch := s.epoch
	s.mu.Unlock()
	s.notify()

	t, err := s.selector.Select(ctx, room.ID,
		func(batch []Message) { s.handlePushBatch(epoch, batch) },
		func(pushErr error) { s.handlePushError(epoch, pushErr) },
	)
	if err != nil {
		s.mu.Lock()
		s.status = StatusDegraded
		s.sendEnabled = false
		s.mu.Unlock()
		s.notify()
		return fmt.Errorf("open session: %w", err)
	}

	s.mu.Lock()
	s.active = t
	s.mu.Unlock()

	if histErr := s.loadHistory(ctx); histErr != nil {
		// Not fatal on open; polling or push will backfill.
		s.log.Warn("ChatSession", "Initial history load failed", map[string]interface{}{
			"room_id": room.ID, "error": histErr.Error(),
		})
	}

	s.mu.Lock()
	s.status = StatusReady
	s.sendEnabled = true
	if t.Kind() == KindPoll {
		s.startPollLocked()
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Session) loadHistory(ctx context.Context) error {
	s.mu.Lock()
	t := s.active
	since := s.timeline.HighWaterMark()
	epoch := s.epoch
	s.mu.Unlock()

	batch, err := t.History(ctx, since)
	if err != nil {
		return err
	}
	s.mergeAt(epoch, batch, OriginPoll)
	return nil
}

// mergeAt merges a batch into the timeline if the session is still in the
// epoch the batch was fetched under.
func (s *Session) mergeAt(epoch int, batch []Message, origin Origin) int {
	s.mu.Lock()
	if epoch != s.epoch || s.status == StatusClosed {
		s.mu.Unlock()
		return 0
	}
	n := s.timeline.Merge(batch, origin)
	s.mu.Unlock()
	if n > 0 {
		s.notify()
	}
	return n
}

// Send appends a message optimistically and persists it through the active
// transport. The local echo appears immediately with state "sending"; the
// server ack flips it to "delivered" in place. On failure the echo is
// flagged "failed" and the returned token can be passed to Retry.
func (s *Session) Send(ctx context.Context, body string) (uuid.UUID, error) {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return uuid.Nil, ErrSessionClosed
	}
	if !s.sendEnabled {
		s.mu.Unlock()
		return uuid.Nil, ErrSendDisabled
	}
	token := uuid.New()
	s.timeline.AppendEcho(token, body, time.Now().UTC())
	t := s.active
	s.mu.Unlock()
	s.notify()

	go s.deliver(ctx, t, token, body)
	return token, nil
}

// Retry re-sends a previously failed message under its original token, so a
// duplicate cannot be created even if the first attempt actually landed.
func (s *Session) Retry(ctx context.Context, token uuid.UUID) error {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if !s.sendEnabled {
		s.mu.Unlock()
		return ErrSendDisabled
	}
	body, ok := s.timeline.FailedEcho(token)
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	t := s.active
	s.mu.Unlock()
	s.notify()

	go s.deliver(ctx, t, token, body)
	return nil
}

// deliver runs one send attempt. Unlike merges, the outcome is applied even
// after a transport downgrade: the echo was created under this token and must
// end up delivered or failed, never stuck in "sending". Only Close discards
// the result.
func (s *Session) deliver(ctx context.Context, t Transport, token uuid.UUID, body string) {
	msg, err := t.Send(ctx, s.selfID, body, token)
	if err != nil {
		s.log.Warn("ChatSession", "Send failed", map[string]interface{}{
			"client_token": token, "error": err.Error(),
		})
		s.mu.Lock()
		if s.status != StatusClosed {
			s.timeline.MarkFailed(token)
		}
		s.mu.Unlock()
		s.notify()
		return
	}

	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return
	}
	n := s.timeline.Merge([]Message{*msg}, OriginAck)
	s.mu.Unlock()
	if n > 0 {
		s.notify()
	}
}

// MarkRead records that the local user has read the conversation. Partner
// messages flip to read locally right away; the receipt is persisted
// through the active transport.
func (s *Session) MarkRead(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	t := s.active
	s.timeline.MarkReadLocal(time.Now().UTC())
	s.mu.Unlock()
	s.notify()

	if t == nil {
		return nil
	}
	if err := t.MarkRead(ctx, s.selfID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// handlePushBatch is the push transport's onBatch callback.
func (s *Session) handlePushBatch(epoch int, batch []Message) {
	s.mergeAt(epoch, batch, OriginPush)
}

// handlePushError is the push transport's onError callback. A push failure
// triggers a transparent downgrade to polling from the current high-water
// mark.
func (s *Session) handlePushError(epoch int, err error) {
	s.mu.Lock()
	if epoch != s.epoch || s.status == StatusClosed {
		s.mu.Unlock()
		return
	}
	s.log.Warn("ChatSession", "Push transport failed, downgrading to poll", map[string]interface{}{
		"room_id": s.room.ID, "error": err.Error(),
	})
	s.downgradeLocked()
	s.mu.Unlock()
	s.notify()
}

// downgradeLocked swaps the active transport for the poll fallback. Caller
// holds s.mu.
func (s *Session) downgradeLocked() {
	s.epoch++
	if s.active != nil {
		s.active.Disconnect()
	}

	fallback, err := s.selector.Fallback(context.Background(), s.room.ID)
	if err != nil {
		s.active = nil
		s.status = StatusDegraded
		s.sendEnabled = false
		s.stopPollLocked()
		return
	}
	s.active = fallback
	s.status = StatusReady
	s.startPollLocked()
}

// startPollLocked starts the poll loop for the current epoch. Caller holds
// s.mu.
func (s *Session) startPollLocked() {
	if s.pollCancel != nil {
		s.pollCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.pollCancel = cancel
	s.pollFailures = 0
	go s.pollLoop(ctx, s.epoch)
}

func (s *Session) stopPollLocked() {
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
}

func (s *Session) pollLoop(ctx context.Context, epoch int) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx, epoch)
		}
	}
}

// pollOnce runs one poll round-trip. If a previous round-trip is still in
// flight the tick is skipped rather than stacked.
func (s *Session) pollOnce(ctx context.Context, epoch int) {
	s.mu.Lock()
	if epoch != s.epoch || s.status == StatusClosed || s.polling {
		s.mu.Unlock()
		return
	}
	s.polling = true
	t := s.active
	since := s.timeline.HighWaterMark()
	s.mu.Unlock()

	batch, err := t.History(ctx, since)

	s.mu.Lock()
	s.polling = false
	if epoch != s.epoch || s.status == StatusClosed {
		s.mu.Unlock()
		return
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.mu.Unlock()
			return
		}
		s.pollFailures++
		failures := s.pollFailures
		degraded := false
		if failures >= s.cfg.DegradeThreshold && s.status == StatusReady {
			s.status = StatusDegraded
			degraded = true
		}
		s.mu.Unlock()
		s.log.Warn("ChatSession", "Poll failed", map[string]interface{}{
			"failures": failures, "error": err.Error(),
		})
		if degraded {
			s.notify()
		}
		return
	}

	// A successful poll heals a degraded session.
	s.pollFailures = 0
	recovered := s.status == StatusDegraded && s.sendEnabled
	if recovered {
		s.status = StatusReady
	}
	n := s.timeline.Merge(batch, OriginPoll)
	s.mu.Unlock()
	if n > 0 || recovered {
		s.notify()
	}
}

// Close tears down the transport and poll loop and marks the session
// terminal. It is idempotent; async work started before Close is discarded.
func (s *Session) Close() {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return
	}
	s.status = StatusClosed
	s.sendEnabled = false
	s.epoch++
	s.stopPollLocked()
	active := s.active
	s.active = nil
	close(s.closed)
	s.mu.Unlock()
	s.notify()

	if active != nil {
		active.Disconnect()
	}
}

// Done returns a channel closed when the session is closed.
func (s *Session) Done() <-chan struct{} { return s.closed }
