package chat

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Origin tags where a merged batch came from. It only matters for logging
// and debugging; the merge rules are identical for every origin.
type Origin string

const (
	OriginEcho Origin = "echo"
	OriginAck  Origin = "ack"
	OriginPush Origin = "push"
	OriginPoll Origin = "poll"
)

// Timeline is the single ordered, duplicate-free view over messages arriving
// from optimistic echoes, push batches and poll windows.
//
// The two structural rules that keep it correct:
//   - replace-not-append: a message whose client token matches a pending echo
//     replaces that entry in place, so a send never shows up twice;
//   - total order: delivered entries sort by (CreatedAt, ID) ascending, so any
//     arrival order of the same data converges on the same sequence.
//
// Merging is idempotent and strictly additive; nothing is ever removed.
type Timeline struct {
	selfID  uuid.UUID
	entries []Entry
	byID    map[uuid.UUID]int // server id -> index
	byToken map[uuid.UUID]int // client token -> index
	hwm     time.Time         // newest delivered CreatedAt incorporated
}

func NewTimeline(selfID uuid.UUID) *Timeline {
	return &Timeline{
		selfID:  selfID,
		byID:    make(map[uuid.UUID]int),
		byToken: make(map[uuid.UUID]int),
	}
}

// Entries returns a copy of the current ordered timeline.
func (t *Timeline) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Timeline) Len() int {
	return len(t.entries)
}

// HighWaterMark is the cursor for the next poll window.
func (t *Timeline) HighWaterMark() time.Time {
	return t.hwm
}

// AppendEcho adds an optimistic entry for a message the user just sent.
// The caller provides the client token that the eventual acknowledgement
// (or a push/poll copy) will carry back.
func (t *Timeline) AppendEcho(token uuid.UUID, body string, at time.Time) {
	if _, exists := t.byToken[token]; exists {
		return // retry of an echo already on the timeline
	}
	entry := Entry{
		Message: Message{
			SenderID:    t.selfID,
			Body:        body,
			ClientToken: token,
			CreatedAt:   at,
		},
		State:   StateSending,
		IsMine:  true,
		localAt: at,
	}
	t.entries = append(t.entries, entry)
	t.byToken[token] = len(t.entries) - 1
	t.resort()
}

// MarkFailed flags a pending echo as failed. The entry stays on the timeline
// so the user can retry with the same token.
func (t *Timeline) MarkFailed(token uuid.UUID) bool {
	idx, ok := t.byToken[token]
	if !ok || t.entries[idx].State != StateSending {
		return false
	}
	t.entries[idx].State = StateFailed
	return true
}

// FailedEcho flips a failed echo back to sending and returns its body so the
// session can retry the append with the same token.
func (t *Timeline) FailedEcho(token uuid.UUID) (string, bool) {
	idx, ok := t.byToken[token]
	if !ok || t.entries[idx].State != StateFailed {
		return "", false
	}
	t.entries[idx].State = StateSending
	return t.entries[idx].Body, true
}

// Merge folds a batch of backend messages into the timeline. Applying the
// same batch twice leaves the timeline unchanged on the second pass.
// It returns the number of entries added or changed.
func (t *Timeline) Merge(batch []Message, origin Origin) int {
	changed := 0
	for _, msg := range batch {
		if t.mergeOne(msg) {
			changed++
		}
	}
	if changed > 0 {
		t.resort()
	}
	return changed
}

func (t *Timeline) mergeOne(msg Message) bool {
	// 1. Token match: reconcile an optimistic echo (or update an entry we
	// already reconciled when a poll window overlaps).
	if msg.ClientToken != uuid.Nil {
		if idx, ok := t.byToken[msg.ClientToken]; ok {
			return t.updateAt(idx, msg)
		}
	}

	// 2. Server id match: duplicate from an overlapping window.
	if idx, ok := t.byID[msg.ID]; ok {
		return t.updateAt(idx, msg)
	}

	// 3. Genuinely new.
	entry := Entry{
		Message: msg,
		State:   StateDelivered,
		IsMine:  msg.SenderID == t.selfID,
		localAt: msg.CreatedAt,
	}
	t.entries = append(t.entries, entry)
	idx := len(t.entries) - 1
	t.byID[msg.ID] = idx
	if msg.ClientToken != uuid.Nil {
		t.byToken[msg.ClientToken] = idx
	}
	t.advance(msg.CreatedAt)
	return true
}

// updateAt reconciles an existing entry with a backend copy in place.
// read_at only moves from null to non-null, never backward.
func (t *Timeline) updateAt(idx int, msg Message) bool {
	e := &t.entries[idx]
	changed := false

	if e.State != StateDelivered {
		e.State = StateDelivered
		changed = true
	}
	if e.ID != msg.ID {
		e.ID = msg.ID
		t.byID[msg.ID] = idx
		changed = true
	}
	if !e.CreatedAt.Equal(msg.CreatedAt) {
		e.CreatedAt = msg.CreatedAt
		changed = true
	}
	if e.ReadAt == nil && msg.ReadAt != nil {
		e.ReadAt = msg.ReadAt
		changed = true
	}
	if e.RoomID == uuid.Nil {
		e.RoomID = msg.RoomID
	}
	t.advance(msg.CreatedAt)
	return changed
}

// MarkReadLocal stamps partner entries as read after a successful MarkRead
// call, without waiting for the next poll window to confirm.
func (t *Timeline) MarkReadLocal(at time.Time) int {
	updated := 0
	for i := range t.entries {
		e := &t.entries[i]
		if !e.IsMine && e.ReadAt == nil && e.State == StateDelivered {
			stamp := at
			e.ReadAt = &stamp
			updated++
		}
	}
	return updated
}

func (t *Timeline) advance(at time.Time) {
	if at.After(t.hwm) {
		t.hwm = at
	}
}

// resort re-establishes the (CreatedAt, ID) total order and rebuilds the
// index maps. Pending echoes ride on their local timestamp until acked.
func (t *Timeline) resort() {
	sort.SliceStable(t.entries, func(i, j int) bool {
		a, b := t.entries[i], t.entries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	for k := range t.byID {
		delete(t.byID, k)
	}
	for k := range t.byToken {
		delete(t.byToken, k)
	}
	for i, e := range t.entries {
		if e.ID != uuid.Nil {
			t.byID[e.ID] = i
		}
		if e.ClientToken != uuid.Nil {
			t.byToken[e.ClientToken] = i
		}
	}
}
