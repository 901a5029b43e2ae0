package chat

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func makeMsg(sender uuid.UUID, body string, at time.Time, token uuid.UUID) Message {
	return Message{
		ID:          uuid.New(),
		RoomID:      uuid.New(),
		SenderID:    sender,
		Body:        body,
		ClientToken: token,
		CreatedAt:   at,
	}
}

func bodies(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Body
	}
	return out
}

func TestTimelineMergeOrdersByCreatedAt(t *testing.T) {
	self := uuid.New()
	partner := uuid.New()
	tl := NewTimeline(self)

	base := time.Now().UTC()
	m1 := makeMsg(partner, "first", base, uuid.New())
	m2 := makeMsg(self, "second", base.Add(time.Second), uuid.New())
	m3 := makeMsg(partner, "third", base.Add(2*time.Second), uuid.New())

	// Arrive out of order
	added := tl.Merge([]Message{m3, m1, m2}, OriginPoll)
	if added != 3 {
		t.Fatalf("Merge added = %d, want 3", added)
	}

	got := bodies(tl.Entries())
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if !tl.HighWaterMark().Equal(m3.CreatedAt) {
		t.Errorf("HighWaterMark = %v, want %v", tl.HighWaterMark(), m3.CreatedAt)
	}
}

func TestTimelineMergeIsIdempotent(t *testing.T) {
	self := uuid.New()
	partner := uuid.New()
	tl := NewTimeline(self)

	base := time.Now().UTC()
	batch := []Message{
		makeMsg(partner, "a", base, uuid.New()),
		makeMsg(partner, "b", base.Add(time.Second), uuid.New()),
	}

	tl.Merge(batch, OriginPoll)
	snapshot := tl.Entries()

	// Overlapping poll window re-delivers the same rows.
	changed := tl.Merge(batch, OriginPoll)
	if changed != 0 {
		t.Errorf("second Merge changed = %d, want 0", changed)
	}
	if tl.Len() != len(snapshot) {
		t.Errorf("Len = %d after replay, want %d", tl.Len(), len(snapshot))
	}
}

func TestTimelineSameInterleavingConverges(t *testing.T) {
	self := uuid.New()
	partner := uuid.New()
	base := time.Now().UTC()

	msgs := []Message{
		makeMsg(partner, "a", base, uuid.New()),
		makeMsg(self, "b", base.Add(time.Second), uuid.New()),
		makeMsg(partner, "c", base.Add(2*time.Second), uuid.New()),
		makeMsg(self, "d", base.Add(3*time.Second), uuid.New()),
	}

	// Push one-at-a-time vs one poll batch must produce the same sequence.
	pushed := NewTimeline(self)
	for i := len(msgs) - 1; i >= 0; i-- {
		pushed.Merge([]Message{msgs[i]}, OriginPush)
	}

	polled := NewTimeline(self)
	polled.Merge(msgs, OriginPoll)

	a, b := pushed.Entries(), polled.Entries()
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Errorf("entry[%d] id differs: %s vs %s", i, a[i].ID, b[i].ID)
		}
	}
}

func TestTimelineEchoReconciliation(t *testing.T) {
	self := uuid.New()
	tl := NewTimeline(self)

	token := uuid.New()
	localAt := time.Now().UTC()
	tl.AppendEcho(token, "hello", localAt)

	if tl.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tl.Len())
	}
	if got := tl.Entries()[0].State; got != StateSending {
		t.Fatalf("echo state = %s, want %s", got, StateSending)
	}

	// The ack carries the same token with a server id and timestamp; the echo
	// must be replaced in place, never duplicated.
	ack := Message{
		ID:          uuid.New(),
		SenderID:    self,
		Body:        "hello",
		ClientToken: token,
		CreatedAt:   localAt.Add(250 * time.Millisecond),
	}
	tl.Merge([]Message{ack}, OriginAck)

	if tl.Len() != 1 {
		t.Fatalf("Len after ack = %d, want 1", tl.Len())
	}
	e := tl.Entries()[0]
	if e.State != StateDelivered {
		t.Errorf("state = %s, want %s", e.State, StateDelivered)
	}
	if e.ID != ack.ID {
		t.Errorf("id = %s, want server id %s", e.ID, ack.ID)
	}
	if !e.CreatedAt.Equal(ack.CreatedAt) {
		t.Errorf("created_at = %v, want server time %v", e.CreatedAt, ack.CreatedAt)
	}

	// The same message coming back through push or poll is still a no-op.
	if changed := tl.Merge([]Message{ack}, OriginPush); changed != 0 {
		t.Errorf("push replay changed = %d, want 0", changed)
	}
	if tl.Len() != 1 {
		t.Errorf("Len after push replay = %d, want 1", tl.Len())
	}
}

func TestTimelineFailedEchoRetry(t *testing.T) {
	self := uuid.New()
	tl := NewTimeline(self)

	token := uuid.New()
	tl.AppendEcho(token, "flaky", time.Now().UTC())

	if !tl.MarkFailed(token) {
		t.Fatal("MarkFailed returned false for pending echo")
	}
	if got := tl.Entries()[0].State; got != StateFailed {
		t.Fatalf("state = %s, want %s", got, StateFailed)
	}

	// MarkFailed on a non-sending entry is a no-op.
	if tl.MarkFailed(token) {
		t.Error("MarkFailed succeeded twice")
	}

	body, ok := tl.FailedEcho(token)
	if !ok || body != "flaky" {
		t.Fatalf("FailedEcho = (%q, %v), want (\"flaky\", true)", body, ok)
	}
	if got := tl.Entries()[0].State; got != StateSending {
		t.Errorf("state after retry = %s, want %s", got, StateSending)
	}
}

func TestTimelineEchoDoesNotAdvanceHighWaterMark(t *testing.T) {
	self := uuid.New()
	tl := NewTimeline(self)

	tl.AppendEcho(uuid.New(), "pending", time.Now().UTC().Add(time.Hour))

	if !tl.HighWaterMark().IsZero() {
		t.Errorf("HighWaterMark = %v, want zero while nothing is delivered", tl.HighWaterMark())
	}
}

func TestTimelineMarkReadLocal(t *testing.T) {
	self := uuid.New()
	partner := uuid.New()
	tl := NewTimeline(self)

	base := time.Now().UTC()
	mine := makeMsg(self, "mine", base, uuid.New())
	theirs := makeMsg(partner, "theirs", base.Add(time.Second), uuid.New())
	tl.Merge([]Message{mine, theirs}, OriginPoll)

	stamp := base.Add(2 * time.Second)
	if updated := tl.MarkReadLocal(stamp); updated != 1 {
		t.Fatalf("MarkReadLocal updated = %d, want 1", updated)
	}

	for _, e := range tl.Entries() {
		if e.IsMine && e.ReadAt != nil {
			t.Error("own message must not be stamped by local read")
		}
		if !e.IsMine && e.ReadAt == nil {
			t.Error("partner message not stamped")
		}
	}

	// Idempotent: nothing left to stamp.
	if updated := tl.MarkReadLocal(stamp.Add(time.Second)); updated != 0 {
		t.Errorf("second MarkReadLocal updated = %d, want 0", updated)
	}
}

func TestTimelineReadAtNeverRegresses(t *testing.T) {
	self := uuid.New()
	partner := uuid.New()
	tl := NewTimeline(self)

	at := time.Now().UTC()
	msg := makeMsg(partner, "x", at, uuid.New())
	readAt := at.Add(time.Minute)
	msg.ReadAt = &readAt
	tl.Merge([]Message{msg}, OriginPoll)

	// A stale copy without read_at must not clear the stamp.
	stale := msg
	stale.ReadAt = nil
	tl.Merge([]Message{stale}, OriginPoll)

	if got := tl.Entries()[0].ReadAt; got == nil || !got.Equal(readAt) {
		t.Errorf("ReadAt = %v, want %v", got, readAt)
	}
}
