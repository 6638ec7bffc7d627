package listener

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"

	"ledgersync/internal/domain/snapshot"
)

type MockRecomputer struct {
	mu      sync.Mutex
	calls   []int64
	release chan struct{}
}

func (m *MockRecomputer) Recompute(ctx context.Context, ownerID int64) (*snapshot.Snapshot, error) {
	if m.release != nil {
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ownerID)
	return &snapshot.Snapshot{OwnerID: ownerID}, nil
}

func (m *MockRecomputer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *MockRecomputer) countFor(ownerID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range m.calls {
		if id == ownerID {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestParseOwnerID(t *testing.T) {
	if id, err := parseOwnerID(" 42 "); err != nil || id != 42 {
		t.Errorf("parseOwnerID(\" 42 \") = %d, %v", id, err)
	}
	if _, err := parseOwnerID("abc"); err == nil {
		t.Error("expected error for non-numeric payload")
	}
}

func TestHandle_RecomputesOwner(t *testing.T) {
	rec := &MockRecomputer{}
	l := NewLedgerListener("", rec)

	l.handle(&pq.Notification{Channel: "ledger_applied", Extra: "7"})

	waitFor(t, func() bool { return rec.count() == 1 })
	if rec.calls[0] != 7 {
		t.Errorf("expected owner 7, got %d", rec.calls[0])
	}
}

func TestHandle_CollapsesConcurrentNotifications(t *testing.T) {
	rec := &MockRecomputer{release: make(chan struct{})}
	l := NewLedgerListener("", rec)

	l.handle(&pq.Notification{Extra: "7"})
	l.handle(&pq.Notification{Extra: "7"})
	l.handle(&pq.Notification{Extra: "7"})
	l.handle(&pq.Notification{Extra: "8"})
	close(rec.release)

	// Owner 7 gets its running pass plus exactly one follow-up.
	waitFor(t, func() bool { return rec.count() == 3 })
	time.Sleep(20 * time.Millisecond)
	if got := rec.count(); got != 3 {
		t.Errorf("expected 3 recomputes, got %d", got)
	}
	if got := rec.countFor(7); got != 2 {
		t.Errorf("expected 2 recomputes for owner 7, got %d", got)
	}
}

func TestHandle_RerunsAfterNotificationDuringRecompute(t *testing.T) {
	rec := &MockRecomputer{release: make(chan struct{})}
	l := NewLedgerListener("", rec)

	l.handle(&pq.Notification{Extra: "7"})
	l.handle(&pq.Notification{Extra: "7"})
	rec.release <- struct{}{}
	rec.release <- struct{}{}

	waitFor(t, func() bool { return rec.count() == 2 })
	waitFor(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.inflight) == 0
	})

	// Idle again: the next notification starts a fresh pass.
	close(rec.release)
	l.handle(&pq.Notification{Extra: "7"})
	waitFor(t, func() bool { return rec.count() == 3 })
}

func TestHandle_IgnoresBadPayload(t *testing.T) {
	rec := &MockRecomputer{}
	l := NewLedgerListener("", rec)

	l.handle(&pq.Notification{Extra: "not-a-number"})

	time.Sleep(20 * time.Millisecond)
	if rec.count() != 0 {
		t.Error("expected no recompute for bad payload")
	}
}
