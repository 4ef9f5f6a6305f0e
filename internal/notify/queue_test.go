package notify

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"clawpulse/internal/domain"
	"clawpulse/internal/store/sqlite"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestPushDedupesWithinWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	q := New(nil, Config{Now: clock.Now})

	first, reused := q.Push(ctx, domain.NotificationError, "task-failed:1", "Task failed", "boom")
	if reused {
		t.Fatalf("first push should not reuse")
	}
	clock.Advance(5 * time.Second)
	second, reused := q.Push(ctx, domain.NotificationError, "task-failed:1", "Task failed", "boom again")
	if !reused || second.ID != first.ID || second.Count != 2 || second.Body != "boom again" {
		t.Fatalf("expected bump of first entry, got %+v reused=%v", second, reused)
	}

	clock.Advance(11 * time.Second)
	third, reused := q.Push(ctx, domain.NotificationError, "task-failed:1", "Task failed", "later")
	if reused || third.ID == first.ID {
		t.Fatalf("expected a fresh entry outside the window, got %+v", third)
	}

	if len(q.List()) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(q.List()))
	}
	if q.List()[0].ID != third.ID {
		t.Fatalf("expected newest first")
	}
}

func TestEmptyKeyNeverDedupes(t *testing.T) {
	ctx := context.Background()
	q := New(nil, Config{})

	q.Push(ctx, domain.NotificationInfo, "", "hello", "")
	q.Push(ctx, domain.NotificationInfo, "", "hello", "")
	if len(q.List()) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(q.List()))
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	ctx := context.Background()
	q := New(nil, Config{Capacity: 3})

	var ids []string
	for _, key := range []string{"a", "b", "c", "d"} {
		n, _ := q.Push(ctx, domain.NotificationInfo, key, key, "")
		ids = append(ids, n.ID)
	}

	list := q.List()
	if len(list) != 3 {
		t.Fatalf("expected capacity 3, got %d", len(list))
	}
	for _, n := range list {
		if n.ID == ids[0] {
			t.Fatalf("expected oldest entry to be evicted")
		}
	}
}

func TestReadStateAndUnread(t *testing.T) {
	ctx := context.Background()
	q := New(nil, Config{})

	a, _ := q.Push(ctx, domain.NotificationWarning, "a", "A", "")
	q.Push(ctx, domain.NotificationWarning, "b", "B", "")
	if q.Unread() != 2 {
		t.Fatalf("expected 2 unread, got %d", q.Unread())
	}
	if !q.MarkRead(ctx, a.ID) {
		t.Fatalf("expected mark read to find %s", a.ID)
	}
	if q.MarkRead(ctx, "missing") {
		t.Fatalf("expected mark read miss")
	}
	if q.Unread() != 1 {
		t.Fatalf("expected 1 unread, got %d", q.Unread())
	}

	q.Push(ctx, domain.NotificationWarning, "a", "A", "again")
	if q.Unread() != 2 {
		t.Fatalf("expected bumped entry to be unread again, got %d", q.Unread())
	}

	q.MarkAllRead(ctx)
	if q.Unread() != 0 {
		t.Fatalf("expected 0 unread, got %d", q.Unread())
	}
}

func TestLoadRestoresPersistedState(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "notify.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	logger := log.New(io.Discard, "", 0)
	q := New(store, Config{Capacity: 2, Now: clock.Now, Logger: logger})
	a, _ := q.Push(ctx, domain.NotificationInfo, "a", "A", "")
	clock.Advance(time.Second)
	b, _ := q.Push(ctx, domain.NotificationInfo, "b", "B", "")
	clock.Advance(time.Second)
	c, _ := q.Push(ctx, domain.NotificationError, "c", "C", "")
	q.MarkRead(ctx, b.ID)

	restored := New(store, Config{Capacity: 2, Now: clock.Now, Logger: logger})
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	list := restored.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 restored entries, got %d", len(list))
	}
	if list[0].ID != c.ID || list[1].ID != b.ID {
		t.Fatalf("unexpected restored order: %s, %s", list[0].ID, list[1].ID)
	}
	if !list[1].Read || list[0].Read {
		t.Fatalf("read state not restored: %+v", list)
	}
	for _, n := range list {
		if n.ID == a.ID {
			t.Fatalf("evicted entry was restored")
		}
	}
	if restored.Unread() != 1 {
		t.Fatalf("expected 1 unread after load, got %d", restored.Unread())
	}
}
