package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"clawpulse/internal/domain"
)

type Persister interface {
	SaveNotification(ctx context.Context, n domain.Notification) error
	DeleteNotification(ctx context.Context, id string) error
	MarkNotificationsRead(ctx context.Context, ids ...string) error
	ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error)
}

type Config struct {
	Capacity     int
	DedupeWindow time.Duration
	Now          func() time.Time
	Logger       *log.Logger
}

func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = 50
	}
	if c.DedupeWindow <= 0 {
		c.DedupeWindow = 10 * time.Second
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// Queue is a bounded notification list, oldest first. Persistence failures
// are logged and never block the in-memory state.
type Queue struct {
	mu    sync.Mutex
	cfg   Config
	store Persister
	items []domain.Notification
}

func New(store Persister, cfg Config) *Queue {
	return &Queue{cfg: cfg.withDefaults(), store: store}
}

// Load replaces the in-memory list with the persisted one, keeping read state.
func (q *Queue) Load(ctx context.Context) error {
	if q.store == nil {
		return nil
	}
	items, err := q.store.ListNotifications(ctx, q.cfg.Capacity)
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.items = items
	q.mu.Unlock()
	return nil
}

// Push adds a notification. A push whose key matches an entry updated within
// the dedupe window bumps that entry instead and marks it unread again. The
// returned bool reports whether an existing entry was reused.
func (q *Queue) Push(ctx context.Context, level domain.NotificationLevel, key, title, body string) (domain.Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.cfg.Now()
	if key != "" {
		for i := len(q.items) - 1; i >= 0; i-- {
			item := &q.items[i]
			if item.Key != key || now.Sub(item.UpdatedAt) > q.cfg.DedupeWindow {
				continue
			}
			item.Count++
			item.Level = level
			item.Title = title
			item.Body = body
			item.Read = false
			item.UpdatedAt = now
			q.save(ctx, *item)
			return *item, true
		}
	}

	n := domain.Notification{
		ID:        uuid.NewString(),
		Key:       key,
		Level:     level,
		Title:     title,
		Body:      body,
		Count:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.items = append(q.items, n)
	q.save(ctx, n)

	for len(q.items) > q.cfg.Capacity {
		evicted := q.items[0]
		q.items = q.items[1:]
		if q.store != nil {
			if err := q.store.DeleteNotification(ctx, evicted.ID); err != nil {
				q.cfg.Logger.Printf("notify: delete evicted id=%s err=%v", evicted.ID, err)
			}
		}
	}
	return n, false
}

func (q *Queue) MarkRead(ctx context.Context, id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].ID != id {
			continue
		}
		q.items[i].Read = true
		q.markPersisted(ctx, id)
		return true
	}
	return false
}

func (q *Queue) MarkAllRead(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		q.items[i].Read = true
	}
	q.markPersisted(ctx)
}

func (q *Queue) Unread() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for _, item := range q.items {
		if !item.Read {
			count++
		}
	}
	return count
}

// List returns the notifications newest first.
func (q *Queue) List() []domain.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.Notification, 0, len(q.items))
	for i := len(q.items) - 1; i >= 0; i-- {
		out = append(out, q.items[i])
	}
	return out
}

func (q *Queue) save(ctx context.Context, n domain.Notification) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveNotification(ctx, n); err != nil {
		q.cfg.Logger.Printf("notify: save id=%s key=%s err=%v", n.ID, n.Key, err)
	}
}

func (q *Queue) markPersisted(ctx context.Context, ids ...string) {
	if q.store == nil {
		return
	}
	if err := q.store.MarkNotificationsRead(ctx, ids...); err != nil {
		q.cfg.Logger.Printf("notify: mark read ids=%v err=%v", ids, err)
	}
}
