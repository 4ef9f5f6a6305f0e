package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"clawpulse/internal/commgraph"
	"clawpulse/internal/domain"
	"clawpulse/internal/feed"
	"clawpulse/internal/roster"
)

const dashboardActor = "dashboard"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrTaskFinal    = errors.New("task is already final")
)

type Store interface {
	UpsertAgentStatus(ctx context.Context, st domain.AgentStatus) error
	ListAgentStatuses(ctx context.Context) ([]domain.AgentStatus, error)
	CreateMessage(ctx context.Context, msg domain.Message) error
	ListRecentMessages(ctx context.Context, limit int) ([]domain.Message, error)
	CreateTask(ctx context.Context, task domain.Task) error
	GetTask(ctx context.Context, taskID string) (domain.Task, error)
	ListTasks(ctx context.Context) ([]domain.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus, lastError string) error
	RecordUsage(ctx context.Context, u domain.TokenUsage) error
	UsageSummary(ctx context.Context, since time.Time) ([]domain.UsageSummary, error)
	LogAudit(ctx context.Context, entry domain.AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]domain.AuditEntry, error)
	ListTimeline(ctx context.Context, limit int) ([]domain.TimelineEvent, error)
}

type Feed interface {
	Subscribe(id string) <-chan feed.Event
	Unsubscribe(id string)
	Publish(ev feed.Event) int
}

type Notifier interface {
	Push(ctx context.Context, level domain.NotificationLevel, key, title, body string) (domain.Notification, bool)
	MarkRead(ctx context.Context, id string) bool
	MarkAllRead(ctx context.Context)
	Unread() int
	List() []domain.Notification
}

type Config struct {
	Roster          []domain.Agent
	MessageLimit    int
	Canvas          commgraph.Canvas
	Layout          commgraph.Params
	RefreshInterval time.Duration
	MaxCachedViews  int
}

func (c Config) withDefaults() Config {
	if len(c.Roster) == 0 {
		c.Roster = roster.Default()
	}
	if c.MessageLimit <= 0 {
		c.MessageLimit = 200
	}
	if c.Canvas.Width <= 0 {
		c.Canvas.Width = 800
	}
	if c.Canvas.Height <= 0 {
		c.Canvas.Height = 600
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 5 * time.Second
	}
	if c.MaxCachedViews <= 0 {
		c.MaxCachedViews = 8
	}
	return c
}

type Service struct {
	store  Store
	feed   Feed
	notes  Notifier
	cfg    Config
	logger *log.Logger

	wg sync.WaitGroup

	graphs *graphCache
}

func New(store Store, bus Feed, notes Notifier, cfg Config, logger *log.Logger) *Service {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:  store,
		feed:   bus,
		notes:  notes,
		cfg:    cfg,
		logger: logger,
		graphs: newGraphCache(cfg.MaxCachedViews),
	}
}

// Start launches the refresh loop. It rebuilds the default canvas on status
// and message events and on every refresh tick.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.refreshLoop(ctx)
	}()
}

func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) Roster() []domain.Agent {
	out := make([]domain.Agent, len(s.cfg.Roster))
	copy(out, s.cfg.Roster)
	return out
}

func (s *Service) DefaultCanvas() commgraph.Canvas {
	return s.cfg.Canvas
}

type AgentView struct {
	domain.Agent
	Status    domain.AgentState `json:"status"`
	Detail    string            `json:"detail,omitempty"`
	UpdatedAt *time.Time        `json:"updated_at,omitempty"`
}

// Agents joins the roster with the latest reported statuses.
func (s *Service) Agents(ctx context.Context) ([]AgentView, error) {
	statuses, err := s.store.ListAgentStatuses(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.AgentStatus, len(statuses))
	for _, st := range statuses {
		byID[st.ID] = st
	}

	out := make([]AgentView, 0, len(s.cfg.Roster))
	for _, a := range s.cfg.Roster {
		view := AgentView{Agent: a, Status: domain.AgentStateOffline}
		st, ok := byID[a.ID]
		if !ok && a.Alias != "" {
			st, ok = byID[a.Alias]
		}
		if ok {
			view.Status = domain.ParseAgentState(string(st.Status))
			view.Detail = st.Detail
			updated := st.UpdatedAt
			view.UpdatedAt = &updated
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *Service) RecordStatus(ctx context.Context, agentID, status, detail string) (domain.AgentStatus, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return domain.AgentStatus{}, fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}
	previous := domain.AgentStateOffline
	if statuses, err := s.store.ListAgentStatuses(ctx); err == nil {
		for _, st := range statuses {
			if st.ID == agentID {
				previous = domain.ParseAgentState(string(st.Status))
				break
			}
		}
	} else {
		s.logger.Printf("dashboard: read previous status agent=%s err=%v", agentID, err)
	}

	st := domain.AgentStatus{
		ID:        agentID,
		Status:    domain.ParseAgentState(status),
		Detail:    detail,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.UpsertAgentStatus(ctx, st); err != nil {
		return domain.AgentStatus{}, err
	}
	s.audit(ctx, agentID, "status_changed", fmt.Sprintf("%s -> %s", previous, st.Status), st)
	s.publish(feed.TableAgentStatus, feed.KindUpdate, st)

	if st.Status == domain.AgentStateOffline && previous != domain.AgentStateOffline {
		s.notify(ctx, domain.NotificationWarning, "agent-offline:"+agentID,
			fmt.Sprintf("%s went offline", s.displayName(agentID)), detail)
	}
	return st, nil
}

func (s *Service) RecordMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	msg.AgentID = strings.TrimSpace(msg.AgentID)
	msg.Channel = strings.TrimSpace(msg.Channel)
	if msg.AgentID == "" || msg.Channel == "" {
		return domain.Message{}, fmt.Errorf("%w: agent_id and channel are required", ErrInvalidInput)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return domain.Message{}, err
	}
	s.publish(feed.TableMessages, feed.KindInsert, msg)
	return msg, nil
}

func (s *Service) Messages(ctx context.Context, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = s.cfg.MessageLimit
	}
	return s.store.ListRecentMessages(ctx, limit)
}

type CreateTaskInput struct {
	ID       string
	Title    string
	AgentID  string
	Priority int
}

func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (domain.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return domain.Task{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.AgentID == "" {
		in.AgentID = s.cfg.Roster[0].ID
	}
	now := time.Now().UTC()
	task := domain.Task{
		ID:        in.ID,
		Title:     strings.TrimSpace(in.Title),
		AgentID:   in.AgentID,
		Status:    domain.TaskStatusPlanned,
		Priority:  in.Priority,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	s.audit(ctx, dashboardActor, "task_created", "task created", task)
	s.publish(feed.TableTasks, feed.KindInsert, task)
	return task, nil
}

func (s *Service) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	return s.store.GetTask(ctx, taskID)
}

func (s *Service) UpdateTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus, lastError string) (domain.Task, error) {
	if !status.Valid() {
		return domain.Task{}, fmt.Errorf("%w: unknown task status %q", ErrInvalidInput, status)
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if task.Status.Final() {
		return domain.Task{}, fmt.Errorf("task %s (%s): %w", task.ID, task.Status, ErrTaskFinal)
	}
	if err := s.store.UpdateTaskStatus(ctx, taskID, status, lastError); err != nil {
		return domain.Task{}, err
	}
	previous := task.Status
	task.Status = status
	task.LastError = lastError
	task.UpdatedAt = time.Now().UTC()

	s.audit(ctx, task.AgentID, "task_"+string(status), fmt.Sprintf("%s -> %s", previous, status), task)
	s.publish(feed.TableTasks, feed.KindUpdate, task)

	switch status {
	case domain.TaskStatusFailed:
		s.notify(ctx, domain.NotificationError, "task-failed:"+task.ID, "Task failed: "+task.Title, lastError)
	case domain.TaskStatusBlocked:
		s.notify(ctx, domain.NotificationWarning, "task-blocked:"+task.ID, "Task blocked: "+task.Title, lastError)
	}
	return task, nil
}

func (s *Service) RecordUsage(ctx context.Context, u domain.TokenUsage) (domain.TokenUsage, error) {
	if strings.TrimSpace(u.AgentID) == "" || strings.TrimSpace(u.Model) == "" {
		return domain.TokenUsage{}, fmt.Errorf("%w: agent_id and model are required", ErrInvalidInput)
	}
	if u.InputTokens < 0 || u.OutputTokens < 0 || u.CostUSD < 0 {
		return domain.TokenUsage{}, fmt.Errorf("%w: usage values must not be negative", ErrInvalidInput)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if err := s.store.RecordUsage(ctx, u); err != nil {
		return domain.TokenUsage{}, err
	}
	s.publish(feed.TableUsage, feed.KindInsert, u)
	return u, nil
}

func (s *Service) Usage(ctx context.Context, since time.Time) ([]domain.UsageSummary, error) {
	return s.store.UsageSummary(ctx, since)
}

func (s *Service) Timeline(ctx context.Context, limit int) ([]domain.TimelineEvent, error) {
	return s.store.ListTimeline(ctx, limit)
}

func (s *Service) Audit(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	return s.store.ListAudit(ctx, limit)
}

func (s *Service) Tasks(ctx context.Context, q TaskQuery) (TaskView, error) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return TaskView{}, err
	}
	return BuildTaskView(tasks, q), nil
}

func (s *Service) Notifications() ([]domain.Notification, int) {
	if s.notes == nil {
		return []domain.Notification{}, 0
	}
	return s.notes.List(), s.notes.Unread()
}

// MarkNotificationsRead marks the given ids read, or every notification when
// ids is empty. It returns how many ids were found.
func (s *Service) MarkNotificationsRead(ctx context.Context, ids ...string) int {
	if s.notes == nil {
		return 0
	}
	if len(ids) == 0 {
		s.notes.MarkAllRead(ctx)
		return len(s.notes.List())
	}
	found := 0
	for _, id := range ids {
		if s.notes.MarkRead(ctx, id) {
			found++
		}
	}
	return found
}

func (s *Service) refreshLoop(ctx context.Context) {
	const subscriberID = "dashboard-refresh"
	var events <-chan feed.Event
	if s.feed != nil {
		events = s.feed.Subscribe(subscriberID)
		defer s.feed.Unsubscribe(subscriberID)
	}

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Table != feed.TableAgentStatus && ev.Table != feed.TableMessages {
				continue
			}
			s.refresh(ctx)
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Service) refresh(ctx context.Context) {
	s.graphs.invalidate()
	if _, err := s.Graph(ctx, s.cfg.Canvas); err != nil && ctx.Err() == nil {
		s.logger.Printf("dashboard: refresh graph err=%v", err)
	}
}

func (s *Service) audit(ctx context.Context, actor, action, reason string, payload any) {
	if err := s.store.LogAudit(ctx, domain.AuditEntry{
		Actor:   actor,
		Action:  action,
		Reason:  reason,
		Payload: mustJSON(payload),
	}); err != nil {
		s.logger.Printf("dashboard: audit action=%s err=%v", action, err)
	}
}

func (s *Service) publish(table feed.Table, kind feed.Kind, payload any) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(feed.Event{Table: table, Kind: kind, Payload: payload, At: time.Now().UTC()})
}

func (s *Service) notify(ctx context.Context, level domain.NotificationLevel, key, title, body string) {
	if s.notes == nil {
		return
	}
	n, reused := s.notes.Push(ctx, level, key, title, trimText(body, 240))
	kind := feed.KindInsert
	if reused {
		kind = feed.KindUpdate
	}
	s.publish(feed.TableNotifications, kind, n)
}

func (s *Service) displayName(agentID string) string {
	if a, ok := roster.Lookup(s.cfg.Roster, agentID); ok && a.Name != "" {
		return a.Name
	}
	return agentID
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

// trimText shortens s to at most n runes, ending in "...".
func trimText(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:max(n-3, 0)]) + "..."
}
