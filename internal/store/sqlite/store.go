package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"clawpulse/internal/domain"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("record not found")

const schema = `
CREATE TABLE IF NOT EXISTS agent_status (
	agent_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_messages (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_messages_created ON agent_messages(created_at);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	status TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_agent ON tasks(agent_id, updated_at);

CREATE TABLE IF NOT EXISTS token_usage (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	model TEXT NOT NULL,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd REAL NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_token_usage_agent ON token_usage(agent_id, created_at);

CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	reason TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	key TEXT NOT NULL,
	level TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	count INTEGER NOT NULL DEFAULT 1,
	read INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_updated ON notifications(updated_at);
`

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) UpsertAgentStatus(ctx context.Context, st domain.AgentStatus) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO agent_status(agent_id, status, detail, updated_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			status = excluded.status,
			detail = excluded.detail,
			updated_at = excluded.updated_at`,
		st.ID, string(st.Status), st.Detail, st.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert agent status: %w", err)
	}
	return nil
}

func (s *Store) ListAgentStatuses(ctx context.Context) ([]domain.AgentStatus, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT agent_id, status, detail, updated_at FROM agent_status ORDER BY agent_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list agent statuses: %w", err)
	}
	defer rows.Close()

	result := make([]domain.AgentStatus, 0)
	for rows.Next() {
		var st domain.AgentStatus
		var status string
		var updated int64
		if err := rows.Scan(&st.ID, &status, &st.Detail, &updated); err != nil {
			return nil, fmt.Errorf("scan agent status: %w", err)
		}
		st.Status = domain.AgentState(status)
		st.UpdatedAt = unixMilliToTime(updated)
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent statuses: %w", err)
	}
	return result, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO agent_messages(id, agent_id, channel, body, created_at) VALUES(?, ?, ?, ?, ?)`,
		msg.ID, msg.AgentID, msg.Channel, msg.Body, msg.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// ListRecentMessages returns the newest limit messages, newest first.
func (s *Store) ListRecentMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, agent_id, channel, body, created_at
		FROM agent_messages
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Message, 0, limit)
	for rows.Next() {
		var m domain.Message
		var created int64
		if err := rows.Scan(&m.ID, &m.AgentID, &m.Channel, &m.Body, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = unixMilliToTime(created)
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return result, nil
}

func (s *Store) CreateTask(ctx context.Context, task domain.Task) error {
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusPlanned
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tasks(id, title, agent_id, status, priority, last_error, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.AgentID, string(task.Status), task.Priority, task.LastError,
		task.CreatedAt.UnixMilli(), task.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

const taskColumns = `id, title, agent_id, status, priority, last_error, created_at, updated_at`

func (s *Store) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, fmt.Errorf("get task %s: %w", taskID, ErrNotFound)
		}
		return domain.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return result, nil
}

func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus, lastError string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(status), lastError, time.Now().UTC().UnixMilli(), taskID,
	)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task status affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update task %s: %w", taskID, ErrNotFound)
	}
	return nil
}

func (s *Store) RecordUsage(ctx context.Context, u domain.TokenUsage) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO token_usage(agent_id, model, input_tokens, output_tokens, cost_usd, created_at)
		VALUES(?, ?, ?, ?, ?, ?)`,
		u.AgentID, u.Model, u.InputTokens, u.OutputTokens, u.CostUSD, u.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// UsageSummary aggregates usage per agent since the given time. A zero since
// covers all records.
func (s *Store) UsageSummary(ctx context.Context, since time.Time) ([]domain.UsageSummary, error) {
	var sinceMS int64
	if !since.IsZero() {
		sinceMS = since.UnixMilli()
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT agent_id, SUM(input_tokens), SUM(output_tokens), SUM(cost_usd), COUNT(*)
		FROM token_usage
		WHERE created_at >= ?
		GROUP BY agent_id
		ORDER BY SUM(cost_usd) DESC, agent_id ASC`,
		sinceMS,
	)
	if err != nil {
		return nil, fmt.Errorf("usage summary: %w", err)
	}
	defer rows.Close()

	result := make([]domain.UsageSummary, 0)
	for rows.Next() {
		var item domain.UsageSummary
		if err := rows.Scan(&item.AgentID, &item.InputTokens, &item.OutputTokens, &item.CostUSD, &item.Records); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage summary: %w", err)
	}
	return result, nil
}

func (s *Store) LogAudit(ctx context.Context, entry domain.AuditEntry) error {
	payload := string(entry.Payload)
	if payload == "" {
		payload = "{}"
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO audit_log(actor, action, reason, payload, created_at) VALUES(?, ?, ?, ?, ?)`,
		entry.Actor, entry.Action, entry.Reason, payload, entry.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("log audit: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 300
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, actor, action, reason, payload, created_at
		FROM audit_log
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	result := make([]domain.AuditEntry, 0, limit)
	for rows.Next() {
		var item domain.AuditEntry
		var payload string
		var created int64
		if err := rows.Scan(&item.ID, &item.Actor, &item.Action, &item.Reason, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		item.Payload = []byte(payload)
		item.CreatedAt = unixMilliToTime(created)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit: %w", err)
	}
	return result, nil
}

// ListTimeline merges messages and audit entries, newest first.
func (s *Store) ListTimeline(ctx context.Context, limit int) ([]domain.TimelineEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT kind, ref_id, actor, channel, action, reason, body, payload, created_at FROM (
			SELECT 'message' AS kind, id AS ref_id, agent_id AS actor, channel,
				'' AS action, '' AS reason, body, '' AS payload, created_at, 0 AS seq
			FROM agent_messages
			UNION ALL
			SELECT 'audit' AS kind, CAST(id AS TEXT) AS ref_id, actor, '' AS channel,
				action, reason, '' AS body, payload, created_at, id AS seq
			FROM audit_log
		)
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	defer rows.Close()

	result := make([]domain.TimelineEvent, 0, limit)
	for rows.Next() {
		var ev domain.TimelineEvent
		var payload string
		var created int64
		if err := rows.Scan(&ev.Kind, &ev.RefID, &ev.Actor, &ev.Channel, &ev.Action, &ev.Reason, &ev.Body, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		if payload != "" {
			ev.Payload = []byte(payload)
		}
		ev.CreatedAt = unixMilliToTime(created)
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline: %w", err)
	}
	return result, nil
}

func (s *Store) SaveNotification(ctx context.Context, n domain.Notification) error {
	read := 0
	if n.Read {
		read = 1
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO notifications(id, key, level, title, body, count, read, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			level = excluded.level,
			count = excluded.count,
			read = excluded.read,
			updated_at = excluded.updated_at`,
		n.ID, n.Key, string(n.Level), n.Title, n.Body, n.Count, read,
		n.CreatedAt.UnixMilli(), n.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save notification: %w", err)
	}
	return nil
}

// MarkNotificationsRead flags the given ids as read. No ids marks all.
func (s *Store) MarkNotificationsRead(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		if _, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = 1`); err != nil {
			return fmt.Errorf("mark all notifications read: %w", err)
		}
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}

func (s *Store) DeleteNotification(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

// ListNotifications returns the newest limit notifications, oldest first, so
// callers can replay them into a queue in arrival order.
func (s *Store) ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, key, level, title, body, count, read, created_at, updated_at FROM (
			SELECT * FROM notifications ORDER BY updated_at DESC LIMIT ?
		) ORDER BY updated_at ASC`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Notification, 0, limit)
	for rows.Next() {
		var n domain.Notification
		var level string
		var read int
		var created, updated int64
		if err := rows.Scan(&n.ID, &n.Key, &level, &n.Title, &n.Body, &n.Count, &read, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Level = domain.NotificationLevel(level)
		n.Read = read == 1
		n.CreatedAt = unixMilliToTime(created)
		n.UpdatedAt = unixMilliToTime(updated)
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var status string
	var created, updated int64
	if err := row.Scan(&t.ID, &t.Title, &t.AgentID, &status, &t.Priority, &t.LastError, &created, &updated); err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.TaskStatus(status)
	t.CreatedAt = unixMilliToTime(created)
	t.UpdatedAt = unixMilliToTime(updated)
	return t, nil
}

func unixMilliToTime(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}
