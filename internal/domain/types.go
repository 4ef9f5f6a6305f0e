package domain

import (
	"encoding/json"
	"time"
)

type AgentState string

const (
	AgentStateWorking AgentState = "working"
	AgentStateIdle    AgentState = "idle"
	AgentStateOffline AgentState = "offline"
	AgentStateUnknown AgentState = "unknown"
)

// ParseAgentState maps a raw status string onto the closed set of states.
// Empty input means the agent has not reported and is treated as offline.
func ParseAgentState(raw string) AgentState {
	switch AgentState(raw) {
	case AgentStateWorking, AgentStateIdle, AgentStateOffline:
		return AgentState(raw)
	case "":
		return AgentStateOffline
	default:
		return AgentStateUnknown
	}
}

type TaskStatus string

const (
	TaskStatusPlanned  TaskStatus = "planned"
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusBlocked  TaskStatus = "blocked"
	TaskStatusDone     TaskStatus = "done"
	TaskStatusFailed   TaskStatus = "failed"
	TaskStatusCanceled TaskStatus = "canceled"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPlanned, TaskStatusRunning, TaskStatusBlocked, TaskStatusDone, TaskStatusFailed, TaskStatusCanceled:
		return true
	}
	return false
}

func (s TaskStatus) Final() bool {
	return s == TaskStatusDone || s == TaskStatusFailed || s == TaskStatusCanceled
}

// Agent is one roster entry. Spawn and Channels are declared permissions,
// not observed behavior.
type Agent struct {
	ID       string   `json:"id" toml:"id"`
	Alias    string   `json:"alias,omitempty" toml:"alias"`
	Name     string   `json:"name" toml:"name"`
	Role     string   `json:"role" toml:"role"`
	Color    string   `json:"color,omitempty" toml:"color"`
	Spawn    []string `json:"spawn,omitempty" toml:"spawn"`
	Channels []string `json:"channels,omitempty" toml:"channels"`
}

type AgentStatus struct {
	ID        string     `json:"id"`
	Status    AgentState `json:"status"`
	Detail    string     `json:"detail,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Message struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Channel   string    `json:"channel"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Task struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	AgentID   string     `json:"agent_id"`
	Status    TaskStatus `json:"status"`
	Priority  int        `json:"priority"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type TokenUsage struct {
	ID           int64     `json:"id"`
	AgentID      string    `json:"agent_id"`
	Model        string    `json:"model"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	CreatedAt    time.Time `json:"created_at"`
}

type UsageSummary struct {
	AgentID      string  `json:"agent_id"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	Records      int     `json:"records"`
}

type AuditEntry struct {
	ID        int64           `json:"id"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	Reason    string          `json:"reason"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type NotificationLevel string

const (
	NotificationInfo    NotificationLevel = "info"
	NotificationWarning NotificationLevel = "warning"
	NotificationError   NotificationLevel = "error"
)

type Notification struct {
	ID        string            `json:"id"`
	Key       string            `json:"key"`
	Level     NotificationLevel `json:"level"`
	Title     string            `json:"title"`
	Body      string            `json:"body,omitempty"`
	Count     int               `json:"count"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type TimelineEvent struct {
	Kind      string          `json:"kind"`
	RefID     string          `json:"ref_id"`
	Actor     string          `json:"actor,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Action    string          `json:"action,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Body      string          `json:"body,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
