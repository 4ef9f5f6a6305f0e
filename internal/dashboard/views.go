package dashboard

import (
	"sort"
	"strings"

	"clawpulse/internal/domain"
)

type SortKey string

const (
	SortUpdated  SortKey = "updated"
	SortCreated  SortKey = "created"
	SortPriority SortKey = "priority"
)

func ParseSortKey(raw string) (SortKey, bool) {
	switch SortKey(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SortUpdated:
		return SortUpdated, true
	case SortCreated:
		return SortCreated, true
	case SortPriority:
		return SortPriority, true
	}
	return "", false
}

type TaskQuery struct {
	Statuses []domain.TaskStatus
	AgentID  string
	Search   string
	Sort     SortKey
	Asc      bool
	Group    bool
}

type TaskGroup struct {
	Status domain.TaskStatus `json:"status"`
	Tasks  []domain.Task     `json:"tasks"`
}

type TaskView struct {
	Total  int           `json:"total"`
	Tasks  []domain.Task `json:"tasks"`
	Groups []TaskGroup   `json:"groups,omitempty"`
}

var groupOrder = []domain.TaskStatus{
	domain.TaskStatusRunning,
	domain.TaskStatusBlocked,
	domain.TaskStatusPlanned,
	domain.TaskStatusFailed,
	domain.TaskStatusDone,
	domain.TaskStatusCanceled,
}

// BuildTaskView filters, sorts and optionally groups tasks. Total counts the
// input before filtering.
func BuildTaskView(tasks []domain.Task, q TaskQuery) TaskView {
	filtered := FilterTasks(tasks, q)
	SortTasks(filtered, q.Sort, q.Asc)
	view := TaskView{Total: len(tasks), Tasks: filtered}
	if q.Group {
		view.Groups = GroupTasks(filtered)
	}
	return view
}

func FilterTasks(tasks []domain.Task, q TaskQuery) []domain.Task {
	wanted := make(map[domain.TaskStatus]bool, len(q.Statuses))
	for _, st := range q.Statuses {
		wanted[st] = true
	}
	needle := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if len(wanted) > 0 && !wanted[t.Status] {
			continue
		}
		if q.AgentID != "" && t.AgentID != q.AgentID {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(t.Title), needle) &&
			!strings.Contains(strings.ToLower(t.LastError), needle) &&
			!strings.Contains(strings.ToLower(t.ID), needle) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// SortTasks orders tasks in place, newest or highest first unless asc is set.
// Equal keys keep their input order.
func SortTasks(tasks []domain.Task, key SortKey, asc bool) {
	less := func(a, b domain.Task) bool {
		switch key {
		case SortCreated:
			return a.CreatedAt.Before(b.CreatedAt)
		case SortPriority:
			return a.Priority < b.Priority
		default:
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if asc {
			return less(tasks[i], tasks[j])
		}
		return less(tasks[j], tasks[i])
	})
}

// GroupTasks buckets tasks by status in a fixed order, skipping empty buckets.
// Statuses outside the known set land in a trailing group of their own.
func GroupTasks(tasks []domain.Task) []TaskGroup {
	buckets := make(map[domain.TaskStatus][]domain.Task)
	var extra []domain.TaskStatus
	for _, t := range tasks {
		if _, seen := buckets[t.Status]; !seen && !t.Status.Valid() {
			extra = append(extra, t.Status)
		}
		buckets[t.Status] = append(buckets[t.Status], t)
	}

	out := make([]TaskGroup, 0, len(buckets))
	for _, st := range append(append([]domain.TaskStatus(nil), groupOrder...), extra...) {
		if items := buckets[st]; len(items) > 0 {
			out = append(out, TaskGroup{Status: st, Tasks: items})
		}
	}
	return out
}
