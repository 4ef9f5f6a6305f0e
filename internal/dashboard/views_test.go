package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawpulse/internal/domain"
)

func sampleTasks() []domain.Task {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return []domain.Task{
		{ID: "t1", Title: "Rotate API keys", AgentID: "ops", Status: domain.TaskStatusRunning, Priority: 2, CreatedAt: base, UpdatedAt: base.Add(5 * time.Minute)},
		{ID: "t2", Title: "Write release notes", AgentID: "main", Status: domain.TaskStatusDone, Priority: 1, CreatedAt: base.Add(time.Minute), UpdatedAt: base.Add(2 * time.Minute)},
		{ID: "t3", Title: "Fix flaky deploy", AgentID: "ops", Status: domain.TaskStatusFailed, Priority: 3, LastError: "timeout talking to registry", CreatedAt: base.Add(2 * time.Minute), UpdatedAt: base.Add(9 * time.Minute)},
		{ID: "t4", Title: "Triage alerts", AgentID: "ops", Status: domain.TaskStatusRunning, Priority: 2, CreatedAt: base.Add(3 * time.Minute), UpdatedAt: base.Add(5 * time.Minute)},
	}
}

func ids(tasks []domain.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestFilterTasks(t *testing.T) {
	tasks := sampleTasks()

	t.Run("by status", func(t *testing.T) {
		got := FilterTasks(tasks, TaskQuery{Statuses: []domain.TaskStatus{domain.TaskStatusRunning, domain.TaskStatusFailed}})
		assert.Equal(t, []string{"t1", "t3", "t4"}, ids(got))
	})

	t.Run("by agent", func(t *testing.T) {
		got := FilterTasks(tasks, TaskQuery{AgentID: "main"})
		assert.Equal(t, []string{"t2"}, ids(got))
	})

	t.Run("search matches title and last error case-insensitively", func(t *testing.T) {
		assert.Equal(t, []string{"t1"}, ids(FilterTasks(tasks, TaskQuery{Search: "api"})))
		assert.Equal(t, []string{"t3"}, ids(FilterTasks(tasks, TaskQuery{Search: "REGISTRY"})))
	})

	t.Run("no criteria keeps everything", func(t *testing.T) {
		assert.Len(t, FilterTasks(tasks, TaskQuery{}), 4)
	})
}

func TestSortTasks(t *testing.T) {
	t.Run("updated descending keeps ties in input order", func(t *testing.T) {
		tasks := sampleTasks()
		SortTasks(tasks, SortUpdated, false)
		assert.Equal(t, []string{"t3", "t1", "t4", "t2"}, ids(tasks))
	})

	t.Run("priority ascending", func(t *testing.T) {
		tasks := sampleTasks()
		SortTasks(tasks, SortPriority, true)
		assert.Equal(t, []string{"t2", "t1", "t4", "t3"}, ids(tasks))
	})

	t.Run("created descending", func(t *testing.T) {
		tasks := sampleTasks()
		SortTasks(tasks, SortCreated, false)
		assert.Equal(t, []string{"t4", "t3", "t2", "t1"}, ids(tasks))
	})
}

func TestGroupTasks(t *testing.T) {
	tasks := append(sampleTasks(), domain.Task{ID: "t5", Status: "paused"})

	groups := GroupTasks(tasks)

	require.Len(t, groups, 4)
	assert.Equal(t, domain.TaskStatusRunning, groups[0].Status)
	assert.Equal(t, []string{"t1", "t4"}, ids(groups[0].Tasks))
	assert.Equal(t, domain.TaskStatusFailed, groups[1].Status)
	assert.Equal(t, domain.TaskStatusDone, groups[2].Status)
	assert.Equal(t, domain.TaskStatus("paused"), groups[3].Status)
}

func TestBuildTaskView(t *testing.T) {
	view := BuildTaskView(sampleTasks(), TaskQuery{AgentID: "ops", Sort: SortPriority, Group: true})

	assert.Equal(t, 4, view.Total)
	assert.Equal(t, []string{"t3", "t1", "t4"}, ids(view.Tasks))
	require.Len(t, view.Groups, 2)
	assert.Equal(t, []string{"t1", "t4"}, ids(view.Groups[0].Tasks))

	flat := BuildTaskView(sampleTasks(), TaskQuery{})
	assert.Nil(t, flat.Groups)
}

func TestParseSortKey(t *testing.T) {
	key, ok := ParseSortKey("")
	assert.True(t, ok)
	assert.Equal(t, SortUpdated, key)

	key, ok = ParseSortKey(" Priority ")
	assert.True(t, ok)
	assert.Equal(t, SortPriority, key)

	_, ok = ParseSortKey("alphabetical")
	assert.False(t, ok)
}
