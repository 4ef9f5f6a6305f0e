package commgraph

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawpulse/internal/domain"
)

func meshRoster(n int) []domain.Agent {
	roster := make([]domain.Agent, 0, n)
	for i := 0; i < n; i++ {
		agent := domain.Agent{ID: fmt.Sprintf("agent-%02d", i), Channels: []string{fmt.Sprintf("team-%d", i%3)}}
		if i+1 < n && i%2 == 0 {
			agent.Spawn = []string{fmt.Sprintf("agent-%02d", i+1)}
		}
		roster = append(roster, agent)
	}
	return roster
}

func TestLayout(t *testing.T) {
	canvas := Canvas{Width: 800, Height: 600}

	t.Run("empty graph is a no-op", func(t *testing.T) {
		out := Build(nil, nil, nil).Layout(canvas, DefaultParams())

		assert.Empty(t, out.Nodes)
		assert.Empty(t, out.Edges)
	})

	t.Run("single node sits at the center", func(t *testing.T) {
		g := Build([]domain.Agent{{ID: "solo", Spawn: []string{"solo"}}}, nil, nil)

		out := g.Layout(canvas, DefaultParams())

		require.Len(t, out.Nodes, 1)
		assert.Equal(t, 400.0, out.Nodes[0].X)
		assert.Equal(t, 300.0, out.Nodes[0].Y)
		require.Len(t, out.Edges, 1)
		assert.True(t, out.Edges[0].SelfLoop())
	})

	t.Run("positions stay inside the margins", func(t *testing.T) {
		p := DefaultParams()
		out := Build(meshRoster(24), nil, nil).Layout(canvas, p)

		require.Len(t, out.Nodes, 24)
		for _, n := range out.Nodes {
			assert.GreaterOrEqual(t, n.X, p.Margin, n.ID)
			assert.LessOrEqual(t, n.X, canvas.Width-p.Margin, n.ID)
			assert.GreaterOrEqual(t, n.Y, p.Margin, n.ID)
			assert.LessOrEqual(t, n.Y, canvas.Height-p.Margin, n.ID)
		}
	})

	t.Run("strong repulsion still respects bounds", func(t *testing.T) {
		p := DefaultParams()
		p.Repulsion = 5e6
		out := Build(meshRoster(10), nil, nil).Layout(Canvas{Width: 200, Height: 120}, p)

		for _, n := range out.Nodes {
			assert.GreaterOrEqual(t, n.X, 40.0)
			assert.LessOrEqual(t, n.X, 160.0)
			assert.GreaterOrEqual(t, n.Y, 40.0)
			assert.LessOrEqual(t, n.Y, 80.0)
		}
	})

	t.Run("identical input gives identical positions", func(t *testing.T) {
		roster := meshRoster(15)
		msgs := []domain.Message{{AgentID: "agent-01", Channel: "team-2"}}

		first := Build(roster, nil, msgs).Layout(canvas, DefaultParams())
		second := Build(roster, nil, msgs).Layout(canvas, DefaultParams())

		assert.Equal(t, first, second)
	})

	t.Run("layout does not mutate its receiver", func(t *testing.T) {
		g := Build(meshRoster(4), nil, nil)

		_ = g.Layout(canvas, DefaultParams())

		for _, n := range g.Nodes {
			assert.Zero(t, n.X)
			assert.Zero(t, n.Y)
		}
	})

	t.Run("unconnected nodes do not collapse onto each other", func(t *testing.T) {
		out := Build([]domain.Agent{{ID: "a"}, {ID: "b"}}, nil, nil).Layout(canvas, DefaultParams())

		d := math.Hypot(out.Nodes[0].X-out.Nodes[1].X, out.Nodes[0].Y-out.Nodes[1].Y)
		assert.Greater(t, d, 1.0)
	})

	t.Run("tiny canvas collapses to its midpoint", func(t *testing.T) {
		out := Build(meshRoster(3), nil, nil).Layout(Canvas{Width: 50, Height: 50}, DefaultParams())

		for _, n := range out.Nodes {
			assert.Equal(t, 25.0, n.X)
			assert.Equal(t, 25.0, n.Y)
		}
	})
}

func TestRepelCoincidentBodies(t *testing.T) {
	a := body{x: 10, y: 10}
	b := body{x: 10, y: 10}

	repel(&a, &b, 100)

	assert.Less(t, a.vx, 0.0)
	assert.Greater(t, b.vx, 0.0)
	assert.Equal(t, 100.0, b.vx)
}

func TestParamsWithDefaults(t *testing.T) {
	p := Params{Iterations: 10, Damping: 3}.withDefaults()

	assert.Equal(t, 10, p.Iterations)
	assert.Equal(t, 0.8, p.Damping)
	assert.Equal(t, 40.0, p.Margin)
	assert.Equal(t, 3000.0, p.Repulsion)
}
