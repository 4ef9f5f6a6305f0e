package commgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"clawpulse/internal/domain"
)

func placedGraph() Graph {
	return Graph{
		Nodes: []Node{
			{ID: "a", Name: "Alpha", Role: "lead", Status: domain.AgentStateWorking, X: 100, Y: 100},
			{ID: "b", Name: "Beta", Status: domain.AgentStateIdle, X: 300, Y: 100},
			{ID: "c", Name: "Gamma", Status: domain.AgentStateOffline, X: 100, Y: 300},
			{ID: "d", Name: "Delta", Status: domain.AgentStateUnknown, X: 500, Y: 500},
		},
		Edges: []Edge{
			{Source: "a", Target: "b", Kind: KindSpawn, Label: "Alpha can spawn Beta", Weight: 2},
			{Source: "a", Target: "c", Kind: KindSharedChannel, Label: "Shared: #ops", Weight: 1, Channels: []string{"ops"}},
			{Source: "d", Target: "d", Kind: KindSpawn, Label: "Delta can spawn Delta", Weight: 2},
		},
	}
}

func TestHitTesting(t *testing.T) {
	g := placedGraph()

	t.Run("node within radius", func(t *testing.T) {
		assert.Equal(t, 1, g.HitNode(305, 98, 12))
		assert.Equal(t, -1, g.HitNode(200, 200, 12))
	})

	t.Run("closest node wins", func(t *testing.T) {
		g := Graph{Nodes: []Node{{ID: "x", X: 0, Y: 0}, {ID: "y", X: 10, Y: 0}}}
		assert.Equal(t, 1, g.HitNode(7, 0, 20))
	})

	t.Run("edge segment within tolerance", func(t *testing.T) {
		assert.Equal(t, 0, g.HitEdge(200, 104, 6))
		assert.Equal(t, 1, g.HitEdge(97, 200, 6))
		assert.Equal(t, -1, g.HitEdge(200, 200, 6))
	})

	t.Run("self loops are not hit", func(t *testing.T) {
		assert.Equal(t, -1, g.HitEdge(500, 500, 6))
	})
}

func TestAdjacency(t *testing.T) {
	g := placedGraph()

	assert.Equal(t, []int{0, 1}, g.EdgesTouching("a"))
	assert.Equal(t, []int{2}, g.EdgesTouching("d"))
	assert.Equal(t, []string{"b", "c"}, g.Neighbors("a"))
	assert.Empty(t, g.Neighbors("d"))
}

func TestHoverDimming(t *testing.T) {
	g := placedGraph()
	h := NewHover()

	assert.False(t, h.EdgeDimmed(g, 0))
	assert.False(t, h.NodeDimmed(g, "d"))

	h.OverNode("b")
	assert.False(t, h.EdgeDimmed(g, 0))
	assert.True(t, h.EdgeDimmed(g, 1))
	assert.False(t, h.NodeDimmed(g, "a"))
	assert.False(t, h.NodeDimmed(g, "b"))
	assert.True(t, h.NodeDimmed(g, "c"))

	h.OverEdge(1)
	_, nodeHovered := h.Node()
	assert.False(t, nodeHovered)
	assert.True(t, h.EdgeDimmed(g, 0))
	assert.False(t, h.EdgeDimmed(g, 1))
	assert.False(t, h.NodeDimmed(g, "c"))
	assert.True(t, h.NodeDimmed(g, "b"))

	h.OverNode("a")
	_, edgeHovered := h.Edge()
	assert.False(t, edgeHovered)

	h.Clear()
	assert.False(t, h.EdgeDimmed(g, 1))
}

func TestTooltips(t *testing.T) {
	g := placedGraph()

	assert.Equal(t, "Alpha (lead)\nstatus: working\ncan spawn: 1  spawned by: 0  shared channels: 1", g.NodeTooltip("a"))
	assert.Equal(t, "Beta\nstatus: idle\ncan spawn: 0  spawned by: 1  shared channels: 0", g.NodeTooltip("b"))
	assert.Empty(t, g.NodeTooltip("zzz"))
	assert.Equal(t, "Alpha can spawn Beta", g.EdgeTooltip(0))
	assert.Equal(t, "Shared: #ops (weight 1)", g.EdgeTooltip(1))
	assert.Empty(t, g.EdgeTooltip(9))
}

func TestEdgeStyle(t *testing.T) {
	spawn := EdgeStyle(Edge{Kind: KindSpawn, Weight: 2})
	assert.True(t, spawn.Arrow)
	assert.False(t, spawn.Dashed)
	assert.Equal(t, 2.0, spawn.Thickness)

	shared := EdgeStyle(Edge{Kind: KindSharedChannel, Weight: 5})
	assert.True(t, shared.Dashed)
	assert.Equal(t, 3.0, shared.Thickness)
}
