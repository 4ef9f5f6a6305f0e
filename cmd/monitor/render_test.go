package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawpulse/internal/commgraph"
	"clawpulse/internal/domain"
)

var testCanvas = commgraph.Canvas{Width: 800, Height: 600}

func TestCellMapping(t *testing.T) {
	col, row := toCell(testCanvas, 81, 61, 400, 300)
	assert.Equal(t, 40, col)
	assert.Equal(t, 30, row)

	x, y := toCanvas(testCanvas, 81, 61, 40, 30)
	assert.InDelta(t, 400, x, 1e-9)
	assert.InDelta(t, 300, y, 1e-9)

	col, row = toCell(testCanvas, 81, 61, -50, 700)
	assert.Equal(t, 0, col, "clamped left")
	assert.Equal(t, 60, row, "clamped bottom")

	col, row = toCell(testCanvas, 1, 1, 400, 300)
	assert.Equal(t, 0, col)
	assert.Equal(t, 0, row)
}

func TestLineIsContiguous(t *testing.T) {
	pts := line(0, 0, 5, 2)
	require.Len(t, pts, 6)
	assert.Equal(t, [2]int{0, 0}, pts[0])
	assert.Equal(t, [2]int{5, 2}, pts[len(pts)-1])
	for i := 1; i < len(pts); i++ {
		assert.LessOrEqual(t, abs(pts[i][0]-pts[i-1][0]), 1)
		assert.LessOrEqual(t, abs(pts[i][1]-pts[i-1][1]), 1)
	}

	assert.Equal(t, [][2]int{{3, 3}}, line(3, 3, 3, 3))
}

func TestGlyphs(t *testing.T) {
	assert.Equal(t, '-', lineGlyph(10, 0))
	assert.Equal(t, '|', lineGlyph(0, -4))
	assert.Equal(t, '\\', lineGlyph(3, 3))
	assert.Equal(t, '/', lineGlyph(3, -3))

	assert.Equal(t, '>', arrowGlyph(1, 0))
	assert.Equal(t, '<', arrowGlyph(-1, 0))
	assert.Equal(t, 'v', arrowGlyph(0, 1))
	assert.Equal(t, '^', arrowGlyph(0, -1))
}

func rasterGraph() commgraph.Graph {
	return commgraph.Graph{
		Nodes: []commgraph.Node{
			{ID: "a", Name: "Alpha", Status: domain.AgentStateWorking, X: 100, Y: 300},
			{ID: "b", Name: "Beta", Status: domain.AgentStateIdle, X: 700, Y: 300},
			{ID: "c", Name: "Gamma", Status: domain.AgentStateOffline, X: 100, Y: 100},
		},
		Edges: []commgraph.Edge{
			{Source: "a", Target: "b", Kind: commgraph.KindSpawn, Label: "Alpha can spawn Beta", Weight: 2},
			{Source: "a", Target: "c", Kind: commgraph.KindSharedChannel, Label: "Shared: #ops", Weight: 1, Channels: []string{"ops"}},
		},
	}
}

func TestRasterize(t *testing.T) {
	grid := rasterize(rasterGraph(), testCanvas, 81, 61, nil)
	require.Len(t, grid, 61)
	require.Len(t, grid[0], 81)

	assert.Equal(t, 'O', grid[30][10].ch, "node a")
	assert.Equal(t, 'O', grid[30][70].ch, "node b")
	assert.Equal(t, 'O', grid[10][10].ch, "node c")
	assert.Equal(t, 'A', grid[30][11].ch, "label follows node")

	assert.Equal(t, '-', grid[30][40].ch, "spawn edge body")
	assert.Equal(t, '>', grid[30][69].ch, "spawn arrow next to target")
	assert.Equal(t, styleSpawn, grid[30][40].style)

	assert.Equal(t, '.', grid[12][10].ch, "shared edge is dashed")
	assert.Equal(t, ' ', grid[11][10].ch, "dash gap")
	assert.Equal(t, styleShared, grid[12][10].style)
}

func TestRasterizeDimsAroundHoveredNode(t *testing.T) {
	g := rasterGraph()
	hover := commgraph.NewHover()
	hover.OverNode("c")

	grid := rasterize(g, testCanvas, 81, 61, hover)
	assert.Equal(t, styleDim, grid[30][40].style, "spawn edge does not touch c")
	assert.Equal(t, styleDim, grid[30][70].style, "b is not a neighbour of c")
	assert.Equal(t, styleShared, grid[12][10].style)
	assert.NotEqual(t, styleDim, grid[30][10].style, "a shares a channel with c")
}

func TestRasterizeEmptyGrid(t *testing.T) {
	assert.Empty(t, rasterize(rasterGraph(), testCanvas, 0, 0, nil))
}

func TestTextRenderers(t *testing.T) {
	assert.Equal(t, "No connections", renderEdges(commgraph.Graph{}, nil))
	out := renderEdges(rasterGraph(), nil)
	assert.Contains(t, out, "Alpha can spawn Beta")
	assert.Contains(t, out, "Shared: #ops (weight 1)")

	assert.Equal(t, "No activity", renderTimeline(nil))
	assert.Equal(t, "No notifications", renderNotifications(nil))
	notes := renderNotifications([]domain.Notification{{Level: domain.NotificationError, Title: "Task failed", Count: 3}})
	assert.Contains(t, notes, "Task failed (x3)")
	assert.Contains(t, notes, "*")

	assert.Equal(t, "abcdefg...", trimLine("abcdefghijklmnop", 10))
	assert.Equal(t, "short", trimLine("short", 10))
	assert.Equal(t, "ééééééé...", trimLine("éééééééééééé", 10))
}
