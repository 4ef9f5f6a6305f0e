package commgraph

import (
	"fmt"
	"math"
	"strings"
)

// HitNode returns the index of the node closest to (x, y) within radius, or
// -1. Ties go to the earlier node.
func (g Graph) HitNode(x, y, radius float64) int {
	best := -1
	bestDist := math.Inf(1)
	for i, n := range g.Nodes {
		d := math.Hypot(n.X-x, n.Y-y)
		if d <= radius && d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// HitEdge returns the index of the edge whose segment passes closest to
// (x, y) within tolerance, or -1. Self-loops are never hit.
func (g Graph) HitEdge(x, y, tolerance float64) int {
	pos := g.positions()
	best := -1
	bestDist := math.Inf(1)
	for i, e := range g.Edges {
		if e.SelfLoop() {
			continue
		}
		a, okA := pos[e.Source]
		b, okB := pos[e.Target]
		if !okA || !okB {
			continue
		}
		d := segmentDistance(x, y, a[0], a[1], b[0], b[1])
		if d <= tolerance && d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// EdgesTouching returns the indexes of edges with id as an endpoint.
func (g Graph) EdgesTouching(id string) []int {
	var out []int
	for i, e := range g.Edges {
		if e.Touches(id) {
			out = append(out, i)
		}
	}
	return out
}

// Neighbors returns the ids connected to id by any edge, in edge order,
// without duplicates. A self-loop does not make a node its own neighbor.
func (g Graph) Neighbors(id string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range g.Edges {
		var other string
		switch {
		case e.SelfLoop():
			continue
		case e.Source == id:
			other = e.Target
		case e.Target == id:
			other = e.Source
		default:
			continue
		}
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	return out
}

func (g Graph) positions() map[string][2]float64 {
	pos := make(map[string][2]float64, len(g.Nodes))
	for _, n := range g.Nodes {
		pos[n.ID] = [2]float64{n.X, n.Y}
	}
	return pos
}

func segmentDistance(px, py, ax, ay, bx, by float64) float64 {
	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(px-ax, py-ay)
	}
	t := ((px-ax)*dx + (py-ay)*dy) / lenSq
	t = clamp(t, 0, 1)
	return math.Hypot(px-(ax+t*dx), py-(ay+t*dy))
}

// Hover tracks what the pointer is over. Node hover and edge hover exclude
// each other.
type Hover struct {
	node string
	edge int
}

func NewHover() *Hover {
	return &Hover{edge: -1}
}

func (h *Hover) OverNode(id string) {
	h.node = id
	h.edge = -1
}

func (h *Hover) OverEdge(index int) {
	h.node = ""
	h.edge = index
}

func (h *Hover) Clear() {
	h.node = ""
	h.edge = -1
}

func (h *Hover) Node() (string, bool) {
	return h.node, h.node != ""
}

func (h *Hover) Edge() (int, bool) {
	return h.edge, h.edge >= 0
}

func (h *Hover) active() bool {
	return h.node != "" || h.edge >= 0
}

// EdgeDimmed reports whether edge i of g should be drawn dimmed.
func (h *Hover) EdgeDimmed(g Graph, i int) bool {
	if !h.active() || i < 0 || i >= len(g.Edges) {
		return false
	}
	if h.node != "" {
		return !g.Edges[i].Touches(h.node)
	}
	return i != h.edge
}

// NodeDimmed reports whether the node with the given id should be drawn
// dimmed. Under edge hover only the edge's endpoints stay lit.
func (h *Hover) NodeDimmed(g Graph, id string) bool {
	if !h.active() {
		return false
	}
	if h.node != "" {
		if id == h.node {
			return false
		}
		for _, other := range g.Neighbors(h.node) {
			if other == id {
				return false
			}
		}
		return true
	}
	if h.edge >= len(g.Edges) {
		return false
	}
	return !g.Edges[h.edge].Touches(id)
}

// Style is how the renderer draws an edge.
type Style struct {
	Dashed    bool    `json:"dashed"`
	Arrow     bool    `json:"arrow"`
	Thickness float64 `json:"thickness"`
}

func EdgeStyle(e Edge) Style {
	switch e.Kind {
	case KindSpawn:
		return Style{Dashed: false, Arrow: true, Thickness: 1 + e.Weight*0.5}
	case KindSharedChannel:
		return Style{Dashed: true, Arrow: false, Thickness: 0.5 + e.Weight*0.5}
	default:
		return Style{Thickness: 1}
	}
}

func (g Graph) NodeTooltip(id string) string {
	n, ok := g.Node(id)
	if !ok {
		return ""
	}
	var spawns, spawnedBy, shared int
	for _, e := range g.Edges {
		if !e.Touches(id) {
			continue
		}
		switch e.Kind {
		case KindSpawn:
			if e.Source == id {
				spawns++
			}
			if e.Target == id {
				spawnedBy++
			}
		case KindSharedChannel:
			shared++
		}
	}
	var b strings.Builder
	b.WriteString(n.Name)
	if n.Role != "" {
		b.WriteString(" (" + n.Role + ")")
	}
	b.WriteString("\nstatus: " + string(n.Status))
	b.WriteString(fmt.Sprintf("\ncan spawn: %d  spawned by: %d  shared channels: %d", spawns, spawnedBy, shared))
	return b.String()
}

func (g Graph) EdgeTooltip(i int) string {
	if i < 0 || i >= len(g.Edges) {
		return ""
	}
	e := g.Edges[i]
	switch e.Kind {
	case KindSpawn:
		return e.Label
	case KindSharedChannel:
		return fmt.Sprintf("%s (weight %g)", e.Label, e.Weight)
	default:
		return e.Label
	}
}
