package commgraph

import "math"

type Canvas struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (c Canvas) Center() (float64, float64) {
	return c.Width / 2, c.Height / 2
}

type Params struct {
	Iterations int     `toml:"iterations" json:"iterations"`
	Repulsion  float64 `toml:"repulsion" json:"repulsion"`
	Attraction float64 `toml:"attraction" json:"attraction"`
	Gravity    float64 `toml:"gravity" json:"gravity"`
	Damping    float64 `toml:"damping" json:"damping"`
	Margin     float64 `toml:"margin" json:"margin"`
	SeedRadius float64 `toml:"seed_radius" json:"seed_radius"`
}

func DefaultParams() Params {
	return Params{
		Iterations: 120,
		Repulsion:  3000,
		Attraction: 0.005,
		Gravity:    0.01,
		Damping:    0.8,
		Margin:     40,
		SeedRadius: 0.3,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Iterations <= 0 {
		p.Iterations = d.Iterations
	}
	if p.Repulsion <= 0 {
		p.Repulsion = d.Repulsion
	}
	if p.Attraction <= 0 {
		p.Attraction = d.Attraction
	}
	if p.Gravity <= 0 {
		p.Gravity = d.Gravity
	}
	if p.Damping <= 0 || p.Damping > 1 {
		p.Damping = d.Damping
	}
	if p.Margin <= 0 {
		p.Margin = d.Margin
	}
	if p.SeedRadius <= 0 {
		p.SeedRadius = d.SeedRadius
	}
	return p
}

// body is the per-run scratch record. It never escapes Layout.
type body struct {
	x, y   float64
	vx, vy float64
}

// Layout returns a copy of g with every node positioned on canvas. The
// receiver is not modified. Positions are reseeded on every call; nothing is
// carried over from a previous layout.
func (g Graph) Layout(canvas Canvas, params Params) Graph {
	p := params.withDefaults()
	out := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	copy(out.Nodes, g.Nodes)
	copy(out.Edges, g.Edges)

	n := len(out.Nodes)
	if n == 0 {
		return out
	}
	cx, cy := canvas.Center()
	if n == 1 {
		out.Nodes[0].X, out.Nodes[0].Y = cx, cy
		return out
	}

	bodies := seed(n, canvas, p.SeedRadius)
	index := make(map[string]int, n)
	for i, node := range out.Nodes {
		index[node.ID] = i
	}
	springs := make([]spring, 0, len(out.Edges))
	for _, e := range out.Edges {
		a, okA := index[e.Source]
		b, okB := index[e.Target]
		if !okA || !okB || a == b {
			continue
		}
		springs = append(springs, spring{a: a, b: b, weight: e.Weight})
	}

	minX, maxX := clampRange(canvas.Width, p.Margin)
	minY, maxY := clampRange(canvas.Height, p.Margin)

	for iter := 0; iter < p.Iterations; iter++ {
		alpha := 1 - float64(iter)/float64(p.Iterations)

		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				repel(&bodies[i], &bodies[j], p.Repulsion*alpha)
			}
		}
		for _, s := range springs {
			attract(&bodies[s.a], &bodies[s.b], p.Attraction*alpha*s.weight)
		}
		for i := range bodies {
			b := &bodies[i]
			b.vx += (cx - b.x) * p.Gravity
			b.vy += (cy - b.y) * p.Gravity

			b.vx *= p.Damping
			b.vy *= p.Damping
			b.x = clamp(b.x+b.vx, minX, maxX)
			b.y = clamp(b.y+b.vy, minY, maxY)
		}
	}

	for i := range out.Nodes {
		out.Nodes[i].X = bodies[i].x
		out.Nodes[i].Y = bodies[i].y
	}
	return out
}

type spring struct {
	a, b   int
	weight float64
}

func seed(n int, canvas Canvas, radiusFactor float64) []body {
	cx, cy := canvas.Center()
	radius := math.Min(canvas.Width, canvas.Height) * radiusFactor
	step := 2 * math.Pi / float64(n)
	bodies := make([]body, n)
	for i := range bodies {
		angle := step * float64(i)
		bodies[i] = body{
			x: cx + radius*math.Cos(angle),
			y: cy + radius*math.Sin(angle),
		}
	}
	return bodies
}

// repel pushes a and b apart with strength/dist². The distance is floored at
// 1 so coincident or near-coincident bodies separate hard instead of being
// skipped; exact coincidence resolves along +x, b to the right of a.
func repel(a, b *body, strength float64) {
	dx := b.x - a.x
	dy := b.y - a.y
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		dx, dy = 1, 0
	} else {
		dx, dy = dx/dist, dy/dist
	}
	dist = math.Max(dist, 1)
	force := strength / (dist * dist)
	a.vx -= dx * force
	a.vy -= dy * force
	b.vx += dx * force
	b.vy += dy * force
}

func attract(a, b *body, strength float64) {
	dx := b.x - a.x
	dy := b.y - a.y
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		return
	}
	force := dist * strength
	fx := dx / dist * force
	fy := dy / dist * force
	a.vx += fx
	a.vy += fy
	b.vx -= fx
	b.vy -= fy
}

// clampRange returns the allowed coordinate interval along one axis. A
// canvas too small for its margins collapses to its midpoint.
func clampRange(size, margin float64) (float64, float64) {
	lo, hi := margin, size-margin
	if hi < lo {
		mid := size / 2
		return mid, mid
	}
	return lo, hi
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
