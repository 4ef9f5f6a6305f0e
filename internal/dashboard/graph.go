package dashboard

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"clawpulse/internal/commgraph"
	"clawpulse/internal/domain"
)

var (
	layoutRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clawpulse_layout_runs_total",
		Help: "Graph rebuild and layout runs",
	})
	layoutSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clawpulse_layout_superseded_total",
		Help: "Layout results discarded because a newer run had already been committed",
	})
	layoutDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clawpulse_layout_duration_seconds",
		Help:    "Time spent building and laying out the communication graph",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
	graphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clawpulse_graph_nodes",
		Help: "Nodes in the most recently committed graph",
	})
	graphEdges = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clawpulse_graph_edges",
		Help: "Edges in the most recently committed graph by kind",
	}, []string{"kind"})
)

// Snapshot is one committed layout for a canvas size.
type Snapshot struct {
	Generation uint64           `json:"generation"`
	Canvas     commgraph.Canvas `json:"canvas"`
	BuiltAt    time.Time        `json:"built_at"`
	commgraph.Graph
}

// Graph fetches statuses and messages, rebuilds the graph and lays it out on
// canvas. Runs are numbered; a run that finishes after a newer run for the
// same canvas has been committed is discarded and the newer snapshot is
// returned instead. Accessor failures are logged and treated as empty.
func (s *Service) Graph(ctx context.Context, canvas commgraph.Canvas) (Snapshot, error) {
	if !validCanvas(canvas) {
		return Snapshot{}, fmt.Errorf("%w: canvas must be finite and positive, got %gx%g", ErrInvalidInput, canvas.Width, canvas.Height)
	}
	gen := s.graphs.next()
	started := time.Now()

	var (
		statuses []domain.AgentStatus
		messages []domain.Message
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := s.store.ListAgentStatuses(gctx)
		if err != nil {
			s.logger.Printf("dashboard: fetch statuses gen=%d err=%v", gen, err)
			return nil
		}
		statuses = items
		return nil
	})
	g.Go(func() error {
		items, err := s.store.ListRecentMessages(gctx, s.cfg.MessageLimit)
		if err != nil {
			s.logger.Printf("dashboard: fetch messages gen=%d err=%v", gen, err)
			return nil
		}
		messages = items
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	graph := commgraph.Build(s.cfg.Roster, statuses, messages).Layout(canvas, s.cfg.Layout)
	layoutRuns.Inc()
	layoutDuration.Observe(time.Since(started).Seconds())

	snap := Snapshot{Generation: gen, Canvas: canvas, BuiltAt: time.Now().UTC(), Graph: graph}
	committed, ok := s.graphs.commit(snap)
	if !ok {
		layoutSuperseded.Inc()
		return committed, nil
	}
	recordGraphShape(graph)
	return committed, nil
}

// Current returns the cached snapshot for canvas, building one on a miss.
func (s *Service) Current(ctx context.Context, canvas commgraph.Canvas) (Snapshot, error) {
	if snap, ok := s.graphs.get(canvas); ok {
		return snap, nil
	}
	return s.Graph(ctx, canvas)
}

type HitResult struct {
	Node    *commgraph.Node  `json:"node,omitempty"`
	Edge    *commgraph.Edge  `json:"edge,omitempty"`
	Style   *commgraph.Style `json:"style,omitempty"`
	Tooltip string           `json:"tooltip,omitempty"`
	Lit     []string         `json:"lit,omitempty"`
}

// HitTest resolves a pointer position against the current snapshot. Nodes
// take precedence over edges.
func (s *Service) HitTest(ctx context.Context, canvas commgraph.Canvas, x, y float64) (HitResult, error) {
	snap, err := s.Current(ctx, canvas)
	if err != nil {
		return HitResult{}, err
	}
	g := snap.Graph
	hover := commgraph.NewHover()

	if i := g.HitNode(x, y, nodeHitRadius); i >= 0 {
		node := g.Nodes[i]
		hover.OverNode(node.ID)
		return HitResult{Node: &node, Tooltip: g.NodeTooltip(node.ID), Lit: litNodes(g, hover)}, nil
	}
	if i := g.HitEdge(x, y, edgeHitTolerance); i >= 0 {
		edge := g.Edges[i]
		style := commgraph.EdgeStyle(edge)
		hover.OverEdge(i)
		return HitResult{Edge: &edge, Style: &style, Tooltip: g.EdgeTooltip(i), Lit: litNodes(g, hover)}, nil
	}
	return HitResult{}, nil
}

const (
	nodeHitRadius    = 14
	edgeHitTolerance = 6
)

func litNodes(g commgraph.Graph, h *commgraph.Hover) []string {
	var out []string
	for _, n := range g.Nodes {
		if !h.NodeDimmed(g, n.ID) {
			out = append(out, n.ID)
		}
	}
	return out
}

func recordGraphShape(g commgraph.Graph) {
	graphNodes.Set(float64(len(g.Nodes)))
	counts := map[commgraph.EdgeKind]int{commgraph.KindSpawn: 0, commgraph.KindSharedChannel: 0}
	for _, e := range g.Edges {
		counts[e.Kind]++
	}
	for kind, n := range counts {
		graphEdges.WithLabelValues(kind.String()).Set(float64(n))
	}
}

// validCanvas rejects NaN and infinite sides. A NaN canvas is also a map
// key that never matches itself.
func validCanvas(c commgraph.Canvas) bool {
	return c.Width > 0 && c.Height > 0 && !math.IsInf(c.Width, 0) && !math.IsInf(c.Height, 0)
}

type graphCache struct {
	gen   atomic.Uint64
	mu    sync.Mutex
	limit int
	floor uint64
	views map[commgraph.Canvas]Snapshot
}

func newGraphCache(limit int) *graphCache {
	return &graphCache{limit: limit, views: make(map[commgraph.Canvas]Snapshot)}
}

func (c *graphCache) next() uint64 {
	return c.gen.Add(1)
}

// commit stores snap unless a newer generation for the same canvas is
// already cached. It returns the snapshot now held for that canvas. Runs
// started before the last invalidation are never cached.
func (c *graphCache) commit(snap Snapshot) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if snap.Generation <= c.floor || !validCanvas(snap.Canvas) {
		return snap, false
	}
	if cur, ok := c.views[snap.Canvas]; ok && cur.Generation > snap.Generation {
		return cur, false
	}
	c.views[snap.Canvas] = snap
	for len(c.views) > c.limit {
		var oldest commgraph.Canvas
		var oldestGen uint64
		first := true
		for canvas, v := range c.views {
			if first || v.Generation < oldestGen {
				oldest, oldestGen, first = canvas, v.Generation, false
			}
		}
		before := len(c.views)
		delete(c.views, oldest)
		if len(c.views) == before {
			break
		}
	}
	return snap, true
}

func (c *graphCache) get(canvas commgraph.Canvas) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.views[canvas]
	return snap, ok
}

func (c *graphCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.floor = c.gen.Load()
	clear(c.views)
}
