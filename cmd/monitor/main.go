package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"clawpulse/internal/commgraph"
	"clawpulse/internal/domain"
)

// Character cells are roughly twice as tall as they are wide, so the layout
// is requested on a canvas with this many units per cell.
const (
	unitsPerCol = 8.0
	unitsPerRow = 16.0
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}

// viewport is the graph panel's inner size in cells, written by the draw
// callback and read by background fetches.
type viewport struct {
	mu         sync.Mutex
	cols, rows int
}

func (v *viewport) set(cols, rows int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cols == cols && v.rows == rows {
		return false
	}
	v.cols, v.rows = cols, rows
	return true
}

func (v *viewport) canvas() commgraph.Canvas {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cols <= 1 || v.rows <= 1 {
		return commgraph.Canvas{Width: 800, Height: 600}
	}
	return commgraph.Canvas{Width: float64(v.cols) * unitsPerCol, Height: float64(v.rows) * unitsPerRow}
}

func run(args []string) error {
	var (
		addr     string
		interval time.Duration
		timeline int
	)
	flags := pflag.NewFlagSet("clawpulse-monitor", pflag.ContinueOnError)
	flags.StringVar(&addr, "addr", "http://127.0.0.1:8787", "clawpulse server base URL")
	flags.DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	flags.IntVar(&timeline, "timeline", 100, "timeline entries to show")
	if err := flags.Parse(args); err != nil {
		return err
	}

	c := &client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	if err := c.waitHealth(15 * time.Second); err != nil {
		return err
	}

	app := tview.NewApplication()

	agentsTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false)
	agentsTable.SetTitle("Agents (Enter focus, Esc clear)").SetBorder(true)

	graphBox := tview.NewBox().SetBorder(true).SetTitle("Communication graph")

	edgesView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	edgesView.SetTitle("Connections").SetBorder(true)

	timelineView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	timelineView.SetTitle("Timeline").SetBorder(true)

	notesView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true)
	notesView.SetTitle("Notifications").SetBorder(true)

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")
	statusView.SetText(fmt.Sprintf("Connected to %s | F5 refresh, F10 quit, Ctrl+R mark notifications read", c.baseURL))

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(agentsTable, 0, 2, true).
		AddItem(notesView, 0, 1, false)
	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(edgesView, 0, 1, false).
		AddItem(timelineView, 0, 2, false)
	mainLayout := tview.NewFlex().
		AddItem(left, 0, 1, true).
		AddItem(graphBox, 0, 2, false).
		AddItem(right, 0, 1, false)
	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 1, true).
		AddItem(statusView, 3, 0, false)

	// UI state below is only touched on the tview event goroutine.
	var (
		snapshot graphSnapshot
		agents   []agentRow
		selected string
		hover    = commgraph.NewHover()
		panel    viewport
		version  atomic.Uint64
	)

	redrawGraph := func() {
		edgesView.SetText(renderEdges(snapshot.Graph, hover))
	}

	refresh := func() {
		v := version.Add(1)
		canvas := panel.canvas()
		go func() {
			var (
				rows     []agentRow
				snap     graphSnapshot
				events   []domain.TimelineEvent
				notes    notificationList
				agentErr error
				graphErr error
				timeErr  error
				noteErr  error
			)
			var g errgroup.Group
			g.Go(func() error { rows, agentErr = c.listAgents(); return nil })
			g.Go(func() error { snap, graphErr = c.graph(canvas); return nil })
			g.Go(func() error { events, timeErr = c.timeline(timeline); return nil })
			g.Go(func() error { notes, noteErr = c.notifications(); return nil })
			_ = g.Wait()

			if version.Load() != v {
				return
			}
			app.QueueUpdateDraw(func() {
				if agentErr != nil {
					agentsTable.Clear()
					agentsTable.SetCell(0, 0, tview.NewTableCell(fmt.Sprintf("load error: %v", agentErr)).SetTextColor(tview.Styles.ContrastSecondaryTextColor))
				} else {
					agents = rows
					renderAgentsTable(agentsTable, agents, selected)
				}
				if graphErr != nil {
					edgesView.SetText(fmt.Sprintf("error: %v", graphErr))
				} else {
					snapshot = snap
					if id, ok := hover.Node(); ok {
						if _, exists := snapshot.Node(id); !exists {
							hover.Clear()
						}
					}
					if i, ok := hover.Edge(); ok && i >= len(snapshot.Edges) {
						hover.Clear()
					}
					redrawGraph()
				}
				if timeErr != nil {
					timelineView.SetText(fmt.Sprintf("error: %v", timeErr))
				} else {
					timelineView.SetText(renderTimeline(events))
				}
				if noteErr != nil {
					notesView.SetText(fmt.Sprintf("error: %v", noteErr))
				} else {
					notesView.SetTitle(fmt.Sprintf("Notifications (%d unread)", notes.Unread))
					notesView.SetText(renderNotifications(notes.Items))
				}
			})
		}()
	}

	graphBox.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		ix, iy, iw, ih := x+1, y+1, width-2, height-2
		if iw <= 0 || ih <= 0 {
			return ix, iy, max(iw, 0), max(ih, 0)
		}
		if panel.set(iw, ih) {
			// The layout depends on the canvas size, so a resize asks the
			// server for a fresh one.
			refresh()
		}
		grid := rasterize(snapshot.Graph, snapshot.Canvas, iw, ih, hover)
		for r, rowCells := range grid {
			for col, cl := range rowCells {
				screen.SetContent(ix+col, iy+r, cl.ch, nil, cl.style)
			}
		}
		return ix, iy, iw, ih
	})

	graphBox.SetMouseCapture(func(action tview.MouseAction, event *tcell.EventMouse) (tview.MouseAction, *tcell.EventMouse) {
		if action != tview.MouseMove && action != tview.MouseLeftClick {
			return action, event
		}
		mx, my := event.Position()
		ix, iy, iw, ih := graphBox.GetInnerRect()
		if mx < ix || my < iy || mx >= ix+iw || my >= iy+ih || snapshot.Canvas.Width <= 0 {
			return action, event
		}
		cx, cy := toCanvas(snapshot.Canvas, iw, ih, mx-ix, my-iy)
		cellW := snapshot.Canvas.Width / float64(max(iw-1, 1))
		cellH := snapshot.Canvas.Height / float64(max(ih-1, 1))

		g := snapshot.Graph
		if i := g.HitNode(cx, cy, 1.5*max(cellW, cellH)); i >= 0 {
			hover.OverNode(g.Nodes[i].ID)
			statusView.SetText(tview.Escape(strings.ReplaceAll(g.NodeTooltip(g.Nodes[i].ID), "\n", " | ")))
		} else if i := g.HitEdge(cx, cy, max(cellW, cellH)); i >= 0 {
			hover.OverEdge(i)
			statusView.SetText(tview.Escape(g.EdgeTooltip(i)))
		} else if _, nodeHovered := hover.Node(); !nodeHovered || selected == "" {
			hover.Clear()
		}
		redrawGraph()
		return action, event
	})

	agentsTable.SetSelectionChangedFunc(func(row, _ int) {
		if row <= 0 || row > len(agents) {
			return
		}
		selected = agents[row-1].ID
		hover.OverNode(selected)
		redrawGraph()
		statusView.SetText(tview.Escape(strings.ReplaceAll(snapshot.NodeTooltip(selected), "\n", " | ")))
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10:
			app.Stop()
			return nil
		case tcell.KeyF5:
			refresh()
			statusView.SetText("Manual refresh requested")
			return nil
		case tcell.KeyEscape:
			selected = ""
			hover.Clear()
			redrawGraph()
			statusView.SetText("Highlight cleared")
			return nil
		case tcell.KeyCtrlR:
			go func() {
				if err := c.markAllRead(); err != nil {
					app.QueueUpdateDraw(func() { statusView.SetText("mark read failed: " + err.Error()) })
					return
				}
				refresh()
			}()
			return nil
		}
		return event
	})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			app.QueueUpdate(refresh)
		}
	}()
	app.QueueUpdate(refresh)

	return app.SetRoot(root, true).EnableMouse(true).SetFocus(agentsTable).Run()
}
