package main

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"clawpulse/internal/commgraph"
	"clawpulse/internal/domain"
)

type cell struct {
	ch    rune
	style tcell.Style
}

var (
	styleDim    = tcell.StyleDefault.Foreground(tcell.ColorDimGray)
	styleSpawn  = tcell.StyleDefault.Foreground(tcell.ColorOrange)
	styleShared = tcell.StyleDefault.Foreground(tcell.ColorTeal)
	styleLabel  = tcell.StyleDefault.Foreground(tcell.ColorWhite)
)

func statusColor(s domain.AgentState) tcell.Color {
	switch s {
	case domain.AgentStateWorking:
		return tcell.ColorGreen
	case domain.AgentStateIdle:
		return tcell.ColorYellow
	case domain.AgentStateOffline:
		return tcell.ColorGray
	default:
		return tcell.ColorPurple
	}
}

func statusTag(s domain.AgentState) string {
	switch s {
	case domain.AgentStateWorking:
		return "green"
	case domain.AgentStateIdle:
		return "yellow"
	case domain.AgentStateOffline:
		return "gray"
	default:
		return "purple"
	}
}

// toCell maps a canvas position onto a cols x rows character grid.
func toCell(canvas commgraph.Canvas, cols, rows int, x, y float64) (int, int) {
	col := scale(x, canvas.Width, cols)
	row := scale(y, canvas.Height, rows)
	return col, row
}

// toCanvas is the inverse of toCell, returning the canvas position of a cell.
func toCanvas(canvas commgraph.Canvas, cols, rows, col, row int) (float64, float64) {
	return unscale(col, canvas.Width, cols), unscale(row, canvas.Height, rows)
}

func scale(v, extent float64, cells int) int {
	if cells <= 1 || extent <= 0 {
		return 0
	}
	i := int(math.Round(v / extent * float64(cells-1)))
	return max(0, min(cells-1, i))
}

func unscale(i int, extent float64, cells int) float64 {
	if cells <= 1 {
		return extent / 2
	}
	return float64(i) / float64(cells-1) * extent
}

// rasterize plots g onto a character grid. Edges go down first, nodes on top.
// Dimmed elements follow hover.
func rasterize(g commgraph.Graph, canvas commgraph.Canvas, cols, rows int, hover *commgraph.Hover) [][]cell {
	grid := make([][]cell, rows)
	for r := range grid {
		grid[r] = make([]cell, cols)
		for c := range grid[r] {
			grid[r][c] = cell{ch: ' ', style: tcell.StyleDefault}
		}
	}
	if cols == 0 || rows == 0 {
		return grid
	}
	if hover == nil {
		hover = commgraph.NewHover()
	}

	pos := make(map[string][2]int, len(g.Nodes))
	for _, n := range g.Nodes {
		c, r := toCell(canvas, cols, rows, n.X, n.Y)
		pos[n.ID] = [2]int{c, r}
	}

	for i, e := range g.Edges {
		a, okA := pos[e.Source]
		b, okB := pos[e.Target]
		if !okA || !okB || e.SelfLoop() || a == b {
			continue
		}
		st := commgraph.EdgeStyle(e)
		style := styleShared
		if e.Kind == commgraph.KindSpawn {
			style = styleSpawn
		}
		if hover.EdgeDimmed(g, i) {
			style = styleDim
		}
		glyph := lineGlyph(b[0]-a[0], b[1]-a[1])
		points := line(a[0], a[1], b[0], b[1])
		for k, p := range points {
			if k == 0 || k == len(points)-1 {
				continue
			}
			if st.Dashed && k%2 == 1 {
				continue
			}
			ch := glyph
			if st.Dashed {
				ch = '.'
			}
			grid[p[1]][p[0]] = cell{ch: ch, style: style}
		}
		if st.Arrow && len(points) > 2 {
			p := points[len(points)-2]
			grid[p[1]][p[0]] = cell{ch: arrowGlyph(b[0]-p[0], b[1]-p[1]), style: style}
		}
	}

	for _, n := range g.Nodes {
		p := pos[n.ID]
		style := tcell.StyleDefault.Foreground(statusColor(n.Status)).Bold(true)
		label := styleLabel
		if hover.NodeDimmed(g, n.ID) {
			style, label = styleDim, styleDim
		}
		grid[p[1]][p[0]] = cell{ch: 'O', style: style}
		for k, ch := range []rune(n.Name) {
			c := p[0] + 1 + k
			if c >= cols || k >= 12 {
				break
			}
			grid[p[1]][c] = cell{ch: ch, style: label}
		}
	}
	return grid
}

// line returns the cells of a Bresenham segment from (x0, y0) to (x1, y1).
func line(x0, y0, x1, y1 int) [][2]int {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	errv := dx + dy
	var out [][2]int
	for {
		out = append(out, [2]int{x0, y0})
		if x0 == x1 && y0 == y1 {
			return out
		}
		e2 := 2 * errv
		if e2 >= dy {
			errv += dy
			x0 += sx
		}
		if e2 <= dx {
			errv += dx
			y0 += sy
		}
	}
}

func lineGlyph(dx, dy int) rune {
	switch {
	case dy == 0:
		return '-'
	case dx == 0:
		return '|'
	case abs(dx) > 2*abs(dy):
		return '-'
	case abs(dy) > 2*abs(dx):
		return '|'
	case (dx > 0) == (dy > 0):
		return '\\'
	default:
		return '/'
	}
}

func arrowGlyph(dx, dy int) rune {
	if abs(dx) >= abs(dy) {
		if dx >= 0 {
			return '>'
		}
		return '<'
	}
	if dy > 0 {
		return 'v'
	}
	return '^'
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func renderAgentsTable(table *tview.Table, agents []agentRow, selected string) {
	table.Clear()
	headers := []string{"Agent", "Status", "Role", "Updated", "Detail"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, a := range agents {
		row := i + 1
		updated := "-"
		if a.UpdatedAt != nil {
			updated = a.UpdatedAt.Local().Format("15:04:05")
		}
		table.SetCell(row, 0, tview.NewTableCell(tview.Escape(firstNonEmpty(a.Name, a.ID))))
		table.SetCell(row, 1, tview.NewTableCell(string(a.Status)).SetTextColor(statusColor(a.Status)))
		table.SetCell(row, 2, tview.NewTableCell(tview.Escape(a.Role)))
		table.SetCell(row, 3, tview.NewTableCell(updated))
		table.SetCell(row, 4, tview.NewTableCell(tview.Escape(trimLine(a.Detail, 40))))
		if a.ID == selected {
			table.Select(row, 0)
		}
	}
}

func renderEdges(g commgraph.Graph, hover *commgraph.Hover) string {
	if len(g.Edges) == 0 {
		return "No connections"
	}
	var b strings.Builder
	for i, e := range g.Edges {
		color := "teal"
		if e.Kind == commgraph.KindSpawn {
			color = "orange"
		}
		if hover != nil && hover.EdgeDimmed(g, i) {
			color = "gray"
		}
		fmt.Fprintf(&b, "[%s]%s[-]\n", color, tview.Escape(g.EdgeTooltip(i)))
	}
	return b.String()
}

func renderTimeline(items []domain.TimelineEvent) string {
	if len(items) == 0 {
		return "No activity"
	}
	var b strings.Builder
	for _, ev := range items {
		ts := ev.CreatedAt.Local().Format("15:04:05")
		switch ev.Kind {
		case "message":
			fmt.Fprintf(&b, "[%s] %s [teal]#%s[-] %s\n", ts, tview.Escape(ev.Actor), tview.Escape(strings.TrimPrefix(ev.Channel, "#")), tview.Escape(trimLine(ev.Body, 80)))
		default:
			fmt.Fprintf(&b, "[%s] %s [yellow]%s[-] %s\n", ts, tview.Escape(ev.Actor), tview.Escape(ev.Action), tview.Escape(trimLine(ev.Reason, 80)))
		}
	}
	return b.String()
}

func renderNotifications(items []domain.Notification) string {
	if len(items) == 0 {
		return "No notifications"
	}
	var b strings.Builder
	for _, n := range items {
		color := "white"
		switch n.Level {
		case domain.NotificationError:
			color = "red"
		case domain.NotificationWarning:
			color = "yellow"
		}
		marker := " "
		if !n.Read {
			marker = "*"
		}
		title := tview.Escape(n.Title)
		if n.Count > 1 {
			title = fmt.Sprintf("%s (x%d)", title, n.Count)
		}
		fmt.Fprintf(&b, "%s [%s]%s[-] %s\n", marker, color, title, n.UpdatedAt.Local().Format("15:04:05"))
		if n.Body != "" {
			fmt.Fprintf(&b, "    %s\n", tview.Escape(trimLine(n.Body, 80)))
		}
	}
	return b.String()
}

func trimLine(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:max(limit-3, 0)]) + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
