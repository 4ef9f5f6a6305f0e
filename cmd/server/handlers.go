package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clawpulse/internal/commgraph"
	"clawpulse/internal/dashboard"
	"clawpulse/internal/domain"
	sqlitestore "clawpulse/internal/store/sqlite"
)

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("GET /config", a.handleConfig)
	mux.HandleFunc("GET /agents", a.handleAgents)
	mux.HandleFunc("POST /agents/{id}/status", a.handleAgentStatus)
	mux.HandleFunc("GET /messages", a.handleListMessages)
	mux.HandleFunc("POST /messages", a.handleCreateMessage)
	mux.HandleFunc("GET /graph", a.handleGraph)
	mux.HandleFunc("GET /graph/hit", a.handleGraphHit)
	mux.HandleFunc("GET /tasks", a.handleListTasks)
	mux.HandleFunc("POST /tasks", a.handleCreateTask)
	mux.HandleFunc("GET /tasks/{id}", a.handleGetTask)
	mux.HandleFunc("POST /tasks/{id}/status", a.handleTaskStatus)
	mux.HandleFunc("GET /usage", a.handleUsageSummary)
	mux.HandleFunc("POST /usage", a.handleRecordUsage)
	mux.HandleFunc("GET /timeline", a.handleTimeline)
	mux.HandleFunc("GET /audit", a.handleAudit)
	mux.HandleFunc("GET /notifications", a.handleNotifications)
	mux.HandleFunc("POST /notifications/read", a.handleNotificationsRead)
	mux.HandleFunc("POST /webhook", a.handleWebhook)
	mux.HandleFunc("GET /ws", a.handleWebSocket)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (a *app) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"time":        time.Now().UTC().Format(time.RFC3339),
		"subscribers": a.bus.Subscribers(),
		"dropped":     a.bus.Dropped(),
	})
}

func (a *app) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"path":   a.cfg.Path,
		"server": a.cfg.Server,
		"graph":  a.cfg.Graph,
		"feed":   a.cfg.Feed,
		"notify": a.cfg.Notify,
		"agents": a.svc.Roster(),
	})
}

func (a *app) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := a.svc.Agents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (a *app) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json body: %w", err))
		return
	}
	st, err := a.svc.RecordStatus(r.Context(), r.PathValue("id"), req.Status, req.Detail)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *app) handleListMessages(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.Messages(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *app) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agent_id"`
		Channel string `json:"channel"`
		Body    string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json body: %w", err))
		return
	}
	msg, err := a.svc.RecordMessage(r.Context(), domain.Message{AgentID: req.AgentID, Channel: req.Channel, Body: req.Body})
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (a *app) handleGraph(w http.ResponseWriter, r *http.Request) {
	canvas, err := a.canvasFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snap, err := a.svc.Current(r.Context(), canvas)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	type edgeOut struct {
		commgraph.Edge
		Style commgraph.Style `json:"style"`
	}
	edges := make([]edgeOut, 0, len(snap.Edges))
	for _, e := range snap.Edges {
		edges = append(edges, edgeOut{Edge: e, Style: commgraph.EdgeStyle(e)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generation": snap.Generation,
		"canvas":     snap.Canvas,
		"built_at":   snap.BuiltAt,
		"nodes":      snap.Nodes,
		"edges":      edges,
	})
}

func (a *app) handleGraphHit(w http.ResponseWriter, r *http.Request) {
	canvas, err := a.canvasFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	x, errX := queryFloat(r, "x")
	y, errY := queryFloat(r, "y")
	if errX != nil || errY != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("x and y are required numbers"))
		return
	}
	hit, err := a.svc.HitTest(r.Context(), canvas, x, y)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, hit)
}

func (a *app) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sortKey, ok := dashboard.ParseSortKey(q.Get("sort"))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown sort key: %s", q.Get("sort")))
		return
	}
	query := dashboard.TaskQuery{
		AgentID: strings.TrimSpace(q.Get("agent")),
		Search:  q.Get("q"),
		Sort:    sortKey,
		Asc:     queryBool(r, "asc"),
		Group:   queryBool(r, "group"),
	}
	for _, raw := range strings.Split(q.Get("status"), ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			query.Statuses = append(query.Statuses, domain.TaskStatus(raw))
		}
	}

	view, err := a.svc.Tasks(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *app) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    string `json:"title"`
		AgentID  string `json:"agent_id"`
		Priority int    `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json body: %w", err))
		return
	}
	task, err := a.svc.CreateTask(r.Context(), dashboard.CreateTaskInput{
		Title:    req.Title,
		AgentID:  req.AgentID,
		Priority: req.Priority,
	})
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (a *app) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := a.svc.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (a *app) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status    string `json:"status"`
		LastError string `json:"last_error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json body: %w", err))
		return
	}
	task, err := a.svc.UpdateTaskStatus(r.Context(), r.PathValue("id"), domain.TaskStatus(req.Status), req.LastError)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (a *app) handleUsageSummary(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if hours := queryInt(r, "since_hours", 0); hours > 0 {
		since = time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	}
	items, err := a.svc.Usage(r.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *app) handleRecordUsage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID      string  `json:"agent_id"`
		Model        string  `json:"model"`
		InputTokens  int64   `json:"input_tokens"`
		OutputTokens int64   `json:"output_tokens"`
		CostUSD      float64 `json:"cost_usd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json body: %w", err))
		return
	}
	u, err := a.svc.RecordUsage(r.Context(), domain.TokenUsage{
		AgentID:      req.AgentID,
		Model:        req.Model,
		InputTokens:  req.InputTokens,
		OutputTokens: req.OutputTokens,
		CostUSD:      req.CostUSD,
	})
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (a *app) handleTimeline(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.Timeline(r.Context(), queryInt(r, "limit", 200))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *app) handleAudit(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.Audit(r.Context(), queryInt(r, "limit", 300))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *app) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	items, unread := a.svc.Notifications()
	writeJSON(w, http.StatusOK, map[string]any{
		"unread": unread,
		"items":  items,
	})
}

func (a *app) handleNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if r.ContentLength != 0 {
		// Chunked requests report an unknown length; an empty one still
		// means every notification.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json body: %w", err))
			return
		}
	}
	marked := a.svc.MarkNotificationsRead(r.Context(), req.IDs...)
	_, unread := a.svc.Notifications()
	writeJSON(w, http.StatusOK, map[string]any{
		"marked": marked,
		"unread": unread,
	})
}

const maxCanvasSide = 10000

func (a *app) canvasFromQuery(r *http.Request) (commgraph.Canvas, error) {
	canvas := a.svc.DefaultCanvas()
	for key, dst := range map[string]*float64{"width": &canvas.Width, "height": &canvas.Height} {
		if strings.TrimSpace(r.URL.Query().Get(key)) == "" {
			continue
		}
		v, err := queryFloat(r, key)
		if err != nil || !(v > 0 && v <= maxCanvasSide) {
			return commgraph.Canvas{}, fmt.Errorf("%s must be a number in (0, %d]", key, maxCanvasSide)
		}
		*dst = v
	}
	return canvas, nil
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, dashboard.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, sqlitestore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dashboard.ErrTaskFinal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func loggingMiddleware(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func durationMS(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Millisecond
}

func queryInt(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// queryFloat parses a finite float. ParseFloat accepts "NaN" and "Inf",
// which nothing downstream can lay out or encode.
func queryFloat(r *http.Request, key string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.URL.Query().Get(key)), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be finite", key)
	}
	return v, nil
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(key)))
	return v
}
