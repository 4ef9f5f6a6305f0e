package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clawpulse/internal/commgraph"
	"clawpulse/internal/domain"
)

type client struct {
	baseURL string
	http    *http.Client
}

type agentRow struct {
	domain.Agent
	Status    domain.AgentState `json:"status"`
	Detail    string            `json:"detail"`
	UpdatedAt *time.Time        `json:"updated_at"`
}

type graphSnapshot struct {
	Generation uint64           `json:"generation"`
	Canvas     commgraph.Canvas `json:"canvas"`
	commgraph.Graph
}

type notificationList struct {
	Unread int                   `json:"unread"`
	Items  []domain.Notification `json:"items"`
}

func (c *client) listAgents() ([]agentRow, error) {
	var out []agentRow
	if err := c.getJSON("/agents", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) graph(canvas commgraph.Canvas) (graphSnapshot, error) {
	q := url.Values{}
	q.Set("width", fmt.Sprintf("%.0f", canvas.Width))
	q.Set("height", fmt.Sprintf("%.0f", canvas.Height))
	var out graphSnapshot
	if err := c.getJSON("/graph?"+q.Encode(), &out); err != nil {
		return graphSnapshot{}, err
	}
	return out, nil
}

func (c *client) timeline(limit int) ([]domain.TimelineEvent, error) {
	var out []domain.TimelineEvent
	if err := c.getJSON(fmt.Sprintf("/timeline?limit=%d", limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) notifications() (notificationList, error) {
	var out notificationList
	if err := c.getJSON("/notifications", &out); err != nil {
		return notificationList{}, err
	}
	return out, nil
}

func (c *client) markAllRead() error {
	return c.postJSON("/notifications/read", map[string]any{}, nil)
}

func (c *client) waitHealth(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := c.http.Get(c.baseURL + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode < 300 {
				return nil
			}
		}
		time.Sleep(400 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for %s/healthz", c.baseURL)
}

func (c *client) getJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

func (c *client) postJSON(path string, in any, out any) error {
	var payload io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
