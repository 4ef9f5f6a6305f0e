package main

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"clawpulse/internal/feed"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebSocket streams every feed event to the client as JSON, starting
// with a snapshot of the agent table. Inbound frames are read only to notice
// the peer closing.
func (a *app) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := "ws-" + uuid.NewString()
	events := a.bus.Subscribe(id)
	defer a.bus.Unsubscribe(id)

	// Queued before the upgrade so it precedes anything published after the
	// client sees the handshake complete.
	if agents, err := a.svc.Agents(r.Context()); err != nil {
		a.logger.Printf("websocket snapshot id=%s err=%v", id, err)
	} else if err := a.bus.Send(id, feed.Event{Table: feed.TableAgentStatus, Kind: feed.KindSnapshot, Payload: agents}); err != nil {
		a.logger.Printf("websocket snapshot id=%s err=%v", id, err)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(1024)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				a.logger.Printf("websocket write id=%s err=%v", id, err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
