package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleStream upgrades the request to a WebSocket and pushes the
// latest snapshot once per interval until the client disconnects.
// Polling /snapshot and subscribing to /stream return identical
// payloads.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range g.corsOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		g.requestsFailed.Add(1)
		return
	}
	defer conn.Close()

	count := g.streamClients.Add(1)
	defer g.streamClients.Add(-1)
	g.logger.Info("snapshot stream client connected",
		"remote", conn.RemoteAddr().String(),
		"clients", count)

	// Reader goroutine: surfaces client close without blocking pushes.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pushTicker := time.NewTicker(g.streamInterval)
	defer pushTicker.Stop()
	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	// First snapshot goes out immediately so a fresh dashboard does
	// not wait a full interval.
	if !g.pushSnapshot(conn) {
		return
	}

	for {
		select {
		case <-closed:
			g.logger.Info("snapshot stream client disconnected",
				"remote", conn.RemoteAddr().String())
			return
		case <-pushTicker.C:
			if !g.pushSnapshot(conn) {
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) pushSnapshot(conn *websocket.Conn) bool {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(g.engine.Snapshot()); err != nil {
		g.logger.Debug("snapshot push failed", "error", err)
		return false
	}
	return true
}

// StreamClients returns the number of connected stream clients
func (g *Gateway) StreamClients() int {
	return int(g.streamClients.Load())
}
