package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from dashboards on other origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamSSE streams replay events as server-sent events. The connection
// stays open until the client disconnects or the replayer shuts down.
func (h *Handler) StreamSSE(w http.ResponseWriter, r *http.Request) {
	if h.replayer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "stream replayer not available",
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "streaming not supported",
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := h.replayer.Subscribe()
	defer cancel()

	// Heartbeat keeps proxies from timing out idle streams.
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				slog.Error("failed to marshal replay event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: score\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// StreamWS streams replay events over a websocket. One JSON message per
// replay tick; a slow client is disconnected rather than blocking the feed.
func (h *Handler) StreamWS(w http.ResponseWriter, r *http.Request) {
	if h.replayer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "stream replayer not available",
		})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := h.replayer.Subscribe()
	defer cancel()

	// Drain client frames so close handshakes are noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case event, open := <-events:
			if !open {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				slog.Warn("websocket write failed, dropping client", "error", err)
				return
			}
		}
	}
}
