package api

import (
    "encoding/json"
    "fmt"
    "net/http"
    "time"

    "github.com/gorilla/websocket"

    "fleetdash/internal/metrics"
    "fleetdash/internal/model"
)

// stateEnvelope is the payload pushed to stream subscribers on every store
// change. Clients re-render from it directly; there is no delta protocol.
type stateEnvelope struct {
    Simulation  any `json:"simulation"`
    Operational any `json:"operational"`
    Selection   any `json:"selection"`
    Modal       any `json:"modal"`
}

func (s *Server) envelope() stateEnvelope {
    return stateEnvelope{
        Simulation:  s.Store.Slice(model.ModeSimulation),
        Operational: s.Store.Slice(model.ModeOperational),
        Selection:   s.Store.Selection(),
        Modal:       s.Store.Modal(),
    }
}

// EventsStreamHandler handles GET /v1/events/stream (SSE). Notifications
// coalesce in the store watcher, so a burst of mutations produces one event
// carrying the latest state.
func (s *Server) EventsStreamHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    flusher, ok := w.(http.Flusher)
    if !ok {
        writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
        return
    }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")

    ch := s.Store.Watch()
    defer s.Store.Unwatch(ch)

    // initial full state so the client never renders from nothing
    if err := writeSSE(w, "state", s.envelope()); err != nil {
        return
    }
    flusher.Flush()

    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case <-ch:
            if err := writeSSE(w, "state", s.envelope()); err != nil {
                return
            }
            metrics.PushEvents.WithLabelValues("sse").Inc()
            flusher.Flush()
        case <-time.After(15 * time.Second):
            fmt.Fprintf(w, "event: heartbeat\n")
            fmt.Fprintf(w, "data: {\"ts\":\"%s\"}\n\n", time.Now().Format(time.RFC3339))
            flusher.Flush()
        }
    }
}

func writeSSE(w http.ResponseWriter, event string, v any) error {
    b, err := json.Marshal(v)
    if err != nil {
        return err
    }
    if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
        return err
    }
    _, err = fmt.Fprintf(w, "data: %s\n\n", string(b))
    return err
}

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// WSHandler handles GET /ws: the same state stream over a websocket for
// clients that prefer a duplex connection. Inbound messages are read only
// to detect close and answer pings.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    defer func() { _ = conn.Close() }()

    conn.SetReadLimit(1 << 20)
    _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
    conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

    done := make(chan struct{})
    go func() {
        defer close(done)
        for {
            if _, _, err := conn.ReadMessage(); err != nil {
                return
            }
        }
    }()

    ch := s.Store.Watch()
    defer s.Store.Unwatch(ch)

    if err := conn.WriteJSON(map[string]any{"type": "state", "payload": s.envelope()}); err != nil {
        return
    }
    ticker := time.NewTicker(20 * time.Second)
    defer ticker.Stop()
    for {
        select {
        case <-done:
            return
        case <-r.Context().Done():
            return
        case <-ch:
            if err := conn.WriteJSON(map[string]any{"type": "state", "payload": s.envelope()}); err != nil {
                return
            }
            metrics.PushEvents.WithLabelValues("ws").Inc()
        case <-ticker.C:
            if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
                return
            }
        }
    }
}
