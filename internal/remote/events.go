package remote

import (
    "context"
    "encoding/json"
    "log"
    "net/http"
    "sync"
    "time"

    "github.com/gorilla/websocket"

    "fleetdash/internal/metrics"
)

// Event is the push envelope delivered on a topic (one topic per run id).
// Types include started, tank-updated, truck-updated, order-updated,
// route-assigned, order-created, position-updated, blockage-started,
// blockage-ended and collapsed.
type Event struct {
    Type    string          `json:"type"`
    Payload json.RawMessage `json:"payload,omitempty"`
}

// Source is a topic-based push-event subscription channel. Close must
// unsubscribe every active listener before tearing the channel down so no
// callback fires against a torn-down consumer.
type Source interface {
    Subscribe(topic string) chan Event
    Unsubscribe(topic string, ch chan Event)
    Close()
}

type wsFrame struct {
    Action string          `json:"action,omitempty"` // subscribe | unsubscribe (outbound)
    Topic  string          `json:"topic"`
    Type   string          `json:"type,omitempty"`
    Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSource subscribes over a single websocket connection and redials with
// exponential backoff when it drops, re-announcing every registered topic.
type WSSource struct {
    url  string
    mu   sync.Mutex
    wmu  sync.Mutex // serializes frame writes; the conn allows one writer at a time
    conn *websocket.Conn
    subs map[string]map[chan Event]struct{}
    closed bool
    cancel context.CancelFunc
}

func NewWSSource(url string) *WSSource {
    return &WSSource{url: url, subs: map[string]map[chan Event]struct{}{}}
}

// Connect starts the dial/read loop. It returns immediately; delivery begins
// once the first dial succeeds.
func (s *WSSource) Connect(ctx context.Context) {
    ctx, cancel := context.WithCancel(ctx)
    s.mu.Lock()
    s.cancel = cancel
    s.mu.Unlock()
    go s.run(ctx)
}

func (s *WSSource) run(ctx context.Context) {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return
        }
        conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, http.Header{})
        if err != nil {
            log.Printf("events: dial %s failed: %v (retry in %v)", s.url, err, backoff)
            select {
            case <-ctx.Done():
                return
            case <-time.After(backoff):
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second
        s.mu.Lock()
        if s.closed {
            s.mu.Unlock()
            _ = conn.Close()
            return
        }
        s.conn = conn
        topics := make([]string, 0, len(s.subs))
        for t := range s.subs {
            topics = append(topics, t)
        }
        s.mu.Unlock()
        for _, t := range topics {
            s.writeFrame(conn, wsFrame{Action: "subscribe", Topic: t})
        }
        s.readLoop(ctx, conn)
        s.mu.Lock()
        if s.conn == conn {
            s.conn = nil
        }
        s.mu.Unlock()
        _ = conn.Close()
    }
}

func (s *WSSource) readLoop(ctx context.Context, conn *websocket.Conn) {
    conn.SetReadLimit(1 << 20)
    for {
        if ctx.Err() != nil {
            return
        }
        var fr wsFrame
        if err := conn.ReadJSON(&fr); err != nil {
            return
        }
        if fr.Type == "" {
            continue
        }
        metrics.PushEvents.WithLabelValues(fr.Type).Inc()
        s.dispatch(fr.Topic, Event{Type: fr.Type, Payload: fr.Payload})
    }
}

func (s *WSSource) writeFrame(conn *websocket.Conn, fr wsFrame) {
    s.wmu.Lock()
    defer s.wmu.Unlock()
    _ = conn.WriteJSON(fr)
}

func (s *WSSource) dispatch(topic string, evt Event) {
    s.mu.Lock()
    defer s.mu.Unlock()
    for ch := range s.subs[topic] {
        select { case ch <- evt: default: }
    }
}

func (s *WSSource) Subscribe(topic string) chan Event {
    ch := make(chan Event, 16)
    s.mu.Lock()
    if s.subs[topic] == nil {
        s.subs[topic] = map[chan Event]struct{}{}
    }
    first := len(s.subs[topic]) == 0
    s.subs[topic][ch] = struct{}{}
    conn := s.conn
    s.mu.Unlock()
    if first && conn != nil {
        s.writeFrame(conn, wsFrame{Action: "subscribe", Topic: topic})
    }
    return ch
}

// Unsubscribe removes and closes the channel. If Close already tore the
// channel down the call is a no-op, so a late unsubscriber on shutdown
// cannot close twice.
func (s *WSSource) Unsubscribe(topic string, ch chan Event) {
    s.mu.Lock()
    var conn *websocket.Conn
    removed := false
    if m := s.subs[topic]; m != nil {
        if _, ok := m[ch]; ok {
            delete(m, ch)
            removed = true
        }
        if len(m) == 0 {
            delete(s.subs, topic)
            conn = s.conn
        }
    }
    s.mu.Unlock()
    if removed {
        close(ch)
    }
    if conn != nil {
        s.writeFrame(conn, wsFrame{Action: "unsubscribe", Topic: topic})
    }
}

// Close unsubscribes every listener first, then tears down the connection.
func (s *WSSource) Close() {
    s.mu.Lock()
    if s.closed {
        s.mu.Unlock()
        return
    }
    s.closed = true
    for topic, m := range s.subs {
        for ch := range m {
            close(ch)
        }
        delete(s.subs, topic)
    }
    conn := s.conn
    s.conn = nil
    cancel := s.cancel
    s.mu.Unlock()
    if cancel != nil {
        cancel()
    }
    if conn != nil {
        _ = conn.Close()
    }
}
