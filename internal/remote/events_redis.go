package remote

import (
    "context"
    "encoding/json"
    "sync"

    redis "github.com/redis/go-redis/v9"

    "fleetdash/internal/metrics"
)

// RedisSource implements Source over Redis Pub/Sub for deployments where the
// service publishes run events through Redis instead of a websocket.
type RedisSource struct {
    rdb    *redis.Client
    mu     sync.Mutex
    subs   map[chan Event]*redis.PubSub
    closed bool
}

func NewRedisSource(url string) (*RedisSource, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    return &RedisSource{rdb: redis.NewClient(opt), subs: map[chan Event]*redis.PubSub{}}, nil
}

func (s *RedisSource) Subscribe(topic string) chan Event {
    ch := make(chan Event, 16)
    ctx := context.Background()
    ps := s.rdb.Subscribe(ctx, chanName(topic))
    // initial consume to ensure the subscription is live
    _, _ = ps.Receive(ctx)
    s.mu.Lock()
    if s.closed {
        s.mu.Unlock()
        _ = ps.Close()
        close(ch)
        return ch
    }
    s.subs[ch] = ps
    s.mu.Unlock()
    // The goroutine is the only closer of ch: it exits when ps.Channel is
    // closed by Unsubscribe/Close, so a send can never race a close.
    go func() {
        defer close(ch)
        for msg := range ps.Channel() {
            var evt Event
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
                continue
            }
            metrics.PushEvents.WithLabelValues(evt.Type).Inc()
            select { case ch <- evt: default: }
        }
        s.mu.Lock()
        delete(s.subs, ch)
        s.mu.Unlock()
    }()
    return ch
}

func (s *RedisSource) Unsubscribe(topic string, ch chan Event) {
    s.mu.Lock()
    ps, ok := s.subs[ch]
    if ok {
        delete(s.subs, ch)
    }
    s.mu.Unlock()
    if ok {
        _ = ps.Close() // reader goroutine exits and closes ch
    }
}

// Close drops every subscription before closing the client.
func (s *RedisSource) Close() {
    s.mu.Lock()
    if s.closed {
        s.mu.Unlock()
        return
    }
    s.closed = true
    subs := make([]*redis.PubSub, 0, len(s.subs))
    for ch, ps := range s.subs {
        subs = append(subs, ps)
        delete(s.subs, ch)
    }
    s.mu.Unlock()
    for _, ps := range subs {
        _ = ps.Close()
    }
    _ = s.rdb.Close()
}

func chanName(topic string) string { return "run:" + topic }
