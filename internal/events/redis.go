package events

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog/log"
)

// RedisBroker implements Broker over Redis Pub/Sub so every API replica sees
// the events of runs executed on any other.
type RedisBroker struct {
    rdb  *redis.Client
    mu   sync.Mutex
    subs map[chan Event]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    return &RedisBroker{rdb: redis.NewClient(opt), subs: map[chan Event]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func (b *RedisBroker) Subscribe(runID string) chan Event {
    ch := make(chan Event, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, chanName(runID))
    // wait for the subscription confirmation so no publish is missed
    if _, err := ps.Receive(ctx); err != nil {
        log.Warn().Err(err).Str("run_id", runID).Msg("redis subscribe")
    }
    b.mu.Lock()
    b.subs[ch] = ps
    b.mu.Unlock()
    go func() {
        defer b.drop(ch)
        for msg := range ps.Channel() {
            var evt Event
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
                deliver(ch, evt)
            }
        }
    }()
    return ch
}

func (b *RedisBroker) Unsubscribe(runID string, ch chan Event) {
    b.mu.Lock()
    ps := b.subs[ch]
    b.mu.Unlock()
    if ps != nil { _ = ps.Close() }
}

// drop closes ch once the pubsub channel drains.
func (b *RedisBroker) drop(ch chan Event) {
    b.mu.Lock()
    delete(b.subs, ch)
    b.mu.Unlock()
    close(ch)
}

func (b *RedisBroker) Publish(runID string, evt Event) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, err := json.Marshal(evt)
    if err != nil { return }
    if err := b.rdb.Publish(ctx, chanName(runID), data).Err(); err != nil {
        log.Warn().Err(err).Str("run_id", runID).Msg("redis publish")
    }
}

func chanName(runID string) string { return "wavebatch:run:" + runID }
