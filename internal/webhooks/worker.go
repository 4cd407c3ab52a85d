package webhooks

import (
    "bytes"
    "context"
    "net/http"
    "strconv"
    "time"

    "github.com/rs/zerolog/log"

    "wavebatch/internal/metrics"
    "wavebatch/internal/store"
)

const defaultMaxAttempts = 10

// Worker polls the delivery queue and POSTs due run callbacks.
type Worker struct {
    Store       store.Store
    HTTP        *http.Client
    MaxAttempts int
    Interval    time.Duration
    BatchSize   int
}

func NewWorker(s store.Store, maxAttempts int) *Worker {
    if maxAttempts <= 0 { maxAttempts = defaultMaxAttempts }
    return &Worker{Store: s, HTTP: &http.Client{Timeout: 5 * time.Second}, MaxAttempts: maxAttempts, Interval: time.Second, BatchSize: 50}
}

// Run processes the queue until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
    interval := w.Interval
    if interval <= 0 { interval = time.Second }
    ticker := time.NewTicker(interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return nil
        case <-ticker.C:
            w.processOnce(ctx)
        }
    }
}

func (w *Worker) processOnce(parent context.Context) {
    ctx, cancel := context.WithTimeout(parent, 10*time.Second)
    defer cancel()
    limit := w.BatchSize
    if limit <= 0 { limit = 50 }
    items, err := w.Store.FetchDueWebhookDeliveries(ctx, limit)
    if err != nil {
        log.Warn().Err(err).Msg("fetch due webhook deliveries")
        return
    }
    for _, it := range items {
        w.deliver(ctx, it)
    }
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
    success := false
    next := time.Now().Add(nextBackoff(it.Attempts))
    code := 0
    lastErr := ""
    start := time.Now()
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
    if err == nil {
        req.Header.Set("Content-Type", "application/json")
        req.Header.Set("X-Event-Type", it.EventType)
        req.Header.Set("X-Delivery-Attempt", strconv.Itoa(it.Attempts+1))
        if it.Secret != "" {
            req.Header.Set(SignatureHeader, SignHMAC(it.Secret, it.Payload))
        }
        var resp *http.Response
        resp, err = w.HTTP.Do(req)
        if err == nil {
            code = resp.StatusCode
            _ = resp.Body.Close()
            success = code >= 200 && code < 300
        }
    }
    latency := int(time.Since(start).Milliseconds())
    if err != nil {
        lastErr = err.Error()
    } else if !success {
        lastErr = "unexpected status " + strconv.Itoa(code)
    }

    status := store.DeliveryDelivered
    switch {
    case success:
        _ = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
    case it.Attempts+1 >= w.MaxAttempts:
        status = store.DeliveryFailed
        _ = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
        log.Warn().Str("delivery_id", it.ID).Str("run_id", it.RunID).Str("error", lastErr).Int("attempts", it.Attempts+1).Msg("webhook delivery dead-lettered")
    default:
        status = store.DeliveryRetry
        _ = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code, latency)
    }
    metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
    metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 10 { attempts = 10 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}
