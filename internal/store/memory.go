package store

import (
    "context"
    "time"
    "sync"

    "github.com/google/uuid"
    "wavebatch/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu        sync.Mutex
    instances map[string]model.InstanceRecord // id -> instance
    instOrder []string                        // insertion order
    runs      map[string]model.Run            // id -> run
    runOrder  []string
    solutions map[string][]byte               // runId -> solution text
    cps       map[string][]model.Checkpoint   // runId -> checkpoints
    // Webhooks queue state
    deliveries map[string]*memDelivery        // id -> delivery state
    delOrder   []string
    dlq        []map[string]any               // dead-lettered deliveries
    solverCfg  map[string]any
}

func NewMemory() *Memory {
    return &Memory{
        instances: map[string]model.InstanceRecord{},
        runs: map[string]model.Run{},
        solutions: map[string][]byte{},
        cps: map[string][]model.Checkpoint{},
        deliveries: map[string]*memDelivery{},
        dlq: []map[string]any{},
    }
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) CreateInstance(ctx context.Context, rec model.InstanceRecord) (model.InstanceRecord, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if rec.ID == "" { rec.ID = uuid.New().String() }
    if rec.CreatedAt.IsZero() { rec.CreatedAt = time.Now().UTC() }
    if _, exists := m.instances[rec.ID]; !exists { m.instOrder = append(m.instOrder, rec.ID) }
    m.instances[rec.ID] = rec
    return rec, nil
}

func (m *Memory) GetInstance(ctx context.Context, id string) (model.InstanceRecord, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    rec, ok := m.instances[id]
    if !ok { return model.InstanceRecord{}, ErrNotFound }
    return rec, nil
}

func (m *Memory) ListInstances(ctx context.Context, cursor string, limit int) ([]model.InstanceRecord, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = pageSize(limit)
    out := []model.InstanceRecord{}
    for _, id := range after(m.instOrder, cursor) {
        out = append(out, m.instances[id])
        if len(out) == limit { return out, id, nil }
    }
    return out, "", nil
}

func (m *Memory) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.instances[run.InstanceID]; !ok { return model.Run{}, ErrNotFound }
    if run.ID == "" { run.ID = uuid.New().String() }
    if run.CreatedAt.IsZero() { run.CreatedAt = time.Now().UTC() }
    if run.Status == "" { run.Status = model.RunQueued }
    m.runs[run.ID] = run
    m.runOrder = append(m.runOrder, run.ID)
    return run, nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (model.Run, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    run, ok := m.runs[id]
    if !ok { return model.Run{}, ErrNotFound }
    return run, nil
}

func (m *Memory) ListRuns(ctx context.Context, instanceID, status, cursor string, limit int) ([]model.Run, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = pageSize(limit)
    out := []model.Run{}
    for _, id := range after(m.runOrder, cursor) {
        r := m.runs[id]
        if instanceID != "" && r.InstanceID != instanceID { continue }
        if status != "" && r.Status != status { continue }
        out = append(out, r)
        if len(out) == limit { return out, id, nil }
    }
    return out, "", nil
}

func (m *Memory) UpdateRun(ctx context.Context, run model.Run) error {
    m.mu.Lock(); defer m.mu.Unlock()
    prev, ok := m.runs[run.ID]
    if !ok { return ErrNotFound }
    run.CreatedAt = prev.CreatedAt
    run.CallbackSecret = prev.CallbackSecret
    m.runs[run.ID] = run
    return nil
}

func (m *Memory) SaveSolution(ctx context.Context, runID string, text []byte) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.runs[runID]; !ok { return ErrNotFound }
    m.solutions[runID] = append([]byte(nil), text...)
    return nil
}

func (m *Memory) GetSolution(ctx context.Context, runID string) ([]byte, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    text, ok := m.solutions[runID]
    if !ok { return nil, ErrNotFound }
    return append([]byte(nil), text...), nil
}

func (m *Memory) AppendCheckpoint(ctx context.Context, cp model.Checkpoint) error {
    m.mu.Lock(); defer m.mu.Unlock()
    cp.Seq = len(m.cps[cp.RunID]) + 1
    m.cps[cp.RunID] = append(m.cps[cp.RunID], cp)
    return nil
}

func (m *Memory) ListCheckpoints(ctx context.Context, runID string) ([]model.Checkpoint, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    return append([]model.Checkpoint{}, m.cps[runID]...), nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, runID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id := uuid.New().String()
    d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, RunID: runID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending, Attempts: 0}, NextAttemptAt: time.Now()}
    m.deliveries[id] = d
    m.delOrder = append(m.delOrder, id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.delOrder {
        d := m.deliveries[id]
        if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
            out = append(out, d.WebhookDelivery)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = DeliveryDelivered
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = DeliveryRetry
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d != nil {
        d.Status = DeliveryFailed
        d.Attempts++
        d.LastError = lastError
    }
    m.dlq = append(m.dlq, map[string]any{"id": id, "lastError": lastError, "responseCode": responseCode, "latencyMs": latencyMs})
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, runID, status string) ([]map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []map[string]any{}
    for _, id := range m.delOrder {
        d := m.deliveries[id]
        if runID != "" && d.RunID != runID { continue }
        if status == "" || d.Status == status {
            item := map[string]any{"id": d.ID, "runId": d.RunID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
            if !d.NextAttemptAt.IsZero() { item["nextAttemptAt"] = d.NextAttemptAt }
            if d.LastError != "" { item["lastError"] = d.LastError }
            if d.ResponseCode != 0 { item["responseCode"] = d.ResponseCode }
            out = append(out, item)
        }
    }
    return out, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Status = DeliveryPending
    d.NextAttemptAt = time.Now()
    return nil
}

func (m *Memory) GetSolverConfig(ctx context.Context) (map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if m.solverCfg == nil { return nil, nil }
    out := make(map[string]any, len(m.solverCfg))
    for k, v := range m.solverCfg { out[k] = v }
    return out, nil
}

func (m *Memory) SaveSolverConfig(ctx context.Context, cfg map[string]any) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.solverCfg = cfg
    return nil
}

// after returns the ids following cursor, or all of them when cursor is empty or unknown.
func after(ids []string, cursor string) []string {
    if cursor == "" { return ids }
    for i, id := range ids {
        if id == cursor { return ids[i+1:] }
    }
    return ids
}
