package store

import (
    "context"
    "errors"
    "time"

    "wavebatch/internal/model"
)

// Store is the persistence interface used by the API server and the run executor.
type Store interface {
    // Instances
    CreateInstance(ctx context.Context, rec model.InstanceRecord) (model.InstanceRecord, error)
    GetInstance(ctx context.Context, id string) (model.InstanceRecord, error)
    ListInstances(ctx context.Context, cursor string, limit int) ([]model.InstanceRecord, string, error)

    // Runs
    CreateRun(ctx context.Context, run model.Run) (model.Run, error)
    GetRun(ctx context.Context, id string) (model.Run, error)
    ListRuns(ctx context.Context, instanceID, status, cursor string, limit int) ([]model.Run, string, error)
    UpdateRun(ctx context.Context, run model.Run) error
    SaveSolution(ctx context.Context, runID string, text []byte) error
    GetSolution(ctx context.Context, runID string) ([]byte, error)

    // Checkpoints
    AppendCheckpoint(ctx context.Context, cp model.Checkpoint) error
    ListCheckpoints(ctx context.Context, runID string) ([]model.Checkpoint, error)

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, runID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, runID, status string) ([]map[string]any, error)
    RetryWebhookDelivery(ctx context.Context, id string) error

    // Solver config overrides shared by every run
    GetSolverConfig(ctx context.Context) (map[string]any, error)
    SaveSolverConfig(ctx context.Context, cfg map[string]any) error

    Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

const defaultPageSize = 100

func pageSize(limit int) int {
    if limit <= 0 || limit > 500 {
        return defaultPageSize
    }
    return limit
}
