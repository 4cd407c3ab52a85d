package store

import (
    "context"
    "crypto/sha256"
    "database/sql"
    _ "embed"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "wavebatch/internal/model"
)

//go:embed schema.sql
var schemaSQL string

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
    if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
        return fmt.Errorf("apply schema: %w", err)
    }
    return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) CreateInstance(ctx context.Context, rec model.InstanceRecord) (model.InstanceRecord, error) {
    if rec.ID == "" { rec.ID = uuid.New().String() }
    if rec.CreatedAt.IsZero() { rec.CreatedAt = time.Now().UTC() }
    _, err := p.db.ExecContext(ctx, `INSERT INTO instances (id, name, digest, num_orders, num_items, num_aisles, min_items, max_items, raw, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
        rec.ID, nullIfEmpty(rec.Name), rec.Digest, rec.NumOrders, rec.NumItems, rec.NumAisles, rec.MinItems, rec.MaxItems, rec.Raw, rec.CreatedAt)
    if err != nil { return model.InstanceRecord{}, err }
    return rec, nil
}

const instanceCols = `id::text, COALESCE(name,''), digest, num_orders, num_items, num_aisles, min_items, max_items, raw, created_at`

func scanInstance(sc interface{ Scan(...any) error }) (model.InstanceRecord, error) {
    var r model.InstanceRecord
    err := sc.Scan(&r.ID, &r.Name, &r.Digest, &r.NumOrders, &r.NumItems, &r.NumAisles, &r.MinItems, &r.MaxItems, &r.Raw, &r.CreatedAt)
    return r, err
}

func (p *Postgres) GetInstance(ctx context.Context, id string) (model.InstanceRecord, error) {
    if _, err := uuid.Parse(id); err != nil { return model.InstanceRecord{}, ErrNotFound }
    rec, err := scanInstance(p.db.QueryRowContext(ctx, `SELECT `+instanceCols+` FROM instances WHERE id=$1`, id))
    if errors.Is(err, sql.ErrNoRows) { return model.InstanceRecord{}, ErrNotFound }
    return rec, err
}

func (p *Postgres) ListInstances(ctx context.Context, cursor string, limit int) ([]model.InstanceRecord, string, error) {
    limit = pageSize(limit)
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT `+instanceCols+` FROM instances WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT `+instanceCols+` FROM instances ORDER BY id LIMIT $1`, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.InstanceRecord{}
    var last string
    for rows.Next() {
        r, err := scanInstance(rows)
        if err != nil { return nil, "", err }
        r.Raw = nil
        out = append(out, r)
        last = r.ID
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
    if run.ID == "" { run.ID = uuid.New().String() }
    if run.CreatedAt.IsZero() { run.CreatedAt = time.Now().UTC() }
    if run.Status == "" { run.Status = model.RunQueued }
    if _, err := uuid.Parse(run.InstanceID); err != nil { return model.Run{}, ErrNotFound }
    _, err := p.db.ExecContext(ctx, `INSERT INTO runs (id, instance_id, algorithm, seed, status, params, timeout_ms, callback_url, callback_secret, created_at)
        SELECT $1,$2,$3,$4,$5,$6,$7,$8,$9,$10 WHERE EXISTS (SELECT 1 FROM instances WHERE id=$2)`,
        run.ID, run.InstanceID, run.Algorithm, run.Seed, run.Status, jsonOrNil(run.Params), run.TimeoutMs,
        nullIfEmpty(run.CallbackURL), nullIfEmpty(run.CallbackSecret), run.CreatedAt)
    if err != nil { return model.Run{}, err }
    if _, err := p.GetRun(ctx, run.ID); err != nil { return model.Run{}, err }
    return run, nil
}

const runCols = `id::text, instance_id::text, algorithm, seed, status, params, timeout_ms, efficiency, total_items, orders, aisles, stats,
    COALESCE(error,''), COALESCE(callback_url,''), COALESCE(callback_secret,''), created_at, started_at, finished_at`

func scanRun(sc interface{ Scan(...any) error }) (model.Run, error) {
    var r model.Run
    var params, orders, aisles, stats []byte
    var started, finished sql.NullTime
    err := sc.Scan(&r.ID, &r.InstanceID, &r.Algorithm, &r.Seed, &r.Status, &params, &r.TimeoutMs, &r.Efficiency, &r.TotalItems,
        &orders, &aisles, &stats, &r.Error, &r.CallbackURL, &r.CallbackSecret, &r.CreatedAt, &started, &finished)
    if err != nil { return r, err }
    if started.Valid { t := started.Time; r.StartedAt = &t }
    if finished.Valid { t := finished.Time; r.FinishedAt = &t }
    for _, f := range []struct {
        raw []byte
        dst any
    }{{params, &r.Params}, {orders, &r.Orders}, {aisles, &r.Aisles}, {stats, &r.Stats}} {
        if len(f.raw) == 0 { continue }
        if err := json.Unmarshal(f.raw, f.dst); err != nil { return r, fmt.Errorf("decode run %s: %w", r.ID, err) }
    }
    return r, nil
}

func (p *Postgres) GetRun(ctx context.Context, id string) (model.Run, error) {
    if _, err := uuid.Parse(id); err != nil { return model.Run{}, ErrNotFound }
    r, err := scanRun(p.db.QueryRowContext(ctx, `SELECT `+runCols+` FROM runs WHERE id=$1`, id))
    if errors.Is(err, sql.ErrNoRows) { return model.Run{}, ErrNotFound }
    return r, err
}

func (p *Postgres) ListRuns(ctx context.Context, instanceID, status, cursor string, limit int) ([]model.Run, string, error) {
    limit = pageSize(limit)
    var where []string
    var args []any
    if instanceID != "" {
        args = append(args, instanceID)
        where = append(where, fmt.Sprintf("instance_id::text = $%d", len(args)))
    }
    if status != "" {
        args = append(args, status)
        where = append(where, fmt.Sprintf("status = $%d", len(args)))
    }
    if cursor != "" {
        args = append(args, cursor)
        where = append(where, fmt.Sprintf("id::text > $%d", len(args)))
    }
    q := `SELECT ` + runCols + ` FROM runs`
    if len(where) > 0 { q += ` WHERE ` + strings.Join(where, " AND ") }
    args = append(args, limit)
    q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Run{}
    var last string
    for rows.Next() {
        r, err := scanRun(rows)
        if err != nil { return nil, "", err }
        out = append(out, r)
        last = r.ID
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) UpdateRun(ctx context.Context, run model.Run) error {
    res, err := p.db.ExecContext(ctx, `UPDATE runs SET status=$2, params=$3, efficiency=$4, total_items=$5, orders=$6, aisles=$7, stats=$8,
        error=$9, started_at=$10, finished_at=$11 WHERE id=$1`,
        run.ID, run.Status, jsonOrNil(run.Params), run.Efficiency, run.TotalItems, jsonOrNil(run.Orders), jsonOrNil(run.Aisles),
        jsonOrNil(run.Stats), nullIfEmpty(run.Error), run.StartedAt, run.FinishedAt)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) SaveSolution(ctx context.Context, runID string, text []byte) error {
    res, err := p.db.ExecContext(ctx, `UPDATE runs SET solution=$2 WHERE id=$1`, runID, text)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) GetSolution(ctx context.Context, runID string) ([]byte, error) {
    if _, err := uuid.Parse(runID); err != nil { return nil, ErrNotFound }
    var text []byte
    err := p.db.QueryRowContext(ctx, `SELECT solution FROM runs WHERE id=$1`, runID).Scan(&text)
    if errors.Is(err, sql.ErrNoRows) || (err == nil && text == nil) { return nil, ErrNotFound }
    return text, err
}

func (p *Postgres) AppendCheckpoint(ctx context.Context, cp model.Checkpoint) error {
    _, err := p.db.ExecContext(ctx, `INSERT INTO run_checkpoints (run_id, seq, algorithm, iteration, efficiency, total_items, orders, aisles, at)
        SELECT $1, COALESCE(MAX(seq),0)+1, $2,$3,$4,$5,$6,$7,$8 FROM run_checkpoints WHERE run_id=$1`,
        cp.RunID, cp.Algorithm, cp.Iteration, cp.Efficiency, cp.TotalItems, jsonOrNil(cp.Orders), jsonOrNil(cp.Aisles), cp.At)
    return err
}

func (p *Postgres) ListCheckpoints(ctx context.Context, runID string) ([]model.Checkpoint, error) {
    if _, err := uuid.Parse(runID); err != nil { return []model.Checkpoint{}, nil }
    rows, err := p.db.QueryContext(ctx, `SELECT run_id::text, seq, algorithm, iteration, efficiency, total_items, orders, aisles, at
        FROM run_checkpoints WHERE run_id=$1 ORDER BY seq`, runID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Checkpoint{}
    for rows.Next() {
        var cp model.Checkpoint
        var orders, aisles []byte
        if err := rows.Scan(&cp.RunID, &cp.Seq, &cp.Algorithm, &cp.Iteration, &cp.Efficiency, &cp.TotalItems, &orders, &aisles, &cp.At); err != nil { return nil, err }
        if err := json.Unmarshal(orders, &cp.Orders); err != nil { return nil, err }
        if err := json.Unmarshal(aisles, &cp.Aisles); err != nil { return nil, err }
        out = append(out, cp)
    }
    return out, rows.Err()
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, runID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, run_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now(),$7)
        ON CONFLICT (event_type, url, dedup_key) DO NOTHING`, id, nullIfEmpty(runID), eventType, url, nullIfEmpty(secret), payload, dk)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(run_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.RunID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$1, next_attempt_at=$2, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$3`, nullIfEmpty(lastError), *nextAttemptAt, id, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    _, err = tx.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
    if err != nil { return err }
    // move to DLQ
    _, err = tx.ExecContext(ctx, `INSERT INTO webhook_dlq (delivery_id, run_id, event_type, url, payload, attempts, last_error)
        SELECT id, run_id, event_type, url, payload, attempts, $2 FROM webhook_deliveries WHERE id=$1`, id, nullIfEmpty(lastError))
    if err != nil { return err }
    return tx.Commit()
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, runID, status string) ([]map[string]any, error) {
    q := `SELECT id::text, COALESCE(run_id::text,''), event_type, status, attempts, next_attempt_at, COALESCE(last_error,''), url, COALESCE(response_code,0) FROM webhook_deliveries`
    var where []string
    var args []any
    if runID != "" {
        args = append(args, runID)
        where = append(where, fmt.Sprintf("run_id::text = $%d", len(args)))
    }
    if status != "" {
        args = append(args, status)
        where = append(where, fmt.Sprintf("status = $%d", len(args)))
    }
    if len(where) > 0 { q += ` WHERE ` + strings.Join(where, " AND ") }
    q += ` ORDER BY created_at LIMIT 500`
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []map[string]any{}
    for rows.Next() {
        var id, run, typ, st, lastErr, url string
        var attempts, code int
        var nextAt sql.NullTime
        if err := rows.Scan(&id, &run, &typ, &st, &attempts, &nextAt, &lastErr, &url, &code); err != nil { return nil, err }
        m := map[string]any{"id": id, "runId": run, "eventType": typ, "status": st, "attempts": attempts, "url": url}
        if nextAt.Valid { m["nextAttemptAt"] = nextAt.Time }
        if lastErr != "" { m["lastError"] = lastErr }
        if code != 0 { m["responseCode"] = code }
        out = append(out, m)
    }
    return out, rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, id string) error {
    if _, err := uuid.Parse(id); err != nil { return ErrNotFound }
    res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now(), updated_at=now() WHERE id=$1`, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) GetSolverConfig(ctx context.Context) (map[string]any, error) {
    row := p.db.QueryRowContext(ctx, `SELECT config FROM solver_config WHERE id=1`)
    var js []byte
    if err := row.Scan(&js); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return nil, nil }
        return nil, err
    }
    var cfg map[string]any
    if err := json.Unmarshal(js, &cfg); err != nil { return nil, err }
    return cfg, nil
}

func (p *Postgres) SaveSolverConfig(ctx context.Context, cfg map[string]any) error {
    _, err := p.db.ExecContext(ctx, `INSERT INTO solver_config (id, config, updated_at) VALUES (1, $1, now())
        ON CONFLICT (id) DO UPDATE SET config=$1, updated_at=now()`, jsonOrNil(cfg))
    return err
}

func computeDedupKey(payload []byte) string {
    // try to parse JSON and use id
    var m map[string]any
    if json.Unmarshal(payload, &m) == nil {
        if v, ok := m["id"].(string); ok && v != "" {
            return v
        }
    }
    sum := sha256.Sum256(payload)
    return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

// jsonOrNil encodes v for a jsonb column; nil maps and slices become NULL.
func jsonOrNil(v any) any {
    switch x := v.(type) {
    case map[string]any:
        if x == nil { return nil }
    case []int:
        if x == nil { return nil }
    }
    b, err := json.Marshal(v)
    if err != nil { return nil }
    return string(b)
}
