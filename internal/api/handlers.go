package api

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "wavebatch/internal/config"
    "wavebatch/internal/model"
    "wavebatch/internal/opt"
    "wavebatch/internal/runner"
)

const maxInstanceBytes = 64 << 20

// InstancesHandler handles POST/GET /v1/instances
func (s *Server) InstancesHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInstanceBytes))
        if err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid body", err.Error(), r.URL.Path)
            return
        }
        rec, err := s.storeInstance(r.Context(), r.URL.Query().Get("name"), raw)
        if err != nil {
            writeError(w, r, "Invalid instance", err)
            return
        }
        writeJSON(w, http.StatusCreated, rec)
    case http.MethodGet:
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListInstances(r.Context(), cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List instances failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// InstanceByIDHandler handles GET /v1/instances/{id}
func (s *Server) InstanceByIDHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    id := strings.TrimPrefix(r.URL.Path, "/v1/instances/")
    if id == "" || strings.Contains(id, "/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    rec, err := s.Store.GetInstance(r.Context(), id)
    if err != nil { writeError(w, r, "Get instance failed", err); return }
    writeJSON(w, http.StatusOK, rec)
}

// storeInstance parses raw and persists it with its summary.
func (s *Server) storeInstance(ctx context.Context, name string, raw []byte) (model.InstanceRecord, error) {
    inst, err := model.ParseInstance(bytes.NewReader(raw))
    if err != nil { return model.InstanceRecord{}, err }
    rec := model.InstanceRecord{Name: name, Raw: raw}
    rec.Summarize(inst)
    return s.Store.CreateInstance(ctx, rec)
}

// SolveHandler handles POST /v1/solve
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req model.SolveRequest
    if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInstanceBytes)).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateSolveRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
        return
    }
    ctx := r.Context()
    instanceID := req.InstanceID
    if req.Instance != "" {
        rec, err := s.storeInstance(ctx, req.Name, []byte(req.Instance))
        if err != nil { writeError(w, r, "Invalid instance", err); return }
        instanceID = rec.ID
    } else if _, err := s.Store.GetInstance(ctx, instanceID); err != nil {
        writeError(w, r, "Unknown instance", err)
        return
    }
    defaults, err := s.effectiveDefaults(ctx)
    if err != nil { writeProblem(w, 500, "Solver config invalid", err.Error(), r.URL.Path); return }
    d := defaults.WithRequest(req)
    if err := d.Validate(); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
        return
    }
    run, err := s.Store.CreateRun(ctx, model.Run{
        InstanceID:     instanceID,
        Algorithm:      d.Algorithm,
        Seed:           d.Seed,
        Params:         d.Map(),
        TimeoutMs:      d.TimeoutMs,
        CallbackURL:    req.CallbackURL,
        CallbackSecret: req.CallbackSecret,
    })
    if err != nil { writeError(w, r, "Create run failed", err); return }

    if req.Wait {
        done, err := s.Runner.Execute(ctx, run.ID)
        if err != nil { writeError(w, r, "Run failed", err); return }
        writeJSON(w, http.StatusOK, done)
        return
    }
    if err := s.Runner.Submit(run.ID); err != nil {
        now := time.Now().UTC()
        run.Status, run.Error, run.FinishedAt = model.RunError, err.Error(), &now
        _ = s.Store.UpdateRun(ctx, run)
        status := http.StatusServiceUnavailable
        if !errors.Is(err, runner.ErrQueueFull) && !errors.Is(err, runner.ErrStopped) { status = 500 }
        writeProblem(w, status, "Run not queued", err.Error(), r.URL.Path)
        return
    }
    w.Header().Set("Location", "/v1/runs/"+run.ID)
    writeJSON(w, http.StatusAccepted, run)
}

// RunsHandler handles GET /v1/runs
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    q := r.URL.Query()
    limit := 100
    if v := q.Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, next, err := s.Store.ListRuns(r.Context(), q.Get("instanceId"), q.Get("status"), q.Get("cursor"), limit)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles GET /v1/runs/{id} and its /solution, /checkpoints,
// /events/stream and /ws subresources
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
    parts := strings.SplitN(rest, "/", 2)
    id := parts[0]
    if id == "" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    sub := ""
    if len(parts) > 1 { sub = parts[1] }
    switch sub {
    case "":
        run, err := s.Store.GetRun(r.Context(), id)
        if err != nil { writeError(w, r, "Get run failed", err); return }
        writeJSON(w, http.StatusOK, run)
    case "solution":
        run, err := s.Store.GetRun(r.Context(), id)
        if err != nil { writeError(w, r, "Get run failed", err); return }
        if run.Status != model.RunCompleted {
            writeProblem(w, http.StatusConflict, "No solution", "run status is "+run.Status, r.URL.Path)
            return
        }
        text, err := s.Store.GetSolution(r.Context(), id)
        if err != nil { writeError(w, r, "Get solution failed", err); return }
        w.Header().Set("Content-Type", "text/plain; charset=utf-8")
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write(text)
    case "checkpoints":
        if _, err := s.Store.GetRun(r.Context(), id); err != nil { writeError(w, r, "Get run failed", err); return }
        cps, err := s.Store.ListCheckpoints(r.Context(), id)
        if err != nil { writeError(w, r, "List checkpoints failed", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": cps})
    case "events/stream":
        s.streamRunEvents(w, r, id)
    case "ws":
        s.runEventsWS(w, r, id)
    default:
        writeProblem(w, 404, "Not Found", "", r.URL.Path)
    }
}

// ValidateHandler handles POST /v1/validate
func (s *Server) ValidateHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req model.ValidateRequest
    if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInstanceBytes)).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateValidateRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid validate request", err.Error(), r.URL.Path)
        return
    }
    raw := []byte(req.Instance)
    if req.InstanceID != "" {
        rec, err := s.Store.GetInstance(r.Context(), req.InstanceID)
        if err != nil { writeError(w, r, "Unknown instance", err); return }
        raw = rec.Raw
    }
    inst, err := model.ParseInstance(bytes.NewReader(raw))
    if err != nil { writeError(w, r, "Invalid instance", err); return }
    sol, err := opt.ParseSolution(strings.NewReader(req.Solution))
    if err != nil { writeError(w, r, "Invalid solution", err); return }
    rep, err := opt.ValidateSolution(inst, sol)
    if err != nil { writeError(w, r, "Invalid solution", err); return }
    writeJSON(w, http.StatusOK, map[string]any{"feasible": rep.Feasible(), "report": rep, "solution": sol})
}

// effectiveDefaults overlays the stored solver config on the file defaults.
func (s *Server) effectiveDefaults(ctx context.Context) (config.SolverDefaults, error) {
    stored, err := s.Store.GetSolverConfig(ctx)
    if err != nil { return s.Defaults, err }
    return s.Defaults.Overlay(stored)
}

// SolverConfigHandler returns the solver defaults applied to new runs
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/solver/config" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    d, err := s.effectiveDefaults(r.Context())
    if err != nil { writeProblem(w, 500, "Solver config invalid", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"defaults": d, "algorithms": opt.Algorithms()})
}

// Admin get/set stored solver config
func (s *Server) AdminSolverConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/solver/config" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if !s.requireAdmin(w, r) { return }
    switch r.Method {
    case http.MethodGet:
        cfg, err := s.Store.GetSolverConfig(r.Context())
        if err != nil { writeProblem(w, 500, "Load failed", err.Error(), r.URL.Path); return }
        if cfg == nil { cfg = map[string]any{} }
        writeJSON(w, 200, map[string]any{"config": cfg})
    case http.MethodPut:
        var body struct{ Config map[string]any `json:"config"` }
        if err := json.NewDecoder(r.Body).Decode(&body); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if body.Config == nil { writeProblem(w, 400, "Missing config", "", r.URL.Path); return }
        if _, err := s.Defaults.Overlay(body.Config); err != nil { writeProblem(w, 400, "Invalid config", err.Error(), r.URL.Path); return }
        if err := s.Store.SaveSolverConfig(r.Context(), body.Config); err != nil { writeProblem(w, 500, "Save failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]bool{"ok": true})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/webhook-deliveries" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if !s.requireAdmin(w, r) { return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    items, err := s.Store.ListWebhookDeliveries(r.Context(), r.URL.Query().Get("runId"), r.URL.Query().Get("status"))
    if err != nil { writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodPost { w.WriteHeader(405); return }
    if !s.requireAdmin(w, r) { return }
    id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
    if err := s.Store.RetryWebhookDelivery(r.Context(), id); err != nil { writeError(w, r, "Retry delivery failed", err); return }
    writeJSON(w, 202, map[string]int{"accepted": 1})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    type pinger interface{ Ping(ctx context.Context) error }
    if b, ok := s.Broker.(pinger); ok {
        if err := b.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}
