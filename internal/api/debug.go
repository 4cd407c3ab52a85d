package api

import (
    "encoding/json"
    "net/http"
    "time"

    "wavebatch/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    info := map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "ENVIRONMENT": s.cfg.Environment,
            "PORT": s.cfg.Port,
            "RATE_RPS": s.cfg.RateRPS,
            "RATE_BURST": s.cfg.RateBurst,
            "RUN_WORKERS": s.cfg.RunWorkers,
            "RUN_QUEUE": s.cfg.RunQueue,
            "RUN_TIMEOUT": s.cfg.RunTimeout.String(),
            "WEBHOOK_MAX_ATTEMPTS": s.cfg.WebhookMaxAttempts,
            "HAS_DATABASE_URL": s.cfg.DatabaseURL != "",
            "HAS_REDIS_URL": s.cfg.RedisURL != "",
            "HAS_ADMIN_TOKEN": s.AdminToken != "",
        },
        "solverDefaults": s.Defaults,
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(info)
}
