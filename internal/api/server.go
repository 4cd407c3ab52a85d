package api

import (
    "context"
    "net/http"
    "strings"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/rs/zerolog/log"

    "wavebatch/internal/config"
    "wavebatch/internal/events"
    "wavebatch/internal/metrics"
    "wavebatch/internal/runner"
    "wavebatch/internal/store"
    "wavebatch/internal/webhooks"
)

type Server struct {
    Store      store.Store
    Pub        *webhooks.Publisher
    Broker     events.Broker
    Runner     *runner.Runner
    Defaults   config.SolverDefaults
    Limiter    *RateLimiter
    AdminToken string
    Dev        bool
    Heartbeat  time.Duration // stream keepalive and finish re-check; 0 means 15s

    cfg config.Config
}

// NewServer wires the service from cfg. If DATABASE_URL is unset, uses the in-memory store;
// if REDIS_URL is unset, run events stay in-process.
func NewServer(ctx context.Context, cfg config.Config) (*Server, error) {
    var s store.Store
    if strings.TrimSpace(cfg.DatabaseURL) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil {
            return nil, err
        }
        if cfg.DBMigrate {
            if err := sp.Migrate(ctx); err != nil { return nil, err }
        }
        s = sp
    }
    var broker events.Broker = events.NewMemory()
    if cfg.RedisURL != "" {
        if rb, err := events.NewRedisBroker(cfg.RedisURL); err == nil {
            broker = rb
        } else {
            log.Warn().Err(err).Msg("redis broker unavailable, using in-memory events")
        }
    }
    defaults, err := config.LoadSolverDefaults(cfg.SolverDefaultsFile)
    if err != nil { return nil, err }
    srv := New(s, broker, defaults, cfg)
    return srv, nil
}

// New assembles a Server around already constructed dependencies.
func New(s store.Store, broker events.Broker, defaults config.SolverDefaults, cfg config.Config) *Server {
    pub := webhooks.NewPublisher(s)
    return &Server{
        Store:      s,
        Pub:        pub,
        Broker:     broker,
        Runner:     runner.New(s, broker, pub, runner.Options{Workers: cfg.RunWorkers, Queue: cfg.RunQueue, MaxTimeout: cfg.RunTimeout}),
        Defaults:   defaults,
        Limiter:    NewRateLimiter(cfg.RateRPS, cfg.RateBurst),
        AdminToken: cfg.AdminToken,
        Dev:        cfg.Development(),
        cfg:        cfg,
    }
}

// Routes registers every endpoint and wraps the mux in the middleware chain.
func (s *Server) Routes() http.Handler {
    metrics.RegisterDefault()
    mux := http.NewServeMux()

    // Instances
    mux.HandleFunc("/v1/instances", s.InstancesHandler)
    mux.HandleFunc("/v1/instances/", s.InstanceByIDHandler)

    // Solving
    mux.HandleFunc("/v1/solve", s.SolveHandler)
    mux.HandleFunc("/v1/runs", s.RunsHandler)
    mux.HandleFunc("/v1/runs/", s.RunByIDHandler) // includes /solution, /checkpoints, /events/stream, /ws
    mux.HandleFunc("/v1/validate", s.ValidateHandler)
    mux.HandleFunc("/v1/solver/config", s.SolverConfigHandler)

    // Admin
    mux.HandleFunc("/v1/admin/solver/config", s.AdminSolverConfigHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries/", s.WebhookDeliveryRetryHandler)

    // Health, metrics, docs
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
    mux.HandleFunc("/debug/info", s.DebugJSON)
    mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
    mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)
    mux.HandleFunc("/docs", s.DocsHandler)

    return logMiddleware(s.Limiter.Middleware(mux))
}

// NewWebhookWorker creates a background worker for run callbacks.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store, s.cfg.WebhookMaxAttempts)
}

// Close releases the rate limiter and any Redis or database connections.
func (s *Server) Close() error {
    s.Limiter.Stop()
    type closer interface{ Close() error }
    var err error
    if c, ok := s.Broker.(closer); ok { err = c.Close() }
    if c, ok := s.Store.(closer); ok {
        if cerr := c.Close(); err == nil { err = cerr }
    }
    return err
}
