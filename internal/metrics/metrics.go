package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the service
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, route, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "wavebatch_http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "wavebatch_http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // WebhookDeliveries counts run callback outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "wavebatch_webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "wavebatch_webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )

    // SolverRuns counts finished runs by algorithm and terminal status
    SolverRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "wavebatch_solver_runs_total", Help: "Solver runs by algorithm and status."},
        []string{"algorithm", "status"},
    )
    // SolverDuration records wall time per run in seconds
    SolverDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "wavebatch_solver_run_duration_seconds", Help: "Solver run duration in seconds.", Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300}},
        []string{"algorithm"},
    )
    // SolverEvaluations counts candidate evaluations, split by cache outcome
    SolverEvaluations = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "wavebatch_solver_evaluations_total", Help: "Candidate evaluations by cache outcome."},
        []string{"algorithm", "cache"},
    )
    // BestEfficiency is the efficiency of the last completed run per algorithm
    BestEfficiency = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{Name: "wavebatch_solver_best_efficiency", Help: "Efficiency of the last completed run."},
        []string{"algorithm"},
    )
    // RunQueueDepth is the number of runs waiting for a worker
    RunQueueDepth = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "wavebatch_run_queue_depth", Help: "Runs queued for execution."},
    )
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(WebhookDeliveries)
        Registry.MustRegister(WebhookLatency)
        Registry.MustRegister(SolverRuns)
        Registry.MustRegister(SolverDuration)
        Registry.MustRegister(SolverEvaluations)
        Registry.MustRegister(BestEfficiency)
        Registry.MustRegister(RunQueueDepth)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

// ObserveRun records the outcome of one finished run.
func ObserveRun(algorithm, status string, seconds float64, evaluations, hits int, efficiency float64) {
    SolverRuns.WithLabelValues(algorithm, status).Inc()
    SolverDuration.WithLabelValues(algorithm).Observe(seconds)
    SolverEvaluations.WithLabelValues(algorithm, "miss").Add(float64(evaluations - hits))
    SolverEvaluations.WithLabelValues(algorithm, "hit").Add(float64(hits))
    if efficiency > 0 {
        BestEfficiency.WithLabelValues(algorithm).Set(efficiency)
    }
}

var regOnce sync.Once
