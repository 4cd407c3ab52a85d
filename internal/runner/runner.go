// Package runner executes solve runs: a bounded worker pool for the API and a
// batch driver for experiment sweeps.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"wavebatch/internal/config"
	"wavebatch/internal/events"
	"wavebatch/internal/metrics"
	"wavebatch/internal/model"
	"wavebatch/internal/opt"
	"wavebatch/internal/store"
	"wavebatch/internal/webhooks"
)

var (
	ErrQueueFull = errors.New("run queue full")
	ErrStopped   = errors.New("runner stopped")
)

type Options struct {
	Workers    int
	Queue      int
	MaxTimeout time.Duration // cap and default for per-run timeouts
}

// Runner owns the run queue. Each run gets its own instance copy and search
// session, so workers never share mutable search state.
type Runner struct {
	Store     store.Store
	Broker    events.Broker
	Publisher *webhooks.Publisher

	opts    Options
	queue   chan string
	mu      sync.Mutex
	stopped bool
}

func New(st store.Store, broker events.Broker, pub *webhooks.Publisher, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Queue <= 0 {
		opts.Queue = 64
	}
	if opts.MaxTimeout <= 0 {
		opts.MaxTimeout = 5 * time.Minute
	}
	if broker == nil {
		broker = events.NewMemory()
	}
	return &Runner{Store: st, Broker: broker, Publisher: pub, opts: opts, queue: make(chan string, opts.Queue)}
}

// Submit queues a stored run for execution without blocking.
func (r *Runner) Submit(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	select {
	case r.queue <- runID:
		metrics.RunQueueDepth.Set(float64(len(r.queue)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is done and every in-flight run
// has been recorded.
func (r *Runner) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-r.queue:
					metrics.RunQueueDepth.Set(float64(len(r.queue)))
					if ctx.Err() != nil {
						r.cancelRun(ctx, id)
						return
					}
					if _, err := r.Execute(ctx, id); err != nil {
						log.Error().Err(err).Str("run_id", id).Int("worker", worker).Msg("run execution failed")
					}
				}
			}
		}(i)
	}
	<-ctx.Done()
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	wg.Wait()
	r.cancelQueued(ctx)
	return nil
}

func (r *Runner) cancelRun(ctx context.Context, id string) {
	run, err := r.Store.GetRun(context.WithoutCancel(ctx), id)
	if err != nil || run.Finished() {
		return
	}
	if err := r.finish(ctx, &run, model.RunCanceled, ErrStopped); err != nil {
		log.Error().Err(err).Str("run_id", id).Msg("cancel queued run")
	}
}

// cancelQueued records every run still waiting in the queue as canceled.
// Submit refuses new runs once stopped is set, so the drain is final.
func (r *Runner) cancelQueued(ctx context.Context) {
	for {
		select {
		case id := <-r.queue:
			r.cancelRun(ctx, id)
		default:
			metrics.RunQueueDepth.Set(0)
			return
		}
	}
}

// Execute runs one stored run to a terminal status and returns the final record.
// The returned error covers store failures only; search outcomes are recorded
// on the run itself.
func (r *Runner) Execute(ctx context.Context, runID string) (model.Run, error) {
	run, err := r.Store.GetRun(ctx, runID)
	if err != nil {
		return model.Run{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	if run.Finished() {
		return run, nil
	}
	rec, err := r.Store.GetInstance(ctx, run.InstanceID)
	if err != nil {
		ferr := r.finish(ctx, &run, model.RunError, fmt.Errorf("load instance: %w", err))
		return run, ferr
	}
	inst, err := model.ParseInstance(bytes.NewReader(rec.Raw))
	if err != nil {
		ferr := r.finish(ctx, &run, model.RunError, err)
		return run, ferr
	}
	defaults, err := config.DefaultSolver().Overlay(run.Params)
	if err != nil {
		ferr := r.finish(ctx, &run, model.RunError, err)
		return run, ferr
	}

	started := time.Now().UTC()
	run.Status = model.RunRunning
	run.StartedAt = &started
	if err := r.Store.UpdateRun(ctx, run); err != nil {
		return run, fmt.Errorf("mark run %s running: %w", run.ID, err)
	}
	r.Broker.Publish(run.ID, events.Event{Type: events.TypeRunStatus, Data: map[string]any{"runId": run.ID, "status": run.Status}})
	logger := log.With().Str("run_id", run.ID).Str("algorithm", run.Algorithm).Str("instance", rec.ID).Logger()
	logger.Info().Int("orders", rec.NumOrders).Int("aisles", rec.NumAisles).Msg("run started")

	timeout := r.opts.MaxTimeout
	if run.TimeoutMs > 0 && time.Duration(run.TimeoutMs)*time.Millisecond < timeout {
		timeout = time.Duration(run.TimeoutMs) * time.Millisecond
	}
	solveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := defaults.Params()
	p.Algorithm = run.Algorithm
	p.Seed = run.Seed
	p.Hooks.OnCheckpoint = func(cp opt.Checkpoint) {
		mcp := model.Checkpoint{
			RunID: run.ID, Algorithm: cp.Algorithm, Iteration: cp.Iteration, Efficiency: cp.Fitness,
			TotalItems: cp.TotalItems, Orders: cp.Orders, Aisles: cp.Aisles, At: cp.At,
		}
		if err := r.Store.AppendCheckpoint(ctx, mcp); err != nil {
			logger.Warn().Err(err).Msg("append checkpoint")
		}
		r.Broker.Publish(run.ID, events.Event{Type: events.TypeRunCheckpoint, Data: map[string]any{
			"runId": run.ID, "algorithm": cp.Algorithm, "iteration": cp.Iteration,
			"efficiency": cp.Fitness, "totalItems": cp.TotalItems, "orders": cp.Orders, "aisles": cp.Aisles,
		}})
	}

	res, err := opt.Solve(solveCtx, inst, p)
	run.Stats = statsMap(res)
	if res.Best != nil {
		run.Efficiency = res.Best.Fitness
		run.TotalItems = res.Best.TotalItems
		run.Orders = res.Solution.Orders
		run.Aisles = res.Solution.Aisles
	}
	status := model.RunCompleted
	switch {
	case err == nil:
		if serr := r.Store.SaveSolution(ctx, run.ID, []byte(opt.FormatSolution(res.Solution))); serr != nil {
			return run, fmt.Errorf("save solution for run %s: %w", run.ID, serr)
		}
	case errors.Is(err, opt.ErrNoFeasibleBatch):
		status = model.RunNoSolution
	case errors.Is(err, context.DeadlineExceeded):
		status = model.RunTimeout
	case errors.Is(err, context.Canceled):
		status = model.RunCanceled
	default:
		status = model.RunError
	}
	metrics.ObserveRun(run.Algorithm, status, res.Duration.Seconds(), res.Stats.Evaluations, res.Stats.CacheHits, run.Efficiency)
	logger.Info().Str("status", status).Float64("efficiency", run.Efficiency).Dur("took", res.Duration).Int("evaluations", res.Stats.Evaluations).Msg("run finished")
	ferr := r.finish(ctx, &run, status, err)
	return run, ferr
}

// finish records the terminal status, notifies streams and queues the callback.
func (r *Runner) finish(ctx context.Context, run *model.Run, status string, cause error) error {
	// the search may have ended because ctx did; the record must still land
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()
	run.Status = status
	run.FinishedAt = &now
	if cause != nil {
		run.Error = cause.Error()
	}
	if err := r.Store.UpdateRun(ctx, *run); err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	r.Broker.Publish(run.ID, events.Event{Type: events.TypeRunFinished, Data: map[string]any{
		"runId": run.ID, "status": run.Status, "efficiency": run.Efficiency, "error": run.Error,
	}})
	if r.Publisher != nil {
		if _, err := r.Publisher.RunFinished(ctx, *run); err != nil {
			log.Warn().Err(err).Str("run_id", run.ID).Msg("enqueue run callback")
		}
	}
	return nil
}

func statsMap(res opt.Result) map[string]any {
	st := res.Stats
	return map[string]any{
		"algorithm":    res.Algorithm,
		"iterations":   st.Iterations,
		"evaluations":  st.Evaluations,
		"cacheHits":    st.CacheHits,
		"tabuSkips":    st.TabuSkips,
		"improvements": st.Improvements,
		"discarded":    st.Discarded,
		"durationMs":   res.Duration.Milliseconds(),
	}
}
