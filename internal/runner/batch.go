package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"wavebatch/internal/config"
	"wavebatch/internal/model"
	"wavebatch/internal/opt"
)

// Batch outcomes.
const (
	OutcomeSolved  = "solved"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

type BatchOptions struct {
	Instances  []string // instance file paths
	Algorithms []string
	OutDir     string
	Timeout    time.Duration // per (instance, algorithm) pair
	Parallel   int
	Defaults   config.SolverDefaults
}

type BatchResult struct {
	Instance   string
	Algorithm  string
	Path       string
	Outcome    string
	Efficiency float64
	Duration   time.Duration
	Err        error
}

// OutputName is the file a batch pair writes into OutDir.
func OutputName(algorithm, instancePath string) string {
	base := filepath.Base(instancePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("algorithm_%s_%s.txt", algorithm, base)
}

// RunBatch solves every (instance, algorithm) pair, at most Parallel at a
// time. Each pair writes its solution, "Timeout", or "Error: <message>".
// Only failures to write an output file abort the batch.
func RunBatch(ctx context.Context, o BatchOptions) ([]BatchResult, error) {
	for _, a := range o.Algorithms {
		if !opt.ValidAlgorithm(a) {
			return nil, fmt.Errorf("%w: %q", opt.ErrUnknownAlgorithm, a)
		}
	}
	if err := os.MkdirAll(o.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if o.Parallel <= 0 {
		o.Parallel = 1
	}
	results := make([]BatchResult, len(o.Instances)*len(o.Algorithms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Parallel)
	for i, path := range o.Instances {
		for j, algo := range o.Algorithms {
			slot := i*len(o.Algorithms) + j
			path, algo := path, algo
			g.Go(func() error {
				res := solvePair(gctx, o, path, algo)
				results[slot] = res
				return writeOutcome(res)
			})
		}
	}
	err := g.Wait()
	return results, err
}

func solvePair(ctx context.Context, o BatchOptions, path, algo string) (res BatchResult) {
	res = BatchResult{Instance: path, Algorithm: algo, Path: filepath.Join(o.OutDir, OutputName(algo, path))}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	inst, err := model.LoadInstance(path)
	if err != nil {
		res.Outcome, res.Err = OutcomeError, err
		return res
	}
	p := o.Defaults.Params()
	p.Algorithm = algo
	sctx := ctx
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	out, err := opt.Solve(sctx, inst, p)
	switch {
	case err == nil:
		res.Outcome = OutcomeSolved
		res.Efficiency = out.Best.Fitness
		if werr := writeText(res.Path, opt.FormatSolution(out.Solution)); werr != nil {
			res.Outcome, res.Err = OutcomeError, werr
		}
	case errors.Is(err, context.DeadlineExceeded):
		res.Outcome, res.Err = OutcomeTimeout, err
	default:
		res.Outcome, res.Err = OutcomeError, err
	}
	log.Info().Str("instance", path).Str("algorithm", algo).Str("outcome", res.Outcome).Float64("efficiency", res.Efficiency).Msg("batch pair done")
	return res
}

func writeOutcome(res BatchResult) error {
	switch res.Outcome {
	case OutcomeSolved:
		return nil
	case OutcomeTimeout:
		return writeText(res.Path, "Timeout")
	default:
		return writeText(res.Path, "Error: "+res.Err.Error())
	}
}

func writeText(path, text string) error {
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
