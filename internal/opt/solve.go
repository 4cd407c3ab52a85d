package opt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wavebatch/internal/model"
)

// Algorithms accepted by Solve.
const (
	AlgorithmGrasp       = "grasp"
	AlgorithmPSO         = "pso"
	AlgorithmPSOVelocity = "pso-velocity"
	AlgorithmAll         = "all"
)

var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// Algorithms lists the accepted algorithm names.
func Algorithms() []string {
	return []string{AlgorithmGrasp, AlgorithmPSO, AlgorithmPSOVelocity, AlgorithmAll}
}

// ValidAlgorithm reports whether name is accepted by Solve.
func ValidAlgorithm(name string) bool {
	for _, a := range Algorithms() {
		if a == name {
			return true
		}
	}
	return false
}

type Params struct {
	Algorithm string
	Seed      int64
	Grasp     GraspParams
	PSO       PSOParams
	Hooks     Hooks
}

// DefaultParams runs GRASP with seed 1.
func DefaultParams() Params {
	return Params{
		Algorithm: AlgorithmGrasp,
		Seed:      1,
		Grasp:     DefaultGraspParams(),
		PSO:       DefaultPSOParams(),
	}
}

// Result is the outcome of one Solve call. For AlgorithmAll, Algorithm and
// Stats belong to the search that produced Best.
type Result struct {
	Algorithm string
	Best      *Candidate
	Solution  Solution
	Stats     Stats
	Duration  time.Duration
}

// Solve runs the requested search in a fresh session seeded with p.Seed.
// AlgorithmAll runs GRASP (seed) and PSO (seed+1) in separate sessions and
// keeps the better wave. When ctx ends first, Solve returns the best wave
// found so far together with ctx.Err(). ErrNoFeasibleBatch is returned when
// the search finished without a feasible wave.
func Solve(ctx context.Context, inst *model.Instance, p Params) (Result, error) {
	if p.Algorithm == "" {
		p.Algorithm = AlgorithmGrasp
	}
	if !ValidAlgorithm(p.Algorithm) {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, p.Algorithm)
	}
	start := time.Now()
	var res Result
	var err error
	if p.Algorithm == AlgorithmAll {
		res, err = solveAll(ctx, inst, p)
	} else {
		res, err = solveOne(ctx, inst, p.Algorithm, p.Seed, p)
	}
	res.Duration = time.Since(start)
	if res.Best != nil {
		res.Solution, _ = Emit(res.Best)
	}
	if err != nil {
		return res, err
	}
	if res.Best == nil {
		return res, ErrNoFeasibleBatch
	}
	return res, nil
}

func solveOne(ctx context.Context, inst *model.Instance, algorithm string, seed int64, p Params) (Result, error) {
	s := NewSession(inst, seed)
	s.Hooks = p.Hooks
	var best *Candidate
	var err error
	switch algorithm {
	case AlgorithmGrasp:
		best, err = Grasp(ctx, s, p.Grasp)
	case AlgorithmPSO:
		pp := p.PSO
		pp.Variant = VariantMutation
		best, err = PSO(ctx, s, pp)
	case AlgorithmPSOVelocity:
		pp := p.PSO
		pp.Variant = VariantVelocity
		best, err = PSO(ctx, s, pp)
	}
	if best != nil && !best.Feasible() {
		best = nil
	}
	return Result{Algorithm: algorithm, Best: best, Stats: s.Stats}, err
}

func solveAll(ctx context.Context, inst *model.Instance, p Params) (Result, error) {
	grasp, err := solveOne(ctx, inst, AlgorithmGrasp, p.Seed, p)
	if err != nil {
		return grasp, err
	}
	pso, err := solveOne(ctx, inst, AlgorithmPSO, p.Seed+1, p)
	if pso.Best != nil && (grasp.Best == nil || pso.Best.Fitness > grasp.Best.Fitness) {
		return pso, err
	}
	return grasp, err
}
