package opt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSolve_Algorithms(t *testing.T) {
	inst := twoOrdersOneAisle(t)
	for _, alg := range Algorithms() {
		t.Run(alg, func(t *testing.T) {
			p := DefaultParams()
			p.Algorithm = alg
			p.Grasp.Iterations = 5
			p.PSO.Particles = 20
			res, err := Solve(context.Background(), inst, p)
			require.NoError(t, err)
			require.Equal(t, Solution{Orders: []int{0, 1}, Aisles: []int{0}}, res.Solution)
			require.Equal(t, 5.0, res.Best.Fitness)
			if alg != AlgorithmAll {
				require.Equal(t, alg, res.Algorithm)
			}
		})
	}
}

func TestSolve_UnknownAlgorithm(t *testing.T) {
	_, err := Solve(context.Background(), twoOrdersOneAisle(t), Params{Algorithm: "annealing"})
	require.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestSolve_NoFeasibleBatch(t *testing.T) {
	inst := mustInstance(t,
		[]map[int]int{{0: 2}},
		[]map[int]int{{0: 1}},
		1, 1, 5)
	for _, alg := range Algorithms() {
		p := DefaultParams()
		p.Algorithm = alg
		p.Grasp.Iterations = 4
		p.PSO.Particles = 4
		p.PSO.Iterations = 4
		res, err := Solve(context.Background(), inst, p)
		require.ErrorIs(t, err, ErrNoFeasibleBatch, alg)
		require.Nil(t, res.Best)
		require.Empty(t, res.Solution.Orders)
	}
}

func TestSolve_CanceledReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Solve(ctx, randomInstance(t, 4, 20, 8, 6), DefaultParams())
	require.ErrorIs(t, err, context.Canceled)
}

func TestSolve_DeterministicOutput(t *testing.T) {
	inst := randomInstance(t, 17, 50, 15, 12)
	for _, alg := range Algorithms() {
		p := DefaultParams()
		p.Algorithm = alg
		p.Seed = 42
		p.Grasp.Iterations = 15
		p.PSO.Particles = 30
		p.PSO.Iterations = 8
		r1, err1 := Solve(context.Background(), inst, p)
		r2, err2 := Solve(context.Background(), inst, p)
		require.Equal(t, err1, err2)
		require.Equal(t, FormatSolution(r1.Solution), FormatSolution(r2.Solution), alg)
		require.Equal(t, r1.Stats, r2.Stats)
	}
}

func TestSampleWaves(t *testing.T) {
	inst := twoOrdersOneAisle(t)
	s := NewSession(inst, 3)
	ws, err := SampleWaves(context.Background(), s, 40)
	require.NoError(t, err)
	require.Equal(t, 40, ws.Samples)
	require.Equal(t, ws.InBounds, ws.Feasible)
	require.Len(t, ws.Efficiency, ws.Feasible)
	require.Equal(t, 5.0, ws.Best.Fitness)
	require.InDelta(t, 2.0, ws.Mean, 3.0)
	require.Positive(t, s.Stats.CacheHits)
}
