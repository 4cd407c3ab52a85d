package opt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPSO_FindsBothOrders(t *testing.T) {
	inst := twoOrdersOneAisle(t)
	s := NewSession(inst, 11)
	best, err := PSO(context.Background(), s, PSOParams{Particles: 20, Iterations: 40})
	require.NoError(t, err)
	require.NotNil(t, best)
	require.Equal(t, 5.0, best.Fitness)
	require.Equal(t, []int{0, 1}, best.Orders.Indices())
	require.Equal(t, []Pick{{Aisle: 0, Qty: 5}}, best.Assignment[1])
	// only three distinct states exist, so most moves repeat one
	require.Positive(t, s.Stats.TabuSkips)
}

func TestPSO_HistoryNeverDecreases(t *testing.T) {
	for _, variant := range []string{VariantMutation, VariantVelocity} {
		for seed := int64(1); seed <= 6; seed++ {
			inst := randomInstance(t, seed, 30, 10, 8)
			s := NewSession(inst, seed)
			_, err := PSO(context.Background(), s, PSOParams{Particles: 30, Iterations: 15, Variant: variant})
			require.NoError(t, err)
			require.Len(t, s.Stats.History, s.Stats.Iterations)
			for i := 1; i < len(s.Stats.History); i++ {
				require.GreaterOrEqual(t, s.Stats.History[i], s.Stats.History[i-1], "%s seed %d iter %d", variant, seed, i)
			}
		}
	}
}

func TestPSO_WavesAreFeasible(t *testing.T) {
	for _, variant := range []string{VariantMutation, VariantVelocity} {
		for seed := int64(1); seed <= 8; seed++ {
			inst := randomInstance(t, seed+100, 25, 10, 8)
			s := NewSession(inst, seed)
			best, err := PSO(context.Background(), s, PSOParams{Particles: 25, Iterations: 10, MutationRate: 0.3, Variant: variant})
			require.NoError(t, err)
			if best != nil {
				requireValidWave(t, inst, best)
			}
		}
	}
}

func TestPSO_SameSeedSameWave(t *testing.T) {
	inst := randomInstance(t, 21, 40, 12, 10)
	for _, variant := range []string{VariantMutation, VariantVelocity} {
		run := func() (*Candidate, Stats) {
			s := NewSession(inst, 5)
			best, err := PSO(context.Background(), s, PSOParams{Particles: 40, Iterations: 12, Variant: variant})
			require.NoError(t, err)
			return best, s.Stats
		}
		b1, st1 := run()
		b2, st2 := run()
		require.Equal(t, b1, b2)
		require.Equal(t, st1, st2)
	}
}

func TestPSO_ShouldStopEndsEarly(t *testing.T) {
	inst := randomInstance(t, 2, 20, 8, 6)
	s := NewSession(inst, 3)
	s.Hooks.ShouldStop = func(iter int, _ *Candidate) bool { return iter >= 3 }
	_, err := PSO(context.Background(), s, PSOParams{Particles: 10, Iterations: 40})
	require.NoError(t, err)
	require.Equal(t, 3, s.Stats.Iterations)
}

func TestPSO_CanceledContextKeepsBestSoFar(t *testing.T) {
	inst := twoOrdersOneAisle(t)
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSession(inst, 1)
	s.Hooks.ShouldStop = func(iter int, _ *Candidate) bool {
		if iter == 2 {
			cancel()
		}
		return false
	}
	best, err := PSO(ctx, s, PSOParams{Particles: 5, Iterations: 10})
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, best.Feasible())
	require.Equal(t, 3, s.Stats.Iterations)
}

func TestMutateAssignment_PrefersVisitedAisles(t *testing.T) {
	// item 0 is stocked everywhere; the only visited aisle is 2
	inst := mustInstance(t,
		[]map[int]int{{0: 1, 1: 1}},
		[]map[int]int{{0: 5}, {0: 5}, {0: 5, 1: 5}, {0: 5}},
		2, 1, 10)
	s := NewSession(inst, 1)
	prev := Assignment{0: {{Aisle: 2, Qty: 1}}, 1: {{Aisle: 2, Qty: 1}}}
	for i := 0; i < 50; i++ {
		asg := s.mutateAssignment(prev, SelectionOf(1, 0), 1)
		require.Equal(t, prev, asg)
	}
}

func TestMutateAssignment_SyncsToDemand(t *testing.T) {
	inst := mustInstance(t,
		[]map[int]int{{0: 2}, {1: 3}, {0: 4}},
		[]map[int]int{{0: 3, 1: 1}, {0: 4, 1: 4}},
		2, 1, 20)
	s := NewSession(inst, 1)
	prev := Assignment{0: {{Aisle: 0, Qty: 2}}}
	asg := s.mutateAssignment(prev, SelectionOf(3, 1, 2), 0)
	require.Equal(t, 4, asg.Supplied(0))
	require.Equal(t, 3, asg.Supplied(1))
	// refit keeps aisle 0 first and tops up from aisle 1
	require.Equal(t, []Pick{{Aisle: 0, Qty: 3}, {Aisle: 1, Qty: 1}}, asg[0])
	for it, picks := range asg {
		for _, p := range picks {
			require.LessOrEqual(t, p.Qty, inst.StockOf(it, p.Aisle))
		}
	}
}
