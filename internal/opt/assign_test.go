package opt

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"wavebatch/internal/model"
)

func TestAssign_SingleAisleCoversBothOrders(t *testing.T) {
	plan, err := Assign(model.Demand{1: 5}, model.Stock{1: {0: 10}})
	require.NoError(t, err)
	require.Equal(t, []int{0}, plan.Visited)
	require.Equal(t, []Pick{{Aisle: 0, Qty: 5}}, plan.Assignment[1])
}

func TestAssign_ZeroStockIsInfeasible(t *testing.T) {
	stock := model.Stock{1: {0: 10}}
	_, err := Assign(model.Demand{1: 2, 2: 1}, stock)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInfeasible))
	var ie *InfeasibleError
	require.True(t, errors.As(err, &ie))
	require.Equal(t, 2, ie.Item)
	require.Equal(t, 1, ie.Short)
}

func TestAssign_ShortSupplyNeverPartial(t *testing.T) {
	plan, err := Assign(model.Demand{0: 9}, model.Stock{0: {0: 4, 1: 4}})
	require.ErrorIs(t, err, ErrInfeasible)
	require.Nil(t, plan.Assignment)
	require.Nil(t, plan.Visited)
}

func TestAssign_VisitsHighestScoringAisleFirst(t *testing.T) {
	stock := model.Stock{
		0: {0: 1, 1: 5},
		1: {1: 3, 2: 3},
	}
	plan, err := Assign(model.Demand{0: 2, 1: 3}, stock)
	require.NoError(t, err)
	require.Equal(t, []int{1}, plan.Visited)
	require.Equal(t, []Pick{{Aisle: 1, Qty: 2}}, plan.Assignment[0])
	require.Equal(t, []Pick{{Aisle: 1, Qty: 3}}, plan.Assignment[1])
}

func TestAssign_SplitsDemandOnTies(t *testing.T) {
	plan, err := Assign(model.Demand{0: 7}, model.Stock{0: {1: 4, 0: 4}})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, plan.Visited)
	require.Equal(t, []Pick{{Aisle: 0, Qty: 4}, {Aisle: 1, Qty: 3}}, plan.Assignment[0])
}

func TestAssign_EmptyDemand(t *testing.T) {
	plan, err := Assign(model.Demand{}, model.Stock{0: {0: 1}})
	require.NoError(t, err)
	require.Empty(t, plan.Assignment)
	require.Empty(t, plan.Visited)
}

func TestAssign_ExactFitOneAislePerItem(t *testing.T) {
	// item i lives only in aisle i/2, with exactly the demanded quantity
	stock := model.Stock{}
	demand := model.Demand{}
	for it := 0; it < 6; it++ {
		stock[it] = map[int]int{it / 2: it + 1}
		demand[it] = it + 1
	}
	plan, err := Assign(demand, stock)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, plan.Visited)
	for it := 0; it < 6; it++ {
		require.Equal(t, []Pick{{Aisle: it / 2, Qty: it + 1}}, plan.Assignment[it])
	}

	exact, err := AssignExhaustive(demand, stock)
	require.NoError(t, err)
	require.Equal(t, len(exact.Visited), len(plan.Visited))
}

func TestAssign_SoundOverRandomDemands(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		inst := randomInstance(t, seed, 30, 12, 8)
		rng := rand.New(rand.NewSource(seed))
		for trial := 0; trial < 25; trial++ {
			sel := make(Selection, len(inst.Orders))
			for i := range sel {
				sel[i] = rng.Float64() < 0.3
			}
			demand := inst.Demand(sel)
			plan, err := Assign(demand, inst.Stock)
			if err != nil {
				require.ErrorIs(t, err, ErrInfeasible)
				continue
			}
			for it, picks := range plan.Assignment {
				for _, p := range picks {
					require.Positive(t, p.Qty)
					require.LessOrEqual(t, p.Qty, inst.StockOf(it, p.Aisle))
				}
				require.Equal(t, demand[it], plan.Assignment.Supplied(it))
			}
			require.Equal(t, plan.Assignment.Visited(), plan.Visited)
		}
	}
}

func TestAssignExhaustive_AgreesWithGreedyOnFeasibility(t *testing.T) {
	for seed := int64(1); seed <= 15; seed++ {
		inst := randomInstance(t, seed, 12, 6, 6)
		rng := rand.New(rand.NewSource(seed * 7))
		for trial := 0; trial < 10; trial++ {
			sel := make(Selection, len(inst.Orders))
			for i := range sel {
				sel[i] = rng.Float64() < 0.4
			}
			demand := inst.Demand(sel)
			greedy, gerr := Assign(demand, inst.Stock)
			exact, eerr := AssignExhaustive(demand, inst.Stock)
			if gerr != nil {
				require.ErrorIs(t, eerr, ErrInfeasible)
				continue
			}
			require.NoError(t, eerr)
			require.LessOrEqual(t, len(exact.Visited), len(greedy.Visited))
			for it := range demand {
				require.Equal(t, demand[it], exact.Assignment.Supplied(it))
			}
		}
	}
}

func TestAssignExhaustive_RefusesLargeInstances(t *testing.T) {
	byAisle := map[int]int{}
	for a := 0; a <= maxOracleAisles; a++ {
		byAisle[a] = 1
	}
	_, err := AssignExhaustive(model.Demand{0: 1}, model.Stock{0: byAisle})
	require.ErrorIs(t, err, ErrOracleTooLarge)
}

func TestNextCombination(t *testing.T) {
	idx := []int{0, 1}
	var got [][]int
	for {
		got = append(got, append([]int(nil), idx...))
		if !nextCombination(idx, 4) {
			break
		}
	}
	require.Equal(t, [][]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}, got)
}
