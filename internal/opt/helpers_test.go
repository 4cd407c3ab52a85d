package opt

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"wavebatch/internal/model"
)

func mustInstance(t *testing.T, orders, aisles []map[int]int, numItems, lb, ub int) *model.Instance {
	t.Helper()
	inst, err := model.NewInstance(orders, aisles, numItems, lb, ub)
	require.NoError(t, err)
	return inst
}

// twoOrdersOneAisle: order 0 wants 3 of item 1, order 1 wants 2, aisle 0 holds 10.
func twoOrdersOneAisle(t *testing.T) *model.Instance {
	return mustInstance(t,
		[]map[int]int{{1: 3}, {1: 2}},
		[]map[int]int{{1: 10}},
		2, 1, 10)
}

// randomInstance builds a small warehouse where every item is stocked in at
// least one aisle and the bounds admit a few orders at a time.
func randomInstance(t *testing.T, seed int64, numOrders, numItems, numAisles int) *model.Instance {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	orders := make([]map[int]int, numOrders)
	units := 0
	for i := range orders {
		orders[i] = map[int]int{}
		for k := 1 + rng.Intn(3); k > 0; k-- {
			q := 1 + rng.Intn(3)
			orders[i][rng.Intn(numItems)] = q
		}
		for _, q := range orders[i] {
			units += q
		}
	}
	aisles := make([]map[int]int, numAisles)
	for a := range aisles {
		aisles[a] = map[int]int{}
	}
	for it := 0; it < numItems; it++ {
		aisles[rng.Intn(numAisles)][it] = 2 + rng.Intn(6)
		for a := range aisles {
			if rng.Float64() < 0.25 {
				aisles[a][it] += 1 + rng.Intn(4)
			}
		}
	}
	ub := units / 3
	if ub < 4 {
		ub = 4
	}
	return mustInstance(t, orders, aisles, numItems, 2, ub)
}

// requireValidWave checks every rule an emitted wave must satisfy.
func requireValidWave(t *testing.T, inst *model.Instance, c *Candidate) {
	t.Helper()
	require.NotNil(t, c)
	demand := inst.Demand(c.Orders)
	total := demand.Total()
	require.Equal(t, total, c.TotalItems)
	require.True(t, inst.Bounds.Contains(total), "total %d outside %v", total, inst.Bounds)
	for _, it := range demand.Items() {
		require.GreaterOrEqual(t, c.Assignment.Supplied(it), demand[it], "item %d short", it)
	}
	for it, picks := range c.Assignment {
		for _, p := range picks {
			require.LessOrEqual(t, p.Qty, inst.StockOf(it, p.Aisle), "item %d aisle %d", it, p.Aisle)
		}
	}
	require.Equal(t, c.Assignment.Visited(), c.Visited)
	if total > 0 {
		require.NotEmpty(t, c.Visited)
	}
	f, reason := NewEvaluator(inst).Diagnose(c)
	require.Equal(t, ReasonOK, reason)
	require.Equal(t, c.Fitness, f)
}
