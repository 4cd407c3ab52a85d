package opt

import (
	"errors"
	"fmt"
	"sort"

	"wavebatch/internal/model"
)

// ErrInfeasible matches every assignment failure.
var ErrInfeasible = errors.New("demand cannot be supplied")

// ErrOracleTooLarge is returned by AssignExhaustive on instances it refuses to enumerate.
var ErrOracleTooLarge = errors.New("too many aisles for exhaustive assignment")

// maxOracleAisles bounds the subset enumeration in AssignExhaustive.
const maxOracleAisles = 20

// InfeasibleError names the first item whose demand could not be covered.
type InfeasibleError struct {
	Item  int
	Short int
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("item %d short by %d units", e.Item, e.Short)
}

func (e *InfeasibleError) Is(target error) bool { return target == ErrInfeasible }

// Plan is a complete pick plan for one demand.
type Plan struct {
	Assignment Assignment
	Visited    []int
}

type aisleScore struct {
	aisle int
	score int
}

// Assign covers demand from stock greedily. Aisles are visited in descending
// order of how much outstanding demand they could supply (ties by aisle id),
// and each aisle gives every still-short item as much as it holds.
// It returns an *InfeasibleError, never a partial plan, when supply runs out.
func Assign(demand model.Demand, stock model.Stock) (Plan, error) {
	items := demand.Items()
	score := map[int]int{}
	for _, it := range items {
		need := demand[it]
		for a, q := range stock[it] {
			if q > 0 {
				score[a] += min(need, q)
			}
		}
	}
	order := make([]aisleScore, 0, len(score))
	for a, s := range score {
		order = append(order, aisleScore{aisle: a, score: s})
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		return order[i].aisle < order[j].aisle
	})

	remaining := make(map[int]int, len(items))
	for _, it := range items {
		remaining[it] = demand[it]
	}
	plan := Plan{Assignment: Assignment{}}
	for _, as := range order {
		used := false
		for _, it := range items {
			need := remaining[it]
			if need == 0 {
				continue
			}
			q := stock[it][as.aisle]
			if q <= 0 {
				continue
			}
			take := min(need, q)
			remaining[it] = need - take
			plan.Assignment[it] = append(plan.Assignment[it], Pick{Aisle: as.aisle, Qty: take})
			used = true
		}
		if used {
			plan.Visited = append(plan.Visited, as.aisle)
		}
	}
	for _, it := range items {
		if remaining[it] > 0 {
			return Plan{}, &InfeasibleError{Item: it, Short: remaining[it]}
		}
	}
	sort.Ints(plan.Visited)
	return plan, nil
}

// AssignExhaustive finds a minimum-size aisle set covering demand by trying
// every subset in order of increasing size, then fills items from the chosen
// aisles in ascending aisle order. Exponential; test oracle only.
func AssignExhaustive(demand model.Demand, stock model.Stock) (Plan, error) {
	items := demand.Items()
	if len(items) == 0 {
		return Plan{Assignment: Assignment{}}, nil
	}
	seen := map[int]struct{}{}
	for _, it := range items {
		for a, q := range stock[it] {
			if q > 0 {
				seen[a] = struct{}{}
			}
		}
	}
	aisles := make([]int, 0, len(seen))
	for a := range seen {
		aisles = append(aisles, a)
	}
	sort.Ints(aisles)
	if len(aisles) > maxOracleAisles {
		return Plan{}, fmt.Errorf("%w: %d candidate aisles", ErrOracleTooLarge, len(aisles))
	}

	covers := func(subset []int) bool {
		for _, it := range items {
			have := 0
			for _, a := range subset {
				have += stock[it][a]
			}
			if have < demand[it] {
				return false
			}
		}
		return true
	}
	for size := 1; size <= len(aisles); size++ {
		idx := make([]int, size)
		for i := range idx {
			idx[i] = i
		}
		for {
			subset := make([]int, size)
			for i, j := range idx {
				subset[i] = aisles[j]
			}
			if covers(subset) {
				return fill(demand, stock, items, subset), nil
			}
			if !nextCombination(idx, len(aisles)) {
				break
			}
		}
	}
	// nothing covers: report the first short item against the full supply
	for _, it := range items {
		if have := stock.Total(it); have < demand[it] {
			return Plan{}, &InfeasibleError{Item: it, Short: demand[it] - have}
		}
	}
	return Plan{}, ErrInfeasible
}

// nextCombination advances idx to the next k-combination of [0,n) in
// lexicographic order and reports whether one exists.
func nextCombination(idx []int, n int) bool {
	k := len(idx)
	i := k - 1
	for i >= 0 && idx[i] == n-k+i {
		i--
	}
	if i < 0 {
		return false
	}
	idx[i]++
	for j := i + 1; j < k; j++ {
		idx[j] = idx[j-1] + 1
	}
	return true
}

func fill(demand model.Demand, stock model.Stock, items, aisles []int) Plan {
	plan := Plan{Assignment: Assignment{}}
	used := map[int]bool{}
	for _, it := range items {
		need := demand[it]
		for _, a := range aisles {
			if need == 0 {
				break
			}
			q := stock[it][a]
			if q <= 0 {
				continue
			}
			take := min(need, q)
			need -= take
			plan.Assignment[it] = append(plan.Assignment[it], Pick{Aisle: a, Qty: take})
			used[a] = true
		}
	}
	for _, a := range aisles {
		if used[a] {
			plan.Visited = append(plan.Visited, a)
		}
	}
	return plan
}
