package opt

import (
	"wavebatch/internal/model"
)

// Infeasible is the fitness of every rejected candidate. Feasible
// efficiencies are never negative, so it loses every comparison.
const Infeasible = -1.0

// Reason tags why a candidate was rejected.
type Reason string

const (
	ReasonOK                Reason = "ok"
	ReasonEmptyBatch        Reason = "empty_batch"
	ReasonCapacityViolation Reason = "capacity_violation"
	ReasonMissingAssignment Reason = "missing_assignment"
	ReasonSupplyShortfall   Reason = "supply_shortfall"
	ReasonOverAssignment    Reason = "over_assignment"
)

type evaluation struct {
	fitness float64
	total   int
	visited []int
	asg     Assignment
}

// Evaluator scores candidates against one instance and memoizes the result
// by fingerprint. It is not safe for concurrent use.
type Evaluator struct {
	inst  *model.Instance
	cache map[string]evaluation

	evaluations int
	hits        int
}

func NewEvaluator(inst *model.Instance) *Evaluator {
	return &Evaluator{inst: inst, cache: map[string]evaluation{}}
}

// Evaluate returns the candidate's efficiency (total units / visited aisles)
// or Infeasible, and fills TotalItems, Visited and Fitness. A candidate
// without an assignment gets one from Assign over the full stock.
func (e *Evaluator) Evaluate(c *Candidate) float64 {
	key := Fingerprint(c.Orders, c.Assignment)
	v, ok := e.cache[key]
	if ok {
		e.hits++
	} else {
		e.evaluations++
		v = e.compute(c.Orders, c.Assignment)
		e.cache[key] = v
	}
	if c.Assignment == nil && v.asg != nil {
		c.Assignment = v.asg.Clone()
	}
	c.TotalItems = v.total
	c.Visited = append([]int(nil), v.visited...)
	c.Fitness = v.fitness
	return v.fitness
}

// Diagnose re-derives the candidate's fitness without touching the cache
// and reports the first rule it breaks.
func (e *Evaluator) Diagnose(c *Candidate) (float64, Reason) {
	if c.Assignment == nil {
		v, reason := e.derive(c.Orders)
		return v.fitness, reason
	}
	v, reason := e.check(c.Orders, c.Assignment)
	return v.fitness, reason
}

// Evaluations counts cache misses, Hits counts cache hits.
func (e *Evaluator) Evaluations() int { return e.evaluations }
func (e *Evaluator) Hits() int        { return e.hits }

// Len returns the number of memoized fingerprints.
func (e *Evaluator) Len() int { return len(e.cache) }

func (e *Evaluator) compute(sel Selection, asg Assignment) evaluation {
	if asg == nil {
		v, _ := e.derive(sel)
		return v
	}
	v, _ := e.check(sel, asg)
	return v
}

func (e *Evaluator) derive(sel Selection) (evaluation, Reason) {
	total := e.inst.Units(sel)
	v := evaluation{fitness: Infeasible, total: total}
	// An empty wave is never emitted, even when minItems is 0.
	if total == 0 {
		return v, ReasonEmptyBatch
	}
	if !e.inst.Bounds.Contains(total) {
		return v, ReasonCapacityViolation
	}
	plan, err := Assign(e.inst.Demand(sel), e.inst.Stock)
	if err != nil {
		return v, ReasonSupplyShortfall
	}
	v.asg = plan.Assignment
	v.visited = plan.Visited
	v.fitness = efficiency(total, len(plan.Visited))
	return v, ReasonOK
}

func (e *Evaluator) check(sel Selection, asg Assignment) (evaluation, Reason) {
	total := e.inst.Units(sel)
	v := evaluation{fitness: Infeasible, total: total}
	if total == 0 {
		return v, ReasonEmptyBatch
	}
	if !e.inst.Bounds.Contains(total) {
		return v, ReasonCapacityViolation
	}
	demand := e.inst.Demand(sel)
	for _, it := range demand.Items() {
		if len(asg[it]) == 0 {
			return v, ReasonMissingAssignment
		}
	}
	for _, it := range asg.Items() {
		for _, p := range asg[it] {
			if p.Qty < 0 || p.Aisle < 0 || p.Aisle >= e.inst.NumAisles || p.Qty > e.inst.StockOf(it, p.Aisle) {
				return v, ReasonSupplyShortfall
			}
		}
	}
	for _, it := range demand.Items() {
		if asg.Supplied(it) < demand[it] {
			return v, ReasonSupplyShortfall
		}
	}
	for _, it := range asg.Items() {
		if asg.Supplied(it) > demand[it] {
			return v, ReasonOverAssignment
		}
	}
	visited := asg.Visited()
	v.visited = visited
	v.fitness = efficiency(total, len(visited))
	return v, ReasonOK
}

func efficiency(total, aisles int) float64 {
	if aisles == 0 {
		return 0
	}
	return float64(total) / float64(aisles)
}
