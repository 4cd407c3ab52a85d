package opt

import (
	"context"
	"sort"
	"strconv"
	"strings"
)

// GraspParams tunes the constructive search.
type GraspParams struct {
	Iterations    int
	TopK          int // size of the restricted candidate list
	MaxAisles     int // upper bound on the initial aisle subset
	MaxLocalSteps int // 0 means climb until a local optimum
}

func DefaultGraspParams() GraspParams {
	return GraspParams{Iterations: 100, TopK: 10, MaxAisles: 10}
}

func (p GraspParams) withDefaults() GraspParams {
	d := DefaultGraspParams()
	if p.Iterations <= 0 {
		p.Iterations = d.Iterations
	}
	if p.TopK <= 0 {
		p.TopK = d.TopK
	}
	if p.MaxAisles <= 0 {
		p.MaxAisles = d.MaxAisles
	}
	return p
}

// Grasp samples aisle subsets from the best-stocked aisles, builds the wave
// those aisles can serve and hill-climbs over single-aisle additions and
// removals. It returns the best feasible wave found, or nil. When ctx ends
// it returns the best so far together with ctx.Err().
func Grasp(ctx context.Context, s *Session, p GraspParams) (*Candidate, error) {
	p = p.withDefaults()
	rcl := restrictedList(s, p.TopK)
	if len(rcl) == 0 {
		return nil, nil
	}
	var best *Candidate
	for it := 0; it < p.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return best, err
		}
		if s.stop(it, best) {
			break
		}
		n := 1 + s.Rng.Intn(min(p.MaxAisles, len(rcl)))
		perm := s.Rng.Perm(len(rcl))[:n]
		aisles := make([]int, n)
		for i, j := range perm {
			aisles[i] = rcl[j]
		}
		sort.Ints(aisles)

		cand := s.buildBatch(aisles)
		if cand == nil {
			s.Stats.Discarded++
			s.endIteration(it, best)
			continue
		}
		cand, err := s.localSearch(ctx, aisles, cand, p.MaxLocalSteps)
		if best == nil || cand.Fitness > best.Fitness {
			best = cand.Clone()
			s.improved(AlgorithmGrasp, it, best)
		}
		s.endIteration(it, best)
		if err != nil {
			return best, err
		}
	}
	return best, nil
}

// restrictedList ranks stocked aisles by total stock, ties by id, and keeps the top k.
func restrictedList(s *Session, k int) []int {
	totals := s.Inst.AisleTotals()
	ranked := append([]int(nil), s.Inst.StockedAisles()...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return totals[ranked[i]] > totals[ranked[j]]
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// buildBatch admits orders in input order while the selected aisles can
// still cover them, then assigns the wave from those aisles only. It returns
// nil when the wave breaks the capacity bounds or cannot be assigned.
func (s *Session) buildBatch(aisles []int) *Candidate {
	key := aisleKey(aisles)
	if c, ok := s.builds[key]; ok {
		return c
	}
	c := s.build(aisles)
	s.builds[key] = c
	return c
}

func (s *Session) build(aisles []int) *Candidate {
	view := s.Inst.Stock.Restrict(aisles)
	avail := make(map[int]int, len(view))
	for it := range view {
		avail[it] = view.Total(it)
	}
	sel := make(Selection, len(s.Inst.Orders))
	total := 0
	for i, o := range s.Inst.Orders {
		fits := true
		for _, iq := range o.Items {
			if avail[iq.Item] < iq.Qty {
				fits = false
				break
			}
		}
		if !fits {
			continue
		}
		sel[i] = true
		total += o.Units
		for _, iq := range o.Items {
			avail[iq.Item] -= iq.Qty
		}
	}
	if !s.Inst.Bounds.Contains(total) {
		return nil
	}
	plan, err := Assign(s.Inst.Demand(sel), view)
	if err != nil {
		return nil
	}
	c := &Candidate{Orders: sel, Assignment: plan.Assignment}
	if s.evaluate(c) < 0 {
		return nil
	}
	return c
}

func (s *Session) localSearch(ctx context.Context, aisles []int, cur *Candidate, maxSteps int) (*Candidate, error) {
	for step := 0; maxSteps <= 0 || step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return cur, err
		}
		next, nextAisles := s.firstImprovement(aisles, cur)
		if next == nil {
			return cur, nil
		}
		cur, aisles = next, nextAisles
	}
	return cur, nil
}

// firstImprovement scans additions in ascending aisle order, then removals,
// and returns the first neighbor whose wave beats cur.
func (s *Session) firstImprovement(aisles []int, cur *Candidate) (*Candidate, []int) {
	in := make(map[int]bool, len(aisles))
	for _, a := range aisles {
		in[a] = true
	}
	for _, a := range s.Inst.StockedAisles() {
		if in[a] {
			continue
		}
		nb := append(append(make([]int, 0, len(aisles)+1), aisles...), a)
		sort.Ints(nb)
		if c := s.buildBatch(nb); c != nil && c.Fitness > cur.Fitness {
			return c, nb
		}
	}
	if len(aisles) < 2 {
		return nil, nil
	}
	for i := range aisles {
		nb := append(append(make([]int, 0, len(aisles)-1), aisles[:i]...), aisles[i+1:]...)
		if c := s.buildBatch(nb); c != nil && c.Fitness > cur.Fitness {
			return c, nb
		}
	}
	return nil, nil
}

func aisleKey(aisles []int) string {
	var b strings.Builder
	for i, a := range aisles {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(a))
	}
	return b.String()
}
