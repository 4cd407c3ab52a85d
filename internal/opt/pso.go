package opt

import (
	"context"
	"math"
)

// PSO update rules.
const (
	VariantMutation = "mutation"
	VariantVelocity = "velocity"
)

// PSOParams tunes the population search. Inertia, Cognitive, Social and VMax
// only apply to the velocity variant.
type PSOParams struct {
	Particles    int
	Iterations   int
	MutationRate float64
	Variant      string
	Inertia      float64
	Cognitive    float64
	Social       float64
	VMax         float64
}

func DefaultPSOParams() PSOParams {
	return PSOParams{
		Particles:    200,
		Iterations:   40,
		MutationRate: 0.6,
		Variant:      VariantMutation,
		Inertia:      1,
		Cognitive:    2,
		Social:       2,
		VMax:         4,
	}
}

func (p PSOParams) withDefaults() PSOParams {
	d := DefaultPSOParams()
	if p.Particles <= 0 {
		p.Particles = d.Particles
	}
	if p.Iterations <= 0 {
		p.Iterations = d.Iterations
	}
	if p.MutationRate <= 0 || p.MutationRate > 1 {
		p.MutationRate = d.MutationRate
	}
	if p.Variant == "" {
		p.Variant = d.Variant
	}
	if p.Inertia <= 0 {
		p.Inertia = d.Inertia
	}
	if p.Cognitive <= 0 {
		p.Cognitive = d.Cognitive
	}
	if p.Social <= 0 {
		p.Social = d.Social
	}
	if p.VMax <= 0 {
		p.VMax = d.VMax
	}
	return p
}

type particle struct {
	cur      *Candidate
	best     *Candidate
	velocity []float64
}

// PSO evolves a swarm of (selection, assignment) candidates. Each iteration
// perturbs every particle's selection, reassigns part of its picks, skips
// states already seen in the session and keeps personal and global bests.
// The global best only ever holds feasible candidates, so Stats.History is
// non-decreasing. Returns nil when no feasible wave was seen.
func PSO(ctx context.Context, s *Session, p PSOParams) (*Candidate, error) {
	p = p.withDefaults()
	algorithm := AlgorithmPSO
	if p.Variant == VariantVelocity {
		algorithm = AlgorithmPSOVelocity
	}

	var gbest *Candidate
	swarm := make([]*particle, 0, p.Particles)
	for i := 0; i < p.Particles; i++ {
		if err := ctx.Err(); err != nil {
			return gbest, err
		}
		c := s.initialParticle(i == 0)
		if c == nil {
			s.Stats.Discarded++
			continue
		}
		if !s.MarkSeen(c.Key()) {
			s.Stats.TabuSkips++
			continue
		}
		s.evaluate(c)
		pt := &particle{cur: c, best: c.Clone()}
		if p.Variant == VariantVelocity {
			pt.velocity = make([]float64, len(c.Orders))
			for j := range pt.velocity {
				pt.velocity[j] = s.Rng.Float64()*2 - 1
			}
		}
		swarm = append(swarm, pt)
		if c.Feasible() && (gbest == nil || c.Fitness > gbest.Fitness) {
			gbest = c.Clone()
			s.improved(algorithm, 0, gbest)
		}
	}
	if len(swarm) == 0 {
		return nil, nil
	}

	for it := 0; it < p.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return gbest, err
		}
		if s.stop(it, gbest) {
			break
		}
		for _, pt := range swarm {
			var sel Selection
			if p.Variant == VariantVelocity {
				sel = s.moveSelection(pt, gbest, p)
			} else {
				sel = s.mutateSelection(pt.cur.Orders, p.MutationRate)
			}
			next := &Candidate{Orders: sel, Assignment: s.mutateAssignment(pt.cur.Assignment, sel, p.MutationRate)}
			if !s.MarkSeen(next.Key()) {
				s.Stats.TabuSkips++
				continue
			}
			s.evaluate(next)
			pt.cur = next
			if next.Fitness > pt.best.Fitness {
				pt.best = next.Clone()
			}
			if next.Feasible() && (gbest == nil || next.Fitness > gbest.Fitness) {
				gbest = next.Clone()
				s.improved(algorithm, it, gbest)
			}
		}
		s.endIteration(it, gbest)
	}
	return gbest, nil
}

// initialParticle fills a shuffled order sequence, skipping orders that would
// overflow the upper bound and stopping once the lower bound is reached.
// With greedy set the picks come from Assign, otherwise each item gets a
// random stocked aisle topped up from aisles already in use.
func (s *Session) initialParticle(greedy bool) *Candidate {
	inst := s.Inst
	sel := make(Selection, len(inst.Orders))
	total := 0
	for _, idx := range s.Rng.Perm(len(inst.Orders)) {
		u := inst.Orders[idx].Units
		if total+u > inst.Bounds.Max {
			continue
		}
		sel[idx] = true
		total += u
		if total >= inst.Bounds.Min {
			break
		}
	}
	if total == 0 || !inst.Bounds.Contains(total) {
		return nil
	}
	demand := inst.Demand(sel)
	if greedy {
		plan, err := Assign(demand, inst.Stock)
		if err != nil {
			return nil
		}
		return &Candidate{Orders: sel, Assignment: plan.Assignment}
	}
	asg := Assignment{}
	visited := map[int]bool{}
	for _, it := range demand.Items() {
		aq := inst.AislesFor(it)
		if len(aq) == 0 {
			continue
		}
		primary := aq[s.Rng.Intn(len(aq))].Aisle
		asg[it] = s.fill(it, demand[it], []int{primary}, visited)
	}
	return &Candidate{Orders: sel, Assignment: asg}
}

// mutateSelection flips each order with probability rate. A result outside
// the capacity bounds is rejected and the previous selection kept.
func (s *Session) mutateSelection(prev Selection, rate float64) Selection {
	next := prev.Clone()
	for i := range next {
		if s.Rng.Float64() < rate {
			next[i] = !next[i]
		}
	}
	if !s.admissible(next) {
		return prev
	}
	return next
}

// moveSelection applies the binary PSO velocity rule and samples the new
// selection through a sigmoid. Rejected like mutateSelection.
func (s *Session) moveSelection(pt *particle, gbest *Candidate, p PSOParams) Selection {
	social := pt.best
	if gbest != nil {
		social = gbest
	}
	prev := pt.cur.Orders
	next := make(Selection, len(prev))
	for i := range prev {
		x := bit(prev[i])
		v := p.Inertia*pt.velocity[i] +
			p.Cognitive*s.Rng.Float64()*(bit(pt.best.Orders[i])-x) +
			p.Social*s.Rng.Float64()*(bit(social.Orders[i])-x)
		v = math.Max(-p.VMax, math.Min(p.VMax, v))
		pt.velocity[i] = v
		next[i] = s.Rng.Float64() < 1/(1+math.Exp(-v))
	}
	if !s.admissible(next) {
		return prev
	}
	return next
}

func (s *Session) admissible(sel Selection) bool {
	total := s.Inst.Units(sel)
	return total > 0 && s.Inst.Bounds.Contains(total)
}

// mutateAssignment derives the picks for sel from prev: items no longer
// demanded are dropped, each remaining item is moved with probability rate
// to a new primary aisle (one already visited when possible), newly demanded
// items get a random stocked aisle, and every item's picks are refitted to
// its demand.
func (s *Session) mutateAssignment(prev Assignment, sel Selection, rate float64) Assignment {
	demand := s.Inst.Demand(sel)
	asg := prev.Clone()
	if asg == nil {
		asg = Assignment{}
	}
	visited := map[int]bool{}
	for _, a := range asg.Visited() {
		visited[a] = true
	}
	for _, it := range asg.Items() {
		if demand[it] == 0 {
			delete(asg, it)
			continue
		}
		if s.Rng.Float64() < rate {
			if primary, ok := s.pickAisle(it, visited); ok {
				asg[it] = s.fill(it, demand[it], []int{primary}, visited)
			}
		}
	}
	for _, it := range demand.Items() {
		if _, ok := asg[it]; ok {
			continue
		}
		aq := s.Inst.AislesFor(it)
		if len(aq) == 0 {
			continue
		}
		asg[it] = s.fill(it, demand[it], []int{aq[s.Rng.Intn(len(aq))].Aisle}, visited)
	}
	for _, it := range asg.Items() {
		if asg.Supplied(it) == demand[it] {
			continue
		}
		order := make([]int, 0, len(asg[it]))
		for _, pk := range asg[it] {
			order = append(order, pk.Aisle)
		}
		asg[it] = s.fill(it, demand[it], order, visited)
	}
	return asg
}

// pickAisle draws a stocked aisle for item, restricted to visited aisles
// when any of them carries it.
func (s *Session) pickAisle(item int, visited map[int]bool) (int, bool) {
	aq := s.Inst.AislesFor(item)
	if len(aq) == 0 {
		return 0, false
	}
	preferred := make([]int, 0, len(aq))
	for _, x := range aq {
		if visited[x.Aisle] {
			preferred = append(preferred, x.Aisle)
		}
	}
	if len(preferred) > 0 {
		return preferred[s.Rng.Intn(len(preferred))], true
	}
	return aq[s.Rng.Intn(len(aq))].Aisle, true
}

// fill picks need units of item from the aisles in first, then from visited
// aisles, then from any other stocked aisle, in ascending aisle order after
// first. Aisles used are added to visited. The result may fall short when
// the warehouse cannot cover need; the evaluator rejects such candidates.
func (s *Session) fill(item, need int, first []int, visited map[int]bool) []Pick {
	var picks []Pick
	used := map[int]bool{}
	take := func(aisle int) {
		if need == 0 || used[aisle] {
			return
		}
		used[aisle] = true
		q := min(need, s.Inst.StockOf(item, aisle))
		if q <= 0 {
			return
		}
		need -= q
		visited[aisle] = true
		picks = append(picks, Pick{Aisle: aisle, Qty: q})
	}
	for _, a := range first {
		take(a)
	}
	stocked := s.Inst.AislesFor(item)
	for _, x := range stocked {
		if visited[x.Aisle] {
			take(x.Aisle)
		}
	}
	for _, x := range stocked {
		take(x.Aisle)
	}
	return picks
}

func bit(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

