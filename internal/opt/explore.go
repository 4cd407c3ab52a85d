package opt

import (
	"context"
	"sort"
)

// WaveSample summarizes a batch of uniformly sampled random waves. It gives
// a baseline the searches can be compared against.
type WaveSample struct {
	Samples    int
	InBounds   int // waves whose size fit the capacity bounds
	Feasible   int
	Best       *Candidate
	Mean       float64 // over feasible waves
	Median     float64
	Efficiency []float64
}

// SampleWaves draws n random waves (a random number of distinct orders) and
// scores each through the session's evaluator with greedy assignment.
func SampleWaves(ctx context.Context, s *Session, n int) (WaveSample, error) {
	var out WaveSample
	orders := len(s.Inst.Orders)
	if orders == 0 {
		return out, nil
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			out.finish()
			return out, err
		}
		out.Samples++
		k := 1 + s.Rng.Intn(orders)
		sel := make(Selection, orders)
		for _, idx := range s.Rng.Perm(orders)[:k] {
			sel[idx] = true
		}
		if !s.Inst.Bounds.Contains(s.Inst.Units(sel)) {
			continue
		}
		out.InBounds++
		c := &Candidate{Orders: sel}
		if s.evaluate(c) < 0 {
			continue
		}
		out.Feasible++
		out.Efficiency = append(out.Efficiency, c.Fitness)
		if out.Best == nil || c.Fitness > out.Best.Fitness {
			out.Best = c
		}
	}
	out.finish()
	return out, nil
}

func (w *WaveSample) finish() {
	if len(w.Efficiency) == 0 {
		return
	}
	sum := 0.0
	for _, e := range w.Efficiency {
		sum += e
	}
	w.Mean = sum / float64(len(w.Efficiency))
	sorted := append([]float64(nil), w.Efficiency...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		w.Median = sorted[mid]
	} else {
		w.Median = (sorted[mid-1] + sorted[mid]) / 2
	}
}
