package opt

import (
	"math/rand"
	"time"

	"wavebatch/internal/model"
)

const snapshotEvery = 10

// Stats describes what one search did.
type Stats struct {
	Iterations   int
	Evaluations  int
	CacheHits    int
	TabuSkips    int
	Improvements int
	Discarded    int
	BestFitness  float64
	History      []float64 // best fitness after each iteration
	Snapshots    []Snapshot
}

type Snapshot struct {
	Iteration   int
	BestFitness float64
	Evaluations int
	CacheHits   int
}

// Checkpoint is emitted each time a search finds a better wave.
type Checkpoint struct {
	Algorithm  string
	Iteration  int
	Fitness    float64
	TotalItems int
	Orders     []int
	Aisles     []int
	At         time.Time
}

// Hooks let callers observe and stop a running search. Both are optional.
type Hooks struct {
	OnCheckpoint func(Checkpoint)
	ShouldStop   func(iter int, best *Candidate) bool
}

// Session owns every piece of mutable search state for one run: the random
// source, the fitness cache and the seen set. Sessions must not be shared
// between goroutines; run concurrent searches in separate sessions.
type Session struct {
	Inst  *model.Instance
	Rng   *rand.Rand
	Eval  *Evaluator
	Hooks Hooks
	Stats Stats

	seen   map[string]struct{}
	builds map[string]*Candidate
}

// NewSession starts a search over inst with a deterministic random source.
func NewSession(inst *model.Instance, seed int64) *Session {
	return &Session{
		Inst:   inst,
		Rng:    rand.New(rand.NewSource(seed)),
		Eval:   NewEvaluator(inst),
		Stats:  Stats{BestFitness: Infeasible},
		seen:   map[string]struct{}{},
		builds: map[string]*Candidate{},
	}
}

// MarkSeen records key and reports whether it was new.
func (s *Session) MarkSeen(key string) bool {
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Seen reports whether key was already generated in this session.
func (s *Session) Seen(key string) bool {
	_, ok := s.seen[key]
	return ok
}

func (s *Session) evaluate(c *Candidate) float64 {
	f := s.Eval.Evaluate(c)
	s.Stats.Evaluations = s.Eval.Evaluations()
	s.Stats.CacheHits = s.Eval.Hits()
	return f
}

func (s *Session) stop(iter int, best *Candidate) bool {
	return s.Hooks.ShouldStop != nil && s.Hooks.ShouldStop(iter, best)
}

func (s *Session) improved(algorithm string, iter int, c *Candidate) {
	s.Stats.Improvements++
	s.Stats.BestFitness = c.Fitness
	if s.Hooks.OnCheckpoint == nil {
		return
	}
	s.Hooks.OnCheckpoint(Checkpoint{
		Algorithm:  algorithm,
		Iteration:  iter,
		Fitness:    c.Fitness,
		TotalItems: c.TotalItems,
		Orders:     c.Orders.Indices(),
		Aisles:     append([]int(nil), c.Visited...),
		At:         time.Now().UTC(),
	})
}

func (s *Session) endIteration(iter int, best *Candidate) {
	s.Stats.Iterations++
	f := Infeasible
	if best != nil {
		f = best.Fitness
	}
	s.Stats.History = append(s.Stats.History, f)
	if iter%snapshotEvery == 0 {
		s.Stats.Snapshots = append(s.Stats.Snapshots, Snapshot{
			Iteration:   iter,
			BestFitness: f,
			Evaluations: s.Stats.Evaluations,
			CacheHits:   s.Stats.CacheHits,
		})
	}
}
