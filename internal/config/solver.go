package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"wavebatch/internal/model"
	"wavebatch/internal/opt"
)

// SolverDefaults are the search settings applied when a request leaves them out.
type SolverDefaults struct {
	Algorithm string        `yaml:"algorithm" json:"algorithm"`
	Seed      int64         `yaml:"seed" json:"seed"`
	TimeoutMs int           `yaml:"timeoutMs" json:"timeoutMs"`
	Grasp     GraspDefaults `yaml:"grasp" json:"grasp"`
	PSO       PSODefaults   `yaml:"pso" json:"pso"`
}

type GraspDefaults struct {
	Iterations    int `yaml:"iterations" json:"iterations"`
	TopK          int `yaml:"topK" json:"topK"`
	MaxAisles     int `yaml:"maxAisles" json:"maxAisles"`
	MaxLocalSteps int `yaml:"maxLocalSteps" json:"maxLocalSteps"`
}

type PSODefaults struct {
	Particles    int     `yaml:"particles" json:"particles"`
	Iterations   int     `yaml:"iterations" json:"iterations"`
	MutationRate float64 `yaml:"mutationRate" json:"mutationRate"`
	Inertia      float64 `yaml:"inertia" json:"inertia"`
	Cognitive    float64 `yaml:"cognitive" json:"cognitive"`
	Social       float64 `yaml:"social" json:"social"`
	VMax         float64 `yaml:"vmax" json:"vmax"`
}

// DefaultSolver mirrors opt.DefaultParams with a 60s run timeout.
func DefaultSolver() SolverDefaults {
	p := opt.DefaultParams()
	return SolverDefaults{
		Algorithm: p.Algorithm,
		Seed:      p.Seed,
		TimeoutMs: 60000,
		Grasp: GraspDefaults{
			Iterations:    p.Grasp.Iterations,
			TopK:          p.Grasp.TopK,
			MaxAisles:     p.Grasp.MaxAisles,
			MaxLocalSteps: p.Grasp.MaxLocalSteps,
		},
		PSO: PSODefaults{
			Particles:    p.PSO.Particles,
			Iterations:   p.PSO.Iterations,
			MutationRate: p.PSO.MutationRate,
			Inertia:      p.PSO.Inertia,
			Cognitive:    p.PSO.Cognitive,
			Social:       p.PSO.Social,
			VMax:         p.PSO.VMax,
		},
	}
}

// LoadSolverDefaults reads a YAML file over the built-in defaults. An empty
// path yields the built-in defaults.
func LoadSolverDefaults(path string) (SolverDefaults, error) {
	d := DefaultSolver()
	if path == "" {
		return d, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("read solver defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &d); err != nil {
		return d, fmt.Errorf("parse solver defaults %s: %w", path, err)
	}
	return d, d.Validate()
}

// Validate rejects settings the search cannot run with.
func (d SolverDefaults) Validate() error {
	if !opt.ValidAlgorithm(d.Algorithm) {
		return fmt.Errorf("%w: %q", opt.ErrUnknownAlgorithm, d.Algorithm)
	}
	if d.TimeoutMs < 0 {
		return fmt.Errorf("timeoutMs must be >= 0")
	}
	if d.Grasp.Iterations < 0 || d.Grasp.TopK < 0 || d.Grasp.MaxAisles < 0 || d.Grasp.MaxLocalSteps < 0 {
		return fmt.Errorf("grasp settings must be >= 0")
	}
	if d.PSO.Particles < 0 || d.PSO.Iterations < 0 {
		return fmt.Errorf("pso settings must be >= 0")
	}
	if d.PSO.MutationRate < 0 || d.PSO.MutationRate > 1 {
		return fmt.Errorf("mutationRate must be in [0,1]")
	}
	return nil
}

// Overlay applies a stored partial config (same shape as the JSON encoding of
// SolverDefaults) on top of d.
func (d SolverDefaults) Overlay(stored map[string]any) (SolverDefaults, error) {
	if len(stored) == 0 {
		return d, nil
	}
	b, err := json.Marshal(stored)
	if err != nil {
		return d, err
	}
	out := d
	if err := json.Unmarshal(b, &out); err != nil {
		return d, fmt.Errorf("solver config: %w", err)
	}
	return out, out.Validate()
}

// WithRequest applies the overrides carried by a solve request.
func (d SolverDefaults) WithRequest(req model.SolveRequest) SolverDefaults {
	if req.Algorithm != "" {
		d.Algorithm = req.Algorithm
	}
	if req.Seed != nil {
		d.Seed = *req.Seed
	}
	if req.TimeoutMs > 0 {
		d.TimeoutMs = req.TimeoutMs
	}
	if req.Iterations > 0 {
		d.Grasp.Iterations = req.Iterations
		d.PSO.Iterations = req.Iterations
	}
	if req.TopK > 0 {
		d.Grasp.TopK = req.TopK
	}
	if req.MaxAisles > 0 {
		d.Grasp.MaxAisles = req.MaxAisles
	}
	if req.Particles > 0 {
		d.PSO.Particles = req.Particles
	}
	if req.MutationRate > 0 {
		d.PSO.MutationRate = req.MutationRate
	}
	return d
}

// Params converts d into search parameters.
func (d SolverDefaults) Params() opt.Params {
	p := opt.DefaultParams()
	p.Algorithm = d.Algorithm
	p.Seed = d.Seed
	p.Grasp = opt.GraspParams{
		Iterations:    d.Grasp.Iterations,
		TopK:          d.Grasp.TopK,
		MaxAisles:     d.Grasp.MaxAisles,
		MaxLocalSteps: d.Grasp.MaxLocalSteps,
	}
	p.PSO.Particles = d.PSO.Particles
	p.PSO.Iterations = d.PSO.Iterations
	p.PSO.MutationRate = d.PSO.MutationRate
	p.PSO.Inertia = d.PSO.Inertia
	p.PSO.Cognitive = d.PSO.Cognitive
	p.PSO.Social = d.PSO.Social
	p.PSO.VMax = d.PSO.VMax
	return p
}

// Map is the JSON-shaped form stored in run params and the solver config table.
func (d SolverDefaults) Map() map[string]any {
	b, _ := json.Marshal(d)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}
