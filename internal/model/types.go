package model

import "time"

// Run statuses.
const (
	RunQueued     = "queued"
	RunRunning    = "running"
	RunCompleted  = "completed"
	RunNoSolution = "no_solution"
	RunTimeout    = "timeout"
	RunError      = "error"
	RunCanceled   = "canceled"
)

// InstanceRecord is a stored instance plus its summary.
type InstanceRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Digest    string    `json:"digest"`
	NumOrders int       `json:"numOrders"`
	NumItems  int       `json:"numItems"`
	NumAisles int       `json:"numAisles"`
	MinItems  int       `json:"minItems"`
	MaxItems  int       `json:"maxItems"`
	Raw       []byte    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summarize fills the summary fields of rec from inst.
func (rec *InstanceRecord) Summarize(inst *Instance) {
	rec.Digest = inst.Digest()
	rec.NumOrders = len(inst.Orders)
	rec.NumItems = inst.NumItems
	rec.NumAisles = inst.NumAisles
	rec.MinItems = inst.Bounds.Min
	rec.MaxItems = inst.Bounds.Max
}

// SolveRequest asks for a wave search over a stored or inline instance.
type SolveRequest struct {
	InstanceID     string  `json:"instanceId,omitempty"`
	Instance       string  `json:"instance,omitempty"`
	Name           string  `json:"name,omitempty"`
	Algorithm      string  `json:"algorithm,omitempty"`
	Seed           *int64  `json:"seed,omitempty"`
	Iterations     int     `json:"iterations,omitempty"`
	Particles      int     `json:"particles,omitempty"`
	MutationRate   float64 `json:"mutationRate,omitempty"`
	TopK           int     `json:"topK,omitempty"`
	MaxAisles      int     `json:"maxAisles,omitempty"`
	TimeoutMs      int     `json:"timeoutMs,omitempty"`
	CallbackURL    string  `json:"callbackUrl,omitempty"`
	CallbackSecret string  `json:"callbackSecret,omitempty"`
	Wait           bool    `json:"wait,omitempty"`
}

// Run is one execution of one algorithm over one instance.
type Run struct {
	ID             string         `json:"id"`
	InstanceID     string         `json:"instanceId"`
	Algorithm      string         `json:"algorithm"`
	Seed           int64          `json:"seed"`
	Status         string         `json:"status"`
	Params         map[string]any `json:"params,omitempty"`
	TimeoutMs      int            `json:"timeoutMs,omitempty"`
	Efficiency     float64        `json:"efficiency,omitempty"`
	TotalItems     int            `json:"totalItems,omitempty"`
	Orders         []int          `json:"orders,omitempty"`
	Aisles         []int          `json:"aisles,omitempty"`
	Stats          map[string]any `json:"stats,omitempty"`
	Error          string         `json:"error,omitempty"`
	CallbackURL    string         `json:"callbackUrl,omitempty"`
	CallbackSecret string         `json:"-"`
	CreatedAt      time.Time      `json:"createdAt"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	FinishedAt     *time.Time     `json:"finishedAt,omitempty"`
}

// Finished reports whether the run reached a terminal status.
func (r Run) Finished() bool {
	switch r.Status {
	case RunCompleted, RunNoSolution, RunTimeout, RunError, RunCanceled:
		return true
	}
	return false
}

// Checkpoint is a best-so-far snapshot taken when a search improves.
type Checkpoint struct {
	RunID      string    `json:"runId"`
	Seq        int       `json:"seq"`
	Algorithm  string    `json:"algorithm"`
	Iteration  int       `json:"iteration"`
	Efficiency float64   `json:"efficiency"`
	TotalItems int       `json:"totalItems"`
	Orders     []int     `json:"orders"`
	Aisles     []int     `json:"aisles"`
	At         time.Time `json:"at"`
}

// ValidateRequest carries an externally produced solution to check.
type ValidateRequest struct {
	InstanceID string `json:"instanceId,omitempty"`
	Instance   string `json:"instance,omitempty"`
	Solution   string `json:"solution"`
}
