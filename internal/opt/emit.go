package opt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"wavebatch/internal/model"
)

// ErrNoFeasibleBatch means no candidate satisfying every wave rule exists
// to emit. Callers must report it instead of writing an empty solution.
var ErrNoFeasibleBatch = errors.New("no feasible batch found")

// ErrMalformedSolution matches solution text that cannot be read or refers
// to orders or aisles outside the instance.
var ErrMalformedSolution = errors.New("malformed solution")

// Solution is the emitted wave: ascending unique order and aisle indices.
type Solution struct {
	Orders []int `json:"selected_orders"`
	Aisles []int `json:"visited_aisles"`
}

// Emit converts a feasible candidate into its solution.
func Emit(c *Candidate) (Solution, error) {
	if !c.Feasible() {
		return Solution{}, ErrNoFeasibleBatch
	}
	return Solution{Orders: c.Orders.Indices(), Aisles: uniqueSorted(c.Visited)}, nil
}

// WriteSolution writes the order count, one order per line, the aisle count
// and one aisle per line.
func WriteSolution(w io.Writer, sol Solution) error {
	bw := bufio.NewWriter(w)
	writeBlock(bw, sol.Orders)
	writeBlock(bw, sol.Aisles)
	return bw.Flush()
}

func writeBlock(w *bufio.Writer, vals []int) {
	w.WriteString(strconv.Itoa(len(vals)))
	w.WriteByte('\n')
	for _, v := range vals {
		w.WriteString(strconv.Itoa(v))
		w.WriteByte('\n')
	}
}

// FormatSolution returns the text form of sol.
func FormatSolution(sol Solution) string {
	var b strings.Builder
	_ = WriteSolution(&b, sol)
	return b.String()
}

// ParseSolution reads the text written by WriteSolution. Blank lines are
// ignored; anything after the aisle block is an error.
func ParseSolution(r io.Reader) (Solution, error) {
	var vals []int
	sc := bufio.NewScanner(r)
	no := 0
	for sc.Scan() {
		no++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := strconv.Atoi(line)
		if err != nil {
			return Solution{}, fmt.Errorf("%w: line %d: %q is not an integer", ErrMalformedSolution, no, line)
		}
		vals = append(vals, v)
	}
	if err := sc.Err(); err != nil {
		return Solution{}, fmt.Errorf("read solution: %w", err)
	}
	orders, rest, err := readBlock(vals, "orders")
	if err != nil {
		return Solution{}, err
	}
	aisles, rest, err := readBlock(rest, "aisles")
	if err != nil {
		return Solution{}, err
	}
	if len(rest) > 0 {
		return Solution{}, fmt.Errorf("%w: %d values after the aisle block", ErrMalformedSolution, len(rest))
	}
	return Solution{Orders: orders, Aisles: aisles}, nil
}

func readBlock(vals []int, what string) ([]int, []int, error) {
	if len(vals) == 0 {
		return nil, nil, fmt.Errorf("%w: missing %s count", ErrMalformedSolution, what)
	}
	n := vals[0]
	if n < 0 || len(vals)-1 < n {
		return nil, nil, fmt.Errorf("%w: %s count %d does not match %d values", ErrMalformedSolution, what, n, len(vals)-1)
	}
	return append([]int{}, vals[1:1+n]...), vals[1+n:], nil
}

// Report is the outcome of checking an externally produced solution.
type Report struct {
	Fitness    float64 `json:"fitness"`
	Reason     Reason  `json:"reason"`
	TotalItems int     `json:"totalItems"`
	Visited    []int   `json:"visited"`
	// UnusedAisles are listed aisles the assignment never picks from.
	UnusedAisles []int `json:"unusedAisles"`
	// ListedEfficiency grades the wave over every listed aisle, the way an
	// external grader counts them.
	ListedEfficiency float64 `json:"listedEfficiency"`
}

// Feasible reports whether the solution passed every wave rule.
func (r Report) Feasible() bool { return r.Reason == ReasonOK }

// ValidateSolution scores sol against inst. The listed orders form the
// selection and the picks come from Assign restricted to the listed aisles,
// then the candidate goes through the evaluator's diagnostic path. Only
// indices outside the instance or repeated are errors; rule violations are
// reported through Report.Reason.
func ValidateSolution(inst *model.Instance, sol Solution) (Report, error) {
	if err := checkIndices(sol.Orders, len(inst.Orders), "order"); err != nil {
		return Report{}, err
	}
	if err := checkIndices(sol.Aisles, inst.NumAisles, "aisle"); err != nil {
		return Report{}, err
	}
	sel := SelectionOf(len(inst.Orders), sol.Orders...)
	rep := Report{
		Fitness:          Infeasible,
		TotalItems:       inst.Units(sel),
		ListedEfficiency: Infeasible,
	}
	plan, err := Assign(inst.Demand(sel), inst.Stock.Restrict(sol.Aisles))
	if err != nil {
		rep.Reason = ReasonSupplyShortfall
		if rep.TotalItems == 0 {
			rep.Reason = ReasonEmptyBatch
		} else if !inst.Bounds.Contains(rep.TotalItems) {
			rep.Reason = ReasonCapacityViolation
		}
		return rep, nil
	}
	c := &Candidate{Orders: sel, Assignment: plan.Assignment}
	rep.Fitness, rep.Reason = NewEvaluator(inst).Diagnose(c)
	if rep.Reason != ReasonOK {
		return rep, nil
	}
	rep.Visited = plan.Visited
	used := map[int]bool{}
	for _, a := range plan.Visited {
		used[a] = true
	}
	rep.UnusedAisles = []int{}
	for _, a := range uniqueSorted(sol.Aisles) {
		if !used[a] {
			rep.UnusedAisles = append(rep.UnusedAisles, a)
		}
	}
	rep.ListedEfficiency = efficiency(rep.TotalItems, len(sol.Aisles))
	return rep, nil
}

func checkIndices(idx []int, n int, what string) error {
	seen := make(map[int]bool, len(idx))
	for _, i := range idx {
		if i < 0 || i >= n {
			return fmt.Errorf("%w: %s %d outside [0,%d)", ErrMalformedSolution, what, i, n)
		}
		if seen[i] {
			return fmt.Errorf("%w: %s %d listed twice", ErrMalformedSolution, what, i)
		}
		seen[i] = true
	}
	return nil
}

func uniqueSorted(in []int) []int {
	out := append([]int{}, in...)
	sort.Ints(out)
	j := 0
	for i, v := range out {
		if i == 0 || v != out[j-1] {
			out[j] = v
			j++
		}
	}
	return out[:j]
}
