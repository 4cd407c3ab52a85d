package opt

import (
	"sort"
	"strconv"
	"strings"
)

// Selection marks which orders belong to a wave, indexed by order position.
type Selection []bool

// SelectionOf builds an n-order selection with the given indices set.
func SelectionOf(n int, idx ...int) Selection {
	s := make(Selection, n)
	for _, i := range idx {
		s[i] = true
	}
	return s
}

// Indices returns the selected order indices in ascending order.
func (s Selection) Indices() []int {
	out := make([]int, 0, len(s))
	for i, on := range s {
		if on {
			out = append(out, i)
		}
	}
	return out
}

func (s Selection) Count() int {
	n := 0
	for _, on := range s {
		if on {
			n++
		}
	}
	return n
}

func (s Selection) Clone() Selection { return append(Selection(nil), s...) }

// Pick takes Qty units of an item from Aisle.
type Pick struct {
	Aisle int
	Qty   int
}

// Assignment maps item -> picks covering its demand. An item split across
// aisles has several picks; the common single-aisle case has one.
type Assignment map[int][]Pick

func (a Assignment) Clone() Assignment {
	if a == nil {
		return nil
	}
	out := make(Assignment, len(a))
	for it, picks := range a {
		out[it] = append([]Pick(nil), picks...)
	}
	return out
}

// Items returns the assigned items in ascending order.
func (a Assignment) Items() []int {
	out := make([]int, 0, len(a))
	for it := range a {
		out = append(out, it)
	}
	sort.Ints(out)
	return out
}

// Supplied returns the units assigned to item across all its picks.
func (a Assignment) Supplied(item int) int {
	t := 0
	for _, p := range a[item] {
		t += p.Qty
	}
	return t
}

// Visited returns the aisles with at least one positive pick, ascending.
func (a Assignment) Visited() []int {
	seen := map[int]struct{}{}
	for _, picks := range a {
		for _, p := range picks {
			if p.Qty > 0 {
				seen[p.Aisle] = struct{}{}
			}
		}
	}
	out := make([]int, 0, len(seen))
	for aisle := range seen {
		out = append(out, aisle)
	}
	sort.Ints(out)
	return out
}

// Candidate is one trial wave: an order selection, the picks serving it and
// the values the evaluator derived from them.
type Candidate struct {
	Orders     Selection
	Assignment Assignment
	TotalItems int
	Visited    []int
	Fitness    float64
}

// Feasible reports whether c was evaluated as a valid wave.
func (c *Candidate) Feasible() bool { return c != nil && c.Fitness >= 0 }

func (c *Candidate) Clone() *Candidate {
	if c == nil {
		return nil
	}
	out := *c
	out.Orders = c.Orders.Clone()
	out.Assignment = c.Assignment.Clone()
	out.Visited = append([]int(nil), c.Visited...)
	return &out
}

// Key is the candidate's canonical fingerprint.
func (c *Candidate) Key() string { return Fingerprint(c.Orders, c.Assignment) }

// Fingerprint encodes a selection and assignment independently of map order
// and pick order: the sorted order indices, then the sorted
// (item, aisle, qty) triples. Zero-quantity picks are dropped. A nil
// assignment yields an orders-only key distinct from any explicit assignment.
func Fingerprint(sel Selection, asg Assignment) string {
	var b strings.Builder
	buf := make([]byte, 0, 16)
	b.WriteString("o")
	for i, on := range sel {
		if on {
			b.WriteByte(',')
			b.Write(strconv.AppendInt(buf[:0], int64(i), 10))
		}
	}
	if asg == nil {
		b.WriteString("|*")
		return b.String()
	}
	b.WriteString("|a")
	picks := make([]Pick, 0, 4)
	for _, it := range asg.Items() {
		picks = append(picks[:0], asg[it]...)
		sort.Slice(picks, func(i, j int) bool {
			if picks[i].Aisle != picks[j].Aisle {
				return picks[i].Aisle < picks[j].Aisle
			}
			return picks[i].Qty < picks[j].Qty
		})
		for _, p := range picks {
			if p.Qty == 0 {
				continue
			}
			b.WriteByte(';')
			b.Write(strconv.AppendInt(buf[:0], int64(it), 10))
			b.WriteByte(':')
			b.Write(strconv.AppendInt(buf[:0], int64(p.Aisle), 10))
			b.WriteByte(':')
			b.Write(strconv.AppendInt(buf[:0], int64(p.Qty), 10))
		}
	}
	return b.String()
}
