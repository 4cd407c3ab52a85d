package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// ItemQty is one (item, quantity) entry of an order or an aisle.
type ItemQty struct {
	Item int
	Qty  int
}

// AisleQty is the stock of one item held in one aisle.
type AisleQty struct {
	Aisle int
	Qty   int
}

// Order is a customer request. Items are sorted by item id.
type Order struct {
	Items []ItemQty
	Units int
}

// Bounds are the inclusive wave size limits in picked units.
type Bounds struct {
	Min int
	Max int
}

// Contains reports whether total lies in [Min, Max].
func (b Bounds) Contains(total int) bool { return total >= b.Min && total <= b.Max }

// Stock maps item -> aisle -> quantity available.
type Stock map[int]map[int]int

// Restrict returns the view of s limited to the given aisles.
func (s Stock) Restrict(aisles []int) Stock {
	keep := make(map[int]struct{}, len(aisles))
	for _, a := range aisles {
		keep[a] = struct{}{}
	}
	out := make(Stock, len(s))
	for item, byAisle := range s {
		for a, q := range byAisle {
			if _, ok := keep[a]; !ok || q <= 0 {
				continue
			}
			if out[item] == nil {
				out[item] = map[int]int{}
			}
			out[item][a] = q
		}
	}
	return out
}

// Total returns the summed quantity of item across all aisles in s.
func (s Stock) Total(item int) int {
	t := 0
	for _, q := range s[item] {
		t += q
	}
	return t
}

// Demand maps item -> aggregated quantity requested.
type Demand map[int]int

// Items returns the items with positive demand in ascending order.
func (d Demand) Items() []int {
	out := make([]int, 0, len(d))
	for it, q := range d {
		if q > 0 {
			out = append(out, it)
		}
	}
	sort.Ints(out)
	return out
}

// Total returns the number of units demanded.
func (d Demand) Total() int {
	t := 0
	for _, q := range d {
		if q > 0 {
			t += q
		}
	}
	return t
}

// Instance is the read-only view of a wave batching problem.
// Nothing in the repository mutates an Instance after NewInstance returns.
type Instance struct {
	Orders    []Order
	NumItems  int
	NumAisles int
	Stock     Stock
	Bounds    Bounds

	aisleItems  [][]ItemQty
	itemAisles  map[int][]AisleQty
	aisleTotals []int
	stocked     []int
}

// NewInstance validates raw orders and aisles and builds the derived indices.
func NewInstance(orders []map[int]int, aisles []map[int]int, numItems, minItems, maxItems int) (*Instance, error) {
	if numItems < 0 {
		return nil, malformed(0, "negative item count %d", numItems)
	}
	if minItems < 0 || maxItems < 0 {
		return nil, malformed(0, "negative wave bounds %d %d", minItems, maxItems)
	}
	if minItems > maxItems {
		return nil, malformed(0, "minItems %d exceeds maxItems %d", minItems, maxItems)
	}
	inst := &Instance{
		Orders:      make([]Order, len(orders)),
		NumItems:    numItems,
		NumAisles:   len(aisles),
		Stock:       Stock{},
		Bounds:      Bounds{Min: minItems, Max: maxItems},
		aisleItems:  make([][]ItemQty, len(aisles)),
		itemAisles:  map[int][]AisleQty{},
		aisleTotals: make([]int, len(aisles)),
	}
	for i, raw := range orders {
		o, err := buildEntries(raw, numItems)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		units := 0
		for _, iq := range o {
			units += iq.Qty
		}
		inst.Orders[i] = Order{Items: o, Units: units}
	}
	for a, raw := range aisles {
		entries, err := buildEntries(raw, numItems)
		if err != nil {
			return nil, fmt.Errorf("aisle %d: %w", a, err)
		}
		inst.aisleItems[a] = entries
		for _, iq := range entries {
			if inst.Stock[iq.Item] == nil {
				inst.Stock[iq.Item] = map[int]int{}
			}
			inst.Stock[iq.Item][a] = iq.Qty
			inst.itemAisles[iq.Item] = append(inst.itemAisles[iq.Item], AisleQty{Aisle: a, Qty: iq.Qty})
			inst.aisleTotals[a] += iq.Qty
		}
		if inst.aisleTotals[a] > 0 {
			inst.stocked = append(inst.stocked, a)
		}
	}
	return inst, nil
}

func buildEntries(raw map[int]int, numItems int) ([]ItemQty, error) {
	out := make([]ItemQty, 0, len(raw))
	for item, qty := range raw {
		if item < 0 || item >= numItems {
			return nil, malformed(0, "item %d outside [0,%d)", item, numItems)
		}
		if qty <= 0 {
			return nil, malformed(0, "item %d has non-positive quantity %d", item, qty)
		}
		out = append(out, ItemQty{Item: item, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out, nil
}

// StockOf returns the quantity of item held in aisle.
func (inst *Instance) StockOf(item, aisle int) int { return inst.Stock[item][aisle] }

// AislesFor returns the aisles stocking item, ascending by aisle id.
func (inst *Instance) AislesFor(item int) []AisleQty { return inst.itemAisles[item] }

// AisleItems returns the stock entries of one aisle.
func (inst *Instance) AisleItems(aisle int) []ItemQty { return inst.aisleItems[aisle] }

// AisleTotals returns total stock per aisle, indexed by aisle id.
func (inst *Instance) AisleTotals() []int { return inst.aisleTotals }

// StockedAisles returns the aisles with any stock, ascending.
func (inst *Instance) StockedAisles() []int { return inst.stocked }

// Demand aggregates the demand of the selected orders.
func (inst *Instance) Demand(sel []bool) Demand {
	d := Demand{}
	for i, on := range sel {
		if !on {
			continue
		}
		for _, iq := range inst.Orders[i].Items {
			d[iq.Item] += iq.Qty
		}
	}
	return d
}

// Units returns the number of units requested by the selected orders.
func (inst *Instance) Units(sel []bool) int {
	t := 0
	for i, on := range sel {
		if on {
			t += inst.Orders[i].Units
		}
	}
	return t
}

// Digest is a stable content hash of the instance's canonical text form.
func (inst *Instance) Digest() string {
	var buf bytes.Buffer
	_ = FormatInstance(&buf, inst)
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}
