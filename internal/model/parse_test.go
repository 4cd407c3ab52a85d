package model

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `3 4 2
2 0 3 1 1
1 2 2

1 3 5
3 0 4 1 1 3 2
2 2 5 3 1
2 6
`

func TestParseInstance(t *testing.T) {
	inst, err := ParseInstance(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, inst.Orders, 3)
	require.Equal(t, 4, inst.NumItems)
	require.Equal(t, 2, inst.NumAisles)
	require.Equal(t, Bounds{Min: 2, Max: 6}, inst.Bounds)

	require.Equal(t, []ItemQty{{Item: 0, Qty: 3}, {Item: 1, Qty: 1}}, inst.Orders[0].Items)
	require.Equal(t, 4, inst.Orders[0].Units)
	require.Equal(t, 5, inst.Orders[2].Units)

	require.Equal(t, 4, inst.StockOf(0, 0))
	require.Equal(t, 0, inst.StockOf(0, 1))
	require.Equal(t, []AisleQty{{Aisle: 0, Qty: 2}, {Aisle: 1, Qty: 1}}, inst.AislesFor(3))
	require.Equal(t, []int{7, 6}, inst.AisleTotals())
	require.Equal(t, []int{0, 1}, inst.StockedAisles())

	sel := []bool{true, false, true}
	require.Equal(t, Demand{0: 3, 1: 1, 3: 5}, inst.Demand(sel))
	require.Equal(t, 9, inst.Units(sel))
}

func TestParseInstance_Malformed(t *testing.T) {
	cases := map[string]struct {
		in   string
		line int
	}{
		"empty":            {"", 0},
		"short header":     {"1 1\n1 0 1\n1 0 1\n0 1\n", 1},
		"not a number":     {"1 1 1\n1 0 x\n1 0 1\n0 1\n", 2},
		"token count":      {"1 1 1\n2 0 1\n1 0 1\n0 1\n", 2},
		"missing bounds":   {"1 1 1\n1 0 1\n1 0 1\n", 0},
		"trailing line":    {"1 1 1\n1 0 1\n1 0 1\n0 1\n7\n", 5},
		"item range":       {"1 1 1\n1 3 1\n1 0 1\n0 1\n", 4},
		"zero quantity":    {"1 1 1\n1 0 0\n1 0 1\n0 1\n", 2},
		"duplicate item":   {"1 2 1\n2 0 1 0 2\n1 0 1\n0 1\n", 2},
		"inverted bounds":  {"1 1 1\n1 0 1\n1 0 1\n5 1\n", 4},
		"negative bound":   {"1 1 1\n1 0 1\n1 0 1\n-1 1\n", 4},
		"bounds arity":     {"1 1 1\n1 0 1\n1 0 1\n1\n", 4},
		"negative entries": {"1 1 1\n-1\n1 0 1\n0 1\n", 2},
		"huge orders":      {"9223372036854775807 1 0\n1 0 1\n0 1\n", 0},
		"huge aisles":      {"1 1 9223372036854775807\n1 0 1\n0 1\n", 0},
		"huge both":        {"4611686018427387904 1 4611686018427387904\n0 1\n", 0},
		"header only":      {"0 0 0\n", 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseInstance(strings.NewReader(tc.in))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrMalformedInstance), err.Error())
			if tc.line > 0 {
				require.Contains(t, err.Error(), "line ")
			}
			var me *MalformedInstanceError
			require.True(t, errors.As(err, &me))
			if me.Line > 0 {
				require.Equal(t, tc.line, me.Line)
			}
		})
	}
}

func TestFormatInstance_RoundTrip(t *testing.T) {
	inst, err := ParseInstance(strings.NewReader(sample))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, FormatInstance(&buf, inst))
	again, err := ParseInstance(&buf)
	require.NoError(t, err)
	require.Equal(t, inst.Digest(), again.Digest())
	require.Equal(t, inst.Orders, again.Orders)
	require.Equal(t, inst.Stock, again.Stock)
}

func TestStockRestrict(t *testing.T) {
	s := Stock{0: {0: 1, 1: 2}, 1: {2: 5}}
	r := s.Restrict([]int{1, 2})
	require.Equal(t, Stock{0: {1: 2}, 1: {2: 5}}, r)
	require.Equal(t, 2, r.Total(0))
	require.Empty(t, s.Restrict([]int{9}))
	// the original is untouched
	require.Equal(t, 3, s.Total(0))
}

func TestDemandItems(t *testing.T) {
	d := Demand{4: 1, 1: 2, 3: 0}
	require.Equal(t, []int{1, 4}, d.Items())
	require.Equal(t, 3, d.Total())
}
