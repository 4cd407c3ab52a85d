package model

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrMalformedInstance matches every instance parse or validation failure.
var ErrMalformedInstance = errors.New("malformed instance")

// MalformedInstanceError describes why an instance was rejected.
// Line is the 1-based physical line, or 0 when the problem is not tied to one.
type MalformedInstanceError struct {
	Line   int
	Reason string
}

func (e *MalformedInstanceError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed instance: line %d: %s", e.Line, e.Reason)
	}
	return "malformed instance: " + e.Reason
}

func (e *MalformedInstanceError) Is(target error) bool { return target == ErrMalformedInstance }

func malformed(line int, format string, args ...any) error {
	return &MalformedInstanceError{Line: line, Reason: fmt.Sprintf(format, args...)}
}

type textLine struct {
	no     int
	fields []string
}

// LoadInstance parses the instance file at path.
func LoadInstance(path string) (*Instance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseInstance(f)
}

// ParseInstance reads the text instance format:
//
//	numOrders numItems numAisles
//	k item qty ... (numOrders lines)
//	k item qty ... (numAisles lines, aisle id = position in this block)
//	minItems maxItems
func ParseInstance(r io.Reader) (*Instance, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	var lines []textLine
	no := 0
	for sc.Scan() {
		no++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		lines = append(lines, textLine{no: no, fields: fields})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read instance: %w", err)
	}
	if len(lines) == 0 {
		return nil, malformed(0, "empty input")
	}

	head, err := ints(lines[0])
	if err != nil {
		return nil, err
	}
	if len(head) != 3 {
		return nil, malformed(lines[0].no, "header wants 3 integers, got %d", len(head))
	}
	numOrders, numItems, numAisles := head[0], head[1], head[2]
	if numOrders < 0 || numItems < 0 || numAisles < 0 {
		return nil, malformed(lines[0].no, "negative size in header")
	}
	// Compared piecewise so oversized header counts cannot overflow want.
	body := len(lines) - 2
	if numOrders > body || numAisles > body-numOrders {
		return nil, malformed(0, "header declares %d orders and %d aisles, got %d non-empty lines", numOrders, numAisles, len(lines))
	}
	want := 1 + numOrders + numAisles + 1
	if len(lines) < want {
		return nil, malformed(0, "expected %d non-empty lines, got %d", want, len(lines))
	}
	if len(lines) > want {
		return nil, malformed(lines[want].no, "unexpected trailing content")
	}

	orders := make([]map[int]int, numOrders)
	for i := 0; i < numOrders; i++ {
		m, err := entryLine(lines[1+i])
		if err != nil {
			return nil, err
		}
		orders[i] = m
	}
	aisles := make([]map[int]int, numAisles)
	for a := 0; a < numAisles; a++ {
		m, err := entryLine(lines[1+numOrders+a])
		if err != nil {
			return nil, err
		}
		aisles[a] = m
	}

	last := lines[want-1]
	bounds, err := ints(last)
	if err != nil {
		return nil, err
	}
	if len(bounds) != 2 {
		return nil, malformed(last.no, "bounds line wants 2 integers, got %d", len(bounds))
	}
	inst, err := NewInstance(orders, aisles, numItems, bounds[0], bounds[1])
	if err != nil {
		var me *MalformedInstanceError
		if errors.As(err, &me) && me.Line == 0 {
			return nil, fmt.Errorf("line %d: %w", last.no, err)
		}
		return nil, err
	}
	return inst, nil
}

func ints(l textLine) ([]int, error) {
	out := make([]int, len(l.fields))
	for i, f := range l.fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, malformed(l.no, "token %q is not an integer", f)
		}
		out[i] = v
	}
	return out, nil
}

func entryLine(l textLine) (map[int]int, error) {
	vals, err := ints(l)
	if err != nil {
		return nil, err
	}
	k := vals[0]
	if k < 0 || len(vals) != 1+2*k {
		return nil, malformed(l.no, "declared %d entries but found %d tokens", k, len(vals)-1)
	}
	m := make(map[int]int, k)
	for j := 0; j < k; j++ {
		item, qty := vals[1+2*j], vals[2+2*j]
		if _, dup := m[item]; dup {
			return nil, malformed(l.no, "item %d listed twice", item)
		}
		if qty <= 0 {
			return nil, malformed(l.no, "item %d has non-positive quantity %d", item, qty)
		}
		m[item] = qty
	}
	return m, nil
}

// FormatInstance writes inst in the text format read by ParseInstance.
func FormatInstance(w io.Writer, inst *Instance) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d %d\n", len(inst.Orders), inst.NumItems, inst.NumAisles)
	for _, o := range inst.Orders {
		writeEntries(bw, o.Items)
	}
	for a := 0; a < inst.NumAisles; a++ {
		writeEntries(bw, inst.aisleItems[a])
	}
	fmt.Fprintf(bw, "%d %d\n", inst.Bounds.Min, inst.Bounds.Max)
	return bw.Flush()
}

func writeEntries(w *bufio.Writer, entries []ItemQty) {
	w.WriteString(strconv.Itoa(len(entries)))
	for _, e := range entries {
		w.WriteByte(' ')
		w.WriteString(strconv.Itoa(e.Item))
		w.WriteByte(' ')
		w.WriteString(strconv.Itoa(e.Qty))
	}
	w.WriteByte('\n')
}
