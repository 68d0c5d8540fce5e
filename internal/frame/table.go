// Package frame holds the in-memory cell table shared by every pipeline stage.
//
// A Table is one row per flow-cytometry event and one column per attribute.
// Stages only ever append columns; the row count is fixed at load time. Float
// columns use NaN for "undefined", which serializes as NA in CSV output.
package frame

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ColumnKind discriminates the two storage types a Table supports.
type ColumnKind int

const (
	FloatKind ColumnKind = iota
	StringKind
)

// Table is a column-oriented table with a fixed row count. Columns keep their
// insertion order for serialization.
type Table struct {
	n       int
	names   []string
	kinds   map[string]ColumnKind
	floats  map[string][]float64
	strings map[string][]string
}

// New returns an empty Table with a fixed row count.
func New(n int) *Table {
	return &Table{
		n:       n,
		kinds:   make(map[string]ColumnKind),
		floats:  make(map[string][]float64),
		strings: make(map[string][]string),
	}
}

// NumRows returns the number of cells in the table.
func (t *Table) NumRows() int { return t.n }

// NumCols returns the number of columns currently present.
func (t *Table) NumCols() int { return len(t.names) }

// ColumnNames returns the column names in insertion order.
func (t *Table) ColumnNames() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// FloatColumnNames returns the names of all float columns in insertion order.
func (t *Table) FloatColumnNames() []string {
	var out []string
	for _, name := range t.names {
		if t.kinds[name] == FloatKind {
			out = append(out, name)
		}
	}
	return out
}

// HasColumn reports whether a column with the given name exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.kinds[name]
	return ok
}

// AppendFloatColumn adds a float column. The value slice must match the table
// row count exactly; a short or long column indicates a stage bug upstream.
func (t *Table) AppendFloatColumn(name string, values []float64) error {
	if err := t.checkAppend(name, len(values)); err != nil {
		return err
	}
	v := make([]float64, len(values))
	copy(v, values)
	t.names = append(t.names, name)
	t.kinds[name] = FloatKind
	t.floats[name] = v
	return nil
}

// AppendStringColumn adds a string column with the same length contract as
// AppendFloatColumn.
func (t *Table) AppendStringColumn(name string, values []string) error {
	if err := t.checkAppend(name, len(values)); err != nil {
		return err
	}
	v := make([]string, len(values))
	copy(v, values)
	t.names = append(t.names, name)
	t.kinds[name] = StringKind
	t.strings[name] = v
	return nil
}

func (t *Table) checkAppend(name string, length int) error {
	if name == "" {
		return fmt.Errorf("frame: empty column name")
	}
	if t.HasColumn(name) {
		return fmt.Errorf("frame: column %q already exists", name)
	}
	if length != t.n {
		return fmt.Errorf("frame: column %q has %d values, table has %d rows", name, length, t.n)
	}
	return nil
}

// FloatColumn returns the backing slice for a float column. Callers must not
// resize it; in-place transforms go through TransformFloatColumn.
func (t *Table) FloatColumn(name string) ([]float64, error) {
	v, ok := t.floats[name]
	if !ok {
		if _, isString := t.strings[name]; isString {
			return nil, fmt.Errorf("frame: column %q is a string column", name)
		}
		return nil, fmt.Errorf("frame: no column %q", name)
	}
	return v, nil
}

// StringColumn returns the backing slice for a string column.
func (t *Table) StringColumn(name string) ([]string, error) {
	v, ok := t.strings[name]
	if !ok {
		if _, isFloat := t.floats[name]; isFloat {
			return nil, fmt.Errorf("frame: column %q is a float column", name)
		}
		return nil, fmt.Errorf("frame: no column %q", name)
	}
	return v, nil
}

// TransformFloatColumn rewrites a float column in place by applying f to every
// value. This is the only sanctioned mutation of existing column data.
func (t *Table) TransformFloatColumn(name string, f func(float64) float64) error {
	v, err := t.FloatColumn(name)
	if err != nil {
		return err
	}
	for i := range v {
		v[i] = f(v[i])
	}
	return nil
}

// MarkerMatrix extracts the named float columns as a dense row-aligned matrix,
// one row per cell in table order. Stages use this as their numeric input.
func (t *Table) MarkerMatrix(names []string) (*mat.Dense, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("frame: no marker columns requested")
	}
	cols := make([][]float64, len(names))
	for i, name := range names {
		v, err := t.FloatColumn(name)
		if err != nil {
			return nil, err
		}
		cols[i] = v
	}
	m := mat.NewDense(t.n, len(names), nil)
	for j, col := range cols {
		for i := 0; i < t.n; i++ {
			m.Set(i, j, col[i])
		}
	}
	return m, nil
}

// AppendRows concatenates another table below this one. Both tables must have
// identical column names, order and kinds; the loader relies on this to pool
// per-cluster event files into one frame.
func (t *Table) AppendRows(other *Table) error {
	if len(t.names) != len(other.names) {
		return fmt.Errorf("frame: column count mismatch: %d vs %d", len(t.names), len(other.names))
	}
	for i, name := range t.names {
		if other.names[i] != name {
			return fmt.Errorf("frame: column %d is %q here but %q in appended table", i, name, other.names[i])
		}
		if t.kinds[name] != other.kinds[name] {
			return fmt.Errorf("frame: column %q kind mismatch", name)
		}
	}
	for _, name := range t.names {
		switch t.kinds[name] {
		case FloatKind:
			t.floats[name] = append(t.floats[name], other.floats[name]...)
		case StringKind:
			t.strings[name] = append(t.strings[name], other.strings[name]...)
		}
	}
	t.n += other.n
	return nil
}

// IsUndefined reports whether a float value carries the "undefined" marker.
func IsUndefined(v float64) bool { return math.IsNaN(v) }

// Undefined returns the float value used for "not applicable" entries.
func Undefined() float64 { return math.NaN() }
