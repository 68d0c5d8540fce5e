package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
)

// naToken is how undefined float values appear in serialized output.
const naToken = "NA"

// WriteCSV serializes the table with a leading row-index column. Undefined
// floats are written as NA. Row order is table order; nothing is filtered.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := append([]string{"index"}, t.names...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(header))
	for i := 0; i < t.n; i++ {
		record[0] = strconv.Itoa(i)
		for j, name := range t.names {
			switch t.kinds[name] {
			case FloatKind:
				v := t.floats[name][i]
				if math.IsNaN(v) {
					record[j+1] = naToken
				} else {
					record[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
				}
			case StringKind:
				record[j+1] = t.strings[name][i]
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a table previously written by WriteCSV, dropping the leading
// index column. A column is typed float when every value parses as a float or
// is NA; otherwise it is kept as a string column.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read csv: empty input")
	}

	header := records[0]
	rows := records[1:]
	start := 0
	if len(header) > 0 && header[0] == "index" {
		start = 1
	}

	t := New(len(rows))
	for j := start; j < len(header); j++ {
		floats := make([]float64, len(rows))
		isFloat := true
		for i, rec := range rows {
			if rec[j] == naToken {
				floats[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(rec[j], 64)
			if err != nil {
				isFloat = false
				break
			}
			floats[i] = v
		}
		if isFloat {
			if err := t.AppendFloatColumn(header[j], floats); err != nil {
				return nil, err
			}
			continue
		}
		strs := make([]string, len(rows))
		for i, rec := range rows {
			strs[i] = rec[j]
		}
		if err := t.AppendStringColumn(header[j], strs); err != nil {
			return nil, err
		}
	}
	return t, nil
}
