package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ResultTable is the time-indexed, column-oriented output of a simulation
// run. Time is ascending and unique, and every entry of Values has the same
// length as Time.
type ResultTable struct {
	// TimeColumn labels the time index when the table is rendered as
	// records. Engines set their native label; normalization rewrites it.
	TimeColumn string
	Time       []float64
	// Columns preserves the order in which the engine reported variables.
	Columns []string
	Values  map[string][]float64
}

// NewResultTable returns an empty table with the given time label and
// column order.
func NewResultTable(timeColumn string, columns []string) *ResultTable {
	cols := make([]string, len(columns))
	copy(cols, columns)
	values := make(map[string][]float64, len(cols))
	for _, c := range cols {
		values[c] = nil
	}
	return &ResultTable{
		TimeColumn: timeColumn,
		Columns:    cols,
		Values:     values,
	}
}

// AppendRow adds one time step. row must hold one value per column, in
// column order.
func (t *ResultTable) AppendRow(at float64, row []float64) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(row), len(t.Columns))
	}
	if n := len(t.Time); n > 0 && !(at > t.Time[n-1]) {
		return fmt.Errorf("time %v does not follow %v", at, t.Time[n-1])
	}
	t.Time = append(t.Time, at)
	for i, c := range t.Columns {
		t.Values[c] = append(t.Values[c], row[i])
	}
	return nil
}

// Rows reports the number of time steps in the table.
func (t *ResultTable) Rows() int {
	if t == nil {
		return 0
	}
	return len(t.Time)
}

// HasColumn reports whether name is one of the table's columns.
func (t *ResultTable) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	_, ok := t.Values[name]
	return ok
}

// Series extracts a column as a trajectory over the table's time index.
func (t *ResultTable) Series(column string) (Series, bool) {
	if t == nil {
		return nil, false
	}
	vals, ok := t.Values[column]
	if !ok {
		return nil, false
	}
	out := make(Series, len(t.Time))
	for i, at := range t.Time {
		out[i] = Point{Time: at, Value: vals[i]}
	}
	return out, true
}

// RenameColumns returns a copy of the table with the time label replaced and
// each column renamed through rename. Column order is preserved.
func (t *ResultTable) RenameColumns(timeColumn string, rename func(string) string) *ResultTable {
	out := &ResultTable{
		TimeColumn: timeColumn,
		Time:       append([]float64(nil), t.Time...),
		Columns:    make([]string, 0, len(t.Columns)),
		Values:     make(map[string][]float64, len(t.Columns)),
	}
	for _, c := range t.Columns {
		name := rename(c)
		if _, dup := out.Values[name]; !dup {
			out.Columns = append(out.Columns, name)
		}
		out.Values[name] = append([]float64(nil), t.Values[c]...)
	}
	return out
}

// MarshalJSON renders the table as an array of records, one per time step,
// with the time label first and the remaining columns in table order.
// Non-finite values are written as null.
func (t *ResultTable) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	keys := make([][]byte, len(t.Columns))
	for i, c := range t.Columns {
		k, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	timeKey, err := json.Marshal(t.TimeColumn)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for row, at := range t.Time {
		if row > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		buf.Write(timeKey)
		buf.WriteByte(':')
		writeNumber(&buf, at)
		for i, c := range t.Columns {
			buf.WriteByte(',')
			buf.Write(keys[i])
			buf.WriteByte(':')
			writeNumber(&buf, t.Values[c][row])
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func writeNumber(buf *bytes.Buffer, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		buf.WriteString("null")
		return
	}
	buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
}
