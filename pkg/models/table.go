package models

import (
	"fmt"
)

// Table is a column-indexed record set with a dynamic schema.
// Access by column name always goes through an explicit presence check, so a
// missing column is a normal result rather than a panic.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// NewTable creates an empty table with the given columns.
// Repeated names get a numeric suffix ("value", "value_2") so every column stays addressable.
func NewTable(columns []string) *Table {
	t := &Table{
		columns: make([]string, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for _, c := range columns {
		name := c
		for n := 2; ; n++ {
			if _, dup := t.index[name]; !dup {
				break
			}
			name = fmt.Sprintf("%s_%d", c, n)
		}
		t.index[name] = len(t.columns)
		t.columns = append(t.columns, name)
	}
	return t
}

// NewTableFromRows builds a table and appends rows, failing on width mismatches.
func NewTableFromRows(columns []string, rows [][]any) (*Table, error) {
	t := NewTable(columns)
	for _, r := range rows {
		if err := t.AppendRow(r); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// HasColumn reports whether the column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Empty is true for a nil table or one without rows.
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// AppendRow adds a row. The row is copied.
func (t *Table) AppendRow(values []any) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.columns))
	}
	row := make([]any, len(values))
	copy(row, values)
	t.rows = append(t.rows, row)
	return nil
}

// AppendRecord adds a row from a name-keyed record. Unknown keys are rejected,
// absent columns become nil.
func (t *Table) AppendRecord(record map[string]any) error {
	row := make([]any, len(t.columns))
	for k, v := range record {
		i, ok := t.index[k]
		if !ok {
			return fmt.Errorf("unknown column %q", k)
		}
		row[i] = v
	}
	t.rows = append(t.rows, row)
	return nil
}

// Value returns the cell at (row, column). ok is false when the column is absent
// or the row is out of range.
func (t *Table) Value(row int, column string) (any, bool) {
	i, ok := t.index[column]
	if !ok || row < 0 || row >= len(t.rows) {
		return nil, false
	}
	return t.rows[row][i], true
}

// Column returns a copy of every value in the column.
func (t *Table) Column(name string) ([]any, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	out := make([]any, len(t.rows))
	for r, row := range t.rows {
		out[r] = row[i]
	}
	return out, true
}

// Record returns row i as a map.
func (t *Table) Record(i int) map[string]any {
	rec := make(map[string]any, len(t.columns))
	for c, name := range t.columns {
		rec[name] = t.rows[i][c]
	}
	return rec
}

// Records returns every row as a map, in row order.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, len(t.rows))
	for i := range t.rows {
		out[i] = t.Record(i)
	}
	return out
}

// SetColumn assigns value to every row of the column, adding the column if needed.
func (t *Table) SetColumn(name string, value any) {
	i, ok := t.index[name]
	if !ok {
		i = len(t.columns)
		t.index[name] = i
		t.columns = append(t.columns, name)
		for r := range t.rows {
			t.rows[r] = append(t.rows[r], value)
		}
		return
	}
	for r := range t.rows {
		t.rows[r][i] = value
	}
}

// Filter returns a new table with the rows for which keep returns true.
func (t *Table) Filter(keep func(row int) bool) *Table {
	out := NewTable(t.columns)
	for r, row := range t.rows {
		if keep(r) {
			out.rows = append(out.rows, cloneRow(row))
		}
	}
	return out
}

// Take returns a new table made of the given row indices, in that order.
func (t *Table) Take(rows []int) *Table {
	out := NewTable(t.columns)
	out.rows = make([][]any, 0, len(rows))
	for _, r := range rows {
		out.rows = append(out.rows, cloneRow(t.rows[r]))
	}
	return out
}

// Select projects the table onto the listed columns that exist, in list order.
func (t *Table) Select(columns []string) *Table {
	keep := make([]string, 0, len(columns))
	idx := make([]int, 0, len(columns))
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		i, ok := t.index[c]
		if !ok || seen[c] {
			continue
		}
		seen[c] = true
		keep = append(keep, c)
		idx = append(idx, i)
	}
	out := NewTable(keep)
	out.rows = make([][]any, len(t.rows))
	for r, row := range t.rows {
		nr := make([]any, len(idx))
		for j, i := range idx {
			nr[j] = row[i]
		}
		out.rows[r] = nr
	}
	return out
}

// Clone returns a deep copy of the row structure.
func (t *Table) Clone() *Table {
	return t.Filter(func(int) bool { return true })
}

// Concat stacks tables vertically. Columns are the union in first-seen order;
// cells a table does not have are nil. Nil tables are skipped.
func Concat(tables ...*Table) *Table {
	var columns []string
	seen := make(map[string]bool)
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.columns {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
	}

	out := NewTable(columns)
	for _, t := range tables {
		if t == nil {
			continue
		}
		mapping := make([]int, len(t.columns))
		for i, c := range t.columns {
			mapping[i] = out.index[c]
		}
		for _, row := range t.rows {
			nr := make([]any, len(columns))
			for i, v := range row {
				nr[mapping[i]] = v
			}
			out.rows = append(out.rows, nr)
		}
	}
	return out
}

func cloneRow(row []any) []any {
	out := make([]any, len(row))
	copy(out, row)
	return out
}
