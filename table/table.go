// Package table is the minimal tabular container the core operates on.
// spec.md treats the host's data-frame runtime as an external
// collaborator ("whatever data-frame container the host language
// offers"); since Go has no such ambient runtime, this package supplies
// the concrete in-process stand-in: a column-oriented table of boxed
// Go values, typed per column via table.ColumnType.
package table

import (
	"sort"

	"github.com/timmylev/dataclient-go/errs"
)

// Column is one named, typed, dense slice of cell values. len(Values)
// always equals the owning Table's NumRows.
type Column struct {
	Name   string
	Type   ColumnType
	Values []any
}

// Table is an ordered set of same-length columns. Columns preserves the
// canonical on-disk column order (spec.md §3's "column-order").
type Table struct {
	Columns []string
	cols    map[string]*Column
}

// New builds a table from columns, validating equal length and that
// every name in order is present in cols. Entries of cols that order
// does not name are kept in the map but not listed in Columns.
func New(order []string, cols map[string]*Column) (*Table, error) {
	n := -1
	for _, name := range order {
		c, ok := cols[name]
		if !ok {
			return nil, errs.NewSchemaError("column %q listed in order but not provided", name)
		}
		if n == -1 {
			n = len(c.Values)
		} else if len(c.Values) != n {
			return nil, errs.NewSchemaError("column %q has %d rows, expected %d", name, len(c.Values), n)
		}
	}
	cp := make(map[string]*Column, len(cols))
	for k, v := range cols {
		cp[k] = v
	}
	ordCopy := append([]string(nil), order...)
	return &Table{Columns: ordCopy, cols: cp}, nil
}

// Empty returns a zero-row table with the given columns typed as given.
func Empty(order []string, types map[string]ColumnType) *Table {
	cols := make(map[string]*Column, len(order))
	for _, name := range order {
		cols[name] = &Column{Name: name, Type: types[name], Values: nil}
	}
	t, _ := New(order, cols)
	return t
}

func (t *Table) NumRows() int {
	if t == nil || len(t.Columns) == 0 {
		return 0
	}
	return len(t.cols[t.Columns[0]].Values)
}

func (t *Table) NumCols() int { return len(t.Columns) }

func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.cols[name]
	return c, ok
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// Clone deep-copies the column value slices so mutation never reaches
// the caller's table (spec.md §4.7.2 step 2: "Copy the partition to
// avoid mutating the caller's table").
func (t *Table) Clone() *Table {
	cols := make(map[string]*Column, len(t.cols))
	for name, c := range t.cols {
		vals := make([]any, len(c.Values))
		copy(vals, c.Values)
		cols[name] = &Column{Name: c.Name, Type: c.Type, Values: vals}
	}
	return &Table{Columns: append([]string(nil), t.Columns...), cols: cols}
}

// Select returns a new table containing only the rows at the given
// indices, in the given order, across all columns.
func (t *Table) Select(indices []int) *Table {
	cols := make(map[string]*Column, len(t.cols))
	for name, c := range t.cols {
		vals := make([]any, len(indices))
		for i, idx := range indices {
			vals[i] = c.Values[idx]
		}
		cols[name] = &Column{Name: c.Name, Type: c.Type, Values: vals}
	}
	return &Table{Columns: append([]string(nil), t.Columns...), cols: cols}
}

// WithColumnValues returns a shallow-copied table where column name's
// values and type are replaced. Used for Unix-second <-> zoned-timestamp
// conversions (spec.md §4.6.2, §4.7.2 step 2) without touching other
// columns.
func (t *Table) WithColumnValues(name string, values []any, typ ColumnType) *Table {
	cols := make(map[string]*Column, len(t.cols))
	for k, v := range t.cols {
		cols[k] = v
	}
	cols[name] = &Column{Name: name, Type: typ, Values: values}
	return &Table{Columns: append([]string(nil), t.Columns...), cols: cols}
}

// DropColumns returns a new table omitting the named columns from both
// the column order and the column map.
func (t *Table) DropColumns(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	order := make([]string, 0, len(t.Columns))
	cols := make(map[string]*Column, len(t.cols))
	for _, name := range t.Columns {
		if drop[name] {
			continue
		}
		order = append(order, name)
		cols[name] = t.cols[name]
	}
	return &Table{Columns: order, cols: cols}
}

// Project reorders/narrows columns to exactly the given order, dropping
// any column not listed (spec.md §4.7.2 step 4: "column-aligned on
// column_order; extras dropped").
func (t *Table) Project(order []string) (*Table, error) {
	cols := make(map[string]*Column, len(order))
	for _, name := range order {
		c, ok := t.cols[name]
		if !ok {
			return nil, errs.NewSchemaError("missing required column %q", name)
		}
		cols[name] = c
	}
	return New(order, cols)
}

// Concat vertically concatenates tables that share the same column set,
// in the given tables' order, preserving within-table row order.
func Concat(tables ...*Table) (*Table, error) {
	nonEmpty := make([]*Table, 0, len(tables))
	for _, tb := range tables {
		if tb != nil && tb.NumRows() > 0 {
			nonEmpty = append(nonEmpty, tb)
		}
	}
	if len(nonEmpty) == 0 {
		if len(tables) > 0 && tables[0] != nil {
			return tables[0], nil
		}
		return Empty(nil, nil), nil
	}
	order := nonEmpty[0].Columns
	total := 0
	for _, tb := range nonEmpty {
		total += tb.NumRows()
	}
	cols := make(map[string]*Column, len(order))
	for _, name := range order {
		first, _ := nonEmpty[0].Column(name)
		vals := make([]any, 0, total)
		for _, tb := range nonEmpty {
			c, ok := tb.Column(name)
			if !ok {
				return nil, errs.NewSchemaError("column %q missing while concatenating", name)
			}
			vals = append(vals, c.Values...)
		}
		cols[name] = &Column{Name: name, Type: first.Type, Values: vals}
	}
	return New(order, cols)
}

// SortAndDedup sorts rows ascending lexicographically on keyCols (in
// order) and drops exact duplicate rows across ALL columns in
// t.Columns, matching spec.md §4.7.2 steps 5 and property 7's
// sort+dedup semantics.
func (t *Table) SortAndDedup(keyCols []string) (*Table, error) {
	n := t.NumRows()
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	keyColumns := make([]*Column, len(keyCols))
	for i, name := range keyCols {
		c, ok := t.Column(name)
		if !ok {
			return nil, errs.NewSchemaError("sort key column %q not found", name)
		}
		keyColumns[i] = c
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		for _, c := range keyColumns {
			cmp := Compare(c.Values[ia], c.Values[ib])
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})

	allColumns := make([]*Column, len(t.Columns))
	for i, name := range t.Columns {
		c, _ := t.Column(name)
		allColumns[i] = c
	}
	kept := make([]int, 0, n)
	for i, rowIdx := range idx {
		if i > 0 {
			prevIdx := idx[i-1]
			dup := true
			for _, c := range allColumns {
				if !valuesEqual(c.Values[prevIdx], c.Values[rowIdx]) {
					dup = false
					break
				}
			}
			if dup {
				continue
			}
		}
		kept = append(kept, rowIdx)
	}
	return t.Select(kept), nil
}
