package pipeline

import (
	"bytes"
	"sort"

	"github.com/shopspring/decimal"
)

// Output column names.
const (
	ColGroupID      = "group_id"
	ColDescription  = "description"
	ColCode         = "code"
	ColOnHand       = "on_hand_qty"
	ColReceivable   = "qty_receivable"
	ColTotalDemand  = "total_demand"
	ColAvgLastTwo   = "avg_last_two"
	ColAvgLastThree = "avg_last_three"
	ColSafetyStock  = "safety_stock"
	ColPurchaseFlag = "purchase_flag"
	ColGrade        = "grade"
	ColMin          = "min"
	ColMax          = "max"
	ColSuggestion   = "suggestion"
)

// KeyColumns identify a row in every table and are never branch-qualified.
var KeyColumns = []string{ColGroupID, ColDescription, ColCode}

// GroupKey is the identity a table row is joined on.
type GroupKey struct {
	GroupID     string
	Description string
	Code        string
}

func (k GroupKey) less(o GroupKey) bool {
	if k.GroupID != o.GroupID {
		return k.GroupID < o.GroupID
	}
	if k.Description != o.Description {
		return k.Description < o.Description
	}
	return k.Code < o.Code
}

// Cell is a nullable numeric value.
type Cell struct {
	Value decimal.Decimal
	Valid bool
}

// DecimalCell returns a non-null cell.
func DecimalCell(v decimal.Decimal) Cell {
	return Cell{Value: v, Valid: true}
}

// IntCell returns a non-null integral cell.
func IntCell(v int64) Cell {
	return Cell{Value: decimal.NewFromInt(v), Valid: true}
}

// String renders the cell, null as an empty string.
func (c Cell) String() string {
	if !c.Valid {
		return ""
	}
	return c.Value.String()
}

// MarshalJSON renders the cell as a JSON number or null.
func (c Cell) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return []byte(c.Value.String()), nil
}

func (c *Cell) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*c = Cell{}
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*c = DecimalCell(d)
	return nil
}

// Row is one keyed row of a table. Cells follow Table.Columns.
type Row struct {
	Key   GroupKey
	Cells []Cell
}

// Table is a result table: key columns followed by value columns.
type Table struct {
	Columns []string
	Rows    []Row
}

// Header returns the key columns followed by the value columns.
func (t *Table) Header() []string {
	out := make([]string, 0, len(KeyColumns)+len(t.Columns))
	out = append(out, KeyColumns...)
	return append(out, t.Columns...)
}

// ColumnIndex returns the position of a value column or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Find returns the row with the given group id. When several rows share the
// id (different descriptions across branches) the first one wins.
func (t *Table) Find(groupID string) (Row, bool) {
	for _, r := range t.Rows {
		if r.Key.GroupID == groupID {
			return r, true
		}
	}
	return Row{}, false
}

// Value returns the cell of a row at the named column.
func (t *Table) Value(groupID, column string) (Cell, bool) {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return Cell{}, false
	}
	row, ok := t.Find(groupID)
	if !ok {
		return Cell{}, false
	}
	return row.Cells[idx], true
}

// Strings renders a row as text fields following Header.
func (t *Table) Strings(r Row) []string {
	out := make([]string, 0, len(KeyColumns)+len(r.Cells))
	out = append(out, r.Key.GroupID, r.Key.Description, r.Key.Code)
	for _, c := range r.Cells {
		out = append(out, c.String())
	}
	return out
}

// Records returns the rows as column-name maps, null cells as nil.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, 0, len(t.Rows))
	for _, r := range t.Rows {
		rec := make(map[string]any, len(KeyColumns)+len(t.Columns))
		rec[ColGroupID] = r.Key.GroupID
		rec[ColDescription] = r.Key.Description
		rec[ColCode] = r.Key.Code
		for i, col := range t.Columns {
			if r.Cells[i].Valid {
				rec[col] = r.Cells[i]
			} else {
				rec[col] = nil
			}
		}
		out = append(out, rec)
	}
	return out
}

func (t *Table) sortRows() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		return t.Rows[i].Key.less(t.Rows[j].Key)
	})
}
