package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/autopo-py/replenish/internal/replenishment"
)

// View names.
const (
	ViewStandard = "standard"
	ViewSummary  = "summary"
	ViewDetail   = "detail"
)

// ErrUnknownView is returned for a view name that is not configured.
var ErrUnknownView = errors.New("unknown view")

var (
	standardColumns = []string{
		ColOnHand, ColReceivable, ColTotalDemand, ColAvgLastTwo, ColAvgLastThree,
		ColGrade, ColMin, ColMax, ColSuggestion,
	}
	summaryColumns = []string{ColGrade, ColSafetyStock, ColMin, ColMax}
)

// View selects the columns of a result table and how branch cells missing
// from a merged table are rendered.
type View struct {
	Name string
	// FillMissing writes 0 into the cells of branches that have no row for a
	// group. When false those cells stay null.
	FillMissing bool
	// Fixed, when set, replaces the named column set.
	Fixed []string
}

// Columns returns the value columns of the view for a branch with the given
// period axis.
func (v View) Columns(periods []replenishment.Period) []string {
	if len(v.Fixed) > 0 {
		return append([]string(nil), v.Fixed...)
	}
	switch v.Name {
	case ViewSummary:
		return append([]string(nil), summaryColumns...)
	case ViewDetail:
		cols := make([]string, 0, len(periods)+11)
		cols = append(cols, ColOnHand, ColReceivable)
		for _, p := range periods {
			cols = append(cols, p.String())
		}
		return append(cols,
			ColTotalDemand, ColAvgLastTwo, ColAvgLastThree,
			ColSafetyStock, ColPurchaseFlag,
			ColGrade, ColMin, ColMax, ColSuggestion,
		)
	default:
		return append([]string(nil), standardColumns...)
	}
}

// Views is the set of configured views keyed by name.
type Views map[string]View

// DefaultViews returns the standard, summary and detail views. Only summary
// fills missing branch cells.
func DefaultViews() Views {
	return Views{
		ViewStandard: {Name: ViewStandard},
		ViewSummary:  {Name: ViewSummary, FillMissing: true},
		ViewDetail:   {Name: ViewDetail},
	}
}

// Get returns the view by name; an empty name selects the standard view.
func (vs Views) Get(name string) (View, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = ViewStandard
	}
	v, ok := vs[name]
	if !ok {
		return View{}, fmt.Errorf("%w: %q", ErrUnknownView, name)
	}
	return v, nil
}

// cellOf extracts a view column from a computed row.
func cellOf(rec *replenishment.Recommendation, column string) Cell {
	switch column {
	case ColOnHand:
		return DecimalCell(rec.OnHand)
	case ColReceivable:
		return DecimalCell(rec.Receivable)
	case ColTotalDemand:
		return DecimalCell(rec.TotalDemand)
	case ColAvgLastTwo:
		return IntCell(rec.AvgLastTwo)
	case ColAvgLastThree:
		return IntCell(rec.AvgLastThree)
	case ColSafetyStock:
		return DecimalCell(rec.SafetyStock)
	case ColPurchaseFlag:
		return IntCell(int64(rec.PurchaseFlag))
	case ColGrade:
		return IntCell(int64(rec.Grade))
	case ColMin:
		return IntCell(rec.Min)
	case ColMax:
		return IntCell(rec.Max)
	case ColSuggestion:
		return DecimalCell(rec.Suggestion)
	}
	for _, d := range rec.Demand {
		if d.Period.String() == column {
			return DecimalCell(d.Qty)
		}
	}
	return Cell{}
}

func keyOf(rec *replenishment.Recommendation) GroupKey {
	return GroupKey{GroupID: rec.GroupID, Description: rec.Description, Code: rec.Code}
}

// BranchTable renders the result of a single branch with unqualified columns.
func BranchTable(result *replenishment.BranchResult, view View) *Table {
	cols := view.Columns(result.Periods)
	t := &Table{Columns: cols, Rows: make([]Row, 0, len(result.Rows))}
	for i := range result.Rows {
		rec := &result.Rows[i]
		cells := make([]Cell, len(cols))
		for c, col := range cols {
			cells[c] = cellOf(rec, col)
		}
		t.Rows = append(t.Rows, Row{Key: keyOf(rec), Cells: cells})
	}
	t.sortRows()
	return t
}

// BranchColumn qualifies a value column with its branch.
func BranchColumn(column, branch string) string {
	return column + "_" + branch
}

// Merge outer-joins the results of several branches on the group key. Every
// value column is qualified with its branch; key columns are not. Cells of a
// branch without a row for a group are null, or 0 when the view fills.
func Merge(results []*replenishment.BranchResult, view View) *Table {
	branches := make([]string, len(results))
	tables := make([]*Table, len(results))
	for i, res := range results {
		branches[i] = res.Branch
		tables[i] = BranchTable(res, view)
	}
	return MergeTables(branches, tables, view.FillMissing)
}

// MergeTables outer-joins per-branch tables on the group key, qualifying the
// value columns of tables[i] with branches[i].
func MergeTables(branches []string, tables []*Table, fillMissing bool) *Table {
	t := &Table{}
	offsets := make([]int, len(tables))
	for i, bt := range tables {
		offsets[i] = len(t.Columns)
		for _, col := range bt.Columns {
			t.Columns = append(t.Columns, BranchColumn(col, branches[i]))
		}
	}

	missing := Cell{}
	if fillMissing {
		missing = IntCell(0)
	}

	index := make(map[GroupKey]int)
	rowFor := func(key GroupKey) *Row {
		if i, ok := index[key]; ok {
			return &t.Rows[i]
		}
		cells := make([]Cell, len(t.Columns))
		for c := range cells {
			cells[c] = missing
		}
		index[key] = len(t.Rows)
		t.Rows = append(t.Rows, Row{Key: key, Cells: cells})
		return &t.Rows[len(t.Rows)-1]
	}

	for i, bt := range tables {
		for _, r := range bt.Rows {
			row := rowFor(r.Key)
			copy(row.Cells[offsets[i]:offsets[i]+len(bt.Columns)], r.Cells)
		}
	}

	t.sortRows()
	return t
}
