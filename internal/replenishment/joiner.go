package replenishment

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// JoinedTable is the consolidated per-group table of one branch.
type JoinedTable struct {
	Periods     []Period
	Rows        []GroupRow
	Diagnostics Diagnostics
}

// Joiner merges the general info, orders and invoice history of a branch into
// one table anchored on general info, and builds the monthly demand pivot.
type Joiner struct {
	fields Fields
	window Window
}

// NewJoiner creates a joiner for the given column names and history window.
func NewJoiner(fields Fields, window Window) (*Joiner, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	if fields.GroupID == "" {
		return nil, errors.New("group id field name is required")
	}
	return &Joiner{fields: fields, window: window}, nil
}

type generalAgg struct {
	description string
	code        string
	onHand      decimal.Decimal
	seenDesc    bool
	seenCode    bool
}

// Join builds the joined table of a branch.
func (j *Joiner) Join(branch string, general, orders, invoices []Record) (*JoinedTable, error) {
	var diag Diagnostics

	// 1) General info: first description/code, summed on-hand.
	generalByID := make(map[string]*generalAgg)
	for _, rec := range general {
		id, ok := CoerceGroupID(rec[j.fields.GroupID])
		if !ok {
			diag.BlankGroupIDs++
			continue
		}
		agg, exists := generalByID[id]
		if !exists {
			agg = &generalAgg{}
			generalByID[id] = agg
		}
		if !agg.seenDesc {
			if v, ok := textValue(rec[j.fields.Description]); ok {
				agg.description, agg.seenDesc = v, true
			}
		}
		if !agg.seenCode {
			if v, ok := textValue(rec[j.fields.Code]); ok {
				agg.code, agg.seenCode = v, true
			}
		}
		q, ok := j.optionalQuantity(rec[j.fields.OnHand], &diag)
		if ok {
			agg.onHand = agg.onHand.Add(q)
		}
	}

	// 2) Orders: summed receivable.
	receivable := make(map[string]decimal.Decimal)
	for _, rec := range orders {
		id, ok := CoerceGroupID(rec[j.fields.GroupID])
		if !ok {
			diag.BlankGroupIDs++
			continue
		}
		q, ok := j.optionalQuantity(rec[j.fields.Receivable], &diag)
		if !ok {
			if _, seen := receivable[id]; !seen {
				receivable[id] = decimal.Zero
			}
			continue
		}
		receivable[id] = receivable[id].Add(q)
	}

	// 3) Invoices: summed per (group, month).
	demand := make(map[string]map[Period]decimal.Decimal)
	var first, last Period
	for _, rec := range invoices {
		id, ok := CoerceGroupID(rec[j.fields.GroupID])
		if !ok {
			diag.BlankGroupIDs++
			continue
		}
		period, err := CoercePeriod(rec[j.fields.InvoiceDate])
		if err != nil {
			return nil, &DataQualityError{Branch: branch, Set: "invoices", Field: j.fields.InvoiceDate, GroupID: id, Value: rec[j.fields.InvoiceDate], Err: err}
		}
		qty, err := CoerceQuantity(rec[j.fields.InvoiceQty])
		if err != nil {
			return nil, &DataQualityError{Branch: branch, Set: "invoices", Field: j.fields.InvoiceQty, GroupID: id, Value: rec[j.fields.InvoiceQty], Err: err}
		}

		byPeriod, ok := demand[id]
		if !ok {
			byPeriod = make(map[Period]decimal.Decimal)
			demand[id] = byPeriod
		}
		byPeriod[period] = byPeriod[period].Add(qty)

		if first.IsZero() || period.Before(first) {
			first = period
		}
		if last.IsZero() || last.Before(period) {
			last = period
		}
	}

	// Returns net against the sales of their month; only the monthly total
	// is clamped.
	for _, byPeriod := range demand {
		for p, q := range byPeriod {
			if q, clamped := nonNegative(q); clamped {
				byPeriod[p] = q
				diag.ClampedNegatives++
			}
		}
	}

	// 4) Period axis.
	periods, err := j.axis(branch, first, last)
	if err != nil {
		return nil, err
	}
	inWindow := make(map[Period]struct{}, len(periods))
	for _, p := range periods {
		inWindow[p] = struct{}{}
	}
	for _, byPeriod := range demand {
		for p := range byPeriod {
			if _, ok := inWindow[p]; !ok {
				diag.OutOfWindowLines++
			}
		}
	}

	// 5) Left join anchored on general info.
	ids := make([]string, 0, len(generalByID))
	for id := range generalByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]GroupRow, 0, len(ids))
	for _, id := range ids {
		agg := generalByID[id]
		row := GroupRow{
			GroupID:     id,
			Description: agg.description,
			Code:        agg.code,
			OnHand:      agg.onHand,
			Receivable:  receivable[id],
			Demand:      make([]PeriodQty, len(periods)),
		}
		byPeriod := demand[id]
		for i, p := range periods {
			qty := byPeriod[p]
			row.Demand[i] = PeriodQty{Period: p, Qty: qty}
			row.TotalDemand = row.TotalDemand.Add(qty)
		}
		row.AvgLastTwo, row.AvgLastThree = trailingAverages(row.Quantities())
		rows = append(rows, row)
	}

	diag.DroppedOrderGroups = missingFrom(receivable, generalByID)
	diag.DroppedInvoiceGroups = missingFrom(demand, generalByID)

	return &JoinedTable{Periods: periods, Rows: rows, Diagnostics: diag}, nil
}

func (j *Joiner) axis(branch string, first, last Period) ([]Period, error) {
	if !j.window.End.IsZero() {
		return j.window.Periods(), nil
	}
	if first.IsZero() {
		return nil, &WindowError{Branch: branch, Want: j.window.Size}
	}
	periods := axisFromObserved(first, last)
	if len(periods) != j.window.Size {
		return nil, &WindowError{Branch: branch, Want: j.window.Size, Got: len(periods), First: first, Last: last}
	}
	return periods, nil
}

// optionalQuantity coerces a summed quantity whose unparsable values are left
// out of the sum rather than failing the branch.
func (j *Joiner) optionalQuantity(v any, diag *Diagnostics) (decimal.Decimal, bool) {
	q, err := CoerceQuantity(v)
	if err != nil {
		diag.SkippedValues++
		return decimal.Zero, false
	}
	q, clamped := nonNegative(q)
	if clamped {
		diag.ClampedNegatives++
	}
	return q, true
}

var (
	two   = decimal.NewFromInt(2)
	three = decimal.NewFromInt(3)
)

// trailingAverages returns ceil(mean(p[n-3], p[n-2])) and
// ceil(mean(p[n-5], p[n-4], p[n-3])). The most recent period is excluded from
// both. q must hold at least MinWindowSize values.
func trailingAverages(q []decimal.Decimal) (lastTwo, lastThree int64) {
	n := len(q)
	if n < MinWindowSize {
		return 0, 0
	}
	lastTwo = q[n-3].Add(q[n-2]).Div(two).Ceil().IntPart()
	lastThree = q[n-5].Add(q[n-4]).Add(q[n-3]).Div(three).Ceil().IntPart()
	return lastTwo, lastThree
}

func textValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return CoerceGroupID(t)
	}
}

func missingFrom[V any](set map[string]V, anchor map[string]*generalAgg) []string {
	var out []string
	for id := range set {
		if _, ok := anchor[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
