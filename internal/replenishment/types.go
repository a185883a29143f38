package replenishment

import (
	"github.com/shopspring/decimal"
)

// Record is a single raw row handed over by a data provider. Keys are column
// names; unknown keys are carried along and ignored.
type Record map[string]any

// Fields names the record keys read from each input set.
type Fields struct {
	GroupID     string
	Description string
	Code        string
	OnHand      string // general info
	Receivable  string // orders
	InvoiceDate string // invoice history
	InvoiceQty  string // invoice history
}

// DefaultFields returns the column names used by the bundled providers.
func DefaultFields() Fields {
	return Fields{
		GroupID:     "group_id",
		Description: "description",
		Code:        "code",
		OnHand:      "on_hand_qty",
		Receivable:  "qty_receivable",
		InvoiceDate: "date",
		InvoiceQty:  "qty",
	}
}

// Grade classifies how regularly a group sold over the trailing window.
// Higher means more regular demand.
type Grade int

const (
	GradeIrregular Grade = 0 // none of the rules below hold
	GradeSporadic  Grade = 1 // >= 3 selling months and no two consecutive empty months
	GradeFrequent  Grade = 2 // sold in 2 of the last 3 months
	GradeRegular   Grade = 3 // sold in each of the last 3 months
)

// Valid reports whether g is one of the four defined grades.
func (g Grade) Valid() bool {
	return g >= GradeIrregular && g <= GradeRegular
}

// Policy holds the branch policy parameters of a single group.
type Policy struct {
	SafetyStock  decimal.Decimal // floor for the min threshold
	PurchaseFlag int             // 1 means "do not suggest purchase"
}

// Blocked reports whether the policy forbids purchase suggestions.
func (p Policy) Blocked() bool {
	return p.PurchaseFlag == 1
}

// PeriodQty is the demand of one group in one calendar month.
type PeriodQty struct {
	Period Period
	Qty    decimal.Decimal
}

// GroupRow is one row of the joined per-group table of a branch.
type GroupRow struct {
	GroupID     string
	Description string
	Code        string

	OnHand     decimal.Decimal
	Receivable decimal.Decimal

	// Demand is ordered ascending by period and covers the whole window.
	Demand       []PeriodQty
	TotalDemand  decimal.Decimal
	AvgLastTwo   int64
	AvgLastThree int64
}

// Quantities returns the demand vector without periods.
func (r GroupRow) Quantities() []decimal.Decimal {
	out := make([]decimal.Decimal, len(r.Demand))
	for i, d := range r.Demand {
		out[i] = d.Qty
	}
	return out
}

// Metrics holds the values derived for a group from its row and policy.
type Metrics struct {
	Grade      Grade
	Min        int64
	Max        int64
	Suggestion decimal.Decimal
}

// Recommendation is a fully computed output row.
type Recommendation struct {
	GroupRow

	SafetyStock  decimal.Decimal
	PurchaseFlag int
	PolicyFound  bool

	Metrics
}

// Diagnostics collects the non-fatal data issues met while computing a branch.
type Diagnostics struct {
	BlankGroupIDs    int // rows dropped for a blank group id, all inputs
	SkippedValues    int // unparsable on-hand/receivable values left out of sums
	ClampedNegatives int // negative quantities or monthly demand totals coerced to 0
	OutOfWindowLines int // invoice lines outside an explicit window

	// Groups present in orders or invoices but absent from general info,
	// dropped by the anchored join.
	DroppedOrderGroups   []string
	DroppedInvoiceGroups []string

	MissingPolicies int // groups computed with default policy values
}

// DroppedGroups returns the number of distinct groups lost by the join.
func (d Diagnostics) DroppedGroups() int {
	seen := make(map[string]struct{}, len(d.DroppedOrderGroups)+len(d.DroppedInvoiceGroups))
	for _, id := range d.DroppedOrderGroups {
		seen[id] = struct{}{}
	}
	for _, id := range d.DroppedInvoiceGroups {
		seen[id] = struct{}{}
	}
	return len(seen)
}

// BranchResult is the outcome of running the engine over a single branch.
type BranchResult struct {
	Branch      string
	Periods     []Period
	Rows        []Recommendation
	Diagnostics Diagnostics
}
