package replenishment

import (
	"github.com/rs/zerolog/log"
)

// BranchInput carries the raw records and policies of a single branch.
type BranchInput struct {
	Branch   string
	General  []Record
	Orders   []Record
	Invoices []Record
	// Policies is keyed by group id. Groups without an entry get the zero
	// policy (no safety stock, purchase allowed).
	Policies map[string]Policy
}

// Engine runs the join, classification, threshold and suggestion stages for
// one branch. It holds no per-run state and is safe for concurrent use.
type Engine struct {
	joiner     *Joiner
	calculator *Calculator
}

// NewEngine creates an engine for the given column names and window.
func NewEngine(fields Fields, window Window) (*Engine, error) {
	joiner, err := NewJoiner(fields, window)
	if err != nil {
		return nil, err
	}
	return &Engine{joiner: joiner, calculator: NewCalculator()}, nil
}

// Run computes the recommendations of a branch.
func (e *Engine) Run(in BranchInput) (*BranchResult, error) {
	joined, err := e.joiner.Join(in.Branch, in.General, in.Orders, in.Invoices)
	if err != nil {
		return nil, err
	}

	diag := joined.Diagnostics
	rows := make([]Recommendation, 0, len(joined.Rows))
	for i := range joined.Rows {
		row := &joined.Rows[i]
		policy, found := in.Policies[row.GroupID]
		if !found {
			diag.MissingPolicies++
		}
		rows = append(rows, Recommendation{
			GroupRow:     *row,
			SafetyStock:  policy.SafetyStock,
			PurchaseFlag: policy.PurchaseFlag,
			PolicyFound:  found,
			Metrics:      e.calculator.Calculate(row, policy),
		})
	}

	if dropped := diag.DroppedGroups(); dropped > 0 {
		log.Warn().
			Str("branch", in.Branch).
			Int("dropped_groups", dropped).
			Strs("order_groups", diag.DroppedOrderGroups).
			Strs("invoice_groups", diag.DroppedInvoiceGroups).
			Msg("groups missing from general info were dropped by the join")
	}
	if diag.SkippedValues > 0 || diag.ClampedNegatives > 0 {
		log.Warn().
			Str("branch", in.Branch).
			Int("skipped_values", diag.SkippedValues).
			Int("clamped_negatives", diag.ClampedNegatives).
			Msg("quantity values were coerced")
	}
	log.Debug().
		Str("branch", in.Branch).
		Int("groups", len(rows)).
		Int("periods", len(joined.Periods)).
		Int("missing_policies", diag.MissingPolicies).
		Msg("branch computed")

	return &BranchResult{
		Branch:      in.Branch,
		Periods:     joined.Periods,
		Rows:        rows,
		Diagnostics: diag,
	}, nil
}
