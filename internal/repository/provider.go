package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-py/replenish/internal/replenishment"
)

// DataProvider supplies the raw records of a branch.
type DataProvider interface {
	GeneralInfo(ctx context.Context, branch string) ([]replenishment.Record, error)
	Orders(ctx context.Context, branch string) ([]replenishment.Record, error)
	Invoices(ctx context.Context, branch string) ([]replenishment.Record, error)
}

// PolicyProvider supplies the policy parameters of a branch keyed by group id.
type PolicyProvider interface {
	Policies(ctx context.Context, branch string) (map[string]replenishment.Policy, error)
}

// AnalysisProvider supplies the sale lines and purchase order lines used by
// the inventory analysis report. Sale lines carry group_id and qty, order
// lines group_id and price.
type AnalysisProvider interface {
	SalesLines(ctx context.Context, branch string, since time.Time) ([]replenishment.Record, error)
	OrderCosts(ctx context.Context, branch string, since time.Time) ([]replenishment.Record, error)
}

// BranchLoader combines a data and a policy provider into the input of one
// branch computation.
type BranchLoader struct {
	Data     DataProvider
	Policies PolicyProvider
}

// NewBranchLoader creates a loader. A nil policy provider yields default
// policies for every group.
func NewBranchLoader(data DataProvider, policies PolicyProvider) *BranchLoader {
	return &BranchLoader{Data: data, Policies: policies}
}

// Load fetches the three record sets and the policies of a branch.
func (l *BranchLoader) Load(ctx context.Context, branch string) (replenishment.BranchInput, error) {
	in := replenishment.BranchInput{Branch: branch}

	var err error
	if in.General, err = l.Data.GeneralInfo(ctx, branch); err != nil {
		return in, fmt.Errorf("general info: %w", err)
	}
	if in.Orders, err = l.Data.Orders(ctx, branch); err != nil {
		return in, fmt.Errorf("orders: %w", err)
	}
	if in.Invoices, err = l.Data.Invoices(ctx, branch); err != nil {
		return in, fmt.Errorf("invoices: %w", err)
	}

	if l.Policies != nil {
		if in.Policies, err = l.Policies.Policies(ctx, branch); err != nil {
			return in, fmt.Errorf("policies: %w", err)
		}
	}
	return in, nil
}
