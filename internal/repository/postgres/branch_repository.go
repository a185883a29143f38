package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/andresuchdata/autopo-py/replenish/internal/replenishment"
)

// branchRepository reads branch inputs from the replenishment schema. It
// implements the data, policy and analysis providers.
type branchRepository struct {
	db *DB
}

func NewBranchRepository(db *DB) *branchRepository {
	return &branchRepository{db: db}
}

func (r *branchRepository) records(ctx context.Context, what, query string, args ...interface{}) ([]replenishment.Record, error) {
	rows, err := r.db.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error getting %s: %w", what, err)
	}
	out := make([]replenishment.Record, len(rows))
	for i, row := range rows {
		out[i] = replenishment.Record(row)
	}
	return out, nil
}

func (r *branchRepository) GeneralInfo(ctx context.Context, branch string) ([]replenishment.Record, error) {
	query := `
		SELECT group_id, description, code, on_hand_qty
		FROM stock_general
		WHERE branch = $1
		ORDER BY id
	`
	return r.records(ctx, "general info", query, branch)
}

func (r *branchRepository) Orders(ctx context.Context, branch string) ([]replenishment.Record, error) {
	query := `
		SELECT group_id, qty_receivable
		FROM purchase_orders
		WHERE branch = $1 AND qty_receivable <> 0
	`
	return r.records(ctx, "orders", query, branch)
}

func (r *branchRepository) Invoices(ctx context.Context, branch string) ([]replenishment.Record, error) {
	query := `
		SELECT group_id, issued_at AS date, qty
		FROM invoice_lines
		WHERE branch = $1
	`
	return r.records(ctx, "invoices", query, branch)
}

func (r *branchRepository) SalesLines(ctx context.Context, branch string, since time.Time) ([]replenishment.Record, error) {
	query := `
		SELECT group_id, issued_at AS date, qty
		FROM invoice_lines
		WHERE branch = $1 AND issued_at >= $2
	`
	return r.records(ctx, "sales lines", query, branch, since)
}

func (r *branchRepository) OrderCosts(ctx context.Context, branch string, since time.Time) ([]replenishment.Record, error) {
	query := `
		SELECT group_id, issued_at AS date, unit_price AS price
		FROM purchase_orders
		WHERE branch = $1 AND issued_at >= $2
	`
	return r.records(ctx, "order costs", query, branch, since)
}

// Policies reads the branch policy table. Rows are unique per branch and group.
func (r *branchRepository) Policies(ctx context.Context, branch string) (map[string]replenishment.Policy, error) {
	var rows []struct {
		GroupID      string         `db:"group_id"`
		SafetyStock  sql.NullString `db:"safety_stock"`
		PurchaseFlag sql.NullInt64  `db:"purchase_flag"`
	}
	query := `
		SELECT group_id, safety_stock::text AS safety_stock, purchase_flag
		FROM branch_policies
		WHERE branch = $1
	`
	release, err := r.db.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := r.db.SelectContext(ctx, &rows, query, branch); err != nil {
		return nil, fmt.Errorf("error getting policies: %w", err)
	}

	out := make(map[string]replenishment.Policy, len(rows))
	for _, row := range rows {
		var p replenishment.Policy
		if row.SafetyStock.Valid {
			q, err := replenishment.CoerceQuantity(row.SafetyStock.String)
			if err == nil {
				p.SafetyStock = q
			}
		}
		if row.PurchaseFlag.Valid {
			p.PurchaseFlag = int(row.PurchaseFlag.Int64)
		}
		out[row.GroupID] = p
	}
	return out, nil
}

// SavePolicies replaces the policies of a branch in one transaction.
func (r *branchRepository) SavePolicies(ctx context.Context, branch string, policies map[string]replenishment.Policy) error {
	ids := make([]string, 0, len(policies))
	for id := range policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		// 1. Drop the previous policy set
		if _, err := tx.ExecContext(ctx, `DELETE FROM branch_policies WHERE branch = $1`, branch); err != nil {
			return fmt.Errorf("failed to clear policies: %w", err)
		}

		// 2. Insert the new one
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO branch_policies (branch, group_id, safety_stock, purchase_flag, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, id := range ids {
			p := policies[id]
			if _, err := stmt.ExecContext(ctx, branch, id, p.SafetyStock.String(), p.PurchaseFlag); err != nil {
				return fmt.Errorf("failed to insert policy %s: %w", id, err)
			}
		}
		return nil
	})
}
