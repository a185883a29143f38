// Package memory holds branch data in process memory.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-py/replenish/internal/replenishment"
)

// Branch is the full data set of one branch.
type Branch struct {
	General  []replenishment.Record
	Orders   []replenishment.Record
	Invoices []replenishment.Record
	Policies map[string]replenishment.Policy

	// Sales and OrderLines feed the inventory analysis. Each record may carry
	// a time.Time under "date"; records without one are always included.
	Sales      []replenishment.Record
	OrderLines []replenishment.Record
}

// Store serves branches from memory. It implements the data, policy and
// analysis providers.
type Store struct {
	mu       sync.RWMutex
	branches map[string]Branch
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{branches: make(map[string]Branch)}
}

// Put replaces the data of a branch.
func (s *Store) Put(branch string, data Branch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branches[branch] = data
}

func (s *Store) get(ctx context.Context, branch string) (Branch, error) {
	if err := ctx.Err(); err != nil {
		return Branch{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.branches[branch]
	if !ok {
		return Branch{}, fmt.Errorf("branch %s: no data", branch)
	}
	return b, nil
}

func (s *Store) GeneralInfo(ctx context.Context, branch string) ([]replenishment.Record, error) {
	b, err := s.get(ctx, branch)
	return b.General, err
}

func (s *Store) Orders(ctx context.Context, branch string) ([]replenishment.Record, error) {
	b, err := s.get(ctx, branch)
	return b.Orders, err
}

func (s *Store) Invoices(ctx context.Context, branch string) ([]replenishment.Record, error) {
	b, err := s.get(ctx, branch)
	return b.Invoices, err
}

func (s *Store) Policies(ctx context.Context, branch string) (map[string]replenishment.Policy, error) {
	b, err := s.get(ctx, branch)
	return b.Policies, err
}

func (s *Store) SalesLines(ctx context.Context, branch string, since time.Time) ([]replenishment.Record, error) {
	b, err := s.get(ctx, branch)
	if err != nil {
		return nil, err
	}
	return filterSince(b.Sales, since), nil
}

func (s *Store) OrderCosts(ctx context.Context, branch string, since time.Time) ([]replenishment.Record, error) {
	b, err := s.get(ctx, branch)
	if err != nil {
		return nil, err
	}
	return filterSince(b.OrderLines, since), nil
}

func filterSince(recs []replenishment.Record, since time.Time) []replenishment.Record {
	out := make([]replenishment.Record, 0, len(recs))
	for _, r := range recs {
		if d, ok := r["date"].(time.Time); ok && d.Before(since) {
			continue
		}
		out = append(out, r)
	}
	return out
}
