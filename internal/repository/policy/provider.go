package policy

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-py/replenish/internal/replenishment"
)

// Provider serves branch policies from a workbook source. The parsed
// workbook is reused for ttl; a zero ttl keeps it until Invalidate.
type Provider struct {
	source Source
	sheet  string
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	table    *Table
	loadedAt time.Time
}

func NewProvider(source Source, sheet string, ttl time.Duration) *Provider {
	return &Provider{source: source, sheet: sheet, ttl: ttl, now: time.Now}
}

// Policies implements repository.PolicyProvider.
func (p *Provider) Policies(ctx context.Context, branch string) (map[string]replenishment.Policy, error) {
	t, err := p.Table(ctx)
	if err != nil {
		return nil, err
	}
	return t.Branch(branch)
}

// Table returns the parsed workbook, fetching it when absent or stale.
func (p *Provider) Table(ctx context.Context) (*Table, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.table != nil && (p.ttl == 0 || p.now().Sub(p.loadedAt) < p.ttl) {
		return p.table, nil
	}

	start := time.Now()
	rc, err := p.source.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	t, err := ParseWorkbook(rc, p.sheet)
	if err != nil {
		return nil, err
	}
	p.table = t
	p.loadedAt = p.now()

	log.Info().
		Str("source", p.source.String()).
		Int("rows", len(t.rows)).
		Strs("branches", t.Branches()).
		Dur("duration", time.Since(start)).
		Msg("policy workbook loaded")
	return t, nil
}

// Invalidate drops the cached workbook.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.table = nil
	p.mu.Unlock()
}
