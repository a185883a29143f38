// Package csvfile reads branch inputs from CSV exports laid out as one
// directory per branch.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-py/replenish/internal/replenishment"
)

// File names inside a branch directory.
const (
	GeneralFile    = "general.csv"
	OrdersFile     = "orders.csv"
	InvoicesFile   = "invoices.csv"
	SalesFile      = "sales.csv"
	OrderLinesFile = "order_lines.csv"
)

// columnAliases maps normalized header names to the canonical field names.
// The ERP export headers are accepted next to the canonical ones.
var columnAliases = map[string]string{
	"groupid":       "group_id",
	"b1zgrupo":      "group_id",
	"agrupamento":   "group_id",
	"codagrup":      "group_id",
	"description":   "description",
	"b1desc":        "description",
	"descricao":     "description",
	"descrição":     "description",
	"code":          "code",
	"b1cod":         "code",
	"codigo":        "code",
	"código":        "code",
	"onhandqty":     "on_hand_qty",
	"b2qatu":        "on_hand_qty",
	"estoque":       "on_hand_qty",
	"qtyreceivable": "qty_receivable",
	"qre":           "qty_receivable",
	"date":          "date",
	"d2emissao":     "date",
	"qty":           "qty",
	"d2quant":       "qty",
	"price":         "price",
	"c7preco":       "price",
}

var columnNameSanitizer = strings.NewReplacer(" ", "", "_", "", ".", "", "-", "", "/", "")

func normalizeColumnName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	return columnNameSanitizer.Replace(name)
}

// canonicalColumn returns the field name a header maps to. Unknown headers
// are kept trimmed as they are.
func canonicalColumn(header string) string {
	if c, ok := columnAliases[normalizeColumnName(header)]; ok {
		return c
	}
	return strings.TrimSpace(header)
}

// Provider serves branch data from <dir>/<branch>/*.csv.
type Provider struct {
	dir string
}

// NewProvider creates a provider rooted at dir.
func NewProvider(dir string) *Provider {
	return &Provider{dir: dir}
}

func (p *Provider) GeneralInfo(ctx context.Context, branch string) ([]replenishment.Record, error) {
	return p.read(ctx, branch, GeneralFile, true)
}

func (p *Provider) Orders(ctx context.Context, branch string) ([]replenishment.Record, error) {
	return p.read(ctx, branch, OrdersFile, false)
}

func (p *Provider) Invoices(ctx context.Context, branch string) ([]replenishment.Record, error) {
	return p.read(ctx, branch, InvoicesFile, true)
}

func (p *Provider) SalesLines(ctx context.Context, branch string, since time.Time) ([]replenishment.Record, error) {
	recs, err := p.read(ctx, branch, SalesFile, false)
	if err != nil {
		return nil, err
	}
	return filterSince(recs, since), nil
}

func (p *Provider) OrderCosts(ctx context.Context, branch string, since time.Time) ([]replenishment.Record, error) {
	recs, err := p.read(ctx, branch, OrderLinesFile, false)
	if err != nil {
		return nil, err
	}
	return filterSince(recs, since), nil
}

// read loads one file of a branch. A missing optional file yields no rows.
func (p *Provider) read(ctx context.Context, branch, name string, required bool) ([]replenishment.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if branch == "" || strings.ContainsAny(branch, `/\`) || branch == ".." {
		return nil, fmt.Errorf("invalid branch %q", branch)
	}

	path := filepath.Join(p.dir, branch, name)
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			log.Debug().Str("branch", branch).Str("file", path).Msg("optional file not found, using no rows")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	recs, err := ReadRecords(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return recs, nil
}

// ReadRecords parses a CSV stream with a header row into records keyed by
// canonical column names. Cell values are kept as strings.
func ReadRecords(r io.Reader) ([]replenishment.Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = canonicalColumn(h)
	}

	var out []replenishment.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rec := make(replenishment.Record, len(columns))
		for i, col := range columns {
			if i < len(row) {
				rec[col] = row[i]
			} else {
				rec[col] = nil
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func filterSince(recs []replenishment.Record, since time.Time) []replenishment.Record {
	if since.IsZero() {
		return recs
	}
	out := make([]replenishment.Record, 0, len(recs))
	for _, r := range recs {
		d, err := replenishment.CoerceDate(r["date"])
		if err == nil && d.Before(since) {
			continue
		}
		out = append(out, r)
	}
	return out
}
