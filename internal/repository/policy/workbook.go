// Package policy reads the branch policy workbook: one row per product group
// with a safety stock target and a "do not purchase" flag per branch.
package policy

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/andresuchdata/autopo-py/replenish/internal/replenishment"
)

// Workbook layout.
const (
	DefaultSheet     = "Plan1"
	GroupColumn      = "cod_agrup"
	SafetyPrefix     = "SEG_"
	NoPurchasePrefix = "PN_"
)

// ErrBranchColumns is returned when the workbook carries no columns for the
// requested branch.
var ErrBranchColumns = errors.New("policy workbook has no columns for branch")

// Table is a parsed policy sheet. It holds the raw cells of every branch so
// one download serves all branches.
type Table struct {
	columns map[string]int
	rows    [][]string
}

// ParseWorkbook reads sheet from an xlsx stream. An empty sheet name selects
// DefaultSheet.
func ParseWorkbook(r io.Reader, sheet string) (*Table, error) {
	if sheet == "" {
		sheet = DefaultSheet
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheet)
	}

	t := &Table{columns: make(map[string]int, len(rows[0])), rows: rows[1:]}
	for i, name := range rows[0] {
		name = strings.TrimSpace(name)
		if _, dup := t.columns[name]; !dup && name != "" {
			t.columns[name] = i
		}
	}
	if _, ok := t.columns[GroupColumn]; !ok {
		return nil, fmt.Errorf("sheet %s has no %s column", sheet, GroupColumn)
	}
	return t, nil
}

// Branches lists, sorted, the branches that have both policy columns.
func (t *Table) Branches() []string {
	var out []string
	for name := range t.columns {
		branch, ok := strings.CutPrefix(name, SafetyPrefix)
		if !ok {
			continue
		}
		if _, ok := t.columns[NoPurchasePrefix+branch]; ok {
			out = append(out, branch)
		}
	}
	sort.Strings(out)
	return out
}

// Branch returns the policies of one branch keyed by normalized group id.
// Blank cells default to 0. When a group appears more than once the row with
// the highest safety stock wins, the first one on ties.
func (t *Table) Branch(branch string) (map[string]replenishment.Policy, error) {
	safetyCol, ok1 := t.columns[SafetyPrefix+branch]
	flagCol, ok2 := t.columns[NoPurchasePrefix+branch]
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w %s", ErrBranchColumns, branch)
	}
	groupCol := t.columns[GroupColumn]

	out := make(map[string]replenishment.Policy)
	skipped := 0
	for _, row := range t.rows {
		id := NormalizeGroupID(cell(row, groupCol))
		if id == "" {
			continue
		}

		var p replenishment.Policy
		if q, err := replenishment.CoerceQuantity(cell(row, safetyCol)); err == nil {
			p.SafetyStock = q
		} else if !errors.Is(err, replenishment.ErrMissingValue) {
			skipped++
		}
		if flag, err := replenishment.CoercePurchaseFlag(cell(row, flagCol)); err == nil {
			p.PurchaseFlag = flag
		} else {
			skipped++
		}

		if prev, seen := out[id]; seen && !p.SafetyStock.GreaterThan(prev.SafetyStock) {
			continue
		}
		out[id] = p
	}

	if skipped > 0 {
		log.Warn().Str("branch", branch).Int("skipped", skipped).Msg("unparsable policy cells defaulted to 0")
	}
	return out, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// NormalizeGroupID trims a workbook group id. Numbers written with a decimal
// separator, such as "123.0" or "123,0", are rounded half to even and
// rendered as integers.
func NormalizeGroupID(s string) string {
	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, ".,") {
		return s
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return s
	}
	return strconv.FormatFloat(math.RoundToEven(f), 'f', 0, 64)
}
