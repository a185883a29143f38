// Package analysis builds the inventory analysis report: recent sales and
// purchase cost metrics per product group next to the replenishment figures.
package analysis

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andresuchdata/autopo-py/replenish/internal/replenishment"
)

// ErrInvalidPeriod is returned for a period other than 3, 6, 12 or 24 months.
var ErrInvalidPeriod = errors.New("invalid analysis period")

// lookbackDays maps a period in months to the days of history it covers.
var lookbackDays = map[int]int{
	3:  89,
	6:  182,
	12: 365,
	24: 730,
}

// Periods returns the supported periods in months, ascending.
func Periods() []int {
	out := make([]int, 0, len(lookbackDays))
	for m := range lookbackDays {
		out = append(out, m)
	}
	sort.Ints(out)
	return out
}

// ParseMonths accepts "6", "6m" and "6 meses".
func ParseMonths(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s, "meses"), "m"))
	m, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	if _, ok := lookbackDays[m]; !ok {
		return 0, fmt.Errorf("%w: %d months", ErrInvalidPeriod, m)
	}
	return m, nil
}

// Since returns the first day included in a period ending at now.
func Since(now time.Time, months int) (time.Time, error) {
	days, ok := lookbackDays[months]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %d months", ErrInvalidPeriod, months)
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -days), nil
}

// SalesMetrics summarizes the sale lines of one group.
type SalesMetrics struct {
	Count         int
	DemandSum     decimal.Decimal
	AverageDemand int64 // monthly, rounded up
}

// CostMetrics summarizes the purchase order lines of one group.
type CostMetrics struct {
	Count       int
	Sum         decimal.Decimal
	AverageCost decimal.Decimal // rounded half to even at 2 places
}

// ComputeSales groups sale lines by group id. Lines with a blank group id
// are ignored; a quantity that cannot be coerced is a data quality error.
func ComputeSales(branch string, lines []replenishment.Record, months int) (map[string]SalesMetrics, error) {
	if months <= 0 {
		return nil, fmt.Errorf("%w: %d months", ErrInvalidPeriod, months)
	}
	out := make(map[string]SalesMetrics)
	for _, l := range lines {
		id, ok := replenishment.CoerceGroupID(l["group_id"])
		if !ok {
			continue
		}
		q, err := replenishment.CoerceQuantity(l["qty"])
		if err != nil {
			return nil, &replenishment.DataQualityError{Branch: branch, Set: "sales", Field: "qty", GroupID: id, Value: l["qty"], Err: err}
		}
		m := out[id]
		m.Count++
		m.DemandSum = m.DemandSum.Add(q)
		out[id] = m
	}

	div := decimal.NewFromInt(int64(months))
	for id, m := range out {
		m.AverageDemand = m.DemandSum.Div(div).Ceil().IntPart()
		out[id] = m
	}
	return out, nil
}

// ComputeCosts groups purchase order lines by group id and averages their
// unit price.
func ComputeCosts(branch string, lines []replenishment.Record) (map[string]CostMetrics, error) {
	out := make(map[string]CostMetrics)
	for _, l := range lines {
		id, ok := replenishment.CoerceGroupID(l["group_id"])
		if !ok {
			continue
		}
		p, err := replenishment.CoerceQuantity(l["price"])
		if err != nil {
			return nil, &replenishment.DataQualityError{Branch: branch, Set: "order_lines", Field: "price", GroupID: id, Value: l["price"], Err: err}
		}
		m := out[id]
		m.Count++
		m.Sum = m.Sum.Add(p)
		out[id] = m
	}

	for id, m := range out {
		m.AverageCost = m.Sum.Div(decimal.NewFromInt(int64(m.Count))).RoundBank(2)
		out[id] = m
	}
	return out, nil
}
