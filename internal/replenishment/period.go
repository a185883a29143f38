package replenishment

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is a calendar month.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the month containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod accepts "2006-01", "2006/01" and "200601".
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	var year, month string
	switch {
	case len(s) == 7 && (s[4] == '-' || s[4] == '/'):
		year, month = s[:4], s[5:]
	case len(s) == 6:
		year, month = s[:4], s[4:]
	default:
		return Period{}, fmt.Errorf("invalid period %q, expected YYYY-MM", s)
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return Period{}, fmt.Errorf("invalid period %q: month out of range", s)
	}
	return Period{Year: y, Month: time.Month(m)}, nil
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) index() int {
	return p.Year*12 + int(p.Month) - 1
}

func periodFromIndex(i int) Period {
	return Period{Year: i / 12, Month: time.Month(i%12 + 1)}
}

// AddMonths shifts p by n months (n may be negative).
func (p Period) AddMonths(n int) Period {
	return periodFromIndex(p.index() + n)
}

// Before reports whether p is earlier than o.
func (p Period) Before(o Period) bool {
	return p.index() < o.index()
}

// MonthsUntil returns the number of months from p to o, o excluded.
func (p Period) MonthsUntil(o Period) int {
	return o.index() - p.index()
}

// Window describes the trailing months the demand pivot must cover.
type Window struct {
	// Size is the number of contiguous months; at least MinWindowSize.
	Size int
	// End is the last month of the window. When zero the window is derived
	// from the invoice history and must span exactly Size months.
	End Period
}

// MinWindowSize is the smallest window the trailing averages are defined on.
const MinWindowSize = 5

// DefaultWindow is the five month history window the pipeline is built for.
func DefaultWindow() Window {
	return Window{Size: MinWindowSize}
}

// Validate checks the window configuration.
func (w Window) Validate() error {
	if w.Size < MinWindowSize {
		return fmt.Errorf("window size %d is below the minimum of %d months", w.Size, MinWindowSize)
	}
	return nil
}

// Periods returns the window months when End is set.
func (w Window) Periods() []Period {
	if w.End.IsZero() {
		return nil
	}
	out := make([]Period, w.Size)
	start := w.End.AddMonths(-(w.Size - 1))
	for i := range out {
		out[i] = start.AddMonths(i)
	}
	return out
}

// axisFromObserved fills every month between first and last inclusive.
func axisFromObserved(first, last Period) []Period {
	n := first.MonthsUntil(last) + 1
	out := make([]Period, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, first.AddMonths(i))
	}
	return out
}

// MarshalText renders the period as YYYY-MM.
func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Period) UnmarshalText(b []byte) error {
	v, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
