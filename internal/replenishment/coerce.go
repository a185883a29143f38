package replenishment

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CoerceGroupID returns the trimmed group id of v and whether it is usable.
// Integral numbers are rendered without a fractional part.
func CoerceGroupID(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s = t
	case []byte:
		s = string(t)
	case int:
		s = strconv.Itoa(t)
	case int32:
		s = strconv.FormatInt(int64(t), 10)
	case int64:
		s = strconv.FormatInt(t, 10)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", false
		}
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// CoerceQuantity converts v to a decimal. Null, blank and NaN values yield
// ErrMissingValue; anything else that does not parse yields a parse error.
func CoerceQuantity(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, ErrMissingValue
	case decimal.Decimal:
		return t, nil
	case *decimal.Decimal:
		if t == nil {
			return decimal.Zero, ErrMissingValue
		}
		return *t, nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int8:
		return decimal.NewFromInt(int64(t)), nil
	case int16:
		return decimal.NewFromInt(int64(t)), nil
	case int32:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case uint:
		return decimal.NewFromUint64(uint64(t)), nil
	case uint32:
		return decimal.NewFromInt(int64(t)), nil
	case uint64:
		return decimal.NewFromUint64(t), nil
	case float32:
		return coerceFloat(float64(t))
	case float64:
		return coerceFloat(t)
	case bool:
		if t {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	case []byte:
		return parseQuantity(string(t))
	case string:
		return parseQuantity(t)
	default:
		return parseQuantity(fmt.Sprint(t))
	}
}

func coerceFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) {
		return decimal.Zero, ErrMissingValue
	}
	if math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("infinite value")
	}
	return decimal.NewFromFloat(f), nil
}

func parseQuantity(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return decimal.Zero, ErrMissingValue
	}
	n, ok := normalizeSeparators(s)
	if !ok {
		return decimal.Zero, fmt.Errorf("ambiguous number separators: %q", s)
	}
	d, err := decimal.NewFromString(n)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %q", s)
	}
	return d, nil
}

// normalizeSeparators rewrites s with '.' as the decimal separator and no
// thousands separators. Both "1,234.5" and "1.234,5" are accepted; a lone
// comma is a decimal comma unless three digits follow it, in which case the
// value is rejected.
func normalizeSeparators(s string) (string, bool) {
	if !strings.Contains(s, ",") {
		return s, true
	}
	sign := ""
	if s[0] == '-' || s[0] == '+' {
		sign, s = s[:1], s[1:]
	}
	dot := strings.LastIndexByte(s, '.')
	comma := strings.LastIndexByte(s, ',')

	switch {
	case dot < 0:
		parts := strings.Split(s, ",")
		if len(parts) == 2 && len(parts[1]) != 3 {
			return sign + parts[0] + "." + parts[1], true
		}
		if len(parts) > 2 && thousandsGroups(parts) {
			return sign + strings.Join(parts, ""), true
		}
		return "", false
	case dot > comma:
		parts := strings.Split(s[:dot], ",")
		if !thousandsGroups(parts) {
			return "", false
		}
		return sign + strings.Join(parts, "") + s[dot:], true
	default:
		if strings.Count(s, ",") != 1 {
			return "", false
		}
		parts := strings.Split(s[:comma], ".")
		if !thousandsGroups(parts) {
			return "", false
		}
		return sign + strings.Join(parts, "") + "." + s[comma+1:], true
	}
}

// thousandsGroups reports whether parts is a leading group of one to three
// digits followed by groups of exactly three.
func thousandsGroups(parts []string) bool {
	if len(parts) < 2 {
		return false
	}
	for i, p := range parts {
		if p == "" || strings.Trim(p, "0123456789") != "" {
			return false
		}
		if (i == 0 && len(p) > 3) || (i > 0 && len(p) != 3) {
			return false
		}
	}
	return true
}

var dateLayouts = []string{
	"20060102",
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"02/01/2006",
}

// CoercePeriod converts a date value to its calendar month.
func CoercePeriod(v any) (Period, error) {
	t, err := CoerceDate(v)
	if err != nil {
		return Period{}, err
	}
	return PeriodOf(t), nil
}

// CoerceDate converts a date value. Strings and integers are tried against
// the compact YYYYMMDD layout first.
func CoerceDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, ErrMissingValue
	case time.Time:
		if t.IsZero() {
			return time.Time{}, ErrMissingValue
		}
		return t, nil
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, ErrMissingValue
		}
		return *t, nil
	case int:
		return parseDate(strconv.Itoa(t))
	case int64:
		return parseDate(strconv.FormatInt(t, 10))
	case []byte:
		return parseDate(string(t))
	case string:
		return parseDate(t)
	default:
		return parseDate(fmt.Sprint(t))
	}
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrMissingValue
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// CoercePurchaseFlag interprets a purchase-flag cell. Missing values mean 0.
func CoercePurchaseFlag(v any) (int, error) {
	d, err := CoerceQuantity(v)
	if err == ErrMissingValue {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	// Only an exact 1 blocks purchase, so fractional flags never round into it.
	if !d.IsInteger() {
		return 0, nil
	}
	return int(d.IntPart()), nil
}

// nonNegative clamps q at zero and reports whether it had to.
func nonNegative(q decimal.Decimal) (decimal.Decimal, bool) {
	if q.IsNegative() {
		return decimal.Zero, true
	}
	return q, false
}
