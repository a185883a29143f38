package replenishment

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCoerceGroupID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in     any
		want   string
		wantOK bool
	}{
		{" 00123 ", "00123", true},
		{123, "123", true},
		{int64(77), "77", true},
		{float64(4501), "4501", true},
		{[]byte("X9"), "X9", true},
		{"", "", false},
		{"   ", "", false},
		{nil, "", false},
		{math.NaN(), "", false},
	}

	for _, tc := range cases {
		got, ok := CoerceGroupID(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("CoerceGroupID(%#v) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestCoerceQuantity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      any
		want    string
		missing bool
		invalid bool
	}{
		{name: "int", in: 4, want: "4"},
		{name: "float", in: 2.5, want: "2.5"},
		{name: "string", in: " 12 ", want: "12"},
		{name: "thousands separators", in: "1,250,000", want: "1250000"},
		{name: "thousands with decimal point", in: "1,250.5", want: "1250.5"},
		{name: "decimal comma", in: "1,5", want: "1.5"},
		{name: "negative decimal comma", in: "-12,25", want: "-12.25"},
		{name: "grouped decimal comma", in: "1.250,75", want: "1250.75"},
		{name: "ambiguous comma", in: "1,250", invalid: true},
		{name: "misplaced groups", in: "12,34.5", invalid: true},
		{name: "two decimal commas", in: "1.250,5,1", invalid: true},
		{name: "negative", in: "-3", want: "-3"},
		{name: "decimal", in: decimal.NewFromInt(8), want: "8"},
		{name: "nil", in: nil, missing: true},
		{name: "blank", in: "  ", missing: true},
		{name: "nan string", in: "NaN", missing: true},
		{name: "nan float", in: math.NaN(), missing: true},
		{name: "garbage", in: "ten", invalid: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := CoerceQuantity(tc.in)
			switch {
			case tc.missing:
				if !errors.Is(err, ErrMissingValue) {
					t.Fatalf("want ErrMissingValue, got %v", err)
				}
			case tc.invalid:
				if err == nil || errors.Is(err, ErrMissingValue) {
					t.Fatalf("want parse error, got %v", err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !got.Equal(decimal.RequireFromString(tc.want)) {
					t.Fatalf("got %s, want %s", got, tc.want)
				}
			}
		})
	}
}

func TestCoercePeriod(t *testing.T) {
	t.Parallel()

	want := Period{Year: 2024, Month: time.March}
	inputs := []any{
		"20240315",
		20240315,
		"2024-03-15",
		"2024-03-15 10:00:00",
		"2024-03-15T10:00:00Z",
		"2024/03/15",
		"15/03/2024",
		time.Date(2024, time.March, 31, 23, 0, 0, 0, time.UTC),
	}
	for _, in := range inputs {
		got, err := CoercePeriod(in)
		if err != nil {
			t.Fatalf("CoercePeriod(%v): %v", in, err)
		}
		if got != want {
			t.Fatalf("CoercePeriod(%v) = %s, want %s", in, got, want)
		}
	}

	if _, err := CoercePeriod("2024-13-01"); err == nil {
		t.Fatalf("expected error for month 13")
	}
	if _, err := CoercePeriod(nil); !errors.Is(err, ErrMissingValue) {
		t.Fatalf("want ErrMissingValue for nil, got %v", err)
	}
}

func TestCoercePurchaseFlag(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   any
		want int
	}{
		{nil, 0},
		{"", 0},
		{1, 1},
		{"1", 1},
		{1.0, 1},
		{"1.00", 1},
		{0, 0},
		{0.5, 0},
		{"0,5", 0},
		{1.5, 0},
	}
	for _, tc := range cases {
		got, err := CoercePurchaseFlag(tc.in)
		if err != nil {
			t.Fatalf("CoercePurchaseFlag(%#v): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("CoercePurchaseFlag(%#v) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if _, err := CoercePurchaseFlag("yes"); err == nil {
		t.Fatalf("expected error for non numeric flag")
	}
}

func TestParsePeriod(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"2024-07", "2024/07", "202407"} {
		p, err := ParsePeriod(s)
		if err != nil {
			t.Fatalf("ParsePeriod(%q): %v", s, err)
		}
		if p != (Period{Year: 2024, Month: time.July}) {
			t.Fatalf("ParsePeriod(%q) = %s", s, p)
		}
	}
	for _, s := range []string{"2024-00", "24-07", "July"} {
		if _, err := ParsePeriod(s); err == nil {
			t.Fatalf("ParsePeriod(%q) should fail", s)
		}
	}
	if got := (Period{Year: 2024, Month: time.November}).AddMonths(3); got != (Period{Year: 2025, Month: time.February}) {
		t.Fatalf("AddMonths across year = %s", got)
	}
}
