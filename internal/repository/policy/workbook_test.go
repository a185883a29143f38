package policy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/andresuchdata/autopo-py/replenish/internal/replenishment"
)

func workbook(t *testing.T, sheet string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			t.Fatalf("rename sheet: %v", err)
		}
	}
	for i := range rows {
		axis, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, axis, &rows[i]); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	return buf.Bytes()
}

func policyRows() [][]any {
	return [][]any{
		{"cod_agrup", "SEG_0101", "PN_0101", "SEG_0103", "PN_0103"},
		{"100.0", 5, 0, 1, 1},
		{"100", 8, 1, 1, 0},
		{"100", 8, 0, 9, 0},
		{"200,6", nil, nil, 2, 0},
		{"ABC ", 3, 0, nil, 1},
		{"", 7, 0, 7, 0},
	}
}

func TestNormalizeGroupID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"123", "123"},
		{" 123.0 ", "123"},
		{"123,0", "123"},
		{"2.5", "2"},
		{"3.5", "4"},
		{"0123", "0123"},
		{"A.B", "A.B"},
		{"  X1 ", "X1"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeGroupID(tt.in); got != tt.want {
			t.Fatalf("NormalizeGroupID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTable_Branch(t *testing.T) {
	t.Parallel()

	table, err := ParseWorkbook(bytes.NewReader(workbook(t, "Plan1", policyRows())), "")
	if err != nil {
		t.Fatalf("ParseWorkbook: %v", err)
	}
	if got := table.Branches(); !reflect.DeepEqual(got, []string{"0101", "0103"}) {
		t.Fatalf("Branches = %v", got)
	}

	got, err := table.Branch("0101")
	if err != nil {
		t.Fatalf("Branch: %v", err)
	}
	want := map[string]replenishment.Policy{
		// highest safety wins, first row on ties
		"100": {SafetyStock: decimal.NewFromInt(8), PurchaseFlag: 1},
		"201": {SafetyStock: decimal.Zero, PurchaseFlag: 0},
		"ABC": {SafetyStock: decimal.NewFromInt(3), PurchaseFlag: 0},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d policies, want %d: %v", len(got), len(want), got)
	}
	for id, w := range want {
		g, ok := got[id]
		if !ok {
			t.Fatalf("missing policy for %q", id)
		}
		if !g.SafetyStock.Equal(w.SafetyStock) || g.PurchaseFlag != w.PurchaseFlag {
			t.Fatalf("policy %q = %+v, want %+v", id, g, w)
		}
	}

	other, err := table.Branch("0103")
	if err != nil {
		t.Fatalf("Branch 0103: %v", err)
	}
	if p := other["100"]; !p.SafetyStock.Equal(decimal.NewFromInt(9)) || p.PurchaseFlag != 0 {
		t.Fatalf("0103 policy for 100 = %+v", p)
	}
	if p := other["ABC"]; !p.SafetyStock.IsZero() || p.PurchaseFlag != 1 {
		t.Fatalf("0103 policy for ABC = %+v", p)
	}
}

func TestTable_UnknownBranch(t *testing.T) {
	t.Parallel()

	table, err := ParseWorkbook(bytes.NewReader(workbook(t, "Plan1", policyRows())), "Plan1")
	if err != nil {
		t.Fatalf("ParseWorkbook: %v", err)
	}
	if _, err := table.Branch("0105"); !errors.Is(err, ErrBranchColumns) {
		t.Fatalf("err = %v, want ErrBranchColumns", err)
	}
}

func TestParseWorkbook_Errors(t *testing.T) {
	t.Parallel()

	if _, err := ParseWorkbook(bytes.NewReader(workbook(t, "Other", policyRows())), "Plan1"); err == nil {
		t.Fatalf("expected error for missing sheet")
	}
	noGroup := [][]any{{"group", "SEG_0101", "PN_0101"}, {"1", 1, 0}}
	if _, err := ParseWorkbook(bytes.NewReader(workbook(t, "Plan1", noGroup)), "Plan1"); err == nil {
		t.Fatalf("expected error for missing cod_agrup column")
	}
	if _, err := ParseWorkbook(bytes.NewReader([]byte("not a zip")), "Plan1"); err == nil {
		t.Fatalf("expected error for invalid workbook")
	}
}

type countingSource struct {
	data  []byte
	opens int
}

func (s *countingSource) Open(context.Context) (io.ReadCloser, error) {
	s.opens++
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func (s *countingSource) String() string { return "test" }

func TestProvider_CachesUntilStale(t *testing.T) {
	t.Parallel()

	src := &countingSource{data: workbook(t, "Plan1", policyRows())}
	p := NewProvider(src, "Plan1", time.Minute)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	ctx := context.Background()
	for _, branch := range []string{"0101", "0103", "0101"} {
		if _, err := p.Policies(ctx, branch); err != nil {
			t.Fatalf("Policies(%s): %v", branch, err)
		}
	}
	if src.opens != 1 {
		t.Fatalf("opens = %d, want 1", src.opens)
	}

	now = now.Add(2 * time.Minute)
	if _, err := p.Policies(ctx, "0101"); err != nil {
		t.Fatalf("Policies: %v", err)
	}
	if src.opens != 2 {
		t.Fatalf("opens after ttl = %d, want 2", src.opens)
	}

	p.Invalidate()
	if _, err := p.Policies(ctx, "0101"); err != nil {
		t.Fatalf("Policies: %v", err)
	}
	if src.opens != 3 {
		t.Fatalf("opens after invalidate = %d, want 3", src.opens)
	}
}
