package drive

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

type fakeDrive struct {
	folders map[string][]*File
	content map[string][]byte
}

func (f *fakeDrive) ListFiles(_ context.Context, folderID string) ([]*File, error) {
	files, ok := f.folders[folderID]
	if !ok {
		return nil, fmt.Errorf("unknown folder %s", folderID)
	}
	return files, nil
}

func (f *fakeDrive) DownloadFile(_ context.Context, file *File, w io.Writer) error {
	_, err := w.Write(f.content[file.ID])
	return err
}

func xlsxBytes(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	return buf.Bytes()
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func TestDownloader_DownloadBranches(t *testing.T) {
	t.Parallel()

	src := &fakeDrive{
		folders: map[string][]*File{
			"root": {
				{ID: "f0101", Name: "0101", MimeType: MimeFolder},
				{ID: "f0103", Name: "0103", MimeType: MimeFolder},
				{ID: "stray", Name: "notes.txt", MimeType: "text/plain"},
			},
			"f0101": {
				{ID: "g1", Name: "general.csv", MimeType: "text/csv"},
				{ID: "i1", Name: "invoices.xlsx", MimeType: MimeXLSX},
				{ID: "o1", Name: "orders", MimeType: MimeGoogleSheet},
				{ID: "x1", Name: "readme.pdf", MimeType: "application/pdf"},
			},
		},
		content: map[string][]byte{
			"g1": []byte("group_id,on_hand_qty\nA,3\n"),
			"i1": xlsxBytes(t, [][]any{{"group_id", "date", "qty"}, {"A", "2024-01-05", 2}}),
			"o1": xlsxBytes(t, [][]any{{"group_id", "qty_receivable"}, {"A", 1}}),
		},
	}
	dir := t.TempDir()
	d := &Downloader{service: src}

	got, err := d.DownloadBranches(context.Background(), DownloadOptions{
		FolderID:    "root",
		DownloadDir: dir,
		Branches:    []string{"0101"},
	})
	if err != nil {
		t.Fatalf("DownloadBranches: %v", err)
	}

	want := []string{
		filepath.Join(dir, "0101", "general.csv"),
		filepath.Join(dir, "0101", "invoices.csv"),
		filepath.Join(dir, "0101", "orders.csv"),
	}
	if !reflect.DeepEqual(got["0101"], want) {
		t.Fatalf("paths = %v, want %v", got["0101"], want)
	}

	rows := readCSV(t, want[1])
	if len(rows) != 2 || rows[1][0] != "A" || rows[1][2] != "2" {
		t.Fatalf("unexpected invoices csv %v", rows)
	}
	if _, err := os.Stat(filepath.Join(dir, "0101", "invoices.xlsx")); !os.IsNotExist(err) {
		t.Fatalf("temporary xlsx should be removed, stat err = %v", err)
	}
}

func TestDownloader_MissingBranchFolder(t *testing.T) {
	t.Parallel()

	src := &fakeDrive{folders: map[string][]*File{"root": {}}}
	d := &Downloader{service: src}

	_, err := d.DownloadBranches(context.Background(), DownloadOptions{
		FolderID:    "root",
		DownloadDir: t.TempDir(),
		Branches:    []string{"0105"},
	})
	if err == nil {
		t.Fatalf("expected error for missing branch folder")
	}
}

func TestConvertXLSXToCSV_PadsShortRows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	xlsxPath := filepath.Join(dir, "in.xlsx")
	if err := os.WriteFile(xlsxPath, xlsxBytes(t, [][]any{{"a", "b", "c"}, {"1"}}), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	csvPath := filepath.Join(dir, "out.csv")
	if err := convertXLSXToCSV(xlsxPath, csvPath); err != nil {
		t.Fatalf("convert: %v", err)
	}

	rows := readCSV(t, csvPath)
	if !reflect.DeepEqual(rows, [][]string{{"a", "b", "c"}, {"1", "", ""}}) {
		t.Fatalf("rows = %v", rows)
	}
}
