package output

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/parquet-go/parquet-go"
)

type resultRow struct {
	ID      int64  `parquet:"id"`
	R0Email string `parquet:"R0_email"`
}

func TestInspectCSVCountsRowsWithoutHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.csv")
	if err := os.WriteFile(path, []byte("id,R0_email\n1,a@x.com\n2,\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	summary, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if summary.Format != "csv" || summary.Rows != 2 {
		t.Fatalf("summary = %#v", summary)
	}
	if !reflect.DeepEqual(summary.Columns, []string{"id", "R0_email"}) {
		t.Fatalf("Columns = %#v", summary.Columns)
	}
	if summary.Name != "result.csv" || summary.SizeBytes == 0 {
		t.Fatalf("info = %#v", summary.Info)
	}
}

func TestInspectParquetReadsFooter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.parquet")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	writer := parquet.NewGenericWriter[resultRow](file)
	if _, err := writer.Write([]resultRow{{ID: 1, R0Email: "a@x.com"}, {ID: 2}, {ID: 3}}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer Close() error = %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("file Close() error = %v", err)
	}

	summary, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if summary.Format != "parquet" || summary.Rows != 3 {
		t.Fatalf("summary = %#v", summary)
	}
	if !reflect.DeepEqual(summary.Columns, []string{"id", "R0_email"}) {
		t.Fatalf("Columns = %#v", summary.Columns)
	}
}

func TestInspectRejectsUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Inspect(path); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("Inspect() error = %v", err)
	}
}

func TestInspectAllKeepsInputOrder(t *testing.T) {
	dir := t.TempDir()
	paths := []string{filepath.Join(dir, "b.csv"), filepath.Join(dir, "a.csv")}
	if err := os.WriteFile(paths[0], []byte("x\n1\n2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(paths[1], []byte("y\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	summaries, err := InspectAll(context.Background(), paths)
	if err != nil {
		t.Fatalf("InspectAll() error = %v", err)
	}
	if summaries[0].Rows != 2 || summaries[1].Rows != 0 {
		t.Fatalf("summaries = %#v", summaries)
	}

	if _, err := InspectAll(context.Background(), append(paths, filepath.Join(dir, "missing.csv"))); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFileInfoPlaceholders(t *testing.T) {
	if info := FileInfo(""); info.Size != "0 B" || info.Ext != "N/A" {
		t.Fatalf("FileInfo(empty) = %#v", info)
	}
	if info := FileInfo(filepath.Join(t.TempDir(), "gone.csv")); info.Size != "0 B" || info.Ext != "N/A" {
		t.Fatalf("FileInfo(missing) = %#v", info)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:       "0 B",
		-4:      "0 B",
		512:     "512 B",
		2048:    "2.0 KiB",
		5 << 20: "5.0 MiB",
	}
	for size, want := range tests {
		if got := FormatBytes(size); got != want {
			t.Fatalf("FormatBytes(%d) = %q, want %q", size, got, want)
		}
	}
}
