// Package output inspects files written by a materialization so callers can
// report what landed on disk without asking the engine again.
package output

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

	"github.com/dustin/go-humanize"
	"github.com/parquet-go/parquet-go"
	"golang.org/x/sync/errgroup"
)

const inspectConcurrency = 4

var ErrUnknownFormat = errors.New("cannot inspect file format")

type Info struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Ext       string    `json:"ext"`
	SizeBytes int64     `json:"size_bytes"`
	Size      string    `json:"size"`
	Modified  time.Time `json:"modified"`
}

// Summary describes a materialized CSV or Parquet file. Rows excludes the CSV
// header line.
type Summary struct {
	Info
	Format  string   `json:"format"`
	Rows    int64    `json:"rows"`
	Columns []string `json:"columns"`
}

// FormatBytes renders a size with binary units.
func FormatBytes(size int64) string {
	if size <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(size))
}

// Stat returns size and timestamp details for path.
func Stat(path string) (Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	if stat.IsDir() {
		return Info{}, fmt.Errorf("%s is a directory", path)
	}
	return Info{
		Path:      path,
		Name:      filepath.Base(path),
		Ext:       extension(path),
		SizeBytes: stat.Size(),
		Size:      FormatBytes(stat.Size()),
		Modified:  stat.ModTime().UTC(),
	}, nil
}

// FileInfo is the lenient form of Stat used for UI listings: a missing or
// unreadable path yields a placeholder instead of an error.
func FileInfo(path string) Info {
	if strings.TrimSpace(path) == "" {
		return Info{Path: path, Ext: "N/A", Size: "0 B"}
	}
	info, err := Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Info{Path: path, Name: filepath.Base(path), Ext: "N/A", Size: "0 B"}
		}
		return Info{Path: path, Name: filepath.Base(path), Ext: "ERR", Size: "Error"}
	}
	return info
}

// Inspect reads the Parquet footer or the CSV header of path and counts its
// rows.
func Inspect(path string) (Summary, error) {
	info, err := Stat(path)
	if err != nil {
		return Summary{}, fmt.Errorf("stat output: %w", err)
	}

	switch info.Ext {
	case "parquet":
		return inspectParquet(info)
	case "csv":
		return inspectCSV(info)
	default:
		return Summary{}, fmt.Errorf("%w: %q", ErrUnknownFormat, info.Ext)
	}
}

// InspectAll inspects paths concurrently and returns summaries in input order.
func InspectAll(ctx context.Context, paths []string) ([]Summary, error) {
	summaries := make([]Summary, len(paths))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(inspectConcurrency)

	for i, path := range paths {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			summary, err := Inspect(path)
			if err != nil {
				return fmt.Errorf("inspect %q: %w", path, err)
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func inspectParquet(info Info) (Summary, error) {
	file, err := os.Open(info.Path)
	if err != nil {
		return Summary{}, fmt.Errorf("open parquet: %w", err)
	}
	defer func() { _ = file.Close() }()

	parquetFile, err := parquet.OpenFile(file, info.SizeBytes)
	if err != nil {
		return Summary{}, fmt.Errorf("read parquet footer: %w", err)
	}

	fields := parquetFile.Schema().Fields()
	columns := make([]string, 0, len(fields))
	for _, field := range fields {
		columns = append(columns, field.Name())
	}
	return Summary{Info: info, Format: "parquet", Rows: parquetFile.NumRows(), Columns: columns}, nil
}

func inspectCSV(info Info) (Summary, error) {
	file, err := os.Open(info.Path)
	if err != nil {
		return Summary{}, fmt.Errorf("open csv: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Summary{Info: info, Format: "csv", Columns: []string{}}, nil
	}
	if err != nil {
		return Summary{}, fmt.Errorf("read csv header: %w", err)
	}
	columns := append([]string(nil), header...)

	var rows int64
	for {
		_, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Summary{}, fmt.Errorf("read csv row %d: %w", rows+1, err)
		}
		rows++
	}
	return Summary{Info: info, Format: "csv", Rows: rows, Columns: columns}, nil
}

func extension(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
