package query

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/quantumlink/quantumlink/internal/sqlbuild"
)

type Format string

const (
	FormatParquet     Format = "parquet"
	FormatCSV         Format = "csv"
	FormatTSV         Format = "tsv"
	FormatSpreadsheet Format = "spreadsheet"
	FormatDelimited   Format = "unknown-delimited"
)

// DetectFormat maps the lowercase file extension to a Format. Unknown
// extensions are read as comma-delimited text.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return FormatParquet
	case ".csv":
		return FormatCSV
	case ".txt", ".tsv":
		return FormatTSV
	case ".xlsx", ".xls":
		return FormatSpreadsheet
	default:
		return FormatDelimited
	}
}

// ScanSource is a lazy, engine-native handle on a file. It is cheap to build
// and never cached.
type ScanSource struct {
	Path   string
	Format Format
	Scan   sqlbuild.Expr
}

func (s ScanSource) IsZero() bool {
	return s.Scan == nil
}

type OutputFormat string

const (
	OutputCSV     OutputFormat = "csv"
	OutputParquet OutputFormat = "parquet"
)

func ParseOutputFormat(raw string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", OutputCSV:
		return OutputCSV, nil
	case OutputParquet:
		return OutputParquet, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedOutput, raw)
	}
}

type MatchPair struct {
	MasterColumn    string `json:"master" koanf:"master"`
	ReferenceColumn string `json:"reference" koanf:"reference"`
}

type JoinSpec struct {
	Path  string      `json:"path" koanf:"path"`
	Match []MatchPair `json:"match" koanf:"match"`
	Pull  []string    `json:"pull" koanf:"pull"`
}

// ChainPlan is a star of left joins: every reference joins against the
// master, never against another reference.
type ChainPlan struct {
	Master     string     `json:"master" koanf:"master"`
	References []JoinSpec `json:"references" koanf:"references"`
}

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type PreviewResult struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

type MaterializeResult struct {
	OK          bool
	Message     string
	OutputPath  string
	Format      OutputFormat
	RowsWritten int64
	Duration    time.Duration
}

// Engine is the chain-join executor used by the service layer.
type Engine interface {
	Describe(ctx context.Context, path string) ([]Column, error)
	Columns(ctx context.Context, path string) ([]string, error)
	Query(plan ChainPlan) (string, error)
	Preview(ctx context.Context, plan ChainPlan, limit int) (PreviewResult, error)
	Materialize(ctx context.Context, plan ChainPlan, outputPath string, format OutputFormat) (MaterializeResult, error)
	Ready() bool
}
