package duckdb

import (
	"strings"

	"github.com/quantumlink/quantumlink/internal/query"
	"github.com/quantumlink/quantumlink/internal/sqlbuild"
)

// Resolve maps a path to the DuckDB table function that scans it. It does no
// I/O; a bad file only surfaces when the engine binds the scan. An empty path
// resolves to the zero ScanSource.
func Resolve(path string) query.ScanSource {
	if strings.TrimSpace(path) == "" {
		return query.ScanSource{}
	}

	format := query.DetectFormat(path)
	file := sqlbuild.String(path)

	var scan sqlbuild.Expr
	switch format {
	case query.FormatParquet:
		scan = sqlbuild.Func("read_parquet", file)
	case query.FormatTSV:
		scan = sqlbuild.Func("read_csv_auto", file).
			Named("sep", sqlbuild.String("\t")).
			Named("ignore_errors", sqlbuild.Bool(true))
	case query.FormatSpreadsheet:
		// st_read comes from the spatial extension loaded by Open.
		scan = sqlbuild.Func("st_read", file)
	default:
		scan = sqlbuild.Func("read_csv_auto", file).
			Named("ignore_errors", sqlbuild.Bool(true))
	}

	return query.ScanSource{Path: path, Format: format, Scan: scan}
}
