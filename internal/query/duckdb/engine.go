package duckdb

import (
	"context"
	"log/slog"
	"time"

	"github.com/quantumlink/quantumlink/internal/query"
	"github.com/quantumlink/quantumlink/internal/sqlbuild"
)

var _ query.Engine = (*Session)(nil)

const materializeOKMessage = "chain join completed"

// Describe returns the column names and engine types of a file without
// reading any rows.
func (s *Session) Describe(ctx context.Context, path string) ([]query.Column, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := checkSource("describe source", path); err != nil {
		return nil, err
	}

	source := Resolve(path)
	sqlText, err := sqlbuild.Select().
		Column(sqlbuild.Star(""), "").
		From(source.Scan, "src").
		Limit(0).
		SQL()
	if err != nil {
		return nil, &query.Error{Kind: query.KindSchema, Op: "build schema probe", Path: path, Err: err}
	}

	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, &query.Error{Kind: query.KindSchema, Op: "probe schema", Path: path, Err: err}
	}
	defer func() { _ = rows.Close() }()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, &query.Error{Kind: query.KindSchema, Op: "read column types", Path: path, Err: err}
	}
	columns := make([]query.Column, 0, len(columnTypes))
	for _, columnType := range columnTypes {
		columns = append(columns, query.Column{Name: columnType.Name(), Type: columnType.DatabaseTypeName()})
	}
	if err := rows.Err(); err != nil {
		return nil, &query.Error{Kind: query.KindSchema, Op: "probe schema", Path: path, Err: err}
	}
	return columns, nil
}

func (s *Session) Columns(ctx context.Context, path string) ([]string, error) {
	described, err := s.Describe(ctx, path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(described))
	for _, column := range described {
		names = append(names, column.Name)
	}
	return names, nil
}

// Query renders the chain-join SQL for plan without executing it.
func (s *Session) Query(plan query.ChainPlan) (string, error) {
	release, err := s.acquire()
	if err != nil {
		return "", err
	}
	defer release()
	return RenderQuery(plan)
}

func (s *Session) Preview(ctx context.Context, plan query.ChainPlan, limit int) (query.PreviewResult, error) {
	release, err := s.acquire()
	if err != nil {
		return query.PreviewResult{}, err
	}
	defer release()

	stmt, err := s.prepare(plan)
	if err != nil {
		return query.PreviewResult{}, err
	}
	sqlText, err := stmt.Limit(s.previewLimit(limit)).SQL()
	if err != nil {
		return query.PreviewResult{}, &query.Error{Kind: query.KindPlan, Op: "render preview", Err: err}
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.PreviewResult{}, &query.Error{Kind: query.KindExecution, Op: "execute preview", Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.PreviewResult{}, &query.Error{Kind: query.KindExecution, Op: "preview columns", Err: err}
	}
	if duplicates := query.DuplicateColumns(columns); len(duplicates) > 0 {
		s.logger.WarnContext(ctx, "output_column_collision",
			slog.String("master", plan.Master),
			slog.Any("columns", duplicates),
		)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.PreviewResult{}, &query.Error{Kind: query.KindExecution, Op: "scan row", Err: err}
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.PreviewResult{}, &query.Error{Kind: query.KindExecution, Op: "iterate rows", Err: err}
	}

	return query.PreviewResult{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

// Materialize streams the whole chain join into outputPath with COPY. A
// failed run reports OK=false, returns the error and removes whatever part
// of the output was written.
func (s *Session) Materialize(ctx context.Context, plan query.ChainPlan, outputPath string, format query.OutputFormat) (query.MaterializeResult, error) {
	result := query.MaterializeResult{OutputPath: outputPath, Format: format, RowsWritten: -1}

	fail := func(err error) (query.MaterializeResult, error) {
		result.OK = false
		result.Message = "SQL error: " + err.Error()
		return result, err
	}

	release, err := s.acquire()
	if err != nil {
		return fail(err)
	}
	defer release()

	parsed, err := query.ParseOutputFormat(string(format))
	if err != nil {
		return fail(&query.Error{Kind: query.KindPlan, Op: "materialize", Path: outputPath, Err: err})
	}
	result.Format = parsed
	if outputPath == "" {
		return fail(&query.Error{Kind: query.KindPlan, Op: "materialize", Err: query.ErrEmptyPath})
	}

	stmt, err := s.prepare(plan)
	if err != nil {
		return fail(err)
	}
	copyStmt := sqlbuild.Copy(stmt, outputPath)
	switch parsed {
	case query.OutputParquet:
		copyStmt = copyStmt.Option("FORMAT", sqlbuild.Keyword("PARQUET"))
	default:
		copyStmt = copyStmt.Option("FORMAT", sqlbuild.Keyword("CSV")).Option("HEADER", nil)
	}
	sqlText, err := copyStmt.SQL()
	if err != nil {
		return fail(&query.Error{Kind: query.KindPlan, Op: "render copy", Path: outputPath, Err: err})
	}

	if err := ensureParentDir(outputPath); err != nil {
		return fail(&query.Error{Kind: query.KindExecution, Op: "create output dir", Path: outputPath, Err: err})
	}

	start := time.Now()
	execResult, err := s.db.ExecContext(ctx, sqlText)
	result.Duration = time.Since(start)
	if err != nil {
		removePartial(outputPath)
		return fail(&query.Error{Kind: query.KindExecution, Op: "materialize", Path: outputPath, Err: err})
	}
	if count, err := execResult.RowsAffected(); err == nil {
		result.RowsWritten = count
	}

	result.OK = true
	result.Message = materializeOKMessage
	return result, nil
}

// prepare validates plan, checks that every input exists and builds the
// SELECT for it.
func (s *Session) prepare(plan query.ChainPlan) (*sqlbuild.SelectStmt, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	for _, path := range plan.Paths() {
		if err := checkSource("resolve source", path); err != nil {
			return nil, err
		}
	}
	return BuildQuery(plan)
}

func (s *Session) previewLimit(limit int) int {
	if limit <= 0 {
		limit = s.cfg.PreviewDefaultRows
	}
	if limit > s.cfg.PreviewMaxRows {
		limit = s.cfg.PreviewMaxRows
	}
	return limit
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
