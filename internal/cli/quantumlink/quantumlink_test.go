package quantumlink

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantumlink/quantumlink/internal/query"
	"github.com/quantumlink/quantumlink/internal/query/duckdb"
)

type fakeEngine struct {
	columns        []query.Column
	preview        query.PreviewResult
	materializeErr error
	content        string

	describedPaths []string
	previewPlan    query.ChainPlan
	previewLimit   int
	closed         bool
}

func (f *fakeEngine) Describe(_ context.Context, path string) ([]query.Column, error) {
	f.describedPaths = append(f.describedPaths, path)
	return f.columns, nil
}

func (f *fakeEngine) Columns(ctx context.Context, path string) ([]string, error) {
	described, err := f.Describe(ctx, path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(described))
	for _, column := range described {
		names = append(names, column.Name)
	}
	return names, nil
}

func (f *fakeEngine) Query(plan query.ChainPlan) (string, error) {
	return duckdb.RenderQuery(plan)
}

func (f *fakeEngine) Preview(_ context.Context, plan query.ChainPlan, limit int) (query.PreviewResult, error) {
	f.previewPlan = plan
	f.previewLimit = limit
	return f.preview, nil
}

func (f *fakeEngine) Materialize(_ context.Context, _ query.ChainPlan, outputPath string, format query.OutputFormat) (query.MaterializeResult, error) {
	if f.materializeErr != nil {
		return query.MaterializeResult{OK: false, Message: f.materializeErr.Error()}, f.materializeErr
	}
	if err := os.WriteFile(outputPath, []byte(f.content), 0o644); err != nil {
		return query.MaterializeResult{}, err
	}
	return query.MaterializeResult{
		OK:          true,
		Message:     "chain join completed",
		OutputPath:  outputPath,
		Format:      format,
		RowsWritten: -1,
		Duration:    42 * time.Millisecond,
	}, nil
}

func (f *fakeEngine) Ready() bool { return !f.closed }

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

func execute(t *testing.T, engine *fakeEngine, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd(Options{
		Open: func(_ context.Context, cfg duckdb.Config, _ *slog.Logger) (Engine, error) {
			require.NotEmpty(t, cfg.ScratchDir)
			return engine, nil
		},
		Stdout: &stdout,
		Stderr: &stderr,
	})
	root.SetArgs(append(args, "--scratch-dir", t.TempDir()))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writePlan(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const scenarioPlan = `
master: customers.csv
references:
  - path: emails.csv
    match:
      - master: id
        reference: id
    pull: [email]
`

func TestColumnsRendersTablePerFile(t *testing.T) {
	engine := &fakeEngine{columns: []query.Column{{Name: "id", Type: "BIGINT"}, {Name: "name", Type: "VARCHAR"}}}

	out, err := execute(t, engine, "columns", "customers.csv")
	require.NoError(t, err)
	require.Contains(t, out, "customers.csv")
	require.Contains(t, out, "BIGINT")
	require.Contains(t, out, "VARCHAR")
	require.Contains(t, out, "(2 columns)")
	require.True(t, engine.closed)

	require.Len(t, engine.describedPaths, 1)
	require.True(t, filepath.IsAbs(engine.describedPaths[0]))
}

func TestColumnsRequiresAFile(t *testing.T) {
	_, err := execute(t, &fakeEngine{}, "columns")
	require.Error(t, err)
}

func TestPreviewRendersRowsAndSQL(t *testing.T) {
	plan := writePlan(t, scenarioPlan)
	engine := &fakeEngine{preview: query.PreviewResult{
		Columns: []string{"id", "name", "R0_email"},
		Rows:    [][]any{{int64(1), "a", "a@x.com"}, {int64(2), "b", nil}},
	}}

	out, err := execute(t, engine, "preview", "--plan", plan, "--limit", "5", "--show-sql")
	require.NoError(t, err)
	require.Contains(t, out, "LEFT JOIN")
	require.Contains(t, out, "R0_email")
	require.Contains(t, out, "a@x.com")
	require.Contains(t, out, "NULL")
	require.Contains(t, out, "(2 rows)")

	require.Equal(t, 5, engine.previewLimit)
	require.Equal(t, filepath.Join(filepath.Dir(plan), "customers.csv"), engine.previewPlan.Master)
	require.Len(t, engine.previewPlan.References, 1)
	require.Equal(t, []string{"email"}, engine.previewPlan.References[0].Pull)
}

func TestPreviewMasterFlagOverridesPlan(t *testing.T) {
	plan := writePlan(t, scenarioPlan)
	engine := &fakeEngine{}

	out, err := execute(t, engine, "preview", "--plan", plan, "--master", "other.parquet")
	require.NoError(t, err)
	require.Contains(t, out, "(0 rows)")

	want, err := filepath.Abs("other.parquet")
	require.NoError(t, err)
	require.Equal(t, want, engine.previewPlan.Master)
}

func TestPreviewRejectsNegativeLimit(t *testing.T) {
	plan := writePlan(t, scenarioPlan)
	_, err := execute(t, &fakeEngine{}, "preview", "--plan", plan, "--limit", "-1")
	require.Error(t, err)
}

func TestPreviewRequiresPlanFlag(t *testing.T) {
	_, err := execute(t, &fakeEngine{}, "preview")
	require.Error(t, err)
}

func TestRunWritesOutputAndSummary(t *testing.T) {
	plan := writePlan(t, scenarioPlan)
	target := filepath.Join(t.TempDir(), "nested", "enriched.csv")
	engine := &fakeEngine{content: "id,name,R0_email\n1,a,a@x.com\n2,b,\n"}

	out, err := execute(t, engine, "run", "--plan", plan, "--output", target)
	require.NoError(t, err)
	require.FileExists(t, target)
	require.Contains(t, out, target)
	require.Regexp(t, regexp.MustCompile(`rows\s+│\s+2\s`), out)
	require.Regexp(t, regexp.MustCompile(`format\s+│\s+csv\s`), out)
	require.True(t, engine.closed)
}

func TestRunFormatFlagOverridesPlan(t *testing.T) {
	plan := writePlan(t, scenarioPlan+"output:\n  path: out/enriched.parquet\n  format: csv\n")
	engine := &fakeEngine{content: "PAR1"}

	out, err := execute(t, engine, "run", "--plan", plan, "--format", "parquet")
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`format\s+│\s+parquet\s`), out)
	require.FileExists(t, filepath.Join(filepath.Dir(plan), "out", "enriched.parquet"))
}

func TestRunRequiresOutputPath(t *testing.T) {
	plan := writePlan(t, scenarioPlan)
	_, err := execute(t, &fakeEngine{}, "run", "--plan", plan)
	require.ErrorIs(t, err, errNoOutputPath)
}

func TestRunReturnsEngineFailureAndCloses(t *testing.T) {
	plan := writePlan(t, scenarioPlan)
	failure := &query.Error{Kind: query.KindExecution, Op: "materialize", Err: errors.New("boom")}
	engine := &fakeEngine{materializeErr: failure}

	_, err := execute(t, engine, "run", "--plan", plan, "--output", filepath.Join(t.TempDir(), "x.csv"))
	require.Error(t, err)
	require.Equal(t, query.KindExecution, query.KindOf(err))
	require.True(t, engine.closed)
}

func TestInspectSummarizesFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "enriched.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,R0_email\n1,a@x.com\n2,\n3,c@x.com\n"), 0o644))

	out, err := execute(t, &fakeEngine{}, "inspect", path)
	require.NoError(t, err)
	require.Contains(t, out, "id, R0_email")
	require.Contains(t, out, "(1 files)")
	require.Regexp(t, regexp.MustCompile(`csv\s+│\s+3\s`), out)
}

func TestInspectFailsOnUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# hi"), 0o644))

	_, err := execute(t, &fakeEngine{}, "inspect", path)
	require.Error(t, err)
}
