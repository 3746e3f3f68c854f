package planfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"

	"github.com/quantumlink/quantumlink/internal/query"
)

const samplePlan = `master: data/customers.csv
references:
  - path: data/emails.parquet
    match:
      - master: id
        reference: customer_id
    pull: [email]
  - path: /srv/shared/regions.tsv
    match:
      - master: region
        reference: code
      - master: country
        reference: country
output:
  path: results/enriched.csv
`

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}
	return path
}

func TestLoadResolvesPathsAgainstPlanDir(t *testing.T) {
	path := writePlan(t, samplePlan)
	dir := filepath.Dir(path)

	plan, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if plan.Source != path {
		t.Fatalf("Source = %q, want %q", plan.Source, path)
	}
	if want := filepath.Join(dir, "data", "customers.csv"); plan.Master != want {
		t.Fatalf("Master = %q, want %q", plan.Master, want)
	}
	if len(plan.References) != 2 {
		t.Fatalf("References = %d, want 2", len(plan.References))
	}
	if want := filepath.Join(dir, "data", "emails.parquet"); plan.References[0].Path != want {
		t.Fatalf("References[0].Path = %q, want %q", plan.References[0].Path, want)
	}
	if plan.References[1].Path != "/srv/shared/regions.tsv" {
		t.Fatalf("absolute path rewritten to %q", plan.References[1].Path)
	}
	first := plan.References[0]
	if len(first.Match) != 1 || first.Match[0].MasterColumn != "id" || first.Match[0].ReferenceColumn != "customer_id" {
		t.Fatalf("References[0].Match = %#v", first.Match)
	}
	if len(first.Pull) != 1 || first.Pull[0] != "email" {
		t.Fatalf("References[0].Pull = %#v", first.Pull)
	}
	if len(plan.References[1].Match) != 2 || len(plan.References[1].Pull) != 0 {
		t.Fatalf("References[1] = %#v", plan.References[1])
	}
	if want := filepath.Join(dir, "results", "enriched.csv"); plan.Output.Path != want {
		t.Fatalf("Output.Path = %q, want %q", plan.Output.Path, want)
	}
	format, err := plan.OutputFormat()
	if err != nil || format != query.OutputCSV {
		t.Fatalf("OutputFormat() = %q, %v", format, err)
	}

	chain, err := plan.Chain()
	if err != nil {
		t.Fatalf("Chain() error = %v", err)
	}
	if got := chain.OutputColumns(); len(got) != 1 || got[0] != "R0_email" {
		t.Fatalf("OutputColumns() = %v", got)
	}
}

func TestLoadAppliesEnvAndFlagOverrides(t *testing.T) {
	path := writePlan(t, samplePlan)
	t.Setenv("QUANTUMLINK_PLAN_OUTPUT_FORMAT", "PARQUET")
	t.Setenv("QUANTUMLINK_PLAN_MASTER", "/from/env.csv")

	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.String("output", "", "")
	flags.String("format", "", "")
	flags.Int("limit", 10, "")
	if err := flags.Set("output", "/tmp/out/enriched.parquet"); err != nil {
		t.Fatalf("flags.Set() error = %v", err)
	}

	plan, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if plan.Master != "/from/env.csv" {
		t.Fatalf("Master = %q", plan.Master)
	}
	if plan.Output.Path != "/tmp/out/enriched.parquet" {
		t.Fatalf("Output.Path = %q", plan.Output.Path)
	}
	if plan.Output.Format != "parquet" {
		t.Fatalf("Output.Format = %q", plan.Output.Format)
	}

	if err := flags.Set("format", "csv"); err != nil {
		t.Fatalf("flags.Set() error = %v", err)
	}
	plan, err = Load(path, flags)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if plan.Output.Format != "csv" {
		t.Fatalf("flag should win over env, Output.Format = %q", plan.Output.Format)
	}
}

func TestLoadRejectsInvalidPlans(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{
			name: "missing match pairs",
			content: `master: a.csv
references:
  - path: b.csv
    pull: [x]
`,
			want: query.ErrNoMatchPairs,
		},
		{
			name:    "missing master",
			content: "references: []\n",
			want:    query.ErrEmptyPath,
		},
		{
			name: "unknown output format",
			content: `master: a.csv
output:
  format: xlsx
`,
			want: query.ErrUnsupportedOutput,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writePlan(t, tc.content), nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Load() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(" ", nil); !errors.Is(err, ErrNoPlanFile) {
		t.Fatalf("Load() error = %v, want %v", err, ErrNoPlanFile)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("expected error for missing plan file")
	}
}
