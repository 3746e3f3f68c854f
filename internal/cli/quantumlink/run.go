package quantumlink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/quantumlink/quantumlink/internal/output"
	"github.com/quantumlink/quantumlink/internal/planfile"
)

var errNoOutputPath = errors.New("output path is required (set output.path in the plan or pass --output)")

func newRunCommand(opts Options, flags *engineFlags) *cobra.Command {
	var planPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Materialize a chain join to CSV or Parquet",
		Example: `  quantumlink run --plan plan.yaml
  quantumlink run --plan plan.yaml --output out/enriched.parquet --format parquet`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plan, err := planfile.Load(planPath, cmd.Flags())
			if err != nil {
				return err
			}
			chain, err := plan.Chain()
			if err != nil {
				return err
			}
			format, err := plan.OutputFormat()
			if err != nil {
				return err
			}
			if plan.Output.Path == "" {
				return errNoOutputPath
			}
			if err := os.MkdirAll(filepath.Dir(plan.Output.Path), 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			return withEngine(cmd, opts, flags, func(engine Engine) error {
				result, err := engine.Materialize(cmd.Context(), chain, plan.Output.Path, format)
				if err != nil {
					return err
				}
				if !result.OK {
					return errors.New(result.Message)
				}

				rows := result.RowsWritten
				size := "unknown"
				if summary, err := output.Inspect(result.OutputPath); err == nil {
					size = summary.Size
					if rows < 0 {
						rows = summary.Rows
					}
				}

				t := newTable(cmd.OutOrStdout())
				t.AppendRows([]table.Row{
					{"output", result.OutputPath},
					{"format", string(result.Format)},
					{"links", len(chain.References)},
					{"rows", rows},
					{"size", size},
					{"duration", result.Duration.Round(time.Millisecond)},
				})
				t.Render()
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&planPath, "plan", "p", "", "plan file (YAML)")
	cmd.Flags().StringP("output", "o", "", "override the plan's output path")
	cmd.Flags().StringP("format", "f", "", "override the plan's output format (csv|parquet)")
	cmd.Flags().String("master", "", "override the plan's master file")
	_ = cmd.MarkFlagRequired("plan")
	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"csv", "parquet"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}
