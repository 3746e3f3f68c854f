package quantumlink

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantumlink/quantumlink/internal/planfile"
)

type previewOptions struct {
	plan    string
	limit   int
	showSQL bool
}

func newPreviewCommand(opts Options, flags *engineFlags) *cobra.Command {
	previewOpts := &previewOptions{}

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the first rows of a chain join",
		Example: `  quantumlink preview --plan plan.yaml
  quantumlink preview --plan plan.yaml --limit 50 --show-sql`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plan, err := planfile.Load(previewOpts.plan, cmd.Flags())
			if err != nil {
				return err
			}
			chain, err := plan.Chain()
			if err != nil {
				return err
			}
			if previewOpts.limit < 0 {
				return fmt.Errorf("limit must not be negative")
			}

			return withEngine(cmd, opts, flags, func(engine Engine) error {
				out := cmd.OutOrStdout()
				if previewOpts.showSQL {
					sqlText, err := engine.Query(chain)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintln(out, sqlText)
				}

				result, err := engine.Preview(cmd.Context(), chain, previewOpts.limit)
				if err != nil {
					return err
				}
				renderRows(out, result.Columns, result.Rows)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&previewOpts.plan, "plan", "p", "", "plan file (YAML)")
	cmd.Flags().IntVarP(&previewOpts.limit, "limit", "n", 0, "rows to show (0 uses the engine default)")
	cmd.Flags().BoolVar(&previewOpts.showSQL, "show-sql", false, "print the generated SQL first")
	cmd.Flags().String("master", "", "override the plan's master file")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}
