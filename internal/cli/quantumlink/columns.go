package quantumlink

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newColumnsCommand(opts Options, flags *engineFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "columns <file>...",
		Short: "List the columns and types of source files",
		Example: `  quantumlink columns data/customers.csv
  quantumlink columns data/*.parquet`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, flags, func(engine Engine) error {
				out := cmd.OutOrStdout()
				for _, arg := range args {
					path, err := filepath.Abs(arg)
					if err != nil {
						return fmt.Errorf("resolve %s: %w", arg, err)
					}
					columns, err := engine.Describe(cmd.Context(), path)
					if err != nil {
						return err
					}

					t := newTable(out, "#", "column", "type")
					t.SetTitle("%s", arg)
					for i, column := range columns {
						t.AppendRow([]any{i + 1, column.Name, column.Type})
					}
					t.Render()
					_, _ = fmt.Fprintf(out, "(%d columns)\n", len(columns))
				}
				return nil
			})
		},
	}
}
