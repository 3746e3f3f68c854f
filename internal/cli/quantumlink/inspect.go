package quantumlink

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quantumlink/quantumlink/internal/output"
)

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>...",
		Short: "Summarize materialized CSV or Parquet files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries, err := output.InspectAll(cmd.Context(), args)
			if err != nil {
				return err
			}

			t := newTable(cmd.OutOrStdout(), "file", "format", "rows", "size", "columns")
			for _, summary := range summaries {
				t.AppendRow([]any{summary.Path, summary.Format, summary.Rows, summary.Size, strings.Join(summary.Columns, ", ")})
			}
			t.Render()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "(%d files)\n", len(summaries))
			return nil
		},
	}
}
