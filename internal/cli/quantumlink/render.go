package quantumlink

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable(w io.Writer, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if len(header) > 0 {
		t.AppendHeader(table.Row(header))
	}
	return t
}

func renderRows(w io.Writer, columns []string, rows [][]any) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return
	}

	header := make(table.Row, len(columns))
	for i, column := range columns {
		header[i] = column
	}
	t := newTable(w, header...)
	for _, values := range rows {
		row := make(table.Row, len(values))
		for i, value := range values {
			row[i] = formatValue(value)
		}
		t.AppendRow(row)
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(rows))
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
