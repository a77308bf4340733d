// Package output renders CLI results as aligned tables, CSV or JSON.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

type Table struct {
	Columns []string
	Rows    [][]string
}

func (t *Table) Append(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

func PrintJSON(w io.Writer, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}

	_, err = w.Write(append(encoded, '\n'))
	return err
}

func PrintTable(w io.Writer, table Table) {
	if len(table.Columns) == 0 {
		return
	}

	widths := make([]int, len(table.Columns))
	for i, col := range table.Columns {
		widths[i] = utf8.RuneCountInString(col)
	}

	for _, row := range table.Rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	writeRow := func(values []string) {
		for i, value := range values {
			if i > 0 {
				fmt.Fprint(w, "  ")
			}
			if i == len(values)-1 {
				fmt.Fprint(w, value)
				continue
			}
			fmt.Fprint(w, padRight(value, widths[i]))
		}
		fmt.Fprint(w, "\n")
	}

	writeRow(table.Columns)
	separators := make([]string, len(table.Columns))
	for i, width := range widths {
		separators[i] = strings.Repeat("-", width)
	}
	writeRow(separators)

	for _, row := range table.Rows {
		normalized := make([]string, len(table.Columns))
		copy(normalized, row)
		writeRow(normalized)
	}
}

func PrintCSV(w io.Writer, table Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(table.Columns); err != nil {
		return err
	}

	for _, row := range table.Rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// Print writes table for the "table" and "csv" formats and payload as JSON otherwise.
func Print(w io.Writer, format string, table Table, payload any) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "table", "":
		PrintTable(w, table)
		return nil
	case "csv":
		return PrintCSV(w, table)
	case "json":
		return PrintJSON(w, payload)
	default:
		return fmt.Errorf("unsupported format %q (use table, csv or json)", format)
	}
}

func padRight(value string, width int) string {
	n := utf8.RuneCountInString(value)
	if n >= width {
		return value
	}
	return value + strings.Repeat(" ", width-n)
}
