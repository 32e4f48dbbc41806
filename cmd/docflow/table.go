package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"docflow/internal/queue"
)

const defaultColumnWidth = 60

// column describes one table column. Status columns hold raw queue.Status
// values and are coloured at render time.
type column struct {
	title  string
	right  bool
	status bool
}

func col(title string) column       { return column{title: title} }
func numCol(title string) column    { return column{title: title, right: true} }
func statusCol(title string) column { return column{title: title, status: true} }

// renderTable draws rows with the rounded style. A non-empty footer is shown
// under the last row.
func renderTable(columns []column, rows [][]string, colorize bool, footer string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Footer = text.FormatDefault

	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c.title
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}
	if footer != "" {
		tw.AppendFooter(table.Row{footer}, table.RowConfig{AutoMerge: true})
	}

	configs := make([]table.ColumnConfig, 0, len(columns))
	for i, c := range columns {
		cfg := table.ColumnConfig{
			Number:      i + 1,
			Align:       text.AlignLeft,
			AlignHeader: text.AlignLeft,
			WidthMax:    defaultColumnWidth,
		}
		if c.right {
			cfg.Align = text.AlignRight
		}
		if c.status {
			cfg.Transformer = statusTransformer(colorize)
		}
		configs = append(configs, cfg)
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func statusTransformer(colorize bool) text.Transformer {
	return func(val any) string {
		s := fmt.Sprint(val)
		return colorStatus(queue.Status(s), colorize)
	}
}
