package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column is a table heading. Numeric columns are right-aligned, header included.
type column struct {
	title   string
	numeric bool
}

func textCol(title string) column { return column{title: title} }

func numCol(title string) column { return column{title: title, numeric: true} }

func (c column) align() text.Align {
	if c.numeric {
		return text.AlignRight
	}
	return text.AlignLeft
}

// grid collects rows under a fixed set of columns.
type grid struct {
	columns []column
	rows    []table.Row
}

func newGrid(columns ...column) *grid {
	return &grid{columns: columns}
}

// add appends a row. Missing cells render empty and surplus cells are dropped.
func (g *grid) add(cells ...any) {
	row := make(table.Row, len(g.columns))
	copy(row, cells)
	for i, cell := range row {
		if cell == nil {
			row[i] = ""
		}
	}
	g.rows = append(g.rows, row)
}

func (g *grid) empty() bool {
	return len(g.rows) == 0
}

func (g *grid) String() string {
	if len(g.columns) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(g.columns))
	configs := make([]table.ColumnConfig, len(g.columns))
	for i, c := range g.columns {
		header[i] = c.title
		configs[i] = table.ColumnConfig{Number: i + 1, Align: c.align(), AlignHeader: c.align()}
	}
	tw.AppendHeader(header)
	tw.AppendRows(g.rows)
	tw.SetColumnConfigs(configs)
	return tw.Render()
}
