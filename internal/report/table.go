package report

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableMode selects how a Table renders.
type TableMode int

const (
	Markdown TableMode = iota // GitHub-flavoured markdown
	Terminal                  // box-drawn, for CLI output
)

// Table builds a table once and renders it in its mode.
type Table struct {
	w    table.Writer
	mode TableMode
}

// NewTable creates a Table with the given header.
func NewTable(mode TableMode, header ...string) *Table {
	w := table.NewWriter()
	if mode == Terminal {
		w.SetStyle(table.StyleLight)
	}
	row := make(table.Row, len(header))
	for i, h := range header {
		row[i] = h
	}
	w.AppendHeader(row)
	return &Table{w: w, mode: mode}
}

func newTable(header ...string) *Table {
	return NewTable(Markdown, header...)
}

// Row appends a data row.
func (t *Table) Row(vals ...any) {
	row := make(table.Row, len(vals))
	copy(row, vals)
	t.w.AppendRow(row)
}

// AlignRight right-aligns the given 1-based columns.
func (t *Table) AlignRight(cols ...int) {
	cfgs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		cfgs[i] = table.ColumnConfig{Number: c, Align: text.AlignRight}
	}
	t.w.SetColumnConfigs(cfgs)
}

// String renders the table followed by a newline.
func (t *Table) String() string {
	if t.mode == Terminal {
		return t.w.Render() + "\n"
	}
	return t.w.RenderMarkdown() + "\n"
}
