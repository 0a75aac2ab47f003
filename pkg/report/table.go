package report

import (
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Table renders the cutoffs as a text table.
func Table(cutoffs []Cutoff, total int) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignRight},
	})

	tbl.AppendHeader(table.Row{"Percentile", "Stars"})
	for _, c := range cutoffs {
		tbl.AppendRow(table.Row{c.Label(), humanize.Comma(int64(c.Stars))})
	}
	tbl.AppendFooter(table.Row{"Repositories", humanize.Comma(int64(total))})

	return tbl.Render()
}
