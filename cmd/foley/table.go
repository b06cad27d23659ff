package main

import (
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// terminalStyle colours status words only when out is a terminal.
type terminalStyle struct {
	color bool
}

func styleFor(out io.Writer) terminalStyle {
	f, ok := out.(*os.File)
	if !ok {
		return terminalStyle{}
	}
	return terminalStyle{color: isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())}
}

func (s terminalStyle) status(value string) string {
	if !s.color {
		return value
	}
	switch value {
	case "completed", "ready", "pass":
		return text.Colors{text.FgGreen}.Sprint(value)
	case "failed", "dropped", "fail":
		return text.Colors{text.FgRed}.Sprint(value)
	case "canceled", "skipped", "running":
		return text.Colors{text.FgYellow}.Sprint(value)
	default:
		return value
	}
}

func (s terminalStyle) heading(value string) string {
	if !s.color {
		return value
	}
	return text.Colors{text.Bold}.Sprint(value)
}
